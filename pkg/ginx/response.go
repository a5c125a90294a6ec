package ginx

import (
	"errors"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"

	"github.com/jjd27/xenstore-clients/pkg/xenstore"
)

// renderResponse 以 JSON 渲染响应，nil 响应返回 204
func renderResponse(ctx *gin.Context, response any) {
	if isNil(response) {
		ctx.Status(http.StatusNoContent)
		return
	}

	// 基本类型特殊处理
	switch v := response.(type) {
	case string:
		ctx.String(http.StatusOK, v)
		return
	case int, int64, uint64, float64, bool:
		ctx.JSON(http.StatusOK, gin.H{"value": v})
		return
	}

	ctx.JSON(http.StatusOK, response)
}

// renderError 渲染错误响应
// *xenstore.Error 按错误码决定状态码，其他错误使用 statusCode
func renderError(ctx *gin.Context, statusCode int, err error) {
	var xsErr *xenstore.Error
	if errors.As(err, &xsErr) {
		ctx.JSON(statusForCode(xsErr.Code, statusCode), gin.H{
			"error": err.Error(),
			"code":  xsErr.Code,
		})
		return
	}

	ctx.JSON(statusCode, gin.H{"error": err.Error()})
}

func statusForCode(code string, fallback int) int {
	switch code {
	case xenstore.ErrNotFound.Code:
		return http.StatusNotFound
	case xenstore.ErrPermission.Code:
		return http.StatusForbidden
	case xenstore.ErrInvalid.Code:
		return http.StatusBadRequest
	case xenstore.ErrConflict.Code:
		return http.StatusConflict
	}
	return fallback
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
