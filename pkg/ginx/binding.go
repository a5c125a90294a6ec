package ginx

import (
	"github.com/gin-gonic/gin"
)

// bindArgs 绑定请求参数到 args 结构体
// URI 参数优先，Query 参数补充
func bindArgs(ctx *gin.Context, args any) error {
	if len(ctx.Params) > 0 {
		if err := ctx.ShouldBindUri(args); err != nil {
			return err
		}
	}
	if len(ctx.Request.URL.RawQuery) > 0 {
		return ctx.ShouldBindQuery(args)
	}
	return nil
}
