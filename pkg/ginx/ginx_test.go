package ginx_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjd27/xenstore-clients/pkg/ginx"
	"github.com/jjd27/xenstore-clients/pkg/xenstore"
)

type domainArgs struct {
	DomainID int    `uri:"domid" binding:"min=0"`
	Kind     string `form:"kind"`
}

func (a *domainArgs) IsValid() error {
	if a.Kind == "usb" {
		return errors.New("unsupported kind")
	}
	return nil
}

type domainResp struct {
	DomainID int    `json:"domid"`
	Kind     string `json:"kind"`
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.GET("/value", ginx.Adapt2(func(c *gin.Context) int { return 42 }))
	router.GET("/text", ginx.Adapt2(func(c *gin.Context) string { return "ok" }))
	router.GET("/empty", ginx.Adapt2(func(c *gin.Context) *domainResp { return nil }))
	router.GET("/domains/:domid", ginx.Adapt5(func(c *gin.Context, args *domainArgs) (*domainResp, error) {
		if args.DomainID == 404 {
			return nil, &xenstore.Error{Code: "ENOENT", Op: "read", Path: "/local/domain/404"}
		}
		if args.DomainID == 403 {
			return nil, xenstore.ErrPermission
		}
		if args.DomainID == 500 {
			return nil, errors.New("boom")
		}
		return &domainResp{DomainID: args.DomainID, Kind: args.Kind}, nil
	}))
	return router
}

func TestAdapt(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "scalar", path: "/value", wantStatus: http.StatusOK, wantBody: `{"value":42}`},
		{name: "string", path: "/text", wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "nil pointer", path: "/empty", wantStatus: http.StatusNoContent},
		{name: "plain error", path: "/domains/500", wantStatus: http.StatusInternalServerError, wantBody: `{"error":"boom"}`},
		{name: "uri and query", path: "/domains/7?kind=vbd", wantStatus: http.StatusOK, wantBody: `{"domid":7,"kind":"vbd"}`},
		{name: "uri only", path: "/domains/3", wantStatus: http.StatusOK, wantBody: `{"domid":3,"kind":""}`},
		{name: "bad uri", path: "/domains/abc", wantStatus: http.StatusBadRequest},
		{name: "invalid args", path: "/domains/1?kind=usb", wantStatus: http.StatusBadRequest, wantBody: `{"error":"unsupported kind"}`},
		{name: "not found", path: "/domains/404", wantStatus: http.StatusNotFound},
		{name: "permission", path: "/domains/403", wantStatus: http.StatusForbidden},
	}

	router := newRouter()
	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantBody != "" {
				assert.Equal(t, tc.wantBody, w.Body.String())
			}
		})
	}
}

func TestAdapt_StoreErrorCode(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/domains/404", nil)
	newRouter().ServeHTTP(w, req)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ENOENT", body["code"])
	assert.Contains(t, body["error"], "/local/domain/404")
}
