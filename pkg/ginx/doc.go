// Package ginx 提供 gin 框架的 handler 适配器，负责参数绑定和 JSON 响应
//
// 支持的 handler 函数签名：
//
//	// 无参数，只有返回值
//	func(c *gin.Context) resp
//
//	// 有参数，有返回值，有 error
//	func(c *gin.Context, args *Args) (resp, error)
//
// 参数从 URI 和 Query 绑定，error 为 *xenstore.Error 时按错误码映射 HTTP 状态码。
//
// 使用示例：
//
//	router := gin.New()
//
//	router.GET("/api/status", ginx.Adapt2(func(c *gin.Context) *entity.Status {
//	    return tracker.Status()
//	}))
//
//	router.GET("/api/domains/:domid", ginx.Adapt5(func(c *gin.Context, args *DomainArgs) (*Domain, error) {
//	    return describe(c, args.DomainID)
//	}))
package ginx
