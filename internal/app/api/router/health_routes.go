package router

// registerHealthRoutes 健康检查路由，不需要认证
func (r *Router) registerHealthRoutes() {
	r.engine.GET("/health", r.handler.Health)
	r.engine.GET("/ping", r.handler.Ping)
	r.engine.GET("/version", r.handler.Version)
}
