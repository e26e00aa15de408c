package router

import "github.com/gin-gonic/gin"

// registerReconRoutes 扫描、证书、指纹与账本路由
func (r *Router) registerReconRoutes(group *gin.RouterGroup) {
	group.GET("/status", r.handler.Status)

	scan := group.Group("/scan")
	scan.POST("", r.handler.SubmitScan)
	scan.GET("", r.handler.ListScans)
	scan.GET("/:id", r.handler.GetScan)

	group.POST("/certificate", r.handler.Certificate)
	group.POST("/fingerprint", r.handler.Fingerprint)

	ledgerGroup := group.Group("/ledger")
	ledgerGroup.GET("", r.handler.GetLedger)
	ledgerGroup.GET("/verify", r.handler.VerifyLedger)
	ledgerGroup.GET("/entries/:index", r.handler.GetLedgerEntry)
}
