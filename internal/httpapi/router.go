package httpapi

import (
	"smallbiznis-gamification/pkg/config"
	"smallbiznis-gamification/pkg/health"
	"smallbiznis-gamification/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewHandler,
		NewEngine,
	),
)

type EngineParams struct {
	fx.In

	Config  *config.Config `optional:"true"`
	Handler *Handler
	Health  health.HealthService
}

func NewEngine(p EngineParams) *gin.Engine {
	if p.Config != nil && p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1", middleware.Trace(), middleware.Tenant())
	Register(v1, p.Handler)
	return r
}

func Register(g *gin.RouterGroup, h *Handler) {
	g.POST("/events", h.RecordEvent)
	g.POST("/deliverables", h.CreateDeliverable)
	g.POST("/deliverables/:id/complete", h.CompleteDeliverable)

	g.GET("/leaderboard", h.BrandLeaderboard)

	g.GET("/creators/:id/summary", h.CreatorSummary)
	g.GET("/creators/:id/ledger", h.CreatorLedger)

	campaigns := g.Group("/campaigns")
	campaigns.POST("", h.CreateCampaign)
	campaigns.GET("", h.ListCampaigns)
	campaigns.GET("/:id", h.GetCampaign)
	campaigns.PATCH("/:id", h.UpdateCampaign)
	campaigns.PUT("/:id/scoring", h.UpdateCampaignScoring)
	campaigns.GET("/:id/deliverables", h.ListDeliverables)
	campaigns.GET("/:id/leaderboard", h.CampaignLeaderboard)
	campaigns.GET("/:id/ledger", h.CampaignLedger)
	campaigns.GET("/:id/prizes", h.ListPrizes)
	campaigns.PUT("/:id/prizes", h.ReplacePrizes)
	campaigns.POST("/:id/close-ranking", h.CloseRanking)

	ents := g.Group("/entitlements")
	ents.GET("", h.ListEntitlements)
	ents.POST("/bulk-approve", h.BulkApprove)
	ents.GET("/:id", h.GetEntitlement)
	ents.GET("/:id/audit", h.AuditTrail)
	ents.POST("/:id/approve", h.Approve)
	ents.POST("/:id/reject", h.Reject)
	ents.POST("/:id/execute", h.Execute)
	ents.POST("/:id/complete", h.Complete)
	ents.POST("/:id/fail", h.Fail)

	brand := g.Group("/brand")
	brand.GET("/scoring", h.GetBrandScoring)
	brand.PUT("/scoring", h.UpdateBrandScoring)
	brand.GET("/tiers", h.ListTiers)
	brand.PUT("/tiers", h.ReplaceTiers)
	brand.POST("/reconcile", h.Reconcile)
}
