package httpapi

import (
	"net/http"

	"smallbiznis-gamification/pkg/errutil"
	"smallbiznis-gamification/pkg/middleware"
	"smallbiznis-gamification/services/campaign"
	"smallbiznis-gamification/services/prize"
	"smallbiznis-gamification/services/rules"
	"smallbiznis-gamification/services/tier"

	"github.com/gin-gonic/gin"
)

func (h *Handler) CreateCampaign(c *gin.Context) {
	var req campaign.CreateParams
	if !bind(c, &req) {
		return
	}
	req.CompanyID = middleware.CompanyID(c)

	out, err := h.campaigns.CreateCampaign(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListCampaigns(c *gin.Context) {
	status := campaign.Status(c.Query("status"))
	if status != "" && !status.Valid() {
		_ = c.Error(errutil.BadRequest("unknown status "+string(status), nil))
		return
	}
	out, err := h.campaigns.ListCampaigns(c.Request.Context(), middleware.CompanyID(c), status)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *Handler) GetCampaign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.campaigns.GetCampaign(c.Request.Context(), middleware.CompanyID(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) UpdateCampaign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req campaign.UpdateParams
	if !bind(c, &req) {
		return
	}
	out, err := h.campaigns.UpdateCampaign(c.Request.Context(), middleware.CompanyID(c), id, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type scoringRequest struct {
	Rules          *rules.Layer `json:"rules"`
	Caps           rules.Caps   `json:"caps"`
	OverridesBrand bool         `json:"overrides_brand"`
}

func (h *Handler) UpdateCampaignScoring(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req scoringRequest
	if !bind(c, &req) {
		return
	}
	out, err := h.campaigns.UpdateScoring(c.Request.Context(), middleware.CompanyID(c), id, req.Rules, req.Caps, req.OverridesBrand)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) ListDeliverables(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	creatorID, err := queryID(c, "creator_id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var creator int64
	if creatorID != nil {
		creator = *creatorID
	}
	out, err := h.campaigns.ListDeliverables(c.Request.Context(), middleware.CompanyID(c), id, creator)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *Handler) ListPrizes(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.prizes.ListPrizes(c.Request.Context(), middleware.CompanyID(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *Handler) ReplacePrizes(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Prizes []prize.PrizeInput `json:"prizes"`
	}
	if !bind(c, &req) {
		return
	}
	out, err := h.prizes.CreateOrReplaceCampaignPrizes(c.Request.Context(), middleware.CompanyID(c), id, req.Prizes)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *Handler) CloseRanking(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.prizes.CloseCampaignRanking(c.Request.Context(), middleware.CompanyID(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetBrandScoring(c *gin.Context) {
	companyID := middleware.CompanyID(c)
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"rules": h.rules.ResolveScoringRules(ctx, companyID, 0),
		"caps":  h.rules.ResolveCaps(ctx, companyID, 0),
	})
}

func (h *Handler) UpdateBrandScoring(c *gin.Context) {
	var req scoringRequest
	if !bind(c, &req) {
		return
	}
	out, err := h.rules.UpsertBrandConfig(c.Request.Context(), middleware.CompanyID(c), req.Rules, req.Caps)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) ListTiers(c *gin.Context) {
	out, err := h.tiers.ListTiers(c.Request.Context(), middleware.CompanyID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *Handler) ReplaceTiers(c *gin.Context) {
	var req struct {
		Tiers []tier.Input `json:"tiers"`
	}
	if !bind(c, &req) {
		return
	}
	out, err := h.gamification.ReplaceTiers(c.Request.Context(), middleware.CompanyID(c), req.Tiers)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
