package httpapi

import (
	"net/http"
	"strconv"

	"smallbiznis-gamification/pkg/db/pagination"
	"smallbiznis-gamification/pkg/errutil"
	"smallbiznis-gamification/pkg/middleware"
	"smallbiznis-gamification/services/campaign"
	"smallbiznis-gamification/services/gamification"
	"smallbiznis-gamification/services/leaderboard"
	"smallbiznis-gamification/services/ledger"
	"smallbiznis-gamification/services/prize"
	"smallbiznis-gamification/services/rules"
	"smallbiznis-gamification/services/tier"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

type Handler struct {
	gamification *gamification.Service
	campaigns    *campaign.Service
	ledger       *ledger.Service
	leaderboard  *leaderboard.Service
	prizes       *prize.Service
	rules        *rules.Service
	tiers        *tier.Service
}

type HandlerParams struct {
	fx.In

	Gamification *gamification.Service
	Campaigns    *campaign.Service
	Ledger       *ledger.Service
	Leaderboard  *leaderboard.Service
	Prizes       *prize.Service
	Rules        *rules.Service
	Tiers        *tier.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		gamification: p.Gamification,
		campaigns:    p.Campaigns,
		ledger:       p.Ledger,
		leaderboard:  p.Leaderboard,
		prizes:       p.Prizes,
		rules:        p.Rules,
		tiers:        p.Tiers,
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(errutil.BadRequest("invalid "+name, err))
		return 0, false
	}
	return id, true
}

func queryID(c *gin.Context, name string) (*int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, errutil.BadRequest("invalid "+name, err)
	}
	return &id, nil
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return false
	}
	return true
}

func pageQuery(c *gin.Context) (pagination.Pagination, error) {
	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		return p, errutil.BadRequest("invalid pagination", err)
	}
	return p, nil
}

func (h *Handler) RecordEvent(c *gin.Context) {
	var req gamification.RecordParams
	if !bind(c, &req) {
		return
	}
	req.CompanyID = middleware.CompanyID(c)

	res, err := h.gamification.RecordEvent(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *Handler) CompleteDeliverable(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.gamification.CompleteDeliverable(c.Request.Context(), middleware.CompanyID(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CreateDeliverable(c *gin.Context) {
	var req campaign.DeliverableParams
	if !bind(c, &req) {
		return
	}
	req.CompanyID = middleware.CompanyID(c)

	d, err := h.campaigns.CreateDeliverable(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) CreatorSummary(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sum, err := h.gamification.GetCreatorPointsSummary(c.Request.Context(), middleware.CompanyID(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) listLedger(c *gin.Context, f ledger.Filter) {
	p, err := pageQuery(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	f.CompanyID = middleware.CompanyID(c)
	f.Pagination = p

	entries, info, err := h.ledger.ListEntries(c.Request.Context(), f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries, "page_info": info})
}

func (h *Handler) CreatorLedger(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	campaignID, err := queryID(c, "campaign_id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.listLedger(c, ledger.Filter{CreatorID: id, CampaignID: campaignID})
}

func (h *Handler) CampaignLedger(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.listLedger(c, ledger.Filter{CampaignID: &id})
}

func (h *Handler) BrandLeaderboard(c *gin.Context) {
	r, err := leaderboard.ParseRange(c.Query("range"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	campaignID, err := queryID(c, "campaign_id")
	if err != nil {
		_ = c.Error(err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	rows, err := h.leaderboard.GetBrandLeaderboard(c.Request.Context(), middleware.CompanyID(c), r, campaignID, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"range": r, "data": rows})
}

func (h *Handler) CampaignLeaderboard(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rows, err := h.leaderboard.GetCampaignLeaderboard(c.Request.Context(), middleware.CompanyID(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func badQuery(err error) error {
	return errutil.BadRequest("invalid query", err)
}

// Reconcile replays the ledger of the tenant. With async=true the run is
// queued for the worker instead.
func (h *Handler) Reconcile(c *gin.Context) {
	companyID := middleware.CompanyID(c)
	repair, _ := strconv.ParseBool(c.Query("repair"))
	async, _ := strconv.ParseBool(c.Query("async"))

	if async {
		if err := h.gamification.EnqueueReconcile(c.Request.Context(), companyID, repair); err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": true})
		return
	}

	mismatches, err := h.gamification.ReconcileCompany(c.Request.Context(), companyID, repair)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"repaired": repair, "mismatches": mismatches})
}
