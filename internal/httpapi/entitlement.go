package httpapi

import (
	"net/http"
	"strconv"

	"smallbiznis-gamification/pkg/errutil"
	"smallbiznis-gamification/pkg/middleware"
	"smallbiznis-gamification/services/prize"

	"github.com/gin-gonic/gin"
)

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) ListEntitlements(c *gin.Context) {
	var f prize.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		_ = c.Error(badQuery(err))
		return
	}
	if f.Status != "" && !f.Status.Valid() {
		_ = c.Error(badQuery(nil))
		return
	}
	f.CompanyID = middleware.CompanyID(c)

	out, info, err := h.prizes.ListEntitlements(c.Request.Context(), f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "page_info": info})
}

func (h *Handler) GetEntitlement(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.prizes.GetEntitlement(c.Request.Context(), middleware.CompanyID(c), id)
	respond(c, out, err)
}

func (h *Handler) AuditTrail(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.prizes.AuditTrail(c.Request.Context(), middleware.CompanyID(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *Handler) Approve(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.prizes.ApproveRewardEntitlement(c.Request.Context(), middleware.CompanyID(c), id, middleware.UserID(c))
	respond(c, out, err)
}

func (h *Handler) Reject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if !bind(c, &req) {
		return
	}
	out, err := h.prizes.RejectRewardEntitlement(c.Request.Context(), middleware.CompanyID(c), id, middleware.UserID(c), req.Reason)
	respond(c, out, err)
}

func (h *Handler) Execute(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.prizes.ExecuteApprovedReward(c.Request.Context(), middleware.CompanyID(c), id, middleware.UserID(c))
	respond(c, out, err)
}

func (h *Handler) Complete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		ExternalRef string `json:"external_ref"`
	}
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}
	out, err := h.prizes.CompleteRewardEntitlement(c.Request.Context(), middleware.CompanyID(c), id, middleware.UserID(c), req.ExternalRef)
	respond(c, out, err)
}

func (h *Handler) Fail(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if !bind(c, &req) {
		return
	}
	out, err := h.prizes.FailRewardEntitlement(c.Request.Context(), middleware.CompanyID(c), id, middleware.UserID(c), req.Reason)
	respond(c, out, err)
}

func (h *Handler) BulkApprove(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if !bind(c, &req) {
		return
	}
	ids := make([]int64, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			_ = c.Error(errutil.BadRequest("invalid id "+strconv.Quote(raw), err))
			return
		}
		ids = append(ids, id)
	}

	res := h.prizes.BulkApproveRewards(c.Request.Context(), middleware.CompanyID(c), ids, middleware.UserID(c))
	c.JSON(http.StatusOK, gin.H{
		"succeeded": res.SucceededIDs(),
		"failed":    res.FailedMessages(),
	})
}

func respond(c *gin.Context, out *prize.Entitlement, err error) {
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
