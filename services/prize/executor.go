package prize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"smallbiznis-gamification/pkg/config"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	// OutcomePending means the payout was accepted and will be confirmed later
	// through CompleteRewardEntitlement or FailRewardEntitlement.
	OutcomePending Outcome = "pending"
)

type PayoutRequest struct {
	IdempotencyKey string
	Attempt        int
	Entitlement    *Entitlement
	Prize          *Prize
}

type PayoutResult struct {
	Outcome     Outcome
	ExternalRef string
}

// PayoutExecutor moves the money or goods behind an entitlement. It must
// treat IdempotencyKey as the identity of the attempt.
type PayoutExecutor interface {
	Execute(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
}

type ExecutorFunc func(ctx context.Context, req PayoutRequest) (*PayoutResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	return f(ctx, req)
}

// ManualExecutor leaves every payout pending for an operator to confirm.
type ManualExecutor struct{}

func (ManualExecutor) Execute(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	return &PayoutResult{Outcome: OutcomePending}, nil
}

// HTTPExecutor posts payouts to an external payout service.
type HTTPExecutor struct {
	url    string
	client *http.Client
}

func NewHTTPExecutor(url string, client *http.Client) *HTTPExecutor {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPExecutor{url: url, client: client}
}

type payoutBody struct {
	IdempotencyKey string     `json:"idempotency_key"`
	EntitlementID  int64      `json:"entitlement_id,string"`
	Code           string     `json:"code"`
	CompanyID      int64      `json:"company_id,string"`
	CampaignID     int64      `json:"campaign_id,string"`
	CreatorID      int64      `json:"creator_id,string"`
	RewardKind     RewardKind `json:"reward_kind"`
	CashAmount     *int64     `json:"cash_amount,omitempty"`
	Currency       string     `json:"currency,omitempty"`
	ProductSKU     string     `json:"product_sku,omitempty"`
}

type payoutReply struct {
	Status      string `json:"status"`
	ExternalRef string `json:"external_ref"`
}

func (h *HTTPExecutor) Execute(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	body := payoutBody{
		IdempotencyKey: req.IdempotencyKey,
		EntitlementID:  req.Entitlement.ID,
		Code:           req.Entitlement.Code,
		CompanyID:      req.Entitlement.CompanyID,
		CampaignID:     req.Entitlement.CampaignID,
		CreatorID:      req.Entitlement.CreatorID,
	}
	if req.Prize != nil {
		body.RewardKind = req.Prize.RewardKind
		body.CashAmount = req.Prize.CashAmount
		body.Currency = req.Prize.Currency
		body.ProductSKU = req.Prize.ProductSKU
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("payout service answered %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
	}

	var reply payoutReply
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &reply); err != nil {
			return nil, fmt.Errorf("invalid payout response: %w", err)
		}
	}

	out := &PayoutResult{Outcome: OutcomeCompleted, ExternalRef: reply.ExternalRef}
	if resp.StatusCode == http.StatusAccepted || reply.Status == "accepted" || reply.Status == "pending" {
		out.Outcome = OutcomePending
	}
	return out, nil
}

func provideExecutor(cfg *config.Config) PayoutExecutor {
	if cfg == nil || cfg.Gamification.PayoutURL == "" {
		return ManualExecutor{}
	}
	return NewHTTPExecutor(cfg.Gamification.PayoutURL, nil)
}
