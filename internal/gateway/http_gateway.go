package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultCallTimeout = 15 * time.Second

type httpGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPGateway builds a gateway client with a bounded per-call timeout so
// one slow destination can never block a whole batch.
func NewHTTPGateway(baseURL, apiKey string, callTimeout time.Duration, logger ...*zap.Logger) Gateway {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	l := zap.L().Named("gateway.http")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("gateway.http")
	}
	return &httpGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: callTimeout},
		logger:  l,
	}
}

type sendPayload struct {
	Destination string          `json:"destination"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

type sendResponse struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

func (g *httpGateway) Send(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(sendPayload{
		Destination: req.Destination,
		Amount:      req.Amount,
		Currency:    req.Currency,
	})
	if err != nil {
		return Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/payouts", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	// The provider dedupes on this header; it must be stable per item.
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("disbursement request failed: %w", err)
	}
	defer resp.Body.Close()

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode disbursement response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return Result{}, fmt.Errorf("gateway unavailable: status %d", resp.StatusCode)
	case resp.StatusCode >= 400 || out.Status == "declined":
		reason := out.Reason
		if reason == "" {
			reason = fmt.Sprintf("declined with status %d", resp.StatusCode)
		}
		g.logger.Warn("disbursement declined",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("reason", reason),
		)
		return Result{Declined: true, Reason: reason}, nil
	}

	return Result{Reference: out.Reference}, nil
}
