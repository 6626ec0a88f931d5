package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/taskhive/task-marketplace/settlement-service/internal/models"
	"github.com/taskhive/task-marketplace/settlement-service/internal/telemetry"
)

// HTTPGateway talks to the processor's REST API. The idempotency token rides
// in the Idempotency-Key header, the convention processors dedupe on.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type chargePayload struct {
	Amount   string            `json:"amount"`
	Method   string            `json:"method"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type refundPayload struct {
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
}

type gatewayResponse struct {
	Approved      bool   `json:"approved"`
	TransactionID string `json:"transaction_id"`
	Details       string `json:"details"`
}

func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	resp, err := g.post(ctx, "/v1/charges", req.IdempotencyKey, chargePayload{
		Amount:   req.Amount.StringFixed(2),
		Method:   req.Method,
		Metadata: req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return &ChargeResult{
		Approved:      resp.Approved,
		TransactionID: resp.TransactionID,
		Details:       resp.Details,
	}, nil
}

func (g *HTTPGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	resp, err := g.post(ctx, "/v1/refunds", req.IdempotencyKey, refundPayload{
		TransactionID: req.TransactionID,
		Amount:        req.Amount.StringFixed(2),
	})
	if err != nil {
		return nil, err
	}
	return &RefundResult{
		Approved: resp.Approved,
		RefundID: resp.TransactionID,
		Details:  resp.Details,
	}, nil
}

func (g *HTTPGateway) post(ctx context.Context, path, idempotencyKey string, payload interface{}) (*gatewayResponse, error) {
	ctx, span := otel.Tracer(telemetry.ServiceName).Start(ctx, "gateway"+path)
	defer span.End()
	span.SetAttributes(attribute.String("gateway.idempotency_key", idempotencyKey))

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		// Transport errors and timeouts are unknown outcomes: the processor
		// may have applied the charge. Callers must reconcile via the
		// idempotency key, never retry blindly.
		return nil, fmt.Errorf("%w: %v", models.ErrGatewayTimeout, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: processor returned %d", models.ErrGatewayTimeout, httpResp.StatusCode)
	}

	var resp gatewayResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding gateway response: %w", err)
	}
	return &resp, nil
}
