package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"settlement-service/internal/models"
	"settlement-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultTossConfirmURL is the production confirm endpoint.
const DefaultTossConfirmURL = "https://api.tosspayments.com/v1/payments/confirm"

// TossConfig holds the static routing data of the Toss adapter
type TossConfig struct {
	SecretKey  string
	ConfirmURL string
	// MaxAmount is the largest amount routed to Toss.
	MaxAmount decimal.Decimal
}

// TossAdapter confirms payments through the Toss Payments HTTP API
type TossAdapter struct {
	cfg        TossConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTossAdapter creates a Toss adapter. httpClient may be nil.
func NewTossAdapter(cfg TossConfig, httpClient *http.Client) *TossAdapter {
	if cfg.ConfirmURL == "" {
		cfg.ConfirmURL = DefaultTossConfirmURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &TossAdapter{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     util.GetLogger(),
	}
}

type tossConfirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

type tossConfirmResponse struct {
	PaymentKey  string          `json:"paymentKey"`
	OrderID     string          `json:"orderId"`
	Status      string          `json:"status"`
	ApprovedAt  string          `json:"approvedAt"`
	Method      string          `json:"method"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

type tossErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Name returns the provider identifier
func (a *TossAdapter) Name() string {
	return models.ProviderToss
}

// Supports matches normal Toss settlements up to the configured amount
func (a *TossAdapter) Supports(sc SettlementContext) bool {
	return sc.Provider == models.ProviderToss &&
		sc.Type == models.SettlementTypeNormal &&
		sc.Amount.LessThanOrEqual(a.cfg.MaxAmount)
}

// Confirm sends one confirm request
func (a *TossAdapter) Confirm(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(tossConfirmRequest{
		PaymentKey: req.PaymentKey,
		OrderID:    req.OrderNo,
		Amount:     req.Amount.IntPart(),
	})
	if err != nil {
		return nil, Rejected(0, fmt.Sprintf("failed to encode request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.ConfirmURL, bytes.NewReader(payload))
	if err != nil {
		return nil, Rejected(0, fmt.Sprintf("failed to build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(a.cfg.SecretKey+":")))

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if Classify(err) == KindTimeout {
			return nil, Timeout("toss did not respond in time", err)
		}
		return nil, Retryable(0, "toss unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if Classify(err) == KindTimeout {
			return nil, Timeout("toss response read timed out", err)
		}
		return nil, Retryable(resp.StatusCode, "failed to read toss response", err)
	}

	switch {
	case resp.StatusCode == http.StatusRequestTimeout:
		return nil, Timeout(errorReason(body, "toss request timeout"), nil)
	case resp.StatusCode >= 500:
		return nil, Retryable(resp.StatusCode, errorReason(body, "toss server error"), nil)
	case resp.StatusCode >= 400:
		return nil, Rejected(resp.StatusCode, errorReason(body, "toss rejected the payment"))
	}

	var confirmed tossConfirmResponse
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, Rejected(resp.StatusCode, "toss returned an empty body")
	}
	if err := json.Unmarshal(body, &confirmed); err != nil {
		return nil, Rejected(resp.StatusCode, fmt.Sprintf("undecodable toss response: %v", err))
	}

	approvedAt := time.Now().UTC()
	if confirmed.ApprovedAt != "" {
		if ts, err := time.Parse(time.RFC3339, confirmed.ApprovedAt); err == nil {
			approvedAt = ts
		} else {
			a.logger.Warn("Unparseable approvedAt from toss",
				zap.String("order_no", req.OrderNo),
				zap.String("approved_at", confirmed.ApprovedAt))
		}
	}

	return &Result{
		GatewayTxID: confirmed.PaymentKey,
		Amount:      confirmed.TotalAmount,
		ApprovedAt:  approvedAt,
		Method:      confirmed.Method,
		Provider:    models.ProviderToss,
	}, nil
}

func errorReason(body []byte, fallback string) string {
	var tossErr tossErrorResponse
	if err := json.Unmarshal(body, &tossErr); err == nil && tossErr.Message != "" {
		if tossErr.Code != "" {
			return fmt.Sprintf("%s: %s", tossErr.Code, tossErr.Message)
		}
		return tossErr.Message
	}
	return fallback
}
