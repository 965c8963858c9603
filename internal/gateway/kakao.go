package gateway

import (
	"context"
	"time"

	"settlement-service/internal/models"
	"settlement-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KakaoFakeAdapter approves Kakao payments locally without any network call.
// It only matches when enabled, which is meant for development environments.
type KakaoFakeAdapter struct {
	enabled bool
	logger  *zap.Logger
}

// NewKakaoFakeAdapter creates the fake adapter
func NewKakaoFakeAdapter(enabled bool) *KakaoFakeAdapter {
	return &KakaoFakeAdapter{
		enabled: enabled,
		logger:  util.GetLogger(),
	}
}

// Name returns the provider identifier
func (a *KakaoFakeAdapter) Name() string {
	return models.ProviderKakao
}

// Supports matches Kakao requests when enabled
func (a *KakaoFakeAdapter) Supports(sc SettlementContext) bool {
	return a.enabled && sc.Provider == models.ProviderKakao
}

// Confirm returns a synthetic approval
func (a *KakaoFakeAdapter) Confirm(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, Timeout("context done before fake confirm", err)
	}

	a.logger.Info("Fake kakao confirm", zap.String("order_no", req.OrderNo))

	return &Result{
		GatewayTxID: "KAKAO-" + uuid.New().String(),
		Amount:      req.Amount,
		ApprovedAt:  time.Now().UTC(),
		Method:      "KAKAOPAY",
		Provider:    models.ProviderKakao,
	}, nil
}
