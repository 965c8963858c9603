package gateway

import (
	"testing"

	"settlement-service/internal/apperr"
	"settlement-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSelectReturnsFirstMatchInRegistrationOrder(t *testing.T) {
	first := &mockAdapter{name: "FIRST"}
	second := &mockAdapter{name: "SECOND"}
	first.On("Supports", mock.Anything).Return(true)
	second.On("Supports", mock.Anything).Return(true)

	registry := NewRegistry(first, second)
	adapter, err := registry.Select(SettlementContext{Provider: "ANY"})

	require.NoError(t, err)
	assert.Equal(t, "FIRST", adapter.Name())
	second.AssertNotCalled(t, "Supports", mock.Anything)
}

func TestSelectSkipsNonMatchingAdapters(t *testing.T) {
	first := &mockAdapter{name: "FIRST"}
	second := &mockAdapter{name: "SECOND"}
	first.On("Supports", mock.Anything).Return(false)
	second.On("Supports", mock.Anything).Return(true)

	registry := NewRegistry(first, second)

	adapter, err := registry.Select(SettlementContext{Provider: "ANY"})
	require.NoError(t, err)
	assert.Equal(t, "SECOND", adapter.Name())
	assert.Equal(t, []string{"FIRST", "SECOND"}, registry.Names())
}

func TestSelectFailsWhenNothingMatches(t *testing.T) {
	registry := NewRegistry(NewKakaoFakeAdapter(false))

	_, err := registry.Select(SettlementContext{Provider: models.ProviderKakao, Type: models.SettlementTypeNormal})

	assert.True(t, apperr.Is(err, apperr.CodeNoAdapterFound))
}

func TestBuiltInAdapterRouting(t *testing.T) {
	toss := NewTossAdapter(TossConfig{SecretKey: "sk", MaxAmount: decimal.NewFromInt(100000)}, nil)
	registry := NewRegistry(toss, NewKakaoFakeAdapter(true))

	tests := []struct {
		name    string
		sc      SettlementContext
		want    string
		wantErr bool
	}{
		{"toss normal at limit", SettlementContext{models.ProviderToss, decimal.NewFromInt(100000), models.SettlementTypeNormal}, models.ProviderToss, false},
		{"toss above limit", SettlementContext{models.ProviderToss, decimal.NewFromInt(100001), models.SettlementTypeNormal}, "", true},
		{"toss billing", SettlementContext{models.ProviderToss, decimal.NewFromInt(500), models.SettlementTypeBilling}, "", true},
		{"kakao enabled", SettlementContext{models.ProviderKakao, decimal.NewFromInt(500), models.SettlementTypeNormal}, models.ProviderKakao, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := registry.Select(tt.sc)
			if tt.wantErr {
				assert.True(t, apperr.Is(err, apperr.CodeNoAdapterFound))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, adapter.Name())
		})
	}
}
