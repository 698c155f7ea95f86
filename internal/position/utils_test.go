package position

import (
	"testing"

	"github.com/assist-by/halcyon/internal/domain"
)

func TestGetPositionSideFromSignal(t *testing.T) {
	tests := []struct {
		name       string
		signalType domain.SignalType
		want       domain.PositionSide
	}{
		{
			name:       "롱 시그널은 롱 포지션",
			signalType: domain.Long,
			want:       domain.LongPosition,
		},
		{
			name:       "숏 시그널은 숏 포지션",
			signalType: domain.Short,
			want:       domain.ShortPosition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetPositionSideFromSignal(tt.signalType); got != tt.want {
				t.Errorf("GetPositionSideFromSignal(%v) = %v, want %v", tt.signalType, got, tt.want)
			}
		})
	}
}

func TestOrderSideMapping(t *testing.T) {
	tests := []struct {
		name         string
		positionSide domain.PositionSide
		wantEntry    domain.OrderSide
		wantExit     domain.OrderSide
	}{
		{
			name:         "롱 포지션은 매수로 진입, 매도로 청산",
			positionSide: domain.LongPosition,
			wantEntry:    domain.Buy,
			wantExit:     domain.Sell,
		},
		{
			name:         "숏 포지션은 매도로 진입, 매수로 청산",
			positionSide: domain.ShortPosition,
			wantEntry:    domain.Sell,
			wantExit:     domain.Buy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetOrderSideForEntry(tt.positionSide); got != tt.wantEntry {
				t.Errorf("GetOrderSideForEntry(%v) = %v, want %v", tt.positionSide, got, tt.wantEntry)
			}
			if got := GetOrderSideForExit(tt.positionSide); got != tt.wantExit {
				t.Errorf("GetOrderSideForExit(%v) = %v, want %v", tt.positionSide, got, tt.wantExit)
			}
		})
	}
}

func TestExitSideForPosition(t *testing.T) {
	tests := []struct {
		name     string
		quantity float64
		want     domain.OrderSide
	}{
		{
			name:     "롱 포지션은 매도로 축소",
			quantity: 2.5,
			want:     domain.Sell,
		},
		{
			name:     "숏 포지션은 매수로 축소",
			quantity: -2.5,
			want:     domain.Buy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := domain.Position{
				Symbol:   "BTCUSDT",
				Quantity: tt.quantity,
			}
			if got := ExitSideForPosition(pos); got != tt.want {
				t.Errorf("ExitSideForPosition(수량 %g) = %v, want %v", tt.quantity, got, tt.want)
			}
		})
	}
}
