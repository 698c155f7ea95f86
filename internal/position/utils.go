package position

import (
	"github.com/assist-by/halcyon/internal/domain"
)

// GetPositionSideFromSignal은 시그널 타입에 따른 포지션 사이드를 반환합니다
func GetPositionSideFromSignal(signalType domain.SignalType) domain.PositionSide {
	if signalType == domain.Long {
		return domain.LongPosition
	}
	return domain.ShortPosition
}

// GetOrderSideForEntry는 포지션 진입을 위한 주문 사이드를 반환합니다
func GetOrderSideForEntry(positionSide domain.PositionSide) domain.OrderSide {
	if positionSide == domain.LongPosition {
		return domain.Buy
	}
	return domain.Sell
}

// GetOrderSideForExit는 포지션 청산을 위한 주문 사이드를 반환합니다
func GetOrderSideForExit(positionSide domain.PositionSide) domain.OrderSide {
	if positionSide == domain.LongPosition {
		return domain.Sell
	}
	return domain.Buy
}

// ExitSideForPosition은 보유 포지션을 줄이는 방향의 주문 사이드를 반환합니다
func ExitSideForPosition(pos domain.Position) domain.OrderSide {
	if pos.IsLong() {
		return GetOrderSideForExit(domain.LongPosition)
	}
	return GetOrderSideForExit(domain.ShortPosition)
}
