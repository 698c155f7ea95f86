package position

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// LotConstraints는 수량 계산에 필요한 심볼의 로트 제약입니다
type LotConstraints struct {
	StepSize    float64 // 수량 최소 단위
	MinQuantity float64 // 최소 주문 수량
	Precision   int     // 수량 소수 자릿수
}

// CalculateEntryQuantity는 진입 주문 수량을 계산합니다.
// 증거금 × 레버리지 ÷ 가격을 스텝 크기의 가장 가까운 배수로 맞추고,
// 최소 주문 수량 미만이면 거부합니다.
func CalculateEntryQuantity(marginAmount float64, leverage int, price float64, lot LotConstraints) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("가격이 유효하지 않습니다: %g", price)
	}
	if lot.StepSize <= 0 {
		return 0, fmt.Errorf("스텝 크기가 유효하지 않습니다: %g", lot.StepSize)
	}

	raw := decimal.NewFromFloat(marginAmount).
		Mul(decimal.NewFromInt(int64(leverage))).
		Div(decimal.NewFromFloat(price))

	step := decimal.NewFromFloat(lot.StepSize)
	quantity := raw.Div(step).Round(0).Mul(step)

	minQty := decimal.NewFromFloat(lot.MinQuantity)
	if quantity.LessThan(minQty) {
		return 0, fmt.Errorf("%w: 계산 수량 %s, 최소 수량 %s",
			ErrQuantityBelowMin, quantity.String(), minQty.String())
	}

	return quantity.Truncate(int32(lot.Precision)).InexactFloat64(), nil
}

// CalculateHalfCloseQuantity는 부분 익절용 절반 청산 수량을 계산합니다.
// 포지션 절반을 스텝 크기의 배수로 내림하며, 최소 주문 수량 미만이면 거부합니다.
func CalculateHalfCloseQuantity(positionQuantity float64, lot LotConstraints) (float64, error) {
	if lot.StepSize <= 0 {
		return 0, fmt.Errorf("스텝 크기가 유효하지 않습니다: %g", lot.StepSize)
	}

	half := decimal.NewFromFloat(math.Abs(positionQuantity)).
		Div(decimal.NewFromInt(2))

	step := decimal.NewFromFloat(lot.StepSize)
	quantity := half.Div(step).Floor().Mul(step)

	minQty := decimal.NewFromFloat(lot.MinQuantity)
	if quantity.LessThan(minQty) {
		return 0, fmt.Errorf("%w: 계산 수량 %s, 최소 수량 %s",
			ErrQuantityBelowMin, quantity.String(), minQty.String())
	}

	return quantity.Truncate(int32(lot.Precision)).InexactFloat64(), nil
}

// RoundPrice는 가격을 심볼의 가격 소수 자릿수로 반올림합니다
func RoundPrice(price float64, precision int) float64 {
	return decimal.NewFromFloat(price).Round(int32(precision)).InexactFloat64()
}

// FormatQuantity는 수량을 불필요한 0 없이 문자열로 포맷합니다
func FormatQuantity(quantity float64, precision int) string {
	return decimal.NewFromFloat(quantity).Truncate(int32(precision)).String()
}
