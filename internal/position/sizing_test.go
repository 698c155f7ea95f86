package position

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"testing/quick"

	"github.com/shopspring/decimal"
)

func TestCalculateEntryQuantity(t *testing.T) {
	tests := []struct {
		name      string
		margin    float64
		leverage  int
		price     float64
		lot       LotConstraints
		want      float64
		wantError bool
		belowMin  bool
	}{
		{
			name:     "정확히 나누어 떨어지는 수량",
			margin:   100,
			leverage: 5,
			price:    50,
			lot:      LotConstraints{StepSize: 0.1, MinQuantity: 0.1, Precision: 1},
			want:     10.0,
		},
		{
			name:     "가장 가까운 스텝으로 내림",
			margin:   100,
			leverage: 5,
			price:    37,
			lot:      LotConstraints{StepSize: 0.1, MinQuantity: 0.1, Precision: 1},
			want:     13.5, // 500/37 = 13.5135...
		},
		{
			name:     "가장 가까운 스텝으로 올림",
			margin:   100,
			leverage: 5,
			price:    36.9,
			lot:      LotConstraints{StepSize: 0.1, MinQuantity: 0.1, Precision: 1},
			want:     13.6, // 500/36.9 = 13.5501...
		},
		{
			name:     "정수 스텝",
			margin:   60,
			leverage: 10,
			price:    7,
			lot:      LotConstraints{StepSize: 1, MinQuantity: 1, Precision: 0},
			want:     86, // 600/7 = 85.71...
		},
		{
			name:      "최소 수량 미달은 거부",
			margin:    1,
			leverage:  1,
			price:     100,
			lot:       LotConstraints{StepSize: 0.1, MinQuantity: 0.1, Precision: 1},
			wantError: true,
			belowMin:  true,
		},
		{
			name:      "가격이 0이면 에러",
			margin:    100,
			leverage:  5,
			price:     0,
			lot:       LotConstraints{StepSize: 0.1, MinQuantity: 0.1, Precision: 1},
			wantError: true,
		},
		{
			name:      "스텝이 0이면 에러",
			margin:    100,
			leverage:  5,
			price:     50,
			lot:       LotConstraints{StepSize: 0, MinQuantity: 0.1, Precision: 1},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateEntryQuantity(tt.margin, tt.leverage, tt.price, tt.lot)

			if tt.wantError {
				if err == nil {
					t.Fatalf("CalculateEntryQuantity() = %g, want error", got)
				}
				if tt.belowMin && !errors.Is(err, ErrQuantityBelowMin) {
					t.Errorf("error = %v, want ErrQuantityBelowMin", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("CalculateEntryQuantity() 실패: %v", err)
			}
			if got != tt.want {
				t.Errorf("CalculateEntryQuantity() = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestCalculateHalfCloseQuantity(t *testing.T) {
	tests := []struct {
		name        string
		positionQty float64
		lot         LotConstraints
		want        float64
		wantReject  bool
	}{
		{
			name:        "절반이 스텝에 맞는 경우",
			positionQty: 1.0,
			lot:         LotConstraints{StepSize: 0.1, MinQuantity: 0.1, Precision: 1},
			want:        0.5,
		},
		{
			name:        "절반은 반올림이 아니라 내림",
			positionQty: 0.39,
			lot:         LotConstraints{StepSize: 0.1, MinQuantity: 0.1, Precision: 1},
			want:        0.1, // 0.195 → 내림 0.1
		},
		{
			name:        "숏 포지션은 절댓값으로 계산",
			positionQty: -3,
			lot:         LotConstraints{StepSize: 1, MinQuantity: 1, Precision: 0},
			want:        1, // 1.5 → 내림 1
		},
		{
			name:        "절반이 최소 수량 미만이면 거부",
			positionQty: 0.15,
			lot:         LotConstraints{StepSize: 0.1, MinQuantity: 0.1, Precision: 1},
			wantReject:  true, // 0.075 → 내림 0 < 0.1
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateHalfCloseQuantity(tt.positionQty, tt.lot)

			if tt.wantReject {
				if !errors.Is(err, ErrQuantityBelowMin) {
					t.Errorf("error = %v, want ErrQuantityBelowMin", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("CalculateHalfCloseQuantity() 실패: %v", err)
			}
			if got != tt.want {
				t.Errorf("CalculateHalfCloseQuantity() = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestRoundPrice(t *testing.T) {
	tests := []struct {
		name      string
		price     float64
		precision int
		want      float64
	}{
		{"소수 둘째 자리 반올림", 96.903, 2, 96.9},
		{"정수 반올림", 96.903, 0, 97},
		{"반올림으로 올라가는 경우", 0.12345, 4, 0.1235},
		{"저가 0.999배 손절가", 97 * 0.999, 2, 96.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoundPrice(tt.price, tt.precision); got != tt.want {
				t.Errorf("RoundPrice(%g, %d) = %g, want %g", tt.price, tt.precision, got, tt.want)
			}
		})
	}
}

func TestFormatQuantity(t *testing.T) {
	tests := []struct {
		name      string
		quantity  float64
		precision int
		want      string
	}{
		{"소수점 이하 불필요한 0 제거", 10.0, 3, "10"},
		{"유효 소수는 유지", 13.5, 1, "13.5"},
		{"정밀도 초과 자릿수는 버림", 0.123456, 3, "0.123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatQuantity(tt.quantity, tt.precision); got != tt.want {
				t.Errorf("FormatQuantity(%g, %d) = %q, want %q", tt.quantity, tt.precision, got, tt.want)
			}
		})
	}
}

// TestEntryQuantityProperty는 임의 입력에 대해 수량 계산의 불변식을 검증합니다:
// 결과는 거부되거나, 스텝 크기의 정확한 배수이면서 최소 수량 이상이어야 합니다.
func TestEntryQuantityProperty(t *testing.T) {
	steps := []struct {
		size      float64
		precision int
	}{
		{0.001, 3},
		{0.01, 2},
		{0.1, 1},
		{1, 0},
	}

	property := func(marginRaw, priceRaw float64, leverageRaw, stepIdx uint8) bool {
		// 입력을 현실적인 범위로 접어 넣습니다
		margin := 1 + math.Mod(math.Abs(marginRaw), 1e5)
		price := 0.01 + math.Mod(math.Abs(priceRaw), 1e5)
		if math.IsNaN(margin) || math.IsNaN(price) {
			return true
		}
		leverage := 1 + int(leverageRaw)%125
		step := steps[int(stepIdx)%len(steps)]

		lot := LotConstraints{StepSize: step.size, MinQuantity: step.size, Precision: step.precision}
		quantity, err := CalculateEntryQuantity(margin, leverage, price, lot)
		if err != nil {
			// 거부는 허용된 결과
			return errors.Is(err, ErrQuantityBelowMin)
		}

		q := decimal.NewFromFloat(quantity)
		stepDec := decimal.NewFromFloat(step.size)

		if !q.Mod(stepDec).IsZero() {
			t.Logf("스텝 배수 위반: 수량 %s, 스텝 %s", q.String(), stepDec.String())
			return false
		}
		if q.LessThan(decimal.NewFromFloat(lot.MinQuantity)) {
			t.Logf("최소 수량 위반: 수량 %s, 최소 %g", q.String(), lot.MinQuantity)
			return false
		}
		return true
	}

	config := &quick.Config{
		MaxCount: 2000,
		Rand:     rand.New(rand.NewSource(42)),
	}
	if err := quick.Check(property, config); err != nil {
		t.Errorf("수량 계산 불변식 위반: %v", err)
	}
}
