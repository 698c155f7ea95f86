package indicator

import (
	"math"
	"testing"
	"time"
)

// 테스트용 가격 데이터 생성
func generateTestPrices(closes []float64) []PriceData {
	baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	prices := make([]PriceData, len(closes))
	for i, close := range closes {
		prices[i] = PriceData{
			Time:   baseTime.Add(time.Duration(i) * time.Hour),
			Open:   close,
			High:   close,
			Low:    close,
			Close:  close,
			Volume: 1000,
		}
	}
	return prices
}

func almostEqual(a, b float64) bool {
	const epsilon = 0.0001
	return math.Abs(a-b) < epsilon
}

func TestSMA(t *testing.T) {
	tests := []struct {
		name      string
		closes    []float64
		period    int
		wantLast  float64
		wantError bool
	}{
		{
			name:     "기간 3의 단순이동평균",
			closes:   []float64{1, 2, 3, 4, 5},
			period:   3,
			wantLast: 4, // (3+4+5)/3
		},
		{
			name:     "기간이 데이터 길이와 같은 경우",
			closes:   []float64{10, 20, 30},
			period:   3,
			wantLast: 20,
		},
		{
			name:     "일정한 가격이면 평균도 그 가격",
			closes:   []float64{100, 100, 100, 100},
			period:   2,
			wantLast: 100,
		},
		{
			name:      "데이터 부족",
			closes:    []float64{1, 2},
			period:    3,
			wantError: true,
		},
		{
			name:      "빈 데이터",
			closes:    nil,
			period:    3,
			wantError: true,
		},
		{
			name:      "유효하지 않은 기간",
			closes:    []float64{1, 2, 3},
			period:    0,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := SMA(generateTestPrices(tt.closes), SMAOption{Period: tt.period})

			if (err != nil) != tt.wantError {
				t.Errorf("SMA() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if tt.wantError {
				return
			}

			if len(results) != len(tt.closes) {
				t.Errorf("결과 길이 = %d, want %d", len(results), len(tt.closes))
				return
			}

			last := results[len(results)-1]
			if !almostEqual(last.Value, tt.wantLast) {
				t.Errorf("마지막 SMA 값 = %.4f, want %.4f", last.Value, tt.wantLast)
			}
		})
	}
}

// TestSMAWindow는 전체 구간의 값이 슬라이딩 윈도우 평균과 일치하는지 확인합니다
func TestSMAWindow(t *testing.T) {
	closes := []float64{2, 4, 6, 8, 10, 12, 14}
	period := 4

	results, err := SMA(generateTestPrices(closes), SMAOption{Period: period})
	if err != nil {
		t.Fatalf("SMA() 계산 중 에러 발생: %v", err)
	}

	for i := range closes {
		if i < period-1 {
			// 윈도우가 차기 전에는 빈 값이어야 함
			if results[i].Value != 0 {
				t.Errorf("인덱스 %d: 윈도우 미달 구간의 값 = %.4f, want 0", i, results[i].Value)
			}
			continue
		}

		var sum float64
		for j := i - period + 1; j <= i; j++ {
			sum += closes[j]
		}
		want := sum / float64(period)
		if !almostEqual(results[i].Value, want) {
			t.Errorf("인덱스 %d: SMA 값 = %.4f, want %.4f", i, results[i].Value, want)
		}
	}
}
