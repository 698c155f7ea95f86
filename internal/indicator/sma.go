package indicator

import "fmt"

// SMAOption은 단순이동평균 계산에 필요한 옵션을 정의합니다
type SMAOption struct {
	Period int // 기간
}

// ValidateSMAOption은 SMA 옵션을 검증합니다
func ValidateSMAOption(opt SMAOption) error {
	if opt.Period < 1 {
		return &ValidationError{
			Field: "Period",
			Err:   fmt.Errorf("기간은 1 이상이어야 합니다: %d", opt.Period),
		}
	}
	return nil
}

// SMA는 단순이동평균을 계산합니다.
// 결과 슬라이스는 입력과 같은 길이이며, Period-1 이전 인덱스는 빈 값입니다.
func SMA(prices []PriceData, opt SMAOption) ([]Result, error) {
	if err := ValidateSMAOption(opt); err != nil {
		return nil, err
	}

	if len(prices) == 0 {
		return nil, &ValidationError{
			Field: "prices",
			Err:   fmt.Errorf("가격 데이터가 비어있습니다"),
		}
	}

	if len(prices) < opt.Period {
		return nil, &ValidationError{
			Field: "prices",
			Err:   fmt.Errorf("가격 데이터가 부족합니다. 필요: %d, 현재: %d", opt.Period, len(prices)),
		}
	}

	results := make([]Result, len(prices))

	// 슬라이딩 윈도우 합으로 계산
	var sum float64
	for i, p := range prices {
		sum += p.Close
		if i >= opt.Period {
			sum -= prices[i-opt.Period].Close
		}
		if i >= opt.Period-1 {
			results[i] = Result{
				Value:     sum / float64(opt.Period),
				Timestamp: p.Time,
			}
		}
	}

	return results, nil
}
