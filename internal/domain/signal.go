package domain

import "time"

// SignalConditions는 모멘텀 시그널 발생 조건들의 상세 정보를 저장합니다
type SignalConditions struct {
	PriceChangePct float64 // 시가 대비 종가 상승률 (%)
	OpenLowPct     float64 // 시가 대비 저가 하락폭 (%)
	AboveMAPct     float64 // 이동평균 상단 이격률 (%)
	MA20           float64 // 20기간 이동평균 값
	MA60           float64 // 60기간 이동평균 값

	// 개별 조건 충족 여부
	RiseInRange  bool // 상승률이 허용 범위 안
	CloseAboveMA bool // 종가가 두 이동평균 위
	ShallowLow   bool // 저가 이탈이 허용치 이내
	GapInRange   bool // 이동평균 이격이 허용 범위 안
}

// Signal은 생성된 시그널 정보를 담습니다
type Signal struct {
	Type       SignalType       // 시그널 유형 (Long 등)
	Symbol     string           // 심볼 (예: BTCUSDT)
	Price      float64          // 시그널 캔들의 종가
	Timestamp  time.Time        // 시그널 생성 시간
	Conditions SignalConditions // 시그널 발생 조건 상세
}

// IsValid는 시그널이 유효한지 확인합니다
func (s *Signal) IsValid() bool {
	return s.Type != NoSignal && s.Symbol != "" && s.Price > 0
}

// IsLong은 시그널이 롱 포지션인지 확인합니다
func (s *Signal) IsLong() bool {
	return s.Type == Long
}
