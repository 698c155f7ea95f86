package signal

import (
	"errors"
	"fmt"
	"math"

	"github.com/assist-by/halcyon/internal/domain"
	"github.com/assist-by/halcyon/internal/indicator"
)

// ErrInsufficientData는 지표 계산에 필요한 캔들이 부족할 때 반환됩니다
var ErrInsufficientData = errors.New("캔들 데이터가 부족합니다")

// 이동평균 기간. 긴 쪽이 스냅샷 구성에 필요한 최소 캔들 수를 결정합니다.
const (
	shortMAPeriod = 20
	longMAPeriod  = 60
)

// Config는 진입 시그널 평가 기준을 정의합니다
type Config struct {
	MinPriceChangePct float64 // 캔들 상승률 하한 (기본값: 1.0)
	MaxPriceChangePct float64 // 캔들 상승률 상한 (기본값: 4.0)
	MaxOpenLowPct     float64 // 시가 대비 저가 이탈 허용치 (기본값: 4.0)
	MaxAboveMAPct     float64 // 이동평균 이격 상한 (기본값: 11.0)
}

// DefaultConfig는 기본 평가 기준을 반환합니다
func DefaultConfig() Config {
	return Config{
		MinPriceChangePct: 1.0,
		MaxPriceChangePct: 4.0,
		MaxOpenLowPct:     4.0,
		MaxAboveMAPct:     11.0,
	}
}

// Engine은 완성된 캔들 하나와 이동평균 두 개로 진입 조건을 평가합니다
type Engine struct {
	config Config
}

// NewEngine은 새로운 시그널 엔진을 생성합니다
func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

// Snapshot은 시그널 평가에 필요한 최근 캔들과 이동평균 묶음입니다
type Snapshot struct {
	Symbol string
	Candle domain.Candle
	MA20   float64
	MA60   float64
}

// BuildSnapshot은 캔들 목록에서 평가용 스냅샷을 구성합니다.
// 이동평균을 채울 수 없으면 스냅샷 대신 ErrInsufficientData를 반환합니다.
func BuildSnapshot(symbol string, candles domain.CandleList) (*Snapshot, error) {
	if len(candles) < longMAPeriod {
		return nil, fmt.Errorf("%w: 필요 %d, 현재 %d", ErrInsufficientData, longMAPeriod, len(candles))
	}

	prices := indicator.ConvertCandlesToPriceData(candles)

	ma20, err := indicator.SMA(prices, indicator.SMAOption{Period: shortMAPeriod})
	if err != nil {
		return nil, fmt.Errorf("MA%d 계산 실패: %w", shortMAPeriod, err)
	}

	ma60, err := indicator.SMA(prices, indicator.SMAOption{Period: longMAPeriod})
	if err != nil {
		return nil, fmt.Errorf("MA%d 계산 실패: %w", longMAPeriod, err)
	}

	return &Snapshot{
		Symbol: symbol,
		Candle: candles[len(candles)-1],
		MA20:   ma20[len(ma20)-1].Value,
		MA60:   ma60[len(ma60)-1].Value,
	}, nil
}

// Detect는 캔들 목록에서 바로 시그널을 평가합니다
func (e *Engine) Detect(symbol string, candles domain.CandleList) (*domain.Signal, error) {
	snapshot, err := BuildSnapshot(symbol, candles)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(snapshot), nil
}

// Evaluate는 스냅샷으로 진입 조건을 평가합니다.
// 조건: 상승률이 [하한, 상한) 구간이고, 종가가 두 이동평균 위에 있으며,
// 시가 대비 저가 이탈이 허용치 안이고, 이동평균 이격이 (0, 상한) 구간이어야 합니다.
func (e *Engine) Evaluate(snapshot *Snapshot) *domain.Signal {
	c := snapshot.Candle

	signal := &domain.Signal{
		Type:      domain.NoSignal,
		Symbol:    snapshot.Symbol,
		Price:     c.Close,
		Timestamp: c.OpenTime,
	}

	if c.Open <= 0 || snapshot.MA20 <= 0 || snapshot.MA60 <= 0 {
		return signal
	}

	priceChangePct := (c.Close - c.Open) / c.Open * 100
	openLowPct := (c.Open - c.Low) / c.Open * 100
	maxMA := math.Max(snapshot.MA20, snapshot.MA60)
	aboveMAPct := (c.Close - maxMA) / maxMA * 100

	signal.Conditions = domain.SignalConditions{
		PriceChangePct: priceChangePct,
		OpenLowPct:     openLowPct,
		AboveMAPct:     aboveMAPct,
		MA20:           snapshot.MA20,
		MA60:           snapshot.MA60,

		RiseInRange:  priceChangePct >= e.config.MinPriceChangePct && priceChangePct < e.config.MaxPriceChangePct,
		CloseAboveMA: c.Close > snapshot.MA20 && c.Close > snapshot.MA60,
		ShallowLow:   math.Abs(openLowPct) < e.config.MaxOpenLowPct,
		GapInRange:   aboveMAPct > 0 && aboveMAPct < e.config.MaxAboveMAPct,
	}

	cond := signal.Conditions
	if cond.RiseInRange && cond.CloseAboveMA && cond.ShallowLow && cond.GapInRange {
		signal.Type = domain.Long
	}

	return signal
}
