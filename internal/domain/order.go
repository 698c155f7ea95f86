package domain

import "time"

// OrderRequest는 주문 요청 정보를 표현합니다
type OrderRequest struct {
	Symbol        string       // 심볼 (예: BTCUSDT)
	Side          OrderSide    // 매수/매도
	PositionSide  PositionSide // 롱/숏 포지션
	Type          OrderType    // 주문 유형 (시장가, 스탑 등)
	Quantity      float64      // 수량
	Price         float64      // 지정가 (Limit 주문 시)
	StopPrice     float64      // 스탑 트리거 가격 (Stop 주문 시)
	ReduceOnly    bool         // 포지션 축소 전용 주문 여부
	ClosePosition bool         // 전량 청산 주문 여부 (STOP_MARKET 전용, 수량 불필요)
	TimeInForce   string       // 주문 유효 기간 (GTC, IOC 등)
	ClientOrderID string       // 클라이언트 측 주문 ID
}

// OrderResponse는 주문 응답을 표현합니다
type OrderResponse struct {
	OrderID          int64        // 주문 ID
	Symbol           string       // 심볼
	Status           string       // 주문 상태 (NEW, FILLED 등)
	ClientOrderID    string       // 클라이언트 측 주문 ID
	Price            float64      // 주문 가격
	AvgPrice         float64      // 평균 체결 가격
	StopPrice        float64      // 스탑 트리거 가격
	OrigQuantity     float64      // 원래 주문 수량
	ExecutedQuantity float64      // 체결된 수량
	Side             OrderSide    // 매수/매도
	PositionSide     PositionSide // 롱/숏 포지션
	Type             OrderType    // 주문 유형
	ReduceOnly       bool         // 포지션 축소 전용 주문 여부
	ClosePosition    bool         // 전량 청산 주문 여부
	CreateTime       time.Time    // 주문 생성 시간
}

// IsProtective는 보호 주문(스탑 또는 축소 전용)인지 확인합니다
func (o *OrderResponse) IsProtective() bool {
	return o.Type == StopMarket || o.ReduceOnly
}

// Position은 포지션 정보를 표현합니다
type Position struct {
	Symbol        string       // 심볼 (예: BTCUSDT)
	PositionSide  PositionSide // 롱/숏 포지션
	Quantity      float64      // 포지션 수량 (양수: 롱, 음수: 숏)
	EntryPrice    float64      // 평균 진입가
	Leverage      int          // 레버리지
	MarkPrice     float64      // 마크 가격
	UnrealizedPnL float64      // 미실현 손익
}

// IsLong은 롱 포지션인지 확인합니다
func (p *Position) IsLong() bool {
	return p.Quantity > 0
}

// SymbolInfo는 심볼의 거래 정보를 나타냅니다
type SymbolInfo struct {
	Symbol            string  // 심볼 이름 (예: BTCUSDT)
	Status            string  // 거래 상태 (TRADING이면 거래 가능)
	StepSize          float64 // 수량 최소 단위 (예: 0.001 BTC)
	MinQuantity       float64 // 최소 주문 수량
	TickSize          float64 // 가격 최소 단위 (예: 0.01 USDT)
	MinNotional       float64 // 최소 주문 가치 (예: 10 USDT)
	PricePrecision    int     // 가격 소수점 자릿수
	QuantityPrecision int     // 수량 소수점 자릿수
}

// IsTradable은 심볼이 거래 가능한 상태인지 확인합니다
func (s *SymbolInfo) IsTradable() bool {
	return s.Status == SymbolStatusTrading
}

// SymbolTicker는 24시간 티커 스냅샷의 항목을 표현합니다.
// 숫자 필드는 거래소가 보내는 문자열 그대로 유지하고,
// 파싱은 소비하는 쪽에서 항목 단위로 수행합니다.
type SymbolTicker struct {
	Symbol             string // 심볼 (예: BTCUSDT)
	PriceChangePercent string // 24시간 등락률 (%)
	LastPrice          string // 최종 체결가
	QuoteVolume        string // 24시간 거래대금 (견적 자산 기준)
}
