package position

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/halcyon/internal/domain"
	"github.com/assist-by/halcyon/internal/exchange"
	"github.com/assist-by/halcyon/internal/logger"
	"github.com/assist-by/halcyon/internal/notification"
)

// Manager는 진입 주문과 보호 주문의 생애주기를 관리합니다.
// 심볼마다 최대 하나의 손절 주문 ID를 추적하고, 부분 익절이 발동된
// 심볼을 기억해 같은 포지션에서의 중복 발동을 막습니다.
type Manager struct {
	exchange exchange.Exchange
	notifier notification.Notifier
	log      *logrus.Entry

	stopLossRatio  float64 // 손절 트리거 = 기준 캔들 저가 × 이 비율
	ratchetGainPct float64 // 손절 갱신에 필요한 시간봉 상승률 하한 (%)

	mu         sync.Mutex
	stopOrders map[string]int64    // 심볼 → 추적 중인 손절 주문 ID
	tpMemo     map[string]struct{} // 부분 익절이 이미 발동된 심볼
}

// Option은 매니저 생성 옵션을 정의합니다
type Option func(*Manager)

// WithNotifier는 알림 전송기를 설정합니다
func WithNotifier(notifier notification.Notifier) Option {
	return func(m *Manager) {
		m.notifier = notifier
	}
}

// WithStopLossRatio는 기준 캔들 저가에 곱할 손절 트리거 비율을 설정합니다
func WithStopLossRatio(ratio float64) Option {
	return func(m *Manager) {
		if ratio > 0 {
			m.stopLossRatio = ratio
		}
	}
}

// WithRatchetGain은 손절 갱신에 필요한 시간봉 상승률 하한(%)을 설정합니다
func WithRatchetGain(pct float64) Option {
	return func(m *Manager) {
		m.ratchetGainPct = pct
	}
}

// NewManager는 새로운 포지션 매니저를 생성합니다
func NewManager(ex exchange.Exchange, opts ...Option) *Manager {
	m := &Manager{
		exchange:       ex,
		log:            logger.WithComponent("position"),
		stopLossRatio:  0.999,
		ratchetGainPct: 1.0,
		stopOrders:     make(map[string]int64),
		tpMemo:         make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// ComputeQuantity는 증거금과 레버리지로 로트 규칙에 맞는 진입 수량을 계산합니다.
// 거래소 조회 두 번 외의 부수 효과는 없습니다.
func (m *Manager) ComputeQuantity(ctx context.Context, symbol string, marginAmount float64, leverage int) (float64, error) {
	// 1. 마크 가격 조회
	markPrice, err := m.exchange.GetMarkPrice(ctx, symbol)
	if err != nil {
		return 0, NewPositionError(symbol, "get_mark_price", err)
	}

	// 2. 심볼 로트 제약 조회
	info, err := m.exchange.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return 0, NewPositionError(symbol, "get_symbol_info", fmt.Errorf("%w: %v", ErrMissingSymbolInfo, err))
	}

	// 3. 스텝 크기 반올림과 최소 수량 검증
	quantity, err := CalculateEntryQuantity(marginAmount, leverage, markPrice, LotConstraints{
		StepSize:    info.StepSize,
		MinQuantity: info.MinQuantity,
		Precision:   info.QuantityPrecision,
	})
	if err != nil {
		return 0, NewPositionError(symbol, "calculate_quantity", err)
	}

	m.log.Infof("수량 계산: %s, 증거금 %.2f USDT × %d배 @ %g → %s",
		symbol, marginAmount, leverage, markPrice, FormatQuantity(quantity, info.QuantityPrecision))
	return quantity, nil
}

// PlaceEntry는 레버리지를 설정한 뒤 시장가 진입 주문을 제출합니다.
// 레버리지 설정에 실패하면 주문 없이 중단합니다.
func (m *Manager) PlaceEntry(ctx context.Context, symbol string, side domain.OrderSide, quantity float64, leverage int) (*domain.OrderResponse, error) {
	// 1. 레버리지 설정 (실패 시 진입 중단)
	if err := m.exchange.SetLeverage(ctx, symbol, leverage); err != nil {
		return nil, NewPositionError(symbol, "set_leverage", fmt.Errorf("%w: %v", ErrLeverageSetFail, err))
	}

	// 2. 시장가 진입 주문
	resp, err := m.exchange.PlaceOrder(ctx, domain.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     domain.Market,
		Quantity: quantity,
	})
	if err != nil {
		return nil, NewPositionError(symbol, "place_entry_order", err)
	}

	m.log.Infof("진입 주문 성공: %s %s, 수량 %.8f, 주문 ID %d", symbol, side, quantity, resp.OrderID)
	return resp, nil
}

// SetStopLoss는 기준 캔들 저가 바로 아래로 손절 주문을 재설정하고 트리거
// 가격을 반환합니다. 기존 보호 주문을 먼저 취소한 뒤 새 주문을 제출하므로
// 그 사이 잠깐 보호가 비는 구간이 생깁니다.
func (m *Manager) SetStopLoss(ctx context.Context, symbol string, refCandle domain.Candle) (float64, error) {
	// 1. 포지션 확인
	pos, err := m.findPosition(ctx, symbol)
	if err != nil {
		return 0, err
	}

	// 2. 가격 정밀도 조회
	info, err := m.exchange.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return 0, NewPositionError(symbol, "get_symbol_info", fmt.Errorf("%w: %v", ErrMissingSymbolInfo, err))
	}

	stopPrice := RoundPrice(refCandle.Low*m.stopLossRatio, info.PricePrecision)

	// 3. 기존 보호 주문 취소
	if err := m.CancelProtectiveOrders(ctx, symbol); err != nil {
		return 0, err
	}

	// 4. 포지션 전체를 닫는 손절 주문 제출
	resp, err := m.exchange.PlaceOrder(ctx, domain.OrderRequest{
		Symbol:        symbol,
		Side:          ExitSideForPosition(*pos),
		Type:          domain.StopMarket,
		StopPrice:     stopPrice,
		ClosePosition: true,
	})
	if err != nil {
		return 0, NewPositionError(symbol, "place_stop_loss", err)
	}

	// 5. 심볼당 하나의 손절 주문만 추적
	m.mu.Lock()
	m.stopOrders[symbol] = resp.OrderID
	m.mu.Unlock()

	m.log.Infof("손절 주문 설정: %s @ %g (주문 ID %d)", symbol, stopPrice, resp.OrderID)
	return stopPrice, nil
}

// UpdateStopLoss는 최근 시간봉이 충분히 상승했을 때만 손절가를 끌어올립니다.
// 재설정 후 주문이 접수 상태인지 확인하며, 다른 상태면 실패로 기록만 하고
// 이 호출 안에서 재시도하지 않습니다.
func (m *Manager) UpdateStopLoss(ctx context.Context, symbol string, entryPrice float64) error {
	// 1. 최근 시간봉 조회
	candles, err := m.exchange.GetKlines(ctx, symbol, domain.Interval1h, 2)
	if err != nil {
		return NewPositionError(symbol, "get_klines", err)
	}

	last, ok := candles.GetLastCandle()
	if !ok {
		return NewPositionError(symbol, "get_klines", fmt.Errorf("캔들 데이터가 비어있습니다"))
	}
	gain := last.ChangePercent()

	// 2. 래칫 조건: 상승률이 기준 미만이면 현재 손절 유지
	if gain < m.ratchetGainPct {
		m.log.Debugf("손절 유지: %s 시간봉 상승률 %.2f%% < %.2f%% (진입가 %g)",
			symbol, gain, m.ratchetGainPct, entryPrice)
		return nil
	}

	// 3. 손절가 재설정
	if _, err := m.SetStopLoss(ctx, symbol, last); err != nil {
		return err
	}

	// 4. 접수 상태 확인
	m.mu.Lock()
	orderID, tracked := m.stopOrders[symbol]
	m.mu.Unlock()
	if !tracked {
		return NewPositionError(symbol, "verify_stop_loss", fmt.Errorf("추적 중인 손절 주문이 없습니다"))
	}

	placed, err := m.exchange.GetOrder(ctx, symbol, orderID)
	if err != nil {
		return NewPositionError(symbol, "verify_stop_loss", err)
	}
	if placed.Status != domain.OrderStatusNew {
		m.log.Errorf("손절 주문이 접수 상태가 아닙니다: %s, 주문 ID %d, 상태 %s",
			symbol, orderID, placed.Status)
		return nil
	}

	m.log.Infof("손절 갱신 완료: %s (시간봉 상승률 %.2f%%)", symbol, gain)
	return nil
}

// CancelProtectiveOrders는 심볼의 손절/리듀스온리 주문을 모두 취소합니다.
// 개별 취소 실패는 기록하고 건너뛰며, 목록 조회 자체가 실패하면 추적
// 기록을 유지한 채 에러를 반환합니다.
func (m *Manager) CancelProtectiveOrders(ctx context.Context, symbol string) error {
	orders, err := m.exchange.GetOpenOrders(ctx, symbol)
	if err != nil {
		return NewPositionError(symbol, "list_open_orders", err)
	}

	for _, order := range orders {
		if !order.IsProtective() {
			continue
		}
		if err := m.exchange.CancelOrder(ctx, symbol, order.OrderID); err != nil {
			m.log.Warnf("보호 주문 취소 실패 (건너뜀): %s, 주문 ID %d: %v", symbol, order.OrderID, err)
			continue
		}
		m.log.Infof("보호 주문 취소: %s %s (주문 ID %d)", symbol, order.Type, order.OrderID)
	}

	m.mu.Lock()
	delete(m.stopOrders, symbol)
	m.mu.Unlock()

	return nil
}

// Reconcile은 추적 중인 심볼과 실제 포지션을 대조합니다.
// 포지션이 사라진 심볼은 보호 주문이 체결된 것으로 보고 잔여 주문을
// 정리한 뒤 추적을 해제합니다.
func (m *Manager) Reconcile(ctx context.Context) error {
	positions, err := m.exchange.GetPositions(ctx)
	if err != nil {
		return NewPositionError("", "get_positions", err)
	}

	open := openSymbolSet(positions)

	m.mu.Lock()
	var closed []string
	for symbol := range m.stopOrders {
		if !open[symbol] {
			closed = append(closed, symbol)
		}
	}
	m.mu.Unlock()

	for _, symbol := range closed {
		m.log.Infof("포지션 종료 감지: %s, 잔여 보호 주문 정리", symbol)
		if err := m.CancelProtectiveOrders(ctx, symbol); err != nil {
			m.log.Warnf("잔여 주문 정리 실패: %v", err)
		}
	}

	// 전량 청산이 관측된 심볼은 부분 익절 기록도 초기화합니다
	m.SyncTakeProfitMemo(positions)
	return nil
}

// MaybeTakeProfit은 수익 배수에 도달한 포지션의 절반을 시장가로 청산합니다.
// 발동한 심볼은 기억해 두고, 포지션이 완전히 사라질 때까지 다시 발동하지
// 않습니다. 절반 수량이 최소 주문 수량 미만이면 거부합니다.
func (m *Manager) MaybeTakeProfit(ctx context.Context, pos domain.Position, profitMultiple float64) (bool, error) {
	symbol := pos.Symbol

	m.mu.Lock()
	_, fired := m.tpMemo[symbol]
	m.mu.Unlock()
	if fired {
		return false, nil
	}

	if pos.EntryPrice <= 0 || pos.MarkPrice <= 0 {
		return false, nil
	}

	// 롱은 마크/진입, 숏은 진입/마크 비율로 판단
	ratio := pos.MarkPrice / pos.EntryPrice
	if !pos.IsLong() {
		ratio = pos.EntryPrice / pos.MarkPrice
	}
	if ratio < profitMultiple {
		return false, nil
	}

	info, err := m.exchange.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return false, NewPositionError(symbol, "get_symbol_info", fmt.Errorf("%w: %v", ErrMissingSymbolInfo, err))
	}

	quantity, err := CalculateHalfCloseQuantity(pos.Quantity, LotConstraints{
		StepSize:    info.StepSize,
		MinQuantity: info.MinQuantity,
		Precision:   info.QuantityPrecision,
	})
	if err != nil {
		return false, NewPositionError(symbol, "calculate_half_close", err)
	}

	resp, err := m.exchange.PlaceOrder(ctx, domain.OrderRequest{
		Symbol:     symbol,
		Side:       ExitSideForPosition(pos),
		Type:       domain.Market,
		Quantity:   quantity,
		ReduceOnly: true,
	})
	if err != nil {
		return false, NewPositionError(symbol, "place_half_close", err)
	}

	m.mu.Lock()
	m.tpMemo[symbol] = struct{}{}
	m.mu.Unlock()

	m.log.Infof("부분 익절 실행: %s, 수량 %s, 주문 ID %d (진입가 %g → 마크 %g)",
		symbol, FormatQuantity(quantity, info.QuantityPrecision), resp.OrderID, pos.EntryPrice, pos.MarkPrice)

	if m.notifier != nil {
		if err := m.notifier.SendInfo(fmt.Sprintf("💰 부분 익절: %s 절반 청산 (진입가 %g → 마크 %g)",
			symbol, pos.EntryPrice, pos.MarkPrice)); err != nil {
			m.log.Warnf("부분 익절 알림 전송 실패: %v", err)
		}
	}

	return true, nil
}

// SyncTakeProfitMemo는 포지션이 사라진 심볼의 부분 익절 기록을 지웁니다.
// 전량 청산이 관측된 뒤에만 지워지므로 같은 심볼의 다음 포지션에서
// 부분 익절이 다시 발동할 수 있습니다.
func (m *Manager) SyncTakeProfitMemo(positions []domain.Position) {
	open := openSymbolSet(positions)

	m.mu.Lock()
	defer m.mu.Unlock()
	for symbol := range m.tpMemo {
		if !open[symbol] {
			delete(m.tpMemo, symbol)
			m.log.Infof("부분 익절 기록 초기화: %s (전량 청산 관측)", symbol)
		}
	}
}

// TrackedStopOrder는 심볼에 추적 중인 손절 주문 ID를 반환합니다
func (m *Manager) TrackedStopOrder(symbol string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.stopOrders[symbol]
	return id, ok
}

// TrackedSymbols는 손절 주문을 추적 중인 심볼 목록을 반환합니다
func (m *Manager) TrackedSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	symbols := make([]string, 0, len(m.stopOrders))
	for symbol := range m.stopOrders {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// TakeProfitFired는 심볼의 부분 익절이 이미 발동했는지 반환합니다
func (m *Manager) TakeProfitFired(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tpMemo[symbol]
	return ok
}

func (m *Manager) findPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	positions, err := m.exchange.GetPositions(ctx)
	if err != nil {
		return nil, NewPositionError(symbol, "get_positions", err)
	}

	for i := range positions {
		if positions[i].Symbol == symbol && math.Abs(positions[i].Quantity) > 0 {
			return &positions[i], nil
		}
	}
	return nil, NewPositionError(symbol, "find_position", ErrPositionNotFound)
}

func openSymbolSet(positions []domain.Position) map[string]bool {
	open := make(map[string]bool, len(positions))
	for _, pos := range positions {
		if math.Abs(pos.Quantity) > 0 {
			open[pos.Symbol] = true
		}
	}
	return open
}
