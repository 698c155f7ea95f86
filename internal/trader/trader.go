package trader

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/halcyon/internal/domain"
	"github.com/assist-by/halcyon/internal/exchange"
	"github.com/assist-by/halcyon/internal/logger"
	"github.com/assist-by/halcyon/internal/notification"
	"github.com/assist-by/halcyon/internal/position"
	"github.com/assist-by/halcyon/internal/scanner"
	"github.com/assist-by/halcyon/internal/scheduler"
	"github.com/assist-by/halcyon/internal/signal"
)

// Config는 트레이더 동작 설정을 정의합니다
type Config struct {
	Leverage      int     // 진입 레버리지
	EntryMargin   float64 // 진입당 증거금 (USDT)
	CandleLimit   int     // 시그널 평가에 사용할 캔들 수
	AuditMinute   int     // 체결 감사 단계 실행 분
	RefreshMinute int     // 심볼 갱신 단계 실행 분
	TradeMinute   int     // 전략 실행 단계 실행 분
}

// Trader는 매 시간 주기의 감사/갱신/전략 단계를 오케스트레이션합니다.
// 단계 안의 개별 실패는 해당 심볼만 건너뛰고 주기는 계속 진행합니다.
type Trader struct {
	exchange  exchange.Exchange
	scanner   *scanner.Scanner
	engine    *signal.Engine
	positions *position.Manager
	notifier  notification.Notifier
	config    Config
	log       *logrus.Entry
}

// Option은 트레이더 생성 옵션을 정의합니다
type Option func(*Trader)

// WithNotifier는 알림 전송기를 설정합니다
func WithNotifier(notifier notification.Notifier) Option {
	return func(t *Trader) {
		t.notifier = notifier
	}
}

// NewTrader는 새로운 트레이더를 생성합니다
func NewTrader(ex exchange.Exchange, sc *scanner.Scanner, engine *signal.Engine, pm *position.Manager, config Config, opts ...Option) *Trader {
	if config.CandleLimit <= 0 {
		config.CandleLimit = 100
	}

	t := &Trader{
		exchange:  ex,
		scanner:   sc,
		engine:    engine,
		positions: pm,
		config:    config,
		log:       logger.WithComponent("trader"),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Setup은 시작 시 계정 상태를 준비합니다.
// 원웨이 포지션 모드를 보장하고 잔고를 확인합니다.
func (t *Trader) Setup(ctx context.Context) error {
	// 1. 포지션 모드 확인, 헤지 모드면 원웨이로 변경
	hedgeMode, err := t.exchange.GetPositionMode(ctx)
	if err != nil {
		return fmt.Errorf("포지션 모드 확인 실패: %w", err)
	}

	if hedgeMode {
		if err := t.exchange.SetPositionMode(ctx, false); err != nil {
			// 이미 원웨이 모드라는 거부는 정상 상태로 취급
			apiErr, ok := domain.AsAPIError(err)
			if !ok || apiErr.Code != domain.ErrCodePositionModeNoChange {
				return fmt.Errorf("포지션 모드 설정 실패: %w", err)
			}
		}
		t.log.Infof("포지션 모드를 원웨이로 변경했습니다")
	}

	// 2. 잔고 확인
	balances, err := t.exchange.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("잔고 조회 실패: %w", err)
	}
	if usdt, ok := balances["USDT"]; ok {
		t.log.Infof("USDT 잔고: 사용 가능 %.2f / 잠김 %.2f", usdt.Available, usdt.Locked)
	} else {
		t.log.Warnf("USDT 잔고가 없습니다")
	}

	return nil
}

// Audit은 추적 중인 보호 주문과 실제 포지션을 대조하는 감사 단계입니다
func (t *Trader) Audit(ctx context.Context) error {
	return t.positions.Reconcile(ctx)
}

// RefreshSymbols는 거래 후보 심볼 목록을 갱신하는 단계입니다
func (t *Trader) RefreshSymbols(ctx context.Context) error {
	t.scanner.Refresh(ctx)
	return nil
}

// ExecuteStrategy는 전략 단계입니다. 보유 포지션의 손절을 래칫 규칙으로
// 끌어올린 뒤, 후보 심볼마다 진입 시그널을 평가해 포지션을 엽니다.
func (t *Trader) ExecuteStrategy(ctx context.Context) error {
	positions, err := t.exchange.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("포지션 조회 실패: %w", err)
	}

	t.logPositions(positions)

	// 1. 보유 포지션 손절 갱신
	held := make(map[string]bool, len(positions))
	for _, pos := range positions {
		held[pos.Symbol] = true
		if !pos.IsLong() {
			continue
		}
		if err := t.positions.UpdateStopLoss(ctx, pos.Symbol, pos.EntryPrice); err != nil {
			t.log.Errorf("손절 갱신 실패 (%s): %v", pos.Symbol, err)
		}
	}

	// 2. 후보 심볼 평가 및 진입
	for _, symbol := range t.scanner.Symbols() {
		if held[symbol] {
			t.log.Debugf("이미 포지션이 있는 심볼 건너뜀: %s", symbol)
			continue
		}

		if t.tryEnter(ctx, symbol) {
			held[symbol] = true
		}
	}

	return nil
}

// tryEnter는 단일 심볼의 시그널을 평가하고, 발화하면 진입과 손절 설정까지
// 진행합니다. 진입에 성공하면 true를 반환합니다.
func (t *Trader) tryEnter(ctx context.Context, symbol string) bool {
	candles, err := t.exchange.GetKlines(ctx, symbol, domain.Interval1h, t.config.CandleLimit)
	if err != nil {
		t.log.Errorf("캔들 조회 실패 (%s): %v", symbol, err)
		return false
	}

	sig, err := t.engine.Detect(symbol, candles)
	if err != nil {
		// 데이터 부족은 해당 심볼만 조용히 건너뜁니다
		t.log.Warnf("시그널 평가 불가 (%s): %v", symbol, err)
		return false
	}

	cond := sig.Conditions
	if !sig.IsLong() {
		t.log.Debugf("시그널 없음: %s (상승률 %.2f%%, 이격 %.2f%%)",
			symbol, cond.PriceChangePct, cond.AboveMAPct)
		return false
	}

	t.log.Infof("진입 시그널 발생: %s @ %g (상승률 %.2f%%, MA20 %g, MA60 %g)",
		symbol, sig.Price, cond.PriceChangePct, cond.MA20, cond.MA60)
	if t.notifier != nil {
		if err := t.notifier.SendSignal(sig); err != nil {
			t.log.Warnf("시그널 알림 전송 실패: %v", err)
		}
	}

	// 수량 계산 (로트 규칙 위반이면 진입 포기)
	quantity, err := t.positions.ComputeQuantity(ctx, symbol, t.config.EntryMargin, t.config.Leverage)
	if err != nil {
		t.log.Warnf("수량 계산 실패로 진입 포기 (%s): %v", symbol, err)
		return false
	}

	// 진입 사이드는 시그널 방향에서 유도합니다
	entrySide := position.GetOrderSideForEntry(position.GetPositionSideFromSignal(sig.Type))
	order, err := t.positions.PlaceEntry(ctx, symbol, entrySide, quantity, t.config.Leverage)
	if err != nil {
		t.log.Errorf("진입 실패 (%s): %v", symbol, err)
		t.notifyError(err)
		return false
	}

	// 마지막 캔들 저가 기준으로 손절 설정
	last, _ := candles.GetLastCandle()
	stopPrice, err := t.positions.SetStopLoss(ctx, symbol, last)
	if err != nil {
		// 진입은 성공했으므로 보호 공백을 알리고 다음 심볼로 넘어갑니다
		t.log.Errorf("손절 설정 실패 (%s): %v", symbol, err)
		t.notifyError(fmt.Errorf("진입 후 손절 설정 실패 (%s): %w", symbol, err))
		return true
	}

	t.notifyEntry(ctx, symbol, order, sig, stopPrice)
	return true
}

// notifyEntry는 진입 결과를 알림으로 전송합니다
func (t *Trader) notifyEntry(ctx context.Context, symbol string, order *domain.OrderResponse, sig *domain.Signal, stopPrice float64) {
	if t.notifier == nil {
		return
	}

	entryPrice := order.AvgPrice
	if entryPrice <= 0 {
		entryPrice = sig.Price
	}

	var available float64
	if balances, err := t.exchange.GetBalance(ctx); err == nil {
		if usdt, ok := balances["USDT"]; ok {
			available = usdt.Available
		}
	}

	info := notification.TradeInfo{
		Symbol:       symbol,
		PositionType: string(position.GetPositionSideFromSignal(sig.Type)),
		Quantity:     order.OrigQuantity,
		EntryPrice:   entryPrice,
		StopLoss:     stopPrice,
		Balance:      available,
		Leverage:     t.config.Leverage,
	}
	if err := t.notifier.SendTradeInfo(info); err != nil {
		t.log.Warnf("거래 정보 알림 전송 실패: %v", err)
	}
}

func (t *Trader) notifyError(err error) {
	if t.notifier == nil {
		return
	}
	if nerr := t.notifier.SendError(err); nerr != nil {
		t.log.Warnf("에러 알림 전송 실패: %v", nerr)
	}
}

// logPositions는 보유 포지션을 표 형태로 로그에 남깁니다
func (t *Trader) logPositions(positions []domain.Position) {
	if len(positions) == 0 {
		t.log.Infof("보유 포지션 없음")
		return
	}

	t.log.Infof("보유 포지션 %d건:", len(positions))
	for _, pos := range positions {
		side := "SHORT"
		if pos.IsLong() {
			side = "LONG"
		}
		var pnlPct float64
		if pos.EntryPrice > 0 {
			pnlPct = (pos.MarkPrice - pos.EntryPrice) / pos.EntryPrice * 100
			if !pos.IsLong() {
				pnlPct = -pnlPct
			}
		}
		t.log.Infof("  %-12s %-5s | 수량 %.8f | 진입가 %g | 마크 %g | 손익 %+.2f%% (%.2f USDT)",
			pos.Symbol, side, pos.Quantity, pos.EntryPrice, pos.MarkPrice, pnlPct, pos.UnrealizedPnL)
	}
}

// Phases는 스케줄러에 등록할 단계 목록을 구성합니다.
// 단계가 에러로 끝나면 알림을 보내고 에러를 그대로 전달합니다.
func (t *Trader) Phases() []scheduler.Phase {
	return []scheduler.Phase{
		{Minute: t.config.AuditMinute, Name: "체결 감사", Task: t.wrapNotify(t.Audit)},
		{Minute: t.config.RefreshMinute, Name: "심볼 갱신", Task: t.wrapNotify(t.RefreshSymbols)},
		{Minute: t.config.TradeMinute, Name: "전략 실행", Task: t.wrapNotify(t.ExecuteStrategy)},
	}
}

func (t *Trader) wrapNotify(fn func(ctx context.Context) error) scheduler.TaskFunc {
	return func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			t.notifyError(err)
			return err
		}
		return nil
	}
}
