package trader

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/assist-by/halcyon/internal/domain"
	"github.com/assist-by/halcyon/internal/exchange"
	"github.com/assist-by/halcyon/internal/notification"
	"github.com/assist-by/halcyon/internal/position"
	"github.com/assist-by/halcyon/internal/scanner"
	"github.com/assist-by/halcyon/internal/signal"
)

// fakeExchange는 트레이더 통합 흐름 테스트용 거래소입니다.
// 시장가 매수가 체결되면 해당 심볼의 포지션을 만들어, 진입 직후의
// 손절 설정이 실제 포지션을 찾을 수 있게 합니다.
type fakeExchange struct {
	exchange.Exchange

	mu           sync.Mutex
	hedgeMode    bool
	modeErr      error
	setModeErr   error
	setModeArgs  []bool
	balances     map[string]domain.Balance
	balanceErr   error
	tickers      []domain.SymbolTicker
	infos        map[string]domain.SymbolInfo
	klines       map[string]domain.CandleList
	markPrices   map[string]float64
	positions    []domain.Position
	positionsErr error

	nextOrderID int64
	placed      []domain.OrderRequest
	failStops   bool
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		balances:    map[string]domain.Balance{"USDT": {Asset: "USDT", Available: 1000}},
		infos:       make(map[string]domain.SymbolInfo),
		klines:      make(map[string]domain.CandleList),
		markPrices:  make(map[string]float64),
		nextOrderID: 1000,
	}
}

func (f *fakeExchange) GetPositionMode(ctx context.Context) (bool, error) {
	if f.modeErr != nil {
		return false, f.modeErr
	}
	return f.hedgeMode, nil
}

func (f *fakeExchange) SetPositionMode(ctx context.Context, hedgeMode bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setModeArgs = append(f.setModeArgs, hedgeMode)
	return f.setModeErr
}

func (f *fakeExchange) GetBalance(ctx context.Context) (map[string]domain.Balance, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return f.balances, nil
}

func (f *fakeExchange) GetTickers24h(ctx context.Context) ([]domain.SymbolTicker, error) {
	return f.tickers, nil
}

func (f *fakeExchange) GetSymbolInfo(ctx context.Context, symbol string) (*domain.SymbolInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.infos[symbol]
	if !ok {
		return nil, fmt.Errorf("심볼 정보 없음: %s", symbol)
	}
	return &info, nil
}

func (f *fakeExchange) GetKlines(ctx context.Context, symbol string, interval domain.TimeInterval, limit int) (domain.CandleList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.klines[symbol], nil
}

func (f *fakeExchange) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markPrices[symbol], nil
}

func (f *fakeExchange) GetPositions(ctx context.Context) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.positionsErr != nil {
		return nil, f.positionsErr
	}
	out := make([]domain.Position, len(f.positions))
	copy(out, f.positions)
	return out, nil
}

func (f *fakeExchange) GetOpenOrders(ctx context.Context, symbol string) ([]domain.OrderResponse, error) {
	return nil, nil
}

func (f *fakeExchange) GetOrder(ctx context.Context, symbol string, orderID int64) (*domain.OrderResponse, error) {
	return &domain.OrderResponse{OrderID: orderID, Symbol: symbol, Status: domain.OrderStatusNew}, nil
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, order domain.OrderRequest) (*domain.OrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if order.Type == domain.StopMarket && f.failStops {
		return nil, fmt.Errorf("손절 주문 거부")
	}

	resp := &domain.OrderResponse{
		OrderID:      f.nextOrderID,
		Symbol:       order.Symbol,
		Status:       domain.OrderStatusNew,
		OrigQuantity: order.Quantity,
		Side:         order.Side,
		Type:         order.Type,
	}
	f.nextOrderID++
	f.placed = append(f.placed, order)

	// 시장가 매수 체결 → 포지션 생성
	if order.Type == domain.Market && order.Side == domain.Buy && !order.ReduceOnly {
		mark := f.markPrices[order.Symbol]
		f.positions = append(f.positions, domain.Position{
			Symbol:     order.Symbol,
			Quantity:   order.Quantity,
			EntryPrice: mark,
			MarkPrice:  mark,
		})
		resp.AvgPrice = mark
	}
	return resp, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	return nil
}

func (f *fakeExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

// spyNotifier는 전송된 알림을 종류별로 기록합니다
type spyNotifier struct {
	mu      sync.Mutex
	signals []*domain.Signal
	errs    []error
	infos   []string
	trades  []notification.TradeInfo
}

func (s *spyNotifier) SendSignal(sig *domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
	return nil
}

func (s *spyNotifier) SendError(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
	return nil
}

func (s *spyNotifier) SendInfo(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos = append(s.infos, message)
	return nil
}

func (s *spyNotifier) SendTradeInfo(info notification.TradeInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, info)
	return nil
}

func tradableInfo(symbol string) domain.SymbolInfo {
	return domain.SymbolInfo{
		Symbol:            symbol,
		Status:            domain.SymbolStatusTrading,
		StepSize:          0.1,
		MinQuantity:       0.1,
		TickSize:          0.01,
		PricePrecision:    2,
		QuantityPrecision: 1,
	}
}

// signalCandles는 마지막 캔들에서 진입 조건이 모두 충족되는 목록을 만듭니다
func signalCandles(last domain.Candle) domain.CandleList {
	candles := make(domain.CandleList, 0, 60)
	for i := 0; i < 59; i++ {
		candles = append(candles, domain.Candle{Open: 100, High: 100, Low: 100, Close: 100})
	}
	return append(candles, last)
}

func testConfig() Config {
	return Config{
		Leverage:      5,
		EntryMargin:   100,
		CandleLimit:   100,
		AuditMinute:   57,
		RefreshMinute: 58,
		TradeMinute:   59,
	}
}

func newTestTrader(fake *fakeExchange, spy *spyNotifier) *Trader {
	sc := scanner.NewScanner(fake)
	engine := signal.NewEngine(signal.DefaultConfig())
	pm := position.NewManager(fake)

	var opts []Option
	if spy != nil {
		opts = append(opts, WithNotifier(spy))
	}
	return NewTrader(fake, sc, engine, pm, testConfig(), opts...)
}

func TestSetupAlreadyOneWay(t *testing.T) {
	fake := newFakeExchange()
	tr := newTestTrader(fake, nil)

	require.NoError(t, tr.Setup(context.Background()))
	require.Empty(t, fake.setModeArgs, "원웨이 모드면 변경 요청이 없어야 합니다")
}

func TestSetupSwitchesHedgeToOneWay(t *testing.T) {
	fake := newFakeExchange()
	fake.hedgeMode = true
	tr := newTestTrader(fake, nil)

	require.NoError(t, tr.Setup(context.Background()))
	require.Equal(t, []bool{false}, fake.setModeArgs)
}

func TestSetupToleratesNoChangeRejection(t *testing.T) {
	fake := newFakeExchange()
	fake.hedgeMode = true
	fake.setModeErr = &domain.APIError{Code: domain.ErrCodePositionModeNoChange, Message: "No need to change position side."}
	tr := newTestTrader(fake, nil)

	// 이미 원웨이라는 거부는 정상 상태
	require.NoError(t, tr.Setup(context.Background()))
}

func TestSetupFailsOnOtherRejection(t *testing.T) {
	fake := newFakeExchange()
	fake.hedgeMode = true
	fake.setModeErr = &domain.APIError{Code: -1000, Message: "unknown"}
	tr := newTestTrader(fake, nil)

	require.Error(t, tr.Setup(context.Background()))
}

func TestSetupFailsOnBalanceLookup(t *testing.T) {
	fake := newFakeExchange()
	fake.balanceErr = fmt.Errorf("잔고 조회 실패")
	tr := newTestTrader(fake, nil)

	require.Error(t, tr.Setup(context.Background()))
}

func TestExecuteStrategyEntersOnSignal(t *testing.T) {
	fake := newFakeExchange()
	spy := &spyNotifier{}
	fake.tickers = []domain.SymbolTicker{
		{Symbol: "NEWUSDT", PriceChangePercent: "12.5", QuoteVolume: "200000000"},
	}
	fake.infos["NEWUSDT"] = tradableInfo("NEWUSDT")
	fake.markPrices["NEWUSDT"] = 102
	fake.klines["NEWUSDT"] = signalCandles(domain.Candle{Open: 100, High: 102.5, Low: 99, Close: 102})

	tr := newTestTrader(fake, spy)
	require.NoError(t, tr.RefreshSymbols(context.Background()))

	require.NoError(t, tr.ExecuteStrategy(context.Background()))

	// 진입 시장가 + 손절 주문이 순서대로 제출됩니다
	require.Len(t, fake.placed, 2)

	entry := fake.placed[0]
	require.Equal(t, domain.Market, entry.Type)
	require.Equal(t, domain.Buy, entry.Side)
	require.Equal(t, 4.9, entry.Quantity) // 100 × 5 / 102 → 스텝 0.1 반올림

	stop := fake.placed[1]
	require.Equal(t, domain.StopMarket, stop.Type)
	require.Equal(t, domain.Sell, stop.Side)
	require.True(t, stop.ClosePosition)
	require.Equal(t, 98.9, stop.StopPrice) // 저가 99 × 0.999

	// 시그널과 거래 정보 알림
	require.Len(t, spy.signals, 1)
	require.Equal(t, "NEWUSDT", spy.signals[0].Symbol)
	require.Len(t, spy.trades, 1)
	require.Equal(t, "LONG", spy.trades[0].PositionType)
	require.Equal(t, 98.9, spy.trades[0].StopLoss)
	require.Equal(t, 5, spy.trades[0].Leverage)
}

func TestExecuteStrategySkipsHeldSymbol(t *testing.T) {
	fake := newFakeExchange()
	fake.tickers = []domain.SymbolTicker{
		{Symbol: "NEWUSDT", PriceChangePercent: "12.5", QuoteVolume: "200000000"},
	}
	fake.infos["NEWUSDT"] = tradableInfo("NEWUSDT")
	fake.positions = []domain.Position{
		{Symbol: "NEWUSDT", Quantity: 4.9, EntryPrice: 102, MarkPrice: 103},
	}
	// 상승률 0.5%로 래칫 조건 미달 → 손절도 옮기지 않음
	fake.klines["NEWUSDT"] = signalCandles(domain.Candle{Open: 100, High: 100.6, Low: 99.8, Close: 100.5})

	tr := newTestTrader(fake, nil)
	require.NoError(t, tr.RefreshSymbols(context.Background()))

	require.NoError(t, tr.ExecuteStrategy(context.Background()))
	require.Empty(t, fake.placed, "보유 심볼에는 추가 진입이 없어야 합니다")
}

func TestExecuteStrategyRatchetsHeldStop(t *testing.T) {
	fake := newFakeExchange()
	fake.infos["NEWUSDT"] = tradableInfo("NEWUSDT")
	fake.positions = []domain.Position{
		{Symbol: "NEWUSDT", Quantity: 4.9, EntryPrice: 100, MarkPrice: 103},
	}
	// 상승률 2% ≥ 래칫 기준 1% → 마지막 캔들 저가로 손절 재설정
	fake.klines["NEWUSDT"] = signalCandles(domain.Candle{Open: 100, High: 102.5, Low: 101, Close: 102})

	tr := newTestTrader(fake, nil)
	require.NoError(t, tr.ExecuteStrategy(context.Background()))

	require.Len(t, fake.placed, 1)
	stop := fake.placed[0]
	require.Equal(t, domain.StopMarket, stop.Type)
	require.Equal(t, 100.9, stop.StopPrice) // 101 × 0.999 → 100.899 → 100.9
}

func TestExecuteStrategyIgnoresShortPositions(t *testing.T) {
	fake := newFakeExchange()
	fake.positions = []domain.Position{
		{Symbol: "XYZUSDT", Quantity: -2, EntryPrice: 100, MarkPrice: 95},
	}

	tr := newTestTrader(fake, nil)
	require.NoError(t, tr.ExecuteStrategy(context.Background()))
	require.Empty(t, fake.placed)
}

func TestExecuteStrategyNoSignal(t *testing.T) {
	fake := newFakeExchange()
	spy := &spyNotifier{}
	fake.tickers = []domain.SymbolTicker{
		{Symbol: "NEWUSDT", PriceChangePercent: "12.5", QuoteVolume: "200000000"},
	}
	fake.infos["NEWUSDT"] = tradableInfo("NEWUSDT")
	// 상승률 0.2%는 진입 하한 1% 미만
	fake.klines["NEWUSDT"] = signalCandles(domain.Candle{Open: 100, High: 100.3, Low: 99.9, Close: 100.2})

	tr := newTestTrader(fake, spy)
	require.NoError(t, tr.RefreshSymbols(context.Background()))

	require.NoError(t, tr.ExecuteStrategy(context.Background()))
	require.Empty(t, fake.placed)
	require.Empty(t, spy.signals)
}

func TestExecuteStrategySkipsInsufficientData(t *testing.T) {
	fake := newFakeExchange()
	fake.tickers = []domain.SymbolTicker{
		{Symbol: "NEWUSDT", PriceChangePercent: "12.5", QuoteVolume: "200000000"},
	}
	fake.infos["NEWUSDT"] = tradableInfo("NEWUSDT")
	fake.klines["NEWUSDT"] = domain.CandleList{{Open: 100, Close: 102, Low: 99}}

	tr := newTestTrader(fake, nil)
	require.NoError(t, tr.RefreshSymbols(context.Background()))

	// 캔들 부족은 해당 심볼만 건너뛰고 단계는 성공으로 끝납니다
	require.NoError(t, tr.ExecuteStrategy(context.Background()))
	require.Empty(t, fake.placed)
}

func TestExecuteStrategyNotifiesProtectionGap(t *testing.T) {
	fake := newFakeExchange()
	spy := &spyNotifier{}
	fake.tickers = []domain.SymbolTicker{
		{Symbol: "NEWUSDT", PriceChangePercent: "12.5", QuoteVolume: "200000000"},
	}
	fake.infos["NEWUSDT"] = tradableInfo("NEWUSDT")
	fake.markPrices["NEWUSDT"] = 102
	fake.klines["NEWUSDT"] = signalCandles(domain.Candle{Open: 100, High: 102.5, Low: 99, Close: 102})
	fake.failStops = true

	tr := newTestTrader(fake, spy)
	require.NoError(t, tr.RefreshSymbols(context.Background()))

	// 진입은 성공했지만 손절 설정이 실패한 경우: 단계는 계속되지만
	// 보호 공백을 에러 알림으로 남깁니다
	require.NoError(t, tr.ExecuteStrategy(context.Background()))
	require.Len(t, fake.placed, 1)
	require.Equal(t, domain.Market, fake.placed[0].Type)
	require.NotEmpty(t, spy.errs)
}

func TestExecuteStrategyPositionLookupFailure(t *testing.T) {
	fake := newFakeExchange()
	fake.positionsErr = fmt.Errorf("포지션 조회 실패")

	tr := newTestTrader(fake, nil)
	require.Error(t, tr.ExecuteStrategy(context.Background()))
}

func TestPhases(t *testing.T) {
	fake := newFakeExchange()
	spy := &spyNotifier{}
	tr := newTestTrader(fake, spy)

	phases := tr.Phases()
	require.Len(t, phases, 3)
	require.Equal(t, 57, phases[0].Minute)
	require.Equal(t, 58, phases[1].Minute)
	require.Equal(t, 59, phases[2].Minute)

	// 단계 에러는 알림 후 그대로 전달됩니다
	fake.positionsErr = fmt.Errorf("포지션 조회 실패")
	require.Error(t, phases[0].Task.Execute(context.Background()))
	require.Len(t, spy.errs, 1)
}
