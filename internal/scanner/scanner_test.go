package scanner

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/assist-by/halcyon/internal/domain"
	"github.com/assist-by/halcyon/internal/exchange"
)

// fakeExchange는 티커와 심볼 정보 조회만 구현한 가짜 거래소입니다
type fakeExchange struct {
	exchange.Exchange
	tickers    []domain.SymbolTicker
	tickersErr error
	infos      map[string]*domain.SymbolInfo
}

func (f *fakeExchange) GetTickers24h(ctx context.Context) ([]domain.SymbolTicker, error) {
	if f.tickersErr != nil {
		return nil, f.tickersErr
	}
	return f.tickers, nil
}

func (f *fakeExchange) GetSymbolInfo(ctx context.Context, symbol string) (*domain.SymbolInfo, error) {
	info, ok := f.infos[symbol]
	if !ok {
		return nil, fmt.Errorf("심볼 정보를 찾을 수 없음: %s", symbol)
	}
	return info, nil
}

func tradingInfo(symbol string) *domain.SymbolInfo {
	return &domain.SymbolInfo{Symbol: symbol, Status: domain.SymbolStatusTrading}
}

func TestQualifiedSymbols(t *testing.T) {
	fake := &fakeExchange{
		tickers: []domain.SymbolTicker{
			{Symbol: "AAAUSDT", PriceChangePercent: "15.5", QuoteVolume: "200000000"},
			{Symbol: "BBBUSDT", PriceChangePercent: "25.0", QuoteVolume: "150000000"},
			{Symbol: "CCCBUSD", PriceChangePercent: "30.0", QuoteVolume: "900000000"}, // 견적 자산 불일치
			{Symbol: "DDDUSDT", PriceChangePercent: "abcd", QuoteVolume: "900000000"}, // 파싱 실패
			{Symbol: "EEEUSDT", PriceChangePercent: "9.99", QuoteVolume: "900000000"}, // 등락률 미달
			{Symbol: "FFFUSDT", PriceChangePercent: "50.0", QuoteVolume: "100000000"}, // 거래대금 미달 (초과여야 함)
			{Symbol: "GGGUSDT", PriceChangePercent: "12.0", QuoteVolume: "500000000"}, // 거래 정지
			{Symbol: "HHHUSDT", PriceChangePercent: "11.0", QuoteVolume: "300000000"}, // 심볼 정보 조회 실패
			{Symbol: "IIIUSDT", PriceChangePercent: "10.0", QuoteVolume: "400000000"}, // 등락률 하한 경계 (포함)
		},
		infos: map[string]*domain.SymbolInfo{
			"AAAUSDT": tradingInfo("AAAUSDT"),
			"BBBUSDT": tradingInfo("BBBUSDT"),
			"GGGUSDT": {Symbol: "GGGUSDT", Status: "BREAK"},
			"IIIUSDT": tradingInfo("IIIUSDT"),
		},
	}

	s := NewScanner(fake)
	candidates := s.QualifiedSymbols(context.Background())

	// 등락률 내림차순으로 거래 가능한 후보만 남아야 함
	var symbols []string
	for _, c := range candidates {
		symbols = append(symbols, c.Symbol)
	}
	want := []string{"BBBUSDT", "AAAUSDT", "IIIUSDT"}
	if !reflect.DeepEqual(symbols, want) {
		t.Errorf("QualifiedSymbols() = %v, want %v", symbols, want)
	}

	if candidates[0].PriceChangePercent != 25.0 {
		t.Errorf("1위 등락률 = %g, want 25.0", candidates[0].PriceChangePercent)
	}
	if candidates[0].QuoteVolume != 150000000 {
		t.Errorf("1위 거래대금 = %g, want 150000000", candidates[0].QuoteVolume)
	}
}

func TestQualifiedSymbolsTickerFailure(t *testing.T) {
	fake := &fakeExchange{tickersErr: fmt.Errorf("네트워크 오류")}

	s := NewScanner(fake)
	candidates := s.QualifiedSymbols(context.Background())

	// 실패는 전파하지 않고 빈 목록으로 처리
	if len(candidates) != 0 {
		t.Errorf("실패 시 후보 수 = %d, want 0", len(candidates))
	}
}

func TestRefreshKeepsStaleListOnFailure(t *testing.T) {
	fake := &fakeExchange{
		tickers: []domain.SymbolTicker{
			{Symbol: "AAAUSDT", PriceChangePercent: "15.5", QuoteVolume: "200000000"},
		},
		infos: map[string]*domain.SymbolInfo{
			"AAAUSDT": tradingInfo("AAAUSDT"),
		},
	}

	s := NewScanner(fake)
	ctx := context.Background()

	s.Refresh(ctx)
	if got := s.Symbols(); !reflect.DeepEqual(got, []string{"AAAUSDT"}) {
		t.Fatalf("첫 갱신 후 목록 = %v, want [AAAUSDT]", got)
	}

	// 이후 조회가 실패해도 기존 목록은 유지되어야 함
	fake.tickersErr = fmt.Errorf("네트워크 오류")
	s.Refresh(ctx)
	if got := s.Symbols(); !reflect.DeepEqual(got, []string{"AAAUSDT"}) {
		t.Errorf("실패한 갱신 후 목록 = %v, want [AAAUSDT]", got)
	}

	// 성공했지만 빈 결과여도 기존 목록 유지
	fake.tickersErr = nil
	fake.tickers = nil
	s.Refresh(ctx)
	if got := s.Symbols(); !reflect.DeepEqual(got, []string{"AAAUSDT"}) {
		t.Errorf("빈 갱신 후 목록 = %v, want [AAAUSDT]", got)
	}
}

func TestRefreshReplacesListOnSuccess(t *testing.T) {
	fake := &fakeExchange{
		tickers: []domain.SymbolTicker{
			{Symbol: "AAAUSDT", PriceChangePercent: "15.5", QuoteVolume: "200000000"},
		},
		infos: map[string]*domain.SymbolInfo{
			"AAAUSDT": tradingInfo("AAAUSDT"),
			"ZZZUSDT": tradingInfo("ZZZUSDT"),
		},
	}

	s := NewScanner(fake)
	ctx := context.Background()
	s.Refresh(ctx)

	// 비어있지 않은 새 결과는 목록을 통째로 교체
	fake.tickers = []domain.SymbolTicker{
		{Symbol: "ZZZUSDT", PriceChangePercent: "40.0", QuoteVolume: "300000000"},
	}
	s.Refresh(ctx)
	if got := s.Symbols(); !reflect.DeepEqual(got, []string{"ZZZUSDT"}) {
		t.Errorf("갱신 후 목록 = %v, want [ZZZUSDT]", got)
	}
}

func TestScannerThresholdOptions(t *testing.T) {
	fake := &fakeExchange{
		tickers: []domain.SymbolTicker{
			{Symbol: "AAAUSDT", PriceChangePercent: "6.0", QuoteVolume: "60000000"},
		},
		infos: map[string]*domain.SymbolInfo{
			"AAAUSDT": tradingInfo("AAAUSDT"),
		},
	}

	// 기본 문턱에서는 탈락하지만 낮춘 문턱에서는 선정됨
	if got := NewScanner(fake).QualifiedSymbols(context.Background()); len(got) != 0 {
		t.Fatalf("기본 문턱 후보 수 = %d, want 0", len(got))
	}

	s := NewScanner(fake, WithMinPriceChange(5.0), WithMinQuoteVolume(50000000))
	if got := s.QualifiedSymbols(context.Background()); len(got) != 1 {
		t.Errorf("낮춘 문턱 후보 수 = %d, want 1", len(got))
	}
}
