package scanner

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/halcyon/internal/exchange"
	"github.com/assist-by/halcyon/internal/logger"
)

// Candidate는 선정된 거래 후보 심볼입니다
type Candidate struct {
	Symbol             string
	PriceChangePercent float64
	QuoteVolume        float64
}

// Scanner는 시장 전체 티커에서 모멘텀 거래 후보를 선별합니다.
// 활성 후보 목록은 갱신이 비어있지 않게 성공했을 때만 교체됩니다.
type Scanner struct {
	exchange exchange.Exchange
	log      *logrus.Entry

	quoteAsset        string
	minPriceChangePct float64
	minQuoteVolume    float64

	mu         sync.RWMutex
	candidates []Candidate
}

// Option은 스캐너 생성 옵션을 정의합니다
type Option func(*Scanner)

// WithMinPriceChange는 후보 선정의 등락률 하한(%)을 설정합니다
func WithMinPriceChange(pct float64) Option {
	return func(s *Scanner) {
		s.minPriceChangePct = pct
	}
}

// WithMinQuoteVolume은 후보 선정의 거래대금 하한을 설정합니다
func WithMinQuoteVolume(volume float64) Option {
	return func(s *Scanner) {
		s.minQuoteVolume = volume
	}
}

// NewScanner는 새로운 심볼 스캐너를 생성합니다
func NewScanner(ex exchange.Exchange, opts ...Option) *Scanner {
	s := &Scanner{
		exchange:          ex,
		log:               logger.WithComponent("scanner"),
		quoteAsset:        "USDT",
		minPriceChangePct: 10.0,
		minQuoteVolume:    100_000_000,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// QualifiedSymbols는 선정 조건을 통과한 후보를 등락률 내림차순으로 반환합니다.
// 실패 시 로그를 남기고 빈 목록을 반환하므로, 호출자는 빈 목록을
// "시그널 없음"으로 취급해야 합니다.
func (s *Scanner) QualifiedSymbols(ctx context.Context) []Candidate {
	candidates, err := s.fetchQualified(ctx)
	if err != nil {
		s.log.Errorf("후보 심볼 선정 실패: %v", err)
		return nil
	}
	return candidates
}

func (s *Scanner) fetchQualified(ctx context.Context) ([]Candidate, error) {
	tickers, err := s.exchange.GetTickers24h(ctx)
	if err != nil {
		return nil, fmt.Errorf("티커 조회 실패: %w", err)
	}

	var candidates []Candidate
	for _, ticker := range tickers {
		if !strings.HasSuffix(ticker.Symbol, s.quoteAsset) {
			continue
		}

		// 필드 파싱에 실패한 항목은 건너뜁니다
		priceChange, err := strconv.ParseFloat(ticker.PriceChangePercent, 64)
		if err != nil {
			continue
		}
		quoteVolume, err := strconv.ParseFloat(ticker.QuoteVolume, 64)
		if err != nil {
			continue
		}

		if priceChange < s.minPriceChangePct || quoteVolume <= s.minQuoteVolume {
			continue
		}

		candidates = append(candidates, Candidate{
			Symbol:             ticker.Symbol,
			PriceChangePercent: priceChange,
			QuoteVolume:        quoteVolume,
		})
	}

	// 거래 정지/상장 폐지된 심볼 제외
	tradable := candidates[:0]
	for _, candidate := range candidates {
		info, err := s.exchange.GetSymbolInfo(ctx, candidate.Symbol)
		if err != nil {
			s.log.Warnf("심볼 상태 확인 실패 (%s), 후보에서 제외: %v", candidate.Symbol, err)
			continue
		}
		if !info.IsTradable() {
			s.log.Infof("거래 불가 심볼 제외: %s (상태: %s)", candidate.Symbol, info.Status)
			continue
		}
		tradable = append(tradable, candidate)
	}

	sort.Slice(tradable, func(i, j int) bool {
		return tradable[i].PriceChangePercent > tradable[j].PriceChangePercent
	})

	return tradable, nil
}

// Refresh는 후보 목록을 다시 선정합니다.
// 결과가 비어있으면 기존 목록을 유지합니다 (낡은 목록이 빈 목록보다 안전).
func (s *Scanner) Refresh(ctx context.Context) {
	candidates := s.QualifiedSymbols(ctx)
	if len(candidates) == 0 {
		s.mu.RLock()
		kept := len(s.candidates)
		s.mu.RUnlock()
		s.log.Warnf("선정된 후보가 없어 기존 목록 유지 (%d개)", kept)
		return
	}

	s.mu.Lock()
	s.candidates = candidates
	s.mu.Unlock()

	s.log.Infof("후보 심볼 갱신 완료: %d개", len(candidates))
	for i, c := range candidates {
		s.log.Infof("%d위: %s (등락률 %+.2f%%, 거래대금 %.0f)",
			i+1, c.Symbol, c.PriceChangePercent, c.QuoteVolume)
	}
}

// Candidates는 현재 활성 후보 목록의 복사본을 반환합니다
func (s *Scanner) Candidates() []Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Candidate, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// Symbols는 현재 활성 후보의 심볼 목록을 반환합니다
func (s *Scanner) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, len(s.candidates))
	for i, c := range s.candidates {
		symbols[i] = c.Symbol
	}
	return symbols
}
