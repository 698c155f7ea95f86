package monitor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/halcyon/internal/exchange"
	"github.com/assist-by/halcyon/internal/logger"
	"github.com/assist-by/halcyon/internal/position"
)

// Monitor는 보유 포지션의 수익 배수를 주기적으로 점검해 부분 익절을
// 실행하는 독립 루프입니다. 전략 루프와 메모리를 공유하지 않으며,
// 일관성은 거래소의 포지션/주문 상태를 통해서만 맞춰집니다.
type Monitor struct {
	exchange  exchange.Exchange
	positions *position.Manager
	log       *logrus.Entry

	checkInterval  time.Duration
	profitMultiple float64
	stopCh         chan struct{}
}

// Option은 모니터 생성 옵션을 정의합니다
type Option func(*Monitor)

// WithCheckInterval은 점검 주기를 설정합니다
func WithCheckInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		if interval > 0 {
			m.checkInterval = interval
		}
	}
}

// WithProfitMultiple은 부분 익절을 발동할 수익 배수를 설정합니다
func WithProfitMultiple(multiple float64) Option {
	return func(m *Monitor) {
		if multiple > 1 {
			m.profitMultiple = multiple
		}
	}
}

// NewMonitor는 새로운 익절 모니터를 생성합니다
func NewMonitor(ex exchange.Exchange, pm *position.Manager, opts ...Option) *Monitor {
	m := &Monitor{
		exchange:       ex,
		positions:      pm,
		log:            logger.WithComponent("monitor"),
		checkInterval:  5 * time.Minute,
		profitMultiple: 1.3,
		stopCh:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start는 모니터 루프를 시작합니다. ctx 취소 또는 Stop까지 블로킹합니다.
func (m *Monitor) Start(ctx context.Context) error {
	m.log.Infof("익절 모니터 시작 (주기 %v, 목표 배수 %.2f)", m.checkInterval, m.profitMultiple)

	// 시작 직후 1회 점검
	m.Check(ctx)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-m.stopCh:
			return nil

		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check는 전체 포지션을 한 번 점검합니다.
// 개별 심볼의 실패는 기록하고 다음 심볼로 넘어갑니다.
func (m *Monitor) Check(ctx context.Context) {
	positions, err := m.exchange.GetPositions(ctx)
	if err != nil {
		m.log.Errorf("포지션 조회 실패: %v", err)
		return
	}

	// 전량 청산이 관측된 심볼의 익절 기록을 먼저 재무장합니다
	m.positions.SyncTakeProfitMemo(positions)

	for _, pos := range positions {
		fired, err := m.positions.MaybeTakeProfit(ctx, pos, m.profitMultiple)
		if err != nil {
			m.log.Errorf("부분 익절 점검 실패 (%s): %v", pos.Symbol, err)
			continue
		}
		if fired {
			m.log.Infof("부분 익절 완료: %s", pos.Symbol)
		}
	}
}

// Stop은 모니터 루프를 중지합니다
func (m *Monitor) Stop() {
	close(m.stopCh)
}
