// internal/exchange/resilient.go
package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/halcyon/internal/domain"
	"github.com/assist-by/halcyon/internal/logger"
)

// ErrUnknownRequest는 재시도가 전부 시계 오차 경로로 소진되어
// 기록된 원인 에러가 없을 때 반환됩니다
var ErrUnknownRequest = errors.New("알 수 없는 요청 오류")

// Resyncer는 시계 재동기화를 수행합니다
type Resyncer interface {
	Resync(ctx context.Context) error
}

// Resilient는 Exchange를 감싸 모든 요청에 재시도 정책을 적용합니다.
// 영구 거부는 즉시 반환하고, 시계 오차는 강제 재동기화 후 재시도하며,
// 나머지 실패는 지연을 두고 재시도합니다.
type Resilient struct {
	inner      Exchange
	resyncer   Resyncer
	maxRetries int
	retryDelay time.Duration
	log        *logrus.Entry
}

// ResilientOption은 Resilient 생성 옵션을 정의합니다
type ResilientOption func(*Resilient)

// WithMaxRetries는 시도 횟수 상한을 설정합니다
func WithMaxRetries(n int) ResilientOption {
	return func(r *Resilient) {
		if n > 0 {
			r.maxRetries = n
		}
	}
}

// WithRetryDelay는 재시도 사이의 대기 시간을 설정합니다
func WithRetryDelay(d time.Duration) ResilientOption {
	return func(r *Resilient) {
		if d > 0 {
			r.retryDelay = d
		}
	}
}

// NewResilient는 재시도 래퍼를 생성합니다. resyncer는 nil일 수 있습니다.
func NewResilient(inner Exchange, resyncer Resyncer, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		inner:      inner,
		resyncer:   resyncer,
		maxRetries: 3,
		retryDelay: 1 * time.Second,
		log:        logger.WithComponent("exchange"),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// do는 단일 요청 함수에 재시도 정책을 적용합니다.
// 시계 오차 재시도는 원인 에러를 기록하지 않으므로, 모든 시도가 시계 오차로
// 소진되면 ErrUnknownRequest가 반환됩니다.
func (r *Resilient) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if domain.IsPermanentRejection(err) {
			return err
		}

		if domain.IsClockSkewError(err) {
			r.log.Warnf("%s: 시계 오차로 요청 거부됨, 강제 재동기화 후 재시도 (시도 %d/%d)",
				op, attempt, r.maxRetries)
			if r.resyncer != nil {
				if syncErr := r.resyncer.Resync(ctx); syncErr != nil {
					r.log.Errorf("%s: 강제 재동기화 실패: %v", op, syncErr)
				}
			}
		} else {
			lastErr = err
			r.log.Warnf("%s 실패 (시도 %d/%d): %v", op, attempt, r.maxRetries, err)
		}

		if attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}

	if lastErr != nil {
		return fmt.Errorf("%s: 최대 재시도 횟수 초과: %w", op, lastErr)
	}
	return fmt.Errorf("%s: %w", op, ErrUnknownRequest)
}

// GetServerTime은 서버 시간을 조회합니다
func (r *Resilient) GetServerTime(ctx context.Context) (time.Time, error) {
	var result time.Time
	err := r.do(ctx, "서버 시간 조회", func(ctx context.Context) error {
		var err error
		result, err = r.inner.GetServerTime(ctx)
		return err
	})
	return result, err
}

// GetTickers24h는 전체 심볼의 24시간 티커를 조회합니다
func (r *Resilient) GetTickers24h(ctx context.Context) ([]domain.SymbolTicker, error) {
	var result []domain.SymbolTicker
	err := r.do(ctx, "24시간 티커 조회", func(ctx context.Context) error {
		var err error
		result, err = r.inner.GetTickers24h(ctx)
		return err
	})
	return result, err
}

// GetKlines는 캔들 데이터를 조회합니다
func (r *Resilient) GetKlines(ctx context.Context, symbol string, interval domain.TimeInterval, limit int) (domain.CandleList, error) {
	var result domain.CandleList
	err := r.do(ctx, "캔들 조회", func(ctx context.Context) error {
		var err error
		result, err = r.inner.GetKlines(ctx, symbol, interval, limit)
		return err
	})
	return result, err
}

// GetSymbolInfo는 심볼 거래 정보를 조회합니다
func (r *Resilient) GetSymbolInfo(ctx context.Context, symbol string) (*domain.SymbolInfo, error) {
	var result *domain.SymbolInfo
	err := r.do(ctx, "심볼 정보 조회", func(ctx context.Context) error {
		var err error
		result, err = r.inner.GetSymbolInfo(ctx, symbol)
		return err
	})
	return result, err
}

// GetMarkPrice는 심볼의 마크 가격을 조회합니다
func (r *Resilient) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	var result float64
	err := r.do(ctx, "마크 가격 조회", func(ctx context.Context) error {
		var err error
		result, err = r.inner.GetMarkPrice(ctx, symbol)
		return err
	})
	return result, err
}

// GetBalance는 계정 잔고를 조회합니다
func (r *Resilient) GetBalance(ctx context.Context) (map[string]domain.Balance, error) {
	var result map[string]domain.Balance
	err := r.do(ctx, "잔고 조회", func(ctx context.Context) error {
		var err error
		result, err = r.inner.GetBalance(ctx)
		return err
	})
	return result, err
}

// GetPositions는 열린 포지션을 조회합니다
func (r *Resilient) GetPositions(ctx context.Context) ([]domain.Position, error) {
	var result []domain.Position
	err := r.do(ctx, "포지션 조회", func(ctx context.Context) error {
		var err error
		result, err = r.inner.GetPositions(ctx)
		return err
	})
	return result, err
}

// GetOpenOrders는 열린 주문 목록을 조회합니다
func (r *Resilient) GetOpenOrders(ctx context.Context, symbol string) ([]domain.OrderResponse, error) {
	var result []domain.OrderResponse
	err := r.do(ctx, "열린 주문 조회", func(ctx context.Context) error {
		var err error
		result, err = r.inner.GetOpenOrders(ctx, symbol)
		return err
	})
	return result, err
}

// GetOrder는 단일 주문의 상태를 조회합니다
func (r *Resilient) GetOrder(ctx context.Context, symbol string, orderID int64) (*domain.OrderResponse, error) {
	var result *domain.OrderResponse
	err := r.do(ctx, "주문 조회", func(ctx context.Context) error {
		var err error
		result, err = r.inner.GetOrder(ctx, symbol, orderID)
		return err
	})
	return result, err
}

// PlaceOrder는 주문을 생성합니다
func (r *Resilient) PlaceOrder(ctx context.Context, order domain.OrderRequest) (*domain.OrderResponse, error) {
	var result *domain.OrderResponse
	err := r.do(ctx, "주문 생성", func(ctx context.Context) error {
		var err error
		result, err = r.inner.PlaceOrder(ctx, order)
		return err
	})
	return result, err
}

// CancelOrder는 주문을 취소합니다
func (r *Resilient) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	return r.do(ctx, "주문 취소", func(ctx context.Context) error {
		return r.inner.CancelOrder(ctx, symbol, orderID)
	})
}

// SetLeverage는 레버리지를 설정합니다
func (r *Resilient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return r.do(ctx, "레버리지 설정", func(ctx context.Context) error {
		return r.inner.SetLeverage(ctx, symbol, leverage)
	})
}

// GetPositionMode는 현재 포지션 모드를 조회합니다
func (r *Resilient) GetPositionMode(ctx context.Context) (bool, error) {
	var result bool
	err := r.do(ctx, "포지션 모드 조회", func(ctx context.Context) error {
		var err error
		result, err = r.inner.GetPositionMode(ctx)
		return err
	})
	return result, err
}

// SetPositionMode는 포지션 모드를 설정합니다
func (r *Resilient) SetPositionMode(ctx context.Context, hedgeMode bool) error {
	return r.do(ctx, "포지션 모드 설정", func(ctx context.Context) error {
		return r.inner.SetPositionMode(ctx, hedgeMode)
	})
}
