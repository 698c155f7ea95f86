package exchange

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/assist-by/halcyon/internal/domain"
)

// fakeExchange는 GetMarkPrice 호출을 스크립트대로 실패시키는 가짜 거래소입니다.
// 나머지 메서드는 임베딩된 인터페이스에 맡깁니다 (호출되면 패닉).
type fakeExchange struct {
	Exchange
	calls  int
	markFn func(call int) (float64, error)
}

func (f *fakeExchange) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	f.calls++
	return f.markFn(f.calls)
}

// fakeResyncer는 재동기화 호출 횟수를 기록합니다
type fakeResyncer struct {
	calls int
}

func (f *fakeResyncer) Resync(ctx context.Context) error {
	f.calls++
	return nil
}

func newTestResilient(inner Exchange, rs Resyncer) *Resilient {
	return NewResilient(inner, rs, WithRetryDelay(time.Millisecond))
}

func TestResilientSuccess(t *testing.T) {
	fake := &fakeExchange{markFn: func(call int) (float64, error) {
		return 100.5, nil
	}}
	rs := &fakeResyncer{}

	r := newTestResilient(fake, rs)
	price, err := r.GetMarkPrice(context.Background(), "BTCUSDT")

	require.NoError(t, err)
	require.Equal(t, 100.5, price)
	require.Equal(t, 1, fake.calls, "성공하면 한 번만 호출해야 합니다")
	require.Equal(t, 0, rs.calls)
}

func TestResilientPermanentRejection(t *testing.T) {
	// 영구 거부는 재시도 없이 즉시 반환
	fake := &fakeExchange{markFn: func(call int) (float64, error) {
		return 0, &domain.APIError{Code: domain.ErrCodePositionModeNoChange, Message: "No need to change position side."}
	}}
	rs := &fakeResyncer{}

	r := newTestResilient(fake, rs)
	_, err := r.GetMarkPrice(context.Background(), "BTCUSDT")

	require.Error(t, err)
	require.Equal(t, 1, fake.calls, "영구 거부는 정확히 한 번만 시도해야 합니다")
	require.Equal(t, 0, rs.calls)

	apiErr, ok := domain.AsAPIError(err)
	require.True(t, ok)
	require.Equal(t, domain.ErrCodePositionModeNoChange, apiErr.Code)
}

func TestResilientTransientRetries(t *testing.T) {
	// 일시적 실패는 시도 횟수를 전부 소진한 뒤 마지막 에러를 반환
	fake := &fakeExchange{markFn: func(call int) (float64, error) {
		return 0, fmt.Errorf("연결 끊김 %d", call)
	}}
	rs := &fakeResyncer{}

	r := newTestResilient(fake, rs)
	_, err := r.GetMarkPrice(context.Background(), "BTCUSDT")

	require.Error(t, err)
	require.Equal(t, 3, fake.calls, "기본 재시도 한도는 3회입니다")
	require.Contains(t, err.Error(), "연결 끊김 3", "마지막으로 기록된 에러를 반환해야 합니다")
	require.Equal(t, 0, rs.calls)
}

func TestResilientRecoversAfterTransient(t *testing.T) {
	fake := &fakeExchange{markFn: func(call int) (float64, error) {
		if call < 3 {
			return 0, fmt.Errorf("일시적 오류")
		}
		return 42.0, nil
	}}

	r := newTestResilient(fake, &fakeResyncer{})
	price, err := r.GetMarkPrice(context.Background(), "BTCUSDT")

	require.NoError(t, err)
	require.Equal(t, 42.0, price)
	require.Equal(t, 3, fake.calls)
}

func TestResilientClockSkewResync(t *testing.T) {
	// 시계 오차는 강제 재동기화 후 재시도
	fake := &fakeExchange{markFn: func(call int) (float64, error) {
		if call == 1 {
			return 0, &domain.APIError{Code: domain.ErrCodeInvalidTimestamp, Message: "Timestamp for this request is outside of the recvWindow."}
		}
		return 7.5, nil
	}}
	rs := &fakeResyncer{}

	r := newTestResilient(fake, rs)
	price, err := r.GetMarkPrice(context.Background(), "BTCUSDT")

	require.NoError(t, err)
	require.Equal(t, 7.5, price)
	require.Equal(t, 2, fake.calls)
	require.Equal(t, 1, rs.calls, "시계 오차마다 재동기화를 수행해야 합니다")
}

func TestResilientAllAttemptsSkew(t *testing.T) {
	// 모든 시도가 시계 오차로 소진되면 원인 에러가 없으므로 일반 에러 반환
	fake := &fakeExchange{markFn: func(call int) (float64, error) {
		return 0, &domain.APIError{Code: domain.ErrCodeInvalidTimestamp, Message: "Timestamp for this request is outside of the recvWindow."}
	}}
	rs := &fakeResyncer{}

	r := newTestResilient(fake, rs)
	_, err := r.GetMarkPrice(context.Background(), "BTCUSDT")

	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownRequest))
	require.Equal(t, 3, fake.calls)
	require.Equal(t, 3, rs.calls)
}

func TestResilientContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &fakeExchange{markFn: func(call int) (float64, error) {
		cancel() // 첫 실패 후 재시도 대기 중 취소
		return 0, fmt.Errorf("일시적 오류")
	}}

	r := NewResilient(fake, nil, WithRetryDelay(time.Hour))
	_, err := r.GetMarkPrice(ctx, "BTCUSDT")

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, fake.calls)
}
