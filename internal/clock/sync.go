package clock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/halcyon/internal/logger"
)

// 계산된 오프셋이 이 값을 넘으면 로컬 시계 설정을 의심해야 합니다
const maxAllowedOffsetMs = 10000

// 이 지연 이하의 샘플은 충분히 정확하다고 보고 즉시 채택합니다
const lowLatencyThreshold = 500 * time.Millisecond

// defaultEndpoints는 기본 시간 동기화 엔드포인트 목록입니다.
// 같은 시간을 반환하는 복수의 호스트를 순서대로 시도합니다.
var defaultEndpoints = []string{
	"https://api.binance.com/api/v3/time",
	"https://api1.binance.com/api/v3/time",
	"https://api2.binance.com/api/v3/time",
	"https://api3.binance.com/api/v3/time",
}

// Manager는 거래소 서버 시간과 로컬 시간의 오프셋을 관리합니다.
// 서명 요청에 사용할 타임스탬프를 드리프트 보정과 함께 제공합니다.
type Manager struct {
	endpoints    []string
	httpClient   *http.Client
	syncInterval time.Duration // 주기적 재동기화 간격
	minInterval  time.Duration // 연속 동기화 최소 간격 (force로 무시 가능)
	log          *logrus.Entry

	// 동기화 작업 자체의 직렬화
	syncMu sync.Mutex

	// 오프셋 상태. 세 값은 항상 함께 갱신됩니다.
	mu             sync.RWMutex
	offset         int64 // 서버 시간 - 로컬 시간 (ms)
	lastServerTime int64 // 마지막 동기화에서 받은 서버 시간 (ms)
	lastLocalTime  int64 // 마지막 동기화의 로컬 수신 시간 (ms)
	synced         bool
	lastSync       time.Time
	lastEndpoint   string
	lastDelay      time.Duration

	// 백그라운드 갱신 고루틴 제어
	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option은 Manager 생성 옵션을 정의합니다
type Option func(*Manager)

// WithEndpoints는 시간 동기화 엔드포인트 목록을 설정합니다
func WithEndpoints(endpoints []string) Option {
	return func(m *Manager) {
		if len(endpoints) > 0 {
			m.endpoints = endpoints
		}
	}
}

// WithSyncInterval은 주기적 재동기화 간격을 설정합니다
func WithSyncInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.syncInterval = interval
		}
	}
}

// WithMinSyncInterval은 연속 동기화 사이의 최소 간격을 설정합니다
func WithMinSyncInterval(interval time.Duration) Option {
	return func(m *Manager) {
		if interval > 0 {
			m.minInterval = interval
		}
	}
}

// WithHTTPClient는 HTTP 클라이언트를 설정합니다
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.httpClient = client
		}
	}
}

// NewManager는 새로운 시간 동기화 매니저를 생성합니다
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		endpoints:    defaultEndpoints,
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		syncInterval: 30 * time.Minute,
		minInterval:  5 * time.Second,
		log:          logger.WithComponent("clock"),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// sample은 단일 엔드포인트 측정 결과입니다
type sample struct {
	serverTime int64
	sendMs     int64
	recvMs     int64
	delay      time.Duration
	endpoint   string
}

// Sync는 서버 시간과 동기화합니다.
// 마지막 동기화로부터 최소 간격이 지나지 않았으면 무시되며, force로 강제할 수 있습니다.
// 모든 엔드포인트가 실패하면 기존 오프셋을 유지한 채 비동기화 상태로 표시합니다.
func (m *Manager) Sync(ctx context.Context, force bool) error {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	m.mu.RLock()
	sinceLast := time.Since(m.lastSync)
	alreadySynced := m.synced
	m.mu.RUnlock()

	if !force && alreadySynced && sinceLast < m.minInterval {
		m.log.Debugf("최근 %.1f초 전에 동기화됨, 이번 요청은 무시", sinceLast.Seconds())
		return nil
	}

	best, err := m.measure(ctx)
	if err != nil {
		m.mu.Lock()
		m.synced = false
		m.mu.Unlock()
		return fmt.Errorf("시간 동기화 실패: %w", err)
	}

	// 요청 왕복의 중간 시점을 서버 시간의 기준점으로 사용
	estimatedAtSend := best.sendMs + int64(best.delay/time.Millisecond)/2
	offset := best.serverTime - estimatedAtSend

	m.mu.Lock()
	m.offset = offset
	m.lastServerTime = best.serverTime
	m.lastLocalTime = best.recvMs
	m.synced = true
	m.lastSync = time.Now()
	m.lastEndpoint = best.endpoint
	m.lastDelay = best.delay
	m.mu.Unlock()

	m.log.Infof("시간 동기화 완료: 오프셋 %+dms, 네트워크 지연 %dms (%s)",
		offset, best.delay.Milliseconds(), best.endpoint)

	if offset > maxAllowedOffsetMs || offset < -maxAllowedOffsetMs {
		m.log.Warnf("시간 오프셋이 허용치(%dms)를 초과했습니다: %+dms. 로컬 시계 설정을 확인하세요",
			maxAllowedOffsetMs, offset)
	}

	return nil
}

// measure는 엔드포인트를 순서대로 측정해 가장 좋은 샘플을 반환합니다.
// 지연이 낮은 샘플을 발견하면 나머지 엔드포인트는 시도하지 않습니다.
func (m *Manager) measure(ctx context.Context) (*sample, error) {
	var best *sample
	var lastErr error

	for _, endpoint := range m.endpoints {
		s, err := m.fetchTime(ctx, endpoint)
		if err != nil {
			m.log.Warnf("시간 조회 실패 (%s): %v", endpoint, err)
			lastErr = err
			continue
		}

		if best == nil || s.delay < best.delay {
			best = s
		}
		if s.delay < lowLatencyThreshold {
			break
		}
		m.log.Debugf("네트워크 지연이 큽니다 (%dms), 다음 엔드포인트 시도", s.delay.Milliseconds())
	}

	if best == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("모든 시간 엔드포인트 조회 실패: %w", lastErr)
		}
		return nil, fmt.Errorf("사용 가능한 시간 엔드포인트가 없습니다")
	}

	return best, nil
}

// fetchTime은 단일 엔드포인트에서 서버 시간을 조회하고 왕복 지연을 측정합니다
func (m *Manager) fetchTime(ctx context.Context, endpoint string) (*sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("요청 생성 실패: %w", err)
	}

	sendMs := time.Now().UnixMilli()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("요청 실패: %w", err)
	}
	defer resp.Body.Close()
	recvMs := time.Now().UnixMilli()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP 에러(%d)", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("응답 읽기 실패: %w", err)
	}

	var result struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("서버 시간 파싱 실패: %w", err)
	}
	if result.ServerTime == 0 {
		return nil, fmt.Errorf("서버 시간이 비어있습니다")
	}

	return &sample{
		serverTime: result.ServerTime,
		sendMs:     sendMs,
		recvMs:     recvMs,
		delay:      time.Duration(recvMs-sendMs) * time.Millisecond,
		endpoint:   endpoint,
	}, nil
}

// Now는 드리프트 보정된 서버 시간 타임스탬프(ms)를 반환합니다.
// 동기화된 적이 없으면 강제로 동기화하고, 동기화가 오래됐으면 재동기화합니다.
// 이후에는 오프셋을 매번 더하는 대신 마지막 서버 시간에서 로컬 경과 시간만큼
// 외삽해 로컬 시계 드리프트의 누적을 피합니다.
func (m *Manager) Now(ctx context.Context) int64 {
	m.mu.RLock()
	synced := m.synced
	lastSync := m.lastSync
	m.mu.RUnlock()

	if !synced {
		if err := m.Sync(ctx, true); err != nil {
			m.log.Warnf("타임스탬프 생성 중 동기화 실패, 로컬 시간 사용: %v", err)
		}
	} else if time.Since(lastSync) > m.syncInterval {
		if err := m.Sync(ctx, false); err != nil {
			m.log.Warnf("주기 재동기화 실패, 기존 오프셋으로 외삽 유지: %v", err)
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	nowLocal := time.Now().UnixMilli()
	if m.lastServerTime > 0 {
		return m.lastServerTime + (nowLocal - m.lastLocalTime)
	}
	return nowLocal + m.offset
}

// RawNow는 외삽 없이 로컬 시간에 오프셋만 더한 값(ms)을 반환합니다.
// 진단 용도로만 사용하세요.
func (m *Manager) RawNow() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Now().UnixMilli() + m.offset
}

// Offset은 현재 오프셋(ms)을 반환합니다
func (m *Manager) Offset() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.offset
}

// Resync는 최소 간격을 무시하고 즉시 재동기화합니다.
// 시계 오차로 거부된 요청의 재시도 경로에서 호출됩니다.
func (m *Manager) Resync(ctx context.Context) error {
	return m.Sync(ctx, true)
}

// Status는 현재 동기화 상태의 스냅샷입니다
type Status struct {
	Synced       bool
	OffsetMs     int64
	LastSyncAt   time.Time
	LastEndpoint string
	LastDelayMs  int64
}

// Status는 진단용 동기화 상태를 반환합니다
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Synced:       m.synced,
		OffsetMs:     m.offset,
		LastSyncAt:   m.lastSync,
		LastEndpoint: m.lastEndpoint,
		LastDelayMs:  m.lastDelay.Milliseconds(),
	}
}

// Start는 주기적 재동기화 고루틴을 시작합니다
func (m *Manager) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		m.log.Warnf("백그라운드 동기화가 이미 실행 중입니다")
		return
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.refreshLoop(ctx, m.stopCh, m.doneCh)
	m.log.Infof("백그라운드 시간 동기화 시작 (간격: %v)", m.syncInterval)
}

func (m *Manager) refreshLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if err := m.Sync(ctx, false); err != nil {
				m.log.Warnf("백그라운드 동기화 실패: %v", err)
			}
		}
	}
}

// Stop은 백그라운드 동기화를 중지하고 종료를 제한 시간 동안 기다립니다
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return
	}

	close(m.stopCh)
	select {
	case <-m.doneCh:
	case <-time.After(2 * time.Second):
		m.log.Warnf("백그라운드 동기화 종료 대기 시간 초과")
	}
	m.running = false
	m.log.Infof("백그라운드 시간 동기화 중지")
}
