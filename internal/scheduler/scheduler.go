package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/assist-by/halcyon/internal/logger"
)

// Task는 스케줄러가 실행할 작업을 정의하는 인터페이스입니다
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc는 일반 함수를 Task로 쓸 수 있게 하는 어댑터입니다
type TaskFunc func(ctx context.Context) error

// Execute는 Task 인터페이스를 구현합니다
func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Phase는 매시 지정된 분에 실행되는 작업 단계입니다
type Phase struct {
	Minute int    // 실행 시각 (분, 0~59)
	Name   string // 로그용 단계 이름
	Task   Task
}

// Scheduler는 매시 고정된 분 시각에 단계들을 실행합니다.
// 다음 실행 시각을 미리 계산해 그 시각까지 잠들기 때문에, 진동하는 틱으로
// 인한 단계 누락이나 중복 실행이 없습니다. 같은 분을 공유하는 단계는
// 그 시각에 등록 순서대로 모두 실행됩니다.
type Scheduler struct {
	phases  []Phase
	backoff time.Duration
	log     *logrus.Entry
	stopCh  chan struct{}
}

// Option은 스케줄러 생성 옵션을 정의합니다
type Option func(*Scheduler)

// WithBackoff는 단계에서 패닉이 빠져나왔을 때의 재개 대기 시간을 설정합니다
func WithBackoff(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.backoff = d
		}
	}
}

// NewScheduler는 새로운 스케줄러를 생성합니다
func NewScheduler(phases []Phase, opts ...Option) *Scheduler {
	s := &Scheduler{
		phases:  phases,
		backoff: 10 * time.Second,
		log:     logger.WithComponent("scheduler"),
		stopCh:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// nextTrigger는 after 이후 가장 이른 단계 실행 시각과 그 시각에 실행할
// 단계들을 반환합니다. 같은 시각에 걸린 단계는 등록 순서대로 모두
// 포함되므로 분이 겹쳐도 굶는 단계가 없습니다. 실행 시각은 항상 after보다
// 엄격히 뒤이므로, 직전 발화 시각을 기준으로 넘기면 같은 트리거가 두 번
// 발화하지 않습니다.
func (s *Scheduler) nextTrigger(after time.Time) (time.Time, []*Phase) {
	var bestTime time.Time
	var due []*Phase

	for i := range s.phases {
		phase := &s.phases[i]
		t := time.Date(after.Year(), after.Month(), after.Day(), after.Hour(),
			phase.Minute, 0, 0, after.Location())
		if !t.After(after) {
			t = t.Add(time.Hour)
		}
		switch {
		case due == nil || t.Before(bestTime):
			bestTime = t
			due = []*Phase{phase}
		case t.Equal(bestTime):
			due = append(due, phase)
		}
	}

	return bestTime, due
}

// phaseNames는 로그용으로 단계 이름들을 이어 붙입니다
func phaseNames(phases []*Phase) string {
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}

// Start는 스케줄러 루프를 시작합니다. ctx 취소 또는 Stop까지 블로킹합니다.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.phases) == 0 {
		s.log.Warnf("등록된 단계가 없어 스케줄러를 시작하지 않습니다")
		return nil
	}

	next, due := s.nextTrigger(time.Now())
	s.log.Infof("다음 단계까지 %v 대기 (%s, %s)",
		time.Until(next).Round(time.Second), phaseNames(due), next.Format("15:04:05"))

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.stopCh:
			return nil

		case <-timer.C:
			for _, phase := range due {
				s.runPhase(ctx, phase)
			}

			// 발화 시각을 기준으로 다음 시각을 계산합니다
			next, due = s.nextTrigger(next)
			s.log.Infof("다음 단계까지 %v 대기 (%s, %s)",
				time.Until(next).Round(time.Second), phaseNames(due), next.Format("15:04:05"))
			timer.Reset(time.Until(next))
		}
	}
}

// runPhase는 단계를 실행합니다. 단계의 에러와 패닉은 루프를 중단시키지
// 않으며, 패닉의 경우 잠시 대기해 뜨거운 실패 루프를 방지합니다.
func (s *Scheduler) runPhase(ctx context.Context, phase *Phase) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("단계 실행 중 패닉 (%s): %v, %v 후 재개", phase.Name, r, s.backoff)
			select {
			case <-ctx.Done():
			case <-time.After(s.backoff):
			}
		}
	}()

	s.log.Infof("단계 실행: %s", phase.Name)
	if err := phase.Task.Execute(ctx); err != nil {
		// 에러가 발생해도 다음 주기는 계속 실행
		s.log.Errorf("단계 실행 실패 (%s): %v", phase.Name, err)
	}
}

// Stop은 스케줄러를 중지합니다
func (s *Scheduler) Stop() {
	close(s.stopCh)
}
