package main

import (
	"context"
	"os"
	osSignal "os/signal"
	"syscall"
	"time"

	"github.com/assist-by/halcyon/internal/clock"
	"github.com/assist-by/halcyon/internal/config"
	"github.com/assist-by/halcyon/internal/exchange"
	"github.com/assist-by/halcyon/internal/exchange/binance"
	"github.com/assist-by/halcyon/internal/logger"
	"github.com/assist-by/halcyon/internal/monitor"
	"github.com/assist-by/halcyon/internal/notification/discord"
	"github.com/assist-by/halcyon/internal/position"
)

// 익절 모니터는 트레이더와 분리된 프로세스로 실행됩니다.
// 두 프로세스는 메모리를 공유하지 않으며, 포지션과 주문의 진실은
// 항상 거래소에서 다시 읽어옵니다.
func main() {
	// 컨텍스트 생성
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 설정 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("설정 로드 실패: %v", err)
	}

	// 로거 초기화
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		logger.Fatalf("로거 초기화 실패: %v", err)
	}

	logger.Infof("익절 모니터 시작...")

	// Discord 클라이언트 생성 (정보/에러 채널만 사용)
	discordClient := discord.NewClient(
		"",
		"",
		cfg.Discord.ErrorWebhook,
		cfg.Discord.InfoWebhook,
		discord.WithTimeout(10*time.Second),
	)

	// 시간 동기화 매니저 생성 및 최초 동기화
	clockManager := clock.NewManager(
		clock.WithSyncInterval(cfg.Clock.SyncInterval),
		clock.WithMinSyncInterval(cfg.Clock.MinSyncInterval),
	)
	if err := clockManager.Sync(ctx, true); err != nil {
		logger.Errorf("바이낸스 서버 시간 동기화 실패: %v", err)
		os.Exit(1)
	}
	status := clockManager.Status()
	logger.Infof("시간 동기화 상태: 오프셋 %+dms, 지연 %dms (%s)",
		status.OffsetMs, status.LastDelayMs, status.LastEndpoint)

	// API 키 선택 및 바이낸스 클라이언트 생성
	apiKey, secretKey := cfg.Keys()
	binanceClient := binance.NewClient(
		apiKey,
		secretKey,
		binance.WithTimeout(10*time.Second),
		binance.WithTestnet(cfg.Binance.UseTestnet),
		binance.WithTimestampSource(clockManager),
	)

	// 모든 요청에 재시도 정책 적용
	ex := exchange.NewResilient(binanceClient, clockManager)

	// 포지션 매니저 생성
	positionManager := position.NewManager(ex, position.WithNotifier(discordClient))

	// 시작 시 잔고와 보유 포지션 확인
	logStartupState(ctx, ex)

	// 백그라운드 시간 동기화 시작
	clockManager.Start(ctx)

	// 모니터 생성
	mon := monitor.NewMonitor(ex, positionManager,
		monitor.WithCheckInterval(cfg.Monitor.CheckInterval),
		monitor.WithProfitMultiple(cfg.Monitor.ProfitMultiple),
	)

	if err := discordClient.SendInfo("💰 익절 모니터가 시작되었습니다."); err != nil {
		logger.Warnf("시작 알림 전송 실패: %v", err)
	}

	// 시그널 처리
	sigChan := make(chan os.Signal, 1)
	osSignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// 모니터 루프 시작
	go func() {
		if err := mon.Start(ctx); err != nil && err != context.Canceled {
			logger.Errorf("모니터 실행 중 에러 발생: %v", err)
			if err := discordClient.SendError(err); err != nil {
				logger.Warnf("에러 알림 전송 실패: %v", err)
			}
		}
	}()

	// 시그널 대기
	sig := <-sigChan
	logger.Infof("시스템 종료 신호 수신: %v", sig)

	// 모니터와 백그라운드 동기화 중지
	mon.Stop()
	clockManager.Stop()

	if err := discordClient.SendInfo("👋 익절 모니터가 정상적으로 종료되었습니다."); err != nil {
		logger.Warnf("종료 알림 전송 실패: %v", err)
	}

	logger.Infof("프로그램을 종료합니다.")
}

// logStartupState는 시작 시점의 잔고와 보유 포지션을 로그로 남깁니다
func logStartupState(ctx context.Context, ex exchange.Exchange) {
	balances, err := ex.GetBalance(ctx)
	if err != nil {
		logger.Warnf("잔고 조회 실패: %v", err)
	} else if usdt, ok := balances["USDT"]; ok {
		logger.Infof("USDT 잔고: 사용 가능 %.2f / 잠김 %.2f", usdt.Available, usdt.Locked)
	}

	positions, err := ex.GetPositions(ctx)
	if err != nil {
		logger.Warnf("포지션 조회 실패: %v", err)
		return
	}
	if len(positions) == 0 {
		logger.Infof("보유 포지션 없음")
		return
	}

	logger.Infof("보유 포지션 %d건:", len(positions))
	for _, pos := range positions {
		side := "SHORT"
		if pos.IsLong() {
			side = "LONG"
		}
		logger.Infof("  %-12s %-5s | 수량 %.8f | 진입가 %g | 마크 %g | 손익 %.2f USDT",
			pos.Symbol, side, pos.Quantity, pos.EntryPrice, pos.MarkPrice, pos.UnrealizedPnL)
	}
}
