package main

import (
	"context"
	"fmt"
	"os"
	osSignal "os/signal"
	"syscall"
	"time"

	"github.com/assist-by/halcyon/internal/clock"
	"github.com/assist-by/halcyon/internal/config"
	"github.com/assist-by/halcyon/internal/exchange"
	"github.com/assist-by/halcyon/internal/exchange/binance"
	"github.com/assist-by/halcyon/internal/logger"
	"github.com/assist-by/halcyon/internal/notification/discord"
	"github.com/assist-by/halcyon/internal/position"
	"github.com/assist-by/halcyon/internal/scanner"
	"github.com/assist-by/halcyon/internal/scheduler"
	"github.com/assist-by/halcyon/internal/signal"
	"github.com/assist-by/halcyon/internal/trader"
)

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

	logger.Infof("트레이딩 봇 시작...")

	// Discord 클라이언트 생성
	discordClient := discord.NewClient(
		cfg.Discord.SignalWebhook,
		cfg.Discord.TradeWebhook,
		cfg.Discord.ErrorWebhook,
		cfg.Discord.InfoWebhook,
		discord.WithTimeout(10*time.Second),
	)

	// 시작 알림 전송
	if err := discordClient.SendInfo("🚀 트레이딩 봇이 시작되었습니다."); err != nil {
		logger.Warnf("시작 알림 전송 실패: %v", err)
	}

	if cfg.Binance.UseTestnet {
		discordClient.SendInfo("⚠️ 테스트넷 모드로 실행 중입니다. 실제 자산은 사용되지 않습니다.")
	} else {
		discordClient.SendInfo("⚠️ 메인넷 모드로 실행 중입니다. 실제 자산이 사용됩니다!")
	}

	// 시간 동기화 매니저 생성 및 최초 동기화
	clockManager := clock.NewManager(
		clock.WithSyncInterval(cfg.Clock.SyncInterval),
		clock.WithMinSyncInterval(cfg.Clock.MinSyncInterval),
	)
	if err := clockManager.Sync(ctx, true); err != nil {
		logger.Errorf("바이낸스 서버 시간 동기화 실패: %v", err)
		if err := discordClient.SendError(fmt.Errorf("바이낸스 서버 시간 동기화 실패: %w", err)); err != nil {
			logger.Warnf("에러 알림 전송 실패: %v", err)
		}
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

	// 후보 심볼 스캐너 생성
	symbolScanner := scanner.NewScanner(ex,
		scanner.WithMinPriceChange(cfg.Scanner.MinPriceChangePct),
		scanner.WithMinQuoteVolume(cfg.Scanner.MinQuoteVolume),
	)

	// 시그널 엔진 생성
	engine := signal.NewEngine(signal.Config{
		MinPriceChangePct: cfg.Signal.MinPriceChangePct,
		MaxPriceChangePct: cfg.Signal.MaxPriceChangePct,
		MaxOpenLowPct:     cfg.Signal.MaxOpenLowPct,
		MaxAboveMAPct:     cfg.Signal.MaxAboveMAPct,
	})

	// 트레이더 생성
	tr := trader.NewTrader(ex, symbolScanner, engine, positionManager, trader.Config{
		Leverage:      cfg.Trading.Leverage,
		EntryMargin:   cfg.Trading.EntryMargin,
		CandleLimit:   cfg.Trading.CandleLimit,
		AuditMinute:   cfg.Trading.AuditMinute,
		RefreshMinute: cfg.Trading.RefreshMinute,
		TradeMinute:   cfg.Trading.TradeMinute,
	}, trader.WithNotifier(discordClient))

	// 계정 상태 준비 (원웨이 모드 보장, 잔고 확인)
	if err := tr.Setup(ctx); err != nil {
		logger.Errorf("계정 설정 실패: %v", err)
		if err := discordClient.SendError(fmt.Errorf("계정 설정 실패: %w", err)); err != nil {
			logger.Warnf("에러 알림 전송 실패: %v", err)
		}
		os.Exit(1)
	}

	// 백그라운드 시간 동기화 시작
	clockManager.Start(ctx)

	// 시작 시 후보 심볼 1회 선정
	symbolScanner.Refresh(ctx)

	// 감사/갱신/전략 단계를 매시 고정 분에 실행
	sched := scheduler.NewScheduler(tr.Phases())

	// 시그널 처리
	sigChan := make(chan os.Signal, 1)
	osSignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// 스케줄러 시작
	go func() {
		if err := sched.Start(ctx); err != nil && err != context.Canceled {
			logger.Errorf("스케줄러 실행 중 에러 발생: %v", err)
			if err := discordClient.SendError(err); err != nil {
				logger.Warnf("에러 알림 전송 실패: %v", err)
			}
		}
	}()

	// 시그널 대기
	sig := <-sigChan
	logger.Infof("시스템 종료 신호 수신: %v", sig)

	// 스케줄러와 백그라운드 동기화 중지
	sched.Stop()
	clockManager.Stop()

	// 종료 알림 전송
	if err := discordClient.SendInfo("👋 트레이딩 봇이 정상적으로 종료되었습니다."); err != nil {
		logger.Warnf("종료 알림 전송 실패: %v", err)
	}

	logger.Infof("프로그램을 종료합니다.")
}
