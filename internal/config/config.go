package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// 바이낸스 API 설정
	Binance struct {
		APIKey        string `envconfig:"BINANCE_API_KEY" required:"true"`
		SecretKey     string `envconfig:"BINANCE_SECRET_KEY" required:"true"`
		TestAPIKey    string `envconfig:"BINANCE_TEST_API_KEY"`
		TestSecretKey string `envconfig:"BINANCE_TEST_SECRET_KEY"`
		UseTestnet    bool   `envconfig:"USE_TESTNET" default:"false"`
	}

	// 디스코드 웹훅 설정
	Discord struct {
		SignalWebhook string `envconfig:"DISCORD_SIGNAL_WEBHOOK"`
		TradeWebhook  string `envconfig:"DISCORD_TRADE_WEBHOOK"`
		ErrorWebhook  string `envconfig:"DISCORD_ERROR_WEBHOOK"`
		InfoWebhook   string `envconfig:"DISCORD_INFO_WEBHOOK"`
	}

	// 로그 설정
	Log struct {
		Level      string `envconfig:"LOG_LEVEL" default:"info"`
		File       string `envconfig:"LOG_FILE"`
		MaxSize    int    `envconfig:"LOG_MAX_SIZE" default:"50"`
		MaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`
		MaxAge     int    `envconfig:"LOG_MAX_AGE" default:"14"`
		Compress   bool   `envconfig:"LOG_COMPRESS" default:"true"`
	}

	// 거래 설정
	Trading struct {
		Leverage      int     `envconfig:"LEVERAGE" default:"5"`
		EntryMargin   float64 `envconfig:"ENTRY_MARGIN" default:"100"`
		CandleLimit   int     `envconfig:"CANDLE_LIMIT" default:"100"`
		AuditMinute   int     `envconfig:"AUDIT_MINUTE" default:"57"`
		RefreshMinute int     `envconfig:"REFRESH_MINUTE" default:"58"`
		TradeMinute   int     `envconfig:"TRADE_MINUTE" default:"59"`
	}

	// 후보 심볼 선정 설정
	Scanner struct {
		MinPriceChangePct float64 `envconfig:"SCANNER_MIN_PRICE_CHANGE" default:"10.0"`
		MinQuoteVolume    float64 `envconfig:"SCANNER_MIN_QUOTE_VOLUME" default:"100000000"`
	}

	// 진입 시그널 평가 설정
	Signal struct {
		MinPriceChangePct float64 `envconfig:"SIGNAL_MIN_PRICE_CHANGE" default:"1.0"`
		MaxPriceChangePct float64 `envconfig:"SIGNAL_MAX_PRICE_CHANGE" default:"4.0"`
		MaxOpenLowPct     float64 `envconfig:"SIGNAL_MAX_OPEN_LOW" default:"4.0"`
		MaxAboveMAPct     float64 `envconfig:"SIGNAL_MAX_ABOVE_MA" default:"11.0"`
	}

	// 시간 동기화 설정
	Clock struct {
		SyncInterval    time.Duration `envconfig:"CLOCK_SYNC_INTERVAL" default:"30m"`
		MinSyncInterval time.Duration `envconfig:"CLOCK_MIN_SYNC_INTERVAL" default:"5s"`
	}

	// 익절 모니터 설정
	Monitor struct {
		CheckInterval  time.Duration `envconfig:"MONITOR_CHECK_INTERVAL" default:"5m"`
		ProfitMultiple float64       `envconfig:"MONITOR_PROFIT_MULTIPLE" default:"1.3"`
	}
}

// ValidateConfig는 설정이 유효한지 확인합니다.
func ValidateConfig(cfg *Config) error {
	if cfg.Trading.Leverage < 1 || cfg.Trading.Leverage > 100 {
		return fmt.Errorf("레버리지는 1 이상 100 이하이어야 합니다")
	}

	if cfg.Trading.EntryMargin <= 0 {
		return fmt.Errorf("ENTRY_MARGIN은 0보다 커야 합니다")
	}

	// 시그널 평가는 MA60까지 필요하므로 캔들이 그보다 적으면 의미가 없습니다
	if cfg.Trading.CandleLimit < 60 {
		return fmt.Errorf("CANDLE_LIMIT은 60 이상이어야 합니다")
	}

	minutes := map[string]int{
		"AUDIT_MINUTE":   cfg.Trading.AuditMinute,
		"REFRESH_MINUTE": cfg.Trading.RefreshMinute,
		"TRADE_MINUTE":   cfg.Trading.TradeMinute,
	}
	for name, minute := range minutes {
		if minute < 0 || minute > 59 {
			return fmt.Errorf("%s는 0 이상 59 이하이어야 합니다", name)
		}
	}

	if cfg.Signal.MinPriceChangePct >= cfg.Signal.MaxPriceChangePct {
		return fmt.Errorf("SIGNAL_MIN_PRICE_CHANGE는 SIGNAL_MAX_PRICE_CHANGE보다 작아야 합니다")
	}

	if cfg.Clock.SyncInterval < 1*time.Minute {
		return fmt.Errorf("CLOCK_SYNC_INTERVAL은 1분 이상이어야 합니다")
	}

	if cfg.Monitor.CheckInterval < 10*time.Second {
		return fmt.Errorf("MONITOR_CHECK_INTERVAL은 10초 이상이어야 합니다")
	}

	if cfg.Monitor.ProfitMultiple <= 1.0 {
		return fmt.Errorf("MONITOR_PROFIT_MULTIPLE은 1보다 커야 합니다")
	}

	return nil
}

// LoadConfig는 환경변수에서 설정을 로드합니다.
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (없으면 프로세스 환경변수만 사용)
	if err := godotenv.Load(); err != nil {
		fmt.Println(".env 파일이 없어 프로세스 환경변수를 사용합니다")
	}

	var cfg Config
	// 환경변수를 구조체로 파싱
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("환경변수 처리 실패: %w", err)
	}

	// 설정값 검증
	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("설정값 검증 실패: %w", err)
	}

	return &cfg, nil
}

// Keys는 테스트넷 여부에 따라 사용할 API 키 쌍을 반환합니다
func (c *Config) Keys() (apiKey, secretKey string) {
	if c.Binance.UseTestnet {
		return c.Binance.TestAPIKey, c.Binance.TestSecretKey
	}
	return c.Binance.APIKey, c.Binance.SecretKey
}
