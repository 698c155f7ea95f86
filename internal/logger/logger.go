package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config는 로거 설정을 정의합니다
type Config struct {
	Level      string // 로그 레벨 (debug, info, warn, error)
	OutputFile string // 로그 파일 경로 (비어있으면 표준 출력만 사용)
	MaxSize    int    // 로그 파일 최대 크기 (MB)
	MaxBackups int    // 보관할 백업 파일 개수
	MaxAge     int    // 백업 파일 보관 일수
	Compress   bool   // 백업 파일 압축 여부
}

// std는 패키지 전역 로거입니다. Init 전에도 기본 설정으로 동작합니다.
var std = newDefault()

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}

// Init은 설정에 따라 전역 로거를 초기화합니다
func Init(cfg Config) error {
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return fmt.Errorf("로그 레벨 파싱 실패: %w", err)
	}
	std.SetLevel(level)

	if cfg.OutputFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		std.SetOutput(io.MultiWriter(os.Stdout, rotator))
	} else {
		std.SetOutput(os.Stdout)
	}

	return nil
}

// WithComponent는 컴포넌트 이름이 붙은 로그 엔트리를 반환합니다
func WithComponent(name string) *logrus.Entry {
	return std.WithField("component", name)
}

// WithField는 필드가 추가된 로그 엔트리를 반환합니다
func WithField(key string, value interface{}) *logrus.Entry {
	return std.WithField(key, value)
}

// WithError는 에러 필드가 추가된 로그 엔트리를 반환합니다
func WithError(err error) *logrus.Entry {
	return std.WithError(err)
}

// Debugf는 디버그 레벨 로그를 출력합니다
func Debugf(format string, args ...interface{}) {
	std.Debugf(format, args...)
}

// Infof는 정보 레벨 로그를 출력합니다
func Infof(format string, args ...interface{}) {
	std.Infof(format, args...)
}

// Warnf는 경고 레벨 로그를 출력합니다
func Warnf(format string, args ...interface{}) {
	std.Warnf(format, args...)
}

// Errorf는 에러 레벨 로그를 출력합니다
func Errorf(format string, args ...interface{}) {
	std.Errorf(format, args...)
}

// Fatalf는 치명적 에러 로그를 출력하고 프로세스를 종료합니다
func Fatalf(format string, args ...interface{}) {
	std.Fatalf(format, args...)
}
