// Package logging はアプリケーション共通のロガーを構築します。
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// NewLogger は zerolog.Logger を作成します。
// development ではコンソール出力、それ以外は JSON 出力になります。
func NewLogger(appEnv, level string) zerolog.Logger {
	return newLogger(os.Stdout, appEnv, level)
}

func newLogger(out io.Writer, appEnv, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
		if appEnv == "development" {
			lvl = zerolog.DebugLevel
		}
	}

	logger := zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	return logger
}

// AsynqLevel は zerolog のレベルを asynq のレベルに合わせます。
func AsynqLevel(logger zerolog.Logger) asynq.LogLevel {
	switch logger.GetLevel() {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return asynq.DebugLevel
	case zerolog.WarnLevel:
		return asynq.WarnLevel
	case zerolog.ErrorLevel:
		return asynq.ErrorLevel
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return asynq.FatalLevel
	default:
		return asynq.InfoLevel
	}
}

// AsynqLogger は asynq.Logger を zerolog に流すアダプタです。
type AsynqLogger struct {
	logger zerolog.Logger
}

var _ asynq.Logger = (*AsynqLogger)(nil)

// NewAsynqLogger は component=asynq を付けたアダプタを返します。
func NewAsynqLogger(logger zerolog.Logger) *AsynqLogger {
	return &AsynqLogger{logger: logger.With().Str("component", "asynq").Logger()}
}

func (l *AsynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l *AsynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l *AsynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l *AsynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }

// Fatal は asynq の契約どおりプロセスを終了させます。
func (l *AsynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
