package b2uploader

import (
	"log"

	"go.uber.org/zap"
)

// Logger interface allows for dependency injection of logging
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type DefaultLogger struct{}

func (l *DefaultLogger) Info(msg string, args ...any) {
	log.Println(append([]any{" [INFO] B2 |", msg}, args...)...)
}

func (l *DefaultLogger) Error(msg string, args ...any) {
	log.Println(append([]any{"[ERROR] B2 |", msg}, args...)...)
}

// ZapLogger forwards to a zap sugared logger using its key/value variants.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

func NewZapLogger(sugar *zap.SugaredLogger) *ZapLogger {
	return &ZapLogger{sugar: sugar}
}

func (l *ZapLogger) Info(msg string, args ...any) {
	l.sugar.Infow(msg, args...)
}

func (l *ZapLogger) Error(msg string, args ...any) {
	l.sugar.Errorw(msg, args...)
}
