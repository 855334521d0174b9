package logging

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes gorm's slow query and error output through zap.
func GormLogger(l *zap.Logger) gormlogger.Interface {
	return gormlogger.New(
		zap.NewStdLog(Component(l, "gorm")),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

type cronLogger struct {
	sugar *zap.SugaredLogger
}

// CronLogger adapts zap to the cron.Logger interface.
func CronLogger(l *zap.Logger) cron.Logger {
	return cronLogger{sugar: Component(l, "cron").Sugar()}
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.sugar.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
