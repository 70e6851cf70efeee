package logging

import (
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

// waLogger routes whatsmeow's printf-style logging into zap.
type waLogger struct {
	base   *zap.Logger
	sugar  *zap.SugaredLogger
	module string
}

// WA returns a whatsmeow logger backed by the given zap logger.
func WA(logger *zap.Logger, module string) waLog.Logger {
	return &waLogger{
		base:   logger,
		sugar:  logger.With(zap.String("module", module)).Sugar(),
		module: module,
	}
}

func (l *waLogger) Debugf(msg string, args ...any) { l.sugar.Debugf(msg, args...) }
func (l *waLogger) Infof(msg string, args ...any)  { l.sugar.Infof(msg, args...) }
func (l *waLogger) Warnf(msg string, args ...any)  { l.sugar.Warnf(msg, args...) }
func (l *waLogger) Errorf(msg string, args ...any) { l.sugar.Errorf(msg, args...) }

func (l *waLogger) Sub(module string) waLog.Logger {
	return WA(l.base, l.module+"/"+module)
}
