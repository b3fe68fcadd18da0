package app

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap/zapcore"

	"github.com/matheus3301/dialog/internal/model"
)

// logTap mirrors warnings from outside the executor into the debug log
// pane. The executor posts its own LogMessages, so its entries are skipped.
// The loop is attached after the logger exists; entries before that are
// dropped.
type logTap struct {
	loop atomic.Pointer[poster]
}

type poster interface {
	Post(msg model.Msg)
}

func (t *logTap) attach(p poster) { t.loop.Store(&p) }

func (t *logTap) hook(e zapcore.Entry) {
	if e.Level < zapcore.WarnLevel || strings.HasPrefix(e.LoggerName, "executor") {
		return
	}
	p := t.loop.Load()
	if p == nil {
		return
	}
	level := model.LevelWarn
	if e.Level >= zapcore.ErrorLevel {
		level = model.LevelError
	}
	text := e.Message
	if e.LoggerName != "" {
		text = e.LoggerName + ": " + text
	}
	(*p).Post(model.LogMessage{Entry: model.LogEntry{At: e.Time, Level: level, Text: text}})
}
