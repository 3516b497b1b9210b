package core

import (
	"context"
	"io"
	"log/slog"
)

// LevelTrace is below slog.LevelDebug and logs every response sent.
const LevelTrace slog.Level = slog.LevelDebug - 1

// NewLogger returns a text logger writing to w at level, the format used on
// the debug UART and on stderr of the host tools.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (p *Programmer) logerr(msg string, attrs ...slog.Attr) {
	p.logattrs(slog.LevelError, msg, attrs...)
}

func (p *Programmer) warn(msg string, attrs ...slog.Attr) {
	p.logattrs(slog.LevelWarn, msg, attrs...)
}

func (p *Programmer) info(msg string, attrs ...slog.Attr) {
	p.logattrs(slog.LevelInfo, msg, attrs...)
}

func (p *Programmer) debug(msg string, attrs ...slog.Attr) {
	p.logattrs(slog.LevelDebug, msg, attrs...)
}

func (p *Programmer) trace(msg string, attrs ...slog.Attr) {
	p.logattrs(LevelTrace, msg, attrs...)
}

func (p *Programmer) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		p.logger.LogAttrs(context.Background(), level, msg, attrs...)
	}
}
