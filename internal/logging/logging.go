// Package logging installs the process-wide logger into a context.Context,
// the way pkg/client/userd/service.go calls logging.InitContext before
// starting its goroutine group. Session-core code never imports this
// package directly (spec.md §6: no CLI/env at the session level); it is
// wired in only by cmd/btp-session-demo.
package logging

import (
	"context"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
)

// InitContext installs a logrus-backed dlog.Logger into ctx at the given
// level, returning the derived context every subsequent call must use.
func InitContext(ctx context.Context, processName string, level logrus.Level) context.Context {
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	ctx = dlog.WithLogger(ctx, dlog.WrapLogrus(l))
	ctx = dlog.WithField(ctx, "process", processName)
	return ctx
}

// ParseLevel adapts a config-file/env string ("trace", "debug", "info", ...)
// to a logrus.Level, defaulting to Info on an unrecognized value instead of
// failing startup over a typo'd log level.
func ParseLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
