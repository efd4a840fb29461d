package main

import (
	"context"
	"io"
	"log/slog"

	glog "github.com/goliatone/go-logger/glog"
)

// slogLogger satisfies glog.Logger on top of a slog text handler. Gateway
// log args are already flattened key/value pairs.
type slogLogger struct {
	logger *slog.Logger
}

func newSlogLogger(w io.Writer, verbose bool) glog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slogLogger{logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))}
}

func (l slogLogger) Trace(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l slogLogger) Fatal(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l slogLogger) WithContext(context.Context) glog.Logger {
	return l
}
