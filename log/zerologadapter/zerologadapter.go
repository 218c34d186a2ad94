// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package zerologadapter wires rs/zerolog into both the package's
// printf-style Logger interface and its leveled StructuredLogger interface,
// optionally rotating its output file through lumberjack.
package zerologadapter

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	flog "github.com/saucelabs/proxychain/log"
)

var _ flog.Logger = (*Logger)(nil)
var _ flog.StructuredLogger = (*Logger)(nil)

// Logger adapts a zerolog.Logger to both of the package's logger interfaces.
type Logger struct {
	log zerolog.Logger
}

// New builds a Logger writing to cfg.File (or stdout if nil), rotated
// through lumberjack when the WithRotation option is given.
func New(cfg *flog.Config, opts ...Option) *Logger {
	var w io.Writer = os.Stdout
	if cfg.File != nil {
		w = cfg.File
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rotate != nil {
		o.rotate.Filename = fileName(cfg.File)
		w = o.rotate
	}

	zl := zerolog.New(w).With().Timestamp().Logger().Level(flogToZerologLevel(cfg.Level))
	if cfg.Mode == flog.TextFormat {
		zl = zl.Output(zerolog.ConsoleWriter{Out: w, NoColor: true})
	}

	return &Logger{log: zl}
}

func fileName(f *os.File) string {
	if f == nil {
		return ""
	}
	return f.Name()
}

// Option configures New.
type Option func(*options)

type options struct {
	rotate *lumberjack.Logger
}

// WithRotation routes the logger's output through lumberjack, rolling it
// over once it exceeds maxSizeMB, keeping at most maxBackups old files.
func WithRotation(maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(o *options) {
		o.rotate = &lumberjack.Logger{
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
	}
}

func flogToZerologLevel(level flog.Level) zerolog.Level {
	switch level {
	case flog.TraceLevel:
		return zerolog.TraceLevel
	case flog.DebugLevel:
		return zerolog.DebugLevel
	case flog.InfoLevel:
		return zerolog.InfoLevel
	case flog.WarnLevel:
		return zerolog.WarnLevel
	case flog.ErrorLevel:
		return zerolog.ErrorLevel
	case flog.FatalLevel:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Errorf, Infof and Debugf satisfy flog.Logger for callers that only know
// the printf-style interface (dialers, socksdial, the root server).
func (l *Logger) Errorf(format string, args ...interface{}) { l.log.Error().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.log.Info().Msgf(format, args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.log.Debug().Msgf(format, args...) }

func (l *Logger) Fatal(msg string, args ...any) { l.event(l.log.Fatal(), args).Msg(msg) }
func (l *Logger) Error(msg string, args ...any) { l.event(l.log.Error(), args).Msg(msg) }
func (l *Logger) Warn(msg string, args ...any)  { l.event(l.log.Warn(), args).Msg(msg) }
func (l *Logger) Info(msg string, args ...any)  { l.event(l.log.Info(), args).Msg(msg) }
func (l *Logger) Debug(msg string, args ...any) { l.event(l.log.Debug(), args).Msg(msg) }
func (l *Logger) Trace(msg string, args ...any) { l.event(l.log.Trace(), args).Msg(msg) }

func (l *Logger) FatalContext(_ context.Context, msg string, args ...any) { l.Fatal(msg, args...) }
func (l *Logger) ErrorContext(_ context.Context, msg string, args ...any) { l.Error(msg, args...) }
func (l *Logger) WarnContext(_ context.Context, msg string, args ...any)  { l.Warn(msg, args...) }
func (l *Logger) InfoContext(_ context.Context, msg string, args ...any)  { l.Info(msg, args...) }
func (l *Logger) DebugContext(_ context.Context, msg string, args ...any) { l.Debug(msg, args...) }
func (l *Logger) TraceContext(_ context.Context, msg string, args ...any) { l.Trace(msg, args...) }

func (l *Logger) With(args ...any) flog.StructuredLogger {
	ctx := l.log.With()
	for i := 0; i+1 < len(args); i += 2 {
		ctx = ctx.Interface(keyString(args[i]), args[i+1])
	}
	return &Logger{log: ctx.Logger()}
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return "field"
}

// event appends args as alternating key/value pairs onto an in-flight
// zerolog event, mirroring the adapter's own "k=v" formatting convention.
func (l *Logger) event(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		e = e.Interface(keyString(args[i]), args[i+1])
	}
	return e
}
