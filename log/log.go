// Copyright 2022 The forwarder Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package log

import "context"

// Logger is the logger used throughout the package for unstructured,
// printf-style messages.
type Logger interface {
	Errorf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// StructuredLogger is the logger used where callers want leveled,
// key-value structured messages instead of printf formatting. NewLoggerAdapter
// bridges a plain Logger into this interface for callers that only have one.
type StructuredLogger interface {
	Fatal(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
	Trace(msg string, args ...any)

	FatalContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	DebugContext(ctx context.Context, msg string, args ...any)
	TraceContext(ctx context.Context, msg string, args ...any)

	With(args ...any) StructuredLogger
}
