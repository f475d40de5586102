// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-webauthn-rp.
//
// go-webauthn-rp is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package logger

// NoopLogger discards everything. It is the default for services whose
// callers did not configure logging.
type NoopLogger struct{}

// NewNoopLogger creates a logger that discards all output.
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

// Debug discards the message.
func (l *NoopLogger) Debug(msg string, fields ...Field) {}

// Info discards the message.
func (l *NoopLogger) Info(msg string, fields ...Field) {}

// Warn discards the message.
func (l *NoopLogger) Warn(msg string, fields ...Field) {}

// Error discards the message.
func (l *NoopLogger) Error(msg string, fields ...Field) {}

// Fatal discards the message without exiting.
func (l *NoopLogger) Fatal(msg string, fields ...Field) {}

// With returns the same logger.
func (l *NoopLogger) With(fields ...Field) Logger { return l }

// WithError returns the same logger.
func (l *NoopLogger) WithError(err error) Logger { return l }
