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

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-webauthn-rp/pkg/correlation"
)

func newJSONAdapter(t *testing.T) (*SlogAdapter, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	adapter := NewSlogAdapter(&SlogConfig{
		Handler: slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
	return adapter, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestSlogAdapterFields(t *testing.T) {
	adapter, buf := newJSONAdapter(t)

	adapter.Info("key created", String("kid", "abc"), Int("strength", 256))

	entry := decodeLine(t, buf)
	assert.Equal(t, "key created", entry["msg"])
	assert.Equal(t, "abc", entry["kid"])
	assert.Equal(t, float64(256), entry["strength"])
}

func TestSlogAdapterWith(t *testing.T) {
	adapter, buf := newJSONAdapter(t)

	child := adapter.With(String("component", "keys"))
	child.Warn("rotation forced")

	entry := decodeLine(t, buf)
	assert.Equal(t, "keys", entry["component"])
	assert.Equal(t, "rotation forced", entry["msg"])
}

func TestSlogAdapterWithError(t *testing.T) {
	adapter, buf := newJSONAdapter(t)

	adapter.WithError(errors.New("boom")).Error("request failed")

	entry := decodeLine(t, buf)
	assert.Equal(t, "boom", entry["error"])
}

func TestSlogAdapterCorrelationContext(t *testing.T) {
	adapter, buf := newJSONAdapter(t)

	ctx := correlation.WithCorrelationID(context.Background(), "req-1")
	adapter.InfoContext(ctx, "ceremony started")

	entry := decodeLine(t, buf)
	assert.Equal(t, "req-1", entry["correlation_id"])
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "FATAL", LevelFatal.String())
}

func TestNoopLogger(t *testing.T) {
	log := NewNoopLogger()
	log.Debug("ignored")
	log.Info("ignored")
	log.Warn("ignored")
	log.Error("ignored")
	assert.Same(t, log, log.With(String("k", "v")))
	assert.Same(t, log, log.WithError(errors.New("boom")))
}
