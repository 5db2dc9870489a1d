/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"bytes"
	"context"
	"testing"

	log "go.opentelemetry.io/otel/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRejectsBadLevel(t *testing.T) {
	err := Init(context.Background(), &Config{Level: "loud"})
	require.Error(t, err)
}

func TestInitAppliesDebug(t *testing.T) {
	require.NoError(t, Init(context.Background(), &Config{Debug: true}))
	assert.Equal(t, "debug", GetLogger().GetLevel().String())
}

func TestMapZerologLevelToOTEL(t *testing.T) {
	tests := []struct {
		level    string
		expected log.Severity
	}{
		{"trace", log.SeverityTrace},
		{"debug", log.SeverityDebug},
		{"info", log.SeverityInfo},
		{"warn", log.SeverityWarn},
		{"error", log.SeverityError},
		{"fatal", log.SeverityFatal},
		{"unknown", log.SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, mapZerologLevelToOTEL(tt.level))
		})
	}
}

func TestMultiWriterKeepsPrimaryError(t *testing.T) {
	primary := &bytes.Buffer{}
	secondary := &bytes.Buffer{}

	w := NewMultiWriter(primary, secondary)

	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", primary.String())
	assert.Equal(t, "hello", secondary.String())
}

func TestNewTestLoggerDiscards(t *testing.T) {
	l := NewTestLogger()
	// Must not panic or emit anything.
	l.Info().Str("k", "v").Msg("discarded")
	l.Error().Msg("discarded")
}
