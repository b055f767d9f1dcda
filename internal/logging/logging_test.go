// SPDX-License-Identifier: Apache-2.0

package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/vgmedical/casecheck/internal/logging"
)

func TestInit_JSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	logging.InitWithWriter(&buf, "casecheck", "production", "debug")

	log.Info().Str("case_number", "VG_1").Msg("verified")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "casecheck", entry["service"])
	assert.Equal(t, "VG_1", entry["case_number"])
	assert.Contains(t, entry, "time")
	assert.Contains(t, entry, "caller")
}

func TestInit_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logging.InitWithWriter(&buf, "casecheck", "production", "warn")
	t.Cleanup(func() { logging.InitWithWriter(&buf, "casecheck", "production", "info") })

	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
	log.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestFromContext_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logging.InitWithWriter(&buf, "casecheck", "production", "info")

	logging.FromContext(context.Background()).Info().Msg("no span")
	assert.NotContains(t, buf.String(), "trace_id")
	buf.Reset()

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	logging.FromContext(ctx).Info().Msg("with span")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, sc.TraceID().String(), entry["trace_id"])
	assert.Equal(t, sc.SpanID().String(), entry["span_id"])
}
