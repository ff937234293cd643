// ABOUTME: Tests for the event sink abstraction
// ABOUTME: Level helpers and the zerolog adapter

package event

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	events []Event
}

func (c *captureSink) Emit(e Event) { c.events = append(c.events, e) }

func TestLevelHelpers(t *testing.T) {
	sink := &captureSink{}

	Debug(sink, "d", nil)
	Info(sink, "i", Fields{"k": 1})
	Warn(sink, "w", nil)
	Error(sink, "e", nil)

	require.Len(t, sink.events, 4)
	assert.Equal(t, LevelDebug, sink.events[0].Level)
	assert.Equal(t, LevelInfo, sink.events[1].Level)
	assert.Equal(t, LevelWarn, sink.events[2].Level)
	assert.Equal(t, LevelError, sink.events[3].Level)
	assert.Equal(t, Fields{"k": 1}, sink.events[1].Fields)
}

func TestNopDiscards(t *testing.T) {
	assert.NotPanics(t, func() {
		Info(Nop(), "ignored", Fields{"k": "v"})
	})
}

func TestZerologSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewZerolog(zerolog.New(&buf))

	Warn(sink, "disk almost full", Fields{"percent": 93})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "disk almost full", line["message"])
	assert.Equal(t, float64(93), line["percent"])
}

func TestZerologSinkLevels(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		sink := NewZerolog(zerolog.New(&buf))

		sink.Emit(Event{Level: tt.level, Message: "m"})

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, tt.want, line["level"])
	}
}
