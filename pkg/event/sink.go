// ABOUTME: Structured event values and the injected sink capability
// ABOUTME: Replaces global logger state with an explicit observer

// Package event carries structured observability events from the client's
// components to an injected sink. Components never log through package-level
// state; they emit Event values to whatever Sink they were constructed with.
package event

import "github.com/rs/zerolog"

// Level is the severity of an event.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Fields is the free-form field set attached to an event.
type Fields = map[string]any

// Event is one structured observability record.
type Event struct {
	Level   Level
	Message string
	Fields  Fields
}

// Sink receives events. Implementations must be safe for concurrent use;
// the publish and subscribe paths share one sink.
type Sink interface {
	Emit(Event)
}

// Debug emits a debug-level event to sink.
func Debug(sink Sink, msg string, fields Fields) {
	sink.Emit(Event{Level: LevelDebug, Message: msg, Fields: fields})
}

// Info emits an info-level event to sink.
func Info(sink Sink, msg string, fields Fields) {
	sink.Emit(Event{Level: LevelInfo, Message: msg, Fields: fields})
}

// Warn emits a warn-level event to sink.
func Warn(sink Sink, msg string, fields Fields) {
	sink.Emit(Event{Level: LevelWarn, Message: msg, Fields: fields})
}

// Error emits an error-level event to sink.
func Error(sink Sink, msg string, fields Fields) {
	sink.Emit(Event{Level: LevelError, Message: msg, Fields: fields})
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

// Nop returns a sink that discards everything.
func Nop() Sink { return nopSink{} }

// ZerologSink writes events through a zerolog logger.
type ZerologSink struct {
	log zerolog.Logger
}

// NewZerolog wraps a zerolog logger as a Sink.
func NewZerolog(log zerolog.Logger) *ZerologSink {
	return &ZerologSink{log: log}
}

// Emit writes the event at its mapped zerolog level.
func (s *ZerologSink) Emit(e Event) {
	lvl := zerolog.InfoLevel
	switch e.Level {
	case LevelDebug:
		lvl = zerolog.DebugLevel
	case LevelWarn:
		lvl = zerolog.WarnLevel
	case LevelError:
		lvl = zerolog.ErrorLevel
	}
	s.log.WithLevel(lvl).Fields(map[string]any(e.Fields)).Msg(e.Message)
}
