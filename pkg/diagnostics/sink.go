package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/svcmodel/svcmodel-go/pkg/log"
)

// Sink receives diagnostic events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Emit(ctx context.Context, id EventID, msg string, attrs ...slog.Attr)
}

// NoopSink discards every event.
type NoopSink struct{}

// Emit discards the event.
func (NoopSink) Emit(context.Context, EventID, string, ...slog.Attr) {}

// OrNoop returns s, or NoopSink when s is nil.
func OrNoop(s Sink) Sink {
	if s == nil {
		return NoopSink{}
	}
	return s
}

// SlogSink writes events to an slog.Logger. The level follows the event
// severity.
type SlogSink struct {
	Logger *slog.Logger
}

// NewSlogSink returns a sink writing to logger (slog.Default when nil).
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{Logger: logger}
}

// Emit logs the event with its decoded id.
func (s *SlogSink) Emit(ctx context.Context, id EventID, msg string, attrs ...slog.Attr) {
	all := make([]slog.Attr, 0, len(attrs)+3)
	all = append(all,
		slog.String("event", id.String()),
		slog.String("event_id", fmt.Sprintf("0x%08x", uint32(id))),
		slog.String("facility", id.Facility().String()),
	)
	all = append(all, attrs...)
	s.Logger.LogAttrs(ctx, Level(id.Severity()), msg, all...)
}

// Level maps a severity to an slog level.
func Level(s Severity) slog.Level {
	switch s {
	case SeverityError:
		return slog.LevelError
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityInformational:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// ProtocolSink turns diagnostic events into protocol log error events so
// they land in the same capture file as frames and messages.
type ProtocolSink struct {
	Logger log.Logger
	Layer  log.Layer
	Role   log.Role
}

// Emit records the event.
func (s *ProtocolSink) Emit(_ context.Context, id EventID, msg string, attrs ...slog.Attr) {
	ctxText := ""
	for i, a := range attrs {
		if i > 0 {
			ctxText += " "
		}
		ctxText += a.String()
	}
	s.Logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     s.Layer,
		Category:  log.CategoryError,
		LocalRole: s.Role,
		Error: &log.ErrorEventData{
			Layer:   s.Layer,
			Message: msg,
			EventID: uint32(id),
			Context: ctxText,
		},
	})
}

// MultiSink fans out to several sinks.
type MultiSink []Sink

// Emit forwards the event to every sink.
func (m MultiSink) Emit(ctx context.Context, id EventID, msg string, attrs ...slog.Attr) {
	for _, s := range m {
		s.Emit(ctx, id, msg, attrs...)
	}
}

var (
	_ Sink = NoopSink{}
	_ Sink = (*SlogSink)(nil)
	_ Sink = (*ProtocolSink)(nil)
	_ Sink = MultiSink(nil)
)
