// Package audit records download and upload events.
//
// Sinks are fire-and-forget: Audit never returns an error and must not block
// the caller on slow backends.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/packrat/davgate/internal/logger"
	"github.com/packrat/davgate/pkg/store/repository"
	"github.com/rs/zerolog"
)

// Kind is the audited action.
type Kind int

const (
	KindDownload Kind = iota + 1
	KindUpload
	KindTokenIssued
	KindTokenRevoked
)

func (k Kind) String() string {
	switch k {
	case KindDownload:
		return "download"
	case KindUpload:
		return "upload"
	case KindTokenIssued:
		return "token_issued"
	case KindTokenRevoked:
		return "token_revoked"
	default:
		return "unknown"
	}
}

// Event describes one audited action.
type Event struct {
	// URL is the request URL or path that triggered the event
	URL string

	// Authenticated reports whether the request carried a user identity
	Authenticated bool

	// ObjectType and ObjectID identify the resolved repository entity.
	// Both are zero when resolution failed.
	ObjectType repository.ObjectType
	ObjectID   int64

	Kind   Kind
	UserID int64
	Time   time.Time
}

// Sink receives audit events.
type Sink interface {
	Audit(ctx context.Context, ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Audit(context.Context, Event) {}

// LogSink writes events as structured log lines.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink returns a sink logging under the "audit" component.
func NewLogSink() *LogSink {
	return &LogSink{log: logger.With("audit")}
}

func (s *LogSink) Audit(_ context.Context, ev Event) {
	s.log.Info().
		Str("kind", ev.Kind.String()).
		Str("url", ev.URL).
		Bool("authenticated", ev.Authenticated).
		Str("object_type", ev.ObjectType.String()).
		Int64("object_id", ev.ObjectID).
		Int64("user_id", ev.UserID).
		Time("at", ev.Time).
		Msg("audit")
}

// Counter is the metrics hook used by CountingSink.
type Counter interface {
	CountAuditEvent(kind, objectType string)
}

// CountingSink increments a counter per event.
type CountingSink struct {
	counter Counter
}

// NewCountingSink returns a sink that only counts.
func NewCountingSink(c Counter) *CountingSink {
	return &CountingSink{counter: c}
}

func (s *CountingSink) Audit(_ context.Context, ev Event) {
	s.counter.CountAuditEvent(ev.Kind.String(), ev.ObjectType.String())
}

type multi []Sink

func (m multi) Audit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Audit(ctx, ev)
	}
}

// Multi fans events out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	if len(m) == 0 {
		return Nop{}
	}
	return m
}

// Recorder keeps events in memory. Used by tests and diagnostics.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Audit(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
