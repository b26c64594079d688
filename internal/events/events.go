package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Event types emitted by the matching lifecycle.
const (
	TypeRequested       = "matching.requested"
	TypeConfirmed       = "matching.confirmed"
	TypeChoices         = "matching.choices_submitted"
	TypeScheduled       = "matching.scheduled"
	TypeMismatched      = "matching.mismatched"
	TypeReviewed        = "matching.reviewed"
	TypeExchanged       = "matching.exchanged"
	TypeFinished        = "matching.finished"
	TypeFailed          = "matching.failed"
	TypeRefunded        = "points.refunded"
	TypeCharged         = "points.charged"
	TypeStatusChanged   = "user.status_changed"
	TypeAutoProcessTick = "matching.auto_process"
)

// Event is one line of the audit trail.
type Event struct {
	Type    string         `json:"type"`
	UserID  string         `json:"userId,omitempty"`
	MatchID string         `json:"matchId,omitempty"`
	At      time.Time      `json:"at"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Sink persists events. Implementations may be slow or fail; the Emitter
// absorbs both.
type Sink interface {
	Write(ctx context.Context, ev Event) error
}

// Emitter hands events to a Sink on a background goroutine. Emit never blocks:
// when the buffer is full the event is dropped and counted.
type Emitter struct {
	sink    Sink
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	ch     chan Event
	done   chan struct{}

	dropped atomic.Int64
	onDrop  func()
}

// Option customises an Emitter.
type Option func(*Emitter)

// WithWriteTimeout bounds each Sink.Write call.
func WithWriteTimeout(d time.Duration) Option {
	return func(e *Emitter) { e.timeout = d }
}

// WithDropHook is invoked for every dropped event (metrics).
func WithDropHook(fn func()) Option {
	return func(e *Emitter) { e.onDrop = fn }
}

// NewEmitter starts the delivery goroutine. Call Close to flush and stop it.
func NewEmitter(sink Sink, buffer int, log *slog.Logger, opts ...Option) *Emitter {
	if buffer < 1 {
		buffer = 1
	}
	if log == nil {
		log = slog.Default()
	}
	e := &Emitter{
		sink:    sink,
		log:     log,
		timeout: 2 * time.Second,
		ch:      make(chan Event, buffer),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	go e.run()
	return e
}

// Emit queues ev. Safe on a nil or closed Emitter.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.drop(ev)
		return
	}
	select {
	case e.ch <- ev:
	default:
		e.drop(ev)
	}
}

// Dropped returns how many events never reached the sink queue.
func (e *Emitter) Dropped() int64 { return e.dropped.Load() }

// Close stops accepting events and waits for queued ones to be written.
func (e *Emitter) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.ch)
	e.mu.Unlock()
	<-e.done
}

func (e *Emitter) drop(ev Event) {
	e.dropped.Add(1)
	if e.onDrop != nil {
		e.onDrop()
	}
	e.log.Warn("event dropped", "type", ev.Type, "match_id", ev.MatchID)
}

func (e *Emitter) run() {
	defer close(e.done)
	for ev := range e.ch {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		if err := e.sink.Write(ctx, ev); err != nil {
			e.log.Warn("event sink write failed", "type", ev.Type, "err", err)
		}
		cancel()
	}
}

// LogSink writes events to the structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Write(ctx context.Context, ev Event) error {
	s.Logger.InfoContext(ctx, "event",
		"type", ev.Type,
		"user_id", ev.UserID,
		"match_id", ev.MatchID,
		"at", ev.At,
		"attrs", ev.Attrs,
	)
	return nil
}

// Recorder keeps events in memory. Tests use it to assert on emissions.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Write(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	var out []string
	for _, ev := range r.Events() {
		out = append(out, ev.Type)
	}
	return out
}
