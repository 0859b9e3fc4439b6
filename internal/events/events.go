// Package events collects the events the contracts emit. The log is the query
// surface for the contract-events endpoint; sinks fan events out to external
// streams.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event is one emitted contract event, stamped with the block it occurred in.
type Event struct {
	Contract   string            `json:"contract"`
	Name       string            `json:"name"`
	Block      uint64            `json:"block"`
	EmittedAt  time.Time         `json:"emitted_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Emitter is the narrow interface the contracts hold. A nil emitter is valid;
// contracts must treat emission as fire-and-forget.
type Emitter interface {
	Emit(contract, name string, attrs map[string]string)
}

// Sink receives every appended event. Sink failures never affect contract
// execution.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Log is an append-only in-memory event log.
type Log struct {
	mu      sync.RWMutex
	entries []Event

	blockFn func() uint64
	sinks   []Sink
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithBlockFn supplies the current chain height used to stamp events.
func WithBlockFn(fn func() uint64) Option {
	return func(l *Log) {
		if fn != nil {
			l.blockFn = fn
		}
	}
}

// WithSink adds an external sink, e.g. the kafka publisher.
func WithSink(sink Sink) Option {
	return func(l *Log) {
		if sink != nil {
			l.sinks = append(l.sinks, sink)
		}
	}
}

// WithLogger sets the logger used for sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLog creates an empty event log.
func NewLog(opts ...Option) *Log {
	l := &Log{
		blockFn: func() uint64 { return 0 },
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Emit appends an event stamped with the current block and forwards it to the
// sinks. Sink errors are logged and dropped.
func (l *Log) Emit(contract, name string, attrs map[string]string) {
	ev := Event{
		Contract:   contract,
		Name:       name,
		Block:      l.blockFn(),
		EmittedAt:  l.now(),
		Attributes: attrs,
	}

	l.mu.Lock()
	l.entries = append(l.entries, ev)
	l.mu.Unlock()

	for _, sink := range l.sinks {
		if err := sink.Publish(context.Background(), ev); err != nil {
			l.logger.Warn("event sink publish failed",
				"contract", contract,
				"event", name,
				"error", err,
			)
		}
	}
}

// Query returns events for a contract within the inclusive block range.
// An empty contract matches all contracts; toBlock 0 means no upper bound.
func (l *Log) Query(contract string, fromBlock, toBlock uint64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for _, ev := range l.entries {
		if contract != "" && ev.Contract != contract {
			continue
		}
		if ev.Block < fromBlock {
			continue
		}
		if toBlock != 0 && ev.Block > toBlock {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
