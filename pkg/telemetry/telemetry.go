// Package telemetry records per-turn observability signals. The gateway
// flushes a TurnRecord exactly once per request via a deferred hook, on both
// the success and the failure path.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TurnRecord summarizes one /chat request.
type TurnRecord struct {
	Outcome    string // ok, validation_error, unauthorized, rate_limited, backend_unavailable, internal_error
	ToolCalls  int
	ToolErrors int
	Rounds     int
	Elapsed    time.Duration
}

// Sink accepts telemetry records.
type Sink interface {
	RecordTurn(rec TurnRecord)
}

// PrometheusSink implements Sink over prometheus collectors.
type PrometheusSink struct {
	turns        *prometheus.CounterVec
	toolCalls    prometheus.Counter
	toolErrors   prometheus.Counter
	turnDuration prometheus.Histogram
}

func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio_agent",
			Name:      "chat_turns_total",
			Help:      "Chat turns by outcome.",
		}, []string{"outcome"}),
		toolCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portfolio_agent",
			Name:      "tool_calls_total",
			Help:      "Tool executions across all turns.",
		}),
		toolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portfolio_agent",
			Name:      "tool_errors_total",
			Help:      "Tool executions that reported a failure value.",
		}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "portfolio_agent",
			Name:      "chat_turn_duration_seconds",
			Help:      "Wall-clock duration of one chat turn.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
	reg.MustRegister(s.turns, s.toolCalls, s.toolErrors, s.turnDuration)
	return s
}

func (s *PrometheusSink) RecordTurn(rec TurnRecord) {
	outcome := rec.Outcome
	if outcome == "" {
		outcome = "unknown"
	}
	s.turns.WithLabelValues(outcome).Inc()
	s.toolCalls.Add(float64(rec.ToolCalls))
	s.toolErrors.Add(float64(rec.ToolErrors))
	s.turnDuration.Observe(rec.Elapsed.Seconds())
}

// Flusher guards a sink so a turn is recorded at most once, however many
// paths defer the flush.
type Flusher struct {
	sink Sink
	once sync.Once
}

func NewFlusher(sink Sink) *Flusher {
	return &Flusher{sink: sink}
}

func (f *Flusher) Flush(rec TurnRecord) {
	if f == nil || f.sink == nil {
		return
	}
	f.once.Do(func() {
		f.sink.RecordTurn(rec)
	})
}
