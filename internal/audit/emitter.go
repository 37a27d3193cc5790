package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"iamdash/internal/domain"
	"iamdash/internal/logging"
)

const (
	defaultQueueSize   = 1024
	defaultSendTimeout = 2 * time.Second
)

// Emitter decouples audit emission from the decision path. Events are
// enqueued without blocking; a single worker drains the queue into the sink
// with a short per-send timeout. When the queue is full the event is dropped
// and counted rather than delaying a check.
type Emitter struct {
	sink    Sink
	queue   chan Event
	timeout time.Duration

	enqueued atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// EmitterStats is a point-in-time view of emitter counters.
type EmitterStats struct {
	Enqueued uint64 `json:"enqueued"`
	Dropped  uint64 `json:"dropped"`
	Failed   uint64 `json:"failed"`
	Queued   int    `json:"queued"`
}

// NewEmitter starts the drain worker. queueSize <= 0 and timeout <= 0 pick
// the defaults.
func NewEmitter(sink Sink, queueSize int, timeout time.Duration) *Emitter {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	e := &Emitter{
		sink:    sink,
		queue:   make(chan Event, queueSize),
		timeout: timeout,
	}
	e.wg.Add(1)
	go e.drain()
	return e
}

func (e *Emitter) drain() {
	defer e.wg.Done()
	for ev := range e.queue {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		err := e.sink.Record(ctx, ev)
		cancel()
		if err != nil {
			e.failed.Add(1)
			logging.LogWarn("Audit sink write failed", map[string]interface{}{
				"event_id": ev.ID,
				"kind":     string(ev.Kind),
				"error":    err.Error(),
			})
		}
	}
}

func (e *Emitter) emit(ev Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.dropped.Add(1)
		return
	}
	select {
	case e.queue <- ev:
		e.enqueued.Add(1)
	default:
		e.dropped.Add(1)
	}
}

// EmitDecision satisfies rbac.DecisionEmitter.
func (e *Emitter) EmitDecision(dec domain.AccessDecision) {
	e.emit(DecisionEvent(dec))
}

// EmitAssessment reports a completed risk assessment.
func (e *Emitter) EmitAssessment(principal domain.Principal, a domain.RiskAssessment) {
	e.emit(AssessmentEvent(principal, a))
}

// Stats returns the current counters.
func (e *Emitter) Stats() EmitterStats {
	return EmitterStats{
		Enqueued: e.enqueued.Load(),
		Dropped:  e.dropped.Load(),
		Failed:   e.failed.Load(),
		Queued:   len(e.queue),
	}
}

// Close drains outstanding events and closes the sink. Safe to call more
// than once; events emitted after Close are counted as dropped.
func (e *Emitter) Close() error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()
	e.wg.Wait()
	return e.sink.Close()
}
