package tokenguard

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples token issuance and verification from the sink:
// Emit enqueues, a single delivery goroutine forwards to the sink, Close
// flushes whatever is still queued. Events that record a revocation or a
// rejected device are never dropped, even in drop mode, because they are
// the evidence an incident review needs.
type auditDispatcher struct {
	sink       AuditSink
	queue      chan AuditEvent
	quit       chan struct{}
	drained    chan struct{}
	dropIfFull bool

	dropped atomic.Uint64
	closing atomic.Bool
	stop    sync.Once
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size < 1 {
		size = 1
	}

	d := &auditDispatcher{
		sink:       sink,
		queue:      make(chan AuditEvent, size),
		quit:       make(chan struct{}),
		drained:    make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
	}
	go d.deliverLoop()
	return d
}

func (d *auditDispatcher) deliverLoop() {
	defer close(d.drained)

	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(context.Background(), event)
		case <-d.quit:
			for len(d.queue) > 0 {
				d.sink.Emit(context.Background(), <-d.queue)
			}
			return
		}
	}
}

// securityDecision reports whether an event type records a verdict that
// must survive backpressure: revocations, fail-closed denials, and device
// rejections.
func securityDecision(eventType string) bool {
	if strings.HasPrefix(eventType, "token.revoke.") {
		return true
	}
	switch {
	case strings.HasSuffix(eventType, ".fail_closed"),
		strings.HasSuffix(eventType, ".revoked"),
		strings.HasSuffix(eventType, ".device_rejected"):
		return true
	}
	return false
}

// Emit queues event for delivery. In drop mode, routine events are shed
// under pressure and counted; security decisions always wait for space.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull && !securityDecision(event.EventType) {
		select {
		case d.queue <- event:
		case <-d.quit:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close stops intake, waits for the queue to drain, and is safe to call
// more than once.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stop.Do(func() {
		d.closing.Store(true)
		close(d.quit)
		<-d.drained
	})
}

// Dropped returns how many routine events were shed in drop mode.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
