package tokenguard

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/deckfolio/tokenguard/storage"
	"github.com/deckfolio/tokenguard/token"
)

// Manager defines a public type used by tokenguard APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config  Config
	store   Store
	codec   *token.Codec
	audit   *auditDispatcher
	metrics *Metrics
}

func (m *Manager) ready() error {
	if m == nil || m.store == nil || m.codec == nil {
		return ErrNotInitialized
	}
	return nil
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	if m.audit != nil {
		m.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) AuditDropped() uint64 {
	if m == nil || m.audit == nil {
		return 0
	}
	return m.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	if m == nil || m.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return m.metrics.Snapshot()
}

func (m *Manager) metricInc(id MetricID) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.Inc(id)
}

func (m *Manager) emitAudit(ctx context.Context, event AuditEvent) {
	if m == nil || m.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	m.audit.Emit(ctx, event)
}

// withRetry runs op against the store with the configured per-attempt
// timeout and a constant backoff. All storage failures are treated as
// transient; non-storage errors abort immediately.
func (m *Manager) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(
		uint64(m.config.Storage.MaxRetries-1),
		retry.NewConstant(100*time.Millisecond),
	)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, m.config.Storage.OpTimeout)
		defer cancel()

		if err := op(opCtx); err != nil {
			if errors.Is(err, storage.ErrNotSupported) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
}
