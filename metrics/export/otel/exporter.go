package otel

import (
	"context"
	"errors"
	"fmt"

	tokenguard "github.com/deckfolio/tokenguard"
	"github.com/deckfolio/tokenguard/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// metricsSource is the slice of the manager the exporter reads from on each
// collection cycle.
type metricsSource interface {
	MetricsSnapshot() tokenguard.MetricsSnapshot
	AuditDropped() uint64
}

// verifyLatency holds the instruments derived from the manager's single
// latency histogram: one gauge per bucket bound plus a sample count. Bucket
// values are published cumulatively so the series reads like a native
// histogram.
type verifyLatency struct {
	id      tokenguard.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes the manager's lifecycle counters, the verify
// latency histogram, and the audit drop count through OpenTelemetry
// observable instruments. A single registered callback reads one coherent
// snapshot per collection.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	counters     map[tokenguard.MetricID]metric.Int64ObservableCounter
	latency      verifyLatency
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments for every manager metric on meter.
// The caller owns the MeterProvider; Close unregisters the callback.
func NewOTelExporter(meter metric.Meter, manager *tokenguard.Manager) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, manager)
}

// NewOTelExporterFromSource is NewOTelExporter for any snapshot source,
// which keeps the exporter testable without a live manager.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}

	var observables []metric.Observable

	counters, obs, err := counterInstruments(meter)
	if err != nil {
		return nil, err
	}
	e.counters = counters
	observables = append(observables, obs...)

	latency, obs, err := latencyInstruments(meter)
	if err != nil {
		return nil, err
	}
	e.latency = latency
	observables = append(observables, obs...)

	e.auditDropped, err = meter.Int64ObservableCounter(
		"tokenguard_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, e.auditDropped)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func counterInstruments(meter metric.Meter) (map[tokenguard.MetricID]metric.Int64ObservableCounter, []metric.Observable, error) {
	counters := make(map[tokenguard.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs))
	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs))

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		counters[def.ID] = ins
		observables = append(observables, ins)
	}
	return counters, observables, nil
}

func latencyInstruments(meter metric.Meter) (verifyLatency, []metric.Observable, error) {
	def := internaldefs.HistogramDefs[0]
	lat := verifyLatency{id: def.ID}
	observables := make([]metric.Observable, 0, len(lat.buckets)+1)

	for i, suffix := range internaldefs.HistogramBoundSuffix {
		name := def.Name + "_bucket_le_" + suffix
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
		if err != nil {
			return verifyLatency{}, nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
		}
		lat.buckets[i] = ins
		observables = append(observables, ins)
	}

	count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Histogram total sample count."))
	if err != nil {
		return verifyLatency{}, nil, fmt.Errorf("create histogram count gauge %s_count: %w", def.Name, err)
	}
	lat.count = count
	observables = append(observables, count)

	return lat, observables, nil
}

// observe is the registered callback: one snapshot read, all instruments
// reported from it.
func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for id, ins := range e.counters {
		observer.ObserveInt64(ins, int64(snapshot.Counters[id]))
	}

	cumulative := internaldefs.CumulativeBuckets(
		internaldefs.NormalizeBuckets(snapshot.Histograms[e.latency.id]),
	)
	for i, ins := range e.latency.buckets {
		observer.ObserveInt64(ins, int64(cumulative[i]))
	}
	observer.ObserveInt64(e.latency.count, int64(cumulative[len(cumulative)-1]))

	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback. Safe on nil and after a prior
// Close.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
