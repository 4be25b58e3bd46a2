package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ragmesh"

// Metrics holds all pool and query metric instruments.
type Metrics struct {
	InstancesBuilt   metric.Int64Counter
	InstancesEvicted metric.Int64Counter
	InstancesExpired metric.Int64Counter
	InstancesActive  metric.Int64UpDownCounter
	AcquireDuration  metric.Float64Histogram
	QueryDuration    metric.Float64Histogram
	AuthCacheHits    metric.Int64Counter
	AuthCacheMisses  metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.InstancesBuilt, err = meter.Int64Counter("ragmesh.pool.instances.built",
		metric.WithDescription("Number of engine instances constructed"))
	if err != nil {
		return nil, err
	}

	m.InstancesEvicted, err = meter.Int64Counter("ragmesh.pool.instances.evicted",
		metric.WithDescription("Number of instances evicted for capacity"))
	if err != nil {
		return nil, err
	}

	m.InstancesExpired, err = meter.Int64Counter("ragmesh.pool.instances.expired",
		metric.WithDescription("Number of instances expired by TTL"))
	if err != nil {
		return nil, err
	}

	m.InstancesActive, err = meter.Int64UpDownCounter("ragmesh.pool.instances.active",
		metric.WithDescription("Instances currently resident in the pool"))
	if err != nil {
		return nil, err
	}

	m.AcquireDuration, err = meter.Float64Histogram("ragmesh.pool.acquire.duration_seconds",
		metric.WithDescription("Time spent acquiring an instance, including construction"))
	if err != nil {
		return nil, err
	}

	m.QueryDuration, err = meter.Float64Histogram("ragmesh.query.duration_seconds",
		metric.WithDescription("End-to-end query duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.AuthCacheHits, err = meter.Int64Counter("ragmesh.auth.cache.hits",
		metric.WithDescription("API key cache hits"))
	if err != nil {
		return nil, err
	}

	m.AuthCacheMisses, err = meter.Int64Counter("ragmesh.auth.cache.misses",
		metric.WithDescription("API key cache misses"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
