// Package prometheus exports pool accounting snapshots as Prometheus
// metrics. It polls rather than instruments: the execution core stays
// free of metric types, and the poller periodically reads Stats()
// snapshots into gauges.
package prometheus

import (
	"context"
	"errors"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/casualjim/skein"
)

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() skein.PoolStats
}

// SnapshotPoller periodically exports pool Stats() snapshots into
// Prometheus gauges and counters.
type SnapshotPoller struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	poolSize      *prom.GaugeVec
	poolActive    *prom.GaugeVec
	poolSubmitted *prom.GaugeVec
	poolCompleted *prom.GaugeVec
	poolFailed    *prom.GaugeVec
	poolStopped   *prom.GaugeVec
	poolRejected  *prom.GaugeVec
	poolClosed    *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

const namespace = "skein"

// NewSnapshotPoller creates a poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"pool"})
	}

	p := &SnapshotPoller{
		interval:      interval,
		pools:         make(map[string]PoolSnapshotProvider),
		poolSize:      gauge("pool_size", "Admission ceiling of the pool."),
		poolActive:    gauge("pool_active", "Currently running task units."),
		poolSubmitted: gauge("pool_submitted_total", "Task units admitted so far."),
		poolCompleted: gauge("pool_completed_total", "Task units that completed."),
		poolFailed:    gauge("pool_failed_total", "Task units that failed."),
		poolStopped:   gauge("pool_stopped_total", "Task units that were stopped."),
		poolRejected:  gauge("pool_rejected_total", "Admissions refused."),
		poolClosed:    gauge("pool_closed", "1 when the pool is closed to new admissions."),
	}

	collectors := []**prom.GaugeVec{
		&p.poolSize, &p.poolActive, &p.poolSubmitted, &p.poolCompleted,
		&p.poolFailed, &p.poolStopped, &p.poolRejected, &p.poolClosed,
	}
	for _, c := range collectors {
		registered, err := registerGaugeVec(reg, *c)
		if err != nil {
			return nil, err
		}
		*c = registered
	}

	return p, nil
}

// registerGaugeVec registers the collector, reusing an existing one on
// duplicate registration so that multiple pollers can share a registry.
func registerGaugeVec(reg prom.Registerer, c *prom.GaugeVec) (*prom.GaugeVec, error) {
	if err := reg.Register(c); err != nil {
		var already prom.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prom.GaugeVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

// RegisterPool adds a pool to the polling set under the given name.
func (p *SnapshotPoller) RegisterPool(name string, provider PoolSnapshotProvider) {
	p.poolsMu.Lock()
	defer p.poolsMu.Unlock()
	p.pools[name] = provider
}

// UnregisterPool removes a pool from the polling set.
func (p *SnapshotPoller) UnregisterPool(name string) {
	p.poolsMu.Lock()
	defer p.poolsMu.Unlock()
	delete(p.pools, name)
}

// Start begins polling until Stop or ctx cancellation. Starting twice
// is a no-op.
func (p *SnapshotPoller) Start(ctx context.Context) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.poll(ctx)
}

func (p *SnapshotPoller) poll(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Collect()
		case <-ctx.Done():
			return
		}
	}
}

// Collect exports one snapshot of every registered pool immediately.
func (p *SnapshotPoller) Collect() {
	p.poolsMu.RLock()
	defer p.poolsMu.RUnlock()

	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolSize.WithLabelValues(name).Set(float64(stats.Size))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolSubmitted.WithLabelValues(name).Set(float64(stats.Submitted))
		p.poolCompleted.WithLabelValues(name).Set(float64(stats.Completed))
		p.poolFailed.WithLabelValues(name).Set(float64(stats.Failed))
		p.poolStopped.WithLabelValues(name).Set(float64(stats.Stopped))
		p.poolRejected.WithLabelValues(name).Set(float64(stats.Rejected))
		p.poolClosed.WithLabelValues(name).Set(boolToFloat(stats.Closed))
	}
}

// Stop halts polling and waits for the loop to exit.
func (p *SnapshotPoller) Stop() {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if !p.running {
		return
	}
	p.cancel()
	<-p.done
	p.running = false
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
