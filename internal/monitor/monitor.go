// Package monitor prints a periodic one-line progress snapshot to the
// console while a run is in flight.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/fibi-poc-dev/load-runner/pkg/metrics"
)

// Printer polls an Aggregator on a fixed cadence and writes a
// single-line summary to stdout. It never blocks the run: a slow
// writer only delays the next tick.
type Printer struct {
	Metrics  *metrics.Aggregator
	Interval time.Duration
}

// New builds a Printer; intervalMs <= 0 (for example an unset
// OutputSettings.ConsoleUpdateIntervalMs) falls back to one second.
func New(m *metrics.Aggregator, intervalMs int) *Printer {
	interval := time.Duration(intervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	return &Printer{Metrics: m, Interval: interval}
}

// Run prints one snapshot per tick until ctx is cancelled, then prints
// a final snapshot before returning.
func (p *Printer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.printOnce()
			return
		case <-ticker.C:
			p.printOnce()
		}
	}
}

func (p *Printer) printOnce() {
	snap := p.Metrics.Snapshot()
	errRate := 0.0
	if snap.Total > 0 {
		errRate = float64(snap.Failed) / float64(snap.Total) * 100
	}
	p95 := p.Metrics.Percentile(95)

	fmt.Printf("VUs=%-4d total=%-7d ok=%-7d fail=%-6d err%%=%5.1f tps=%6.1f p95=%8s\n",
		snap.CurrentVUs, snap.Total, snap.Succeeded, snap.Failed, errRate, snap.CurrentTPS, p95.Round(time.Millisecond))
}
