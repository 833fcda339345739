// Package report implements the Report Emitter (C9, §4.9): snapshot the
// Metrics Aggregator and hand it to an injected ArtifactWriter, plus the
// threshold-based pass/fail verdict (§8 scenario 6).
package report

import (
	"fmt"
	"time"

	"github.com/fibi-poc-dev/load-runner/pkg/metrics"
	"github.com/fibi-poc-dev/load-runner/pkg/model"
)

// ArtifactWriter is the external collaborator that renders a snapshot
// into a durable artifact (HTML, JSON, whatever); this package never
// does that rendering itself (§1 "Deliberately out of scope").
type ArtifactWriter interface {
	Write(snapshot model.MetricsSnapshot, config model.RunConfig, verdict Verdict) error
}

// Verdict is the final pass/fail computed from Thresholds against the
// snapshot (§8 scenario 6).
type Verdict struct {
	Pass    bool
	Reasons []string
}

// Emit snapshots m, computes the verdict against cfg.Thresholds, and
// delegates rendering to w.
func Emit(m *metrics.Aggregator, cfg model.RunConfig, w ArtifactWriter) (model.MetricsSnapshot, Verdict, error) {
	snap := m.Snapshot()
	verdict := Evaluate(snap, cfg.Thresholds)
	err := w.Write(snap, cfg, verdict)
	return snap, verdict, err
}

// Evaluate computes the pass/fail verdict for a snapshot against
// thresholds. p95 and error rate are derived from the snapshot's
// samples and counters; current_tps is read directly.
func Evaluate(snap model.MetricsSnapshot, thresholds model.Thresholds) Verdict {
	var reasons []string

	p95 := percentileFromSnapshot(snap, 95)
	if thresholds.MaxResponseTimeMs > 0 && p95 > time.Duration(thresholds.MaxResponseTimeMs)*time.Millisecond {
		reasons = append(reasons, fmt.Sprintf("max response time exceeded: p95=%s > %dms", p95, thresholds.MaxResponseTimeMs))
	}

	errRate := errorRatePct(snap)
	if thresholds.MaxErrorRatePct > 0 && errRate > thresholds.MaxErrorRatePct {
		reasons = append(reasons, fmt.Sprintf("error rate exceeded: %.2f%% > %.2f%%", errRate, thresholds.MaxErrorRatePct))
	}

	if thresholds.MinTPS > 0 && snap.CurrentTPS < thresholds.MinTPS {
		reasons = append(reasons, fmt.Sprintf("throughput below minimum: %.2f < %.2f tps", snap.CurrentTPS, thresholds.MinTPS))
	}

	return Verdict{Pass: len(reasons) == 0, Reasons: reasons}
}

func percentileFromSnapshot(snap model.MetricsSnapshot, p float64) time.Duration {
	samples := make([]time.Duration, len(snap.AllSamples))
	copy(samples, snap.AllSamples)
	// snap.AllSamples is already ascending-sorted by Aggregator.Snapshot.
	n := len(samples)
	if n == 0 {
		return 0
	}
	idx := int(ceilDiv(int64(n)*int64(p), 100)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return samples[idx]
}

func ceilDiv(a, b int64) int64 {
	if a%b == 0 {
		return a / b
	}
	return a/b + 1
}

func errorRatePct(snap model.MetricsSnapshot) float64 {
	if snap.Total == 0 {
		return 0
	}
	return float64(snap.Failed) / float64(snap.Total) * 100
}
