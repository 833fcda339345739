// Package metrics implements the Metrics Aggregator (§4.7): thread-safe
// counters, per-request-name samples, a rolling TPS window, and
// percentile computation over a bounded sample set.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/fibi-poc-dev/load-runner/pkg/model"
)

const (
	// maxSamples caps the global sample slice; oldest samples are
	// dropped on overflow (§4.7, §7 "Aggregator overflow").
	maxSamples = 10000
	// maxRecentResults bounds the ring of recently recorded results.
	maxRecentResults = 50
	// rollingTPSWindow is the trailing window used by CurrentTPS.
	rollingTPSWindow = 10 * time.Second
)

// Aggregator is a single shared value whose address every virtual user
// records into; all synchronization is confined here (§9: no
// module-level mutable state).
type Aggregator struct {
	mu sync.Mutex

	start time.Time
	end   *time.Time

	total              int64
	succeeded          int64
	failed             int64
	validationFailures int64

	samples       []time.Duration // bounded ring, oldest dropped first
	sampleHead    int             // next write index once full
	sampleFull    bool

	perStepSamples map[string][]time.Duration

	recent     []model.ExecutionResult
	recentHead int
	recentFull bool

	recentTimestamps []time.Time // trailing window for rolling TPS

	activeVUs int
}

// New creates an Aggregator with its start time set to now.
func New() *Aggregator {
	return &Aggregator{
		start:          time.Now().UTC(),
		samples:        make([]time.Duration, 0, maxSamples),
		perStepSamples: make(map[string][]time.Duration),
		recent:         make([]model.ExecutionResult, 0, maxRecentResults),
	}
}

// Record updates every counter and sample for one result. A successful
// call returns only after all state is consistently updated (§5
// happens-before guarantee).
func (a *Aggregator) Record(r model.ExecutionResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	if r.IsSuccess {
		a.succeeded++
	} else {
		a.failed++
	}
	if !r.ValidationVerdict.OK {
		a.validationFailures++
	}

	a.pushSample(r.ResponseTime)
	a.pushPerStep(r.StepName, r.ResponseTime)
	a.pushRecent(r)
	a.pushTPSTimestamp(r.CapturedAt)
}

// SetActiveVUs records the scheduler's current active-VU count for the
// next Snapshot (§4.7, §4.8).
func (a *Aggregator) SetActiveVUs(n int) {
	a.mu.Lock()
	a.activeVUs = n
	a.mu.Unlock()
}

func (a *Aggregator) pushSample(d time.Duration) {
	if len(a.samples) < maxSamples {
		a.samples = append(a.samples, d)
		return
	}
	// Ring buffer once full: drop oldest by overwriting in place.
	a.samples[a.sampleHead] = d
	a.sampleHead = (a.sampleHead + 1) % maxSamples
	a.sampleFull = true
}

func (a *Aggregator) pushPerStep(name string, d time.Duration) {
	s := a.perStepSamples[name]
	if len(s) >= maxSamples {
		s = s[1:]
	}
	a.perStepSamples[name] = append(s, d)
}

func (a *Aggregator) pushRecent(r model.ExecutionResult) {
	if len(a.recent) < maxRecentResults {
		a.recent = append(a.recent, r)
		return
	}
	a.recent[a.recentHead] = r
	a.recentHead = (a.recentHead + 1) % maxRecentResults
	a.recentFull = true
}

func (a *Aggregator) pushTPSTimestamp(ts time.Time) {
	a.recentTimestamps = append(a.recentTimestamps, ts)
	cutoff := ts.Add(-rollingTPSWindow)
	i := 0
	for i < len(a.recentTimestamps) && a.recentTimestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		a.recentTimestamps = a.recentTimestamps[i:]
	}
}

// CurrentTPS returns the rolling-TPS figure: count of results within
// the trailing 10s window divided by 10 (§4.7).
func (a *Aggregator) CurrentTPS() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(len(a.recentTimestamps)) / rollingTPSWindow.Seconds()
}

// Percentile returns the p-th percentile over the current sample set:
// sort ascending, index ceil(n*p/100)-1 clamped to [0, n-1]; 0 for an
// empty sample set (§4.7).
func (a *Aggregator) Percentile(p float64) time.Duration {
	a.mu.Lock()
	ordered := a.orderedSamplesLocked()
	a.mu.Unlock()
	return percentileOf(ordered, p)
}

func percentileOf(ordered []time.Duration, p float64) time.Duration {
	n := len(ordered)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(n)*p/100.0)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return ordered[idx]
}

// orderedSamplesLocked returns a copy of a's current samples sorted
// ascending, for percentile lookups. Caller must hold a.mu.
func (a *Aggregator) orderedSamplesLocked() []time.Duration {
	var chron []time.Duration
	if !a.sampleFull {
		chron = append(chron, a.samples...)
	} else {
		chron = append(chron, a.samples[a.sampleHead:]...)
		chron = append(chron, a.samples[:a.sampleHead]...)
	}
	sorted := make([]time.Duration, len(chron))
	copy(sorted, chron)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}

// Finish marks the run's end time.
func (a *Aggregator) Finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now().UTC()
	a.end = &now
}

// StepPercentile returns the p-th percentile over one step's samples
// only, using the same index formula as Percentile.
func (a *Aggregator) StepPercentile(step string, p float64) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	sorted := make([]time.Duration, len(a.perStepSamples[step]))
	copy(sorted, a.perStepSamples[step])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return percentileOf(sorted, p)
}

// Snapshot produces a consistent, independent copy of all aggregator
// state (§4.7: "the report emitter must see a value that never changes
// underneath it").
func (a *Aggregator) Snapshot() model.MetricsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := model.MetricsSnapshot{
		Start:              a.start,
		Total:              a.total,
		Succeeded:          a.succeeded,
		Failed:             a.failed,
		ValidationFailures: a.validationFailures,
		CurrentVUs:         a.activeVUs,
		CurrentTPS:         float64(len(a.recentTimestamps)) / rollingTPSWindow.Seconds(),
	}
	if a.end != nil {
		end := *a.end
		snap.End = &end
	}

	snap.AllSamples = a.orderedSamplesLocked()

	snap.PerStepSamples = make(map[string][]time.Duration, len(a.perStepSamples))
	for step, samples := range a.perStepSamples {
		cp := make([]time.Duration, len(samples))
		copy(cp, samples)
		snap.PerStepSamples[step] = cp
	}

	snap.RecentResults = a.chronologicalRecentLocked()
	return snap
}

// chronologicalRecentLocked returns the ring of recent results oldest
// first. Caller must hold a.mu.
func (a *Aggregator) chronologicalRecentLocked() []model.ExecutionResult {
	if !a.recentFull {
		out := make([]model.ExecutionResult, len(a.recent))
		copy(out, a.recent)
		return out
	}
	out := make([]model.ExecutionResult, 0, len(a.recent))
	out = append(out, a.recent[a.recentHead:]...)
	out = append(out, a.recent[:a.recentHead]...)
	return out
}
