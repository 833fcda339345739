// Package scheduler implements the Scheduler / VU Pool (C8, §4.8): a
// ramp-up/steady/ramp-down/drain phase state machine driving a single
// 1-second control tick, launching virtual users up to each phase's
// target count and never killing one early.
package scheduler

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fibi-poc-dev/load-runner/pkg/metrics"
	"github.com/fibi-poc-dev/load-runner/pkg/model"
	"github.com/fibi-poc-dev/load-runner/pkg/vu"
)

// Phase names the scheduler's state (§4.8, GLOSSARY).
type Phase string

const (
	PhaseRampUp   Phase = "ramp_up"
	PhaseSteady   Phase = "steady"
	PhaseRampDown Phase = "ramp_down"
	PhaseDrain    Phase = "drain"
)

const (
	controlTick = 1 * time.Second
	drainCap    = 10 * time.Second
)

// Target returns the VU-target formula for elapsed time against cfg
// (§4.8's table, evaluated piecewise).
func Target(cfg model.RunConfig, elapsed time.Duration) (Phase, int) {
	e := elapsed.Milliseconds()
	rampUp := int64(cfg.RampUpMs)
	steady := int64(cfg.TestMs)
	rampDown := int64(cfg.RampDownMs)
	total := rampUp + steady + rampDown

	switch {
	case e <= rampUp:
		if rampUp <= 0 {
			return PhaseSteady, cfg.MaxVUs
		}
		return PhaseRampUp, int(math.Floor(float64(cfg.MaxVUs) * float64(e) / float64(rampUp)))
	case e <= rampUp+steady:
		return PhaseSteady, cfg.MaxVUs
	case e <= total:
		if rampDown <= 0 {
			return PhaseRampDown, 0
		}
		frac := float64(e-rampUp-steady) / float64(rampDown)
		target := int(math.Floor(float64(cfg.MaxVUs) * (1 - frac)))
		if target < 0 {
			target = 0
		}
		return PhaseRampDown, target
	default:
		return PhaseDrain, 0
	}
}

// Runner owns the control loop and the set of launched VUs.
type Runner struct {
	Config     model.RunConfig
	Deps       func(id int) vu.Deps // per-VU deps factory (shares Metrics/FailLog/etc., unique per id only where needed)
	Metrics    *metrics.Aggregator
	Log        zerolog.Logger

	mu       sync.Mutex
	launched int
}

// New creates a Runner. depsFactory must return a Deps value sharing
// the run-wide Metrics/FailLog/Executor/SeqManager, for VU id.
func New(cfg model.RunConfig, depsFactory func(id int) vu.Deps, m *metrics.Aggregator, log zerolog.Logger) *Runner {
	return &Runner{Config: cfg, Deps: depsFactory, Metrics: m, Log: log}
}

// Run drives the control loop until the run's total duration elapses or
// ctx is cancelled, then waits up to the drain grace period for VUs to
// exit before returning (§4.8, §5).
func (r *Runner) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	start := time.Now()
	ticker := time.NewTicker(controlTick)
	defer ticker.Stop()

	total := time.Duration(r.Config.TotalMs()) * time.Millisecond

	for {
		elapsed := time.Since(start)
		phase, target := Target(r.Config, elapsed)

		r.mu.Lock()
		deficit := target - r.launched
		r.mu.Unlock()

		if phase != PhaseDrain && deficit > 0 {
			for i := 0; i < deficit; i++ {
				r.launchOne(runCtx, &wg)
			}
		}
		r.Metrics.SetActiveVUs(r.activeEstimate())

		if elapsed >= total || ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}

	cancel() // fan out cancellation to every VU (§5)
	r.waitWithDrainCap(&wg)
	r.Metrics.SetActiveVUs(0)
	r.Metrics.Finish()
}

func (r *Runner) launchOne(ctx context.Context, wg *sync.WaitGroup) {
	r.mu.Lock()
	id := r.launched
	r.launched++
	r.mu.Unlock()

	seed := time.Now().UnixNano() ^ int64(id)<<32
	rng := rand.New(rand.NewSource(seed))
	deps := r.Deps(id)

	wg.Add(1)
	go func() {
		defer wg.Done()
		vu.Run(ctx, id, deps, rng)
	}()
}

// activeEstimate reports the launched count; VUs are never forcibly
// retired, so "active" degrades to "launched and not yet past the
// overall deadline" once drain begins (§4.8: "VUs are never killed").
func (r *Runner) activeEstimate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.launched
}

// waitWithDrainCap waits for every VU goroutine to return, but gives up
// after drainCap even if some are still in flight (§4.8 Drain, §5
// "Grace period: ≤10 s before the scheduler gives up waiting").
func (r *Runner) waitWithDrainCap(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainCap):
		r.Log.Warn().Msg("drain grace period elapsed with VUs still in flight")
	}
}
