package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fibi-poc-dev/load-runner/pkg/faillog"
	"github.com/fibi-poc-dev/load-runner/pkg/metrics"
	"github.com/fibi-poc-dev/load-runner/pkg/model"
	"github.com/fibi-poc-dev/load-runner/pkg/request"
	"github.com/fibi-poc-dev/load-runner/pkg/sequence"
	"github.com/fibi-poc-dev/load-runner/pkg/vu"
)

func baseConfig() model.RunConfig {
	return model.RunConfig{RampUpMs: 2000, TestMs: 6000, RampDownMs: 2000, MaxVUs: 5}
}

func TestTargetRampUpLinear(t *testing.T) {
	cfg := baseConfig()
	cases := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 0},
		{500 * time.Millisecond, 1},
		{1000 * time.Millisecond, 2},
		{2000 * time.Millisecond, 5},
	}
	for _, c := range cases {
		phase, got := Target(cfg, c.elapsed)
		if phase != PhaseRampUp && c.elapsed < 2000*time.Millisecond {
			t.Errorf("at %s, phase = %s, want ramp_up", c.elapsed, phase)
		}
		if got != c.want {
			t.Errorf("at %s, target = %d, want %d", c.elapsed, got, c.want)
		}
	}
}

func TestTargetSteadyHoldsMax(t *testing.T) {
	cfg := baseConfig()
	phase, target := Target(cfg, 5*time.Second)
	if phase != PhaseSteady {
		t.Errorf("phase = %s, want steady", phase)
	}
	if target != cfg.MaxVUs {
		t.Errorf("target = %d, want %d", target, cfg.MaxVUs)
	}
}

func TestTargetRampDownDecreasing(t *testing.T) {
	cfg := baseConfig()
	_, t1 := Target(cfg, 8*time.Second)  // start of ramp-down
	_, t2 := Target(cfg, 9*time.Second)  // midway
	_, t3 := Target(cfg, 10*time.Second) // end
	if !(t1 >= t2 && t2 >= t3) {
		t.Errorf("ramp-down not monotonically non-increasing: %d, %d, %d", t1, t2, t3)
	}
	if t3 != 0 {
		t.Errorf("target at ramp-down end = %d, want 0", t3)
	}
}

func TestTargetDrainAfterTotal(t *testing.T) {
	cfg := baseConfig()
	phase, target := Target(cfg, 11*time.Second)
	if phase != PhaseDrain {
		t.Errorf("phase = %s, want drain", phase)
	}
	if target != 0 {
		t.Errorf("drain target = %d, want 0", target)
	}
}

func TestTargetNeverExceedsMaxVUs(t *testing.T) {
	cfg := baseConfig()
	for ms := int64(0); ms <= int64(cfg.TotalMs()); ms += 100 {
		_, target := Target(cfg, time.Duration(ms)*time.Millisecond)
		if target > cfg.MaxVUs {
			t.Fatalf("at %dms target=%d exceeds max_vus=%d", ms, target, cfg.MaxVUs)
		}
	}
}

func TestRunLaunchesUpToMaxVUsAndDrains(t *testing.T) {
	// Long enough that the first 1s control tick lands in the steady phase.
	cfg := model.RunConfig{RampUpMs: 50, TestMs: 1500, RampDownMs: 50, MaxVUs: 3}
	m := metrics.New()
	depsFactory := func(id int) vu.Deps {
		return vu.Deps{
			Templates: map[string]model.RequestTemplate{
				"ping": {Name: "ping", Method: model.MethodGet, URLRaw: "https://api.example.com/ping"},
			},
			Steps:      []model.StepConfig{{StepName: "ping", Enabled: true}},
			Rows:       []model.DataRow{{"id": "1"}},
			Executor:   &noopExecutor{},
			Metrics:    m,
			FailLog:    faillog.New(nil),
			SeqManager: sequence.New(nil, ""),
			Log:        zerolog.Nop(),
		}
	}
	runner := New(cfg, depsFactory, m, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		runner.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not complete within a generous bound for a 1.6s total config")
	}

	if runner.launched == 0 {
		t.Error("expected at least one VU to have been launched")
	}
	if runner.launched > cfg.MaxVUs {
		t.Errorf("launched %d VUs, want <= max_vus %d", runner.launched, cfg.MaxVUs)
	}
}

type noopExecutor struct{}

func (n *noopExecutor) Execute(ctx context.Context, prepared *request.Prepared, stepName string, criteria *model.SuccessCriteria) (model.ExecutionResult, string) {
	return model.ExecutionResult{StepName: stepName, IsSuccess: true, CapturedAt: time.Now().UTC()}, ""
}
