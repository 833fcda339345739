package vu

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fibi-poc-dev/load-runner/pkg/faillog"
	"github.com/fibi-poc-dev/load-runner/pkg/metrics"
	"github.com/fibi-poc-dev/load-runner/pkg/model"
	"github.com/fibi-poc-dev/load-runner/pkg/request"
	"github.com/fibi-poc-dev/load-runner/pkg/sequence"
)

type fakeExecutor struct {
	calls int
	body  string
}

func (f *fakeExecutor) Execute(ctx context.Context, prepared *request.Prepared, stepName string, criteria *model.SuccessCriteria) (model.ExecutionResult, string) {
	f.calls++
	return model.ExecutionResult{
		StepName:   stepName,
		Method:     prepared.Method,
		URL:        prepared.URL,
		StatusCode: 200,
		IsSuccess:  true,
		CapturedAt: time.Now().UTC(),
	}, f.body
}

func testDeps(exec Executor) Deps {
	return Deps{
		Templates: map[string]model.RequestTemplate{
			"ping": {Name: "ping", Method: model.MethodGet, URLRaw: "https://api.example.com/ping?row={{id}}"},
		},
		Steps: []model.StepConfig{
			{StepName: "ping", Enabled: true, InterStepDelayMs: 0},
		},
		Rows: []model.DataRow{
			{"id": "1"}, {"id": "2"}, {"id": "3"},
		},
		Mapping: model.ColumnMapping{
			Columns: []model.ColumnSpec{{CSVColumn: "id", PlaceholderName: "id", DataType: model.TypeString}},
		},
		Executor:   exec,
		Metrics:    metrics.New(),
		FailLog:    faillog.New(nil),
		SeqManager: sequence.New(nil, ""),
		Log:        zerolog.Nop(),
	}
}

func TestRunRecordsResultsUntilCancelled(t *testing.T) {
	exec := &fakeExecutor{}
	deps := testDeps(exec)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	Run(ctx, 1, deps, rand.New(rand.NewSource(1)))

	snap := deps.Metrics.Snapshot()
	if snap.Total == 0 {
		t.Fatal("expected at least one recorded result before cancellation")
	}
	if exec.calls != int(snap.Total) {
		t.Errorf("executor calls = %d, metrics total = %d", exec.calls, snap.Total)
	}
}

func TestRunStopsPromptlyOnCancel(t *testing.T) {
	exec := &fakeExecutor{}
	deps := testDeps(exec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		Run(ctx, 1, deps, rand.New(rand.NewSource(2)))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after cancellation")
	}
}

func TestRunWithPostScriptInvokesExecutor(t *testing.T) {
	exec := &fakeExecutor{}
	deps := testDeps(exec)
	deps.Templates["ping"] = model.RequestTemplate{
		Name:   "ping",
		Method: model.MethodGet,
		URLRaw: "https://api.example.com/ping",
		PostScript: []string{
			`var tok = JSON.parse(responseBody).token`,
			`pm.collectionVariables.set("auth_token", tok)`,
		},
	}
	exec.body = `{"token":"abc123"}`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	Run(ctx, 1, deps, rand.New(rand.NewSource(3)))

	if exec.calls == 0 {
		t.Fatal("expected executor to be invoked at least once")
	}
}
