package sequence

import (
	"context"
	"testing"

	"github.com/fibi-poc-dev/load-runner/pkg/model"
	"github.com/fibi-poc-dev/load-runner/pkg/varstore"
)

type fakeDispatcher struct {
	calls []string
	onCall func(step string, vars *varstore.Store)
	vars   *varstore.Store
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, stepName string) model.ExecutionResult {
	f.calls = append(f.calls, stepName)
	if f.onCall != nil {
		f.onCall(stepName, f.vars)
	}
	return model.ExecutionResult{StepName: stepName, IsSuccess: true}
}

func TestNeedsPreludeDetectsTokenPlaceholder(t *testing.T) {
	m := New([]string{"issue", "exchange"}, "access_token")
	tmpl := model.RequestTemplate{URLRaw: "https://api.example.com/me?token={{access_token}}"}
	if !m.NeedsPrelude(tmpl) {
		t.Fatal("expected NeedsPrelude to detect the placeholder")
	}
}

func TestNeedsPreludeDetectsAuthorizationHeader(t *testing.T) {
	m := New([]string{"issue"}, "access_token")
	tmpl := model.RequestTemplate{Headers: []model.KV{{Key: "Authorization", Value: "Bearer x"}}}
	if !m.NeedsPrelude(tmpl) {
		t.Fatal("expected NeedsPrelude to trigger on an Authorization header")
	}
}

func TestNeedsPreludeFalseWithoutPrelude(t *testing.T) {
	m := New(nil, "")
	tmpl := model.RequestTemplate{Headers: []model.KV{{Key: "Authorization", Value: "Bearer x"}}}
	if m.NeedsPrelude(tmpl) {
		t.Fatal("no prelude configured, should never need one")
	}
}

func TestEnsureRunsPreludeOnceThenCaches(t *testing.T) {
	vars := varstore.New()
	m := New([]string{"issue", "exchange"}, "access_token")
	dispatcher := &fakeDispatcher{vars: vars}
	dispatcher.onCall = func(step string, v *varstore.Store) {
		if step == "exchange" {
			v.Set("access_token", "tok-1")
		}
	}

	ran, results := m.Ensure(context.Background(), vars, dispatcher)
	if !ran || len(results) != 2 {
		t.Fatalf("first Ensure: ran=%v results=%v", ran, results)
	}

	ran2, results2 := m.Ensure(context.Background(), vars, dispatcher)
	if ran2 || len(results2) != 0 {
		t.Fatalf("second Ensure should be a no-op once cached: ran=%v results=%v", ran2, results2)
	}
	if len(dispatcher.calls) != 2 {
		t.Errorf("dispatcher called %d times, want exactly 2 (prelude runs once)", len(dispatcher.calls))
	}
}

func TestEnsureNoPreludeConfiguredIsNoop(t *testing.T) {
	vars := varstore.New()
	m := New(nil, "")
	dispatcher := &fakeDispatcher{vars: vars}

	ran, results := m.Ensure(context.Background(), vars, dispatcher)
	if ran || results != nil {
		t.Fatalf("expected no-op, got ran=%v results=%v", ran, results)
	}
}
