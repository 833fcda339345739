package faillog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fibi-poc-dev/load-runner/pkg/model"
)

func TestAppendSkipsSuccesses(t *testing.T) {
	dir := t.TempDir()
	l := New(&dir)
	l.Append(model.ExecutionResult{StepName: "ping", IsSuccess: true, CapturedAt: time.Now()})
	l.Close()

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no log files for a success-only run, got %d", len(entries))
	}
}

func TestAppendWritesFailureGroupedByStep(t *testing.T) {
	dir := t.TempDir()
	l := New(&dir)
	l.Append(model.ExecutionResult{
		StepName:     "login",
		Method:       model.MethodPost,
		URL:          "https://api.example.com/login",
		StatusCode:   500,
		IsSuccess:    false,
		ErrorMessage: "server error",
		CapturedAt:   time.Now(),
	})
	l.Close()

	path := filepath.Join(dir, "login.log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
	if !strings.Contains(string(data), "server error") {
		t.Errorf("log content missing error message: %s", data)
	}
}

func TestAppendNilDirIsNoop(t *testing.T) {
	l := New(nil)
	l.Append(model.ExecutionResult{StepName: "x", IsSuccess: false, CapturedAt: time.Now()})
	if err := l.Close(); err != nil {
		t.Fatalf("Close on no-op logger: %v", err)
	}
}

func TestEndpointKeyFallsBackToURLPath(t *testing.T) {
	key := endpointKey("", "https://api.example.com/v1/users/42/profile?x=1")
	if key != "v1_users_42" {
		t.Errorf("endpointKey = %q, want v1_users_42", key)
	}
}

func TestEndpointKeyPrefersStepName(t *testing.T) {
	key := endpointKey("create-order", "https://api.example.com/v1/orders")
	if key != "create-order" {
		t.Errorf("endpointKey = %q, want create-order", key)
	}
}
