package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
PostmanCollectionPath: collection.yaml
CsvDataPath: data.csv
ColumnMappingPath: mapping.yaml
OutputSettings:
  HtmlReportPath: report.json
  ConsoleUpdateIntervalMs: 2000
ExecutionSettings:
  TestDurationMs: 6000
  RampUpTimeMs: 2000
  RampDownTimeMs: 2000
  IterationSettings:
    - StepName: ping
      IntervalMs: 200
      Enabled: true
PerformanceSettings:
  TargetTransactionsPerSecond: 10
  MaxConcurrentUsers: 5
  RequestTimeoutMs: 2000
  MaxRetries: 0
Thresholds:
  MaxResponseTimeMs: 2000
  MaxErrorRatePercent: 5
  MinTransactionsPerSecond: 1
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadTranslatesKeys(t *testing.T) {
	cfg, err := Load(writeTemp(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TestMs != 6000 || cfg.RampUpMs != 2000 || cfg.RampDownMs != 2000 {
		t.Errorf("durations = %+v", cfg)
	}
	if cfg.MaxVUs != 5 {
		t.Errorf("MaxVUs = %d, want 5", cfg.MaxVUs)
	}
	if len(cfg.StepSequence) != 1 || cfg.StepSequence[0].StepName != "ping" {
		t.Errorf("StepSequence = %+v", cfg.StepSequence)
	}
	if cfg.Thresholds.MaxErrorRatePct != 5 {
		t.Errorf("MaxErrorRatePct = %v, want 5", cfg.Thresholds.MaxErrorRatePct)
	}
}

func TestLoadRejectsNonPositiveDuration(t *testing.T) {
	bad := `
ExecutionSettings:
  TestDurationMs: 0
PerformanceSettings:
  MaxConcurrentUsers: 5
  RequestTimeoutMs: 2000
`
	_, err := Load(writeTemp(t, bad))
	if err == nil {
		t.Fatal("expected an error for TestDurationMs=0")
	}
}

func TestLoadRejectsZeroMaxVUs(t *testing.T) {
	bad := `
ExecutionSettings:
  TestDurationMs: 1000
PerformanceSettings:
  MaxConcurrentUsers: 0
  RequestTimeoutMs: 2000
`
	_, err := Load(writeTemp(t, bad))
	if err == nil {
		t.Fatal("expected an error for MaxConcurrentUsers=0")
	}
}

func TestLoadMissingFileIsFatal(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
