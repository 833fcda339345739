// Package config loads the run-configuration document into a
// model.RunConfig, translating the key names listed in §6 EXTERNAL
// INTERFACES. Configuration parsing is glue, not core (§1): it defers
// entirely to viper for file decoding and only validates and
// translates the result.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/fibi-poc-dev/load-runner/pkg/model"
)

// Document is the top-level shape of the run configuration file, using
// the exact key names §6 names as externally recognised.
type Document struct {
	PostmanCollectionPath string `mapstructure:"PostmanCollectionPath"`
	CsvDataPath           string `mapstructure:"CsvDataPath"`
	ColumnMappingPath     string `mapstructure:"ColumnMappingPath"`

	OutputSettings struct {
		HTMLReportPath          string `mapstructure:"HtmlReportPath"`
		ConsoleUpdateIntervalMs int    `mapstructure:"ConsoleUpdateIntervalMs"`
		FailureLogDir           string `mapstructure:"FailureLogDir"`
	} `mapstructure:"OutputSettings"`

	ExecutionSettings struct {
		TestDurationMs   int `mapstructure:"TestDurationMs"`
		RampUpTimeMs     int `mapstructure:"RampUpTimeMs"`
		RampDownTimeMs   int `mapstructure:"RampDownTimeMs"`
		IterationSettings []IterationSetting `mapstructure:"IterationSettings"`
	} `mapstructure:"ExecutionSettings"`

	PerformanceSettings struct {
		TargetTransactionsPerSecond float64 `mapstructure:"TargetTransactionsPerSecond"`
		MaxConcurrentUsers          int     `mapstructure:"MaxConcurrentUsers"`
		RequestTimeoutMs            int     `mapstructure:"RequestTimeoutMs"`
		MaxRetries                  int     `mapstructure:"MaxRetries"`
	} `mapstructure:"PerformanceSettings"`

	Thresholds struct {
		MaxResponseTimeMs      int     `mapstructure:"MaxResponseTimeMs"`
		MaxErrorRatePercent    float64 `mapstructure:"MaxErrorRatePercent"`
		MinTransactionsPerSecond float64 `mapstructure:"MinTransactionsPerSecond"`
	} `mapstructure:"Thresholds"`

	GlobalSuccessCriteria struct {
		DefaultHTTPStatusCodes  []int `mapstructure:"DefaultHttpStatusCodes"`
		DefaultResponseTimeMaxMs int  `mapstructure:"DefaultResponseTimeMaxMs"`
	} `mapstructure:"GlobalSuccessCriteria"`

	AuthPrelude struct {
		StepNames []string `mapstructure:"StepNames"`
		TokenName string   `mapstructure:"TokenName"`
	} `mapstructure:"AuthPrelude"`
}

// IterationSetting is one entry of ExecutionSettings.IterationSettings.
type IterationSetting struct {
	StepName string `mapstructure:"StepName"`
	IntervalMs int  `mapstructure:"IntervalMs"`
	Enabled  bool   `mapstructure:"Enabled"`
}

// Load reads path (YAML or JSON, detected by viper) into a Document and
// translates it into a model.RunConfig. A missing or malformed file is
// a fatal, pre-start error (§7 "Configuration invalid").
func Load(path string) (model.RunConfig, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return model.RunConfig{}, err
	}

	cfg, err := toRunConfig(doc)
	if err != nil {
		return model.RunConfig{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// LoadDocument reads path into the raw Document, without the
// model.RunConfig translation. cmd/loadrunner uses this to reach the
// file paths (PostmanCollectionPath, CsvDataPath, ColumnMappingPath,
// OutputSettings.FailureLogDir) that have no home on model.RunConfig.
func LoadDocument(path string) (Document, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Document{}, fmt.Errorf("reading config %q: %w", path, err)
	}

	var doc Document
	if err := v.Unmarshal(&doc); err != nil {
		return Document{}, fmt.Errorf("decoding config %q: %w", path, err)
	}
	return doc, nil
}

// toRunConfig validates durations/TPS/VUs and builds the per-step
// sequence (§6, §7 "missing/invalid paths, non-positive durations/TPS/
// VUs").
func toRunConfig(doc Document) (model.RunConfig, error) {
	if doc.ExecutionSettings.TestDurationMs <= 0 {
		return model.RunConfig{}, fmt.Errorf("ExecutionSettings.TestDurationMs must be positive")
	}
	if doc.PerformanceSettings.MaxConcurrentUsers <= 0 {
		return model.RunConfig{}, fmt.Errorf("PerformanceSettings.MaxConcurrentUsers must be positive")
	}
	if doc.PerformanceSettings.RequestTimeoutMs <= 0 {
		return model.RunConfig{}, fmt.Errorf("PerformanceSettings.RequestTimeoutMs must be positive")
	}
	if doc.PerformanceSettings.TargetTransactionsPerSecond <= 0 {
		return model.RunConfig{}, fmt.Errorf("PerformanceSettings.TargetTransactionsPerSecond must be positive")
	}

	var globalCriteria *model.SuccessCriteria
	if len(doc.GlobalSuccessCriteria.DefaultHTTPStatusCodes) > 0 {
		codes := make(map[int]struct{}, len(doc.GlobalSuccessCriteria.DefaultHTTPStatusCodes))
		for _, c := range doc.GlobalSuccessCriteria.DefaultHTTPStatusCodes {
			codes[c] = struct{}{}
		}
		globalCriteria = &model.SuccessCriteria{AcceptedStatusCodes: codes}
		if doc.GlobalSuccessCriteria.DefaultResponseTimeMaxMs > 0 {
			ms := doc.GlobalSuccessCriteria.DefaultResponseTimeMaxMs
			globalCriteria.MaxResponseTimeMs = &ms
		}
	}

	steps := make([]model.StepConfig, 0, len(doc.ExecutionSettings.IterationSettings))
	for _, it := range doc.ExecutionSettings.IterationSettings {
		if it.StepName == "" {
			return model.RunConfig{}, fmt.Errorf("IterationSettings entry missing StepName")
		}
		steps = append(steps, model.StepConfig{
			StepName:         it.StepName,
			InterStepDelayMs: it.IntervalMs,
			Enabled:          it.Enabled,
			Criteria:         globalCriteria,
		})
	}

	return model.RunConfig{
		TestMs:           doc.ExecutionSettings.TestDurationMs,
		RampUpMs:         doc.ExecutionSettings.RampUpTimeMs,
		RampDownMs:       doc.ExecutionSettings.RampDownTimeMs,
		TargetTPS:        doc.PerformanceSettings.TargetTransactionsPerSecond,
		MaxVUs:           doc.PerformanceSettings.MaxConcurrentUsers,
		RequestTimeoutMs: doc.PerformanceSettings.RequestTimeoutMs,
		StepSequence:     steps,
		Thresholds: model.Thresholds{
			MaxResponseTimeMs: doc.Thresholds.MaxResponseTimeMs,
			MaxErrorRatePct:   doc.Thresholds.MaxErrorRatePercent,
			MinTPS:            doc.Thresholds.MinTransactionsPerSecond,
		},
		GlobalCriteria: globalCriteria,
		MaxRetries:     doc.PerformanceSettings.MaxRetries, // reserved, unused by the core
		PreludeSteps:   doc.AuthPrelude.StepNames,
		TokenName:      doc.AuthPrelude.TokenName,
	}, nil
}
