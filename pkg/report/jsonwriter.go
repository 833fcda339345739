package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/fibi-poc-dev/load-runner/pkg/model"
)

// document is the on-disk shape written by JSONArtifactWriter; the
// HTML/chart rendering layer (§9 "Report rendering") consumes this
// structured form rather than the live Aggregator.
type document struct {
	RunID              string                 `json:"run_id,omitempty"`
	GeneratedAt        time.Time              `json:"generated_at"`
	Start              time.Time              `json:"start"`
	End                *time.Time             `json:"end,omitempty"`
	Total              int64                  `json:"total"`
	Succeeded          int64                  `json:"succeeded"`
	Failed             int64                  `json:"failed"`
	ValidationFailures int64                  `json:"validation_failures"`
	CurrentTPS         float64                `json:"tps"`
	PerStepCounts      map[string]int         `json:"per_step_samples"`
	Config             model.RunConfig        `json:"config"`
	Verdict            Verdict                `json:"verdict"`
}

// JSONArtifactWriter is the default ArtifactWriter: one indented JSON
// document at Path, written for machine consumption rather than as a
// replayable scenario.
type JSONArtifactWriter struct {
	Path  string
	RunID string
}

func (w JSONArtifactWriter) Write(snapshot model.MetricsSnapshot, config model.RunConfig, verdict Verdict) error {
	if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
		return err
	}

	perStep := make(map[string]int, len(snapshot.PerStepSamples))
	for step, samples := range snapshot.PerStepSamples {
		perStep[step] = len(samples)
	}

	doc := document{
		RunID:              w.RunID,
		GeneratedAt:        time.Now().UTC(),
		Start:              snapshot.Start,
		End:                snapshot.End,
		Total:              snapshot.Total,
		Succeeded:          snapshot.Succeeded,
		Failed:             snapshot.Failed,
		ValidationFailures: snapshot.ValidationFailures,
		CurrentTPS:         snapshot.CurrentTPS,
		PerStepCounts:      perStep,
		Config:             config,
		Verdict:            verdict,
	}

	f, err := os.Create(w.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
