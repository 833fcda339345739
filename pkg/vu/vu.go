// Package vu implements the per-virtual-user iteration loop: pick a
// fresh data row, resolve variables, walk the enabled step sequence
// through the sequence manager, request builder, executor, validator,
// and script interpreter, and record every result into the metrics
// aggregator and failure logger (§4.8 "Per-VU loop").
package vu

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/fibi-poc-dev/load-runner/pkg/faillog"
	"github.com/fibi-poc-dev/load-runner/pkg/metrics"
	"github.com/fibi-poc-dev/load-runner/pkg/model"
	"github.com/fibi-poc-dev/load-runner/pkg/request"
	"github.com/fibi-poc-dev/load-runner/pkg/script"
	"github.com/fibi-poc-dev/load-runner/pkg/sequence"
	"github.com/fibi-poc-dev/load-runner/pkg/varstore"
)

// Executor is the narrow surface vu needs from the HTTP Executor: send
// the prepared request and return both the recorded result and the raw
// response body text, which the script interpreter needs for
// responseBody extraction statements.
type Executor interface {
	Execute(ctx context.Context, prepared *request.Prepared, stepName string, criteria *model.SuccessCriteria) (model.ExecutionResult, string)
}

// Deps bundles everything a VU needs that is shared across the whole
// run; every field is safe for concurrent use by many VUs.
type Deps struct {
	Templates  map[string]model.RequestTemplate // step name -> template
	Steps      []model.StepConfig
	Rows       []model.DataRow
	Mapping    model.ColumnMapping
	Executor   Executor
	Metrics    *metrics.Aggregator
	FailLog    *faillog.Logger
	SeqManager *sequence.Manager
	Log        zerolog.Logger
	// Limiter paces step dispatch to PerformanceSettings.TargetTransactionsPerSecond
	// across every VU; nil means unthrottled (§4.3, §4.8).
	Limiter *rate.Limiter
}

// Run drives one virtual user until ctx is cancelled. id identifies the
// VU for logging only. rng must not be shared with any other VU (§4.8
// "each VU has its own PRNG seeded independently").
func Run(ctx context.Context, id int, deps Deps, rng *rand.Rand) {
	vars := varstore.FromGlobals(deps.Mapping.Globals)
	persistent := map[string]string{}

	for {
		if ctx.Err() != nil {
			return
		}

		row := pickRow(deps.Rows, rng)
		rowValues, warnings := varstore.CoerceRow(row, deps.Mapping)
		for _, w := range warnings {
			deps.Log.Warn().Int("vu", id).Msg(w)
		}
		// Per-row values land first; persisted script entries are
		// re-applied on top so they keep the highest precedence across
		// iterations (§3 ResolvedVariables, §4.8 step 3).
		vars.MergeRow(rowValues)
		for k, v := range persistent {
			vars.Set(k, v)
		}

		for _, step := range deps.Steps {
			if ctx.Err() != nil {
				return
			}
			if !step.Enabled {
				continue
			}
			tmpl, ok := deps.Templates[step.StepName]
			if !ok {
				continue
			}

			if deps.Limiter != nil {
				if err := deps.Limiter.Wait(ctx); err != nil {
					return
				}
			}

			dispatcher := &vuDispatcher{deps: deps, vars: vars, id: id, persistent: persistent}

			if deps.SeqManager != nil && deps.SeqManager.NeedsPrelude(tmpl) {
				deps.SeqManager.Ensure(ctx, vars, dispatcher)
			}

			result := dispatcher.Dispatch(ctx, step.StepName)
			deps.Metrics.Record(result)
			if !result.IsSuccess {
				deps.FailLog.Append(result)
			}

			if step.InterStepDelayMs > 0 {
				if !sleepCancelable(ctx, time.Duration(step.InterStepDelayMs)*time.Millisecond) {
					return
				}
			}
		}

		jitter := time.Duration(rng.Intn(1000)) * time.Millisecond
		if !sleepCancelable(ctx, jitter) {
			return
		}
	}
}

// pickRow re-selects a uniformly random row every call — the documented
// fresh-row-per-iteration behaviour (§4.8, §9 "Scheduler freshness bug").
func pickRow(rows []model.DataRow, rng *rand.Rand) model.DataRow {
	if len(rows) == 0 {
		return model.DataRow{}
	}
	return rows[rng.Intn(len(rows))]
}

func sleepCancelable(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// vuDispatcher implements sequence.Dispatcher by running one step end
// to end: pre_script, build, send, validate, post_script.
type vuDispatcher struct {
	deps       Deps
	vars       *varstore.Store
	id         int
	persistent map[string]string // script-promoted names, merged on next row
}

func (d *vuDispatcher) Dispatch(ctx context.Context, stepName string) model.ExecutionResult {
	tmpl, ok := d.deps.Templates[stepName]
	if !ok {
		return model.ExecutionResult{StepName: stepName, ErrorMessage: "unknown step", CapturedAt: time.Now().UTC()}
	}

	scriptCtx := script.NewContext(d.vars)
	if raw := tmpl.Body.Raw; raw != "" {
		scriptCtx.LastRequestBody = d.vars.Resolve(raw)
	}
	for _, warn := range script.Run(tmpl.PreScript, scriptCtx) {
		d.deps.Log.Warn().Int("vu", d.id).Str("step", stepName).Str("reason", warn.Reason).Msg("pre_script")
	}
	d.capturePromotions(scriptCtx)

	prepared, err := request.Build(tmpl, d.vars)
	if err != nil {
		return model.ExecutionResult{
			StepName:     stepName,
			Method:       tmpl.Method,
			ErrorMessage: err.Error(),
			CapturedAt:   time.Now().UTC(),
		}
	}

	criteria := d.criteriaFor(stepName)
	result, bodyText := d.deps.Executor.Execute(ctx, prepared, stepName, criteria)

	scriptCtx.LastResponseBody = bodyText
	for _, warn := range script.Run(tmpl.PostScript, scriptCtx) {
		d.deps.Log.Warn().Int("vu", d.id).Str("step", stepName).Str("reason", warn.Reason).Msg("post_script")
	}
	d.capturePromotions(scriptCtx)

	return result
}

// capturePromotions records every name a script statement wrote via
// pm.collectionVariables.set, so the next row merge can reapply it on
// top of the fresh row (§4.8 step 3 "preserving any script-promoted
// persistent entries").
func (d *vuDispatcher) capturePromotions(ctx *script.Context) {
	for name := range ctx.Promoted {
		if v, ok := d.vars.Get(name); ok {
			d.persistent[name] = v
		}
	}
}

func (d *vuDispatcher) criteriaFor(stepName string) *model.SuccessCriteria {
	for _, s := range d.deps.Steps {
		if s.StepName == stepName && s.Criteria != nil {
			return s.Criteria
		}
	}
	return nil
}
