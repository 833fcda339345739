// Package sequence implements the Sequence Manager (§4.6): an optional
// ordered auth prelude, run at most once per virtual user, that seeds
// the token(s) dependent steps need before they dispatch.
package sequence

import (
	"context"
	"strings"

	"github.com/fibi-poc-dev/load-runner/pkg/model"
)

// Dispatcher executes a single named step end to end — building,
// sending, validating, and running its post_script — and returns the
// step's ExecutionResult. The Manager depends only on this narrow interface so it
// never needs to know about requests, HTTP, or scripts directly.
type Dispatcher interface {
	Dispatch(ctx context.Context, stepName string) model.ExecutionResult
}

// Manager holds an optional ordered prelude (by convention two steps: a
// token issuance followed by an exchange) and ensures it has run,
// caching the result in the VU's variable store, before a dependent
// step is dispatched (§4.6).
type Manager struct {
	PreludeSteps []string // step names, run in order, once
	TokenName    string   // placeholder name that marks prelude success, e.g. "access_token"
}

// New builds a Manager. An empty preludeSteps means no auth flow is
// configured; NeedsPrelude and Ensure then become no-ops.
func New(preludeSteps []string, tokenName string) *Manager {
	return &Manager{PreludeSteps: preludeSteps, TokenName: tokenName}
}

// NeedsPrelude reports whether tmpl textually references the cached
// token placeholder or carries an Authorization header — the two
// triggers named in §4.6.
func (m *Manager) NeedsPrelude(tmpl model.RequestTemplate) bool {
	if len(m.PreludeSteps) == 0 || m.TokenName == "" {
		return false
	}
	marker := "{{" + m.TokenName + "}}"
	if strings.Contains(tmpl.URLRaw, marker) || strings.Contains(tmpl.Body.Raw, marker) {
		return true
	}
	for _, h := range tmpl.Headers {
		if strings.Contains(h.Value, marker) {
			return true
		}
		if strings.EqualFold(h.Key, "Authorization") {
			return true
		}
	}
	return false
}

// lookup is the minimal interface Ensure needs to check whether the
// token is already cached, satisfied by *varstore.Store.
type lookup interface {
	Get(name string) (string, bool)
}

// Ensure runs the prelude exactly once per VU if the cached token is
// absent, propagating each prelude step's extractions through the
// Dispatcher before the dependent step proceeds. A prelude failure does
// not abort the VU — the dependent step is dispatched regardless and
// will fail validation naturally (§4.6).
func (m *Manager) Ensure(ctx context.Context, vars lookup, dispatch Dispatcher) (ran bool, results []model.ExecutionResult) {
	if len(m.PreludeSteps) == 0 {
		return false, nil
	}
	if _, ok := vars.Get(m.TokenName); ok {
		return false, nil
	}
	for _, step := range m.PreludeSteps {
		select {
		case <-ctx.Done():
			return true, results
		default:
		}
		results = append(results, dispatch.Dispatch(ctx, step))
	}
	return true, results
}
