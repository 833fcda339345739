// Package script implements the micro-DSL described in §4.4: a tiny,
// line-oriented grammar of exactly six statement forms, applied to a
// RequestTemplate's pre_script and post_script lists. This is
// deliberately not a general-purpose interpreter — see §9's "Template
// scripting" design note.
package script

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/fibi-poc-dev/load-runner/pkg/varstore"
)

// Context carries everything a script statement can read or write:
// the most recent response/request bodies and a VU-local temp map for
// intermediate values, plus the Store that `pm.collectionVariables.set`
// promotes values into.
type Context struct {
	Vars             *varstore.Store
	Temp             map[string]string
	LastResponseBody string
	LastRequestBody  string

	// Promoted collects every name written by a
	// pm.collectionVariables.set statement during this Run, so a caller
	// can track which entries must survive the next row merge (§4.8
	// "preserving any script-promoted persistent entries").
	Promoted map[string]struct{}
}

// NewContext creates an empty script Context bound to vars.
func NewContext(vars *varstore.Store) *Context {
	return &Context{Vars: vars, Temp: make(map[string]string), Promoted: make(map[string]struct{})}
}

// Warning describes a statement that failed to parse or execute; the
// statement is skipped, never aborts the iteration (§4.4, §7).
type Warning struct {
	Line   string
	Reason string
}

var (
	reJSONParseResponseField = regexp.MustCompile(`^var\s+(\w+)\s*=\s*JSON\.parse\(responseBody\)\.(\w+)\s*;?$`)
	reJSONParseRequestBody   = regexp.MustCompile(`^var\s+(\w+)\s*=\s*JSON\.parse\(pm\.request\.body\.raw\)\s*;?$`)
	reJSONStringify          = regexp.MustCompile(`^var\s+(\w+)\s*=\s*JSON\.stringify\((\w+)\)\s*;?$`)
	reBtoa                   = regexp.MustCompile(`^var\s+(\w+)\s*=\s*btoa\((\w+)\)\s*;?$`)
	reLiteral                = regexp.MustCompile(`^var\s+(\w+)\s*=\s*"([^"]*)"\s*;?$`)
	reCollectionVarSet       = regexp.MustCompile(`^pm\.collectionVariables\.set\(\s*"(\w+)"\s*,\s*(\w+)\s*\)\s*;?$`)
)

// Run executes every statement in order against ctx, collecting
// warnings for any statement that fails to parse or apply. It never
// returns an error: a bad statement is logged (via the returned
// warnings) and skipped (§4.4).
func Run(statements []string, ctx *Context) []Warning {
	var warnings []Warning
	for _, raw := range statements {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if w := runOne(line, ctx); w != "" {
			warnings = append(warnings, Warning{Line: line, Reason: w})
		}
	}
	return warnings
}

func runOne(line string, ctx *Context) string {
	switch {
	case reJSONParseResponseField.MatchString(line):
		m := reJSONParseResponseField.FindStringSubmatch(line)
		return extractResponseField(ctx, m[1], m[2])

	case reJSONParseRequestBody.MatchString(line):
		m := reJSONParseRequestBody.FindStringSubmatch(line)
		ctx.Temp[m[1]] = ctx.LastRequestBody
		return ""

	case reJSONStringify.MatchString(line):
		m := reJSONStringify.FindStringSubmatch(line)
		v, ok := ctx.Temp[m[2]]
		if !ok {
			return "undefined source variable " + m[2]
		}
		ctx.Temp[m[1]] = v
		return ""

	case reBtoa.MatchString(line):
		m := reBtoa.FindStringSubmatch(line)
		v, ok := ctx.Temp[m[2]]
		if !ok {
			return "undefined source variable " + m[2]
		}
		ctx.Temp[m[1]] = base64.StdEncoding.EncodeToString([]byte(v))
		return ""

	case reLiteral.MatchString(line):
		m := reLiteral.FindStringSubmatch(line)
		ctx.Temp[m[1]] = m[2]
		return ""

	case reCollectionVarSet.MatchString(line):
		m := reCollectionVarSet.FindStringSubmatch(line)
		v, ok := ctx.Temp[m[2]]
		if !ok {
			return "undefined source variable " + m[2]
		}
		ctx.Vars.Set(m[1], v)
		ctx.Promoted[m[1]] = struct{}{}
		return ""

	default:
		return "unrecognized statement form"
	}
}

// extractResponseField parses ctx.LastResponseBody as JSON and stores
// the textual representation of property `field` into temp[name]. A
// string property is stored raw (no quoting); anything else is stored
// as its raw JSON text (§4.4 form 1).
func extractResponseField(ctx *Context, name, field string) string {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(ctx.LastResponseBody), &doc); err != nil {
		return "responseBody is not a JSON object: " + err.Error()
	}
	raw, ok := doc[field]
	if !ok {
		return "field " + field + " not present in responseBody"
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		ctx.Temp[name] = asString
		return ""
	}
	ctx.Temp[name] = strings.TrimSpace(string(raw))
	return ""
}
