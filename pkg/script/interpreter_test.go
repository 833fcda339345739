package script

import (
	"testing"

	"github.com/fibi-poc-dev/load-runner/pkg/varstore"
)

func TestRunExtractsStringField(t *testing.T) {
	ctx := NewContext(varstore.New())
	ctx.LastResponseBody = `{"token": "abc123", "count": 5}`

	warnings := Run([]string{`var tok = JSON.parse(responseBody).token`}, ctx)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
	if ctx.Temp["tok"] != "abc123" {
		t.Errorf("temp[tok] = %q, want abc123 (unquoted string)", ctx.Temp["tok"])
	}
}

func TestRunExtractsNonStringFieldAsRawJSON(t *testing.T) {
	ctx := NewContext(varstore.New())
	ctx.LastResponseBody = `{"count": 5}`

	Run([]string{`var c = JSON.parse(responseBody).count`}, ctx)
	if ctx.Temp["c"] != "5" {
		t.Errorf("temp[c] = %q, want 5", ctx.Temp["c"])
	}
}

func TestRunLiteralAndStringifyAndBtoa(t *testing.T) {
	ctx := NewContext(varstore.New())
	Run([]string{
		`var a = "hello"`,
		`var b = JSON.stringify(a)`,
		`var c = btoa(b)`,
	}, ctx)

	if ctx.Temp["b"] != "hello" {
		t.Errorf("temp[b] = %q", ctx.Temp["b"])
	}
	if ctx.Temp["c"] != "aGVsbG8=" {
		t.Errorf("temp[c] = %q, want base64 of hello", ctx.Temp["c"])
	}
}

func TestRunPromotesToPersistentVariable(t *testing.T) {
	vars := varstore.New()
	ctx := NewContext(vars)
	Run([]string{
		`var tok = "mytoken"`,
		`pm.collectionVariables.set("access_token", tok)`,
	}, ctx)

	v, ok := vars.Get("access_token")
	if !ok || v != "mytoken" {
		t.Errorf("access_token = %q, ok=%v", v, ok)
	}
}

func TestRunSkipsBlankAndCommentLines(t *testing.T) {
	ctx := NewContext(varstore.New())
	warnings := Run([]string{"", "  ", "// a comment", `var a = "x"`}, ctx)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
	if ctx.Temp["a"] != "x" {
		t.Errorf("temp[a] = %q", ctx.Temp["a"])
	}
}

func TestRunUnrecognizedStatementIsSkippedNotFatal(t *testing.T) {
	ctx := NewContext(varstore.New())
	warnings := Run([]string{
		`this is not a real statement`,
		`var a = "still runs"`,
	}, ctx)

	if len(warnings) != 1 {
		t.Fatalf("warnings = %+v, want exactly one", warnings)
	}
	if ctx.Temp["a"] != "still runs" {
		t.Errorf("subsequent statement did not run: temp[a] = %q", ctx.Temp["a"])
	}
}

func TestRunIsIdempotentOverSameResponseBody(t *testing.T) {
	body := `{"token": "xyz"}`
	vars := varstore.New()
	run := func() map[string]string {
		ctx := NewContext(vars)
		ctx.LastResponseBody = body
		Run([]string{
			`var tok = JSON.parse(responseBody).token`,
			`pm.collectionVariables.set("access_token", tok)`,
		}, ctx)
		return vars.Snapshot()
	}

	first := run()
	second := run()
	if first["access_token"] != second["access_token"] {
		t.Errorf("not idempotent: %q vs %q", first["access_token"], second["access_token"])
	}
}
