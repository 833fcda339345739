package validate

import (
	"testing"
	"time"

	"github.com/fibi-poc-dev/load-runner/pkg/model"
)

func TestEvaluateNilCriteriaAlwaysOK(t *testing.T) {
	v := Evaluate(Head{StatusCode: 500}, "", 0, nil)
	if !v.OK {
		t.Fatalf("nil criteria should always pass, got %+v", v)
	}
}

func TestEvaluateStatusCode(t *testing.T) {
	criteria := &model.SuccessCriteria{AcceptedStatusCodes: map[int]struct{}{200: {}}}

	if v := Evaluate(Head{StatusCode: 200}, "", 0, criteria); !v.OK {
		t.Errorf("200 should pass, got %+v", v)
	}
	if v := Evaluate(Head{StatusCode: 404}, "", 0, criteria); v.OK {
		t.Errorf("404 should fail, got %+v", v)
	}
}

func TestEvaluateJSONPathEquals(t *testing.T) {
	criteria := &model.SuccessCriteria{
		JSONPathChecks: []model.JSONPathCheck{
			{Path: "$.ok", Rule: model.JSONPathEquals, Expected: "true"},
		},
	}

	v := Evaluate(Head{}, `{"ok": false}`, 0, criteria)
	if v.OK {
		t.Fatal("expected failure for ok=false")
	}
	found := false
	for _, r := range v.Reasons {
		if containsSubstr(r, "$.ok") {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons %v do not reference $.ok", v.Reasons)
	}
}

func TestEvaluateJSONPathNotFound(t *testing.T) {
	criteria := &model.SuccessCriteria{
		JSONPathChecks: []model.JSONPathCheck{{Path: "$.a.b", Rule: model.JSONPathPresent}},
	}
	v := Evaluate(Head{}, `{"a": {"c": 1}}`, 0, criteria)
	if v.OK {
		t.Fatal("expected path-not-found failure")
	}
}

func TestEvaluateMalformedJSONIsFailureWithReason(t *testing.T) {
	criteria := &model.SuccessCriteria{
		JSONPathChecks: []model.JSONPathCheck{{Path: "$.x", Rule: model.JSONPathPresent}},
	}
	v := Evaluate(Head{}, `not json`, 0, criteria)
	if v.OK || len(v.Reasons) == 0 {
		t.Fatalf("expected failure with a reason, got %+v", v)
	}
}

func TestEvaluateAllFieldsRunEvenWhenOneFails(t *testing.T) {
	maxMs := 10
	criteria := &model.SuccessCriteria{
		AcceptedStatusCodes: map[int]struct{}{200: {}},
		MaxResponseTimeMs:   &maxMs,
		BodyMustContain:     []string{"missing-text"},
	}
	v := Evaluate(Head{StatusCode: 500}, "hello", 50*time.Millisecond, criteria)
	if v.OK {
		t.Fatal("expected failure")
	}
	if len(v.Reasons) != 3 {
		t.Errorf("reasons = %v, want 3 independent failures collected", v.Reasons)
	}
}

func TestEvaluateHeaderRules(t *testing.T) {
	head := Head{Headers: map[string][]string{"Content-Type": {"application/json; charset=utf-8"}}}

	ok := Evaluate(head, "", 0, &model.SuccessCriteria{
		HeaderChecks: []model.HeaderCheck{{Name: "Content-Type", Rule: model.HeaderContains, Expected: "json"}},
	})
	if !ok.OK {
		t.Errorf("contains check should pass, got %+v", ok)
	}

	fail := Evaluate(head, "", 0, &model.SuccessCriteria{
		HeaderChecks: []model.HeaderCheck{{Name: "Content-Type", Rule: model.HeaderEquals, Expected: "application/json"}},
	})
	if fail.OK {
		t.Errorf("equals check should fail on exact mismatch, got %+v", fail)
	}
}

func TestEvaluateBodySizeBounds(t *testing.T) {
	min, max := 5, 10
	criteria := &model.SuccessCriteria{MinBodyBytes: &min, MaxBodyBytes: &max}

	if v := Evaluate(Head{}, "1234", 0, criteria); v.OK {
		t.Errorf("body too small should fail, got %+v", v)
	}
	if v := Evaluate(Head{}, "12345678901", 0, criteria); v.OK {
		t.Errorf("body too large should fail, got %+v", v)
	}
	if v := Evaluate(Head{}, "1234567", 0, criteria); !v.OK {
		t.Errorf("body within bounds should pass, got %+v", v)
	}
}

func containsSubstr(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
