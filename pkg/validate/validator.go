// Package validate implements the Response Validator (§4.3): a pure
// function evaluating a SuccessCriteria predicate against one response.
package validate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fibi-poc-dev/load-runner/pkg/model"
)

// Head is the subset of a response's head the validator needs: status
// and headers. Kept separate from net/http so this package has no
// transport dependency and stays a pure function of its inputs.
type Head struct {
	StatusCode int
	Headers    map[string][]string
}

// Evaluate runs every field present in criteria against head/bodyText/
// responseTime, in the deterministic order listed in §4.3, collecting
// every failure reason rather than short-circuiting on the first.
func Evaluate(head Head, bodyText string, responseTime time.Duration, criteria *model.SuccessCriteria) model.ValidationVerdict {
	if criteria == nil {
		return model.ValidationVerdict{OK: true}
	}

	var reasons []string

	if criteria.AcceptedStatusCodes != nil {
		if _, ok := criteria.AcceptedStatusCodes[head.StatusCode]; !ok {
			reasons = append(reasons, fmt.Sprintf("status %d not in accepted set", head.StatusCode))
		}
	}

	if criteria.MaxResponseTimeMs != nil {
		maxMs := time.Duration(*criteria.MaxResponseTimeMs) * time.Millisecond
		if responseTime > maxMs {
			reasons = append(reasons, fmt.Sprintf("response time %s exceeds max %dms", responseTime, *criteria.MaxResponseTimeMs))
		}
	}

	if criteria.BodyRegex != "" {
		re, err := regexp.Compile("(?im)" + criteria.BodyRegex)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("body_regex invalid: %v", err))
		} else if !re.MatchString(bodyText) {
			reasons = append(reasons, fmt.Sprintf("body does not match regex %q", criteria.BodyRegex))
		}
	}

	if len(criteria.BodyMustContain) > 0 {
		lowerBody := strings.ToLower(bodyText)
		for _, want := range criteria.BodyMustContain {
			if !strings.Contains(lowerBody, strings.ToLower(want)) {
				reasons = append(reasons, fmt.Sprintf("body does not contain %q", want))
			}
		}
	}

	for _, hc := range criteria.HeaderChecks {
		if reason := evaluateHeaderCheck(head, hc); reason != "" {
			reasons = append(reasons, reason)
		}
	}

	for _, jc := range criteria.JSONPathChecks {
		if reason := evaluateJSONPathCheck(bodyText, jc); reason != "" {
			reasons = append(reasons, reason)
		}
	}

	if criteria.MinBodyBytes != nil && len(bodyText) < *criteria.MinBodyBytes {
		reasons = append(reasons, fmt.Sprintf("body size %d below min %d bytes", len(bodyText), *criteria.MinBodyBytes))
	}
	if criteria.MaxBodyBytes != nil && len(bodyText) > *criteria.MaxBodyBytes {
		reasons = append(reasons, fmt.Sprintf("body size %d above max %d bytes", len(bodyText), *criteria.MaxBodyBytes))
	}

	return model.ValidationVerdict{OK: len(reasons) == 0, Reasons: reasons}
}

func evaluateHeaderCheck(head Head, hc model.HeaderCheck) string {
	values := headerValues(head.Headers, hc.Name)
	switch hc.Rule {
	case model.HeaderPresent:
		if len(values) == 0 {
			return fmt.Sprintf("header %q not present", hc.Name)
		}
	case model.HeaderEquals:
		for _, v := range values {
			if v == hc.Expected {
				return ""
			}
		}
		return fmt.Sprintf("header %q does not equal %q", hc.Name, hc.Expected)
	case model.HeaderContains:
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), strings.ToLower(hc.Expected)) {
				return ""
			}
		}
		return fmt.Sprintf("header %q does not contain %q", hc.Name, hc.Expected)
	case model.HeaderRegex:
		re, err := regexp.Compile("(?i)" + hc.Expected)
		if err != nil {
			return fmt.Sprintf("header %q rule regex invalid: %v", hc.Name, err)
		}
		for _, v := range values {
			if re.MatchString(v) {
				return ""
			}
		}
		return fmt.Sprintf("header %q does not match regex %q", hc.Name, hc.Expected)
	default:
		return fmt.Sprintf("header %q: unknown rule %q", hc.Name, hc.Rule)
	}
	return ""
}

func headerValues(headers map[string][]string, name string) []string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

func evaluateJSONPathCheck(bodyText string, jc model.JSONPathCheck) string {
	value, found, err := lookupJSONPath(bodyText, jc.Path)
	if err != nil {
		return fmt.Sprintf("json_path %q: %v", jc.Path, err)
	}
	if !found {
		return fmt.Sprintf("json_path %q: path not found", jc.Path)
	}

	switch jc.Rule {
	case model.JSONPathPresent:
		return ""
	case model.JSONPathIsNumber:
		if _, ok := value.(float64); !ok {
			return fmt.Sprintf("json_path %q: value is not a number", jc.Path)
		}
	case model.JSONPathIsString:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("json_path %q: value is not a string", jc.Path)
		}
	case model.JSONPathEquals:
		if !strings.EqualFold(stringify(value), jc.Expected) {
			return fmt.Sprintf("json_path %q: expected %q, got %q", jc.Path, jc.Expected, stringify(value))
		}
	case model.JSONPathRegex:
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("json_path %q: regex rule requires a string value", jc.Path)
		}
		re, err := regexp.Compile("(?i)" + jc.Expected)
		if err != nil {
			return fmt.Sprintf("json_path %q rule regex invalid: %v", jc.Path, err)
		}
		if !re.MatchString(s) {
			return fmt.Sprintf("json_path %q: value %q does not match regex %q", jc.Path, s, jc.Expected)
		}
	default:
		return fmt.Sprintf("json_path %q: unknown rule %q", jc.Path, jc.Rule)
	}
	return ""
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return "null"
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// lookupJSONPath traverses a restricted grammar: a leading '$', then
// dot-separated property names — no array indexing, no wildcards
// (§4.3). Traversal failure reports found=false, not an error; a
// malformed JSON body is itself an error.
func lookupJSONPath(bodyText, path string) (value interface{}, found bool, err error) {
	var doc interface{}
	if err := json.Unmarshal([]byte(bodyText), &doc); err != nil {
		return nil, false, fmt.Errorf("body is not valid JSON: %w", err)
	}

	trimmed := strings.TrimPrefix(path, "$")
	trimmed = strings.TrimPrefix(trimmed, ".")
	if trimmed == "" {
		return doc, true, nil
	}

	cur := doc
	for _, segment := range strings.Split(trimmed, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false, nil
		}
		next, ok := obj[segment]
		if !ok {
			return nil, false, nil
		}
		cur = next
	}
	return cur, true, nil
}
