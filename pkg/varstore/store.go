// Package varstore implements the Variable Store (§4.1): placeholder
// substitution, layered merges, and per-column type coercion. A Store is
// VU-local — it must never be shared across virtual users (§5, §9).
package varstore

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fibi-poc-dev/load-runner/pkg/model"
)

// placeholderPattern matches {{name}} tokens. Unresolved names are left
// verbatim by resolve — this is a plain textual scan, not a re-expanding
// template engine (§4.1, §9).
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Store is a flat string-to-string variable map, safe for concurrent
// reads/writes from the goroutines belonging to a single virtual user
// (e.g. the step loop and a concurrently-running console snapshot).
type Store struct {
	mu     sync.RWMutex
	values map[string]string
	warned map[string]struct{} // names already warned about once (§7)
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		values: make(map[string]string),
		warned: make(map[string]struct{}),
	}
}

// FromGlobals creates a Store seeded with the given globals, lowest
// layer first; later entries in the slice win on name collision.
func FromGlobals(globals []model.GlobalVariable) *Store {
	s := New()
	for _, g := range globals {
		s.values[g.Name] = g.Value
	}
	return s
}

// Clone returns a deep copy safe for independent mutation; writes to
// the copy never reach the original.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := New()
	for k, v := range s.values {
		out.values[k] = v
	}
	return out
}

// Get returns the current value for name and whether it is set.
func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Set writes name=value, the highest-precedence layer (§3: script
// extracted values).
func (s *Store) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// MergeRow layers a per-row mapped value set on top of the current
// contents, in place. Existing keys not present in the row are kept.
func (s *Store) MergeRow(values map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
}

// Resolve replaces every {{name}} occurrence in template with the
// current value for name. A name with no current value is left
// verbatim, including its braces (§4.1, P2). Because this is a single
// textual pass, a resolved value that itself contains "{{x}}" is
// inserted literally and is not re-expanded.
func (s *Store) Resolve(template string) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := s.values[name]; ok {
			return v
		}
		return match
	})
}

// WarnOnceUnresolved reports (via the returned bool) whether this is the
// first time `name` has been seen unresolved in this Store's lifetime,
// so the caller can log a warning exactly once per name (§7).
func (s *Store) WarnOnceUnresolved(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.warned[name]; seen {
		return false
	}
	s.warned[name] = struct{}{}
	return true
}

// Snapshot returns a plain map copy of the current values, for callers
// that need direct map semantics.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// CoerceRow applies per-column type coercion and encoding to one DataRow
// per the ColumnMapping, producing the resolved placeholder values ready
// to merge into a Store (§4.1). Coercion failures are non-fatal: the
// original cell text is used verbatim and a warning is returned for the
// column.
func CoerceRow(row model.DataRow, mapping model.ColumnMapping) (map[string]string, []string) {
	out := make(map[string]string, len(mapping.Columns))
	var warnings []string
	for _, col := range mapping.Columns {
		cell, ok := row[col.CSVColumn]
		if !ok {
			continue
		}
		coerced, err := coerceType(cell, col.DataType)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("column %q: %v, using raw value", col.CSVColumn, err))
			coerced = cell
		}
		out[col.PlaceholderName] = applyEncoding(coerced, col.Encoding)
	}
	return out, warnings
}

func coerceType(cell string, t model.DataType) (string, error) {
	switch t {
	case model.TypeInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(cell), 10, 64)
		if err != nil {
			return cell, fmt.Errorf("not an integer: %w", err)
		}
		return strconv.FormatInt(n, 10), nil
	case model.TypeDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return cell, fmt.Errorf("not a double: %w", err)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case model.TypeBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(cell))
		if err != nil {
			return cell, fmt.Errorf("not a boolean: %w", err)
		}
		if b {
			return "true", nil
		}
		return "false", nil
	case model.TypeDatetime:
		layouts := []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05", "01/02/2006"}
		for _, layout := range layouts {
			if ts, err := time.Parse(layout, strings.TrimSpace(cell)); err == nil {
				return ts.Format("2006-01-02"), nil
			}
		}
		return cell, fmt.Errorf("not a datetime")
	case model.TypeString, "":
		return cell, nil
	default:
		return cell, fmt.Errorf("unknown data type %q", t)
	}
}

func applyEncoding(value string, enc model.Encoding) string {
	switch enc {
	case model.EncodingBase64:
		return base64.StdEncoding.EncodeToString([]byte(value))
	case model.EncodingURL:
		return url.QueryEscape(value)
	case model.EncodingNone, "":
		return value
	default:
		return value
	}
}
