// Package faillog implements the Failure Logger (C10, §4.9): one
// append-only, rotated log per logical endpoint, each append serialised
// by a lock so concurrent virtual users can share one Logger safely.
package faillog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fibi-poc-dev/load-runner/pkg/model"
)

// record is the structured, multi-field entry written per failure
// (§4.9: "appends a structured record per failed response").
type record struct {
	CapturedAt   string `json:"captured_at"`
	Endpoint     string `json:"endpoint"`
	StepName     string `json:"step_name"`
	Method       string `json:"method"`
	URL          string `json:"url"`
	StatusCode   int    `json:"status_code"`
	ResponseMs   int64  `json:"response_ms"`
	IsSuccess    bool   `json:"is_success"`
	Reasons      []string `json:"reasons,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Logger owns one rotated writer per logical endpoint, all guarded by a
// single lock (§5 "the Failure Logger file handles (per-endpoint,
// single-writer serialised)").
type Logger struct {
	mu      sync.Mutex
	dir     string
	writers map[string]*lumberjack.Logger
}

// New creates a Logger that writes under dir. A nil or empty dir
// disables writing — Append becomes a no-op — which is convenient for
// tests and for dry-run validation.
func New(dirOrNil *string) *Logger {
	dir := ""
	if dirOrNil != nil {
		dir = *dirOrNil
	}
	return &Logger{dir: dir, writers: make(map[string]*lumberjack.Logger)}
}

// Append records result if it was not successful; successful results
// are not logged here (§4.9, §7).
func (l *Logger) Append(result model.ExecutionResult) {
	if result.IsSuccess {
		return
	}
	if l.dir == "" {
		return
	}

	endpoint := endpointKey(result.StepName, result.URL)
	rec := record{
		CapturedAt:   result.CapturedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		Endpoint:     endpoint,
		StepName:     result.StepName,
		Method:       string(result.Method),
		URL:          result.URL,
		StatusCode:   result.StatusCode,
		ResponseMs:   result.ResponseTime.Milliseconds(),
		IsSuccess:    result.IsSuccess,
		Reasons:      result.ValidationVerdict.Reasons,
		ErrorMessage: result.ErrorMessage,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.writerFor(endpoint)
	_, _ = w.Write(line)
}

// writerFor returns (creating if needed) the rotated writer for
// endpoint. Caller must hold l.mu.
func (l *Logger) writerFor(endpoint string) *lumberjack.Logger {
	if w, ok := l.writers[endpoint]; ok {
		return w
	}
	w := &lumberjack.Logger{
		Filename:   filepath.Join(l.dir, sanitize(endpoint)+".log"),
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     7, // days
	}
	l.writers[endpoint] = w
	return w
}

// Close flushes and closes every open writer.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, w := range l.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// endpointKey derives the logical endpoint grouping key: the step name
// if present, else the first three path segments of the URL (§4.9).
func endpointKey(stepName, rawURL string) string {
	if stepName != "" {
		return stepName
	}
	path := rawURL
	if i := strings.Index(path, "://"); i >= 0 {
		path = path[i+3:]
		if j := strings.Index(path, "/"); j >= 0 {
			path = path[j:]
		} else {
			path = "/"
		}
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	joined := strings.Join(parts, "_")
	if joined == "" {
		return "unknown"
	}
	return joined
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}

// EnsureDir creates dir if it does not exist.
func EnsureDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
