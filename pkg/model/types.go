// Package model holds the shared data types that flow between the
// load-runner components: request templates, column mappings, success
// criteria, execution results, run configuration, and metrics snapshots.
// Nothing in this package talks to the network or the filesystem.
package model

import "time"

// HTTPMethod is one of the methods a RequestTemplate may use.
type HTTPMethod string

const (
	MethodGet    HTTPMethod = "GET"
	MethodPost   HTTPMethod = "POST"
	MethodPut    HTTPMethod = "PUT"
	MethodPatch  HTTPMethod = "PATCH"
	MethodDelete HTTPMethod = "DELETE"
)

// KV is an ordered key/value pair that can be individually disabled,
// used for both query parameters and headers so collection order and
// disabled-entry skipping (§4.2) are preserved without a map.
type KV struct {
	Key      string
	Value    string
	Disabled bool
}

// BodyKind selects which of RequestBody's payload fields is populated.
type BodyKind string

const (
	BodyNone        BodyKind = "none"
	BodyRaw         BodyKind = "raw"
	BodyURLEncoded  BodyKind = "urlencoded"
	BodyMultipart   BodyKind = "multipart"
)

// RequestBody is the unresolved (template) form of a request body.
type RequestBody struct {
	Kind   BodyKind
	Raw    string
	Fields []KV // used for url-encoded and multipart
}

// RequestTemplate is one named entry of a request collection (§3).
type RequestTemplate struct {
	Name        string
	Method      HTTPMethod
	URLRaw      string
	HostParts   []string
	PathParts   []string
	QueryParams []KV
	Headers     []KV
	Body        RequestBody
	PreScript   []string
	PostScript  []string
}

// DataType is the coercion applied to a mapped CSV column (§4.1).
type DataType string

const (
	TypeString   DataType = "string"
	TypeInteger  DataType = "integer"
	TypeDouble   DataType = "double"
	TypeBoolean  DataType = "boolean"
	TypeDatetime DataType = "datetime"
)

// Encoding is the post-coercion transform applied to a mapped value.
type Encoding string

const (
	EncodingNone   Encoding = "none"
	EncodingBase64 Encoding = "base64"
	EncodingURL    Encoding = "url"
)

// ColumnSpec maps one CSV column to a placeholder name with a type and
// an encoding.
type ColumnSpec struct {
	CSVColumn       string
	PlaceholderName string
	DataType        DataType
	Encoding        Encoding
}

// GlobalVariable is a collection-level or column-map-level default value.
type GlobalVariable struct {
	Name  string
	Value string
}

// ColumnMapping is the full CSV-to-placeholder mapping plus its globals.
type ColumnMapping struct {
	Columns []ColumnSpec
	Globals []GlobalVariable
}

// DataRow is one row of the tabular data source: raw CSV column name to
// raw cell text. Insertion order does not matter.
type DataRow map[string]string

// HeaderRule is the comparison applied to a response header by
// SuccessCriteria.HeaderChecks.
type HeaderRule string

const (
	HeaderPresent  HeaderRule = "present"
	HeaderEquals   HeaderRule = "equals"
	HeaderContains HeaderRule = "contains"
	HeaderRegex    HeaderRule = "regex"
)

// HeaderCheck is one header assertion.
type HeaderCheck struct {
	Name     string
	Rule     HeaderRule
	Expected string
}

// JSONPathRule is the comparison applied to a JSON path's resolved value.
type JSONPathRule string

const (
	JSONPathPresent  JSONPathRule = "present"
	JSONPathIsNumber JSONPathRule = "is_number"
	JSONPathIsString JSONPathRule = "is_string"
	JSONPathEquals   JSONPathRule = "equals"
	JSONPathRegex    JSONPathRule = "regex"
)

// JSONPathCheck is one JSON-body assertion using the restricted path
// grammar described in §4.3 (leading '$', dot-separated property names,
// no array indexing, no wildcards).
type JSONPathCheck struct {
	Path     string
	Rule     JSONPathRule
	Expected string
}

// SuccessCriteria is the declarative, per-step-or-global success
// predicate evaluated by the Response Validator (§3, §4.3). A nil
// pointer on a field means that rule is not evaluated.
type SuccessCriteria struct {
	AcceptedStatusCodes map[int]struct{}
	MaxResponseTimeMs   *int
	BodyRegex           string
	BodyMustContain     []string
	HeaderChecks        []HeaderCheck
	JSONPathChecks      []JSONPathCheck
	MinBodyBytes        *int
	MaxBodyBytes        *int
}

// ValidationVerdict is the outcome of running a SuccessCriteria against
// one response.
type ValidationVerdict struct {
	OK      bool
	Reasons []string
}

// ExecutionResult is one immutable record of a single step execution
// (§3). StatusCode is 0 on a transport failure.
type ExecutionResult struct {
	StepName          string
	Method             HTTPMethod
	URL                string
	StatusCode         int
	ResponseTime       time.Duration
	ResponseBytes      int
	IsSuccess          bool
	ValidationVerdict  ValidationVerdict
	ErrorMessage       string
	CapturedAt         time.Time
}

// StepConfig is one entry of RunConfig's step_sequence (§3, §6).
type StepConfig struct {
	StepName         string
	InterStepDelayMs int
	Enabled          bool
	Criteria         *SuccessCriteria // nil => not validated; internal/config sets it to GlobalCriteria
}

// Thresholds gate the final pass/fail verdict (§6, §8 scenario 6).
type Thresholds struct {
	MaxResponseTimeMs int
	MaxErrorRatePct   float64
	MinTPS            float64
}

// RunConfig is the full run shape (§3, §6).
type RunConfig struct {
	TestMs            int
	RampUpMs          int
	RampDownMs        int
	TargetTPS         float64
	MaxVUs            int
	RequestTimeoutMs  int
	StepSequence      []StepConfig
	Thresholds        Thresholds
	GlobalCriteria    *SuccessCriteria
	MaxRetries        int // reserved, unused by the core (§6, Open Questions)
	PreludeSteps      []string // auth prelude step names, run in order, once per VU
	TokenName         string   // placeholder cached by the prelude, e.g. "access_token"
}

// TotalMs is the scheduled lifetime of a run (ramp-up + steady + ramp-down).
func (c RunConfig) TotalMs() int {
	return c.RampUpMs + c.TestMs + c.RampDownMs
}

// MetricsSnapshot is a consistent, point-in-time copy of aggregator
// state (§3, §4.7).
type MetricsSnapshot struct {
	Start              time.Time
	End                *time.Time
	Total              int64
	Succeeded          int64
	Failed             int64
	ValidationFailures int64
	AllSamples         []time.Duration
	CurrentVUs         int
	CurrentTPS         float64
	PerStepSamples     map[string][]time.Duration
	RecentResults      []ExecutionResult
}
