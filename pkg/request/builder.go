// Package request implements the Request Builder (§4.2): turning a
// RequestTemplate plus a resolved variable set into a concrete,
// ready-to-send HTTP request.
package request

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/fibi-poc-dev/load-runner/pkg/model"
	"github.com/fibi-poc-dev/load-runner/pkg/varstore"
)

// Prepared is a fully resolved request, independent of any particular
// HTTP client, ready for the HTTP Executor (C5) to send.
type Prepared struct {
	Method      model.HTTPMethod
	URL         string
	Headers     []model.KV // resolved, already filtered for disabled
	ContentType string     // empty when the request carries no body
	Body        []byte
}

// Build resolves tmpl against vars and produces a Prepared request.
// A url_raw that does not resolve to an absolute URL falls back to the
// host/path parts; if no URL can be formed at all, Build returns an
// error the caller records as a synthetic transport failure (§7
// "Request build malformed"). A header whose resolved name is not a
// valid token is dropped without being logged or reported; header
// values are not checked.
func Build(tmpl model.RequestTemplate, vars *varstore.Store) (*Prepared, error) {
	rawURL, err := resolveURL(tmpl, vars)
	if err != nil {
		return nil, fmt.Errorf("building request %q: %w", tmpl.Name, err)
	}

	p := &Prepared{
		Method: tmpl.Method,
		URL:    rawURL,
	}

	for _, h := range tmpl.Headers {
		if h.Disabled {
			continue
		}
		name := vars.Resolve(h.Key)
		value := vars.Resolve(h.Value)
		if !validHeaderName(name) {
			continue // dropped silently; not logged
		}
		p.Headers = append(p.Headers, model.KV{Key: name, Value: value})
	}

	if bodyAllowed(tmpl.Method) {
		if err := attachBody(p, tmpl.Body, vars); err != nil {
			return nil, fmt.Errorf("building request %q body: %w", tmpl.Name, err)
		}
	}

	return p, nil
}

func bodyAllowed(m model.HTTPMethod) bool {
	switch m {
	case model.MethodPost, model.MethodPut, model.MethodPatch:
		return true
	default:
		return false
	}
}

// resolveURL implements the §4.2 preference: prefer url_raw when present
// and parseable as an absolute URI; otherwise synthesize from the host
// and path parts and the query params.
func resolveURL(tmpl model.RequestTemplate, vars *varstore.Store) (string, error) {
	if strings.TrimSpace(tmpl.URLRaw) != "" {
		resolved := vars.Resolve(tmpl.URLRaw)
		if u, err := url.ParseRequestURI(resolved); err == nil && u.IsAbs() {
			return resolved, nil
		}
		if u, err := url.Parse(resolved); err == nil && u.IsAbs() {
			return resolved, nil
		}
	}
	return synthesizeURL(tmpl, vars)
}

func synthesizeURL(tmpl model.RequestTemplate, vars *varstore.Store) (string, error) {
	var hostParts []string
	for _, h := range tmpl.HostParts {
		hostParts = append(hostParts, vars.Resolve(h))
	}
	host := strings.Join(hostParts, ".")
	if host == "" {
		return "", fmt.Errorf("no url_raw and no host_parts to synthesize a URL from")
	}

	var pathParts []string
	for _, p := range tmpl.PathParts {
		resolved := vars.Resolve(p)
		if resolved != "" {
			pathParts = append(pathParts, resolved)
		}
	}

	q := url.Values{}
	for _, param := range tmpl.QueryParams {
		if param.Disabled {
			continue
		}
		q.Add(vars.Resolve(param.Key), vars.Resolve(param.Value))
	}

	u := &url.URL{
		Scheme: "https",
		Host:   host,
		Path:   "/" + strings.Join(pathParts, "/"),
	}
	if encoded := q.Encode(); encoded != "" {
		u.RawQuery = encoded
	}
	return u.String(), nil
}

// validHeaderName rejects header names that would fail net/http's
// validation so Build can skip them instead of erroring (§4.2, §7).
func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r <= ' ' || r == ':' || r > '~' {
			return false
		}
	}
	return true
}

func attachBody(p *Prepared, body model.RequestBody, vars *varstore.Store) error {
	switch body.Kind {
	case model.BodyNone, "":
		return nil
	case model.BodyRaw:
		text := vars.Resolve(body.Raw)
		p.Body = []byte(text)
		p.ContentType = detectContentType(text)
		return nil
	case model.BodyURLEncoded:
		q := url.Values{}
		for _, f := range body.Fields {
			if f.Disabled {
				continue
			}
			q.Add(vars.Resolve(f.Key), vars.Resolve(f.Value))
		}
		p.Body = []byte(q.Encode())
		p.ContentType = "application/x-www-form-urlencoded"
		return nil
	case model.BodyMultipart:
		return attachMultipart(p, body, vars)
	default:
		return fmt.Errorf("unknown body kind %q", body.Kind)
	}
}

// detectContentType implements §4.2's JSON-or-text-plain sniff: trimmed
// content starting with '{' or '[' that actually parses as JSON is
// application/json; everything else is text/plain.
func detectContentType(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) == 0 {
		return "text/plain"
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if looksLikeJSON(trimmed) {
			return "application/json"
		}
	}
	return "text/plain"
}

// looksLikeJSON runs a cheap brace/bracket-balance check first and only
// then a full json.Valid parse, so unbalanced text is rejected early.
func looksLikeJSON(s string) bool {
	depth := 0
	inString := false
	escaped := false
	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0 && json.Valid([]byte(s))
}
