// Package collection implements the default CollectionLoader: a YAML
// document format for named request templates, covering the full
// RequestTemplate shape (query params, disable-able headers,
// multipart/url-encoded bodies, pre/post scripts) the Request Builder
// needs.
package collection

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fibi-poc-dev/load-runner/pkg/model"
)

// Loader is the external collaborator named in §1: "a CollectionLoader
// ... [is] assumed to yield already-parsed structures."
type Loader interface {
	Load(path string) ([]model.RequestTemplate, error)
}

// YAMLLoader reads a collection document shaped like document below.
type YAMLLoader struct{}

type document struct {
	Requests []requestDoc `yaml:"requests"`
}

type requestDoc struct {
	Name        string        `yaml:"name"`
	Method      string        `yaml:"method"`
	URLRaw      string        `yaml:"url_raw,omitempty"`
	Host        []string      `yaml:"host_parts,omitempty"`
	Path        []string      `yaml:"path_parts,omitempty"`
	QueryParams []kvDoc       `yaml:"query_params,omitempty"`
	Headers     []kvDoc       `yaml:"headers,omitempty"`
	Body        *bodyDoc      `yaml:"body,omitempty"`
	PreScript   []string      `yaml:"pre_script,omitempty"`
	PostScript  []string      `yaml:"post_script,omitempty"`
}

type kvDoc struct {
	Key      string `yaml:"key"`
	Value    string `yaml:"value"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

type bodyDoc struct {
	Kind   string  `yaml:"kind"`
	Raw    string  `yaml:"raw,omitempty"`
	Fields []kvDoc `yaml:"fields,omitempty"`
}

// Load reads and parses path into RequestTemplates (§3 RequestTemplate,
// §6 "PostmanCollectionPath"). A malformed document is a fatal,
// pre-start error per §7 ("Data/collection parse ... Propagated as
// fatal before test start").
func (YAMLLoader) Load(path string) ([]model.RequestTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading collection %q: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing collection %q: %w", path, err)
	}
	if len(doc.Requests) == 0 {
		return nil, fmt.Errorf("collection %q defines no requests", path)
	}

	templates := make([]model.RequestTemplate, 0, len(doc.Requests))
	seen := make(map[string]struct{}, len(doc.Requests))
	for _, r := range doc.Requests {
		if r.Name == "" {
			return nil, fmt.Errorf("collection %q: request missing a name", path)
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("collection %q: duplicate request name %q", path, r.Name)
		}
		seen[r.Name] = struct{}{}

		tmpl, err := toTemplate(r)
		if err != nil {
			return nil, fmt.Errorf("collection %q, request %q: %w", path, r.Name, err)
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}

func toTemplate(r requestDoc) (model.RequestTemplate, error) {
	method := model.HTTPMethod(r.Method)
	switch method {
	case model.MethodGet, model.MethodPost, model.MethodPut, model.MethodPatch, model.MethodDelete:
	default:
		return model.RequestTemplate{}, fmt.Errorf("unsupported method %q", r.Method)
	}

	tmpl := model.RequestTemplate{
		Name:        r.Name,
		Method:      method,
		URLRaw:      r.URLRaw,
		HostParts:   r.Host,
		PathParts:   r.Path,
		QueryParams: toKVs(r.QueryParams),
		Headers:     toKVs(r.Headers),
		PreScript:   r.PreScript,
		PostScript:  r.PostScript,
	}
	if r.Body != nil {
		tmpl.Body = model.RequestBody{
			Kind:   model.BodyKind(r.Body.Kind),
			Raw:    r.Body.Raw,
			Fields: toKVs(r.Body.Fields),
		}
	} else {
		tmpl.Body = model.RequestBody{Kind: model.BodyNone}
	}
	return tmpl, nil
}

func toKVs(in []kvDoc) []model.KV {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.KV, len(in))
	for i, kv := range in {
		out[i] = model.KV{Key: kv.Key, Value: kv.Value, Disabled: kv.Disabled}
	}
	return out
}
