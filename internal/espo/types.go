package espo

import (
	"bytes"
	"context"
	"encoding/json"
)

// API is the full set of EspoCRM REST calls the server consumes.
// Client implements it against a live instance; espotest.Server
// implements it in memory.
type API interface {
	Metadata(ctx context.Context) (*Metadata, error)
	I18n(ctx context.Context) (I18n, error)
	CurrentUser(ctx context.Context) (Record, error)

	Create(ctx context.Context, entity string, data Record) (Record, error)
	Get(ctx context.Context, entity, id string, selectFields []string) (Record, error)
	Update(ctx context.Context, entity, id string, data Record) (Record, error)
	Delete(ctx context.Context, entity, id string) error
	List(ctx context.Context, entity string, params SearchParams) (*ListResult, error)

	Link(ctx context.Context, entity, id, link string, ids []string) error
	Unlink(ctx context.Context, entity, id, link string, ids []string) error
	ListRelated(ctx context.Context, entity, id, link string, params SearchParams) (*ListResult, error)
}

// Record is a single CRM record as returned by the REST API.
type Record map[string]any

// ID returns the record identifier, or "" when absent.
func (r Record) ID() string {
	if id, ok := r["id"].(string); ok {
		return id
	}
	return ""
}

// ListResult is the envelope of list and related-list responses.
// Total can be negative when the server skips counting.
type ListResult struct {
	Total int      `json:"total"`
	List  []Record `json:"list"`
}

// Where clause types used by the router.
const (
	WhereEquals   = "equals"
	WhereContains = "contains"
	WhereIn       = "in"
)

// Where is one filter predicate of a list request.
type Where struct {
	Type      string `json:"type"`
	Attribute string `json:"attribute"`
	Value     any    `json:"value,omitempty"`
}

// SearchParams are the paging, ordering and filtering options of a
// list request.
type SearchParams struct {
	Where   []Where
	MaxSize int
	Offset  int
	OrderBy string
	Order   string
	Select  []string
}

// Metadata is the part of GET /Metadata the catalog reads.
type Metadata struct {
	EntityDefs map[string]EntityDef `json:"entityDefs"`
	Scopes     map[string]Scope     `json:"scopes"`
}

// EntityDef holds the field and link definitions of one entity type.
type EntityDef struct {
	Fields map[string]FieldDef `json:"fields"`
	Links  map[string]LinkDef  `json:"links"`
}

// FieldDef is a raw field definition. Options is []any because some
// installs store numeric enum options.
type FieldDef struct {
	Type      string   `json:"type"`
	Required  bool     `json:"required,omitempty"`
	ReadOnly  bool     `json:"readOnly,omitempty"`
	Disabled  bool     `json:"disabled,omitempty"`
	Options   []any    `json:"options,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
}

// LinkDef is a raw relationship definition.
type LinkDef struct {
	Type    string `json:"type"`
	Entity  string `json:"entity,omitempty"`
	Foreign string `json:"foreign,omitempty"`
}

// Scope is a scope record. Pointers distinguish "absent" from "false".
type Scope struct {
	Entity   *bool `json:"entity,omitempty"`
	Disabled *bool `json:"disabled,omitempty"`
	Object   *bool `json:"object,omitempty"`
}

// UnmarshalJSON tolerates PHP's habit of encoding empty objects as []
// and skips individual field or link definitions that fail to decode.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw struct {
		EntityDefs json.RawMessage `json:"entityDefs"`
		Scopes     json.RawMessage `json:"scopes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.EntityDefs = make(map[string]EntityDef)
	for name, def := range decodeObject(raw.EntityDefs) {
		var ed EntityDef
		if err := json.Unmarshal(def, &ed); err != nil {
			continue
		}
		m.EntityDefs[name] = ed
	}

	m.Scopes = make(map[string]Scope)
	for name, rec := range decodeObject(raw.Scopes) {
		var sc Scope
		if isObject(rec) {
			if err := json.Unmarshal(rec, &sc); err != nil {
				continue
			}
		}
		m.Scopes[name] = sc
	}
	return nil
}

// UnmarshalJSON applies the same leniency as Metadata.
func (e *EntityDef) UnmarshalJSON(data []byte) error {
	var raw struct {
		Fields json.RawMessage `json:"fields"`
		Links  json.RawMessage `json:"links"`
	}
	if isObject(data) {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}

	e.Fields = make(map[string]FieldDef)
	for name, def := range decodeObject(raw.Fields) {
		var fd FieldDef
		if err := json.Unmarshal(def, &fd); err != nil {
			continue
		}
		e.Fields[name] = fd
	}

	e.Links = make(map[string]LinkDef)
	for name, def := range decodeObject(raw.Links) {
		var ld LinkDef
		if err := json.Unmarshal(def, &ld); err != nil {
			continue
		}
		e.Links[name] = ld
	}
	return nil
}

// I18n is the translation document keyed by scope, then by category
// ("fields", "tooltips", "labels", "links", "options").
type I18n map[string]map[string]json.RawMessage

// UnmarshalJSON keeps only scopes whose value is an object.
func (t *I18n) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(I18n, len(raw))
	for scope, body := range raw {
		categories := decodeObject(body)
		if len(categories) == 0 {
			continue
		}
		out[scope] = categories
	}
	*t = out
	return nil
}

// Strings returns the string-valued entries of one category. Nested
// or non-string values are ignored.
func (t I18n) Strings(scope, category string) map[string]string {
	out := make(map[string]string)
	raw, ok := t[scope][category]
	if !ok {
		return out
	}
	for key, value := range decodeObject(raw) {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			out[key] = s
		}
	}
	return out
}

// Options returns the per-field option label maps of a scope.
func (t I18n) Options(scope string) map[string]map[string]string {
	out := make(map[string]map[string]string)
	raw, ok := t[scope]["options"]
	if !ok {
		return out
	}
	for field, body := range decodeObject(raw) {
		labels := make(map[string]string)
		for value, label := range decodeObject(body) {
			var s string
			if err := json.Unmarshal(label, &s); err == nil {
				labels[value] = s
			}
		}
		if len(labels) > 0 {
			out[field] = labels
		}
	}
	return out
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// decodeObject decodes a JSON object into its members. Arrays, null
// and scalars decode to an empty map.
func decodeObject(raw json.RawMessage) map[string]json.RawMessage {
	if !isObject(raw) {
		return map[string]json.RawMessage{}
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]json.RawMessage{}
	}
	return out
}
