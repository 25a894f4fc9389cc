// Package espotest provides an in-memory EspoCRM for tests.
package espotest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ToughForge/EspoMCP/internal/espo"
)

// Call records one record-level invocation.
type Call struct {
	Method string
	Entity string
	ID     string
	Link   string
	Data   espo.Record
	Params espo.SearchParams
	IDs    []string
}

// Server implements espo.API in memory. Exported error fields make the
// corresponding calls fail; PanicOn makes the named method panic.
type Server struct {
	mu sync.Mutex

	meta    espo.Metadata
	i18n    espo.I18n
	records map[string]map[string]espo.Record
	order   map[string][]string
	links   map[string][]string
	calls   []Call
	nextID  int

	metadataCalls int

	MetadataErr error
	I18nErr     error
	RecordErr   error
	PanicOn     string
	User        espo.Record
}

var _ espo.API = (*Server)(nil)

// New returns an empty CRM.
func New() *Server {
	return &Server{
		meta: espo.Metadata{
			EntityDefs: map[string]espo.EntityDef{},
			Scopes:     map[string]espo.Scope{},
		},
		i18n:    espo.I18n{},
		records: map[string]map[string]espo.Record{},
		order:   map[string][]string{},
		links:   map[string][]string{},
		User:    espo.Record{"id": "1", "userName": "admin"},
	}
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// AddEntity registers an entity type. Nil maps are allowed.
func (s *Server) AddEntity(name string, fields map[string]espo.FieldDef, links map[string]espo.LinkDef) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fields == nil {
		fields = map[string]espo.FieldDef{}
	}
	if links == nil {
		links = map[string]espo.LinkDef{}
	}
	s.meta.EntityDefs[name] = espo.EntityDef{Fields: fields, Links: links}
	return s
}

// SetScope sets the scope record of name.
func (s *Server) SetScope(name string, scope espo.Scope) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Scopes[name] = scope
	return s
}

// SetTranslation sets one string category ("fields", "tooltips",
// "labels", "links") of a scope.
func (s *Server) SetTranslation(scope, category string, values map[string]string) *Server {
	return s.setCategory(scope, category, values)
}

// SetOptions sets the option labels of one field.
func (s *Server) SetOptions(scope, field string, labels map[string]string) *Server {
	s.mu.Lock()
	current := map[string]map[string]string{}
	if raw, ok := s.i18n[scope]["options"]; ok {
		_ = json.Unmarshal(raw, &current)
	}
	s.mu.Unlock()
	current[field] = labels
	return s.setCategory(scope, "options", current)
}

func (s *Server) setCategory(scope, category string, values any) *Server {
	raw, err := json.Marshal(values)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.i18n[scope] == nil {
		s.i18n[scope] = map[string]json.RawMessage{}
	}
	s.i18n[scope][category] = raw
	return s
}

// Seed stores a record, assigning an id when it has none.
func (s *Server) Seed(entity string, rec espo.Record) espo.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(entity, rec)
}

func (s *Server) insert(entity string, rec espo.Record) espo.Record {
	out := espo.Record{}
	for k, v := range rec {
		out[k] = v
	}
	if out.ID() == "" {
		s.nextID++
		out["id"] = fmt.Sprintf("%s-%d", strings.ToLower(entity), s.nextID)
	}
	if s.records[entity] == nil {
		s.records[entity] = map[string]espo.Record{}
	}
	if _, exists := s.records[entity][out.ID()]; !exists {
		s.order[entity] = append(s.order[entity], out.ID())
	}
	s.records[entity][out.ID()] = out
	return out
}

// Record returns a stored record.
func (s *Server) Record(entity, id string) (espo.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[entity][id]
	return rec, ok
}

// Linked returns the ids linked to entity/id through link.
func (s *Server) Linked(entity, id, link string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.links[linkKey(entity, id, link)]...)
}

// Calls returns a copy of the record-level call log.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// LastCall returns the most recent record-level call.
func (s *Server) LastCall() (Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return Call{}, false
	}
	return s.calls[len(s.calls)-1], true
}

// MetadataCalls reports how many times Metadata was fetched.
func (s *Server) MetadataCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadataCalls
}

func (s *Server) Metadata(ctx context.Context) (*espo.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadataCalls++
	if s.MetadataErr != nil {
		return nil, s.MetadataErr
	}
	md := espo.Metadata{
		EntityDefs: make(map[string]espo.EntityDef, len(s.meta.EntityDefs)),
		Scopes:     make(map[string]espo.Scope, len(s.meta.Scopes)),
	}
	for k, v := range s.meta.EntityDefs {
		md.EntityDefs[k] = v
	}
	for k, v := range s.meta.Scopes {
		md.Scopes[k] = v
	}
	return &md, nil
}

func (s *Server) I18n(ctx context.Context) (espo.I18n, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.I18nErr != nil {
		return nil, s.I18nErr
	}
	out := make(espo.I18n, len(s.i18n))
	for scope, cats := range s.i18n {
		out[scope] = make(map[string]json.RawMessage, len(cats))
		for k, v := range cats {
			out[scope][k] = v
		}
	}
	return out, nil
}

func (s *Server) CurrentUser(ctx context.Context) (espo.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(Call{Method: "CurrentUser"}); err != nil {
		return nil, err
	}
	return s.User, nil
}

func (s *Server) Create(ctx context.Context, entity string, data espo.Record) (espo.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(Call{Method: "Create", Entity: entity, Data: data}); err != nil {
		return nil, err
	}
	return s.insert(entity, data), nil
}

func (s *Server) Get(ctx context.Context, entity, id string, selectFields []string) (espo.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(Call{Method: "Get", Entity: entity, ID: id, Params: espo.SearchParams{Select: selectFields}}); err != nil {
		return nil, err
	}
	rec, ok := s.records[entity][id]
	if !ok {
		return nil, notFound("GET", entity, id)
	}
	return project(rec, selectFields), nil
}

func (s *Server) Update(ctx context.Context, entity, id string, data espo.Record) (espo.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(Call{Method: "Update", Entity: entity, ID: id, Data: data}); err != nil {
		return nil, err
	}
	rec, ok := s.records[entity][id]
	if !ok {
		return nil, notFound("PUT", entity, id)
	}
	for k, v := range data {
		rec[k] = v
	}
	return rec, nil
}

func (s *Server) Delete(ctx context.Context, entity, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(Call{Method: "Delete", Entity: entity, ID: id}); err != nil {
		return err
	}
	if _, ok := s.records[entity][id]; !ok {
		return notFound("DELETE", entity, id)
	}
	delete(s.records[entity], id)
	ids := s.order[entity][:0]
	for _, existing := range s.order[entity] {
		if existing != id {
			ids = append(ids, existing)
		}
	}
	s.order[entity] = ids
	return nil
}

func (s *Server) List(ctx context.Context, entity string, params espo.SearchParams) (*espo.ListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(Call{Method: "List", Entity: entity, Params: params}); err != nil {
		return nil, err
	}
	var matched []espo.Record
	for _, id := range s.order[entity] {
		rec := s.records[entity][id]
		if matches(rec, params.Where) {
			matched = append(matched, rec)
		}
	}
	return page(matched, params), nil
}

func (s *Server) Link(ctx context.Context, entity, id, link string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(Call{Method: "Link", Entity: entity, ID: id, Link: link, IDs: ids}); err != nil {
		return err
	}
	key := linkKey(entity, id, link)
	existing := map[string]bool{}
	for _, v := range s.links[key] {
		existing[v] = true
	}
	for _, v := range ids {
		if !existing[v] {
			s.links[key] = append(s.links[key], v)
			existing[v] = true
		}
	}
	return nil
}

func (s *Server) Unlink(ctx context.Context, entity, id, link string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(Call{Method: "Unlink", Entity: entity, ID: id, Link: link, IDs: ids}); err != nil {
		return err
	}
	drop := map[string]bool{}
	for _, v := range ids {
		drop[v] = true
	}
	key := linkKey(entity, id, link)
	kept := s.links[key][:0]
	for _, v := range s.links[key] {
		if !drop[v] {
			kept = append(kept, v)
		}
	}
	s.links[key] = kept
	return nil
}

func (s *Server) ListRelated(ctx context.Context, entity, id, link string, params espo.SearchParams) (*espo.ListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(Call{Method: "ListRelated", Entity: entity, ID: id, Link: link, Params: params}); err != nil {
		return nil, err
	}
	target := s.meta.EntityDefs[entity].Links[link].Entity
	var related []espo.Record
	for _, rid := range s.links[linkKey(entity, id, link)] {
		if rec, ok := s.records[target][rid]; ok {
			related = append(related, rec)
		} else {
			related = append(related, espo.Record{"id": rid})
		}
	}
	return page(related, params), nil
}

// begin logs the call and applies the configured failure modes.
// Callers hold s.mu.
func (s *Server) begin(c Call) error {
	s.calls = append(s.calls, c)
	if s.PanicOn == c.Method {
		panic("espotest: forced panic in " + c.Method)
	}
	return s.RecordErr
}

func notFound(method, entity, id string) error {
	return &espo.APIError{Method: method, Path: entity + "/" + id, Status: 404}
}

func linkKey(entity, id, link string) string {
	return entity + "/" + id + "/" + link
}

func project(rec espo.Record, fields []string) espo.Record {
	if len(fields) == 0 {
		return rec
	}
	out := espo.Record{"id": rec["id"]}
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out
}

func page(records []espo.Record, params espo.SearchParams) *espo.ListResult {
	if params.OrderBy != "" {
		sort.SliceStable(records, func(i, j int) bool {
			a := fmt.Sprint(records[i][params.OrderBy])
			b := fmt.Sprint(records[j][params.OrderBy])
			if params.Order == "desc" {
				return a > b
			}
			return a < b
		})
	}
	total := len(records)
	start := params.Offset
	if start > total {
		start = total
	}
	end := total
	if params.MaxSize > 0 && start+params.MaxSize < end {
		end = start + params.MaxSize
	}
	list := make([]espo.Record, 0, end-start)
	for _, rec := range records[start:end] {
		list = append(list, project(rec, params.Select))
	}
	return &espo.ListResult{Total: total, List: list}
}

func matches(rec espo.Record, where []espo.Where) bool {
	for _, w := range where {
		actual := fmt.Sprint(rec[w.Attribute])
		switch w.Type {
		case espo.WhereContains:
			if !strings.Contains(strings.ToLower(actual), strings.ToLower(fmt.Sprint(w.Value))) {
				return false
			}
		case espo.WhereIn:
			values, _ := w.Value.([]any)
			found := false
			for _, v := range values {
				if fmt.Sprint(v) == actual {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			if fmt.Sprint(w.Value) != actual {
				return false
			}
		}
	}
	return true
}
