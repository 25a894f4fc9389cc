// Package router validates tool calls and executes them against the
// CRM.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ToughForge/EspoMCP/internal/catalog"
	"github.com/ToughForge/EspoMCP/internal/espo"
	"github.com/ToughForge/EspoMCP/internal/tools"
)

// Catalog is what the router needs from catalog.Catalog.
type Catalog interface {
	tools.Catalog
	ResolveEntityName(input string) (string, error)
}

// Result is the outcome of one tool call. Failures are values, never
// panics or Go errors.
type Result struct {
	Text    string
	IsError bool
	Data    any
	Err     error
}

func success(text string, data any) Result {
	return Result{Text: text, Data: data}
}

func failure(err error) Result {
	return Result{Text: err.Error(), IsError: true, Err: err}
}

// Option configures a Router.
type Option func(*Router)

// WithDisplayNames overrides the display name policy.
func WithDisplayNames(p DisplayNamePolicy) Option {
	return func(r *Router) {
		if len(p) > 0 {
			r.display = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}

// Router executes operations for one catalog and one CRM credential.
// It holds no mutable state after New.
type Router struct {
	cat       Catalog
	crm       espo.API
	schemas   map[string]tools.OperationSchema
	utilities map[string]tools.OperationSchema
	display   DisplayNamePolicy
	log       *zap.SugaredLogger
}

// New creates a router over ops, usually the output of
// tools.Synthesize for cat.
func New(cat Catalog, crm espo.API, ops []tools.OperationSchema, opts ...Option) *Router {
	r := &Router{
		cat:       cat,
		crm:       crm,
		schemas:   make(map[string]tools.OperationSchema, len(ops)),
		utilities: map[string]tools.OperationSchema{},
		display:   DefaultDisplayNames(),
		log:       zap.NewNop().Sugar(),
	}
	for _, op := range ops {
		r.schemas[op.Name] = op
	}
	for _, u := range tools.Utilities() {
		r.utilities[u.Name] = u
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve parses name and resolves its entity with the prefix
// fallback. It fails for anything this router does not claim.
func (r *Router) Resolve(name string) (tools.Operation, bool) {
	op, ok := tools.ParseName(name)
	if !ok {
		return tools.Operation{}, false
	}
	entity, err := r.cat.ResolveEntityName(op.Entity)
	if err != nil {
		return tools.Operation{}, false
	}
	op.Entity = entity
	return op, true
}

// Dispatch parses and executes name.
func (r *Router) Dispatch(ctx context.Context, name string, args map[string]any) Result {
	op, ok := tools.ParseName(name)
	if !ok {
		return failure(&UnknownToolError{Name: name})
	}
	return r.Execute(ctx, op, args)
}

// Execute runs op. The entity is resolved again so callers may pass
// either the requested or the resolved name.
func (r *Router) Execute(ctx context.Context, op tools.Operation, args map[string]any) (res Result) {
	requested := op.Name()
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorw("operation panicked", "operation", requested, "panic", p)
			res = failure(&ExecutionError{Operation: requested, Err: fmt.Errorf("internal error: %v", p)})
		}
	}()

	entity, err := r.cat.ResolveEntityName(op.Entity)
	if err != nil {
		var nf *catalog.NotFoundError
		if errors.As(err, &nf) {
			return failure(&EntityNotFoundError{Operation: requested, Input: nf.Input, Fallback: nf.Fallback})
		}
		return failure(&ExecutionError{Operation: requested, Err: err})
	}
	op.Entity = entity

	schema, err := r.schema(op)
	if err != nil {
		return failure(&ExecutionError{Operation: op.Name(), Err: err})
	}
	if args == nil {
		args = map[string]any{}
	}

	r.log.Debugw("executing operation", "operation", op.Name(), "requested", requested)

	switch op.Action {
	case tools.ActionCreate:
		return r.create(ctx, schema, args)
	case tools.ActionSearch:
		return r.search(ctx, schema, args)
	case tools.ActionGet:
		return r.get(ctx, schema, args)
	case tools.ActionUpdate:
		return r.update(ctx, schema, args)
	case tools.ActionDelete:
		return r.delete(ctx, schema, args)
	}
	return failure(&UnknownToolError{Name: requested})
}

// schema returns the synthesized schema of op, building it on demand
// for entities that were not synthesized (hidden or skipped).
func (r *Router) schema(op tools.Operation) (tools.OperationSchema, error) {
	if s, ok := r.schemas[op.Name()]; ok {
		return s, nil
	}
	return tools.BuildOperation(r.cat, op)
}

func (r *Router) create(ctx context.Context, schema tools.OperationSchema, args map[string]any) Result {
	if missing := r.missingRequired(schema, args); len(missing) > 0 {
		return failure(&MissingRequiredFieldsError{Operation: schema.Name, Fields: missing})
	}

	data, err := sanitize(schema, args, nil)
	if err != nil {
		return failure(err)
	}

	rec, err := r.crm.Create(ctx, schema.Operation.Entity, data)
	if err != nil {
		return failure(&ExecutionError{Operation: schema.Name, Err: err})
	}
	return success(fmt.Sprintf("Successfully created %s %q (ID: %s)",
		schema.Operation.Entity, r.display.Display(merge(data, rec)), rec.ID()), rec)
}

// missingRequired collects every required, writable field of the
// entity absent from args. Fields are looked up under their parameter
// name and their field name; they are reported by parameter name.
func (r *Router) missingRequired(schema tools.OperationSchema, args map[string]any) []string {
	entity, ok := r.cat.Entity(schema.Operation.Entity)
	if !ok {
		var missing []string
		for _, name := range schema.Required {
			if isMissing(args[name]) {
				missing = append(missing, name)
			}
		}
		return missing
	}

	var missing []string
	for _, f := range tools.RequiredFields(entity) {
		name := tools.ParamName(f)
		if !isMissing(args[name]) || !isMissing(args[f.Name]) {
			continue
		}
		if f.Type == "linkParent" && !isMissing(args[f.Name+"Id"]) {
			continue
		}
		missing = append(missing, name)
	}
	sort.Strings(missing)
	return missing
}

func (r *Router) get(ctx context.Context, schema tools.OperationSchema, args map[string]any) Result {
	id, ok := stringArg(args, tools.ParamID)
	if !ok {
		return failure(&MissingParameterError{Operation: schema.Name, Param: tools.ParamID})
	}
	selectFields, err := stringList(schema, args, tools.ParamSelect)
	if err != nil {
		return failure(err)
	}

	rec, err := r.crm.Get(ctx, schema.Operation.Entity, id, selectFields)
	if err != nil {
		return failure(&ExecutionError{Operation: schema.Name, Err: err})
	}
	return success(fmt.Sprintf("%s %q (ID: %s):\n%s",
		schema.Operation.Entity, r.display.Display(rec), id, pretty(rec)), rec)
}

func (r *Router) update(ctx context.Context, schema tools.OperationSchema, args map[string]any) Result {
	id, ok := stringArg(args, tools.ParamID)
	if !ok {
		return failure(&MissingParameterError{Operation: schema.Name, Param: tools.ParamID})
	}
	data, err := sanitize(schema, args, map[string]bool{tools.ParamID: true})
	if err != nil {
		return failure(err)
	}
	if len(data) == 0 {
		return failure(&NoFieldsProvidedError{Operation: schema.Name})
	}

	rec, err := r.crm.Update(ctx, schema.Operation.Entity, id, data)
	if err != nil {
		return failure(&ExecutionError{Operation: schema.Name, Err: err})
	}
	if rec.ID() == "" {
		rec = merge(espo.Record{"id": id}, rec)
	}
	return success(fmt.Sprintf("Successfully updated %s %q (ID: %s)",
		schema.Operation.Entity, r.display.Display(merge(data, rec)), id), rec)
}

func (r *Router) delete(ctx context.Context, schema tools.OperationSchema, args map[string]any) Result {
	id, ok := stringArg(args, tools.ParamID)
	if !ok {
		return failure(&MissingParameterError{Operation: schema.Name, Param: tools.ParamID})
	}
	if err := r.crm.Delete(ctx, schema.Operation.Entity, id); err != nil {
		return failure(&ExecutionError{Operation: schema.Name, Err: err})
	}
	return success(fmt.Sprintf("Successfully deleted %s with ID: %s", schema.Operation.Entity, id),
		map[string]any{"id": id, "deleted": true})
}

// sanitize drops nil values and skipped keys, coerces known parameters
// and passes unknown keys through unchanged.
func sanitize(schema tools.OperationSchema, args map[string]any, skip map[string]bool) (espo.Record, error) {
	out := espo.Record{}
	for _, key := range sortedKeys(args) {
		v := args[key]
		if v == nil || skip[key] {
			continue
		}
		p, ok := schema.Param(key)
		if !ok {
			out[key] = v
			continue
		}
		c, err := p.Coerce(v)
		if err != nil {
			return nil, &InvalidArgumentError{Operation: schema.Name, Param: key, Reason: err.Error()}
		}
		out[key] = c
	}
	return out, nil
}

func isMissing(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && s == "" {
		return true
	}
	return false
}

// stringArg reads a non-empty identifier argument. Numbers are
// accepted and formatted.
func stringArg(args map[string]any, key string) (string, bool) {
	switch v := args[key].(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	}
	return "", false
}

// stringList coerces an optional list parameter such as select.
func stringList(schema tools.OperationSchema, args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	p, ok := schema.Param(key)
	if !ok {
		p = tools.Param{Name: key, Type: tools.TypeArray, Items: tools.TypeString}
	}
	c, err := p.Coerce(v)
	if err != nil {
		return nil, &InvalidArgumentError{Operation: schema.Name, Param: key, Reason: err.Error()}
	}
	items, _ := c.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func merge(base, over espo.Record) espo.Record {
	out := espo.Record{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func pretty(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
