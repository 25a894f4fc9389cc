package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/ToughForge/EspoMCP/internal/espo"
	"github.com/ToughForge/EspoMCP/internal/tools"
)

var wildcardStripper = strings.NewReplacer("*", "", "%", "")

func (r *Router) search(ctx context.Context, schema tools.OperationSchema, args map[string]any) Result {
	params, err := listParams(schema, args)
	if err != nil {
		return failure(err)
	}

	filters := map[string]any{}
	for k, v := range args {
		if !tools.IsControlParam(k) {
			filters[k] = v
		}
	}
	params.Where, err = BuildPredicates(schema, filters)
	if err != nil {
		return failure(err)
	}

	res, err := r.crm.List(ctx, schema.Operation.Entity, params)
	if err != nil {
		return failure(&ExecutionError{Operation: schema.Name, Err: err})
	}
	return listResult(schema.Operation.Entity, params, res)
}

// BuildPredicates turns filter arguments into where clauses, in key
// order. Strings containing * or % become contains on the stripped
// text, lists become in, anything else equals. nil, "" and empty
// lists are dropped.
func BuildPredicates(schema tools.OperationSchema, filters map[string]any) ([]espo.Where, error) {
	var where []espo.Where
	for _, key := range sortedKeys(filters) {
		v := filters[key]
		if isEmptyFilter(v) {
			continue
		}
		p, known := schema.Param(key)

		switch x := v.(type) {
		case string:
			if strings.ContainsAny(x, "*%") {
				literal := wildcardStripper.Replace(x)
				if literal == "" {
					continue
				}
				where = append(where, espo.Where{Type: espo.WhereContains, Attribute: key, Value: literal})
				continue
			}
		case []any, []string:
			values := toAnySlice(x)
			if known {
				for i, item := range values {
					c, err := p.CoerceScalar(item)
					if err != nil {
						return nil, &InvalidArgumentError{Operation: schema.Name, Param: key, Reason: err.Error()}
					}
					values[i] = c
				}
			}
			where = append(where, espo.Where{Type: espo.WhereIn, Attribute: key, Value: values})
			continue
		}

		value := v
		if known {
			c, err := p.CoerceScalar(v)
			if err != nil {
				return nil, &InvalidArgumentError{Operation: schema.Name, Param: key, Reason: err.Error()}
			}
			value = c
		}
		where = append(where, espo.Where{Type: espo.WhereEquals, Attribute: key, Value: value})
	}
	return where, nil
}

func isEmptyFilter(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	}
	return false
}

func toAnySlice(v any) []any {
	switch x := v.(type) {
	case []any:
		return append([]any(nil), x...)
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	}
	return nil
}

// listParams reads select, limit, offset, orderBy and order. Limit
// defaults to 20 and is clamped to [1, 200]; offset is at least 0.
func listParams(schema tools.OperationSchema, args map[string]any) (espo.SearchParams, error) {
	params := espo.SearchParams{MaxSize: tools.DefaultLimit}

	for _, key := range []string{tools.ParamLimit, tools.ParamOffset} {
		v, ok := args[key]
		if !ok || isEmptyFilter(v) {
			continue
		}
		p := controlParam(schema, key)
		c, err := p.Coerce(v)
		if err != nil {
			return params, &InvalidArgumentError{Operation: schema.Name, Param: key, Reason: err.Error()}
		}
		n := int(c.(int64))
		if key == tools.ParamLimit {
			params.MaxSize = n
		} else {
			params.Offset = n
		}
	}

	for _, key := range []string{tools.ParamOrderBy, tools.ParamOrder} {
		v, ok := args[key]
		if !ok || isEmptyFilter(v) {
			continue
		}
		p := controlParam(schema, key)
		c, err := p.Coerce(v)
		if err != nil {
			return params, &InvalidArgumentError{Operation: schema.Name, Param: key, Reason: err.Error()}
		}
		if key == tools.ParamOrderBy {
			params.OrderBy = c.(string)
		} else {
			params.Order = c.(string)
		}
	}
	if params.OrderBy != "" && params.Order == "" {
		params.Order = "asc"
	}

	selectFields, err := stringList(schema, args, tools.ParamSelect)
	if err != nil {
		return params, err
	}
	params.Select = selectFields
	return params, nil
}

func listResult(entity string, params espo.SearchParams, res *espo.ListResult) Result {
	if res == nil || len(res.List) == 0 {
		return success(fmt.Sprintf("No %s records found matching the criteria.", entity),
			map[string]any{"total": 0, "list": []espo.Record{}})
	}

	total := res.Total
	if total < len(res.List) {
		total = len(res.List)
	}
	header := fmt.Sprintf("Found %d %s record(s)", total, entity)
	if total > len(res.List) {
		header += fmt.Sprintf(" (showing %d-%d)", params.Offset+1, params.Offset+len(res.List))
	}
	return success(header+":\n"+pretty(res.List), res)
}

// controlParam returns the schema's own control parameter, falling
// back to the shared definition.
func controlParam(schema tools.OperationSchema, key string) tools.Param {
	if p, ok := schema.Param(key); ok {
		return p
	}
	for _, p := range tools.ControlParams(schema.Operation.Entity) {
		if p.Name == key {
			return p
		}
	}
	return tools.Param{Name: key, Type: tools.TypeString}
}
