package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ToughForge/EspoMCP/internal/catalog"
	"github.com/ToughForge/EspoMCP/internal/tools"
)

// CallUtility runs one of the fixed utility tools. The boolean is
// false when name is not a utility.
func (r *Router) CallUtility(ctx context.Context, name string, args map[string]any) (res Result, ok bool) {
	schema, ok := r.utilities[name]
	if !ok {
		return Result{}, false
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorw("utility panicked", "tool", name, "panic", p)
			res = failure(&ExecutionError{Operation: name, Err: fmt.Errorf("internal error: %v", p)})
		}
	}()
	if args == nil {
		args = map[string]any{}
	}

	switch name {
	case tools.HealthCheck:
		return r.healthCheck(ctx), true
	case tools.LinkEntities:
		return r.relate(ctx, schema, args, true), true
	case tools.UnlinkEntities:
		return r.relate(ctx, schema, args, false), true
	case tools.GetRelatedEntities:
		return r.related(ctx, schema, args), true
	}
	return Result{}, false
}

func (r *Router) healthCheck(ctx context.Context) Result {
	user, err := r.crm.CurrentUser(ctx)
	if err != nil {
		return failure(&ExecutionError{Operation: tools.HealthCheck, Err: err})
	}
	who := user.ID()
	if name, ok := user["userName"].(string); ok && name != "" {
		who = fmt.Sprintf("%s (ID: %s)", name, user.ID())
	}
	return success("EspoCRM connection OK. Authenticated as "+who,
		map[string]any{"status": "ok", "user": user})
}

// target reads entityType, entityId and link, resolving the entity
// with the prefix fallback and checking the link against the catalog.
func (r *Router) target(schema tools.OperationSchema, args map[string]any) (entity, id, link string, err error) {
	for _, key := range []string{tools.ParamEntityType, tools.ParamEntityID, tools.ParamLink} {
		if _, ok := stringArg(args, key); !ok {
			return "", "", "", &MissingParameterError{Operation: schema.Name, Param: key}
		}
	}
	input, _ := stringArg(args, tools.ParamEntityType)
	id, _ = stringArg(args, tools.ParamEntityID)
	link, _ = stringArg(args, tools.ParamLink)

	entity, err = r.cat.ResolveEntityName(input)
	if err != nil {
		var nf *catalog.NotFoundError
		if errors.As(err, &nf) {
			return "", "", "", &EntityNotFoundError{Operation: schema.Name, Input: nf.Input, Fallback: nf.Fallback}
		}
		return "", "", "", &ExecutionError{Operation: schema.Name, Err: err}
	}

	if e, ok := r.cat.Entity(entity); ok {
		if _, known := e.Relations[link]; !known {
			return "", "", "", &InvalidArgumentError{
				Operation: schema.Name,
				Param:     tools.ParamLink,
				Reason:    fmt.Sprintf("%s has no relationship %q (available: %s)", entity, link, strings.Join(e.RelationNames(), ", ")),
			}
		}
	}
	return entity, id, link, nil
}

func (r *Router) relate(ctx context.Context, schema tools.OperationSchema, args map[string]any, link bool) Result {
	entity, id, rel, err := r.target(schema, args)
	if err != nil {
		return failure(err)
	}
	ids, err := stringList(schema, args, tools.ParamRelatedIDs)
	if err != nil {
		return failure(err)
	}
	if len(ids) == 0 {
		return failure(&MissingParameterError{Operation: schema.Name, Param: tools.ParamRelatedIDs})
	}

	data := map[string]any{"entityType": entity, "entityId": id, "link": rel, "relatedIds": ids}
	if link {
		if err := r.crm.Link(ctx, entity, id, rel, ids); err != nil {
			return failure(&ExecutionError{Operation: schema.Name, Err: err})
		}
		return success(fmt.Sprintf("Successfully linked %d record(s) to %s %s via '%s'", len(ids), entity, id, rel), data)
	}
	if err := r.crm.Unlink(ctx, entity, id, rel, ids); err != nil {
		return failure(&ExecutionError{Operation: schema.Name, Err: err})
	}
	return success(fmt.Sprintf("Successfully unlinked %d record(s) from %s %s via '%s'", len(ids), entity, id, rel), data)
}

func (r *Router) related(ctx context.Context, schema tools.OperationSchema, args map[string]any) Result {
	entity, id, rel, err := r.target(schema, args)
	if err != nil {
		return failure(err)
	}
	params, err := listParams(schema, args)
	if err != nil {
		return failure(err)
	}

	res, err := r.crm.ListRelated(ctx, entity, id, rel, params)
	if err != nil {
		return failure(&ExecutionError{Operation: schema.Name, Err: err})
	}

	label := "related"
	if e, ok := r.cat.Entity(entity); ok && e.Relations[rel].Target != "" {
		label = e.Relations[rel].Target
	}
	return listResult(label, params, res)
}
