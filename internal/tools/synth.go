package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ToughForge/EspoMCP/internal/catalog"
)

// Catalog is the read side of catalog.Catalog used for synthesis.
type Catalog interface {
	VisibleEntities() []string
	Entity(name string) (*catalog.Entity, bool)
	DescribeField(entity, field string) string
	ActionLabel(entity, action string) (string, bool)
	RelationLabel(entity, link string) string
	ChoiceLabel(entity, field, value string) (string, bool)
}

// Search control parameter names, in the order they are emitted.
const (
	ParamSelect  = "select"
	ParamLimit   = "limit"
	ParamOffset  = "offset"
	ParamOrderBy = "orderBy"
	ParamOrder   = "order"
	ParamID      = "id"
)

const (
	DefaultLimit = 20
	MaxLimit     = 200
)

// excluded fields never become parameters.
var excluded = map[string]bool{
	"id":         true,
	"deleted":    true,
	"createdAt":  true,
	"modifiedAt": true,
	"createdBy":  true,
	"modifiedBy": true,
}

var searchable = map[catalog.Kind]bool{
	catalog.KindShortText: true,
	catalog.KindURL:       true,
	catalog.KindInteger:   true,
	catalog.KindReal:      true,
	catalog.KindCurrency:  true,
	catalog.KindBoolean:   true,
	catalog.KindChoice:    true,
	catalog.KindDate:      true,
	catalog.KindDatetime:  true,
	catalog.KindReference: true,
}

// IsControlParam reports whether name is a search control parameter.
func IsControlParam(name string) bool {
	switch name {
	case ParamSelect, ParamLimit, ParamOffset, ParamOrderBy, ParamOrder:
		return true
	}
	return false
}

// OperationSchema is one generated tool.
type OperationSchema struct {
	Name        string
	Operation   Operation
	Description string
	Params      []Param
	Required    []string
}

// InputSchema renders the tool's JSON Schema.
func (s OperationSchema) InputSchema() InputSchema {
	props := make(map[string]Property, len(s.Params))
	for _, p := range s.Params {
		props[p.Name] = p.Property()
	}
	return InputSchema{Type: "object", Properties: props, Required: s.Required}
}

// Param returns the named parameter.
func (s OperationSchema) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Result is the output of Synthesize.
type Result struct {
	Operations []OperationSchema
	Warnings   []string
}

// Synthesize builds five operations per visible entity. It is a pure
// function of the catalog state: entities come in visibility order,
// actions in the order of Actions. An entity whose generation fails
// or panics is skipped with a warning.
func Synthesize(cat Catalog) Result {
	var res Result
	for _, name := range cat.VisibleEntities() {
		ops, err := synthesizeEntity(cat, name)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("skipped entity %s: %v", name, err))
			continue
		}
		res.Operations = append(res.Operations, ops...)
	}
	return res
}

func synthesizeEntity(cat Catalog, name string) (ops []OperationSchema, err error) {
	defer func() {
		if r := recover(); r != nil {
			ops, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	ops = make([]OperationSchema, 0, len(Actions))
	for _, action := range Actions {
		op, err := BuildOperation(cat, Operation{Action: action, Entity: name})
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// BuildOperation generates the schema of one operation. The entity
// must already be resolved.
func BuildOperation(cat Catalog, op Operation) (OperationSchema, error) {
	entity, ok := cat.Entity(op.Entity)
	if !ok {
		return OperationSchema{}, fmt.Errorf("unknown entity %q", op.Entity)
	}

	schema := OperationSchema{
		Name:        op.Name(),
		Operation:   op,
		Description: describeOperation(cat, op),
	}

	idParam := Param{Name: ParamID, Type: TypeString, Description: fmt.Sprintf("ID of the %s record", op.Entity)}

	switch op.Action {
	case ActionCreate:
		schema.Params = writableParams(cat, entity, nil)
		for _, p := range schema.Params {
			if entity.Fields[p.Field].Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}

	case ActionSearch:
		filters := writableParams(cat, entity, func(f catalog.Field) bool { return searchable[f.Kind] })
		for _, p := range filters {
			if IsControlParam(p.Name) {
				continue
			}
			schema.Params = append(schema.Params, searchHint(p))
		}
		schema.Params = append(schema.Params, ControlParams(op.Entity)...)
		schema.Description += ". Text filters accept * as a wildcard for partial matches; a list value matches any of its items."

	case ActionGet:
		schema.Params = []Param{idParam, selectParam()}
		schema.Required = []string{ParamID}
		schema.Description += relationSummary(cat, entity)

	case ActionUpdate:
		schema.Params = append([]Param{idParam}, writableParams(cat, entity, nil)...)
		schema.Required = []string{ParamID}

	case ActionDelete:
		schema.Params = []Param{idParam}
		schema.Required = []string{ParamID}

	default:
		return OperationSchema{}, fmt.Errorf("unknown action %q", op.Action)
	}
	return schema, nil
}

func describeOperation(cat Catalog, op Operation) string {
	if label, ok := cat.ActionLabel(op.Entity, string(op.Action)); ok {
		return label
	}
	action := string(op.Action)
	return strings.ToUpper(action[:1]) + action[1:] + " " + op.Entity
}

// writableParams returns one parameter per writable, non-excluded,
// supported field accepted by keep, sorted by parameter name.
func writableParams(cat Catalog, entity *catalog.Entity, keep func(catalog.Field) bool) []Param {
	var params []Param
	for _, name := range entity.FieldNames() {
		f := entity.Fields[name]
		if excluded[name] || f.ReadOnly {
			continue
		}
		if keep != nil && !keep(f) {
			continue
		}
		p, ok := fieldParam(cat, entity.Name, f)
		if !ok {
			continue
		}
		params = append(params, p)
	}
	sort.SliceStable(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params
}

// RequiredFields returns the required, writable, non-excluded fields
// of entity in name order. Kinds without a parameter are included.
func RequiredFields(entity *catalog.Entity) []catalog.Field {
	var out []catalog.Field
	for _, name := range entity.FieldNames() {
		f := entity.Fields[name]
		if f.Required && !f.ReadOnly && !excluded[name] {
			out = append(out, f)
		}
	}
	return out
}

// ParamName is the attribute name a field is written through:
// account becomes accountId, teams becomes teamsIds.
func ParamName(f catalog.Field) string {
	switch f.Kind {
	case catalog.KindReference:
		return f.Name + "Id"
	case catalog.KindReferences:
		return f.Name + "Ids"
	}
	return f.Name
}

func fieldParam(cat Catalog, entity string, f catalog.Field) (Param, bool) {
	p := Param{
		Name:        ParamName(f),
		Description: cat.DescribeField(entity, f.Name),
		Field:       f.Name,
		Kind:        f.Kind,
	}

	switch f.Kind {
	case catalog.KindShortText, catalog.KindLongText, catalog.KindURL:
		p.Type = TypeString
		p.MaxLength = f.MaxLength
	case catalog.KindURLMultiple:
		p.Type, p.Items = TypeArray, TypeString
	case catalog.KindInteger:
		p.Type = TypeInteger
		p.Min, p.Max = f.Min, f.Max
	case catalog.KindReal, catalog.KindCurrency:
		p.Type = TypeNumber
		p.Min, p.Max = f.Min, f.Max
	case catalog.KindBoolean:
		p.Type = TypeBoolean
	case catalog.KindChoice:
		p.Type = TypeString
		p.Enum = f.Choices
		p.Description += choiceSummary(cat, entity, f)
	case catalog.KindMultiChoice:
		p.Type, p.Items = TypeArray, TypeString
		p.Enum = f.Choices
		p.Description += choiceSummary(cat, entity, f)
	case catalog.KindDate:
		p.Type = TypeString
		p.Pattern = DatePattern
		p.Description += " (format: YYYY-MM-DD)"
	case catalog.KindDatetime:
		p.Type = TypeString
		p.Description += " (ISO 8601 datetime, e.g. 2024-01-31 14:30:00, UTC)"
	case catalog.KindReference:
		p.Type = TypeString
		p.Description += " (ID of the related record)"
	case catalog.KindReferences:
		p.Type, p.Items = TypeArray, TypeString
		p.Description += " (IDs of the related records)"
	default:
		return Param{}, false
	}
	return p, true
}

// choiceSummary lists option labels that differ from the raw values.
func choiceSummary(cat Catalog, entity string, f catalog.Field) string {
	var parts []string
	for _, choice := range f.Choices {
		label, ok := cat.ChoiceLabel(entity, f.Name, choice)
		if ok && label != choice {
			parts = append(parts, fmt.Sprintf("%s = %s", choice, label))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " (options: " + strings.Join(parts, "; ") + ")"
}

func relationSummary(cat Catalog, entity *catalog.Entity) string {
	names := entity.RelationNames()
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, 0, len(names))
	for _, name := range names {
		rel := entity.Relations[name]
		part := name
		if label := cat.RelationLabel(entity.Name, name); label != name {
			part += " (" + label + ")"
		}
		if rel.Target != "" {
			part += " -> " + rel.Target
		}
		parts = append(parts, part)
	}
	return ". Relations (use get_related_entities): " + strings.Join(parts, ", ")
}

func searchHint(p Param) Param {
	if p.Type == TypeString && len(p.Enum) == 0 && p.Pattern == "" && !p.Kind.Reference() {
		p.Description += " (supports * wildcard)"
	}
	return p
}

func selectParam() Param {
	return Param{
		Name:        ParamSelect,
		Type:        TypeArray,
		Items:       TypeString,
		Description: "Fields to return. Defaults to all fields.",
	}
}

// ControlParams returns the paging, ordering and projection parameters
// shared by search and get_related_entities.
func ControlParams(entity string) []Param {
	return []Param{
		selectParam(),
		{
			Name:        ParamLimit,
			Type:        TypeInteger,
			Description: fmt.Sprintf("Maximum number of %s records to return", entity),
			Min:         ptr(float64(1)),
			Max:         ptr(float64(MaxLimit)),
			Default:     DefaultLimit,
			Clamp:       true,
		},
		{
			Name:        ParamOffset,
			Type:        TypeInteger,
			Description: "Number of records to skip",
			Min:         ptr(float64(0)),
			Default:     0,
			Clamp:       true,
		},
		{
			Name:        ParamOrderBy,
			Type:        TypeString,
			Description: "Field to sort by",
		},
		{
			Name:        ParamOrder,
			Type:        TypeString,
			Description: "Sort direction",
			Enum:        []string{"asc", "desc"},
			Default:     "asc",
		},
	}
}
