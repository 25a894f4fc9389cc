package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ToughForge/EspoMCP/internal/catalog"
	"github.com/ToughForge/EspoMCP/internal/espo"
	"github.com/ToughForge/EspoMCP/internal/espo/espotest"
)

func refreshed(t *testing.T, crm *espotest.Server) *catalog.Catalog {
	t.Helper()
	cat := catalog.New(crm, nil)
	require.NoError(t, cat.Refresh(context.Background()))
	return cat
}

func widgetCRM() *espotest.Server {
	crm := espotest.New()
	crm.AddEntity("Widget", map[string]espo.FieldDef{
		"name":  {Type: "varchar", Required: true, MaxLength: ptr(100)},
		"notes": {Type: "text"},
	}, nil)
	return crm
}

func byName(ops []OperationSchema) map[string]OperationSchema {
	out := make(map[string]OperationSchema, len(ops))
	for _, op := range ops {
		out[op.Name] = op
	}
	return out
}

func paramNames(s OperationSchema) []string {
	names := make([]string, len(s.Params))
	for i, p := range s.Params {
		names[i] = p.Name
	}
	return names
}

func TestSynthesize_WidgetScenario(t *testing.T) {
	res := Synthesize(refreshed(t, widgetCRM()))
	require.Empty(t, res.Warnings)

	names := make([]string, len(res.Operations))
	for i, op := range res.Operations {
		names[i] = op.Name
	}
	assert.Equal(t, []string{"create_Widget", "search_Widget", "get_Widget", "update_Widget", "delete_Widget"}, names)

	ops := byName(res.Operations)
	create := ops["create_Widget"]
	assert.Equal(t, []string{"name"}, create.Required)
	assert.Equal(t, []string{"name", "notes"}, paramNames(create))
	assert.Equal(t, "Create Widget", create.Description)

	search := ops["search_Widget"]
	assert.Equal(t, []string{"name", "select", "limit", "offset", "orderBy", "order"}, paramNames(search))
	assert.Empty(t, search.Required)

	get := ops["get_Widget"]
	assert.Equal(t, []string{"id", "select"}, paramNames(get))
	assert.Equal(t, []string{"id"}, get.Required)

	update := ops["update_Widget"]
	assert.Equal(t, []string{"id", "name", "notes"}, paramNames(update))
	assert.Equal(t, []string{"id"}, update.Required)

	del := ops["delete_Widget"]
	assert.Equal(t, []string{"id"}, paramNames(del))
}

func TestSynthesize_FiveOperationsPerVisibleEntity(t *testing.T) {
	crm := widgetCRM()
	crm.AddEntity("Account", map[string]espo.FieldDef{"name": {Type: "varchar"}}, nil)
	crm.AddEntity("Hidden", nil, nil)
	crm.SetScope("Hidden", espo.Scope{Disabled: espotest.Bool(true)})
	cat := refreshed(t, crm)

	res := Synthesize(cat)
	require.Len(t, res.Operations, 5*len(cat.VisibleEntities()))
	for i, entity := range cat.VisibleEntities() {
		for j, action := range Actions {
			assert.Equal(t, string(action)+"_"+entity, res.Operations[i*5+j].Name)
		}
	}
}

func TestSynthesize_Idempotent(t *testing.T) {
	crm := widgetCRM()
	crm.AddEntity("Lead", map[string]espo.FieldDef{
		"status":    {Type: "enum", Options: []any{"New", "Assigned"}},
		"amount":    {Type: "currency", Min: ptr(0.0)},
		"teams":     {Type: "linkMultiple"},
		"closeDate": {Type: "date"},
	}, map[string]espo.LinkDef{"account": {Type: "belongsTo", Entity: "Account"}})
	cat := refreshed(t, crm)

	render := func() []byte {
		res := Synthesize(cat)
		type rendered struct {
			Name        string
			Description string
			Schema      InputSchema
		}
		out := make([]rendered, len(res.Operations))
		for i, op := range res.Operations {
			out[i] = rendered{op.Name, op.Description, op.InputSchema()}
		}
		data, err := json.Marshal(out)
		require.NoError(t, err)
		return data
	}

	assert.Equal(t, string(render()), string(render()))
}

func TestSynthesize_FieldMapping(t *testing.T) {
	crm := espotest.New()
	crm.AddEntity("Opportunity", map[string]espo.FieldDef{
		"id":          {Type: "id"},
		"createdAt":   {Type: "datetime", ReadOnly: true},
		"modifiedBy":  {Type: "link"},
		"name":        {Type: "varchar", Required: true},
		"number":      {Type: "autoincrement", ReadOnly: true, Required: true},
		"account":     {Type: "link", Required: true},
		"teams":       {Type: "linkMultiple"},
		"stage":       {Type: "enum", Options: []any{"Prospecting", "Closed Won"}},
		"tags":        {Type: "multiEnum", Options: []any{"hot", "cold"}},
		"closeDate":   {Type: "date"},
		"lastCall":    {Type: "datetime"},
		"probability": {Type: "int", Min: ptr(0.0), Max: ptr(100.0)},
		"amount":      {Type: "currency"},
		"isPrivate":   {Type: "bool"},
		"website":     {Type: "url"},
		"links":       {Type: "urlMultiple"},
		"address":     {Type: "address"},
		"description": {Type: "wysiwyg"},
		"order":       {Type: "varchar"},
	}, nil)
	crm.SetOptions("Opportunity", "stage", map[string]string{"Prospecting": "Prospecting", "Closed Won": "Won"})
	crm.SetTranslation("Opportunity", "labels", map[string]string{"Search Opportunity": "Find Opportunities"})
	cat := refreshed(t, crm)

	ops := byName(Synthesize(cat).Operations)
	create := ops["create_Opportunity"]

	assert.Equal(t, []string{
		"accountId", "amount", "closeDate", "description", "isPrivate", "lastCall",
		"links", "name", "order", "probability", "stage", "tags", "teamsIds", "website",
	}, paramNames(create))
	assert.Equal(t, []string{"accountId", "name"}, create.Required)

	schema := create.InputSchema()
	assert.Equal(t, TypeString, schema.Properties["accountId"].Type)
	assert.Equal(t, TypeArray, schema.Properties["teamsIds"].Type)
	assert.Equal(t, TypeString, schema.Properties["teamsIds"].Items.Type)
	assert.Equal(t, TypeInteger, schema.Properties["probability"].Type)
	assert.Equal(t, 100.0, *schema.Properties["probability"].Maximum)
	assert.Equal(t, TypeNumber, schema.Properties["amount"].Type)
	assert.Equal(t, TypeBoolean, schema.Properties["isPrivate"].Type)
	assert.Equal(t, DatePattern, schema.Properties["closeDate"].Pattern)
	assert.Contains(t, schema.Properties["closeDate"].Description, "YYYY-MM-DD")
	assert.Empty(t, schema.Properties["lastCall"].Pattern)
	assert.Contains(t, schema.Properties["lastCall"].Description, "ISO 8601")
	assert.Equal(t, []string{"Prospecting", "Closed Won"}, schema.Properties["stage"].Enum)
	assert.Contains(t, schema.Properties["stage"].Description, "Closed Won = Won")
	assert.NotContains(t, schema.Properties["stage"].Description, "Prospecting = ")
	assert.Equal(t, []string{"hot", "cold"}, schema.Properties["tags"].Items.Enum)
	assert.Equal(t, TypeArray, schema.Properties["links"].Type)

	search := ops["search_Opportunity"]
	assert.Equal(t, []string{
		"accountId", "amount", "closeDate", "isPrivate", "lastCall", "name",
		"probability", "stage", "website",
		"select", "limit", "offset", "orderBy", "order",
	}, paramNames(search))
	assert.True(t, len(search.Description) > 0)
	assert.Contains(t, search.Description, "Find Opportunities")
	order, ok := search.Param("order")
	require.True(t, ok)
	assert.Equal(t, []string{"asc", "desc"}, order.Enum)
	limit, _ := search.Param("limit")
	assert.Equal(t, DefaultLimit, limit.Default)
}

func TestSynthesize_GetListsRelations(t *testing.T) {
	crm := espotest.New()
	crm.AddEntity("Account", nil, map[string]espo.LinkDef{
		"contacts": {Type: "hasMany", Entity: "Contact"},
		"parent":   {Type: "belongsTo", Entity: "Account"},
	})
	crm.SetTranslation("Account", "links", map[string]string{"contacts": "People"})

	ops := byName(Synthesize(refreshed(t, crm)).Operations)
	assert.Equal(t,
		"Get Account. Relations (use get_related_entities): contacts (People) -> Contact, parent (Parent) -> Account",
		ops["get_Account"].Description)
}

type panickyCatalog struct {
	Catalog
	bad string
}

func (p panickyCatalog) Entity(name string) (*catalog.Entity, bool) {
	if name == p.bad {
		panic("corrupt entity")
	}
	return p.Catalog.Entity(name)
}

func TestSynthesize_SkipsFailingEntity(t *testing.T) {
	crm := widgetCRM()
	crm.AddEntity("Account", nil, nil)
	cat := refreshed(t, crm)

	res := Synthesize(panickyCatalog{Catalog: cat, bad: "Account"})
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Account")
	assert.Len(t, res.Operations, 5)
	assert.Equal(t, "create_Widget", res.Operations[0].Name)
}

func TestParseName(t *testing.T) {
	op, ok := ParseName("create_Contact")
	require.True(t, ok)
	assert.Equal(t, Operation{Action: ActionCreate, Entity: "Contact"}, op)
	assert.Equal(t, "create_Contact", op.Name())

	op, ok = ParseName("search_Custom_Thing")
	require.True(t, ok)
	assert.Equal(t, "Custom_Thing", op.Entity)

	for _, name := range []string{"health_check", "create_", "create", "Create_Contact", "list_Contact", ""} {
		_, ok := ParseName(name)
		assert.False(t, ok, name)
	}
}

func TestUtilities(t *testing.T) {
	utils := Utilities()
	require.Len(t, utils, 4)
	for _, u := range utils {
		assert.True(t, IsUtility(u.Name))
	}
	assert.False(t, IsUtility("create_Contact"))
	link := byName(utils)[LinkEntities]
	assert.Equal(t, []string{"entityType", "entityId", "link", "relatedIds"}, link.Required)
}
