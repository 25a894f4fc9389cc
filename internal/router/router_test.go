package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ToughForge/EspoMCP/internal/catalog"
	"github.com/ToughForge/EspoMCP/internal/espo"
	"github.com/ToughForge/EspoMCP/internal/espo/espotest"
	"github.com/ToughForge/EspoMCP/internal/tools"
)

func fixture(t *testing.T) (*Router, *espotest.Server) {
	t.Helper()
	crm := espotest.New()
	crm.AddEntity("Contact", map[string]espo.FieldDef{
		"firstName":    {Type: "varchar"},
		"lastName":     {Type: "varchar", Required: true},
		"account":      {Type: "link", Required: true},
		"number":       {Type: "autoincrement", ReadOnly: true, Required: true},
		"emailAddress": {Type: "email"},
		"status":       {Type: "enum", Options: []any{"New", "Active"}},
		"doNotCall":    {Type: "bool"},
		"age":          {Type: "int"},
		"description":  {Type: "text"},
	}, map[string]espo.LinkDef{
		"account": {Type: "belongsTo", Entity: "Account"},
	})
	crm.AddEntity("Account", map[string]espo.FieldDef{
		"name": {Type: "varchar", Required: true},
	}, map[string]espo.LinkDef{
		"contacts": {Type: "hasMany", Entity: "Contact"},
	})
	crm.AddEntity("CProduct", map[string]espo.FieldDef{
		"name": {Type: "varchar", Required: true},
	}, nil)

	cat := catalog.New(crm, nil)
	require.NoError(t, cat.Refresh(context.Background()))
	return New(cat, crm, tools.Synthesize(cat).Operations), crm
}

func TestResolve(t *testing.T) {
	r, _ := fixture(t)

	op, ok := r.Resolve("create_Product")
	require.True(t, ok)
	assert.Equal(t, tools.Operation{Action: tools.ActionCreate, Entity: "CProduct"}, op)

	_, ok = r.Resolve("create_Widget")
	assert.False(t, ok)
	_, ok = r.Resolve("health_check")
	assert.False(t, ok)
}

func TestCreate_PrefixFallbackScenario(t *testing.T) {
	r, crm := fixture(t)
	ctx := context.Background()

	res := r.Dispatch(ctx, "create_Product", map[string]any{"name": "Foo"})
	require.False(t, res.IsError, res.Text)
	assert.Contains(t, res.Text, `Successfully created CProduct "Foo" (ID: cproduct-`)

	call, ok := crm.LastCall()
	require.True(t, ok)
	assert.Equal(t, "Create", call.Method)
	assert.Equal(t, "CProduct", call.Entity)
	assert.Equal(t, espo.Record{"name": "Foo"}, call.Data)

	res = r.Dispatch(ctx, "search_Product", map[string]any{"name": "Foo"})
	require.False(t, res.IsError, res.Text)
	call, _ = crm.LastCall()
	assert.Equal(t, "List", call.Method)
	assert.Equal(t, "CProduct", call.Entity)
	assert.Contains(t, res.Text, "Found 1 CProduct record(s)")
}

func TestCreate_MissingRequiredFields(t *testing.T) {
	r, crm := fixture(t)

	res := r.Dispatch(context.Background(), "create_Contact", map[string]any{"firstName": "Ann", "lastName": ""})
	require.True(t, res.IsError)

	var missing *MissingRequiredFieldsError
	require.True(t, errors.As(res.Err, &missing))
	assert.Equal(t, []string{"accountId", "lastName"}, missing.Fields)
	assert.Equal(t, "Missing required fields for create_Contact: accountId, lastName", res.Text)
	assert.Empty(t, crm.Calls())
}

func TestCreate_RequiredFieldsWithoutParameters(t *testing.T) {
	crm := espotest.New()
	crm.AddEntity("Lead", map[string]espo.FieldDef{
		"lastName": {Type: "varchar", Required: true},
		"address":  {Type: "address", Required: true},
		"parent":   {Type: "linkParent", Required: true},
	}, nil)
	cat := catalog.New(crm, nil)
	require.NoError(t, cat.Refresh(context.Background()))
	r := New(cat, crm, tools.Synthesize(cat).Operations)
	ctx := context.Background()

	res := r.Dispatch(ctx, "create_Lead", map[string]any{})
	require.True(t, res.IsError)
	var missing *MissingRequiredFieldsError
	require.True(t, errors.As(res.Err, &missing))
	assert.Equal(t, []string{"address", "lastName", "parent"}, missing.Fields)

	res = r.Dispatch(ctx, "create_Lead", map[string]any{"lastName": "X"})
	require.True(t, res.IsError)
	require.True(t, errors.As(res.Err, &missing))
	assert.Equal(t, []string{"address", "parent"}, missing.Fields)
	assert.Empty(t, crm.Calls())

	res = r.Dispatch(ctx, "create_Lead", map[string]any{
		"lastName": "X",
		"address":  "Main St 1",
		"parentId": "a1",
	})
	require.False(t, res.IsError, res.Text)
	call, ok := crm.LastCall()
	require.True(t, ok)
	assert.Equal(t, "Create", call.Method)
	assert.Equal(t, "Main St 1", call.Data["address"])
}

func TestCreate_CoercesAndPassesThrough(t *testing.T) {
	r, crm := fixture(t)

	res := r.Dispatch(context.Background(), "create_Contact", map[string]any{
		"firstName": "Ann",
		"lastName":  "Lee",
		"accountId": "a1",
		"age":       "41",
		"doNotCall": "true",
		"status":    nil,
		"custom_x":  "kept",
	})
	require.False(t, res.IsError, res.Text)
	assert.Contains(t, res.Text, `"Ann Lee"`)

	call, _ := crm.LastCall()
	assert.Equal(t, espo.Record{
		"firstName": "Ann",
		"lastName":  "Lee",
		"accountId": "a1",
		"age":       int64(41),
		"doNotCall": true,
		"custom_x":  "kept",
	}, call.Data)
}

func TestCreate_InvalidArgument(t *testing.T) {
	r, _ := fixture(t)

	res := r.Dispatch(context.Background(), "create_Contact", map[string]any{
		"lastName": "Lee", "accountId": "a1", "status": "Bogus",
	})
	require.True(t, res.IsError)
	var invalid *InvalidArgumentError
	require.True(t, errors.As(res.Err, &invalid))
	assert.Equal(t, "status", invalid.Param)
}

func TestBuildPredicates(t *testing.T) {
	r, _ := fixture(t)
	schema, err := r.schema(tools.Operation{Action: tools.ActionSearch, Entity: "Contact"})
	require.NoError(t, err)

	where, err := BuildPredicates(schema, map[string]any{
		"lastName":     "foo*",
		"firstName":    "%an%",
		"status":       []any{"New", "Active"},
		"doNotCall":    "true",
		"age":          "30",
		"emailAddress": "",
		"accountId":    nil,
		"description":  []any{},
	})
	require.NoError(t, err)
	assert.Equal(t, []espo.Where{
		{Type: espo.WhereEquals, Attribute: "age", Value: int64(30)},
		{Type: espo.WhereEquals, Attribute: "doNotCall", Value: true},
		{Type: espo.WhereContains, Attribute: "firstName", Value: "an"},
		{Type: espo.WhereContains, Attribute: "lastName", Value: "foo"},
		{Type: espo.WhereIn, Attribute: "status", Value: []any{"New", "Active"}},
	}, where)
}

func TestSearch_ControlParams(t *testing.T) {
	r, crm := fixture(t)
	ctx := context.Background()

	res := r.Dispatch(ctx, "search_Contact", map[string]any{})
	require.False(t, res.IsError, res.Text)
	assert.Equal(t, "No Contact records found matching the criteria.", res.Text)
	call, _ := crm.LastCall()
	assert.Equal(t, 20, call.Params.MaxSize)
	assert.Equal(t, 0, call.Params.Offset)
	assert.Empty(t, call.Params.Where)

	res = r.Dispatch(ctx, "search_Contact", map[string]any{
		"limit": 999, "offset": -5, "orderBy": "lastName", "select": "lastName",
	})
	require.False(t, res.IsError, res.Text)
	call, _ = crm.LastCall()
	assert.Equal(t, 200, call.Params.MaxSize)
	assert.Equal(t, 0, call.Params.Offset)
	assert.Equal(t, "lastName", call.Params.OrderBy)
	assert.Equal(t, "asc", call.Params.Order)
	assert.Equal(t, []string{"lastName"}, call.Params.Select)

	res = r.Dispatch(ctx, "search_Contact", map[string]any{"order": "sideways"})
	assert.True(t, res.IsError)
}

func TestSearch_Results(t *testing.T) {
	r, crm := fixture(t)
	for _, name := range []string{"Ann", "Bob", "Anya"} {
		crm.Seed("Contact", espo.Record{"firstName": name})
	}

	res := r.Dispatch(context.Background(), "search_Contact", map[string]any{"firstName": "An*", "limit": 1})
	require.False(t, res.IsError, res.Text)
	assert.Contains(t, res.Text, "Found 2 Contact record(s) (showing 1-1)")
	assert.Contains(t, res.Text, `"firstName": "Ann"`)
}

func TestGet(t *testing.T) {
	r, crm := fixture(t)
	rec := crm.Seed("Account", espo.Record{"name": "Acme", "website": "acme.test"})

	res := r.Dispatch(context.Background(), "get_Account", map[string]any{"id": rec.ID(), "select": []any{"name"}})
	require.False(t, res.IsError, res.Text)
	assert.Contains(t, res.Text, `Account "Acme"`)
	assert.NotContains(t, res.Text, "acme.test")

	res = r.Dispatch(context.Background(), "get_Account", map[string]any{})
	var missing *MissingParameterError
	require.True(t, errors.As(res.Err, &missing))
	assert.Equal(t, "id", missing.Param)
}

func TestUpdate(t *testing.T) {
	r, crm := fixture(t)
	rec := crm.Seed("Account", espo.Record{"name": "Acme"})
	ctx := context.Background()

	res := r.Dispatch(ctx, "update_Account", map[string]any{"id": rec.ID(), "name": "Acme Inc"})
	require.False(t, res.IsError, res.Text)
	assert.Equal(t, `Successfully updated Account "Acme Inc" (ID: `+rec.ID()+`)`, res.Text)

	res = r.Dispatch(ctx, "update_Account", map[string]any{"id": rec.ID(), "name": nil})
	var none *NoFieldsProvidedError
	require.True(t, errors.As(res.Err, &none))

	res = r.Dispatch(ctx, "update_Account", map[string]any{"name": "x"})
	var missing *MissingParameterError
	require.True(t, errors.As(res.Err, &missing))
}

func TestDelete_ExecutionError(t *testing.T) {
	r, crm := fixture(t)
	rec := crm.Seed("Account", espo.Record{"name": "Acme"})

	res := r.Dispatch(context.Background(), "delete_Account", map[string]any{"id": rec.ID()})
	require.False(t, res.IsError, res.Text)
	assert.Equal(t, "Successfully deleted Account with ID: "+rec.ID(), res.Text)

	crm.RecordErr = errors.New("forbidden")
	res = r.Dispatch(context.Background(), "delete_Account", map[string]any{"id": "x"})
	require.True(t, res.IsError)
	var execErr *ExecutionError
	require.True(t, errors.As(res.Err, &execErr))
	assert.Equal(t, "Error executing delete_Account: forbidden", res.Text)
}

func TestExecute_RecoversPanics(t *testing.T) {
	r, crm := fixture(t)
	crm.PanicOn = "Create"

	res := r.Dispatch(context.Background(), "create_Account", map[string]any{"name": "x"})
	require.True(t, res.IsError)
	var execErr *ExecutionError
	require.True(t, errors.As(res.Err, &execErr))
}

func TestDispatch_EntityNotFound(t *testing.T) {
	r, _ := fixture(t)

	res := r.Dispatch(context.Background(), "create_Widget", map[string]any{"name": "x"})
	require.True(t, res.IsError)
	assert.Equal(t, "Entity 'Widget' not found (also tried 'CWidget')", res.Text)

	res = r.Dispatch(context.Background(), "frobnicate", nil)
	assert.Equal(t, "Unknown tool: frobnicate", res.Text)
}

func TestDisplayNamePolicy(t *testing.T) {
	def := DefaultDisplayNames()
	assert.Equal(t, "Acme", def.Display(espo.Record{"id": "1", "name": "Acme", "title": "x"}))
	assert.Equal(t, "Ann Lee", def.Display(espo.Record{"id": "1", "firstName": "Ann", "lastName": "Lee"}))
	assert.Equal(t, "Lee", def.Display(espo.Record{"id": "1", "lastName": "Lee"}))
	assert.Equal(t, "Call back", def.Display(espo.Record{"id": "1", "subject": "Call back"}))
	assert.Equal(t, "1", def.Display(espo.Record{"id": "1", "name": "  "}))

	custom := ParseDisplayNames([]string{"code", " first + last ", ""})
	assert.Equal(t, DisplayNamePolicy{{"code"}, {"first", "last"}}, custom)
	assert.Equal(t, DefaultDisplayNames(), ParseDisplayNames(nil))
}

func TestUtilities_LinkAndRelated(t *testing.T) {
	r, crm := fixture(t)
	ctx := context.Background()
	acct := crm.Seed("Account", espo.Record{"name": "Acme"})
	c1 := crm.Seed("Contact", espo.Record{"firstName": "Ann"})

	res, ok := r.CallUtility(ctx, tools.LinkEntities, map[string]any{
		"entityType": "Account", "entityId": acct.ID(), "link": "contacts", "relatedIds": c1.ID(),
	})
	require.True(t, ok)
	require.False(t, res.IsError, res.Text)
	assert.Equal(t, []string{c1.ID()}, crm.Linked("Account", acct.ID(), "contacts"))

	res, _ = r.CallUtility(ctx, tools.GetRelatedEntities, map[string]any{
		"entityType": "Account", "entityId": acct.ID(), "link": "contacts",
	})
	require.False(t, res.IsError, res.Text)
	assert.Contains(t, res.Text, "Found 1 Contact record(s)")

	res, _ = r.CallUtility(ctx, tools.UnlinkEntities, map[string]any{
		"entityType": "Account", "entityId": acct.ID(), "link": "contacts", "relatedIds": []any{c1.ID()},
	})
	require.False(t, res.IsError, res.Text)
	assert.Empty(t, crm.Linked("Account", acct.ID(), "contacts"))
}

func TestUtilities_Validation(t *testing.T) {
	r, _ := fixture(t)
	ctx := context.Background()

	res, _ := r.CallUtility(ctx, tools.LinkEntities, map[string]any{
		"entityType": "Account", "entityId": "a1", "link": "owners", "relatedIds": []any{"x"},
	})
	var invalid *InvalidArgumentError
	require.True(t, errors.As(res.Err, &invalid))
	assert.Contains(t, res.Text, "available: contacts")

	res, _ = r.CallUtility(ctx, tools.LinkEntities, map[string]any{
		"entityType": "Account", "entityId": "a1", "link": "contacts",
	})
	var missing *MissingParameterError
	require.True(t, errors.As(res.Err, &missing))
	assert.Equal(t, "relatedIds", missing.Param)

	res, _ = r.CallUtility(ctx, tools.GetRelatedEntities, map[string]any{
		"entityType": "Ghost", "entityId": "g1", "link": "x",
	})
	var nf *EntityNotFoundError
	require.True(t, errors.As(res.Err, &nf))

	_, ok := r.CallUtility(ctx, "create_Account", nil)
	assert.False(t, ok)
}

func TestUtilities_HealthCheck(t *testing.T) {
	r, crm := fixture(t)

	res, ok := r.CallUtility(context.Background(), tools.HealthCheck, nil)
	require.True(t, ok)
	require.False(t, res.IsError, res.Text)
	assert.Equal(t, "EspoCRM connection OK. Authenticated as admin (ID: 1)", res.Text)

	crm.RecordErr = errors.New("401 unauthorized")
	res, _ = r.CallUtility(context.Background(), tools.HealthCheck, nil)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text, "Error executing health_check")
}
