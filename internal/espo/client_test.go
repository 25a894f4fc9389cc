package espo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "secret", time.Second)
}

func TestClient_SendsAPIKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get(HeaderAPIKey))
		assert.Equal(t, "/api/v1/App/user", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"u1","userName":"admin"}`))
	})

	user, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID())
}

func TestClient_MetadataTolerantOfEmptyArrays(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"entityDefs": {
				"Account": {
					"fields": {"name": {"type": "varchar", "required": true, "maxLength": 150}},
					"links": []
				},
				"Broken": [],
				"Lead": {"fields": {"status": {"type": "enum", "options": ["New", 3]}, "bad": "x"}}
			},
			"scopes": {"Account": {"entity": true}, "Hidden": []}
		}`))
	})

	md, err := c.Metadata(context.Background())
	require.NoError(t, err)

	require.Contains(t, md.EntityDefs, "Account")
	assert.Equal(t, "varchar", md.EntityDefs["Account"].Fields["name"].Type)
	assert.True(t, md.EntityDefs["Account"].Fields["name"].Required)
	require.NotNil(t, md.EntityDefs["Account"].Fields["name"].MaxLength)
	assert.Equal(t, 150, *md.EntityDefs["Account"].Fields["name"].MaxLength)
	assert.Empty(t, md.EntityDefs["Account"].Links)

	assert.Empty(t, md.EntityDefs["Broken"].Fields)
	assert.Len(t, md.EntityDefs["Lead"].Fields, 1)
	assert.Equal(t, []any{"New", float64(3)}, md.EntityDefs["Lead"].Fields["status"].Options)

	require.NotNil(t, md.Scopes["Account"].Entity)
	assert.True(t, *md.Scopes["Account"].Entity)
	assert.Nil(t, md.Scopes["Hidden"].Entity)
}

func TestClient_I18n(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"Global": [],
			"Lead": {
				"fields": {"status": "Status", "nested": {"x": "y"}},
				"options": {"status": {"New": "Brand new"}, "empty": []}
			}
		}`))
	})

	tr, err := c.I18n(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, tr, "Global")
	assert.Equal(t, map[string]string{"status": "Status"}, tr.Strings("Lead", "fields"))
	assert.Equal(t, map[string]map[string]string{"status": {"New": "Brand new"}}, tr.Options("Lead"))
	assert.Empty(t, tr.Strings("Missing", "fields"))
}

func TestClient_ListEncodesWhere(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api/v1/Contact", r.URL.Path)
		assert.Equal(t, "contains", q.Get("where[0][type]"))
		assert.Equal(t, "name", q.Get("where[0][attribute]"))
		assert.Equal(t, "jo", q.Get("where[0][value]"))
		assert.Equal(t, "in", q.Get("where[1][type]"))
		assert.Equal(t, []string{"a", "b"}, q["where[1][value][]"])
		assert.Equal(t, "true", q.Get("where[2][value]"))
		assert.Equal(t, "20", q.Get("maxSize"))
		assert.Equal(t, "", q.Get("offset"))
		assert.Equal(t, "name,id", q.Get("select"))
		_, _ = w.Write([]byte(`{"total":1,"list":[{"id":"c1","name":"John"}]}`))
	})

	res, err := c.List(context.Background(), "Contact", SearchParams{
		Where: []Where{
			{Type: WhereContains, Attribute: "name", Value: "jo"},
			{Type: WhereIn, Attribute: "status", Value: []any{"a", "b"}},
			{Type: WhereEquals, Attribute: "doNotCall", Value: true},
		},
		MaxSize: 20,
		Select:  []string{"name", "id"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, "John", res.List[0]["name"])
}

func TestClient_LinkSendsIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/Account/a1/contacts", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var payload map[string][]string
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, []string{"c1", "c2"}, payload["ids"])
		_, _ = w.Write([]byte(`true`))
	})

	require.NoError(t, c.Link(context.Background(), "Account", "a1", "contacts", []string{"c1", "c2"}))
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Status-Reason", "Record not found")
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Get(context.Background(), "Account", "missing", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, err.Error(), "Record not found")
}

func TestClient_DeleteEmptyBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/Account/a%2F1", r.URL.EscapedPath())
	})

	require.NoError(t, c.Delete(context.Background(), "Account", "a/1"))
}
