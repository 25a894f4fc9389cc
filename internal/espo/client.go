package espo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	apiPrefix       = "/api/v1/"
	maxResponseSize = 32 << 20
	// HeaderAPIKey carries the EspoCRM API key.
	HeaderAPIKey = "X-Api-Key"
)

// APIError is a non-2xx answer from the CRM.
type APIError struct {
	Method string
	Path   string
	Status int
	Reason string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.Status)
}

// Client talks to one EspoCRM instance with one API key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ API = (*Client)(nil)

// NewClient creates a client. A zero timeout means 30 seconds.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Metadata fetches the entity schema document.
func (c *Client) Metadata(ctx context.Context) (*Metadata, error) {
	var md Metadata
	if err := c.do(ctx, http.MethodGet, "Metadata", nil, nil, &md); err != nil {
		return nil, err
	}
	return &md, nil
}

// I18n fetches the translation document.
func (c *Client) I18n(ctx context.Context) (I18n, error) {
	var t I18n
	if err := c.do(ctx, http.MethodGet, "I18n", nil, nil, &t); err != nil {
		return nil, err
	}
	return t, nil
}

// CurrentUser returns the user the API key belongs to.
func (c *Client) CurrentUser(ctx context.Context) (Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodGet, "App/user", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, entity string, data Record) (Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodPost, escape(entity), nil, data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, entity, id string, selectFields []string) (Record, error) {
	var q url.Values
	if len(selectFields) > 0 {
		q = url.Values{"select": {strings.Join(selectFields, ",")}}
	}
	var out Record
	if err := c.do(ctx, http.MethodGet, escape(entity, id), q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Update(ctx context.Context, entity, id string, data Record) (Record, error) {
	var out Record
	if err := c.do(ctx, http.MethodPut, escape(entity, id), nil, data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, entity, id string) error {
	return c.do(ctx, http.MethodDelete, escape(entity, id), nil, nil, nil)
}

func (c *Client) List(ctx context.Context, entity string, params SearchParams) (*ListResult, error) {
	var out ListResult
	if err := c.do(ctx, http.MethodGet, escape(entity), params.Query(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Link(ctx context.Context, entity, id, link string, ids []string) error {
	return c.do(ctx, http.MethodPost, escape(entity, id, link), nil, map[string]any{"ids": ids}, nil)
}

func (c *Client) Unlink(ctx context.Context, entity, id, link string, ids []string) error {
	return c.do(ctx, http.MethodDelete, escape(entity, id, link), nil, map[string]any{"ids": ids}, nil)
}

func (c *Client) ListRelated(ctx context.Context, entity, id, link string, params SearchParams) (*ListResult, error) {
	var out ListResult
	if err := c.do(ctx, http.MethodGet, escape(entity, id, link), params.Query(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(HeaderAPIKey, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := resp.Header.Get("X-Status-Reason")
		if reason == "" {
			reason = strings.TrimSpace(string(data))
			if len(reason) > 200 {
				reason = reason[:200]
			}
		}
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Reason: reason}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func escape(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.Join(escaped, "/")
}

// Query encodes the parameters in the bracketed form the list
// endpoint expects, e.g. where[0][type]=equals.
func (p SearchParams) Query() url.Values {
	q := url.Values{}
	if p.MaxSize > 0 {
		q.Set("maxSize", strconv.Itoa(p.MaxSize))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.OrderBy != "" {
		q.Set("orderBy", p.OrderBy)
	}
	if p.Order != "" {
		q.Set("order", p.Order)
	}
	if len(p.Select) > 0 {
		q.Set("select", strings.Join(p.Select, ","))
	}
	for i, w := range p.Where {
		prefix := fmt.Sprintf("where[%d]", i)
		q.Set(prefix+"[type]", w.Type)
		q.Set(prefix+"[attribute]", w.Attribute)
		switch v := w.Value.(type) {
		case nil:
		case []any:
			for _, item := range v {
				q.Add(prefix+"[value][]", formatValue(item))
			}
		case []string:
			for _, item := range v {
				q.Add(prefix+"[value][]", item)
			}
		default:
			q.Set(prefix+"[value]", formatValue(v))
		}
	}
	return q
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
