// Package catalog caches the entity schema and translations of one
// EspoCRM instance as seen through one API key.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ToughForge/EspoMCP/internal/espo"
)

// CustomPrefix is prepended to names of custom entity types.
const CustomPrefix = "C"

// globalScope holds labels shared by every entity.
const globalScope = "Global"

// Source supplies the two documents a catalog is built from.
type Source interface {
	Metadata(ctx context.Context) (*espo.Metadata, error)
	I18n(ctx context.Context) (espo.I18n, error)
}

// Field is one usable field of an entity.
type Field struct {
	Name      string
	Type      string
	Kind      Kind
	Required  bool
	ReadOnly  bool
	Choices   []string
	Min       *float64
	Max       *float64
	MaxLength *int
}

// Relation is one link of an entity.
type Relation struct {
	Name   string
	Kind   string
	Target string
}

// Entity is the schema of one entity type. Entities are never mutated
// after a refresh builds them.
type Entity struct {
	Name      string
	Fields    map[string]Field
	Relations map[string]Relation
}

// FieldNames returns the field names in ascending order.
func (e *Entity) FieldNames() []string {
	return sortedKeys(e.Fields)
}

// RelationNames returns the relation names in ascending order.
func (e *Entity) RelationNames() []string {
	return sortedKeys(e.Relations)
}

// Translations are the display strings of one entity. Any key may be
// absent.
type Translations struct {
	FieldLabels    map[string]string
	Tooltips       map[string]string
	ActionLabels   map[string]string
	RelationLabels map[string]string
	ChoiceLabels   map[string]map[string]string
}

// Catalog is safe for concurrent use.
type Catalog struct {
	src Source
	log *zap.SugaredLogger

	mu           sync.RWMutex
	entities     map[string]*Entity
	scopes       map[string]espo.Scope
	translations map[string]Translations
	global       Translations
	ready        bool
}

// New creates an empty catalog. Call Refresh before use.
func New(src Source, log *zap.SugaredLogger) *Catalog {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Catalog{
		src:          src,
		log:          log,
		entities:     map[string]*Entity{},
		scopes:       map[string]espo.Scope{},
		translations: map[string]Translations{},
	}
}

// Refresh fetches metadata and translations in parallel and swaps them
// in. On failure the previous state is kept and a *FetchError returned.
func (c *Catalog) Refresh(ctx context.Context) error {
	var (
		md *espo.Metadata
		tr espo.I18n
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := c.src.Metadata(gctx)
		if err != nil {
			return &FetchError{Resource: "metadata", Err: err}
		}
		if m == nil {
			return &FetchError{Resource: "metadata", Err: fmt.Errorf("empty document")}
		}
		md = m
		return nil
	})
	g.Go(func() error {
		t, err := c.src.I18n(gctx)
		if err != nil {
			return &FetchError{Resource: "translations", Err: err}
		}
		tr = t
		return nil
	})
	if err := g.Wait(); err != nil {
		c.log.Warnw("catalog refresh failed", "error", err)
		return err
	}

	entities := buildEntities(md)
	translations := make(map[string]Translations, len(entities))
	for name := range entities {
		translations[name] = buildTranslations(tr, name)
	}
	scopes := make(map[string]espo.Scope, len(md.Scopes))
	for name, sc := range md.Scopes {
		scopes[name] = sc
	}

	c.mu.Lock()
	c.entities = entities
	c.scopes = scopes
	c.translations = translations
	c.global = buildTranslations(tr, globalScope)
	c.ready = true
	c.mu.Unlock()

	c.log.Debugw("catalog refreshed", "entities", len(entities), "scopes", len(scopes))
	return nil
}

// Ready reports whether a refresh has ever succeeded.
func (c *Catalog) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// VisibleEntities returns the visible entity names in ascending order.
// An entity is hidden only when its scope says disabled: true or
// entity: false.
func (c *Catalog) VisibleEntities() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.entities))
	for name := range c.entities {
		if c.visible(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) visible(name string) bool {
	sc, ok := c.scopes[name]
	if !ok {
		return true
	}
	if sc.Disabled != nil && *sc.Disabled {
		return false
	}
	if sc.Entity != nil && !*sc.Entity {
		return false
	}
	return true
}

// Entity returns the schema of a known entity.
func (c *Catalog) Entity(name string) (*Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entities[name]
	return e, ok
}

// ResolveEntityName returns input if it names a known entity, else
// CustomPrefix+input if that does, else a *NotFoundError.
func (c *Catalog) ResolveEntityName(input string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.entities[input]; ok {
		return input, nil
	}
	fallback := CustomPrefix + input
	if _, ok := c.entities[fallback]; ok {
		return fallback, nil
	}
	return "", &NotFoundError{Input: input, Fallback: fallback}
}

// Translations returns the display strings of an entity.
func (c *Catalog) Translations(entity string) Translations {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.translations[entity]
}

// DescribeField resolves a field description: tooltip first, then the
// field label (entity, then global), then Humanize(field).
func (c *Catalog) DescribeField(entity, field string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t := c.translations[entity]
	if s := t.Tooltips[field]; s != "" {
		return s
	}
	if s := t.FieldLabels[field]; s != "" {
		return s
	}
	if s := c.global.FieldLabels[field]; s != "" {
		return s
	}
	return Humanize(field)
}

// ActionLabel looks up "{Action} {entity}" in the entity's labels.
func (c *Catalog) ActionLabel(entity, action string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.translations[entity].ActionLabels[capitalize(action)+" "+entity]
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// RelationLabel returns the translated link name, or Humanize(link).
func (c *Catalog) RelationLabel(entity, link string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if s := c.translations[entity].RelationLabels[link]; s != "" {
		return s
	}
	return Humanize(link)
}

// ChoiceLabel returns the translated label of an enum option.
func (c *Catalog) ChoiceLabel(entity, field, value string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.translations[entity].ChoiceLabels[field][value]
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Humanize expands a camel-case identifier into words: a space goes
// before every upper-case letter not at the start and not already
// preceded by a space, and the first letter is capitalized. Applying
// it twice gives the same result.
func Humanize(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && runes[i-1] != ' ' {
			b.WriteRune(' ')
		}
		if i == 0 {
			r = unicode.ToUpper(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func buildEntities(md *espo.Metadata) map[string]*Entity {
	out := make(map[string]*Entity, len(md.EntityDefs))
	for name, def := range md.EntityDefs {
		e := &Entity{
			Name:      name,
			Fields:    make(map[string]Field, len(def.Fields)),
			Relations: make(map[string]Relation, len(def.Links)),
		}
		for fname, fd := range def.Fields {
			if fd.Disabled {
				continue
			}
			e.Fields[fname] = Field{
				Name:      fname,
				Type:      fd.Type,
				Kind:      KindOf(fd.Type),
				Required:  fd.Required,
				ReadOnly:  fd.ReadOnly,
				Choices:   choices(fd.Options),
				Min:       fd.Min,
				Max:       fd.Max,
				MaxLength: fd.MaxLength,
			}
		}
		for lname, ld := range def.Links {
			e.Relations[lname] = Relation{Name: lname, Kind: ld.Type, Target: ld.Entity}
		}
		out[name] = e
	}
	return out
}

func choices(options []any) []string {
	if len(options) == 0 {
		return nil
	}
	out := make([]string, 0, len(options))
	for _, o := range options {
		switch v := o.(type) {
		case nil:
		case string:
			out = append(out, v)
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

func buildTranslations(tr espo.I18n, scope string) Translations {
	return Translations{
		FieldLabels:    tr.Strings(scope, "fields"),
		Tooltips:       tr.Strings(scope, "tooltips"),
		ActionLabels:   tr.Strings(scope, "labels"),
		RelationLabels: tr.Strings(scope, "links"),
		ChoiceLabels:   tr.Options(scope),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
