package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ToughForge/EspoMCP/internal/catalog"
	"github.com/ToughForge/EspoMCP/internal/espo"
	"github.com/ToughForge/EspoMCP/internal/router"
	"github.com/ToughForge/EspoMCP/internal/tools"
)

// Toolset is everything built for one credential: the catalog, the
// synthesized operations and the router over them. It is read-only
// after Build returns.
type Toolset struct {
	Catalog    *catalog.Catalog
	Operations []tools.OperationSchema
	Router     *router.Router
	Warnings   []string
}

// Builder creates toolsets. Factory is the production implementation.
type Builder interface {
	Build(ctx context.Context, apiKey string) (*Toolset, error)
}

// Factory builds toolsets against a CRM reached through NewClient.
type Factory struct {
	NewClient    func(apiKey string) espo.API
	DisplayNames router.DisplayNamePolicy
	Log          *zap.SugaredLogger
}

// Build refreshes a new catalog and synthesizes its operations. A
// failed refresh fails the build.
func (f *Factory) Build(ctx context.Context, apiKey string) (*Toolset, error) {
	log := f.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	crm := f.NewClient(apiKey)
	cat := catalog.New(crm, log)
	if err := cat.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}

	res := tools.Synthesize(cat)
	for _, w := range res.Warnings {
		log.Warnw("tool synthesis warning", "warning", w)
	}

	ops := make([]tools.OperationSchema, 0, len(res.Operations)+4)
	ops = append(ops, res.Operations...)
	ops = append(ops, tools.Utilities()...)

	r := router.New(cat, crm, res.Operations,
		router.WithDisplayNames(f.DisplayNames),
		router.WithLogger(log))

	log.Infow("toolset built",
		"entities", len(cat.VisibleEntities()),
		"operations", len(ops),
		"warnings", len(res.Warnings))

	return &Toolset{
		Catalog:    cat,
		Operations: ops,
		Router:     r,
		Warnings:   res.Warnings,
	}, nil
}
