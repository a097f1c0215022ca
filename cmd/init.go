package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-categorizer/internal/pipeline"
	"github.com/sells-group/lead-categorizer/internal/store"
	"github.com/sells-group/lead-categorizer/pkg/anthropic"
	"github.com/sells-group/lead-categorizer/pkg/hubspot"
	"github.com/sells-group/lead-categorizer/pkg/perplexity"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "lead-categorizer.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// pipelineEnv bundles the pipeline with the resources it owns.
type pipelineEnv struct {
	Pipeline *pipeline.Pipeline
	store    store.Store
}

func (e *pipelineEnv) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

// initPipeline validates configuration, opens the store, and wires the API
// clients into a Pipeline. Configuration errors surface here, before any
// upstream call is made.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	hsClient := hubspot.NewClient(cfg.HubSpot.Token,
		hubspot.WithBaseURL(cfg.HubSpot.BaseURL),
		hubspot.WithRateLimit(cfg.HubSpot.RequestsPerSec),
		hubspot.WithMaxPages(cfg.HubSpot.MaxPages),
	)
	searchClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
	)
	aiClient := anthropic.NewClient(cfg.Anthropic.Key)

	p, err := pipeline.New(cfg, st, hsClient, searchClient, aiClient)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &pipelineEnv{Pipeline: p, store: st}, nil
}
