package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/rpattn/obsquery/internal/api"
	"github.com/rpattn/obsquery/internal/cache"
	"github.com/rpattn/obsquery/internal/compiler"
	"github.com/rpattn/obsquery/internal/config"
	"github.com/rpattn/obsquery/internal/db"
	"github.com/rpattn/obsquery/internal/metrics"
	"github.com/rpattn/obsquery/internal/models"
	"github.com/rpattn/obsquery/internal/query"
	"github.com/rpattn/obsquery/internal/repository"
	"github.com/rpattn/obsquery/internal/sequence"
)

// app holds the wired components shared by the subcommands.
type app struct {
	config   config.Config
	conn     *db.Connection
	metrics  *metrics.Metrics
	records  repository.QueryRecordRepository
	entities repository.EntityRepository
	factory  *query.Factory
	compiler *compiler.Compiler
	store    *cache.Store
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	catalog, err := models.Default()
	if err != nil {
		return nil, err
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	entities := repository.NewEntityRepository(conn)
	factory, err := query.NewFactory(catalog.Schemas, query.Options{
		MaxArrayLength:   cfg.Query.MaxArrayLength,
		MaxSubqueryDepth: cfg.Query.MaxSubqueryDepth,
		Lookup:           repository.LookupFunc(entities),
		Filters:          catalog.Filters,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create query factory: %w", err)
	}

	comp := compiler.New(catalog.Predicates, conn,
		compiler.WithMetrics(m),
		compiler.WithLogger(log.Logger),
	)
	records := repository.NewQueryRecordRepository(conn)
	store := cache.NewStore(records, comp,
		cache.WithMaxCachedIDs(cfg.Query.MaxCachedIDs),
		cache.WithMetrics(m),
		cache.WithLogger(log.Logger),
	)

	return &app{
		config:   cfg,
		conn:     conn,
		metrics:  m,
		records:  records,
		entities: entities,
		factory:  factory,
		compiler: comp,
		store:    store,
	}, nil
}

func (a *app) server() *api.Server {
	return api.NewServer(api.Deps{
		Factory:  a.factory,
		Compiler: a.compiler,
		Store:    a.store,
		Navigator: sequence.New(a.store, a.factory,
			sequence.WithWrap(a.config.Query.Wrap),
			sequence.WithMetrics(a.metrics),
		),
		Entities:       a.entities,
		Filters:        a.config.Filters,
		Metrics:        a.metrics,
		AllowedOrigins: a.config.Server.AllowedOrigins,
	})
}

func (a *app) sweeper() *cache.Sweeper {
	return cache.NewSweeper(a.records, a.config.GC, a.metrics)
}

func (a *app) close() {
	a.conn.Close()
}
