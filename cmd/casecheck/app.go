// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/vgmedical/casecheck/internal/casestore"
	"github.com/vgmedical/casecheck/internal/config"
	"github.com/vgmedical/casecheck/internal/db"
	"github.com/vgmedical/casecheck/internal/engine"
	"github.com/vgmedical/casecheck/internal/equivalence"
	"github.com/vgmedical/casecheck/internal/suggest"
	"github.com/vgmedical/casecheck/internal/telemetry"
)

// app is the wired runtime: equivalence store (PostgreSQL when configured),
// case store (Redis when configured), verification service and telemetry.
type app struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	store     *equivalence.Store
	cases     casestore.Store
	service   *engine.Service
	suggester *suggest.Engine
	shutdown  func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, shutdown: func(context.Context) error { return nil }}

	shutdown, err := telemetry.Setup(ctx, serviceName, version, cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	a.shutdown = shutdown

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	opts := []equivalence.Option{equivalence.WithOverridePolicy(cfg.AllowAliasOverride)}
	if cfg.DatabaseURL != "" {
		a.pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		opts = append(opts, equivalence.WithRepository(equivalence.NewPGRepository(a.pool)))
		log.Info().Msg("connected to database")
	} else {
		log.Warn().Msg("DATABASE_URL not set, equivalences are kept in memory only")
	}

	a.store = equivalence.NewStore(opts...)
	if err := a.store.Load(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if cfg.EquivalenceSeedFile != "" {
		entries, err := equivalence.LoadSeedFile(cfg.EquivalenceSeedFile)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		applied, skipped, err := a.store.Seed(ctx, entries)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		log.Info().
			Int("applied", applied).
			Int("skipped", skipped).
			Str("file", cfg.EquivalenceSeedFile).
			Msg("equivalence seed imported")
	}

	if cfg.RedisURL != "" {
		cases, err := casestore.NewRedisStore(ctx, cfg.RedisURL, cfg.ReportTTL)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.cases = cases
	} else {
		a.cases = casestore.NewMemoryStore()
	}

	a.service = engine.NewService(cfg.Settings(), a.store, engine.WithMetrics(metrics))
	a.suggester = suggest.NewEngine(cfg.SuggestLowerBound, cfg.SupplyThreshold)
	return a, nil
}

// Close releases connections and flushes telemetry.
func (a *app) Close(ctx context.Context) {
	var errs []error
	if closer, ok := a.cases.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	errs = append(errs, a.shutdown(ctx))
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("shutdown")
	}
}
