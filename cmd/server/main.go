package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/crime-risk-backend-go/internal/api"
	"github.com/jengzang/crime-risk-backend-go/internal/cluster"
	"github.com/jengzang/crime-risk-backend-go/internal/config"
	"github.com/jengzang/crime-risk-backend-go/internal/database"
	"github.com/jengzang/crime-risk-backend-go/internal/dataset"
	"github.com/jengzang/crime-risk-backend-go/internal/feed"
	"github.com/jengzang/crime-risk-backend-go/internal/live"
	"github.com/jengzang/crime-risk-backend-go/internal/logging"
	"github.com/jengzang/crime-risk-backend-go/internal/middleware"
	"github.com/jengzang/crime-risk-backend-go/internal/ml"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/output/clusterjson"
	"github.com/jengzang/crime-risk-backend-go/internal/persist"
	"github.com/jengzang/crime-risk-backend-go/internal/repository"
	"github.com/jengzang/crime-risk-backend-go/internal/riskindex"
	"github.com/jengzang/crime-risk-backend-go/internal/service"
	"github.com/jengzang/crime-risk-backend-go/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal().Err(err).Msg("server exited")
	}
	logging.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	var (
		db   *sqlx.DB
		repo *repository.IncidentRepository
		err  error
	)
	if cfg.Database.Path != "" {
		db, err = database.Open(ctx, database.Config{Path: cfg.Database.Path})
		if err != nil {
			return err
		}
		defer db.Close()
		repo = repository.NewIncidentRepository(db)
	}

	historical, err := loadHistorical(ctx, cfg, repo)
	if err != nil {
		return err
	}

	trained, err := ml.LoadModels(cfg.Models.Dir)
	if err != nil {
		var mu *models.ModelUnavailableError
		if errors.As(err, &mu) {
			logging.Error().Err(err).Str("dir", cfg.Models.Dir).Msg("model artifacts unavailable, run the trainer first")
		}
		return err
	}

	st, err := store.New(historical, store.Options{LiveCapacity: cfg.Live.Capacity})
	if err != nil {
		return err
	}
	idx := riskindex.New(riskindex.Config{
		CellLevel:      cfg.RiskIndex.CellLevel,
		HalfLife:       cfg.RiskIndex.HalfLife,
		LiveWeight:     cfg.RiskIndex.LiveWeight,
		NeighborWeight: cfg.RiskIndex.NeighborWeight,
	}, historical)
	engine, err := cluster.NewEngine(cfg.Cluster.Index)
	if err != nil {
		return err
	}

	opts := []live.Option{live.WithFlagger(ml.NewFlagger(trained.Scorer, historical))}

	var writer *persist.BatchWriter
	if repo != nil {
		writer, err = persist.NewBatchWriter(repo, persist.DefaultConfig())
		if err != nil {
			return err
		}
		opts = append(opts, live.WithSink(writer))
	}
	if cfg.Output.ClustersJSONL != "" {
		out, err := clusterjson.NewWriter(cfg.Output.ClustersJSONL)
		if err != nil {
			return err
		}
		defer out.Close()
		opts = append(opts, live.WithPublisher(out))
	}

	coord, err := live.New(live.Config{
		Retention:         cfg.Live.Retention,
		RecomputeEvents:   cfg.Live.RecomputeEvents,
		RecomputeInterval: cfg.Live.RecomputeInterval,
		PruneInterval:     cfg.Live.PruneInterval,
		Cluster: cluster.Params{
			SpatialEpsMeters: cfg.Cluster.SpatialEpsMeters,
			TemporalEps:      cfg.Cluster.TemporalEps,
			MinPoints:        cfg.Cluster.MinPoints,
		},
	}, st, idx, engine, opts...)
	if err != nil {
		return err
	}

	if repo != nil {
		restoreLive(ctx, coord, repo)
	}
	if _, err := coord.Recompute(ctx); err != nil {
		return err
	}

	engineSvc := service.NewEngineService(trained, coord, engine)
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst)
	router := api.SetupRouter(cfg, api.Services{
		Engine:        engineSvc,
		Stats:         service.NewStatsService(st),
		Visualization: service.NewVisualizationService(st),
	}, limiter)

	src, err := newSource(cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return coord.Run(gctx) })
	if src != nil {
		g.Go(func() error {
			defer src.Close()
			return feed.Run(gctx, src, engineSvc)
		})
	}
	if writer != nil {
		g.Go(func() error { return writer.Run(gctx) })
	}
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := limiter.Cleanup(); n > 0 {
					logging.Debug().Int("removed", n).Msg("cleaned up idle rate limiters")
				}
			}
		}
	})

	return g.Wait()
}

// loadHistorical reads the configured CSV, importing it into the database when one is
// open, or falls back to the historical rows already stored.
func loadHistorical(ctx context.Context, cfg *config.Config, repo *repository.IncidentRepository) ([]models.IncidentRecord, error) {
	if cfg.Data.HistoricalCSV != "" {
		records, err := dataset.LoadFile(cfg.Data.HistoricalCSV)
		if err != nil {
			return nil, err
		}
		if repo != nil {
			n, err := repo.InsertBatch(ctx, records)
			if err != nil {
				return nil, err
			}
			logging.Info().Int64("imported", n).Msg("imported historical records")
		}
		logging.Info().Int("records", len(records)).Str("csv", cfg.Data.HistoricalCSV).Msg("loaded historical records")
		return records, nil
	}

	if repo == nil {
		return nil, errors.New("no historical data: set data.historical_csv or database.path")
	}
	records, err := repo.List(ctx, models.ProvenanceHistorical)
	if err != nil {
		return nil, err
	}
	logging.Info().Int("records", len(records)).Msg("loaded historical records from database")
	return records, nil
}

// restoreLive replays persisted live records. Records past retention are rejected by
// the coordinator and later deleted by the writer.
func restoreLive(ctx context.Context, coord *live.Coordinator, repo *repository.IncidentRepository) {
	records, err := repo.List(ctx, models.ProvenanceLive)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to restore live records")
		return
	}
	restored := 0
	for _, rec := range records {
		if res, err := coord.Ingest(ctx, rec); err == nil && res.Status == models.IngestAccepted {
			restored++
		}
	}
	if restored > 0 {
		logging.Info().Int("restored", restored).Int("stored", len(records)).Msg("restored live records")
	}
}

func newSource(cfg *config.Config) (feed.Source, error) {
	switch {
	case cfg.Input.Redis.Enabled:
		r := cfg.Input.Redis
		src, err := feed.NewRedisSource(feed.RedisConfig{
			Addr:         r.Addr,
			Password:     r.Password,
			DB:           r.DB,
			Key:          r.Key,
			BlockTimeout: r.BlockTimeout,
		})
		if err != nil {
			return nil, err
		}
		logging.Info().Str("addr", r.Addr).Str("key", r.Key).Msg("consuming live events from redis")
		return src, nil
	case cfg.Input.Simulate.Enabled:
		s := cfg.Input.Simulate
		logging.Info().Dur("interval", s.Interval).Msg("simulating live events")
		return feed.NewSimulator(feed.SimulatorConfig{
			Interval:  s.Interval,
			CenterLat: s.CenterLat,
			CenterLon: s.CenterLon,
			JitterDeg: s.JitterDeg,
			Seed:      s.Seed,
		}), nil
	}
	return nil, nil
}
