// Command trainer fits the risk classifier and the anomaly scorer on historical
// incidents and writes their artifacts.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"

	"github.com/jengzang/crime-risk-backend-go/internal/config"
	"github.com/jengzang/crime-risk-backend-go/internal/database"
	"github.com/jengzang/crime-risk-backend-go/internal/dataset"
	"github.com/jengzang/crime-risk-backend-go/internal/features"
	"github.com/jengzang/crime-risk-backend-go/internal/logging"
	"github.com/jengzang/crime-risk-backend-go/internal/ml"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
	"github.com/jengzang/crime-risk-backend-go/internal/repository"
)

type options struct {
	CSV       string
	Synthetic int
	Seed      int64
	Import    bool
	OutDir    string
	WriteCSV  string
}

func main() {
	var opts options
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config")
	flag.StringVar(&opts.CSV, "csv", "", "historical CSV (defaults to data.historical_csv)")
	flag.IntVar(&opts.Synthetic, "synthetic", 0, "generate N synthetic records instead of loading")
	flag.Int64Var(&opts.Seed, "seed", 0, "seed for synthetic data and the forest (defaults to models.seed)")
	flag.BoolVar(&opts.Import, "import", false, "import the training records into the database")
	flag.StringVar(&opts.OutDir, "out-dir", "", "artifact directory (defaults to models.dir)")
	flag.StringVar(&opts.WriteCSV, "write-csv", "", "also write the training records to this CSV")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})

	if err := train(context.Background(), cfg, opts); err != nil {
		logging.Fatal().Err(err).Msg("training failed")
	}
}

func train(ctx context.Context, cfg *config.Config, opts options) error {
	if opts.Seed == 0 {
		opts.Seed = cfg.Models.Seed
	}
	if opts.OutDir == "" {
		opts.OutDir = cfg.Models.Dir
	}
	if opts.CSV == "" {
		opts.CSV = cfg.Data.HistoricalCSV
	}

	var repo *repository.IncidentRepository
	if cfg.Database.Path != "" && (opts.Import || (opts.Synthetic == 0 && opts.CSV == "")) {
		db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path})
		if err != nil {
			return err
		}
		defer db.Close()
		repo = repository.NewIncidentRepository(db)
	}

	records, err := loadRecords(ctx, opts, repo)
	if err != nil {
		return err
	}
	logging.Info().Int("records", len(records)).Msg("training records loaded")

	if opts.WriteCSV != "" {
		if err := dataset.SaveFile(opts.WriteCSV, records); err != nil {
			return err
		}
		logging.Info().Str("path", opts.WriteCSV).Msg("wrote training records")
	}
	if opts.Import {
		if repo == nil {
			return errors.New("-import needs database.path")
		}
		n, err := repo.InsertBatch(ctx, records)
		if err != nil {
			return err
		}
		logging.Info().Int64("imported", n).Msg("imported records into database")
	}

	schema := features.NewSchema(records, cfg.Features.RadiusMeters, cfg.Features.HourBand, cfg.Features.BucketDeg)
	set, err := ml.NewTrainingSet(records, schema)
	if err != nil {
		return err
	}
	clf, err := ml.TrainClassifier(cfg.Models.ClassifierKind, set, ml.TrainOptions{})
	if err != nil {
		return err
	}
	logging.Info().
		Str("kind", clf.Kind()).
		Int("positives", set.Positives()).
		Float64("density_threshold", clf.DensityThreshold()).
		Float64("threshold", clf.Threshold()).
		Msg("classifier trained")

	forestCfg := ml.DefaultForestConfig()
	forestCfg.Contamination = cfg.Models.Contamination
	forestCfg.Seed = opts.Seed
	forest, err := ml.TrainIsolationForest(records, set.Schema, forestCfg)
	if err != nil {
		return err
	}
	logging.Info().Float64("offset", forest.Offset()).Msg("anomaly scorer trained")

	if err := ml.SaveClassifier(filepath.Join(opts.OutDir, ml.ClassifierFile), clf, len(records)); err != nil {
		return err
	}
	if err := ml.SaveScorer(filepath.Join(opts.OutDir, ml.ScorerFile), forest, len(records)); err != nil {
		return err
	}
	logging.Info().Str("dir", opts.OutDir).Msg("artifacts written")
	return nil
}

func loadRecords(ctx context.Context, opts options, repo *repository.IncidentRepository) ([]models.IncidentRecord, error) {
	switch {
	case opts.Synthetic > 0:
		return dataset.Synthetic(opts.Synthetic, opts.Seed), nil
	case opts.CSV != "":
		return dataset.LoadFile(opts.CSV)
	case repo != nil:
		return repo.List(ctx, models.ProvenanceHistorical)
	}
	return nil, errors.New("no training data: pass -csv, -synthetic or configure database.path")
}
