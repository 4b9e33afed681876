package evidential

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/soundprediction/evidential/pkg/alert"
	"github.com/soundprediction/evidential/pkg/checkpoint"
	"github.com/soundprediction/evidential/pkg/config"
	"github.com/soundprediction/evidential/pkg/dataset"
	"github.com/soundprediction/evidential/pkg/evidence"
	"github.com/soundprediction/evidential/pkg/logger"
	"github.com/soundprediction/evidential/pkg/match"
	"github.com/soundprediction/evidential/pkg/model"
	"github.com/soundprediction/evidential/pkg/server"
	"github.com/soundprediction/evidential/pkg/telemetry"
	"github.com/soundprediction/evidential/pkg/trainer"
	"github.com/soundprediction/evidential/pkg/types"
)

// Options configures one self-training round beyond the static config file.
type Options struct {
	// Model overrides the HTTP backend built from config. Used by tests and
	// embedders with an in-process model.
	Model model.Service

	// LoadEvidenceID names the previous round's persisted evidence labels to
	// start from; empty starts with an unlabeled store.
	LoadEvidenceID string
	// SaveEvidenceID names this round's evidence file. Empty skips the
	// end-of-run evidence update entirely.
	SaveEvidenceID string

	// Logger overrides the default colorized logger.
	Logger *slog.Logger
}

// Runner wires one self-training round together: data, model backend,
// evidence store, trainer and the optional status server.
type Runner struct {
	cfg     *config.Config
	logger  *slog.Logger
	runID   string
	tracker *server.Tracker
	srv     *server.Server

	store     evidence.Store
	telemetry *trainer.Telemetry
	trainer   *trainer.Trainer
	alerter   alert.Alerter
}

// NewRunner validates cfg and builds a Runner. Missing input files fail here,
// before any training begins.
func NewRunner(cfg *config.Config, opts Options) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	runID := telemetry.NewID()
	log, err := buildLogger(cfg, opts.Logger)
	if err != nil {
		return nil, err
	}

	manifest, err := dataset.LoadManifest(cfg.Data.Manifest)
	if err != nil {
		return nil, err
	}
	mode := match.ModeExact
	if manifest.RegexAnswers {
		mode = match.ModeRegex
	}
	matcher := match.NewMatcher(match.WhitespaceTokenizer{})

	trainLoader, err := loadSplit(manifest.Train, cfg.Train.BatchSize, manifest.NumDocs, matcher, log)
	if err != nil {
		return nil, err
	}
	devLoader, err := loadSplit(manifest.Dev, cfg.Train.TestBatchSize, manifest.NumDocs, matcher, log)
	if err != nil {
		return nil, err
	}
	var testLoader *dataset.Loader
	if manifest.Test != "" {
		testLoader, err = loadSplit(manifest.Test, cfg.Train.TestBatchSize, manifest.NumDocs, matcher, log)
		if err != nil {
			return nil, err
		}
	}

	modelName := cfg.Train.ModelName
	if modelName == "" {
		modelName = time.Now().Format("20060102-") + runID[:8]
	}
	if err := os.MkdirAll(cfg.Train.ModelDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}
	modelFile := filepath.Join(cfg.Train.ModelDir, modelName+".mdl")

	store, err := buildStore(cfg, modelName, opts.LoadEvidenceID, log)
	if err != nil {
		return nil, err
	}

	svc := opts.Model
	if svc == nil {
		svc = model.NewHTTPService(model.HTTPConfig{
			BaseURL: cfg.Model.BaseURL,
			Timeout: time.Duration(cfg.Model.Timeout) * time.Second,
		})
		if cfg.Model.MaxRetries > 0 {
			svc = model.NewRetryService(svc, &model.RetryConfig{
				MaxRetries: cfg.Model.MaxRetries,
			})
		}
	}
	if cfg.CircuitBreaker.Enabled {
		svc = model.NewCircuitBreakerService(svc, model.BreakerConfig{
			Enabled:          true,
			MaxRequests:      cfg.CircuitBreaker.MaxRequests,
			Interval:         cfg.CircuitBreaker.Interval,
			Timeout:          cfg.CircuitBreaker.Timeout,
			ReadyToTripRatio: cfg.CircuitBreaker.ReadyToTripRatio,
		}, log)
	}

	if cfg.Train.Resume != "" {
		if err := svc.Load(cfg.Train.Resume); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to load resume weights: %w", err)
		}
		log.Info("loaded resume weights", "path", cfg.Train.Resume)
	}

	var checkpoints *checkpoint.Manager
	if cfg.Train.Checkpoint {
		checkpoints, err = checkpoint.NewManager(filepath.Join(cfg.Train.ModelDir, "checkpoints"))
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	tel, err := buildTelemetry(cfg)
	if err != nil {
		return nil, err
	}

	tracker := server.NewTracker()
	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.New(cfg, tracker, runID)
		srv.Setup()
	}

	saveEvidenceFile := ""
	if opts.SaveEvidenceID != "" {
		saveEvidenceFile = evidenceFile(cfg, modelName, opts.SaveEvidenceID)
	}

	tr := trainer.New(trainer.Params{
		Config:           cfg,
		Model:            svc,
		Matcher:          matcher,
		Mode:             mode,
		Train:            trainLoader,
		Dev:              devLoader,
		Test:             testLoader,
		Store:            store,
		Logger:           log,
		Tracker:          tracker,
		Telemetry:        tel,
		RunID:            runID,
		ModelFile:        modelFile,
		SaveEvidenceFile: saveEvidenceFile,
		Checkpoints:      checkpoints,
		CheckpointName:   modelName,
	})

	log.Info("runner ready",
		"run_id", runID,
		"dataset", manifest.Name,
		"mode", cfg.Train.Mode,
		"num_docs", manifest.NumDocs,
		"train_steps", trainLoader.NumSteps(),
		"labeled", store.Labeled())

	return &Runner{
		cfg:       cfg,
		logger:    log,
		runID:     runID,
		tracker:   tracker,
		srv:       srv,
		store:     store,
		telemetry: tel,
		trainer:   tr,
		alerter:   alert.New(cfg.Alert),
	}, nil
}

// Run executes the round. The status server, when enabled, serves for the
// duration of the run.
func (r *Runner) Run(ctx context.Context) error {
	if r.srv != nil {
		go func() {
			if err := r.srv.Start(); err != nil && ctx.Err() == nil {
				r.logger.Warn("status server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.srv.Stop(shutdownCtx); err != nil {
				r.logger.Warn("failed to stop status server", "error", err)
			}
		}()
	}
	defer func() {
		if err := r.telemetry.Close(); err != nil {
			r.logger.Warn("failed to flush telemetry", "error", err)
		}
		if err := r.store.Close(); err != nil {
			r.logger.Warn("failed to close evidence store", "error", err)
		}
	}()

	ctx = context.WithValue(ctx, types.ContextKeyRunID, r.runID)
	if err := r.trainer.Run(ctx); err != nil {
		if alertErr := alert.NotifyFailure(r.alerter, r.runID, err); alertErr != nil {
			r.logger.Warn("failed to send alert", "error", alertErr)
		}
		return err
	}

	if err := alert.NotifyComplete(r.alerter, r.runID, r.cfg.Train.Mode,
		r.cfg.Train.NumEpochs, r.trainer.BestValid(), r.store.Labeled()); err != nil {
		r.logger.Warn("failed to send alert", "error", err)
	}
	return nil
}

// Trainer exposes the underlying trainer for callers that drive individual
// passes themselves.
func (r *Runner) Trainer() *trainer.Trainer {
	return r.trainer
}

func buildLogger(cfg *config.Config, override *slog.Logger) (*slog.Logger, error) {
	if override != nil {
		return override, nil
	}

	// Errors additionally land in Parquet next to the run's other telemetry.
	parquetHandler, err := telemetry.NewParquetHandler(baseHandler(cfg), cfg.Telemetry.ParquetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize error tracking: %w", err)
	}
	return slog.New(parquetHandler), nil
}

// baseHandler selects the console handler from config: colorized text by
// default, plain JSON for log aggregation when log.format is "json".
func baseHandler(cfg *config.Config) slog.Handler {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return logger.NewColorHandler(os.Stderr, opts)
}

func loadSplit(path string, batchSize, numDocs int, matcher *match.Matcher, log *slog.Logger) (*dataset.Loader, error) {
	split, err := dataset.LoadSplit(path, match.WhitespaceTokenizer{}, log)
	if err != nil {
		return nil, err
	}
	return dataset.NewLoader(split, batchSize, numDocs), nil
}

// evidenceFile names a round's persisted labels, one file per round id.
func evidenceFile(cfg *config.Config, modelName, roundID string) string {
	return filepath.Join(cfg.Train.ModelDir, fmt.Sprintf("%s.%s.json", modelName, roundID))
}

// buildStore creates the configured evidence store and, when previous labels
// are named, imports them. LoadEvidenceID selects a round file by the usual
// naming; evidence.label_file points at an explicit blob instead (labels
// produced under another model name, or bootstrapped externally). A named but
// missing file is fatal.
func buildStore(cfg *config.Config, modelName, loadID string, log *slog.Logger) (evidence.Store, error) {
	store, err := evidence.NewStore(evidence.Backend(cfg.Evidence.Backend), cfg.Evidence.Path, log)
	if err != nil {
		return nil, err
	}
	path := cfg.Evidence.LabelFile
	if loadID != "" {
		path = evidenceFile(cfg, modelName, loadID)
	}
	if path == "" {
		return store, nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to read evidence file: %w", err)
	}

	if bs, ok := store.(*evidence.BadgerStore); ok {
		if err := bs.Import(blob); err != nil {
			store.Close()
			return nil, err
		}
		log.Info("loaded evidence labels", "path", path, "labeled", store.Labeled())
		return store, nil
	}

	restored, err := evidence.NewMemoryStoreFromBlob(blob)
	if err != nil {
		store.Close()
		return nil, err
	}
	log.Info("loaded evidence labels", "path", path, "labeled", restored.Labeled())
	return restored, nil
}

func buildTelemetry(cfg *config.Config) (*trainer.Telemetry, error) {
	dir := cfg.Telemetry.ParquetPath
	trainRec, err := telemetry.NewRecorder[telemetry.TrainRecord](dir, "train")
	if err != nil {
		return nil, err
	}
	valRec, err := telemetry.NewRecorder[telemetry.ValidationRecord](dir, "validation")
	if err != nil {
		return nil, err
	}
	promoRec, err := telemetry.NewRecorder[telemetry.PromotionRecord](dir, "promotion")
	if err != nil {
		return nil, err
	}
	return &trainer.Telemetry{Train: trainRec, Validation: valRec, Promotion: promoRec}, nil
}
