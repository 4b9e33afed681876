package trainer

import (
	"context"
	"fmt"
	"os"

	"github.com/soundprediction/evidential/pkg/checkpoint"
	"github.com/soundprediction/evidential/pkg/evidence"
)

// Run executes one full self-training round: the configured number of epochs
// in the configured mode with validation after each, retaining the best
// dev-metric model, then (when a save file is configured) reloads that best
// model, runs the evidence update and persists the labels for the next round.
func (t *Trainer) Run(ctx context.Context) error {
	cfg := t.cfg.Train
	if t.tracker != nil {
		t.tracker.SetRun(cfg.Mode, t.train.NumSteps()*cfg.NumEpochs)
	}

	ck, startEpoch, err := t.resume()
	if err != nil {
		return err
	}

	if err := t.runEpochs(ctx, ck, startEpoch); err != nil {
		if ck != nil {
			if saveErr := t.checkpoints.SaveWithError(ck, err); saveErr != nil {
				t.logger.Warn("failed to record run failure", "error", saveErr)
			}
		}
		return err
	}

	if t.saveEvidenceFile != "" {
		// Promote with the best model of the round, not the last epoch's.
		if err := t.model.Load(t.modelFile); err != nil {
			return fmt.Errorf("failed to reload best model: %w", err)
		}
		if _, err := t.UpdateEvidence(ctx, cfg.NumEpochs-1); err != nil {
			return err
		}
		if err := evidence.SaveFile(t.store, t.saveEvidenceFile); err != nil {
			return err
		}
		t.logger.Info("persisted evidence labels",
			"path", t.saveEvidenceFile, "labeled", t.store.Labeled())
	}

	if ck != nil {
		if err := t.checkpoints.Delete(t.checkpointName); err != nil {
			t.logger.Warn("failed to remove run checkpoint", "error", err)
		}
	}
	if t.tracker != nil {
		t.tracker.Publish("done", cfg.NumEpochs, 0, 0)
	}
	return nil
}

func (t *Trainer) runEpochs(ctx context.Context, ck *checkpoint.RunCheckpoint, startEpoch int) error {
	cfg := t.cfg.Train

	for epoch := startEpoch; epoch < cfg.NumEpochs; epoch++ {
		var err error
		switch cfg.Mode {
		case "reader":
			err = t.PretrainReader(ctx, epoch)
		case "selector":
			err = t.PretrainSelector(ctx, epoch)
		default:
			err = t.TrainEpoch(ctx, epoch)
		}
		if err != nil {
			return err
		}

		result, err := t.Validate(ctx, t.dev, "dev", epoch)
		if err != nil {
			return err
		}
		if _, err := t.Validate(ctx, t.train, "train", epoch); err != nil {
			return err
		}
		if t.test != nil {
			if _, err := t.Validate(ctx, t.test, "test", epoch); err != nil {
				return err
			}
		}

		if metric := result.Metric(cfg.ValidMetric); metric > t.bestValid {
			t.logger.Info("best valid", "metric", cfg.ValidMetric, "value", metric, "epoch", epoch)
			if err := t.model.Save(t.modelFile); err != nil {
				return fmt.Errorf("failed to save best model: %w", err)
			}
			t.bestValid = metric
			if t.tracker != nil {
				t.tracker.SetBestMetric(metric)
			}
		}

		if ck != nil {
			ck.Epoch = epoch
			ck.BestMetric = t.bestValid
			ck.Labeled = t.store.Labeled()
			if err := t.checkpoints.Save(ck); err != nil {
				t.logger.Warn("failed to save run checkpoint", "error", err)
			}
		}
	}
	return nil
}

// resume loads or creates this run's progress checkpoint. When a previous
// attempt completed some epochs, the model state checkpointed after the last
// finished epoch is restored and training continues from the next one.
func (t *Trainer) resume() (*checkpoint.RunCheckpoint, int, error) {
	if t.checkpoints == nil {
		return nil, 0, nil
	}

	ck, found, err := t.checkpoints.LoadOrCreate(t.checkpointName, t.cfg.Train.Mode)
	if err != nil {
		return nil, 0, err
	}
	if !found || ck.Epoch < 0 {
		return ck, 0, nil
	}

	stateFile := t.modelFile + ".checkpoint"
	if _, statErr := os.Stat(stateFile); statErr == nil {
		if err := t.model.Load(stateFile); err != nil {
			return nil, 0, fmt.Errorf("failed to restore model state: %w", err)
		}
	} else {
		t.logger.Warn("no model state to restore, resuming with current weights",
			"path", stateFile)
	}

	t.bestValid = ck.BestMetric
	startEpoch := ck.Epoch + 1
	t.logger.Info("resuming run",
		"name", ck.Name, "completed_epochs", ck.Epoch+1, "best_metric", ck.BestMetric)
	return ck, startEpoch, nil
}

// BestValid returns the best dev metric seen so far.
func (t *Trainer) BestValid() float64 {
	return t.bestValid
}
