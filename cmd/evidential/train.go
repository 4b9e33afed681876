package evidential

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soundprediction/evidential"
	"github.com/soundprediction/evidential/pkg/config"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run one training round",
	Long: `Run one self-training round: train for the configured number of epochs,
keep the best dev-metric model, then (when --save-evidence is given) promote
the model's most confident predictions into evidence labels and persist them
for the next round.`,
	RunE: runTrain,
}

var (
	loadEvidenceID string
	saveEvidenceID string
)

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVar(&loadEvidenceID, "load-evidence", "", "Round id of evidence labels to start from")
	trainCmd.Flags().StringVar(&saveEvidenceID, "save-evidence", "", "Round id to persist this round's evidence labels under")

	trainCmd.Flags().String("manifest", "", "Dataset manifest path")
	trainCmd.Flags().String("mode", "all", "Training mode (all, reader, selector)")
	trainCmd.Flags().Int("num-epochs", 20, "Number of training epochs")
	trainCmd.Flags().Int("batch-size", 128, "Batch size for training")
	trainCmd.Flags().Int("test-batch-size", 64, "Batch size during validation")
	trainCmd.Flags().Int("top-k", 2000, "Evidence promotion budget per round")
	trainCmd.Flags().String("model-dir", "./models", "Directory for saved models and evidence files")
	trainCmd.Flags().String("model-name", "", "Unique model identifier")
	trainCmd.Flags().String("model-base-url", "", "Model backend base URL")
	trainCmd.Flags().String("valid-metric", "exact_match", "Validation metric (exact_match, f1)")
	trainCmd.Flags().Bool("checkpoint", false, "Save model and optimizer state after each epoch")
	trainCmd.Flags().Bool("serve-status", false, "Expose the HTTP status server during the run")
	trainCmd.Flags().String("telemetry-parquet-path", "", "Path to directory for telemetry")

	viper.BindPFlag("data.manifest", trainCmd.Flags().Lookup("manifest"))
	viper.BindPFlag("train.mode", trainCmd.Flags().Lookup("mode"))
	viper.BindPFlag("train.num_epochs", trainCmd.Flags().Lookup("num-epochs"))
	viper.BindPFlag("train.batch_size", trainCmd.Flags().Lookup("batch-size"))
	viper.BindPFlag("train.test_batch_size", trainCmd.Flags().Lookup("test-batch-size"))
	viper.BindPFlag("evidence.top_k", trainCmd.Flags().Lookup("top-k"))
	viper.BindPFlag("train.model_dir", trainCmd.Flags().Lookup("model-dir"))
	viper.BindPFlag("train.model_name", trainCmd.Flags().Lookup("model-name"))
	viper.BindPFlag("model.base_url", trainCmd.Flags().Lookup("model-base-url"))
	viper.BindPFlag("train.valid_metric", trainCmd.Flags().Lookup("valid-metric"))
	viper.BindPFlag("train.checkpoint", trainCmd.Flags().Lookup("checkpoint"))
	viper.BindPFlag("server.enabled", trainCmd.Flags().Lookup("serve-status"))
	viper.BindPFlag("telemetry.parquet_path", trainCmd.Flags().Lookup("telemetry-parquet-path"))
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	runner, err := evidential.NewRunner(cfg, evidential.Options{
		LoadEvidenceID: loadEvidenceID,
		SaveEvidenceID: saveEvidenceID,
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	return runner.Run(ctx)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
