package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	manifest := filepath.Join(t.TempDir(), "dataset.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("name: testset\n"), 0644))

	return &Config{
		Data: DataConfig{Manifest: manifest},
		Train: TrainConfig{
			Mode:          "all",
			BatchSize:     128,
			TestBatchSize: 64,
			NumEpochs:     20,
			TopN:          1,
			DisplayIter:   25,
			ValidateEvery: 200,
			ValidMetric:   "exact_match",
		},
		Model:    ModelConfig{BaseURL: "http://localhost:8500"},
		Evidence: EvidenceConfig{TopK: 2000, Backend: "memory"},
	}
}

func TestValidateAccepts(t *testing.T) {
	require.NoError(t, validConfig(t).Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing manifest path", func(c *Config) { c.Data.Manifest = "" }, "manifest path is required"},
		{"unreadable manifest", func(c *Config) { c.Data.Manifest = "/nonexistent/dataset.yaml" }, "not readable"},
		{"unknown mode", func(c *Config) { c.Train.Mode = "finetune" }, "unsupported train mode"},
		{"unknown metric", func(c *Config) { c.Train.ValidMetric = "bleu" }, "unsupported validation metric"},
		{"zero batch size", func(c *Config) { c.Train.BatchSize = 0 }, "batch sizes must be positive"},
		{"zero epochs", func(c *Config) { c.Train.NumEpochs = 0 }, "num_epochs must be positive"},
		{"zero top_n", func(c *Config) { c.Train.TopN = 0 }, "top_n must be positive"},
		{"zero display_iter", func(c *Config) { c.Train.DisplayIter = 0 }, "display_iter must be positive"},
		{"negative display_iter", func(c *Config) { c.Train.DisplayIter = -5 }, "display_iter must be positive"},
		{"zero validate_every", func(c *Config) { c.Train.ValidateEvery = 0 }, "validate_every must be positive"},
		{"unknown log format", func(c *Config) { c.Log.Format = "logfmt" }, "unsupported log format"},
		{"missing model url", func(c *Config) { c.Model.BaseURL = "" }, "base URL is required"},
		{"zero top_k", func(c *Config) { c.Evidence.TopK = 0 }, "top_k must be positive"},
		{"badger without path", func(c *Config) { c.Evidence.Backend = "badger" }, "evidence path is required"},
		{"unknown backend", func(c *Config) { c.Evidence.Backend = "redis" }, "unsupported evidence backend"},
		{"bad server port", func(c *Config) { c.Server.Enabled = true; c.Server.Port = 0 }, "invalid port"},
		{"alert without smtp host", func(c *Config) { c.Alert.Enabled = true }, "alerting requires"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAcceptsLogFormats(t *testing.T) {
	for _, format := range []string{"", "text", "json"} {
		cfg := validConfig(t)
		cfg.Log.Format = format
		assert.NoError(t, cfg.Validate(), "format %q", format)
	}
}
