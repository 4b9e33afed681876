package telemetry

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parquetFiles(t *testing.T, dir, pattern string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	require.NoError(t, err)
	return files
}

func TestRecorderFlush(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder[TrainRecord](dir, "train")
	require.NoError(t, err)

	require.NoError(t, rec.Record(TrainRecord{
		ID:        NewID(),
		Timestamp: time.Now().UTC(),
		RunID:     "run-1",
		Mode:      "all",
		Epoch:     0,
		Step:      25,
		Loss:      1.5,
	}))

	// Nothing on disk until flush.
	assert.Empty(t, parquetFiles(t, dir, "train_*.parquet"))

	require.NoError(t, rec.Close())
	files := parquetFiles(t, dir, "train_*.parquet")
	require.Len(t, files, 1)

	rows, err := parquet.ReadFile[TrainRecord](files[0])
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "run-1", rows[0].RunID)
	assert.Equal(t, 25, rows[0].Step)
	assert.InDelta(t, 1.5, rows[0].Loss, 1e-9)

	// Flushing an empty buffer writes nothing.
	require.NoError(t, rec.Flush())
	assert.Len(t, parquetFiles(t, dir, "train_*.parquet"), 1)
}

func TestParquetHandlerErrorsOnly(t *testing.T) {
	dir := t.TempDir()
	next := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	h, err := NewParquetHandler(next, dir)
	require.NoError(t, err)

	logger := slog.New(h)
	logger.Info("routine progress")
	logger.Error("pass aborted", "step", 3)

	require.NoError(t, h.Flush())
	files := parquetFiles(t, dir, "run_errors_*.parquet")
	require.Len(t, files, 1)

	rows, err := parquet.ReadFile[LogRecord](files[0])
	require.NoError(t, err)
	require.Len(t, rows, 1, "info records must not be persisted")
	assert.Equal(t, "pass aborted", rows[0].Message)
	assert.Equal(t, "ERROR", rows[0].Level)
}
