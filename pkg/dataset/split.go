// Package dataset loads question/document splits and serves them as
// stable-order batched steps.
package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/kaptinlin/jsonrepair"

	"github.com/soundprediction/evidential/pkg/match"
	"github.com/soundprediction/evidential/pkg/parallel"
)

// Example is one question with its retrieved candidate document pool.
type Example struct {
	ID       int
	Question string
	// Answers holds every accepted ground-truth answer as a token sequence.
	Answers [][]string
	// Docs holds the candidate documents as token sequences, in retrieval
	// order. Pools shorter than the run's D wrap modulo their own length.
	Docs [][]string
}

// rawExample is the JSONL line format: one object per line with the question
// text, accepted answers and retrieved documents as plain strings.
type rawExample struct {
	Question  string   `json:"question"`
	Answers   []string `json:"answers"`
	Documents []string `json:"documents"`
}

// Split is a fully loaded data split.
type Split struct {
	Examples []*Example
}

// Len returns the number of examples.
func (s *Split) Len() int {
	return len(s.Examples)
}

// LoadSplit reads a JSONL split file. Lines that fail to parse are first run
// through jsonrepair before being given up on; lines that still fail, or
// parse to an example without documents, are skipped with a warning. A
// missing file is fatal.
func LoadSplit(path string, tok match.Tokenizer, logger *slog.Logger) (*Split, error) {
	if tok == nil {
		tok = match.WhitespaceTokenizer{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open split file: %w", err)
	}
	defer f.Close()

	var raws []rawExample
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}

		var raw rawExample
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			repaired, repairErr := jsonrepair.JSONRepair(line)
			if repairErr != nil || json.Unmarshal([]byte(repaired), &raw) != nil {
				logger.Warn("skipping unparseable example", "path", path, "line", lineNo)
				continue
			}
			logger.Debug("repaired malformed example line", "path", path, "line", lineNo)
		}

		if raw.Question == "" || len(raw.Documents) == 0 {
			logger.Warn("skipping example without question or documents", "path", path, "line", lineNo)
			continue
		}
		raws = append(raws, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read split file: %w", err)
	}

	// Tokenizing dominates load time on large splits; fan it out per example.
	// Example IDs follow file order, which the pool preserves.
	pool := parallel.NewWorkerPool(0, func(_ context.Context, raw rawExample) (*Example, error) {
		ex := &Example{Question: raw.Question}
		for _, a := range raw.Answers {
			ex.Answers = append(ex.Answers, tok.Tokenize(a))
		}
		for _, d := range raw.Documents {
			ex.Docs = append(ex.Docs, tok.Tokenize(d))
		}
		return ex, nil
	})
	examples, errs := pool.Process(context.Background(), raws)
	if err := parallel.FirstError(errs); err != nil {
		return nil, fmt.Errorf("failed to tokenize split: %w", err)
	}

	split := &Split{Examples: examples}
	for i, ex := range split.Examples {
		ex.ID = i
	}

	logger.Info("loaded split", "path", path, "examples", split.Len())
	return split, nil
}
