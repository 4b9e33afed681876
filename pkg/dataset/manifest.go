package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest describes a dataset: where each split lives and how answers are
// interpreted. Manifests are YAML files checked in next to the data.
type Manifest struct {
	Name string `yaml:"name"`

	// Per-split JSONL files, relative to the manifest's directory.
	Train string `yaml:"train"`
	Dev   string `yaml:"dev"`
	Test  string `yaml:"test"`

	// NumDocs is the fixed document pool size D per question for this run.
	NumDocs int `yaml:"num_docs"`

	// RegexAnswers marks dataset families (CuratedTrec) whose accepted
	// answers are regular expressions rather than literal token sequences.
	RegexAnswers bool `yaml:"regex_answers"`
}

// LoadManifest reads and validates a manifest file. Split paths are resolved
// relative to the manifest location.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse dataset manifest %s: %w", path, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("dataset manifest %s: name is required", path)
	}
	if m.Train == "" {
		return nil, fmt.Errorf("dataset manifest %s: train split is required", path)
	}
	if m.NumDocs <= 0 {
		return nil, fmt.Errorf("dataset manifest %s: num_docs must be positive", path)
	}

	dir := filepath.Dir(path)
	m.Train = resolve(dir, m.Train)
	m.Dev = resolve(dir, m.Dev)
	m.Test = resolve(dir, m.Test)
	return &m, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
