package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Skufu/HeartGuard/internal/features"
)

// Artifact kinds.
const (
	KindRandomForest = "random_forest"
	KindRules        = "rules"
)

// Artifact is the on-disk form of an exported classifier.
type Artifact struct {
	Kind       string   `json:"kind" yaml:"kind"`
	Features   []string `json:"features" yaml:"features"`
	Trees      []Tree   `json:"trees,omitempty" yaml:"trees,omitempty"`
	MinFactors int      `json:"min_factors,omitempty" yaml:"min_factors,omitempty"`
}

// Load reads a classifier artifact. The format is chosen by extension:
// .json, .yaml or .yml.
func Load(path string) (Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	var art Artifact
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &art)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &art)
	default:
		return nil, fmt.Errorf("unsupported model format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	return art.Build()
}

// Build validates the artifact and returns the classifier it describes.
func (a Artifact) Build() (Classifier, error) {
	if err := checkFeatureOrder(a.Features); err != nil {
		return nil, err
	}
	switch a.Kind {
	case KindRandomForest:
		f, err := NewForest(a.Trees)
		if err != nil {
			return nil, fmt.Errorf("build forest: %w", err)
		}
		return f, nil
	case KindRules:
		r := DefaultRules
		if a.MinFactors > 0 {
			r.MinFactors = a.MinFactors
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown model kind %q", a.Kind)
	}
}

func checkFeatureOrder(names []string) error {
	if len(names) != features.Size {
		return fmt.Errorf("model expects %d features, want %d", len(names), features.Size)
	}
	for i, name := range names {
		if name != features.Names[i] {
			return fmt.Errorf("feature %d is %q, want %q", i, name, features.Names[i])
		}
	}
	return nil
}
