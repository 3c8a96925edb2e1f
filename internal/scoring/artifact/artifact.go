// Package artifact loads the category, anomaly and forecast models from a
// YAML artifact. The loaded models are immutable.
package artifact

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"txinsight/internal/scoring"
)

//go:embed default_models.yaml
var defaultArtifact []byte

var (
	ErrNoClasses      = errors.New("category model has no classes")
	ErrNoFallback     = errors.New("category model has no fallback label")
	ErrInvalidBounds  = errors.New("anomaly bounds are inverted")
	ErrUnknownMethod  = errors.New("unknown forecast method")
	ErrEmptyClassName = errors.New("category class without label")
)

// File is the on-disk layout of a model artifact.
type File struct {
	Category CategoryModel `yaml:"category"`
	Anomaly  AnomalyModel  `yaml:"anomaly"`
	Forecast ForecastModel `yaml:"forecast"`
}

type CategoryModel struct {
	Fallback string          `yaml:"fallback"`
	Classes  []CategoryClass `yaml:"classes"`
}

type CategoryClass struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
	// Sign optionally restricts the class to "positive" or "negative" amounts.
	Sign string `yaml:"sign"`
}

// AnomalyModel is the inlier interval fitted on historical amounts.
type AnomalyModel struct {
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

type ForecastModel struct {
	Method string `yaml:"method"`
}

// Load reads the artifact at path, or the embedded default when path is empty.
func Load(path string) (scoring.Models, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(defaultArtifact)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return scoring.Models{}, fmt.Errorf("read model artifact: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates an artifact and builds the model handles.
func Parse(data []byte) (scoring.Models, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return scoring.Models{}, fmt.Errorf("decode model artifact: %w", err)
	}
	if err := f.Validate(); err != nil {
		return scoring.Models{}, fmt.Errorf("validate model artifact: %w", err)
	}
	return scoring.Models{
		Categorizer: newKeywordCategorizer(f.Category),
		Detector:    newBoundsDetector(f.Anomaly),
		Forecaster:  newTrendForecaster(),
	}, nil
}

func (f File) Validate() error {
	if len(f.Category.Classes) == 0 {
		return ErrNoClasses
	}
	if strings.TrimSpace(f.Category.Fallback) == "" {
		return ErrNoFallback
	}
	for i, c := range f.Category.Classes {
		if strings.TrimSpace(c.Label) == "" {
			return fmt.Errorf("class %d: %w", i, ErrEmptyClassName)
		}
		switch c.Sign {
		case "", "positive", "negative":
		default:
			return fmt.Errorf("class %q: invalid sign %q", c.Label, c.Sign)
		}
	}
	if f.Anomaly.Lower > f.Anomaly.Upper {
		return ErrInvalidBounds
	}
	switch f.Forecast.Method {
	case "", "linear":
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMethod, f.Forecast.Method)
	}
	return nil
}
