package ml

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/jengzang/crime-risk-backend-go/internal/features"
	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

// Artifact file names inside the models directory.
const (
	ClassifierFile = "classifier.json"
	ScorerFile     = "anomaly.json"
)

// Artifact is the on-disk form of a trained model.
type Artifact struct {
	Kind      string          `json:"kind"`
	Schema    features.Schema `json:"schema"`
	TrainedAt time.Time       `json:"trained_at"`
	Records   int             `json:"records"`
	Params    json.RawMessage `json:"params"`
}

type paramHolder interface {
	params() interface{}
}

// SaveClassifier writes c as an artifact at path.
func SaveClassifier(path string, c Classifier, records int) error {
	return saveArtifact(path, c.Kind(), c.Schema(), c, records)
}

// SaveScorer writes s as an artifact at path.
func SaveScorer(path string, s Scorer, records int) error {
	return saveArtifact(path, s.Kind(), s.Schema(), s, records)
}

func saveArtifact(path, kind string, schema features.Schema, model interface{}, records int) error {
	holder, ok := model.(paramHolder)
	if !ok {
		return fmt.Errorf("model %s cannot be serialized", kind)
	}
	params, err := json.Marshal(holder.params())
	if err != nil {
		return fmt.Errorf("failed to encode %s params: %w", kind, err)
	}
	data, err := json.MarshalIndent(Artifact{
		Kind:      kind,
		Schema:    schema,
		TrainedAt: time.Now().UTC(),
		Records:   records,
		Params:    params,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s artifact: %w", kind, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

func readArtifact(path, model string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ModelUnavailableError{Model: model, Err: err}
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, &models.ModelUnavailableError{Model: model, Err: fmt.Errorf("failed to decode %s: %w", path, err)}
	}
	return &a, nil
}

// LoadClassifier restores a classifier artifact. Every failure is a ModelUnavailableError.
func LoadClassifier(path string) (Classifier, error) {
	a, err := readArtifact(path, "classifier")
	if err != nil {
		return nil, err
	}
	f, err := lookupClassifier(a.Kind)
	if err != nil {
		return nil, &models.ModelUnavailableError{Model: "classifier", Err: err}
	}
	c, err := f.decode(a.Schema, a.Params)
	if err != nil {
		return nil, &models.ModelUnavailableError{Model: "classifier", Err: err}
	}
	return c, nil
}

// LoadScorer restores an anomaly scorer artifact. Every failure is a ModelUnavailableError.
func LoadScorer(path string) (Scorer, error) {
	a, err := readArtifact(path, "anomaly")
	if err != nil {
		return nil, err
	}
	if a.Kind != KindIsolationForest {
		return nil, &models.ModelUnavailableError{Model: "anomaly", Err: fmt.Errorf("unknown scorer kind %q", a.Kind)}
	}
	f, err := decodeForest(a.Schema, a.Params)
	if err != nil {
		return nil, &models.ModelUnavailableError{Model: "anomaly", Err: err}
	}
	return f, nil
}

// Models is the pair of trained models a server needs.
type Models struct {
	Classifier Classifier
	Scorer     Scorer
}

// LoadModels loads both artifacts from dir.
func LoadModels(dir string) (*Models, error) {
	c, err := LoadClassifier(filepath.Join(dir, ClassifierFile))
	if err != nil {
		return nil, err
	}
	s, err := LoadScorer(filepath.Join(dir, ScorerFile))
	if err != nil {
		return nil, err
	}
	return &Models{Classifier: c, Scorer: s}, nil
}
