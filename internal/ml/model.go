// Package ml holds the offline-trained risk classifier and anomaly scorer. Trained
// models are immutable values: they are built by Train* or loaded from an artifact
// once, then shared read-only by every request.
package ml

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jengzang/crime-risk-backend-go/internal/features"
)

// Classifier maps a feature vector to a risk probability.
type Classifier interface {
	Kind() string
	Schema() features.Schema
	// Predict returns a score in [0,1]. It fails only with a FeatureShapeError.
	Predict(v features.Vector) (float64, error)
	// Threshold is the stored decision threshold: High Risk iff score >= Threshold.
	Threshold() float64
	// DensityThreshold is the 75th percentile local density used for labelling.
	DensityThreshold() float64
}

// Scorer maps a feature vector to an anomaly score. Lower scores are more anomalous.
type Scorer interface {
	Kind() string
	Schema() features.Schema
	Score(v features.Vector) (float64, error)
	IsAnomalous(score float64) bool
}

// TrainOptions tunes classifier training. Zero values take the family defaults.
type TrainOptions struct {
	Epochs       int
	LearningRate float64
	L2           float64
}

// ClassifierTrainer fits a classifier family on a training set.
type ClassifierTrainer func(set *TrainingSet, opts TrainOptions) (Classifier, error)

// ClassifierDecoder restores a classifier family from its artifact parameters.
type ClassifierDecoder func(schema features.Schema, params []byte) (Classifier, error)

type classifierFamily struct {
	train  ClassifierTrainer
	decode ClassifierDecoder
}

var (
	registryMu         sync.RWMutex
	classifierRegistry = make(map[string]classifierFamily)
)

// RegisterClassifier registers a classifier family under kind.
func RegisterClassifier(kind string, train ClassifierTrainer, decode ClassifierDecoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	classifierRegistry[kind] = classifierFamily{train: train, decode: decode}
}

// ClassifierKinds lists the registered families.
func ClassifierKinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return kindsLocked()
}

func lookupClassifier(kind string) (classifierFamily, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := classifierRegistry[kind]
	if !ok {
		return classifierFamily{}, fmt.Errorf("unknown classifier kind %q (have %v)", kind, kindsLocked())
	}
	return f, nil
}

func kindsLocked() []string {
	kinds := make([]string, 0, len(classifierRegistry))
	for k := range classifierRegistry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// TrainClassifier fits the family registered under kind.
func TrainClassifier(kind string, set *TrainingSet, opts TrainOptions) (Classifier, error) {
	f, err := lookupClassifier(kind)
	if err != nil {
		return nil, err
	}
	return f.train(set, opts)
}
