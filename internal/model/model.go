// Package model wraps the pre-trained heart-disease classifiers and derives
// the 0-100 risk score reported to clients.
package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/Skufu/HeartGuard/internal/features"
)

// ErrModelUnavailable is returned for every inference when no classifier
// could be loaded at startup. It is permanent for the process lifetime.
var ErrModelUnavailable = errors.New("model not loaded")

// Classifier predicts the positive class (1) or negative class (0).
type Classifier interface {
	Predict(v features.Vector) (int, error)
}

// ProbabilityClassifier is implemented by classifiers that can report class
// probabilities [p0, p1].
type ProbabilityClassifier interface {
	Classifier
	PredictProbability(v features.Vector) ([2]float64, error)
}

// Result is a single inference outcome.
type Result struct {
	Prediction int `json:"prediction"`
	RiskScore  int `json:"risk_score"`
}

// Score runs c on v. The risk score is round(p1*100) when probabilities are
// available and 100 or 0 from the predicted class otherwise.
func Score(c Classifier, v features.Vector) (Result, error) {
	if c == nil {
		return Result{}, ErrModelUnavailable
	}
	pred, err := c.Predict(v)
	if err != nil {
		return Result{}, fmt.Errorf("predict: %w", err)
	}
	if pred != 0 && pred != 1 {
		return Result{}, fmt.Errorf("predict: unexpected class %d", pred)
	}

	pc, ok := c.(ProbabilityClassifier)
	if !ok {
		return Result{Prediction: pred, RiskScore: fallbackScore(pred)}, nil
	}
	probs, err := pc.PredictProbability(v)
	if err != nil {
		return Result{}, fmt.Errorf("predict probability: %w", err)
	}
	return Result{Prediction: pred, RiskScore: riskScore(probs[1])}, nil
}

func fallbackScore(pred int) int {
	if pred == 1 {
		return 100
	}
	return 0
}

func riskScore(p1 float64) int {
	if math.IsNaN(p1) {
		return 0
	}
	score := int(math.Round(p1 * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
