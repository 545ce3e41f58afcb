package model

import "github.com/Skufu/HeartGuard/internal/features"

// Rules is the risk-factor heuristic the synthetic training data was
// labelled with. It has no probability output, so Score falls back to 100/0.
type Rules struct {
	// MinFactors is the number of risk factors that marks a positive case.
	MinFactors int
}

// DefaultRules mirrors the labelling rule of the training set.
var DefaultRules = Rules{MinFactors: 3}

// Predict counts the elevated risk factors in v.
func (r Rules) Predict(v features.Vector) (int, error) {
	if r.Factors(v) >= r.MinFactors {
		return 1, nil
	}
	return 0, nil
}

// Factors returns how many of the five labelled risk factors are present.
func (r Rules) Factors(v features.Vector) int {
	n := 0
	for _, hit := range []bool{
		v[features.Age] > 55,
		v[features.RestingBP] > 140,
		v[features.Cholesterol] > 240,
		v[features.MaxHeartRate] < 140,
		v[features.OldPeak] > 1.5,
	} {
		if hit {
			n++
		}
	}
	return n
}
