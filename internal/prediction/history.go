package prediction

import (
	"encoding/json"
	"fmt"

	"github.com/Skufu/HeartGuard/internal/features"
	"github.com/Skufu/HeartGuard/internal/store"
)

// Visit is a canned prior visit shown in a new patient's history. None of
// its values come from the model.
type Visit struct {
	Date       string
	Prediction int
	Score      int
	Vitals     map[string]float64
}

// HistoryFixture is applied once, right after a patient account is created.
type HistoryFixture []Visit

// DefaultHistory seeds two earlier visits: one low risk, one elevated.
var DefaultHistory = HistoryFixture{
	{
		Date:       "2025-06-14",
		Prediction: 0,
		Score:      18,
		Vitals: map[string]float64{
			"cp": 1, "trestbps": 128, "chol": 212, "fbs": 0,
			"restecg": 0, "thalach": 162, "exang": 0, "oldpeak": 0.6,
		},
	},
	{
		Date:       "2025-10-02",
		Prediction: 1,
		Score:      64,
		Vitals: map[string]float64{
			"cp": 2, "trestbps": 146, "chol": 251, "fbs": 1,
			"restecg": 1, "thalach": 138, "exang": 1, "oldpeak": 1.8,
		},
	},
}

// Records builds one record per visit, copying identity fields from base.
// Details use the same flat keys as a submitted payload so readers of the
// latest record see vitals whichever visit it is.
func (h HistoryFixture) Records(base store.Record) ([]store.Record, error) {
	sex := 0.0
	if base.Sex == "Male" {
		sex = 1
	}

	out := make([]store.Record, 0, len(h))
	for _, v := range h {
		payload := map[string]any{
			features.Names[features.Age]: base.Age,
			features.Names[features.Sex]: sex,
			keyUsername:                  base.PatientUsername,
			keyName:                      base.Name,
			"synthetic":                  true,
		}
		for k, val := range v.Vitals {
			payload[k] = val
		}
		details, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode history visit %s: %w", v.Date, err)
		}
		out = append(out, store.Record{
			PatientUsername: base.PatientUsername,
			Name:            base.Name,
			Age:             base.Age,
			Sex:             base.Sex,
			Prediction:      v.Prediction,
			Score:           v.Score,
			Date:            v.Date,
			Details:         string(details),
		})
	}
	return out, nil
}
