// Package features turns a raw prediction payload into the fixed-order
// numeric vector the risk model consumes.
package features

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Size is the number of clinical inputs in a feature vector.
const Size = 10

// Names lists the payload keys in the order the classifier expects them.
var Names = [Size]string{
	"age",
	"sex",
	"cp",
	"trestbps",
	"chol",
	"fbs",
	"restecg",
	"thalach",
	"exang",
	"oldpeak",
}

// Indexes into a Vector.
const (
	Age = iota
	Sex
	ChestPain
	RestingBP
	Cholesterol
	FastingBloodSugar
	RestECG
	MaxHeartRate
	ExerciseAngina
	OldPeak
)

// Vector is the ordered encoding of the ten clinical inputs.
type Vector [Size]float64

// ValidationError reports a missing or non-numeric payload field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Parse coerces every named field of payload to float64. Values are passed
// through unchanged; no clinical range checks happen here.
func Parse(payload map[string]any) (Vector, error) {
	var v Vector
	for i, name := range Names {
		raw, ok := payload[name]
		if !ok || raw == nil {
			return Vector{}, &ValidationError{Field: name, Reason: "missing value"}
		}
		f, err := toFloat(raw)
		if err != nil {
			return Vector{}, &ValidationError{Field: name, Reason: err.Error()}
		}
		v[i] = f
	}
	return v, nil
}

func toFloat(raw any) (float64, error) {
	var f float64
	switch val := raw.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", val.String())
		}
		f = parsed
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, fmt.Errorf("missing value")
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", val)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}
