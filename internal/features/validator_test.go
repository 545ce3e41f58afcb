package features

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func samplePayload() map[string]any {
	return map[string]any{
		"age": 63.0, "sex": 1.0, "cp": 0.0, "trestbps": 145.0, "chol": 233.0,
		"fbs": 1.0, "restecg": 0.0, "thalach": 150.0, "exang": 0.0, "oldpeak": 2.3,
	}
}

func TestParseOrdersFields(t *testing.T) {
	v, err := Parse(samplePayload())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Vector{63, 1, 0, 145, 233, 1, 0, 150, 0, 2.3}
	if v != want {
		t.Fatalf("expected %v, got %v", want, v)
	}
}

func TestParseAcceptsFormStrings(t *testing.T) {
	p := samplePayload()
	p["age"] = " 54 "
	p["oldpeak"] = "1.5"
	p["exang"] = true
	p["chol"] = json.Number("240")
	v, err := Parse(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v[Age] != 54 || v[OldPeak] != 1.5 || v[ExerciseAngina] != 1 || v[Cholesterol] != 240 {
		t.Fatalf("unexpected vector %v", v)
	}
}

func TestParsePassesOutOfRangeValues(t *testing.T) {
	p := samplePayload()
	p["age"] = -5.0
	p["chol"] = 9000.0
	v, err := Parse(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v[Age] != -5 || v[Cholesterol] != 9000 {
		t.Fatalf("values should pass through unchanged, got %v", v)
	}
}

func TestParseRejectsBadFields(t *testing.T) {
	cases := []struct {
		name  string
		field string
		value any
		drop  bool
	}{
		{name: "missing", field: "thalach", drop: true},
		{name: "null", field: "cp", value: nil},
		{name: "empty string", field: "trestbps", value: ""},
		{name: "word", field: "chol", value: "high"},
		{name: "nan", field: "oldpeak", value: "NaN"},
		{name: "object", field: "sex", value: map[string]any{"v": 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := samplePayload()
			if tc.drop {
				delete(p, tc.field)
			} else {
				p[tc.field] = tc.value
			}
			_, err := Parse(p)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, verr.Field)
			}
			if !strings.HasPrefix(err.Error(), tc.field+":") {
				t.Fatalf("message should name the field, got %q", err.Error())
			}
		})
	}
}

func TestParseReportsFirstMissingFieldInOrder(t *testing.T) {
	_, err := Parse(map[string]any{})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "age" {
		t.Fatalf("expected age to be reported first, got %v", err)
	}
}
