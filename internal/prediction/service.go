// Package prediction runs the predict-and-record flow behind /predict_api.
package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Skufu/HeartGuard/internal/features"
	"github.com/Skufu/HeartGuard/internal/model"
	"github.com/Skufu/HeartGuard/internal/store"
)

// DateLayout is the format of Record.Date.
const DateLayout = "2006-01-02"

// Payload keys besides the clinical features. The snake_case forms are
// accepted as aliases.
const (
	keyUsername      = "patientUsername"
	keyPassword      = "patientPassword"
	keyName          = "p_name"
	keyUsernameSnake = "patient_username"
	keyPasswordSnake = "patient_password"
)

// Outcome is the result of one prediction request.
type Outcome struct {
	model.Result
	// RecordID is zero when nothing was persisted.
	RecordID   int64
	NewPatient bool
}

// Service predicts and records. It keeps no state between requests.
type Service struct {
	classifier model.Classifier
	store      store.Store
	history    HistoryFixture
	now        func() time.Time
	log        zerolog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the clock used to date records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHistory replaces the history seeded for new patients.
func WithHistory(h HistoryFixture) Option {
	return func(s *Service) { s.history = h }
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService wires a service. classifier may be nil when the model failed
// to load; every Predict call then fails with model.ErrModelUnavailable.
func NewService(classifier model.Classifier, st store.Store, opts ...Option) *Service {
	s := &Service{
		classifier: classifier,
		store:      st,
		history:    DefaultHistory,
		now:        time.Now,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Available reports whether a classifier is loaded.
func (s *Service) Available() bool {
	return s != nil && s.classifier != nil
}

// Predict validates payload, scores it and, when a patient username is
// present, records the result in a single transaction.
func (s *Service) Predict(ctx context.Context, payload map[string]any) (Outcome, error) {
	vec, err := features.Parse(payload)
	if err != nil {
		return Outcome{}, err
	}
	res, err := model.Score(s.classifier, vec)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Result: res}

	username := stringField(payload, keyUsername, keyUsernameSnake)
	if username == "" || s.store == nil {
		s.log.Debug().Msg("no patient username; prediction not recorded")
		return out, nil
	}
	password := stringField(payload, keyPassword, keyPasswordSnake)

	rec, err := s.buildRecord(username, vec, res, payload)
	if err != nil {
		return Outcome{}, err
	}

	err = s.store.InTx(ctx, func(q store.Queries) error {
		if password != "" {
			created, err := q.CreateUserIfAbsent(ctx, store.User{
				Username: username,
				Password: password,
				Role:     store.RolePatient,
			})
			if err != nil {
				return err
			}
			out.NewPatient = created
		}

		id, err := q.CreateRecord(ctx, rec)
		if err != nil {
			return err
		}
		out.RecordID = id

		if !out.NewPatient {
			return nil
		}
		past, err := s.history.Records(rec)
		if err != nil {
			return err
		}
		for _, p := range past {
			if _, err := q.CreateRecord(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	s.log.Info().
		Str("patient", username).
		Int64("record_id", out.RecordID).
		Bool("new_patient", out.NewPatient).
		Int("prediction", res.Prediction).
		Int("risk_score", res.RiskScore).
		Msg("prediction recorded")
	return out, nil
}

func (s *Service) buildRecord(username string, vec features.Vector, res model.Result, payload map[string]any) (store.Record, error) {
	name := stringField(payload, keyName)
	if name == "" {
		name = username
	}
	sex := "Female"
	if vec[features.Sex] == 1 {
		sex = "Male"
	}

	details := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == keyPassword || k == keyPasswordSnake {
			continue
		}
		details[k] = v
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return store.Record{}, fmt.Errorf("encode details: %w", err)
	}

	return store.Record{
		PatientUsername: username,
		Name:            name,
		Age:             int(vec[features.Age]),
		Sex:             sex,
		Prediction:      res.Prediction,
		Score:           res.RiskScore,
		Date:            s.now().Format(DateLayout),
		Details:         string(raw),
	}, nil
}

// stringField returns the first non-empty trimmed string among keys.
func stringField(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := payload[k].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}
