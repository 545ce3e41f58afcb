package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Skufu/HeartGuard/internal/model"
	"github.com/Skufu/HeartGuard/internal/prediction"
	"github.com/Skufu/HeartGuard/internal/store"
)

const scenarioJSON = `{"age":63,"sex":1,"cp":0,"trestbps":145,"chol":233,"fbs":1,"restecg":0,"thalach":150,"exang":0,"oldpeak":2.3}`

// pinger answers readiness checks with a fixed result.
type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	router *gin.Engine
	store  *store.MemoryStore
}

func newTestEnv(t *testing.T, classifier model.Classifier, db HealthChecker) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore(nil)
	if err := st.SeedDefaultDoctor(context.Background()); err != nil {
		t.Fatal(err)
	}
	svc := prediction.NewService(classifier, st)
	router := NewRouter(Deps{
		Predictions: svc,
		Store:       st,
		DB:          db,
		Logger:      zerolog.Nop(),
	})
	return testEnv{router: router, store: st}
}

func shippedForest(t *testing.T) model.Classifier {
	t.Helper()
	c, err := model.Load("../../models/heart_model.json")
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	return c
}

func (e testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
}

func recordCount(t *testing.T, st *store.MemoryStore) int {
	t.Helper()
	recs, err := st.ListRecords(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return len(recs)
}

func TestRouterHealthz(t *testing.T) {
	env := newTestEnv(t, model.DefaultRules, pinger{})
	w := env.do(http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestRouterReadyz(t *testing.T) {
	tests := []struct {
		name       string
		classifier model.Classifier
		db         HealthChecker
		code       int
		wantDB     string
	}{
		{"memory store", model.DefaultRules, nil, http.StatusOK, "disabled"},
		{"healthy db", model.DefaultRules, pinger{}, http.StatusOK, "ok"},
		{"db down", model.DefaultRules, pinger{err: errors.New("refused")}, http.StatusServiceUnavailable, "unhealthy: refused"},
		{"no model", nil, pinger{}, http.StatusServiceUnavailable, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.classifier, tt.db)
			w := env.do(http.MethodGet, "/readyz", "")
			if w.Code != tt.code {
				t.Fatalf("expected %d, got %d (%s)", tt.code, w.Code, w.Body.String())
			}
			var body map[string]string
			decode(t, w, &body)
			if body["db"] != tt.wantDB {
				t.Fatalf("expected db %q, got %q", tt.wantDB, body["db"])
			}
		})
	}
}

func TestPredictBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore(nil)
	router := NewRouter(Deps{
		Predictions:  prediction.NewService(model.DefaultRules, st),
		Store:        st,
		Logger:       zerolog.Nop(),
		MaxBodyBytes: int64(len(scenarioJSON)),
	})
	post := func(body string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/predict_api", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := post(scenarioJSON); code != http.StatusOK {
		t.Fatalf("body at the limit: expected 200, got %d", code)
	}
	oversized := strings.TrimSuffix(scenarioJSON, "}") + `,"p_name":"Alice"}`
	if code := post(oversized); code != http.StatusRequestEntityTooLarge {
		t.Fatalf("body over the limit: expected 413, got %d", code)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, model.DefaultRules, nil)
	if err := env.store.CreateUser(context.Background(), store.User{Username: "alice", Password: "pw", Role: store.RolePatient}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		body     string
		success  bool
		redirect string
		message  string
	}{
		{"doctor default role", `{"username":"doctor","password":"doctor123"}`, true, "home.html", ""},
		{"doctor explicit role", `{"username":"doctor","password":"doctor123","role":"Doctor"}`, true, "home.html", ""},
		{"patient", `{"username":"alice","password":"pw","role":"Patient"}`, true, "patient_dashboard.html", ""},
		{"wrong password", `{"username":"doctor","password":"nope"}`, false, "", "Invalid doctor credentials"},
		{"role mismatch", `{"username":"alice","password":"pw","role":"Doctor"}`, false, "", "Invalid doctor credentials"},
		{"unknown patient", `{"username":"bob","password":"pw","role":"Patient"}`, false, "", "Invalid patient credentials"},
		{"bad role", `{"username":"doctor","password":"doctor123","role":"Admin"}`, false, "", "Invalid role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/login", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			var body map[string]any
			decode(t, w, &body)
			if body["success"] != tt.success {
				t.Fatalf("expected success=%v, got %v", tt.success, body)
			}
			if tt.success && body["redirect"] != tt.redirect {
				t.Fatalf("expected redirect %q, got %v", tt.redirect, body["redirect"])
			}
			if !tt.success && body["message"] != tt.message {
				t.Fatalf("expected message %q, got %v", tt.message, body["message"])
			}
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		w := env.do(http.MethodPost, "/login", `{"username":`)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestPredictWithoutUsername(t *testing.T) {
	env := newTestEnv(t, shippedForest(t), nil)
	before := recordCount(t, env.store)

	w := env.do(http.MethodPost, "/predict_api", scenarioJSON)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var body map[string]any
	decode(t, w, &body)
	if len(body) != 2 || body["prediction"] != float64(0) || body["risk_score"] != float64(49) {
		t.Fatalf("unexpected body %v", body)
	}
	if recordCount(t, env.store) != before {
		t.Fatal("prediction without username must not be recorded")
	}
}

func TestPredictRecordsNewPatient(t *testing.T) {
	env := newTestEnv(t, shippedForest(t), nil)
	payload := strings.TrimSuffix(scenarioJSON, "}") +
		`,"patientUsername":"alice","patientPassword":"pw","p_name":"Alice Smith"}`

	w := env.do(http.MethodPost, "/predict_api", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	w = env.do(http.MethodGet, "/get_records?patient_username=alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var recs []map[string]any
	decode(t, w, &recs)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records for a new patient, got %d", len(recs))
	}
	// History is written after the real record, so the real one is last.
	current := recs[len(recs)-1]
	if current["name"] != "Alice Smith" || current["sex"] != "Male" || current["score"] != float64(49) {
		t.Fatalf("unexpected record %v", current)
	}
	details, ok := current["details"].(map[string]any)
	if !ok {
		t.Fatalf("details should be a JSON object, got %T", current["details"])
	}
	if _, leaked := details["patientPassword"]; leaked {
		t.Fatal("password must not be stored in details")
	}
	head, ok := recs[0]["details"].(map[string]any)
	if !ok || head["trestbps"] == nil || head["chol"] == nil || head["thalach"] == nil {
		t.Fatalf("latest record should expose vitals at the top level, got %v", recs[0]["details"])
	}

	w = env.do(http.MethodPost, "/login", `{"username":"alice","password":"pw","role":"Patient"}`)
	if !strings.Contains(w.Body.String(), "patient_dashboard.html") {
		t.Fatalf("new patient should be able to log in, got %s", w.Body.String())
	}
}

func TestPredictErrors(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		env := newTestEnv(t, model.DefaultRules, nil)
		w := env.do(http.MethodPost, "/predict_api", `{"age":63,"sex":"abc"}`)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		var body map[string]string
		decode(t, w, &body)
		if !strings.HasPrefix(body["error"], "sex") {
			t.Fatalf("expected error naming sex, got %q", body["error"])
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		env := newTestEnv(t, model.DefaultRules, nil)
		w := env.do(http.MethodPost, "/predict_api", `[1,2`)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("model unavailable", func(t *testing.T) {
		env := newTestEnv(t, nil, nil)
		w := env.do(http.MethodPost, "/predict_api", scenarioJSON)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "model not loaded") {
			t.Fatalf("unexpected body %s", w.Body.String())
		}
	})
}

func TestRecordsAPI(t *testing.T) {
	env := newTestEnv(t, model.DefaultRules, nil)

	w := env.do(http.MethodPost, "/api/records",
		`{"patient_username":"bob","name":"Bob","age":50,"sex":"Male","prediction":1,"score":72,"details":{"note":"manual"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var created struct {
		ID int64 `json:"id"`
	}
	decode(t, w, &created)
	if created.ID == 0 {
		t.Fatal("expected record id")
	}

	w = env.do(http.MethodGet, "/api/records", "")
	var recs []map[string]any
	decode(t, w, &recs)
	if len(recs) != 1 || recs[0]["date"] == "" || recs[0]["score"] != float64(72) {
		t.Fatalf("unexpected records %v", recs)
	}

	for _, body := range []string{
		`{"name":"Bob","age":50,"sex":"Other","prediction":1,"score":72}`,
		`{"name":"Bob","age":50,"sex":"Male","prediction":2,"score":72}`,
		`{"name":"Bob","age":50,"sex":"Male","prediction":1,"score":101}`,
		`{"age":50,"sex":"Male","prediction":1,"score":72}`,
	} {
		if w := env.do(http.MethodPost, "/api/records", body); w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, w.Code)
		}
	}

	id := strconv.FormatInt(created.ID, 10)
	if w := env.do(http.MethodDelete, "/api/records/"+id, ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := env.do(http.MethodDelete, "/api/records/"+id, ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", w.Code)
	}
	if w := env.do(http.MethodDelete, "/api/records/abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", w.Code)
	}
	if recordCount(t, env.store) != 0 {
		t.Fatal("record should be gone")
	}
}

func TestRecordDetailsFallBackToString(t *testing.T) {
	env := newTestEnv(t, model.DefaultRules, nil)
	if _, err := env.store.CreateRecord(context.Background(), store.Record{
		Name: "Legacy", Sex: "Female", Date: "2024-01-01", Details: "not json",
	}); err != nil {
		t.Fatal(err)
	}
	w := env.do(http.MethodGet, "/get_records", "")
	var recs []map[string]any
	decode(t, w, &recs)
	if len(recs) != 1 || recs[0]["details"] != "not json" {
		t.Fatalf("unexpected records %v", recs)
	}
}
