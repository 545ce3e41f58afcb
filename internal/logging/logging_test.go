package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNewLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "json")
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"message":"shown"`) {
		t.Fatalf("unexpected output %q", out)
	}

	buf.Reset()
	fallback := New(&buf, "bogus", "json")
	fallback.Info().Msg("default level")
	if !strings.Contains(buf.String(), "default level") {
		t.Fatal("unknown level should fall back to info")
	}
}

func TestRequestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	router := gin.New()
	router.Use(RequestID(), Requests(New(&buf, "info", "json")))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	t.Run("generates id", func(t *testing.T) {
		buf.Reset()
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
		router.ServeHTTP(w, req)
		rid := w.Header().Get(RequestIDHeader)
		if rid == "" {
			t.Fatal("expected generated request id")
		}
		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
		}
		if line["request_id"] != rid || line["path"] != "/ping" || line["status"] != float64(http.StatusNoContent) {
			t.Fatalf("unexpected log line %v", line)
		}
	})

	t.Run("propagates id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		router.ServeHTTP(w, req)
		if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
			t.Fatalf("expected propagated id, got %q", got)
		}
	})
}
