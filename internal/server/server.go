// Package server exposes the prediction service and record store over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Skufu/HeartGuard/internal/logging"
	"github.com/Skufu/HeartGuard/internal/prediction"
	"github.com/Skufu/HeartGuard/internal/store"
)

// HealthChecker is implemented by the database pool.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the router needs. DB may be nil when the
// in-memory store is in use.
type Deps struct {
	Predictions  *prediction.Service
	Store        store.Store
	DB           HealthChecker
	Logger       zerolog.Logger
	CORSOrigins  []string
	MaxBodyBytes int64
}

type handlers struct {
	predictions *prediction.Service
	store       store.Store
	log         zerolog.Logger
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(d Deps) *gin.Engine {
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 1 << 20
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(
		logging.RequestID(),
		logging.Requests(d.Logger),
		gin.Recovery(),
		limitBodySize(d.MaxBodyBytes),
		cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization", logging.RequestIDHeader},
			MaxAge:       12 * time.Hour,
		}),
	)

	h := &handlers{predictions: d.Predictions, store: d.Store, log: d.Logger}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", h.readyz(d.DB))

	router.POST("/login", h.login)
	router.POST("/predict_api", h.predict)
	router.GET("/get_records", h.listRecords)

	api := router.Group("/api/records")
	api.GET("", h.listRecords)
	api.POST("", h.createRecord)
	api.DELETE("/:id", h.deleteRecord)

	return router
}

func (h *handlers) readyz(db HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		modelStatus := "loaded"
		if !h.predictions.Available() {
			modelStatus = "unavailable"
		}

		if db == nil {
			status, code := "ok", http.StatusOK
			if modelStatus != "loaded" {
				status, code = "degraded", http.StatusServiceUnavailable
			}
			c.JSON(code, gin.H{"status": status, "db": "disabled", "model": modelStatus})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"db":     "unhealthy: " + err.Error(),
				"model":  modelStatus,
			})
			return
		}
		if modelStatus != "loaded" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "ok", "model": modelStatus})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "ok", "model": modelStatus})
	}
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
