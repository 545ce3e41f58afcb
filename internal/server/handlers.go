package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Skufu/HeartGuard/internal/features"
	"github.com/Skufu/HeartGuard/internal/model"
	"github.com/Skufu/HeartGuard/internal/prediction"
	"github.com/Skufu/HeartGuard/internal/store"
)

// Pages the front end navigates to after a successful login.
var loginRedirects = map[store.Role]string{
	store.RoleDoctor:  "home.html",
	store.RolePatient: "patient_dashboard.html",
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type createRecordRequest struct {
	PatientUsername string          `json:"patient_username"`
	Name            string          `json:"name" binding:"required"`
	Age             int             `json:"age" binding:"gte=0"`
	Sex             string          `json:"sex" binding:"required,oneof=Male Female"`
	Prediction      *int            `json:"prediction" binding:"required,oneof=0 1"`
	Score           *int            `json:"score" binding:"required,min=0,max=100"`
	Date            string          `json:"date"`
	Details         json.RawMessage `json:"details"`
}

// recordResponse is a Record with details expanded back into JSON.
type recordResponse struct {
	ID              int64  `json:"id"`
	PatientUsername string `json:"patient_username"`
	Name            string `json:"name"`
	Age             int    `json:"age"`
	Sex             string `json:"sex"`
	Prediction      int    `json:"prediction"`
	Score           int    `json:"score"`
	Date            string `json:"date"`
	Details         any    `json:"details"`
}

func newRecordResponse(r store.Record) recordResponse {
	var details any = r.Details
	if json.Valid([]byte(r.Details)) {
		details = json.RawMessage(r.Details)
	}
	return recordResponse{
		ID:              r.ID,
		PatientUsername: r.PatientUsername,
		Name:            r.Name,
		Age:             r.Age,
		Sex:             r.Sex,
		Prediction:      r.Prediction,
		Score:           r.Score,
		Date:            r.Date,
		Details:         details,
	}
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err, gin.H{"success": false, "message": "invalid payload"})
		return
	}

	role := store.RoleDoctor
	if r := strings.TrimSpace(req.Role); r != "" {
		role = store.Role(r)
	}
	if !role.Valid() {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "Invalid role"})
		return
	}

	_, ok, err := h.store.Authenticate(c.Request.Context(), req.Username, req.Password, role)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "Invalid " + strings.ToLower(string(role)) + " credentials",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "redirect": loginRedirects[role]})
}

func (h *handlers) predict(c *gin.Context) {
	if !h.predictions.Available() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": model.ErrModelUnavailable.Error()})
		return
	}

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.badBody(c, err, gin.H{"error": "invalid payload"})
		return
	}

	out, err := h.predictions.Predict(c.Request.Context(), payload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"prediction": out.Prediction,
		"risk_score": out.RiskScore,
	})
}

func (h *handlers) listRecords(c *gin.Context) {
	var (
		records []store.Record
		err     error
	)
	if patient := strings.TrimSpace(c.Query("patient_username")); patient != "" {
		records, err = h.store.ListRecordsByPatient(c.Request.Context(), patient)
	} else {
		records, err = h.store.ListRecords(c.Request.Context())
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	res := make([]recordResponse, 0, len(records))
	for _, r := range records {
		res = append(res, newRecordResponse(r))
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) createRecord(c *gin.Context) {
	var req createRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err, gin.H{"error": err.Error()})
		return
	}

	details := "{}"
	if len(req.Details) > 0 {
		details = string(req.Details)
	}
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = time.Now().Format(prediction.DateLayout)
	}

	id, err := h.store.CreateRecord(c.Request.Context(), store.Record{
		PatientUsername: strings.TrimSpace(req.PatientUsername),
		Name:            req.Name,
		Age:             req.Age,
		Sex:             req.Sex,
		Prediction:      *req.Prediction,
		Score:           *req.Score,
		Date:            date,
		Details:         details,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *handlers) deleteRecord(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid record ID format"})
		return
	}
	ok, err := h.store.DeleteRecord(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Record not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Record deleted successfully"})
}

// fail converts a service or store error into a JSON response.
func (h *handlers) fail(c *gin.Context, err error) {
	var verr *features.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, model.ErrModelUnavailable):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// badBody answers a request whose body could not be bound.
func (h *handlers) badBody(c *gin.Context, err error, body gin.H) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}
	c.JSON(http.StatusBadRequest, body)
}
