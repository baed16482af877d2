package handlers

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/aluoptimize/aluoptimize/internal/middleware"
	"github.com/aluoptimize/aluoptimize/internal/models"
	"github.com/aluoptimize/aluoptimize/internal/repository"
	"github.com/aluoptimize/aluoptimize/internal/scoring"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WasteStore persists waste records and their recommendations
type WasteStore interface {
	Create(ctx context.Context, w *models.WasteRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WasteRecord, error)
	Update(ctx context.Context, w *models.WasteRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f repository.WasteFilter) ([]models.WasteRecord, error)
	ListRecommendations(ctx context.Context, f repository.WasteFilter) ([]models.WasteRecommendation, error)
}

// WasteHandler handles waste records
type WasteHandler struct {
	store  WasteStore
	logger *slog.Logger
}

// NewWasteHandler creates a new waste handler
func NewWasteHandler(store WasteStore, logger *slog.Logger) *WasteHandler {
	return &WasteHandler{store: store, logger: logger}
}

type wasteRequest struct {
	ProductionInputID *uuid.UUID             `json:"production_input_id"`
	WasteType         string                 `json:"waste_type"`
	WasteAmount       *float64               `json:"waste_amount" binding:"required"`
	Unit              models.WasteUnit       `json:"unit"`
	DateRecorded      *time.Time             `json:"date_recorded"`
	ReusePossible     bool                   `json:"reuse_possible"`
	ProductionLine    scoring.ProductionLine `json:"production_line" binding:"required"`
	Temperature       *float64               `json:"temperature"`
	Pressure          *float64               `json:"pressure"`
	EnergyUsed        *float64               `json:"energy_used"`
}

// apply validates the request and copies it onto w
func (r wasteRequest) apply(w *models.WasteRecord) string {
	amount := *r.WasteAmount
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return "waste_amount must be a non-negative number"
	}
	if !r.ProductionLine.Valid() {
		return "production_line must be one of LINE_A, LINE_B, LINE_C"
	}
	unit := models.WasteUnit(strings.ToUpper(string(r.Unit)))
	if unit == "" {
		unit = models.UnitKG
	}
	if !unit.Valid() {
		return "unit must be one of KG, TON, L"
	}
	wasteType := strings.TrimSpace(r.WasteType)
	if wasteType == "" {
		wasteType = models.DrossWasteType
	}

	w.WasteType = wasteType
	w.WasteAmount = amount
	w.Unit = unit
	w.ReusePossible = r.ReusePossible
	w.ProductionLine = r.ProductionLine
	w.Temperature = r.Temperature
	w.Pressure = r.Pressure
	w.EnergyUsed = r.EnergyUsed
	if r.DateRecorded != nil {
		w.DateRecorded = r.DateRecorded.UTC()
	}
	return ""
}

// filter scopes listings: staff see everything, users only delivered records of their own runs
func (h *WasteHandler) filter(c *gin.Context) (repository.WasteFilter, bool) {
	page, ok := pageFromQuery(c)
	if !ok {
		return repository.WasteFilter{}, false
	}
	f := repository.WasteFilter{
		ProductionLine: scoring.ProductionLine(c.Query("production_line")),
		Page:           page,
	}
	if f.ProductionLine != "" && !f.ProductionLine.Valid() {
		badRequest(c, "unknown production_line")
		return f, false
	}
	if !middleware.IsStaff(c) {
		uid, _ := middleware.GetUserID(c)
		f.OwnerID = &uid
		f.SentOnly = true
	}
	return f, true
}

// List lists waste records
func (h *WasteHandler) List(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}

	records, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"waste_records": records, "count": len(records)})
}

// ListRecommendations lists waste recommendations
func (h *WasteHandler) ListRecommendations(c *gin.Context) {
	f, ok := h.filter(c)
	if !ok {
		return
	}

	recs, err := h.store.ListRecommendations(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs, "count": len(recs)})
}

// Create records waste by hand
func (h *WasteHandler) Create(c *gin.Context) {
	var req wasteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "waste_amount and production_line are required")
		return
	}

	uid, _ := middleware.GetUserID(c)
	w := &models.WasteRecord{RecordedBy: &uid, ProductionInputID: req.ProductionInputID}
	if msg := req.apply(w); msg != "" {
		badRequest(c, msg)
		return
	}

	if err := h.store.Create(c.Request.Context(), w); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// Update rewrites a waste record
func (h *WasteHandler) Update(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req wasteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "waste_amount and production_line are required")
		return
	}

	w, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if w == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "waste record not found"})
		return
	}
	if msg := req.apply(w); msg != "" {
		badRequest(c, msg)
		return
	}

	if err := h.store.Update(c.Request.Context(), w); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// Delete removes a waste record
func (h *WasteHandler) Delete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
