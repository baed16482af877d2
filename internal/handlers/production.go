package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aluoptimize/aluoptimize/internal/models"
	"github.com/aluoptimize/aluoptimize/internal/repository"
	"github.com/aluoptimize/aluoptimize/internal/scoring"
	"github.com/aluoptimize/aluoptimize/internal/services/prediction"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Predictions is the prediction service used by ProductionHandler
type Predictions interface {
	Submit(ctx context.Context, actor prediction.Actor, p scoring.ProcessParameters) (*models.ProductionInput, error)
	GetInput(ctx context.Context, actor prediction.Actor, id uuid.UUID) (*models.ProductionInput, error)
	ListInputs(ctx context.Context, actor prediction.Actor, f repository.InputFilter) ([]models.ProductionInput, error)
	Preview(p scoring.ProcessParameters, strategy string) (*prediction.Result, error)
	Predict(ctx context.Context, actor prediction.Actor, id uuid.UUID) (*prediction.Result, error)
	Send(ctx context.Context, actor prediction.Actor, id uuid.UUID) (*models.ProductionInput, error)
	Reject(ctx context.Context, actor prediction.Actor, id uuid.UUID) error
	ListOutputs(ctx context.Context, actor prediction.Actor, page repository.Page) ([]models.ProductionOutput, error)
	RecordActual(ctx context.Context, outputID uuid.UUID, actual float64) (*models.ProductionOutput, error)
	ListLogs(ctx context.Context, page repository.Page) ([]models.PredictionLog, error)
}

// ProductionHandler handles production inputs, predictions and outputs
type ProductionHandler struct {
	predictions Predictions
	logger      *slog.Logger
}

// NewProductionHandler creates a new production handler
func NewProductionHandler(predictions Predictions, logger *slog.Logger) *ProductionHandler {
	return &ProductionHandler{predictions: predictions, logger: logger}
}

// parametersRequest is the JSON body of a production run. anode_effect_frequency
// is accepted as another name for anode_effect.
type parametersRequest struct {
	ProductionLine       scoring.ProductionLine `json:"production_line" binding:"required"`
	FeedRate             *float64               `json:"feed_rate" binding:"required"`
	Temperature          *float64               `json:"temperature" binding:"required"`
	Pressure             *float64               `json:"pressure" binding:"required"`
	PowerConsumption     *float64               `json:"power_consumption" binding:"required"`
	AnodeEffect          *float64               `json:"anode_effect"`
	AnodeEffectFrequency *float64               `json:"anode_effect_frequency"`
	BathRatio            *float64               `json:"bath_ratio" binding:"required"`
	AluminaConcentration *float64               `json:"alumina_concentration" binding:"required"`
	Strategy             string                 `json:"strategy"`
}

func (r parametersRequest) parameters() (scoring.ProcessParameters, bool) {
	anode := r.AnodeEffect
	if anode == nil {
		anode = r.AnodeEffectFrequency
	}
	if anode == nil {
		return scoring.ProcessParameters{}, false
	}
	return scoring.ProcessParameters{
		ProductionLine:       r.ProductionLine,
		FeedRate:             *r.FeedRate,
		Temperature:          *r.Temperature,
		Pressure:             *r.Pressure,
		PowerConsumption:     *r.PowerConsumption,
		AnodeEffect:          *anode,
		BathRatio:            *r.BathRatio,
		AluminaConcentration: *r.AluminaConcentration,
	}, true
}

func bindParameters(c *gin.Context) (parametersRequest, scoring.ProcessParameters, bool) {
	var req parametersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "production_line, feed_rate, temperature, pressure, power_consumption, anode_effect, bath_ratio and alumina_concentration are required")
		return req, scoring.ProcessParameters{}, false
	}
	p, ok := req.parameters()
	if !ok {
		badRequest(c, "anode_effect is required")
		return req, p, false
	}
	return req, p, true
}

type actualRequest struct {
	ActualOutput *float64 `json:"actual_output" binding:"required"`
}

// Submit stores a new production input
func (h *ProductionHandler) Submit(c *gin.Context) {
	_, p, ok := bindParameters(c)
	if !ok {
		return
	}

	in, err := h.predictions.Submit(c.Request.Context(), actorOf(c), p)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, in)
}

// ListInputs lists inputs visible to the caller
func (h *ProductionHandler) ListInputs(c *gin.Context) {
	page, ok := pageFromQuery(c)
	if !ok {
		return
	}
	h.listInputs(c, repository.InputFilter{
		ProductionLine: scoring.ProductionLine(c.Query("production_line")),
		Status:         models.InputStatus(c.Query("status")),
		Page:           page,
	})
}

// ListPending lists inputs awaiting review
func (h *ProductionHandler) ListPending(c *gin.Context) {
	page, ok := pageFromQuery(c)
	if !ok {
		return
	}
	h.listInputs(c, repository.InputFilter{
		ProductionLine: scoring.ProductionLine(c.Query("production_line")),
		Status:         models.InputPending,
		Page:           page,
	})
}

func (h *ProductionHandler) listInputs(c *gin.Context, f repository.InputFilter) {
	inputs, err := h.predictions.ListInputs(c.Request.Context(), actorOf(c), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inputs": inputs, "count": len(inputs)})
}

// GetInput returns one input
func (h *ProductionHandler) GetInput(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	in, err := h.predictions.GetInput(c.Request.Context(), actorOf(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, in)
}

// Predict scores a stored input
func (h *ProductionHandler) Predict(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	res, err := h.predictions.Predict(c.Request.Context(), actorOf(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Send delivers an approved prediction to its submitter
func (h *ProductionHandler) Send(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	in, err := h.predictions.Send(c.Request.Context(), actorOf(c), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, in)
}

// Reject refuses a pending input
func (h *ProductionHandler) Reject(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	if err := h.predictions.Reject(c.Request.Context(), actorOf(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": models.InputRejected})
}

// ListOutputs lists prediction outputs visible to the caller
func (h *ProductionHandler) ListOutputs(c *gin.Context) {
	page, ok := pageFromQuery(c)
	if !ok {
		return
	}

	outputs, err := h.predictions.ListOutputs(c.Request.Context(), actorOf(c), page)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outputs": outputs, "count": len(outputs)})
}

// RecordActual stores the measured output of a run
func (h *ProductionHandler) RecordActual(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req actualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "actual_output is required")
		return
	}

	out, err := h.predictions.RecordActual(c.Request.Context(), id, *req.ActualOutput)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ListLogs returns prediction audit logs
func (h *ProductionHandler) ListLogs(c *gin.Context) {
	page, ok := pageFromQuery(c)
	if !ok {
		return
	}

	logs, err := h.predictions.ListLogs(c.Request.Context(), page)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// Preview scores parameters without storing them
func (h *ProductionHandler) Preview(c *gin.Context) {
	req, p, ok := bindParameters(c)
	if !ok {
		return
	}

	res, err := h.predictions.Preview(p, req.Strategy)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
