// Package prediction runs production inputs through the scoring engine and
// tracks them from submission to delivery.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/aluoptimize/aluoptimize/internal/models"
	"github.com/aluoptimize/aluoptimize/internal/repository"
	"github.com/aluoptimize/aluoptimize/internal/scoring"
	"github.com/aluoptimize/aluoptimize/internal/services/notification"
	"github.com/aluoptimize/aluoptimize/pkg/events"
	"github.com/aluoptimize/aluoptimize/pkg/money"
	"github.com/google/uuid"
)

// ConfidenceScore is recorded with every prediction log
const ConfidenceScore = 0.92

var (
	ErrNotFound    = errors.New("not found")
	ErrWrongStatus = errors.New("input is not in a state that allows this")
	ErrInvalid     = errors.New("invalid request")
)

// Store is the persistence the service needs
type Store interface {
	CreateInput(ctx context.Context, in *models.ProductionInput) error
	GetInput(ctx context.Context, id uuid.UUID) (*models.ProductionInput, error)
	ListInputs(ctx context.Context, f repository.InputFilter) ([]models.ProductionInput, error)
	Reject(ctx context.Context, id, reviewer uuid.UUID) error
	SavePrediction(ctx context.Context, rec repository.PredictionRecord) error
	MarkSent(ctx context.Context, inputID uuid.UUID) error
	ListOutputs(ctx context.Context, f repository.OutputFilter) ([]models.ProductionOutput, error)
	GetOutput(ctx context.Context, id uuid.UUID) (*models.ProductionOutput, error)
	UpdateActual(ctx context.Context, out *models.ProductionOutput) error
	ListPredictionLogs(ctx context.Context, page repository.Page) ([]models.PredictionLog, error)
}

// Notifier delivers user notifications
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, notificationType, title, message string, data interface{}) (*notification.Notification, error)
}

// Actor is the caller of a service method
type Actor struct {
	UserID uuid.UUID
	Staff  bool
}

// Result is returned by Predict and Preview
type Result struct {
	InputID          *uuid.UUID      `json:"input_id,omitempty"`
	OutputID         *uuid.UUID      `json:"output_id,omitempty"`
	ModelVersion     string          `json:"model_version"`
	ConfidenceScore  float64         `json:"confidence_score"`
	Outcome          scoring.Outcome `json:"outcome"`
	Severity         string          `json:"severity"`
	Recommendation   string          `json:"recommendation"`
	EstimatedSavings money.Amount    `json:"estimated_savings"`
	Q10              float64         `json:"q10_prediction"`
	Q90              float64         `json:"q90_prediction"`
	ExecutionTimeMS  int64           `json:"execution_time_ms"`
}

// Service coordinates scoring, persistence, notifications and events
type Service struct {
	store      Store
	notifier   Notifier
	publisher  events.Publisher
	thresholds scoring.ThresholdConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a new prediction service
func NewService(store Store, notifier Notifier, publisher events.Publisher, thresholds scoring.ThresholdConfig, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		notifier:   notifier,
		publisher:  publisher,
		thresholds: thresholds,
		logger:     logger.With("component", "prediction"),
		now:        time.Now,
	}
}

// Thresholds returns the active scoring configuration
func (s *Service) Thresholds() scoring.ThresholdConfig {
	return s.thresholds
}

// Submit validates and stores a new pending input
func (s *Service) Submit(ctx context.Context, actor Actor, p scoring.ProcessParameters) (*models.ProductionInput, error) {
	if err := scoring.ValidateParameters(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	submitter := actor.UserID
	in := &models.ProductionInput{
		ProductionLine:       p.ProductionLine,
		FeedRate:             p.FeedRate,
		Temperature:          p.Temperature,
		Pressure:             p.Pressure,
		PowerConsumption:     p.PowerConsumption,
		AnodeEffect:          p.AnodeEffect,
		BathRatio:            p.BathRatio,
		AluminaConcentration: p.AluminaConcentration,
		SubmittedBy:          &submitter,
	}
	if err := s.store.CreateInput(ctx, in); err != nil {
		return nil, err
	}

	s.logger.Info("input submitted", "input_id", in.ID, "line", in.ProductionLine, "user_id", actor.UserID)
	s.publish(ctx, events.TypeInputSubmitted, in.ID, actor.UserID, in)
	return in, nil
}

// GetInput returns an input the actor may see
func (s *Service) GetInput(ctx context.Context, actor Actor, id uuid.UUID) (*models.ProductionInput, error) {
	in, err := s.store.GetInput(ctx, id)
	if err != nil {
		return nil, err
	}
	if in == nil || (!actor.Staff && !in.OwnedBy(actor.UserID)) {
		return nil, ErrNotFound
	}
	return in, nil
}

// ListInputs lists inputs; non-staff only see their own
func (s *Service) ListInputs(ctx context.Context, actor Actor, f repository.InputFilter) ([]models.ProductionInput, error) {
	if f.ProductionLine != "" && !f.ProductionLine.Valid() {
		return nil, fmt.Errorf("%w: unknown production line %q", ErrInvalid, f.ProductionLine)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, f.Status)
	}
	if !actor.Staff {
		uid := actor.UserID
		f.SubmittedBy = &uid
	}
	return s.store.ListInputs(ctx, f)
}

// Preview scores parameters without storing anything. strategy may be empty.
func (s *Service) Preview(p scoring.ProcessParameters, strategy string) (*Result, error) {
	if err := scoring.ValidateParameters(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg := s.thresholds
	if strategy != "" {
		parsed, err := scoring.ParseStrategy(strategy)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		cfg.Strategy = parsed
	}

	start := s.now()
	outcome := scoring.Score(p, cfg)
	return s.result(outcome, cfg, start), nil
}

func (s *Service) result(outcome scoring.Outcome, cfg scoring.ThresholdConfig, start time.Time) *Result {
	q10, _, q90 := scoring.Quantiles(outcome.Result.PredictedOutput)
	return &Result{
		ModelVersion:     outcome.Strategy.ModelVersion(),
		ConfidenceScore:  ConfidenceScore,
		Outcome:          outcome.Rounded(),
		Severity:         scoring.Severity(outcome.Result, cfg),
		Recommendation:   scoring.RecommendationText(outcome.Result, outcome.Action, cfg),
		EstimatedSavings: scoring.EstimatedSavings(outcome.Result, cfg),
		Q10:              scoring.Round2(q10),
		Q90:              scoring.Round2(q90),
		ExecutionTimeMS:  s.now().Sub(start).Milliseconds(),
	}
}

// Predict scores a stored input and persists the output, waste record,
// recommendation and audit log atomically. The input becomes approved.
func (s *Service) Predict(ctx context.Context, actor Actor, id uuid.UUID) (*Result, error) {
	in, err := s.store.GetInput(ctx, id)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, ErrNotFound
	}
	if in.Status == models.InputRejected {
		return nil, fmt.Errorf("%w: input was rejected", ErrWrongStatus)
	}

	start := s.now()
	cfg := s.thresholds
	outcome := scoring.Score(in.Parameters(), cfg)
	res := s.result(outcome, cfg, start)
	rounded := res.Outcome

	if outcome.Result.ExceedsFeed {
		s.logger.Warn("predicted output exceeds feed rate",
			"input_id", in.ID, "predicted", rounded.Result.PredictedOutput, "feed_rate", in.FeedRate)
	}

	state, action, reward := outcome.AuditBlobs()
	recordedBy := actor.UserID
	temperature, pressure, energy := in.Temperature, in.Pressure, in.PowerConsumption
	rec := repository.PredictionRecord{
		InputID:    in.ID,
		ApprovedBy: actor.UserID,
		Output: &models.ProductionOutput{
			Strategy:         outcome.Strategy,
			PredictedOutput:  rounded.Result.PredictedOutput,
			OutputQuality:    rounded.Result.OutputQuality,
			EnergyEfficiency: rounded.Result.EnergyEfficiency,
			WasteGenerated:   rounded.Result.WasteAmount,
			ExceedsFeed:      outcome.Result.ExceedsFeed,
		},
		Waste: &models.WasteRecord{
			WasteType:      models.DrossWasteType,
			WasteAmount:    rounded.Result.WasteAmount,
			Unit:           models.UnitKG,
			DateRecorded:   s.now().UTC(),
			ReusePossible:  outcome.Result.EnergyEfficiency > 50,
			RecordedBy:     &recordedBy,
			ProductionLine: in.ProductionLine,
			Temperature:    &temperature,
			Pressure:       &pressure,
			EnergyUsed:     &energy,
		},
		Recommendation: &models.WasteRecommendation{
			RecommendationText: res.Recommendation,
			EstimatedSavings:   res.EstimatedSavings,
			AIGenerated:        true,
		},
		Log: &models.PredictionLog{
			ConfidenceScore: ConfidenceScore,
			Q10Prediction:   res.Q10,
			Q50Prediction:   rounded.Result.PredictedOutput,
			Q90Prediction:   res.Q90,
			ModelVersion:    res.ModelVersion,
			InputFeatures:   models.JSONMap(state),
			State:           models.JSONMap(state),
			Action:          models.JSONMap(action),
			Reward:          models.JSONMap(reward),
			ExecutionTimeMS: res.ExecutionTimeMS,
		},
	}
	if err := s.store.SavePrediction(ctx, rec); err != nil {
		return nil, mapStoreError(err, "input was rejected")
	}

	inputID, outputID := in.ID, rec.Output.ID
	res.InputID, res.OutputID = &inputID, &outputID

	s.logger.Info("prediction generated",
		"input_id", in.ID,
		"line", in.ProductionLine,
		"strategy", outcome.Strategy,
		"efficiency", rounded.Result.EnergyEfficiency,
		"waste", rounded.Result.WasteAmount,
		"reward", rounded.Reward.TotalReward,
		"rules", outcome.Action.Rules,
	)
	s.publish(ctx, events.TypePredictionGenerated, in.ID, actor.UserID, res)
	return res, nil
}

// Send delivers an approved prediction to its submitter
func (s *Service) Send(ctx context.Context, actor Actor, id uuid.UUID) (*models.ProductionInput, error) {
	if err := s.store.MarkSent(ctx, id); err != nil {
		return nil, mapStoreError(err, "only approved inputs can be sent")
	}

	in, err := s.store.GetInput(ctx, id)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, ErrNotFound
	}

	if in.SubmittedBy != nil {
		_, err := s.notifier.Notify(ctx, *in.SubmittedBy, notification.TypePredictionReady,
			"Prediction ready",
			fmt.Sprintf("Your %s production input has been reviewed and its prediction is available.", in.ProductionLine.Label()),
			map[string]string{"input_id": in.ID.String()})
		if err != nil {
			s.logger.Warn("failed to notify submitter", "input_id", in.ID, "error", err)
		}
	}

	s.logger.Info("prediction sent", "input_id", in.ID, "by", actor.UserID)
	s.publish(ctx, events.TypePredictionSent, in.ID, actor.UserID, in)
	return in, nil
}

// Reject refuses a pending input
func (s *Service) Reject(ctx context.Context, actor Actor, id uuid.UUID) error {
	if err := s.store.Reject(ctx, id, actor.UserID); err != nil {
		return mapStoreError(err, "only pending inputs can be rejected")
	}
	s.logger.Info("input rejected", "input_id", id, "by", actor.UserID)
	s.publish(ctx, events.TypeInputRejected, id, actor.UserID, map[string]string{"input_id": id.String()})
	return nil
}

// ListOutputs lists outputs; non-staff only see delivered outputs of their own inputs
func (s *Service) ListOutputs(ctx context.Context, actor Actor, page repository.Page) ([]models.ProductionOutput, error) {
	f := repository.OutputFilter{Page: page}
	if !actor.Staff {
		uid := actor.UserID
		f.OwnerID = &uid
		f.SentOnly = true
	}
	return s.store.ListOutputs(ctx, f)
}

// RecordActual stores the measured output of a run and its deviation
func (s *Service) RecordActual(ctx context.Context, outputID uuid.UUID, actual float64) (*models.ProductionOutput, error) {
	if math.IsNaN(actual) || math.IsInf(actual, 0) || actual < 0 {
		return nil, fmt.Errorf("%w: actual_output must be a non-negative number", ErrInvalid)
	}
	out, err := s.store.GetOutput(ctx, outputID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}

	out.SetActual(actual)
	if err := s.store.UpdateActual(ctx, out); err != nil {
		return nil, mapStoreError(err, "")
	}
	return out, nil
}

// ListLogs returns the newest prediction logs
func (s *Service) ListLogs(ctx context.Context, page repository.Page) ([]models.PredictionLog, error) {
	return s.store.ListPredictionLogs(ctx, page)
}

func (s *Service) publish(ctx context.Context, eventType string, aggregateID, userID uuid.UUID, data interface{}) {
	e, err := events.New(eventType, aggregateID, userID, data)
	if err == nil {
		err = s.publisher.Publish(ctx, e)
	}
	if err != nil {
		s.logger.Warn("failed to publish event", "type", eventType, "error", err)
	}
}

func mapStoreError(err error, conflict string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s", ErrWrongStatus, conflict)
	}
	return err
}
