package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aluoptimize/aluoptimize/internal/models"
	"github.com/aluoptimize/aluoptimize/internal/scoring"
	"github.com/google/uuid"
)

var inputColumns = []string{
	"i.id", "i.production_line", "i.feed_rate", "i.temperature", "i.pressure",
	"i.power_consumption", "i.anode_effect", "i.bath_ratio", "i.alumina_concentration",
	"i.status", "i.submitted_by", "i.approved_by", "i.sent_to_user", "i.sent_at",
	"i.created_at", "i.updated_at",
}

var outputColumns = []string{
	"o.id", "o.input_id", "o.strategy", "o.predicted_output", "o.actual_output",
	"o.output_quality", "o.energy_efficiency", "o.waste_generated", "o.exceeds_feed",
	"o.deviation_percentage", "o.sent_to_user", "o.created_at", "o.updated_at",
}

var logColumns = []string{
	"l.id", "l.output_id", "l.confidence_score", "l.q10_prediction", "l.q50_prediction",
	"l.q90_prediction", "l.model_version", "l.input_features", "l.state", "l.action",
	"l.reward", "l.execution_time_ms", "l.created_at",
}

// InputFilter narrows an input listing. Zero values do not filter.
type InputFilter struct {
	SubmittedBy    *uuid.UUID
	ProductionLine scoring.ProductionLine
	Status         models.InputStatus
	Page           Page
}

// OutputFilter narrows an output listing. Owner and SentOnly restrict
// non-staff callers to their delivered results.
type OutputFilter struct {
	OwnerID  *uuid.UUID
	SentOnly bool
	Page     Page
}

// PredictionRecord is everything one prediction writes
type PredictionRecord struct {
	InputID        uuid.UUID
	ApprovedBy     uuid.UUID
	Output         *models.ProductionOutput
	Waste          *models.WasteRecord
	Recommendation *models.WasteRecommendation
	Log            *models.PredictionLog
}

// ProductionRepository handles inputs, outputs and prediction logs
type ProductionRepository struct {
	db *sql.DB
}

// NewProductionRepository creates a new production repository
func NewProductionRepository(db *sql.DB) *ProductionRepository {
	return &ProductionRepository{db: db}
}

// CreateInput stores a new pending input
func (r *ProductionRepository) CreateInput(ctx context.Context, in *models.ProductionInput) error {
	now := time.Now().UTC()
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	in.Status = models.InputPending
	in.CreatedAt, in.UpdatedAt = now, now

	_, err := execBuilt(ctx, r.db, psql.Insert("production_inputs").
		Columns("id", "production_line", "feed_rate", "temperature", "pressure",
			"power_consumption", "anode_effect", "bath_ratio", "alumina_concentration",
			"status", "submitted_by", "created_at", "updated_at").
		Values(in.ID, string(in.ProductionLine), in.FeedRate, in.Temperature, in.Pressure,
			in.PowerConsumption, in.AnodeEffect, in.BathRatio, in.AluminaConcentration,
			string(in.Status), in.SubmittedBy, in.CreatedAt, in.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create input: %w", err)
	}
	return nil
}

// GetInput retrieves an input by ID
func (r *ProductionRepository) GetInput(ctx context.Context, id uuid.UUID) (*models.ProductionInput, error) {
	row, err := queryRowBuilt(ctx, r.db, psql.Select(inputColumns...).
		From("production_inputs i").Where(sq.Eq{"i.id": id}))
	if err != nil {
		return nil, err
	}
	in, err := scanInput(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get input: %w", err)
	}
	return in, nil
}

// ListInputs returns inputs matching the filter, newest first
func (r *ProductionRepository) ListInputs(ctx context.Context, f InputFilter) ([]models.ProductionInput, error) {
	rows, err := queryBuilt(ctx, r.db, inputListQuery(f))
	if err != nil {
		return nil, fmt.Errorf("failed to list inputs: %w", err)
	}
	defer rows.Close()

	inputs := []models.ProductionInput{}
	for rows.Next() {
		in, err := scanInput(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan input: %w", err)
		}
		inputs = append(inputs, *in)
	}
	return inputs, rows.Err()
}

func inputListQuery(f InputFilter) sq.SelectBuilder {
	b := psql.Select(inputColumns...).From("production_inputs i").OrderBy("i.created_at DESC")
	if f.SubmittedBy != nil {
		b = b.Where(sq.Eq{"i.submitted_by": *f.SubmittedBy})
	}
	if f.ProductionLine != "" {
		b = b.Where(sq.Eq{"i.production_line": string(f.ProductionLine)})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"i.status": string(f.Status)})
	}
	return f.Page.apply(b)
}

// Reject moves a pending input to rejected. It returns ErrConflict when the
// input exists but is no longer pending.
func (r *ProductionRepository) Reject(ctx context.Context, id, reviewer uuid.UUID) error {
	res, err := execBuilt(ctx, r.db, psql.Update("production_inputs").
		Set("status", string(models.InputRejected)).
		Set("approved_by", reviewer).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "status": string(models.InputPending)}))
	if err != nil {
		return fmt.Errorf("failed to reject input: %w", err)
	}
	if err := expectRow(res); err != nil {
		return r.explainMiss(ctx, id)
	}
	return nil
}

// SavePrediction writes the output, waste record, recommendation and log of
// one prediction and approves the input, all in one transaction. Repeated
// predictions overwrite the output, waste record and generated recommendation.
func (r *ProductionRepository) SavePrediction(ctx context.Context, rec PredictionRecord) error {
	now := time.Now().UTC()

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		out := rec.Output
		out.InputID = rec.InputID
		if out.ID == uuid.Nil {
			out.ID = uuid.New()
		}
		out.UpdatedAt = now
		row, err := queryRowBuilt(ctx, tx, psql.Insert("production_outputs").
			Columns("id", "input_id", "strategy", "predicted_output", "output_quality",
				"energy_efficiency", "waste_generated", "exceeds_feed", "created_at", "updated_at").
			Values(out.ID, out.InputID, string(out.Strategy), out.PredictedOutput, out.OutputQuality,
				out.EnergyEfficiency, out.WasteGenerated, out.ExceedsFeed, now, now).
			Suffix(`ON CONFLICT (input_id) DO UPDATE SET
				strategy = EXCLUDED.strategy,
				predicted_output = EXCLUDED.predicted_output,
				output_quality = EXCLUDED.output_quality,
				energy_efficiency = EXCLUDED.energy_efficiency,
				waste_generated = EXCLUDED.waste_generated,
				exceeds_feed = EXCLUDED.exceeds_feed,
				actual_output = NULL,
				deviation_percentage = NULL,
				updated_at = EXCLUDED.updated_at
				RETURNING id, created_at`))
		if err != nil {
			return err
		}
		if err := row.Scan(&out.ID, &out.CreatedAt); err != nil {
			return fmt.Errorf("failed to save output: %w", err)
		}

		w := rec.Waste
		inputID := rec.InputID
		w.ProductionInputID = &inputID
		if w.ID == uuid.Nil {
			w.ID = uuid.New()
		}
		w.UpdatedAt = now
		row, err = queryRowBuilt(ctx, tx, psql.Insert("waste_records").
			Columns("id", "production_input_id", "waste_type", "waste_amount", "unit",
				"date_recorded", "reuse_possible", "recorded_by", "production_line",
				"temperature", "pressure", "energy_used", "created_at", "updated_at").
			Values(w.ID, w.ProductionInputID, w.WasteType, w.WasteAmount, string(w.Unit),
				w.DateRecorded, w.ReusePossible, w.RecordedBy, string(w.ProductionLine),
				w.Temperature, w.Pressure, w.EnergyUsed, now, now).
			Suffix(`ON CONFLICT (production_input_id) DO UPDATE SET
				waste_type = EXCLUDED.waste_type,
				waste_amount = EXCLUDED.waste_amount,
				unit = EXCLUDED.unit,
				date_recorded = EXCLUDED.date_recorded,
				reuse_possible = EXCLUDED.reuse_possible,
				recorded_by = EXCLUDED.recorded_by,
				temperature = EXCLUDED.temperature,
				pressure = EXCLUDED.pressure,
				energy_used = EXCLUDED.energy_used,
				updated_at = EXCLUDED.updated_at
				RETURNING id, created_at`))
		if err != nil {
			return err
		}
		if err := row.Scan(&w.ID, &w.CreatedAt); err != nil {
			return fmt.Errorf("failed to save waste record: %w", err)
		}

		rc := rec.Recommendation
		rc.WasteRecordID = w.ID
		if rc.ID == uuid.Nil {
			rc.ID = uuid.New()
		}
		rc.CreatedAt, rc.UpdatedAt = now, now
		row, err = queryRowBuilt(ctx, tx, recommendationUpsert(rc))
		if err != nil {
			return err
		}
		if err := row.Scan(&rc.ID, &rc.CreatedAt); err != nil {
			return fmt.Errorf("failed to save recommendation: %w", err)
		}

		lg := rec.Log
		lg.OutputID = out.ID
		if lg.ID == uuid.Nil {
			lg.ID = uuid.New()
		}
		lg.CreatedAt = now
		if _, err := execBuilt(ctx, tx, psql.Insert("prediction_logs").
			Columns("id", "output_id", "confidence_score", "q10_prediction", "q50_prediction",
				"q90_prediction", "model_version", "input_features", "state", "action",
				"reward", "execution_time_ms", "created_at").
			Values(lg.ID, lg.OutputID, lg.ConfidenceScore, lg.Q10Prediction, lg.Q50Prediction,
				lg.Q90Prediction, lg.ModelVersion, lg.InputFeatures, lg.State, lg.Action,
				lg.Reward, lg.ExecutionTimeMS, lg.CreatedAt)); err != nil {
			return fmt.Errorf("failed to save prediction log: %w", err)
		}

		res, err := execBuilt(ctx, tx, approveInputQuery(rec.InputID, rec.ApprovedBy, now))
		if err != nil {
			return fmt.Errorf("failed to approve input: %w", err)
		}
		return expectRow(res)
	})
	if err == ErrNotFound {
		return r.explainMiss(ctx, rec.InputID)
	}
	return err
}

// recommendationUpsert keeps one generated recommendation per waste record.
// The delivery flag is left alone so a re-prediction of a sent input stays sent.
func recommendationUpsert(rc *models.WasteRecommendation) sq.InsertBuilder {
	return psql.Insert("waste_recommendations").
		Columns("id", "waste_record_id", "recommendation_text", "estimated_savings",
			"ai_generated", "created_at", "updated_at").
		Values(rc.ID, rc.WasteRecordID, rc.RecommendationText, rc.EstimatedSavings,
			rc.AIGenerated, rc.CreatedAt, rc.UpdatedAt).
		Suffix(`ON CONFLICT (waste_record_id) WHERE ai_generated DO UPDATE SET
			recommendation_text = EXCLUDED.recommendation_text,
			estimated_savings = EXCLUDED.estimated_savings,
			updated_at = EXCLUDED.updated_at
			RETURNING id, created_at`)
}

// approveInputQuery only matches inputs that are still pending or already
// approved, so a concurrent rejection rolls the prediction back.
func approveInputQuery(id, approver uuid.UUID, now time.Time) sq.UpdateBuilder {
	return psql.Update("production_inputs").
		Set("status", string(models.InputApproved)).
		Set("approved_by", approver).
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "status": []string{string(models.InputPending), string(models.InputApproved)}})
}

// MarkSent flags an approved input and everything derived from it as
// delivered. It returns ErrConflict when the input is not approved.
func (r *ProductionRepository) MarkSent(ctx context.Context, inputID uuid.UUID) error {
	now := time.Now().UTC()

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := execBuilt(ctx, tx, psql.Update("production_inputs").
			Set("sent_to_user", true).
			Set("sent_at", now).
			Set("updated_at", now).
			Where(sq.Eq{"id": inputID, "status": string(models.InputApproved)}))
		if err != nil {
			return err
		}
		if err := expectRow(res); err != nil {
			return err
		}

		if _, err := execBuilt(ctx, tx, psql.Update("production_outputs").
			Set("sent_to_user", true).Set("updated_at", now).
			Where(sq.Eq{"input_id": inputID})); err != nil {
			return err
		}
		if _, err := execBuilt(ctx, tx, psql.Update("waste_records").
			Set("sent_to_user", true).Set("updated_at", now).
			Where(sq.Eq{"production_input_id": inputID})); err != nil {
			return err
		}
		_, err = execBuilt(ctx, tx, psql.Update("waste_recommendations").
			Set("sent_to_user", true).Set("updated_at", now).
			Where("waste_record_id IN (SELECT id FROM waste_records WHERE production_input_id = ?)", inputID))
		return err
	})
	if err == ErrNotFound {
		return r.explainMiss(ctx, inputID)
	}
	if err != nil {
		return fmt.Errorf("failed to mark input sent: %w", err)
	}
	return nil
}

// explainMiss distinguishes a missing input from one in the wrong state
func (r *ProductionRepository) explainMiss(ctx context.Context, id uuid.UUID) error {
	in, err := r.GetInput(ctx, id)
	if err != nil {
		return err
	}
	if in == nil {
		return ErrNotFound
	}
	return ErrConflict
}

// ListOutputs returns outputs matching the filter, newest first
func (r *ProductionRepository) ListOutputs(ctx context.Context, f OutputFilter) ([]models.ProductionOutput, error) {
	rows, err := queryBuilt(ctx, r.db, outputListQuery(f))
	if err != nil {
		return nil, fmt.Errorf("failed to list outputs: %w", err)
	}
	defer rows.Close()

	outputs := []models.ProductionOutput{}
	for rows.Next() {
		out, err := scanOutput(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan output: %w", err)
		}
		outputs = append(outputs, *out)
	}
	return outputs, rows.Err()
}

func outputListQuery(f OutputFilter) sq.SelectBuilder {
	b := psql.Select(outputColumns...).
		From("production_outputs o").
		Join("production_inputs i ON i.id = o.input_id").
		OrderBy("o.created_at DESC")
	if f.OwnerID != nil {
		b = b.Where(sq.Eq{"i.submitted_by": *f.OwnerID})
	}
	if f.SentOnly {
		b = b.Where(sq.Eq{"o.sent_to_user": true})
	}
	return f.Page.apply(b)
}

// GetOutput retrieves an output by ID
func (r *ProductionRepository) GetOutput(ctx context.Context, id uuid.UUID) (*models.ProductionOutput, error) {
	row, err := queryRowBuilt(ctx, r.db, psql.Select(outputColumns...).
		From("production_outputs o").Where(sq.Eq{"o.id": id}))
	if err != nil {
		return nil, err
	}
	out, err := scanOutput(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get output: %w", err)
	}
	return out, nil
}

// UpdateActual stores the measured output and its deviation
func (r *ProductionRepository) UpdateActual(ctx context.Context, out *models.ProductionOutput) error {
	out.UpdatedAt = time.Now().UTC()
	res, err := execBuilt(ctx, r.db, psql.Update("production_outputs").
		Set("actual_output", out.ActualOutput).
		Set("deviation_percentage", out.DeviationPercentage).
		Set("updated_at", out.UpdatedAt).
		Where(sq.Eq{"id": out.ID}))
	if err != nil {
		return fmt.Errorf("failed to update output: %w", err)
	}
	return expectRow(res)
}

// ListPredictionLogs returns the newest prediction logs
func (r *ProductionRepository) ListPredictionLogs(ctx context.Context, page Page) ([]models.PredictionLog, error) {
	rows, err := queryBuilt(ctx, r.db, page.apply(psql.Select(logColumns...).
		From("prediction_logs l").OrderBy("l.created_at DESC")))
	if err != nil {
		return nil, fmt.Errorf("failed to list prediction logs: %w", err)
	}
	defer rows.Close()

	logs := []models.PredictionLog{}
	for rows.Next() {
		var lg models.PredictionLog
		if err := rows.Scan(&lg.ID, &lg.OutputID, &lg.ConfidenceScore, &lg.Q10Prediction,
			&lg.Q50Prediction, &lg.Q90Prediction, &lg.ModelVersion, &lg.InputFeatures,
			&lg.State, &lg.Action, &lg.Reward, &lg.ExecutionTimeMS, &lg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prediction log: %w", err)
		}
		logs = append(logs, lg)
	}
	return logs, rows.Err()
}

func scanInput(s scanner) (*models.ProductionInput, error) {
	var in models.ProductionInput
	var line, status string
	err := s.Scan(&in.ID, &line, &in.FeedRate, &in.Temperature, &in.Pressure,
		&in.PowerConsumption, &in.AnodeEffect, &in.BathRatio, &in.AluminaConcentration,
		&status, &in.SubmittedBy, &in.ApprovedBy, &in.SentToUser, &in.SentAt,
		&in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	in.ProductionLine = scoring.ProductionLine(line)
	in.Status = models.InputStatus(status)
	return &in, nil
}

func scanOutput(s scanner) (*models.ProductionOutput, error) {
	var out models.ProductionOutput
	var strategy string
	err := s.Scan(&out.ID, &out.InputID, &strategy, &out.PredictedOutput, &out.ActualOutput,
		&out.OutputQuality, &out.EnergyEfficiency, &out.WasteGenerated, &out.ExceedsFeed,
		&out.DeviationPercentage, &out.SentToUser, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, err
	}
	out.Strategy = scoring.Strategy(strategy)
	return &out, nil
}
