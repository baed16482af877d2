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

var wasteColumns = []string{
	"w.id", "w.production_input_id", "w.waste_type", "w.waste_amount", "w.unit",
	"w.date_recorded", "w.reuse_possible", "w.recorded_by", "w.production_line",
	"w.temperature", "w.pressure", "w.energy_used", "w.sent_to_user",
	"w.created_at", "w.updated_at",
}

var recommendationColumns = []string{
	"r.id", "r.waste_record_id", "r.recommendation_text", "r.estimated_savings",
	"r.ai_generated", "r.sent_to_user", "r.created_at", "r.updated_at",
}

// WasteFilter narrows waste listings. OwnerID restricts to records derived
// from that user's inputs.
type WasteFilter struct {
	OwnerID        *uuid.UUID
	SentOnly       bool
	ProductionLine scoring.ProductionLine
	Page           Page
}

// WasteRepository handles waste records and their recommendations
type WasteRepository struct {
	db *sql.DB
}

// NewWasteRepository creates a new waste repository
func NewWasteRepository(db *sql.DB) *WasteRepository {
	return &WasteRepository{db: db}
}

// Create stores a manually entered waste record
func (r *WasteRepository) Create(ctx context.Context, w *models.WasteRecord) error {
	now := time.Now().UTC()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.DateRecorded.IsZero() {
		w.DateRecorded = now
	}
	w.CreatedAt, w.UpdatedAt = now, now

	_, err := execBuilt(ctx, r.db, psql.Insert("waste_records").
		Columns("id", "production_input_id", "waste_type", "waste_amount", "unit",
			"date_recorded", "reuse_possible", "recorded_by", "production_line",
			"temperature", "pressure", "energy_used", "created_at", "updated_at").
		Values(w.ID, w.ProductionInputID, w.WasteType, w.WasteAmount, string(w.Unit),
			w.DateRecorded, w.ReusePossible, w.RecordedBy, string(w.ProductionLine),
			w.Temperature, w.Pressure, w.EnergyUsed, w.CreatedAt, w.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create waste record: %w", err)
	}
	return nil
}

// GetByID retrieves a waste record by ID
func (r *WasteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WasteRecord, error) {
	row, err := queryRowBuilt(ctx, r.db, psql.Select(wasteColumns...).
		From("waste_records w").Where(sq.Eq{"w.id": id}))
	if err != nil {
		return nil, err
	}
	w, err := scanWaste(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waste record: %w", err)
	}
	return w, nil
}

// Update rewrites the editable fields of a waste record
func (r *WasteRepository) Update(ctx context.Context, w *models.WasteRecord) error {
	w.UpdatedAt = time.Now().UTC()
	res, err := execBuilt(ctx, r.db, psql.Update("waste_records").
		Set("waste_type", w.WasteType).
		Set("waste_amount", w.WasteAmount).
		Set("unit", string(w.Unit)).
		Set("date_recorded", w.DateRecorded).
		Set("reuse_possible", w.ReusePossible).
		Set("production_line", string(w.ProductionLine)).
		Set("temperature", w.Temperature).
		Set("pressure", w.Pressure).
		Set("energy_used", w.EnergyUsed).
		Set("updated_at", w.UpdatedAt).
		Where(sq.Eq{"id": w.ID}))
	if err != nil {
		return fmt.Errorf("failed to update waste record: %w", err)
	}
	return expectRow(res)
}

// Delete removes a waste record and its recommendations
func (r *WasteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM waste_records WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete waste record: %w", err)
	}
	return expectRow(res)
}

// List returns waste records matching the filter, newest first
func (r *WasteRepository) List(ctx context.Context, f WasteFilter) ([]models.WasteRecord, error) {
	rows, err := queryBuilt(ctx, r.db, wasteListQuery(f))
	if err != nil {
		return nil, fmt.Errorf("failed to list waste records: %w", err)
	}
	defer rows.Close()

	records := []models.WasteRecord{}
	for rows.Next() {
		w, err := scanWaste(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan waste record: %w", err)
		}
		records = append(records, *w)
	}
	return records, rows.Err()
}

func wasteListQuery(f WasteFilter) sq.SelectBuilder {
	b := psql.Select(wasteColumns...).From("waste_records w").OrderBy("w.date_recorded DESC")
	return f.Page.apply(applyWasteFilter(b, f))
}

func applyWasteFilter(b sq.SelectBuilder, f WasteFilter) sq.SelectBuilder {
	if f.OwnerID != nil {
		b = b.Join("production_inputs i ON i.id = w.production_input_id").
			Where(sq.Eq{"i.submitted_by": *f.OwnerID})
	}
	if f.SentOnly {
		b = b.Where(sq.Eq{"w.sent_to_user": true})
	}
	if f.ProductionLine != "" {
		b = b.Where(sq.Eq{"w.production_line": string(f.ProductionLine)})
	}
	return b
}

// ListRecommendations returns recommendations whose waste record matches the filter
func (r *WasteRepository) ListRecommendations(ctx context.Context, f WasteFilter) ([]models.WasteRecommendation, error) {
	rows, err := queryBuilt(ctx, r.db, recommendationListQuery(f))
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	defer rows.Close()

	recs := []models.WasteRecommendation{}
	for rows.Next() {
		var rc models.WasteRecommendation
		if err := rows.Scan(&rc.ID, &rc.WasteRecordID, &rc.RecommendationText, &rc.EstimatedSavings,
			&rc.AIGenerated, &rc.SentToUser, &rc.CreatedAt, &rc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		recs = append(recs, rc)
	}
	return recs, rows.Err()
}

func recommendationListQuery(f WasteFilter) sq.SelectBuilder {
	b := psql.Select(recommendationColumns...).
		From("waste_recommendations r").
		Join("waste_records w ON w.id = r.waste_record_id").
		OrderBy("r.created_at DESC")
	b = applyWasteFilter(b, f)
	if f.SentOnly {
		b = b.Where(sq.Eq{"r.sent_to_user": true})
	}
	return f.Page.apply(b)
}

func scanWaste(s scanner) (*models.WasteRecord, error) {
	var w models.WasteRecord
	var unit, line string
	err := s.Scan(&w.ID, &w.ProductionInputID, &w.WasteType, &w.WasteAmount, &unit,
		&w.DateRecorded, &w.ReusePossible, &w.RecordedBy, &line,
		&w.Temperature, &w.Pressure, &w.EnergyUsed, &w.SentToUser,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.Unit = models.WasteUnit(unit)
	w.ProductionLine = scoring.ProductionLine(line)
	return &w, nil
}
