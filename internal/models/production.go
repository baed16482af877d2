package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/aluoptimize/aluoptimize/internal/scoring"
	"github.com/google/uuid"
)

// InputStatus tracks a production input through review
type InputStatus string

const (
	InputPending  InputStatus = "pending"
	InputApproved InputStatus = "approved"
	InputRejected InputStatus = "rejected"
)

// Valid reports whether s is a known status
func (s InputStatus) Valid() bool {
	return s == InputPending || s == InputApproved || s == InputRejected
}

// ProductionInput is one submitted set of process readings
type ProductionInput struct {
	ID                   uuid.UUID              `json:"id" db:"id"`
	ProductionLine       scoring.ProductionLine `json:"production_line" db:"production_line"`
	FeedRate             float64                `json:"feed_rate" db:"feed_rate"`
	Temperature          float64                `json:"temperature" db:"temperature"`
	Pressure             float64                `json:"pressure" db:"pressure"`
	PowerConsumption     float64                `json:"power_consumption" db:"power_consumption"`
	AnodeEffect          float64                `json:"anode_effect" db:"anode_effect"`
	BathRatio            float64                `json:"bath_ratio" db:"bath_ratio"`
	AluminaConcentration float64                `json:"alumina_concentration" db:"alumina_concentration"`
	Status               InputStatus            `json:"status" db:"status"`
	SubmittedBy          *uuid.UUID             `json:"submitted_by,omitempty" db:"submitted_by"`
	ApprovedBy           *uuid.UUID             `json:"approved_by,omitempty" db:"approved_by"`
	SentToUser           bool                   `json:"sent_to_user" db:"sent_to_user"`
	SentAt               *time.Time             `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt            time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at" db:"updated_at"`
}

// Parameters extracts the readings the scoring engine consumes
func (in *ProductionInput) Parameters() scoring.ProcessParameters {
	return scoring.ProcessParameters{
		ProductionLine:       in.ProductionLine,
		FeedRate:             in.FeedRate,
		Temperature:          in.Temperature,
		Pressure:             in.Pressure,
		PowerConsumption:     in.PowerConsumption,
		AnodeEffect:          in.AnodeEffect,
		BathRatio:            in.BathRatio,
		AluminaConcentration: in.AluminaConcentration,
	}
}

// OwnedBy reports whether uid submitted the input
func (in *ProductionInput) OwnedBy(uid uuid.UUID) bool {
	return in.SubmittedBy != nil && *in.SubmittedBy == uid
}

// ProductionOutput holds the predicted, and later the actual, output of an input
type ProductionOutput struct {
	ID                  uuid.UUID        `json:"id" db:"id"`
	InputID             uuid.UUID        `json:"input_id" db:"input_id"`
	Strategy            scoring.Strategy `json:"strategy" db:"strategy"`
	PredictedOutput     float64          `json:"predicted_output" db:"predicted_output"`
	ActualOutput        *float64         `json:"actual_output,omitempty" db:"actual_output"`
	OutputQuality       float64          `json:"output_quality" db:"output_quality"`
	EnergyEfficiency    float64          `json:"energy_efficiency" db:"energy_efficiency"`
	WasteGenerated      float64          `json:"waste_generated" db:"waste_generated"`
	ExceedsFeed         bool             `json:"exceeds_feed" db:"exceeds_feed"`
	DeviationPercentage *float64         `json:"deviation_percentage,omitempty" db:"deviation_percentage"`
	SentToUser          bool             `json:"sent_to_user" db:"sent_to_user"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`
}

// SetActual records the measured output and recomputes the deviation.
// Deviation stays unset while the prediction is zero.
func (o *ProductionOutput) SetActual(actual float64) {
	o.ActualOutput = &actual
	o.DeviationPercentage = nil
	if o.PredictedOutput != 0 {
		d := (actual - o.PredictedOutput) / o.PredictedOutput * 100
		o.DeviationPercentage = &d
	}
}

// PredictionLog is the audit trail of one scoring call
type PredictionLog struct {
	ID              uuid.UUID `json:"id" db:"id"`
	OutputID        uuid.UUID `json:"output_id" db:"output_id"`
	ConfidenceScore float64   `json:"confidence_score" db:"confidence_score"`
	Q10Prediction   float64   `json:"q10_prediction" db:"q10_prediction"`
	Q50Prediction   float64   `json:"q50_prediction" db:"q50_prediction"`
	Q90Prediction   float64   `json:"q90_prediction" db:"q90_prediction"`
	ModelVersion    string    `json:"model_version" db:"model_version"`
	InputFeatures   JSONMap   `json:"input_features" db:"input_features"`
	State           JSONMap   `json:"state" db:"state"`
	Action          JSONMap   `json:"action" db:"action"`
	Reward          JSONMap   `json:"reward" db:"reward"`
	ExecutionTimeMS int64     `json:"execution_time_ms" db:"execution_time_ms"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// JSONMap is a JSONB column
type JSONMap map[string]interface{}

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("jsonmap: unsupported column type")
	}
	out := JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*m = out
	return nil
}
