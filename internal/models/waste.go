package models

import (
	"time"

	"github.com/aluoptimize/aluoptimize/internal/scoring"
	"github.com/aluoptimize/aluoptimize/pkg/money"
	"github.com/google/uuid"
)

// WasteUnit is the unit a waste amount is measured in
type WasteUnit string

const (
	UnitKG  WasteUnit = "KG"
	UnitTon WasteUnit = "TON"
	UnitL   WasteUnit = "L"
)

// Valid reports whether u is a known unit
func (u WasteUnit) Valid() bool {
	return u == UnitKG || u == UnitTon || u == UnitL
}

// DrossWasteType is the waste type recorded for predicted runs
const DrossWasteType = "Aluminum Dross"

// WasteRecord is a quantity of waste, predicted or entered by staff
type WasteRecord struct {
	ID                uuid.UUID              `json:"id" db:"id"`
	ProductionInputID *uuid.UUID             `json:"production_input_id,omitempty" db:"production_input_id"`
	WasteType         string                 `json:"waste_type" db:"waste_type"`
	WasteAmount       float64                `json:"waste_amount" db:"waste_amount"`
	Unit              WasteUnit              `json:"unit" db:"unit"`
	DateRecorded      time.Time              `json:"date_recorded" db:"date_recorded"`
	ReusePossible     bool                   `json:"reuse_possible" db:"reuse_possible"`
	RecordedBy        *uuid.UUID             `json:"recorded_by,omitempty" db:"recorded_by"`
	ProductionLine    scoring.ProductionLine `json:"production_line" db:"production_line"`
	Temperature       *float64               `json:"temperature,omitempty" db:"temperature"`
	Pressure          *float64               `json:"pressure,omitempty" db:"pressure"`
	EnergyUsed        *float64               `json:"energy_used,omitempty" db:"energy_used"`
	SentToUser        bool                   `json:"sent_to_user" db:"sent_to_user"`
	CreatedAt         time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at" db:"updated_at"`
}

// WasteRecommendation is advice attached to a waste record
type WasteRecommendation struct {
	ID                 uuid.UUID    `json:"id" db:"id"`
	WasteRecordID      uuid.UUID    `json:"waste_record_id" db:"waste_record_id"`
	RecommendationText string       `json:"recommendation_text" db:"recommendation_text"`
	EstimatedSavings   money.Amount `json:"estimated_savings" db:"estimated_savings"`
	AIGenerated        bool         `json:"ai_generated" db:"ai_generated"`
	SentToUser         bool         `json:"sent_to_user" db:"sent_to_user"`
	CreatedAt          time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at" db:"updated_at"`
}
