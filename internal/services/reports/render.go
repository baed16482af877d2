package reports

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/aluoptimize/aluoptimize/internal/models"
	"github.com/google/uuid"
)

func writeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func optNum(v *float64) string {
	if v == nil {
		return ""
	}
	return num(*v)
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func optTS(t *time.Time) string {
	if t == nil {
		return ""
	}
	return ts(*t)
}

func optID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func renderUsers(users []models.User) ([]byte, error) {
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{
			u.ID.String(), u.Username, u.Email, u.FirstName, u.LastName, string(u.Role),
			strconv.FormatBool(u.IsActive), ts(u.DateJoined), optTS(u.LastLogin),
		})
	}
	return writeCSV([]string{
		"id", "username", "email", "first_name", "last_name", "role",
		"is_active", "date_joined", "last_login",
	}, rows)
}

func renderInputs(inputs []models.ProductionInput) ([]byte, error) {
	rows := make([][]string, 0, len(inputs))
	for _, in := range inputs {
		rows = append(rows, []string{
			in.ID.String(), string(in.ProductionLine), num(in.FeedRate), num(in.Temperature),
			num(in.Pressure), num(in.PowerConsumption), num(in.AnodeEffect), num(in.BathRatio),
			num(in.AluminaConcentration), string(in.Status), optID(in.SubmittedBy),
			strconv.FormatBool(in.SentToUser), ts(in.CreatedAt),
		})
	}
	return writeCSV([]string{
		"id", "production_line", "feed_rate", "temperature", "pressure", "power_consumption",
		"anode_effect", "bath_ratio", "alumina_concentration", "status", "submitted_by",
		"sent_to_user", "created_at",
	}, rows)
}

func renderPredictions(outputs []models.ProductionOutput) ([]byte, error) {
	rows := make([][]string, 0, len(outputs))
	for _, o := range outputs {
		rows = append(rows, []string{
			o.ID.String(), o.InputID.String(), string(o.Strategy), num(o.PredictedOutput),
			optNum(o.ActualOutput), optNum(o.DeviationPercentage), num(o.EnergyEfficiency),
			num(o.OutputQuality), num(o.WasteGenerated), strconv.FormatBool(o.ExceedsFeed),
			strconv.FormatBool(o.SentToUser), ts(o.CreatedAt),
		})
	}
	return writeCSV([]string{
		"id", "input_id", "strategy", "predicted_output", "actual_output", "deviation_percentage",
		"energy_efficiency", "output_quality", "waste_generated", "exceeds_feed",
		"sent_to_user", "created_at",
	}, rows)
}

func renderWaste(records []models.WasteRecord) ([]byte, error) {
	rows := make([][]string, 0, len(records))
	for _, w := range records {
		rows = append(rows, []string{
			w.ID.String(), string(w.ProductionLine), w.WasteType, num(w.WasteAmount), string(w.Unit),
			strconv.FormatBool(w.ReusePossible), optNum(w.Temperature), optNum(w.Pressure),
			optNum(w.EnergyUsed), strconv.FormatBool(w.SentToUser), ts(w.DateRecorded),
		})
	}
	return writeCSV([]string{
		"id", "production_line", "waste_type", "waste_amount", "unit", "reuse_possible",
		"temperature", "pressure", "energy_used", "sent_to_user", "date_recorded",
	}, rows)
}
