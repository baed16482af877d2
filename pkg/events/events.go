package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	TypeInputSubmitted      = "input.submitted"
	TypeInputRejected       = "input.rejected"
	TypePredictionGenerated = "prediction.generated"
	TypePredictionSent      = "prediction.sent"
	TypeUserRegistered      = "user.registered"
	TypeReportGenerated     = "report.generated"
)

// SubjectPrefix namespaces every published subject
const SubjectPrefix = "aluoptimize."

// Event is the envelope of every published message
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Version     int             `json:"version"`
	Data        json.RawMessage `json:"data"`
	Metadata    Metadata        `json:"metadata"`
}

// Metadata contains event metadata
type Metadata struct {
	UserID string `json:"user_id,omitempty"`
	Source string `json:"source"`
}

// New builds an event around data
func New(eventType string, aggregateID, userID uuid.UUID, data interface{}) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event data: %w", err)
	}
	e := Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		Timestamp:   time.Now().UTC(),
		Version:     1,
		Data:        raw,
		Metadata:    Metadata{Source: "aluoptimize"},
	}
	if userID != uuid.Nil {
		e.Metadata.UserID = userID.String()
	}
	return e, nil
}

// Subject returns the subject an event is published on
func (e Event) Subject() string {
	return SubjectPrefix + e.Type
}

// Publisher delivers events to the outside world
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// Nop discards every event
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher
func (Nop) Close() {}

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher
func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Close implements Publisher
func (r *Recorder) Close() {}

// Events returns a copy of everything published so far
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the type of each published event in order
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}
