package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Notification types
const (
	TypePredictionReady = "prediction_ready"
	TypeReportReady     = "report_ready"
	TypeAccountApproved = "account_approved"
)

// inboxSize is how many notifications are kept per user
const inboxSize = 100

// markRetries bounds optimistic retries of MarkAsRead against Redis
const markRetries = 5

var (
	// ErrNotFound is returned when marking a notification that is not in the inbox
	ErrNotFound = errors.New("notification not found")
	// ErrTimeout is returned when no notification arrives before the wait ends
	ErrTimeout = errors.New("timeout waiting for notification")
)

// Notification represents a notification message
type Notification struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}

// Service keeps a per-user inbox in Redis and fans new notifications out to
// in-process subscribers. Without Redis the inbox lives in memory.
type Service struct {
	redis       *redis.Client
	logger      *slog.Logger
	subscribers map[uuid.UUID][]chan Notification
	memory      map[uuid.UUID][]Notification
	mu          sync.RWMutex
}

// NewService creates a new notification service. rdb may be nil.
func NewService(rdb *redis.Client, logger *slog.Logger) *Service {
	return &Service{
		redis:       rdb,
		logger:      logger.With("component", "notification"),
		subscribers: make(map[uuid.UUID][]chan Notification),
		memory:      make(map[uuid.UUID][]Notification),
	}
}

func inboxKey(userID uuid.UUID) string {
	return fmt.Sprintf("notifications:%s", userID.String())
}

// Subscribe returns a channel receiving the user's new notifications and a
// cleanup function. Slow subscribers miss notifications rather than block senders.
func (s *Service) Subscribe(userID uuid.UUID) (<-chan Notification, func()) {
	ch := make(chan Notification, 16)

	s.mu.Lock()
	s.subscribers[userID] = append(s.subscribers[userID], ch)
	s.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			subs := s.subscribers[userID]
			for i, sub := range subs {
				if sub == ch {
					s.subscribers[userID] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(s.subscribers[userID]) == 0 {
				delete(s.subscribers, userID)
			}
			close(ch)
		})
	}

	return ch, cleanup
}

// Notify stores a notification in the user's inbox and delivers it to subscribers
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, notificationType, title, message string, data interface{}) (*Notification, error) {
	var dataJSON json.RawMessage
	if data != nil {
		var err error
		dataJSON, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}
	}

	n := Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      notificationType,
		Title:     title,
		Message:   message,
		Data:      dataJSON,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store(ctx, n); err != nil {
		return nil, err
	}

	s.mu.RLock()
	for _, ch := range s.subscribers[userID] {
		select {
		case ch <- n:
		default:
			s.logger.Warn("subscriber full, notification dropped", "user_id", userID)
		}
	}
	s.mu.RUnlock()

	s.logger.Info("notification sent", "user_id", userID, "type", notificationType)
	return &n, nil
}

func (s *Service) store(ctx context.Context, n Notification) error {
	if s.redis == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		inbox := append([]Notification{n}, s.memory[n.UserID]...)
		if len(inbox) > inboxSize {
			inbox = inbox[:inboxSize]
		}
		s.memory[n.UserID] = inbox
		return nil
	}

	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	key := inboxKey(n.UserID)
	pipe := s.redis.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, inboxSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

// List returns the user's newest notifications, newest first
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error) {
	if limit <= 0 || limit > inboxSize {
		limit = inboxSize
	}

	if s.redis == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		inbox := s.memory[userID]
		if len(inbox) > limit {
			inbox = inbox[:limit]
		}
		return append([]Notification{}, inbox...), nil
	}

	items, err := s.redis.LRange(ctx, inboxKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}

	notifications := make([]Notification, 0, len(items))
	for _, item := range items {
		var n Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			s.logger.Warn("skipping malformed notification", "user_id", userID, "error", err)
			continue
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// MarkAsRead flags one notification in the user's inbox as read
func (s *Service) MarkAsRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if s.redis == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.memory[userID] {
			if s.memory[userID][i].ID == notificationID {
				s.memory[userID][i].Read = true
				return nil
			}
		}
		return ErrNotFound
	}

	key := inboxKey(userID)
	mark := func(tx *redis.Tx) error {
		items, err := tx.LRange(ctx, key, 0, inboxSize-1).Result()
		if err != nil {
			return fmt.Errorf("failed to get notifications: %w", err)
		}
		idx, raw, err := markRead(items, notificationID)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LSet(ctx, key, int64(idx), raw)
			return nil
		})
		return err
	}

	// A concurrent push shifts list indexes, so retry when the key changes.
	for attempt := 0; attempt < markRetries; attempt++ {
		err := s.redis.Watch(ctx, mark, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("failed to mark notification read: inbox kept changing")
}

// markRead finds the notification in a raw inbox and returns its index and
// its encoding with the read flag set.
func markRead(items []string, notificationID uuid.UUID) (int, []byte, error) {
	for i, item := range items {
		var n Notification
		if err := json.Unmarshal([]byte(item), &n); err != nil || n.ID != notificationID {
			continue
		}
		n.Read = true
		raw, err := json.Marshal(n)
		if err != nil {
			return 0, nil, err
		}
		return i, raw, nil
	}
	return 0, nil, ErrNotFound
}

// WaitForNotification waits for the user's next notification
func (s *Service) WaitForNotification(ctx context.Context, userID uuid.UUID, timeout time.Duration) (*Notification, error) {
	ch, cleanup := s.Subscribe(userID)
	defer cleanup()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case n := <-ch:
		return &n, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
