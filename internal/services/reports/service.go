// Package reports renders CSV exports, archives them in object storage and
// tells users where to fetch them.
package reports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aluoptimize/aluoptimize/internal/models"
	"github.com/aluoptimize/aluoptimize/internal/repository"
	"github.com/aluoptimize/aluoptimize/internal/services/notification"
	"github.com/aluoptimize/aluoptimize/internal/services/storage"
	"github.com/aluoptimize/aluoptimize/pkg/events"
	"github.com/aluoptimize/aluoptimize/pkg/utils"
	"github.com/google/uuid"
)

// Type names a report
type Type string

const (
	TypeUsers       Type = "users"
	TypePredictions Type = "predictions"
	TypeWaste       Type = "waste"
	TypeInputs      Type = "inputs"
)

const (
	contentTypeCSV       = "text/csv"
	contentTypeEncrypted = "application/octet-stream"
	encryptedSuffix      = ".enc"
	linkExpiry           = 24 * time.Hour
	// maxRows bounds a single export
	maxRows = 50000
)

var (
	ErrUnknownType = errors.New("unknown report type")
	ErrNoArchive   = errors.New("report archive is not configured")
	ErrBadKey      = errors.New("not a report key")
)

// Users lists accounts
type Users interface {
	List(ctx context.Context, f repository.UserFilter) ([]models.User, error)
}

// Production lists inputs and outputs
type Production interface {
	ListInputs(ctx context.Context, f repository.InputFilter) ([]models.ProductionInput, error)
	ListOutputs(ctx context.Context, f repository.OutputFilter) ([]models.ProductionOutput, error)
}

// Waste lists waste records
type Waste interface {
	List(ctx context.Context, f repository.WasteFilter) ([]models.WasteRecord, error)
}

// Archive stores rendered reports
type Archive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (storage.Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	PresignedURL(ctx context.Context, key, filename string, expiry time.Duration) (string, error)
}

// Cipher seals archived reports
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Notifier delivers user notifications
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, notificationType, title, message string, data interface{}) (*notification.Notification, error)
}

// Request asks for one report. UserID scopes input, prediction and waste
// reports to one submitter and is the recipient when Notify is set.
type Request struct {
	Type   Type       `json:"type"`
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Notify bool       `json:"notify"`
}

// Report is a rendered export
type Report struct {
	ID          uuid.UUID       `json:"id"`
	Type        Type            `json:"type"`
	Filename    string          `json:"filename"`
	Rows        int             `json:"rows"`
	GeneratedAt time.Time       `json:"generated_at"`
	Archive     *storage.Object `json:"archive,omitempty"`
	Encrypted   bool            `json:"encrypted"`
	DownloadURL string          `json:"download_url,omitempty"`
	NotifiedID  *uuid.UUID      `json:"notified_user_id,omitempty"`
	Data        []byte          `json:"-"`
}

// Sources groups the listings reports are built from
type Sources struct {
	Users      Users
	Production Production
	Waste      Waste
}

// Service builds and distributes reports
type Service struct {
	sources   Sources
	archive   Archive
	cipher    Cipher
	notifier  Notifier
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a report service. archive and cipher may be nil.
func NewService(sources Sources, archive Archive, cipher Cipher, notifier Notifier, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		sources:   sources,
		archive:   archive,
		cipher:    cipher,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger.With("component", "reports"),
		now:       time.Now,
	}
}

// Generate renders a report, archives it and optionally notifies a user
func (s *Service) Generate(ctx context.Context, actor uuid.UUID, req Request) (*Report, error) {
	data, rows, err := s.render(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	r := &Report{
		ID:          uuid.New(),
		Type:        req.Type,
		Filename:    fmt.Sprintf("%s_report_%s.csv", req.Type, now.Format("20060102_150405")),
		Rows:        rows,
		GeneratedAt: now,
		Data:        data,
	}

	if s.archive != nil {
		if err := s.store(ctx, r); err != nil {
			return nil, err
		}
	}

	if req.Notify && req.UserID != nil {
		if err := s.notify(ctx, *req.UserID, r); err != nil {
			return nil, err
		}
	}

	s.logger.Info("report generated", "report_id", r.ID, "type", r.Type, "rows", r.Rows, "by", actor)
	if e, err := events.New(events.TypeReportGenerated, r.ID, actor, r); err == nil {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.Warn("failed to publish event", "type", e.Type, "error", err)
		}
	}
	return r, nil
}

func (s *Service) render(ctx context.Context, req Request) ([]byte, int, error) {
	switch req.Type {
	case TypeUsers:
		users, err := collect(func(p repository.Page) ([]models.User, error) {
			return s.sources.Users.List(ctx, repository.UserFilter{Page: p})
		})
		if err != nil {
			return nil, 0, err
		}
		data, err := renderUsers(users)
		return data, len(users), err

	case TypeInputs:
		inputs, err := collect(func(p repository.Page) ([]models.ProductionInput, error) {
			return s.sources.Production.ListInputs(ctx, repository.InputFilter{SubmittedBy: req.UserID, Page: p})
		})
		if err != nil {
			return nil, 0, err
		}
		data, err := renderInputs(inputs)
		return data, len(inputs), err

	case TypePredictions:
		outputs, err := collect(func(p repository.Page) ([]models.ProductionOutput, error) {
			return s.sources.Production.ListOutputs(ctx, repository.OutputFilter{OwnerID: req.UserID, Page: p})
		})
		if err != nil {
			return nil, 0, err
		}
		data, err := renderPredictions(outputs)
		return data, len(outputs), err

	case TypeWaste:
		records, err := collect(func(p repository.Page) ([]models.WasteRecord, error) {
			return s.sources.Waste.List(ctx, repository.WasteFilter{OwnerID: req.UserID, Page: p})
		})
		if err != nil {
			return nil, 0, err
		}
		data, err := renderWaste(records)
		return data, len(records), err
	}
	return nil, 0, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
}

// pageSize matches the repository page cap
const pageSize = 500

// collect pages through a listing until it runs dry or hits maxRows
func collect[T any](fetch func(repository.Page) ([]T, error)) ([]T, error) {
	var all []T
	for offset := 0; offset < maxRows; offset += pageSize {
		batch, err := fetch(repository.Page{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < pageSize {
			break
		}
	}
	return all, nil
}

func (s *Service) store(ctx context.Context, r *Report) error {
	payload, contentType, name := r.Data, contentTypeCSV, r.ID.String()+".csv"
	if s.cipher != nil {
		sealed, err := s.cipher.Encrypt(r.Data)
		if err != nil {
			return fmt.Errorf("failed to encrypt report: %w", err)
		}
		payload, contentType, name = sealed, contentTypeEncrypted, name+encryptedSuffix
		r.Encrypted = true
	}

	key := utils.ObjectKey("reports", string(r.Type), r.GeneratedAt.Format("2006"),
		r.GeneratedAt.Format("01"), r.GeneratedAt.Format("02"), name)
	obj, err := s.archive.Put(ctx, key, payload, contentType)
	if err != nil {
		return err
	}
	r.Archive = &obj
	return nil
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, r *Report) error {
	data := map[string]string{"report_id": r.ID.String(), "type": string(r.Type)}
	message := fmt.Sprintf("Your %s report (%d rows) is ready.", r.Type, r.Rows)

	if r.Archive != nil && !r.Encrypted {
		link, err := s.archive.PresignedURL(ctx, r.Archive.Key, r.Filename, linkExpiry)
		if err != nil {
			return err
		}
		r.DownloadURL = link
		data["download_url"] = link
		message += " The download link is valid for 24 hours."
	} else {
		message += " Ask your supervisor for a copy."
	}

	if _, err := s.notifier.Notify(ctx, userID, notification.TypeReportReady, "Report ready", message, data); err != nil {
		return err
	}
	r.NotifiedID = &userID
	return nil
}

// Open fetches an archived report by key, decrypting it when needed
func (s *Service) Open(ctx context.Context, key string) ([]byte, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}
	if !strings.HasPrefix(key, "reports/") || key != utils.ObjectKey(strings.Split(key, "/")...) {
		return nil, ErrBadKey
	}

	rc, err := s.archive.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	if strings.HasSuffix(key, encryptedSuffix) {
		if s.cipher == nil {
			return nil, fmt.Errorf("report is encrypted and no key is configured")
		}
		return s.cipher.Decrypt(data)
	}
	return data, nil
}
