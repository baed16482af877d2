package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/aluoptimize/aluoptimize/internal/middleware"
	"github.com/aluoptimize/aluoptimize/internal/repository"
	"github.com/aluoptimize/aluoptimize/internal/services/reports"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Stats supplies dashboard aggregates
type Stats interface {
	UserCounts(ctx context.Context) (repository.UserCounts, error)
	PredictionStats(ctx context.Context, weekStart time.Time) (repository.PredictionStats, error)
	WasteStats(ctx context.Context) (repository.WasteStats, error)
	PendingInputs(ctx context.Context) (int64, error)
}

// Reports renders and fetches exports
type Reports interface {
	Generate(ctx context.Context, actor uuid.UUID, req reports.Request) (*reports.Report, error)
	Open(ctx context.Context, key string) ([]byte, error)
}

// ManageHandler serves the staff dashboard and reports
type ManageHandler struct {
	stats   Stats
	reports Reports
	logger  *slog.Logger
	now     func() time.Time
}

// NewManageHandler creates a new manage handler
func NewManageHandler(stats Stats, reports Reports, logger *slog.Logger) *ManageHandler {
	return &ManageHandler{stats: stats, reports: reports, logger: logger, now: time.Now}
}

// Dashboard is the staff overview
type Dashboard struct {
	Users         repository.UserCounts      `json:"users"`
	Predictions   repository.PredictionStats `json:"predictions"`
	Waste         repository.WasteStats      `json:"waste"`
	PendingInputs int64                      `json:"pending_inputs"`
	GeneratedAt   time.Time                  `json:"generated_at"`
}

// weekStart returns midnight UTC of the Monday starting t's week
func weekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
}

// Dashboard gathers the aggregates concurrently
func (h *ManageHandler) Dashboard(c *gin.Context) {
	now := h.now()
	d := Dashboard{GeneratedAt: now.UTC()}

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		d.Users, err = h.stats.UserCounts(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.Predictions, err = h.stats.PredictionStats(ctx, weekStart(now))
		return err
	})
	g.Go(func() error {
		var err error
		d.Waste, err = h.stats.WasteStats(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.PendingInputs, err = h.stats.PendingInputs(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type reportRequest struct {
	reports.Request
	Download bool `json:"download"`
}

// GenerateReport renders a report. With download set the CSV is returned
// directly; otherwise the archive metadata is.
func (h *ManageHandler) GenerateReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Notify && req.UserID == nil {
		badRequest(c, "user_id is required to notify")
		return
	}

	uid, _ := middleware.GetUserID(c)
	r, err := h.reports.Generate(c.Request.Context(), uid, req.Request)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if req.Download {
		attachCSV(c, r.Filename, r.Data)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// DownloadReport streams an archived report
func (h *ManageHandler) DownloadReport(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		badRequest(c, "key is required")
		return
	}

	data, err := h.reports.Open(c.Request.Context(), key)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	name := path.Base(key)
	if ext := path.Ext(name); ext == ".enc" {
		name = name[:len(name)-len(ext)]
	}
	attachCSV(c, name, data)
}

func attachCSV(c *gin.Context, filename string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", data)
}
