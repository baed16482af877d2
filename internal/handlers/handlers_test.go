package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aluoptimize/aluoptimize/internal/logging"
	"github.com/aluoptimize/aluoptimize/internal/models"
	"github.com/aluoptimize/aluoptimize/internal/repository"
	"github.com/aluoptimize/aluoptimize/internal/scoring"
	"github.com/aluoptimize/aluoptimize/internal/services/auth"
	"github.com/aluoptimize/aluoptimize/internal/services/notification"
	"github.com/aluoptimize/aluoptimize/internal/services/prediction"
	"github.com/aluoptimize/aluoptimize/internal/services/reports"
	"github.com/aluoptimize/aluoptimize/pkg/events"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memUsers) List(context.Context, repository.UserFilter) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.User{}
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memUsers) UpdateLastLogin(context.Context, uuid.UUID) error { return nil }

func (m *memUsers) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (m *memUsers) ActivateMany(_ context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		if err := m.SetActive(context.Background(), id, true); err == nil {
			n++
		}
	}
	return n, nil
}

func (m *memUsers) SetPassword(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

// stubPredictions overrides the calls a test needs; anything else panics
type stubPredictions struct {
	Predictions
	submitted *scoring.ProcessParameters
	lastActor prediction.Actor
	lastList  repository.InputFilter
	err       error
}

func (s *stubPredictions) Submit(_ context.Context, actor prediction.Actor, p scoring.ProcessParameters) (*models.ProductionInput, error) {
	s.submitted, s.lastActor = &p, actor
	if s.err != nil {
		return nil, s.err
	}
	uid := actor.UserID
	return &models.ProductionInput{ID: uuid.New(), ProductionLine: p.ProductionLine, FeedRate: p.FeedRate,
		AnodeEffect: p.AnodeEffect, Status: models.InputPending, SubmittedBy: &uid}, nil
}

func (s *stubPredictions) GetInput(_ context.Context, actor prediction.Actor, id uuid.UUID) (*models.ProductionInput, error) {
	s.lastActor = actor
	if s.err != nil {
		return nil, s.err
	}
	return &models.ProductionInput{ID: id}, nil
}

func (s *stubPredictions) ListInputs(_ context.Context, actor prediction.Actor, f repository.InputFilter) ([]models.ProductionInput, error) {
	s.lastActor, s.lastList = actor, f
	return []models.ProductionInput{}, s.err
}

func (s *stubPredictions) Predict(_ context.Context, actor prediction.Actor, id uuid.UUID) (*prediction.Result, error) {
	s.lastActor = actor
	if s.err != nil {
		return nil, s.err
	}
	return &prediction.Result{InputID: &id, ModelVersion: "v2.0.0-contextual"}, nil
}

func (s *stubPredictions) Preview(p scoring.ProcessParameters, strategy string) (*prediction.Result, error) {
	s.submitted = &p
	if s.err != nil {
		return nil, s.err
	}
	return &prediction.Result{ModelVersion: scoring.Strategy(strategy).ModelVersion()}, nil
}

type fakeWaste struct {
	WasteStore
	lastFilter repository.WasteFilter
	created    *models.WasteRecord
}

func (f *fakeWaste) List(_ context.Context, filter repository.WasteFilter) ([]models.WasteRecord, error) {
	f.lastFilter = filter
	return []models.WasteRecord{}, nil
}

func (f *fakeWaste) Create(_ context.Context, w *models.WasteRecord) error {
	w.ID = uuid.New()
	f.created = w
	return nil
}

type fakeStats struct{ err error }

func (f fakeStats) UserCounts(context.Context) (repository.UserCounts, error) {
	return repository.UserCounts{Total: 5, Pending: 2, Active: 3}, nil
}

func (f fakeStats) PredictionStats(context.Context, time.Time) (repository.PredictionStats, error) {
	return repository.PredictionStats{Total: 7}, f.err
}

func (f fakeStats) WasteStats(context.Context) (repository.WasteStats, error) {
	return repository.WasteStats{Records: 4}, nil
}

func (f fakeStats) PendingInputs(context.Context) (int64, error) { return 1, nil }

type fakeReports struct{ last reports.Request }

func (f *fakeReports) Generate(_ context.Context, _ uuid.UUID, req reports.Request) (*reports.Report, error) {
	f.last = req
	if req.Type != reports.TypeUsers {
		return nil, reports.ErrUnknownType
	}
	return &reports.Report{ID: uuid.New(), Type: req.Type, Filename: "users_report.csv", Rows: 1, Data: []byte("id\n1\n")}, nil
}

func (f *fakeReports) Open(context.Context, string) ([]byte, error) {
	return []byte("id\n1\n"), nil
}

type pingFunc func(ctx context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

type testEnv struct {
	engine      *gin.Engine
	tokens      *auth.Tokens
	users       *memUsers
	predictions *stubPredictions
	waste       *fakeWaste
	reports     *fakeReports
	inbox       *notification.Service
	events      *events.Recorder
	dbErr       error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.Discard()
	env := &testEnv{
		tokens:      auth.NewTokens("test-secret", 15*time.Minute, time.Hour),
		users:       &memUsers{users: map[uuid.UUID]*models.User{}},
		predictions: &stubPredictions{},
		waste:       &fakeWaste{},
		reports:     &fakeReports{},
		inbox:       notification.NewService(nil, logger),
		events:      &events.Recorder{},
	}
	accounts := auth.NewService(env.users, env.tokens, logger)

	router := &Router{
		Tokens:        env.tokens,
		Active:        accounts,
		Health:        pingFunc(func(context.Context) error { return env.dbErr }),
		Auth:          NewAuthHandler(accounts, env.inbox, env.events, logger),
		Production:    NewProductionHandler(env.predictions, logger),
		Waste:         NewWasteHandler(env.waste, logger),
		Manage:        NewManageHandler(fakeStats{}, env.reports, logger),
		Notifications: NewNotificationHandler(env.inbox, logger),
	}
	env.engine = gin.New()
	router.Register(env.engine)
	return env
}

func (e *testEnv) token(t *testing.T, role models.Role) (string, uuid.UUID) {
	t.Helper()
	u := &models.User{ID: uuid.New(), Username: fmt.Sprintf("%s-%d", role, time.Now().UnixNano()), Role: role, IsActive: true}
	e.users.mu.Lock()
	e.users.users[u.ID] = u
	e.users.mu.Unlock()
	pair, err := e.tokens.Issue(u)
	require.NoError(t, err)
	return pair.Access, u.ID
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRegisterApproveLogin(t *testing.T) {
	env := newTestEnv(t)
	creds := map[string]string{"username": "op1", "email": "op1@plant.example", "password": "correct-horse"}

	w := env.do(http.MethodPost, "/api/v1/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, w.Code)
	user := decode(t, w)["user"].(map[string]interface{})
	assert.Equal(t, false, user["is_active"])
	assert.NotContains(t, user, "password_hash")
	assert.Equal(t, []string{events.TypeUserRegistered}, env.events.Types())

	w = env.do(http.MethodPost, "/api/v1/auth/register", "", creds)
	assert.Equal(t, http.StatusConflict, w.Code)

	login := map[string]string{"username": "op1", "password": "correct-horse"}
	w = env.do(http.MethodPost, "/api/v1/auth/login", "", login)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "account not approved by admin yet", decode(t, w)["error"])

	staff, _ := env.token(t, models.RoleStaff)
	w = env.do(http.MethodPost, "/api/v1/manage/users/"+user["id"].(string)+"/approve", staff, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/v1/auth/login", "", login)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.NotEmpty(t, body["access"])

	w = env.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]interface{}{"refresh": body["refresh"]})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/v1/me", body["access"].(string), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "op1", decode(t, w)["username"])

	w = env.do(http.MethodGet, "/api/v1/notifications", body["access"].(string), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["unread"])
}

func TestLoginBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "ghost", "password": "whatever1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "ghost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	access, _ := env.token(t, models.RoleUser)
	w := env.do(http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh": access})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/v1/inputs", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/v1/inputs", "garbage", nil).Code)
}

func TestStaffOnlyRoutes(t *testing.T) {
	env := newTestEnv(t)
	user, _ := env.token(t, models.RoleUser)
	id := uuid.New().String()

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/inputs/pending"},
		{http.MethodPost, "/api/v1/inputs/" + id + "/predict"},
		{http.MethodPost, "/api/v1/inputs/" + id + "/send"},
		{http.MethodPost, "/api/v1/inputs/" + id + "/reject"},
		{http.MethodPatch, "/api/v1/outputs/" + id},
		{http.MethodGet, "/api/v1/prediction-logs"},
		{http.MethodPost, "/api/v1/waste"},
		{http.MethodGet, "/api/v1/manage/users"},
		{http.MethodGet, "/api/v1/manage/dashboard"},
		{http.MethodPost, "/api/v1/manage/reports"},
	} {
		w := env.do(r.method, r.path, user, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, "%s %s", r.method, r.path)
	}
}

func validRun() map[string]interface{} {
	return map[string]interface{}{
		"production_line":       "LINE_A",
		"feed_rate":             1000,
		"temperature":           960,
		"pressure":              101325,
		"power_consumption":     15000,
		"anode_effect":          0.3,
		"bath_ratio":            1.3,
		"alumina_concentration": 3.0,
	}
}

func TestSubmitInput(t *testing.T) {
	env := newTestEnv(t)
	token, uid := env.token(t, models.RoleUser)

	w := env.do(http.MethodPost, "/api/v1/inputs", token, validRun())
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, uid, env.predictions.lastActor.UserID)
	assert.False(t, env.predictions.lastActor.Staff)
	assert.Equal(t, 0.3, env.predictions.submitted.AnodeEffect)
}

func TestSubmitInputAnodeAlias(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.token(t, models.RoleUser)

	run := validRun()
	delete(run, "anode_effect")
	run["anode_effect_frequency"] = 0.7
	w := env.do(http.MethodPost, "/api/v1/inputs", token, run)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 0.7, env.predictions.submitted.AnodeEffect)

	delete(run, "anode_effect_frequency")
	w = env.do(http.MethodPost, "/api/v1/inputs", token, run)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "anode_effect is required", decode(t, w)["error"])
}

func TestSubmitInputMissingField(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.token(t, models.RoleUser)

	run := validRun()
	delete(run, "feed_rate")
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/inputs", token, run).Code)

	// zero is present, not missing
	run = validRun()
	run["temperature"] = 0
	assert.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/v1/inputs", token, run).Code)
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	env := newTestEnv(t)
	staff, _ := env.token(t, models.RoleStaff)
	id := uuid.New().String()

	tests := []struct {
		err    error
		status int
	}{
		{prediction.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: input was rejected", prediction.ErrWrongStatus), http.StatusConflict},
		{fmt.Errorf("%w: bad", prediction.ErrInvalid), http.StatusBadRequest},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		env.predictions.err = tt.err
		w := env.do(http.MethodPost, "/api/v1/inputs/"+id+"/predict", staff, nil)
		assert.Equal(t, tt.status, w.Code, tt.err.Error())
	}

	w := env.do(http.MethodPost, "/api/v1/inputs/"+id+"/predict", staff, nil)
	assert.Equal(t, "internal server error", decode(t, w)["error"])
}

func TestInvalidIDIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.token(t, models.RoleUser)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/inputs/not-a-uuid", token, nil).Code)
}

func TestListInputsQuery(t *testing.T) {
	env := newTestEnv(t)
	staff, _ := env.token(t, models.RoleStaff)

	w := env.do(http.MethodGet, "/api/v1/inputs?production_line=LINE_B&status=approved&limit=10&offset=20", staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.predictions.lastActor.Staff)
	assert.Equal(t, scoring.LineB, env.predictions.lastList.ProductionLine)
	assert.Equal(t, models.InputApproved, env.predictions.lastList.Status)
	assert.Equal(t, repository.Page{Limit: 10, Offset: 20}, env.predictions.lastList.Page)

	w = env.do(http.MethodGet, "/api/v1/inputs/pending", staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.InputPending, env.predictions.lastList.Status)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/inputs?limit=-1", staff, nil).Code)
}

func TestPreviewStrategy(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.token(t, models.RoleUser)

	run := validRun()
	run["strategy"] = "simple"
	w := env.do(http.MethodPost, "/api/v1/scoring/preview", token, run)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "v1.0.0-simple", decode(t, w)["model_version"])
}

func TestWasteVisibility(t *testing.T) {
	env := newTestEnv(t)
	user, uid := env.token(t, models.RoleUser)
	staff, _ := env.token(t, models.RoleStaff)

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/waste", user, nil).Code)
	require.NotNil(t, env.waste.lastFilter.OwnerID)
	assert.Equal(t, uid, *env.waste.lastFilter.OwnerID)
	assert.True(t, env.waste.lastFilter.SentOnly)

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/waste?production_line=LINE_C", staff, nil).Code)
	assert.Nil(t, env.waste.lastFilter.OwnerID)
	assert.False(t, env.waste.lastFilter.SentOnly)
	assert.Equal(t, scoring.LineC, env.waste.lastFilter.ProductionLine)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/waste?production_line=LINE_Z", staff, nil).Code)
}

func TestCreateWaste(t *testing.T) {
	env := newTestEnv(t)
	staff, uid := env.token(t, models.RoleStaff)

	w := env.do(http.MethodPost, "/api/v1/waste", staff, map[string]interface{}{
		"waste_amount": 12.5, "production_line": "LINE_A", "unit": "ton",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.UnitTon, env.waste.created.Unit)
	assert.Equal(t, models.DrossWasteType, env.waste.created.WasteType)
	assert.Equal(t, uid, *env.waste.created.RecordedBy)

	for _, body := range []map[string]interface{}{
		{"waste_amount": -1, "production_line": "LINE_A"},
		{"waste_amount": 1, "production_line": "LINE_Q"},
		{"waste_amount": 1, "production_line": "LINE_A", "unit": "barrel"},
		{"production_line": "LINE_A"},
	} {
		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/waste", staff, body).Code, body)
	}
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	staff, _ := env.token(t, models.RoleStaff)

	w := env.do(http.MethodGet, "/api/v1/manage/dashboard", staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var d Dashboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.EqualValues(t, 2, d.Users.Pending)
	assert.EqualValues(t, 7, d.Predictions.Total)
	assert.EqualValues(t, 4, d.Waste.Records)
	assert.EqualValues(t, 1, d.PendingInputs)
}

func TestDashboardError(t *testing.T) {
	h := NewManageHandler(fakeStats{err: errors.New("db down")}, &fakeReports{}, logging.Discard())
	engine := gin.New()
	engine.GET("/dashboard", h.Dashboard)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWeekStart(t *testing.T) {
	sunday := time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), weekStart(sunday))

	monday := time.Date(2026, 10, 12, 0, 0, 1, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), weekStart(monday))
}

func TestReports(t *testing.T) {
	env := newTestEnv(t)
	staff, _ := env.token(t, models.RoleStaff)

	w := env.do(http.MethodPost, "/api/v1/manage/reports", staff, map[string]interface{}{"type": "users"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "users_report.csv", decode(t, w)["filename"])

	w = env.do(http.MethodPost, "/api/v1/manage/reports", staff, map[string]interface{}{"type": "users", "download": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "users_report.csv")
	assert.Equal(t, "id\n1\n", w.Body.String())

	w = env.do(http.MethodPost, "/api/v1/manage/reports", staff, map[string]interface{}{"type": "pdf"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/v1/manage/reports", staff, map[string]interface{}{"type": "users", "notify": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/v1/manage/reports/archive?key=reports/users/2026/10/18/x.csv.enc", staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="x.csv"`)
}

func TestMarkNotificationRead(t *testing.T) {
	env := newTestEnv(t)
	token, uid := env.token(t, models.RoleUser)

	n, err := env.inbox.Notify(context.Background(), uid, notification.TypeReportReady, "Report ready", "done", nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/api/v1/notifications/"+n.ID.String()+"/read", token, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/api/v1/notifications/"+uuid.NewString()+"/read", token, nil).Code)

	w := env.do(http.MethodGet, "/api/v1/notifications", token, nil)
	assert.EqualValues(t, 0, decode(t, w)["unread"])
}

func TestDeactivatedAccountLosesAccess(t *testing.T) {
	env := newTestEnv(t)
	token, uid := env.token(t, models.RoleUser)
	staff, _ := env.token(t, models.RoleStaff)

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/v1/me", token, nil).Code)

	w := env.do(http.MethodPost, "/api/v1/manage/users/"+uid.String()+"/reject", staff, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/v1/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "account disabled", decode(t, w)["error"])
}

func TestWaitNotification(t *testing.T) {
	env := newTestEnv(t)
	token, uid := env.token(t, models.RoleUser)

	t.Run("should answer no content when nothing arrives", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/notifications/wait?timeout=20ms", token, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("should reject a bad timeout", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/v1/notifications/wait?timeout=soon", token, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = env.do(http.MethodGet, "/api/v1/notifications/wait?timeout=-1", token, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should deliver the next notification", func(t *testing.T) {
		done := make(chan *httptest.ResponseRecorder, 1)
		go func() {
			done <- env.do(http.MethodGet, "/api/v1/notifications/wait?timeout=2", token, nil)
		}()

		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case w := <-done:
				require.Equal(t, http.StatusOK, w.Code)
				assert.Equal(t, "Prediction ready", decode(t, w)["title"])
				return
			case <-ticker.C:
				_, err := env.inbox.Notify(context.Background(), uid, notification.TypePredictionReady, "Prediction ready", "", nil)
				require.NoError(t, err)
			}
		}
	})
}

func TestWaitTimeout(t *testing.T) {
	d, err := waitTimeout("")
	require.NoError(t, err)
	assert.Equal(t, defaultWait, d)

	d, err = waitTimeout("5")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	d, err = waitTimeout("10m")
	require.NoError(t, err)
	assert.Equal(t, maxWait, d)
}

func TestHealthAndWelcome(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["database"])

	env.dbErr = errors.New("refused")
	w = env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AluOptimize", decode(t, w)["service"])
}
