package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aluoptimize/aluoptimize/internal/models"
	"github.com/aluoptimize/aluoptimize/internal/services/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type activeSet struct {
	ids map[uuid.UUID]bool
	err error
}

func (a *activeSet) IsActive(_ context.Context, id uuid.UUID) (bool, error) {
	return a.ids[id], a.err
}

func protectedRouter(tokens *auth.Tokens, roles ...models.Role) *gin.Engine {
	return activeRouter(tokens, nil, roles...)
}

func activeRouter(tokens *auth.Tokens, active ActiveChecker, roles ...models.Role) *gin.Engine {
	r := gin.New()
	group := r.Group("/", Auth(tokens, active))
	if len(roles) > 0 {
		group.Use(RequireRole(roles...))
	}
	group.GET("/whoami", func(c *gin.Context) {
		id, _ := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id, "staff": IsStaff(c)})
	})
	return r
}

func get(r http.Handler, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	tokens := auth.NewTokens("secret", time.Minute, time.Hour)
	user := &models.User{ID: uuid.New(), Username: "op", Role: models.RoleUser}
	pair, err := tokens.Issue(user)
	require.NoError(t, err)

	t.Run("should reject missing and malformed headers", func(t *testing.T) {
		r := protectedRouter(tokens)
		assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "").Code)
		assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", pair.Access).Code)
		assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "Bearer ").Code)
	})

	t.Run("should reject refresh tokens", func(t *testing.T) {
		r := protectedRouter(tokens)
		assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "Bearer "+pair.Refresh).Code)
	})

	t.Run("should expose the caller", func(t *testing.T) {
		r := protectedRouter(tokens)
		w := get(r, "/whoami", "Bearer "+pair.Access)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), user.ID.String())
		assert.Contains(t, w.Body.String(), `"staff":false`)
	})

	t.Run("should enforce roles", func(t *testing.T) {
		r := protectedRouter(tokens, models.RoleStaff, models.RoleAdmin)
		assert.Equal(t, http.StatusForbidden, get(r, "/whoami", "Bearer "+pair.Access).Code)

		staff, err := tokens.Issue(&models.User{ID: uuid.New(), Role: models.RoleStaff})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, get(r, "/whoami", "Bearer "+staff.Access).Code)
	})

	t.Run("should refuse tokens of deactivated accounts", func(t *testing.T) {
		active := &activeSet{ids: map[uuid.UUID]bool{user.ID: true}}
		r := activeRouter(tokens, active)
		assert.Equal(t, http.StatusOK, get(r, "/whoami", "Bearer "+pair.Access).Code)

		active.ids[user.ID] = false
		w := get(r, "/whoami", "Bearer "+pair.Access)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "account disabled")

		orphan, err := tokens.Issue(&models.User{ID: uuid.New(), Role: models.RoleUser})
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "Bearer "+orphan.Access).Code)

		active.err = errors.New("database unavailable")
		assert.Equal(t, http.StatusInternalServerError, get(r, "/whoami", "Bearer "+pair.Access).Code)
	})

	t.Run("should deny role checks without auth", func(t *testing.T) {
		r := gin.New()
		r.GET("/x", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
		assert.Equal(t, http.StatusForbidden, get(r, "/x", "").Code)
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("should allow a burst of twice the rate then refuse", func(t *testing.T) {
		now := time.Unix(1700000000, 0)
		rl := NewRateLimiter(2)
		rl.now = func() time.Time { return now }

		for i := 0; i < 4; i++ {
			assert.True(t, rl.Allow("10.0.0.1"), "request %d", i)
		}
		assert.False(t, rl.Allow("10.0.0.1"))
		assert.True(t, rl.Allow("10.0.0.2"), "keys are independent")

		now = now.Add(time.Second)
		assert.True(t, rl.Allow("10.0.0.1"))
		assert.True(t, rl.Allow("10.0.0.1"))
		assert.False(t, rl.Allow("10.0.0.1"))
	})

	t.Run("should be safe for concurrent use", func(t *testing.T) {
		rl := NewRateLimiter(50)
		var wg sync.WaitGroup
		var mu sync.Mutex
		allowed := 0
		for i := 0; i < 200; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if rl.Allow("shared") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.GreaterOrEqual(t, allowed, 100)
		assert.Less(t, allowed, 200)
	})

	t.Run("should drop idle buckets", func(t *testing.T) {
		now := time.Unix(1700000000, 0)
		rl := NewRateLimiter(1)
		rl.now = func() time.Time { return now }
		rl.Allow("old")

		now = now.Add(2 * time.Hour)
		rl.Allow("fresh")
		rl.CleanupOldBuckets(time.Hour)

		assert.NotContains(t, rl.buckets, "old")
		assert.Contains(t, rl.buckets, "fresh")
	})

	t.Run("should answer 429 from the middleware", func(t *testing.T) {
		r := gin.New()
		r.Use(RateLimit(NewRateLimiter(1)))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		codes := []int{get(r, "/", "").Code, get(r, "/", "").Code, get(r, "/", "").Code}
		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://plant.example"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("should echo an allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://plant.example")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "https://plant.example", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("should ignore other origins", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("should short-circuit preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "https://plant.example")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}
