package middleware

import (
	"caseprep_backend/internal/config"
	"caseprep_backend/internal/model"
	"caseprep_backend/internal/util"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJWT = &config.JWTConfig{Secret: "secret", ExpireTime: time.Hour}

func init() {
	gin.SetMode(gin.TestMode)
}

func tokenFor(t *testing.T, role model.UserRole) string {
	t.Helper()
	token, err := util.GenerateJWT(&model.User{
		UUIDBase: model.UUIDBase{ID: "user-1"},
		Email:    "ada@example.com",
		Role:     role,
	}, testJWT.Secret, testJWT.ExpireTime)
	require.NoError(t, err)
	return token
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		c.String(http.StatusOK, claims.UserID)
	})
	r.GET("/protected", handlers...)
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(AuthMiddleware(testJWT))
	token := tokenFor(t, model.Candidate)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK},
		{"query token", "", "?token=" + token, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, "", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "user-1", w.Body.String())
			}
		})
	}
}

func TestRoleMiddleware(t *testing.T) {
	r := newRouter(AuthMiddleware(testJWT), RoleMiddleware(model.Admin))

	for role, want := range map[model.UserRole]int{
		model.Candidate: http.StatusForbidden,
		model.Admin:     http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, role))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, string(role))
	}
}

type countingEnsurer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *countingEnsurer) EnsureUser(ctx context.Context, claims *util.Claims) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.err
}

func TestUserSyncMiddlewareEnsuresOnce(t *testing.T) {
	ensurer := &countingEnsurer{}
	r := newRouter(AuthMiddleware(testJWT), UserSyncMiddleware(ensurer))
	token := tokenFor(t, model.Candidate)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 1, ensurer.calls)
}

func TestUserSyncMiddlewareFailure(t *testing.T) {
	ensurer := &countingEnsurer{err: errors.New("db down")}
	r := newRouter(AuthMiddleware(testJWT), UserSyncMiddleware(ensurer))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, model.Candidate))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type activityRecorder struct {
	seen chan string
}

func (a *activityRecorder) TouchLastSeen(ctx context.Context, userID string) error {
	a.seen <- userID
	return nil
}

func TestActivityMiddleware(t *testing.T) {
	recorder := &activityRecorder{seen: make(chan string, 1)}
	r := newRouter(AuthMiddleware(testJWT), ActivityMiddleware(recorder))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, model.Candidate))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case id := <-recorder.seen:
		assert.Equal(t, "user-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("last seen was not recorded")
	}
}
