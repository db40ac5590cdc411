package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/pkg/auth"
	apperrors "github.com/rsyarsya/pneuscope/pkg/errors"
	"github.com/rsyarsya/pneuscope/pkg/httputil"
	"github.com/rsyarsya/pneuscope/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAuthenticator struct {
	users map[string]*model.User
}

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (*auth.Claims, *model.User, error) {
	user, ok := s.users[token]
	if !ok {
		return nil, nil, apperrors.Unauthorized("Invalid token", nil)
	}
	return &auth.Claims{UserID: user.ID, Role: string(user.Role)}, user, nil
}

func decode(t *testing.T, w *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var body httputil.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func newAuthEngine() (*gin.Engine, *model.User, *model.User) {
	doctor := &model.User{Role: model.RoleDoctor}
	doctor.ID = uuid.New()
	parent := &model.User{Role: model.RoleParent}
	parent.ID = uuid.New()

	m := NewAuthMiddleware(stubAuthenticator{users: map[string]*model.User{
		"doctor-token": doctor,
		"parent-token": parent,
	}}, "token")

	r := gin.New()
	r.GET("/me", m.Authenticate(), func(c *gin.Context) {
		c.String(http.StatusOK, Actor(c).UserID.String())
	})
	r.GET("/doctors-only", m.Authenticate(), m.Authorize(model.RoleDoctor, model.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, doctor, parent
}

func TestAuthenticateReadsCookieOrBearer(t *testing.T) {
	r, doctor, _ := newAuthEngine()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "doctor-token"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, doctor.ID.String(), w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer doctor-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	r, _, _ := newAuthEngine()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decode(t, w)
	assert.False(t, body.Success)
	assert.Equal(t, "Invalid token", body.Message)
}

func TestAuthorizeByRole(t *testing.T) {
	r, _, _ := newAuthEngine()

	req := httptest.NewRequest(http.MethodGet, "/doctors-only", nil)
	req.Header.Set("Authorization", "Bearer parent-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Access denied", decode(t, w).Message)

	req = httptest.NewRequest(http.MethodGet, "/doctors-only", nil)
	req.Header.Set("Authorization", "Bearer doctor-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRecoveryRespondsWith500(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(t, w).Message)
	assert.NotEmpty(t, w.Header().Get(HeaderXRequestID))
}

func TestRequestIDIsPropagated(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))
}

func TestErrorHandlerRendersAttachedError(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/missing", func(c *gin.Context) { _ = c.Error(apperrors.NotFound("Patient", nil)) })
	r.GET("/opaque", func(c *gin.Context) { _ = c.Error(errors.New("db exploded")) })
	r.NoRoute(NoRoute())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Patient not found", decode(t, w).Message)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/opaque", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(t, w).Message)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimitIsPerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RPS: 0.001, Burst: 2})
	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	hit := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.2"))
}

func TestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(SizeLimit(16))
	r.POST("/", func(c *gin.Context) {
		var v map[string]interface{}
		if err := c.ShouldBindJSON(&v); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"`+strings.Repeat("x", 64)+`"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	for _, production := range []bool{true, false} {
		r := gin.New()
		r.Use(SecurityHeaders(DefaultSecurityConfig(production)))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, production, w.Header().Get("Strict-Transport-Security") != "")
	}
}

func TestCORSAllowsConfiguredOriginWithCredentials(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.True(t, OriginAllowed([]string{"http://localhost:3000"}, ""))
	assert.False(t, OriginAllowed([]string{"http://localhost:3000"}, "http://evil.example"))
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	m := metrics.NewMetrics("test")
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/patients/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/patients/"+uuid.NewString(), nil))
	}

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() != "test_http_requests_total" {
			continue
		}
		require.Len(t, f.GetMetric(), 1)
		assert.Equal(t, 3.0, f.GetMetric()[0].GetCounter().GetValue())
		found = true
	}
	assert.True(t, found)
}
