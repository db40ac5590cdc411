package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	assessmentHandler "github.com/rsyarsya/pneuscope/internal/handler/assessment"
	authHandler "github.com/rsyarsya/pneuscope/internal/handler/auth"
	"github.com/rsyarsya/pneuscope/internal/handler/health"
	patientHandler "github.com/rsyarsya/pneuscope/internal/handler/patient"
	"github.com/rsyarsya/pneuscope/internal/handler/prometheus"
	userHandler "github.com/rsyarsya/pneuscope/internal/handler/user"
	"github.com/rsyarsya/pneuscope/internal/middleware"
	"github.com/rsyarsya/pneuscope/internal/ml"
	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/internal/repository/memory"
	assessmentService "github.com/rsyarsya/pneuscope/internal/service/assessment"
	auditService "github.com/rsyarsya/pneuscope/internal/service/audit"
	authService "github.com/rsyarsya/pneuscope/internal/service/auth"
	eventService "github.com/rsyarsya/pneuscope/internal/service/event"
	patientService "github.com/rsyarsya/pneuscope/internal/service/patient"
	userService "github.com/rsyarsya/pneuscope/internal/service/user"
	"github.com/rsyarsya/pneuscope/pkg/auth"
	"github.com/rsyarsya/pneuscope/pkg/metrics"
	"github.com/rsyarsya/pneuscope/pkg/security"
	"github.com/rsyarsya/pneuscope/pkg/validator"
)

type predictorFunc func(ctx context.Context, samples []float64) (*ml.Prediction, error)

func (f predictorFunc) Predict(ctx context.Context, samples []float64) (*ml.Prediction, error) {
	return f(ctx, samples)
}

type testApp struct {
	engine *gin.Engine
	users  *memory.UserRepository
	audits *memory.AuditRepository
	hasher security.PasswordHasher
}

func newTestApp(t *testing.T, ready error) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.Register()

	users := memory.NewUserRepository()
	patients := memory.NewPatientRepository()
	assessments := memory.NewAssessmentRepository()
	audits := memory.NewAuditRepository()
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	m := metrics.NewMetrics("router_test")

	events := eventService.NewService(memory.NewOutboxRepository())
	auditor := auditService.NewService(audits)
	authSvc := authService.NewService(users, memory.NewTokenRepository(),
		auth.NewJWTService("router-test-secret", time.Hour), hasher, events, auditor)
	predictor := predictorFunc(func(context.Context, []float64) (*ml.Prediction, error) {
		return &ml.Prediction{RiskScore: 0.35}, nil
	})

	mw := middleware.NewAuthMiddleware(authSvc, "")
	r := NewRouter(Handlers{
		API: []Handler{
			authHandler.NewHandler(authSvc, mw, false),
			patientHandler.NewHandler(patientService.NewService(patients, users, assessments, events, auditor), mw, auditor),
			assessmentHandler.NewHandler(assessmentService.NewService(patients, users, assessments, predictor, events, auditor, m,
				assessmentService.Config{MaxSamples: 1000, HighRiskThreshold: 0.7}), mw, auditor),
			userHandler.NewHandler(userService.NewService(users, events, auditor), mw),
		},
		Health: health.NewHandler(map[string]health.Pinger{
			"postgres": health.PingFunc(func(context.Context) error { return ready }),
		}),
		Metric: prometheus.New(m),
	}, m, RouterConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		RequestTimeout: 5 * time.Second,
		MaxBodyBytes:   1 << 20,
	})

	return &testApp{engine: r.Engine(), users: users, audits: audits, hasher: hasher}
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func (a *testApp) login(t *testing.T, email, password string) string {
	t.Helper()
	rec, body := a.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (a *testApp) registerDoctor(t *testing.T, email string) string {
	t.Helper()
	rec, _ := a.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"name":                "Dr. Test",
		"email":               email,
		"password":            "secret1",
		"hospitalAffiliation": "General Hospital",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return a.login(t, email, "secret1")
}

func (a *testApp) createUser(t *testing.T, email string, role model.Role) string {
	t.Helper()
	hash, err := a.hasher.Hash("password1")
	require.NoError(t, err)
	require.NoError(t, a.users.Create(context.Background(), &model.User{
		Name: "Seeded", Email: email, PasswordHash: hash, Role: role, IsActive: true,
	}))
	return a.login(t, email, "password1")
}

func TestLoginSetsSessionCookie(t *testing.T) {
	app := newTestApp(t, nil)
	app.registerDoctor(t, "doc@example.com")

	rec, _ := app.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "doc@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "token" {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, session.SameSite)
	assert.NotEmpty(t, session.Value)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(session)
	me := httptest.NewRecorder()
	app.engine.ServeHTTP(me, req)
	assert.Equal(t, http.StatusOK, me.Code)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	app := newTestApp(t, nil)
	app.registerDoctor(t, "doc@example.com")

	rec, body := app.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "doc@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Invalid credentials", body["message"])
}

func TestRegisterDuplicateEmail(t *testing.T) {
	app := newTestApp(t, nil)
	app.registerDoctor(t, "doc@example.com")

	rec, body := app.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"name":                "Dr. Again",
		"email":               "DOC@example.com",
		"password":            "secret1",
		"hospitalAffiliation": "General Hospital",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists with this email", body["message"])
}

func TestRegisterValidation(t *testing.T) {
	app := newTestApp(t, nil)

	rec, body := app.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"name": "X", "email": "bad", "password": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, body["errors"])
}

func TestPatientLifecycle(t *testing.T) {
	app := newTestApp(t, nil)
	token := app.registerDoctor(t, "doc@example.com")

	rec, body := app.do(t, http.MethodPost, "/api/patients", token, gin.H{
		"name":        "Emma Thompson",
		"dateOfBirth": "2022-03-15",
		"allergies":   "Penicillin",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := body["patient"].(map[string]interface{})
	id := created["id"].(string)

	rec, body = app.do(t, http.MethodGet, "/api/patients", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, body = app.do(t, http.MethodPut, "/api/patients/"+id, token, gin.H{"allergies": "None"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "None", body["patient"].(map[string]interface{})["allergies"])

	rec, _ = app.do(t, http.MethodGet, "/api/patients/"+id, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var reads int
	for _, l := range app.audits.Logs() {
		if l.Action == model.AuditActionRead && l.EntityID == id {
			reads++
		}
	}
	assert.Equal(t, 1, reads)

	rec, _ = app.do(t, http.MethodDelete, "/api/patients/"+id, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = app.do(t, http.MethodGet, "/api/patients/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = app.do(t, http.MethodGet, "/api/patients/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlankNamesAreRejected(t *testing.T) {
	app := newTestApp(t, nil)
	token := app.registerDoctor(t, "doc@example.com")

	rec, body := app.do(t, http.MethodPost, "/api/patients", token, gin.H{"name": "    ", "dateOfBirth": "2022-01-01"})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.NotEmpty(t, body["errors"])

	_, body = app.do(t, http.MethodPost, "/api/patients", token, gin.H{"name": "Emma", "dateOfBirth": "2022-01-01"})
	id := body["patient"].(map[string]interface{})["id"].(string)

	rec, _ = app.do(t, http.MethodPut, "/api/patients/"+id, token, gin.H{"name": " a  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec, _ = app.do(t, http.MethodPut, "/api/auth/profile", token, gin.H{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec, body = app.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Dr. Test", body["user"].(map[string]interface{})["name"])

	rec, body = app.do(t, http.MethodGet, "/api/patients/"+id, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Emma", body["patient"].(map[string]interface{})["name"])
}

func TestPatientsRequireAuth(t *testing.T) {
	app := newTestApp(t, nil)

	rec, _ := app.do(t, http.MethodGet, "/api/patients", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParentCannotCreatePatients(t *testing.T) {
	app := newTestApp(t, nil)
	token := app.createUser(t, "parent@example.com", model.RoleParent)

	rec, _ := app.do(t, http.MethodPost, "/api/patients", token, gin.H{"name": "Kid", "dateOfBirth": "2022-01-01"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := app.do(t, http.MethodGet, "/api/patients/parent", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["count"])
}

func TestPredictAndHistory(t *testing.T) {
	app := newTestApp(t, nil)
	token := app.registerDoctor(t, "doc@example.com")

	_, body := app.do(t, http.MethodPost, "/api/patients", token, gin.H{"name": "Liam", "dateOfBirth": "2021-11-22"})
	id := body["patient"].(map[string]interface{})["id"].(string)

	rec, body := app.do(t, http.MethodPost, "/api/predict", token, gin.H{"patientId": id, "audio": []float64{10, 20, 30}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.InDelta(t, 0.35, body["risk_score"], 1e-9)
	assert.Equal(t, string(model.SourceMLService), body["source"])
	assert.Equal(t, false, body["high_risk"])

	rec, body = app.do(t, http.MethodGet, "/api/assessments/patient/"+id, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, _ = app.do(t, http.MethodPost, "/api/predict", token, gin.H{"patientId": id})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictRejectsOutOfRangeSamples(t *testing.T) {
	app := newTestApp(t, nil)
	token := app.registerDoctor(t, "doc@example.com")

	_, body := app.do(t, http.MethodPost, "/api/patients", token, gin.H{"name": "Liam", "dateOfBirth": "2021-11-22"})
	id := body["patient"].(map[string]interface{})["id"].(string)

	req := httptest.NewRequest(http.MethodPost, "/api/predict",
		strings.NewReader(`{"patientId":"`+id+`","audio":[1e308,1e308]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	app.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"field":"audio"`)

	rec, body = app.do(t, http.MethodGet, "/api/assessments/patient/"+id, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 0, body["count"])
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	app := newTestApp(t, nil)
	doctor := app.registerDoctor(t, "doc@example.com")

	rec, _ := app.do(t, http.MethodGet, "/api/admin/doctors", doctor, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := app.createUser(t, "admin@example.com", model.RoleAdmin)
	rec, body := app.do(t, http.MethodGet, "/api/admin/doctors", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, body["doctors"], 1)
	assert.NotNil(t, body["pagination"])
}

func TestHealthEndpoints(t *testing.T) {
	app := newTestApp(t, nil)
	rec, body := app.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = app.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestApp(t, errors.New("connection refused"))
	rec, body = down.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotNil(t, body["checks"])
}

func TestMetricsAndUnknownRoutes(t *testing.T) {
	app := newTestApp(t, nil)

	rec, _ := app.do(t, http.MethodGet, "/api/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = app.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "router_test_http_requests_total")
}

func TestAdminCreatesPatientForDoctor(t *testing.T) {
	app := newTestApp(t, nil)
	doctorToken := app.registerDoctor(t, "doc@example.com")
	adminToken := app.createUser(t, "admin@example.com", model.RoleAdmin)
	doctor, err := app.users.GetByEmail(context.Background(), "doc@example.com")
	require.NoError(t, err)

	rec, _ := app.do(t, http.MethodPost, "/api/patients", adminToken, gin.H{
		"name": "Emma", "dateOfBirth": "2022-01-01", "doctorId": "not-a-uuid",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := app.do(t, http.MethodPost, "/api/patients", adminToken, gin.H{
		"name": "Emma", "dateOfBirth": "2022-01-01", "doctorId": doctor.ID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, doctor.ID.String(), body["patient"].(map[string]interface{})["doctorId"])

	rec, body = app.do(t, http.MethodGet, "/api/patients", doctorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
}
