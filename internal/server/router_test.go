package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evolnow/backend/internal/apperr"
	"github.com/evolnow/backend/internal/audit"
	"github.com/evolnow/backend/internal/auth"
	"github.com/evolnow/backend/internal/metrics"
	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store/memory"
	"github.com/evolnow/backend/internal/testutil"
	"github.com/evolnow/backend/pkg/utils"
)

type env struct {
	t      *testing.T
	router *gin.Engine
	f      *testutil.Fixture
	store  *memory.Store
	rec    *audit.MemoryRecorder
}

func newEnv(t *testing.T) *env {
	gin.SetMode(gin.TestMode)
	s := memory.New()
	rec := &audit.MemoryRecorder{}
	r := NewRouter(Deps{
		Store:       s,
		JWT:         auth.NewJWTService("test-secret", 1),
		Audit:       rec,
		Metrics:     metrics.New(),
		Logger:      zap.NewNop(),
		CORSOrigins: "*",
		MetricsPath: "/metrics",
	})
	return &env{t: t, router: r, f: testutil.New(t, s), store: s, rec: rec}
}

// withPassword sets a known password on a fixture user.
func (e *env) withPassword(id uuid.UUID, password string) {
	e.t.Helper()
	u, err := e.store.GetUser(e.f.Ctx, id)
	require.NoError(e.t, err)
	u.Password, err = utils.HashPassword(password)
	require.NoError(e.t, err)
	require.NoError(e.t, e.store.UpdateUser(e.f.Ctx, u))
}

func (e *env) do(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func (e *env) login(email, password string) string {
	e.t.Helper()
	w, body := e.do(http.MethodPost, "/login", "", gin.H{"email": email, "password": password})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	return body["data"].(map[string]any)["token"].(string)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	w, body := e.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	w, _ = e.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "evolnow_http_requests_total")
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/me", "/admin/opportunities", "/admin/organizations", "/admin/users"} {
		w, body := e.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, false, body["success"])
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	e := newEnv(t)
	u := e.f.User("u@example.org")
	e.withPassword(u.UserID, "password1")

	w, _ := e.do(http.MethodPost, "/login", "", gin.H{"email": "u@example.org", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = e.do(http.MethodPost, "/login", "", gin.H{"email": "nobody@example.org", "password": "password1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestManagerFlow(t *testing.T) {
	e := newEnv(t)
	x, y := e.f.Org("X"), e.f.Org("Y")
	m := e.f.Manager("m@example.org", x)
	e.withPassword(m.UserID, "password1")
	token := e.login("m@example.org", "password1")

	w, body := e.do(http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := body["data"].(map[string]any)
	assert.Equal(t, []any{string(models.RoleOrganizationManager)}, me["roles"])

	w, _ = e.do(http.MethodPost, "/admin/opportunities", token, gin.H{"name": "Beach cleanup", "organization_ids": []uuid.UUID{x}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, _ = e.do(http.MethodPost, "/admin/opportunities", token, gin.H{"name": "Foreign", "organization_ids": []uuid.UUID{y}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body = e.do(http.MethodPost, "/admin/opportunities", token, gin.H{"name": "Nobody's", "organization_ids": []uuid.UUID{}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperr.MsgMustSelectOrg, body["error"])

	w, _ = e.do(http.MethodPost, "/admin/opportunities", token, gin.H{"description": "no name"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, body = e.do(http.MethodGet, "/admin/opportunities", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := body["data"].(map[string]any)
	assert.Len(t, page["data"], 1)

	w, _ = e.do(http.MethodGet, "/admin/opportunities/"+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = e.do(http.MethodGet, "/admin/opportunities/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(http.MethodGet, "/admin/users", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = e.do(http.MethodPost, "/admin/organizations", token, gin.H{"name": "Mine"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Contains(t, e.rec.Actions(), "opportunity.create")
}

func TestAdminUserLifecycle(t *testing.T) {
	e := newEnv(t)
	admin := e.f.Admin("admin@example.org")
	e.withPassword(admin.UserID, "password1")
	token := e.login("admin@example.org", "password1")
	org := e.f.Org("Org1")

	w, body := e.do(http.MethodPost, "/admin/users", token, gin.H{
		"first_name": "New", "last_name": "User", "email": "new@example.org",
		"password": "password2", "organization_ids": []uuid.UUID{org},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := body["data"].(map[string]any)["id"].(string)

	userToken := e.login("new@example.org", "password2")
	w, _ = e.do(http.MethodGet, "/me", userToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = e.do(http.MethodPost, "/admin/users", token, gin.H{"first_name": "A", "last_name": "B", "email": "new@example.org"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = e.do(http.MethodPut, "/admin/users/"+id, token, gin.H{"first_name": "A", "last_name": "B", "email": "new@example.org", "roles": []string{"superuser"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = e.do(http.MethodDelete, "/admin/users/"+id, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// The deleted user's token no longer resolves.
	w, _ = e.do(http.MethodGet, "/me", userToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPublicSearch(t *testing.T) {
	e := newEnv(t)
	x := e.f.Org("Harbor Trust")
	e.f.Opportunity("Beach cleanup", x)
	e.f.Opportunity("Library night")

	w, body := e.do(http.MethodGet, "/opportunities?name=beach", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := body["data"].(map[string]any)
	assert.Len(t, page["data"], 1)

	w, body = e.do(http.MethodPost, "/opportunities/search", "", gin.H{
		"filters": []gin.H{{"field": "organization", "value": "Harbor Trust"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	page = body["data"].(map[string]any)
	assert.Len(t, page["data"], 1)

	w, _ = e.do(http.MethodGet, "/opportunities?start_date=not-a-date", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
