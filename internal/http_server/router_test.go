package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qonbaq/internal/auth"
	"qonbaq/internal/config"
	"qonbaq/internal/events"
	"qonbaq/internal/lib/jwt"
	"qonbaq/internal/lib/metrics"
	"qonbaq/internal/lib/password"
	"qonbaq/internal/storage/sqlite"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	srv   *httptest.Server
	store *sqlite.Storage
	svc   *auth.Auth
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.New(ctx, "file:"+t.Name()+"?mode=memory&cache=shared", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	tokens := jwt.New(config.JWT{
		AccessSecret:  "access-secret",
		AccessTTL:     config.Duration(15 * time.Minute),
		RefreshSecret: "refresh-secret",
		RefreshTTL:    config.Duration(7 * 24 * time.Hour),
	})

	reg := prometheus.NewRegistry()
	publisher := events.NewMulti(log, metrics.New(reg))

	svc := auth.New(log, store, store, store, store, tokens, password.New(bcrypt.MinCost), publisher, tokens.RefreshTTL())

	router := NewRouter(log, Deps{
		Auth:        svc,
		Tokens:      tokens,
		Metrics:     reg,
		CORSOrigins: []string{"http://localhost:5173"},
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, store: store, svc: svc}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 && strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}

	return res.StatusCode, out
}

func TestScenario_RegisterMeRefresh(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "a@x.com",
		"username": "alice",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, status)

	access, _ := body["accessToken"].(string)
	refreshToken, _ := body["refreshToken"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refreshToken)

	user := body["user"].(map[string]any)
	assert.Equal(t, "a@x.com", user["email"])
	assert.NotContains(t, user, "passHash")

	status, body = ts.do(t, http.MethodGet, "/auth/me", access, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "a@x.com", body["user"].(map[string]any)["email"])

	status, body = ts.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": refreshToken})
	require.Equal(t, http.StatusOK, status)
	newRefresh, _ := body["refreshToken"].(string)
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEqual(t, refreshToken, newRefresh)

	status, _ = ts.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": refreshToken})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = ts.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": newRefresh})
	assert.Equal(t, http.StatusOK, status)
}

func TestScenario_Conflicts(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "a@x.com", "username": "alice", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := ts.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "A@X.com", "username": "bob", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "User with this email already exists", body["error"])

	status, body = ts.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "b@x.com", "username": "alice", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "User with this username already exists", body["error"])
}

func TestScenario_LoginDoesNotLeakExistence(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "a@x.com", "username": "alice", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, status)

	status, _ = ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "secret1"})
	assert.Equal(t, http.StatusOK, status)

	wrongStatus, wrongBody := ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "a@x.com", "password": "nope"})
	unknownStatus, unknownBody := ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "z@x.com", "password": "secret1"})

	assert.Equal(t, http.StatusUnauthorized, wrongStatus)
	assert.Equal(t, wrongStatus, unknownStatus)
	assert.Equal(t, wrongBody, unknownBody)
}

func TestScenario_Logout(t *testing.T) {
	ts := newTestServer(t)

	_, body := ts.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "a@x.com", "username": "alice", "password": "secret1",
	})
	refreshToken := body["refreshToken"].(string)

	status, _ := ts.do(t, http.MethodPost, "/auth/logout", "", map[string]string{"refreshToken": "unknown"})
	assert.Equal(t, http.StatusNotFound, status)

	status, body = ts.do(t, http.MethodPost, "/auth/logout", "", map[string]string{"refreshToken": refreshToken})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Logged out successfully", body["message"])

	status, _ = ts.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": refreshToken})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestScenario_MeRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", body["error"])

	status, _ = ts.do(t, http.MethodGet, "/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	_, body = ts.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email": "a@x.com", "username": "alice", "password": "secret1",
	})
	refreshToken := body["refreshToken"].(string)

	status, _ = ts.do(t, http.MethodGet, "/auth/me", refreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	ts.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "z@x.com", "password": "secret1"})

	res, err := ts.srv.Client().Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(raw), `qonbaq_auth_events_total{reason="unknown_user",type="login_failed"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.srv.URL+"/auth/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")

	res, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "http://localhost:5173", res.Header.Get("Access-Control-Allow-Origin"))
}
