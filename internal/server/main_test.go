package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dermai/internal/bootstrap"
	"dermai/internal/config"
	"dermai/internal/middleware"
	"dermai/internal/models"
	"dermai/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret-that-is-at-least-32-chars"

type testEnv struct {
	srv *Server
	cfg *config.Config
	db  *gorm.DB
	mr  *miniredis.Miniredis
	rdb *redis.Client

	doctor   *models.User
	patient  *models.User
	stranger *models.User
}

func testConfig(flags string) *config.Config {
	return &config.Config{
		JWTSecret:      testJWTSecret,
		JWTIssuer:      "dermai-api",
		JWTAudience:    "dermai-client",
		Port:           "0",
		AllowedOrigins: "http://localhost:5173",
		FeatureFlags:   flags,
		RealtimeRelay:  config.RelayLocal,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithFlags(t, "")
}

func newTestEnvWithFlags(t *testing.T, flags string) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	db := testutil.NewTestDB(t)
	cfg := testConfig(flags)

	srv, err := NewServer(cfg, bootstrap.NewRuntime(db, rdb, nil))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = srv.hub.Shutdown(context.Background())
		srv.shutdownFn()
		_ = rdb.Close()
	})

	doctor, patient := testutil.CreatePair(t, db)
	stranger := testutil.CreateUser(t, db, models.RolePatient, "Sam", "Stranger")

	return &testEnv{srv: srv, cfg: cfg, db: db, mr: mr, rdb: rdb, doctor: doctor, patient: patient, stranger: stranger}
}

func (env *testEnv) token(t *testing.T, u *models.User) string {
	t.Helper()
	tok, err := middleware.IssueToken(env.cfg, u.ID, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a JSON request as user (nil for anonymous) and returns status and body.
func (env *testEnv) do(t *testing.T, method, path string, body interface{}, user *models.User) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+env.token(t, user))
	}
	return env.send(t, req)
}

func (env *testEnv) send(t *testing.T, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := env.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}
