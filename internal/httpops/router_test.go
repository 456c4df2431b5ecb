package httpops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/osokin/go-group-warden/internal/cache"
	"github.com/osokin/go-group-warden/internal/config"
	"github.com/osokin/go-group-warden/internal/domain"
	"github.com/osokin/go-group-warden/internal/policy"
	"github.com/osokin/go-group-warden/internal/repo"
)

type nopStore struct{}

func (nopStore) Get(context.Context, string) (string, error)              { return "", cache.ErrMiss }
func (nopStore) Set(context.Context, string, string, time.Duration) error { return nil }
func (nopStore) Delete(context.Context, string) error                     { return nil }
func (nopStore) Exists(context.Context, string) (bool, error)             { return false, nil }
func (nopStore) TTL(context.Context, string) (time.Duration, error)       { return 0, nil }

func testConfig() config.Config {
	return config.Config{
		OpsPort:           "0",
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
		RateRPS:           100,
		RateBurst:         100,
	}
}

func newRouter(t *testing.T, checks map[string]ReadyCheck) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := gin.New()
	RegisterRoutes(r, db, policy.NewRepository(db, nopStore{}), testConfig(), checks)
	return r, db
}

func do(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.10:4711"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r, _ := newRouter(t, nil)
	w := do(r, http.MethodGet, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["status"] != "ok" {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestReadyzReady(t *testing.T) {
	r, _ := newRouter(t, map[string]ReadyCheck{
		"redis": func(context.Context) error { return nil },
	})
	if w := do(r, http.MethodGet, "/readyz"); w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestReadyzDegraded(t *testing.T) {
	r, _ := newRouter(t, map[string]ReadyCheck{
		"redis":  func(context.Context) error { return errors.New("connection refused") },
		"sqlite": func(context.Context) error { return nil },
	})
	w := do(r, http.MethodGet, "/readyz")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Status   string            `json:"status"`
		Failures map[string]string `json:"failures"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body = %s", w.Body.String())
	}
	if body.Status != "degraded" || body.Failures["redis"] == "" || body.Failures["sqlite"] != "" {
		t.Fatalf("body = %+v", body)
	}
}

func TestGetPolicy(t *testing.T) {
	r, _ := newRouter(t, nil)
	w := do(r, http.MethodGet, "/api/v1/groups/500/policy")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var pol domain.GroupPolicy
	if err := json.Unmarshal(w.Body.Bytes(), &pol); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pol.GroupID != 500 || pol.ChallengeEnabled {
		t.Fatalf("policy = %+v", pol)
	}
}

func TestGetPolicyBadID(t *testing.T) {
	r, _ := newRouter(t, nil)
	w := do(r, http.MethodGet, "/api/v1/groups/not-a-number/policy")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Code != codeBadRequest {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestListRestrictions(t *testing.T) {
	r, db := newRouter(t, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := repo.AppendRestriction(ctx, db, &domain.RestrictionRecord{
			GroupID: 500, UserID: int64(i + 1), Type: "photo_filter", Reason: "test",
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	w := do(r, http.MethodGet, "/api/v1/groups/500/restrictions?limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Restrictions []domain.RestrictionRecord `json:"restrictions"`
		Count        int                        `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 || len(body.Restrictions) != 2 {
		t.Fatalf("body = %+v", body)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	r, _ := newRouter(t, nil)
	w := do(r, http.MethodGet, "/healthz")
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("no request id header")
	}
}

func TestRateLimiterRejectsBeyondBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0, 2)
	r := gin.New()
	r.GET("/x", rl.Handler(), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		if w := do(r, http.MethodGet, "/x"); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, w.Code)
		}
	}
	w := do(r, http.MethodGet, "/x")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("no Retry-After hint")
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0, 1)
	r := gin.New()
	r.GET("/x", rl.Handler(), func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRequest(http.MethodGet, "/x", nil)
	first.RemoteAddr = "192.0.2.1:1000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, first)
	if w.Code != http.StatusOK {
		t.Fatalf("first client status = %d", w.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/x", nil)
	second.RemoteAddr = "192.0.2.2:1000"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, second)
	if w.Code != http.StatusOK {
		t.Fatalf("second client status = %d", w.Code)
	}
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := do(r, http.MethodGet, "/boom")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Code != codeInternal {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestNewServerTimeouts(t *testing.T) {
	srv := NewServer(testConfig(), gin.New())
	if srv.Addr != ":0" || srv.ReadTimeout != 15*time.Second || srv.IdleTimeout != time.Minute {
		t.Fatalf("server = %+v", srv)
	}
}
