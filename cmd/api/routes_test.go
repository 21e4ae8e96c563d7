package main

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-grocery/internal/audit"
	"github.com/noah-isme/backend-grocery/internal/common"
	"github.com/noah-isme/backend-grocery/internal/discount"
	"github.com/noah-isme/backend-grocery/internal/geo"
	"github.com/noah-isme/backend-grocery/internal/health"
	"github.com/noah-isme/backend-grocery/internal/ratelimit"
	"github.com/noah-isme/backend-grocery/internal/security"
	"github.com/noah-isme/backend-grocery/internal/stores"
)

type staticDirectory []geo.StoreCandidate

func (d staticDirectory) List(context.Context) ([]geo.StoreCandidate, error) { return d, nil }

type emptyQuerier struct{}

func (emptyQuerier) GetRule(context.Context, uuid.UUID) (discount.Rule, error) {
	return discount.Rule{}, discount.ErrNotFound
}
func (emptyQuerier) ListRules(context.Context, int, int) ([]discount.Rule, int, error) {
	return []discount.Rule{}, 0, nil
}
func (emptyQuerier) ListActiveRules(context.Context, time.Time) ([]discount.Rule, error) {
	return nil, nil
}
func (emptyQuerier) CreateRule(_ context.Context, r discount.Rule) (discount.Rule, error) {
	return r, nil
}
func (emptyQuerier) UpdateRule(context.Context, discount.Rule) (discount.Rule, error) {
	return discount.Rule{}, discount.ErrNotFound
}
func (emptyQuerier) CountCustomerUsage(context.Context, uuid.UUID, uuid.UUID) (int, error) {
	return 0, nil
}
func (emptyQuerier) RecordUsage(context.Context, discount.Usage) (bool, error) { return false, nil }

type memAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memAudit) InsertEntry(_ context.Context, e audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAudit) ListEntries(context.Context, int, int) ([]audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Entry(nil), m.entries...), nil
}

type okChecker struct{}

func (okChecker) PingDB(context.Context, time.Duration) error    { return nil }
func (okChecker) PingRedis(context.Context, time.Duration) error { return nil }

func testServer(t *testing.T) http.Handler {
	t.Helper()
	return testServerWithAudit(t, &memAudit{})
}

func testServerWithAudit(t *testing.T, auditStore *memAudit) http.Handler {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	storeSvc, err := stores.NewService(stores.ServiceConfig{Directory: staticDirectory{
		{ID: "menteng", Name: "Toko Menteng", Coordinate: geo.Coordinate{Lat: -6.1944, Lon: 106.8229}},
	}})
	require.NoError(t, err)

	return server{
		Logger:    zerolog.Nop(),
		Headers:   security.Headers{Enable: true},
		BodyLimit: security.BodyLimit{Max: 1 << 10},
		AdminKey:  security.AdminKey{Key: "rahasia"},
		RateLimit: ratelimit.Handler{
			Limiter: ratelimit.Limiter{Client: client, Prefix: "test:rl:"},
			Config:  ratelimit.Config{Key: ratelimit.KeyByClientIP("pricing"), Window: time.Minute, Max: 2},
		},
		Idem:         common.Idem{R: client, TTL: time.Minute},
		Health:       health.Handler{Checker: okChecker{}},
		Stores:       stores.NewHandler(storeSvc),
		Discounts:    &discount.Handler{Svc: &discount.Service{Q: emptyQuerier{}}},
		Audit:        audit.HTTPRecorder{Service: &audit.Service{Store: auditStore, Enabled: true}},
		AuditLogs:    audit.Handler{Store: auditStore},
		PprofEnabled: true,
		PprofUser:    "ops",
		PprofPass:    "pw",
	}.routes()
}

func get(h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRoutesPublicEndpoints(t *testing.T) {
	h := testServer(t)

	rr := get(h, "/health/live", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = get(h, "/api/v1/stores/nearest?lat=-6.1754&lon=106.8272", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "menteng")

	rr = get(h, "/api/v1/categories/fruits/icon", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "apple")
}

func TestRoutesAdminRequiresKey(t *testing.T) {
	h := testServer(t)

	rr := get(h, "/api/v1/admin/discounts", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = get(h, "/api/v1/admin/discounts", map[string]string{security.AdminKeyHeader: "rahasia"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "0", rr.Header().Get("X-Total-Count"))
}

func TestRoutesPricingIsRateLimited(t *testing.T) {
	h := testServer(t)
	path := "/api/v1/discounts/" + uuid.NewString() + "/evaluate"

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "203.0.113.9:4000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}

func TestRoutesPprofProtected(t *testing.T) {
	h := testServer(t)
	rr := get(h, "/debug/pprof/", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRoutesAdminMutationsAreAudited(t *testing.T) {
	store := &memAudit{}
	h := testServerWithAudit(t, store)
	id := uuid.NewString()

	body := `{"name":"Diskon Akhir Pekan","type":"REGULAR","valueType":"PERCENTAGE","value":10,` +
		`"startDate":"2026-04-01T00:00:00Z","endDate":"2026-06-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/discounts/"+id, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(security.AdminKeyHeader, "rahasia")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code, rr.Body.String())

	rr = get(h, "/api/v1/admin/discounts", map[string]string{security.AdminKeyHeader: "rahasia"})
	require.Equal(t, http.StatusOK, rr.Code)

	store.mu.Lock()
	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	store.mu.Unlock()
	require.Equal(t, "admin", entry.Actor)
	require.Equal(t, "discount.update", entry.Action)
	require.Equal(t, id, *entry.ResourceID)
	require.Equal(t, http.StatusNotFound, entry.Status)

	rr = get(h, "/api/v1/admin/audit-logs", map[string]string{security.AdminKeyHeader: "rahasia"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "discount.update")
}
