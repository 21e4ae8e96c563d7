package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-grocery/internal/common"
)

func newIdem(t *testing.T) (common.Idem, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return common.Idem{R: client, TTL: time.Hour}, mr
}

func TestIdemReplaysStoredResponse(t *testing.T) {
	idem, _ := newIdem(t)
	calls := 0
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]int{"call": calls}})
	}))

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/discounts/abc/redeem", nil)
		req.Header.Set("Idempotency-Key", key)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	first := send("order-1")
	require.Equal(t, http.StatusCreated, first.Code)

	second := send("order-1")
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, calls)

	third := send("order-2")
	require.Equal(t, http.StatusCreated, third.Code)
	require.Equal(t, 2, calls)
}

func TestIdemReleasesKeyOnServerError(t *testing.T) {
	idem, _ := newIdem(t)
	calls := 0
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "boom", nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, want := range []int{http.StatusInternalServerError, http.StatusNoContent} {
		req := httptest.NewRequest(http.MethodPost, "/redeem", nil)
		req.Header.Set("Idempotency-Key", "retry-me")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, want, rr.Code)
	}
	require.Equal(t, 2, calls)
}

func TestIdemInProgress(t *testing.T) {
	idem, mr := newIdem(t)
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run while another request holds the key")
	}))

	req := httptest.NewRequest(http.MethodPost, "/redeem", nil)
	req.Header.Set("Idempotency-Key", "busy")
	// the outer request holds the key while the inner one arrives
	probe := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys := mr.Keys()
		require.Len(t, keys, 1)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req.Clone(req.Context()))
		require.Equal(t, http.StatusConflict, rr.Code)
		require.Contains(t, rr.Body.String(), "IDEMPOTENT_IN_PROGRESS")
		w.WriteHeader(http.StatusOK)
	}))
	probe.ServeHTTP(httptest.NewRecorder(), req)
}

func TestIdemPassThroughWithoutHeader(t *testing.T) {
	idem, mr := newIdem(t)
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/redeem", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Empty(t, mr.Keys())
}
