package audit

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-grocery/internal/common"
)

func auditedRouter(rec HTTPRecorder) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(common.WithActor(req.Context(), "admin")))
		})
	})
	r.With(rec.Middleware(HTTPConfig{
		Action:          "discount.update",
		ResourceType:    "discount",
		ResourceIDParam: "id",
		MetadataFunc: func(_ *http.Request, status int) map[string]any {
			return map[string]any{"status": status}
		},
	})).Put("/api/v1/admin/discounts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusConflict, "LIMIT_REACHED", "nope", nil)
	})
	r.With(rec.Middleware(HTTPConfig{})).Post("/api/v1/admin/discounts", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("{}"))
	})
	return r
}

func TestMiddlewareRecordsAfterHandler(t *testing.T) {
	store := &stubStore{}
	h := auditedRouter(HTTPRecorder{Service: &Service{Store: store, Enabled: true}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/v1/admin/discounts/d-1", nil))
	require.Equal(t, http.StatusConflict, rr.Code)

	got := store.last(t)
	require.Equal(t, "admin", got.Actor)
	require.Equal(t, "discount.update", got.Action)
	require.Equal(t, "d-1", *got.ResourceID)
	require.Equal(t, http.StatusConflict, got.Status)
	require.Equal(t, "/api/v1/admin/discounts/{id}", *got.Route)
	require.JSONEq(t, `{"status":409}`, string(got.Metadata))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/discounts", nil))
	got = store.last(t)
	require.Equal(t, "POST /api/v1/admin/discounts", got.Action)
	require.Equal(t, "admin.discounts", got.ResourceType)
	require.Equal(t, http.StatusOK, got.Status)
}

func TestMiddlewareDisabledAndErrors(t *testing.T) {
	store := &stubStore{}
	h := auditedRouter(HTTPRecorder{Service: &Service{Store: store}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/discounts", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, store.entries)

	var reported error
	failing := &stubStore{err: errors.New("insert failed")}
	h = auditedRouter(HTTPRecorder{
		Service: &Service{Store: failing, Enabled: true},
		OnError: func(err error) { reported = err },
	})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/admin/discounts", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualError(t, reported, "insert failed")
}

func TestHandlerList(t *testing.T) {
	store := &stubStore{entries: []Entry{{ID: 1, Actor: "admin"}, {ID: 2, Actor: "admin"}}}
	rr := httptest.NewRecorder()
	Handler{Store: store}.List(rr, httptest.NewRequest(http.MethodGet, "/?limit=1&offset=1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data []Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, int64(2), body.Data[0].ID)

	rr = httptest.NewRecorder()
	Handler{Store: &stubStore{err: errors.New("x")}}.List(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = httptest.NewRecorder()
	Handler{}.List(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
