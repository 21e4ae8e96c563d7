package stores

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/noah-isme/backend-grocery/internal/common"
	"github.com/noah-isme/backend-grocery/internal/geo"
)

// maxRadiusMeters bounds radius queries from the storefront.
const maxRadiusMeters = 100_000

// Handler exposes the store-locator endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{service: svc}
}

type matchResponse struct {
	Store    geo.StoreCandidate `json:"store"`
	Distance float64            `json:"distance"`
	Label    string             `json:"label"`
}

// Nearest handles GET /api/v1/stores/nearest.
func (h *Handler) Nearest(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "store service not configured", nil)
		return
	}
	origin, ok := originFromQuery(w, r)
	if !ok {
		return
	}
	m, err := h.service.Nearest(r.Context(), origin)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toMatchResponse(m)})
}

// Nearby handles GET /api/v1/stores/nearby. Results are sorted by distance
// unless sort=input is requested.
func (h *Handler) Nearby(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "store service not configured", nil)
		return
	}
	origin, ok := originFromQuery(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	radius := 0.0
	if raw := strings.TrimSpace(q.Get("radius")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || v > maxRadiusMeters {
			common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "radius must be a positive number of meters up to 100000", nil)
			return
		}
		radius = v
	}
	sorted := true
	switch strings.ToLower(strings.TrimSpace(q.Get("sort"))) {
	case "", "distance":
	case "input":
		sorted = false
	default:
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "sort must be distance or input", nil)
		return
	}
	matches, err := h.service.WithinRadius(r.Context(), origin, radius, sorted)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]matchResponse, 0, len(matches))
	for _, m := range matches {
		out = append(out, toMatchResponse(m))
	}
	if radius <= 0 {
		radius = h.service.DefaultRadius()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out, "radius": radius})
}

func originFromQuery(w http.ResponseWriter, r *http.Request) (geo.Coordinate, bool) {
	q := r.URL.Query()
	origin, err := geo.ParseCoordinate(q.Get("lat"), q.Get("lon"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "lat and lon must be valid decimal degrees", map[string]string{"error": err.Error()})
		return geo.Coordinate{}, false
	}
	return origin, true
}

func toMatchResponse(m geo.Match) matchResponse {
	return matchResponse{Store: m.Store, Distance: m.Distance, Label: geo.FormatDistance(m.Distance)}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, geo.ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
	case errors.Is(err, ErrNoStores):
		common.JSONError(w, http.StatusNotFound, "NO_STORES", "no stores available", nil)
	case errors.Is(err, ErrDirectoryUnavailable):
		common.JSONError(w, http.StatusServiceUnavailable, "DIRECTORY_UNAVAILABLE", "store directory unavailable", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "store lookup failed", nil)
	}
}
