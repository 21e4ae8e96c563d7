package catalog

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-grocery/internal/common"
)

// FallbackIcon is used for category keys without a dedicated icon.
const FallbackIcon = "shopping-basket"

var categoryIcons = map[string]string{
	"fruits":        "apple",
	"vegetables":    "carrot",
	"meat":          "beef",
	"seafood":       "fish",
	"dairy":         "milk",
	"eggs":          "egg",
	"bakery":        "croissant",
	"beverages":     "cup-soda",
	"coffee-tea":    "coffee",
	"snacks":        "cookie",
	"frozen":        "snowflake",
	"rice-grains":   "wheat",
	"spices":        "flame",
	"cooking-oil":   "droplet",
	"baby":          "baby",
	"personal-care": "sparkles",
	"household":     "spray-can",
	"pet":           "paw-print",
	"health":        "heart-pulse",
	"instant-food":  "soup",
}

// IconFor returns the icon name for a category key. Keys are matched
// case-insensitively; unknown keys map to FallbackIcon.
func IconFor(key string) string {
	if icon, ok := categoryIcons[normalizeKey(key)]; ok {
		return icon
	}
	return FallbackIcon
}

// Icons returns a copy of the category icon table.
func Icons() map[string]string {
	out := make(map[string]string, len(categoryIcons))
	for k, v := range categoryIcons {
		out[k] = v
	}
	return out
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.ReplaceAll(strings.ReplaceAll(key, "_", "-"), " ", "-")
}

type iconEntry struct {
	Key  string `json:"key"`
	Icon string `json:"icon"`
}

// IconsHandler handles GET /api/v1/categories/icons.
func IconsHandler(w http.ResponseWriter, r *http.Request) {
	entries := make([]iconEntry, 0, len(categoryIcons))
	for k, v := range categoryIcons {
		entries = append(entries, iconEntry{Key: k, Icon: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	common.JSON(w, http.StatusOK, map[string]any{"data": entries, "fallback": FallbackIcon})
}

// IconHandler handles GET /api/v1/categories/{key}/icon.
func IconHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	_, known := categoryIcons[normalizeKey(key)]
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"key": key, "icon": IconFor(key), "fallback": !known},
	})
}
