package stores

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-grocery/internal/geo"
	"github.com/noah-isme/backend-grocery/internal/obs"
	"github.com/noah-isme/backend-grocery/internal/resilience"
)

// ErrDirectoryUnavailable is returned when the store directory cannot be read.
var ErrDirectoryUnavailable = errors.New("stores: directory unavailable")

// Directory lists the stores that can serve customers.
type Directory interface {
	List(ctx context.Context) ([]geo.StoreCandidate, error)
}

// HTTPDirectory reads stores from the Store Directory Service.
type HTTPDirectory struct {
	Client  resilience.HTTPClient
	BaseURL string
	Logger  zerolog.Logger
}

// storeRecord mirrors the directory payload. Identifiers and coordinates
// arrive as strings from some deployments and as numbers from others.
type storeRecord struct {
	ID        flexString `json:"id"`
	Name      string     `json:"name"`
	Address   string     `json:"address"`
	Latitude  flexString `json:"latitude"`
	Longitude flexString `json:"longitude"`
}

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// List fetches the directory and converts it into candidates. Records with
// missing ids or unusable coordinates are skipped.
func (d *HTTPDirectory) List(ctx context.Context) ([]geo.StoreCandidate, error) {
	url := strings.TrimRight(d.BaseURL, "/") + "/stores"
	start := time.Now()
	var raw json.RawMessage
	err := d.Client.GetJSON(ctx, url, &raw)
	obs.ObserveStoreDirectoryLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		obs.IncStoreDirectoryFetch("http", "error")
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	records, err := decodeRecords(raw)
	if err != nil {
		obs.IncStoreDirectoryFetch("http", "error")
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	obs.IncStoreDirectoryFetch("http", "ok")
	return d.candidates(records), nil
}

func (d *HTTPDirectory) candidates(records []storeRecord) []geo.StoreCandidate {
	out := make([]geo.StoreCandidate, 0, len(records))
	for _, rec := range records {
		id := strings.TrimSpace(string(rec.ID))
		if id == "" {
			d.Logger.Warn().Str("name", rec.Name).Msg("store_directory_record_missing_id")
			continue
		}
		coord, err := geo.ParseCoordinate(string(rec.Latitude), string(rec.Longitude))
		if err != nil {
			d.Logger.Warn().Err(err).Str("store_id", id).Msg("store_directory_record_skipped")
			continue
		}
		out = append(out, geo.StoreCandidate{
			ID:         id,
			Name:       strings.TrimSpace(rec.Name),
			Coordinate: coord,
			Address:    strings.TrimSpace(rec.Address),
		})
	}
	return out
}

// decodeRecords accepts either a bare array or an envelope {"data": [...]}.
func decodeRecords(raw json.RawMessage) ([]storeRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty directory payload")
	}
	var records []storeRecord
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}
	var envelope struct {
		Data []storeRecord `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}
