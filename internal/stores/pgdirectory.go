package stores

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-grocery/internal/geo"
	"github.com/noah-isme/backend-grocery/internal/obs"
)

const listActiveStores = `
SELECT id::text, name, address, latitude, longitude
FROM stores
WHERE is_active
ORDER BY created_at, id`

// PGDirectory reads stores from the local stores table. It is used when no
// external directory is configured.
type PGDirectory struct {
	Pool *pgxpool.Pool
}

// List returns all active stores in insertion order.
func (d *PGDirectory) List(ctx context.Context) ([]geo.StoreCandidate, error) {
	if d == nil || d.Pool == nil {
		return nil, fmt.Errorf("%w: database not configured", ErrDirectoryUnavailable)
	}
	rows, err := d.Pool.Query(ctx, listActiveStores)
	if err != nil {
		obs.IncStoreDirectoryFetch("postgres", "error")
		return nil, fmt.Errorf("list stores: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (geo.StoreCandidate, error) {
		var c geo.StoreCandidate
		err := row.Scan(&c.ID, &c.Name, &c.Address, &c.Coordinate.Lat, &c.Coordinate.Lon)
		return c, err
	})
	if err != nil {
		obs.IncStoreDirectoryFetch("postgres", "error")
		return nil, fmt.Errorf("scan stores: %w", err)
	}
	obs.IncStoreDirectoryFetch("postgres", "ok")
	return out, nil
}
