package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertEntry = `
INSERT INTO audit_logs (actor, action, resource_type, resource_id, method, path, route, status, ip, user_agent, request_id, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

const listEntries = `
SELECT id, actor, action, resource_type, resource_id, method, path, route, status, ip, user_agent, request_id, metadata, created_at
FROM audit_logs
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2`

// PGStore persists audit entries in the audit_logs table.
type PGStore struct {
	Pool *pgxpool.Pool
}

// InsertEntry appends one entry.
func (s *PGStore) InsertEntry(ctx context.Context, e Entry) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		metadata = e.Metadata
	}
	_, err := s.Pool.Exec(ctx, insertEntry,
		e.Actor, e.Action, e.ResourceType, e.ResourceID, e.Method, e.Path, e.Route,
		e.Status, e.IP, e.UserAgent, e.RequestID, metadata)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListEntries returns the newest entries first.
func (s *PGStore) ListEntries(ctx context.Context, limit, offset int) ([]Entry, error) {
	rows, err := s.Pool.Query(ctx, listEntries, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		var metadata []byte
		err := row.Scan(&e.ID, &e.Actor, &e.Action, &e.ResourceType, &e.ResourceID, &e.Method, &e.Path,
			&e.Route, &e.Status, &e.IP, &e.UserAgent, &e.RequestID, &metadata, &e.CreatedAt)
		if len(metadata) > 0 {
			e.Metadata = metadata
		}
		return e, err
	})
}
