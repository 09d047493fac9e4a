package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/id"
	"github.com/tigertag/tigertag-server/internal/store"
)

// resourceColumns is the ordered list of columns selected in resource queries.
// Must match the scan order in scanResource.
const resourceColumns = `id, name, location, fingerprint, last_indexed, description`

// scanResource scans a sql.Row (or sql.Rows via its Scan method) into a domain.Resource.
func scanResource(scanner interface{ Scan(dest ...any) error }) (*domain.Resource, error) {
	var (
		r           domain.Resource
		lastIndexed string
		description sql.NullString
	)

	err := scanner.Scan(
		&r.ID,
		&r.Name,
		&r.Location,
		&r.Fingerprint,
		&lastIndexed,
		&description,
	)
	if err != nil {
		return nil, err
	}

	r.LastIndexed, err = parseTime(lastIndexed)
	if err != nil {
		return nil, fmt.Errorf("parse last_indexed: %w", err)
	}
	r.Description = description.String

	return &r, nil
}

// ShouldProcess implements store.FingerprintStore.
func (s *Store) ShouldProcess(ctx context.Context, location, fingerprint string) (bool, error) {
	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM resources WHERE location = ?`, location).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("query fingerprint: %w", err)
	}

	if stored == domain.RescanFingerprint {
		return true, nil
	}
	return stored != fingerprint, nil
}

// Record implements store.FingerprintStore.
// Insert if absent, otherwise update the mutable fields in place.
func (s *Store) Record(ctx context.Context, location, name, fingerprint string, indexedAt time.Time) (*domain.Resource, error) {
	if err := upsertResource(ctx, s.db, location, name, fingerprint, indexedAt); err != nil {
		return nil, err
	}
	return s.GetResourceByLocation(ctx, location)
}

// ForceRescan implements store.FingerprintStore.
// Returns store.ErrNotFound when no resource exists at location.
func (s *Store) ForceRescan(ctx context.Context, location string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE resources SET fingerprint = ?, last_indexed = ?
		WHERE location = ?`,
		domain.RescanFingerprint,
		formatTime(s.now()),
		location,
	)
	if err != nil {
		return fmt.Errorf("force rescan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("force rescan rows affected: %w", err)
	}
	if n == 0 {
		return store.NotFound("resource", location)
	}

	s.logger.Debug("resource marked for rescan", "location", location)
	return nil
}

// GetResource implements store.TagStore.
// IDs are tried first; anything else is treated as a location.
func (s *Store) GetResource(ctx context.Context, idOrLocation string) (*domain.Resource, error) {
	if id.IsResource(idOrLocation) {
		r, err := s.GetResourceByID(ctx, idOrLocation)
		if err == nil || !errors.Is(err, store.ErrNotFound) {
			return r, err
		}
	}
	return s.GetResourceByLocation(ctx, idOrLocation)
}

// GetResourceByID retrieves a resource by its ID.
// Returns store.ErrNotFound if the resource does not exist.
func (s *Store) GetResourceByID(ctx context.Context, resourceID string) (*domain.Resource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE id = ?`, resourceID)

	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound("resource", resourceID)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetResourceByLocation retrieves a resource by its location.
// Returns store.ErrNotFound if the resource does not exist.
func (s *Store) GetResourceByLocation(ctx context.Context, location string) (*domain.Resource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE location = ?`, location)

	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound("resource", location)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListResources returns resources ordered by location, paged by limit/offset.
func (s *Store) ListResources(ctx context.Context, limit, offset int) ([]*domain.Resource, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resourceColumns+` FROM resources ORDER BY location ASC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resources := []*domain.Resource{}
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

// upsertResource inserts or updates a resource keyed by location.
func upsertResource(ctx context.Context, q querier, location, name, fingerprint string, indexedAt time.Time) error {
	resourceID, err := id.NewResource()
	if err != nil {
		return fmt.Errorf("generate resource id: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO resources (id, name, location, fingerprint, last_indexed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(location) DO UPDATE SET
			name = excluded.name,
			fingerprint = excluded.fingerprint,
			last_indexed = excluded.last_indexed`,
		resourceID,
		name,
		location,
		fingerprint,
		formatTime(indexedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert resource: %w", err)
	}
	return nil
}

// ensureResource returns the ID of the resource at location, creating a
// placeholder row marked for rescan when none exists.
func ensureResource(ctx context.Context, q querier, location string, now time.Time) (string, error) {
	var resourceID string
	err := q.QueryRowContext(ctx,
		`SELECT id FROM resources WHERE location = ?`, location).Scan(&resourceID)
	if err == nil {
		return resourceID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("query resource: %w", err)
	}

	if err := upsertResource(ctx, q, location, filepath.Base(location), domain.RescanFingerprint, now); err != nil {
		return "", err
	}
	if err := q.QueryRowContext(ctx,
		`SELECT id FROM resources WHERE location = ?`, location).Scan(&resourceID); err != nil {
		return "", fmt.Errorf("query resource after insert: %w", err)
	}
	return resourceID, nil
}
