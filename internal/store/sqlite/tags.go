package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/id"
	"github.com/tigertag/tigertag-server/internal/store"
)

// tagColumns is the ordered list of columns selected in tag queries.
// Must match the scan order in scanTag.
const tagColumns = `id, name, engine, description, created_at`

// scanTag scans a sql.Row (or sql.Rows via its Scan method) into a domain.Tag.
func scanTag(scanner interface{ Scan(dest ...any) error }) (*domain.Tag, error) {
	var (
		t           domain.Tag
		description sql.NullString
		createdAt   string
	)

	if err := scanner.Scan(&t.ID, &t.Name, &t.Engine, &description, &createdAt); err != nil {
		return nil, err
	}

	var err error
	t.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	t.Description = description.String

	return &t, nil
}

// GetTag retrieves a tag by its (name, engine) identity.
// Returns store.ErrNotFound if the tag does not exist.
func (s *Store) GetTag(ctx context.Context, name, engine string) (*domain.Tag, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE name = ? AND engine = ?`, name, engine)

	t, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound("tag", engine+"/"+name)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListTagsByEngine returns all tags produced by engine ordered by name.
func (s *Store) ListTagsByEngine(ctx context.Context, engine string) ([]*domain.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE engine = ? ORDER BY name ASC`, engine)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := []*domain.Tag{}
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// findOrCreateTag resolves the (name, engine) tag, creating it when absent.
// The UNIQUE(name, engine) constraint absorbs a concurrent insert.
func findOrCreateTag(ctx context.Context, q querier, name, engine string, now time.Time) (string, error) {
	var tagID string
	err := q.QueryRowContext(ctx,
		`SELECT id FROM tags WHERE name = ? AND engine = ?`, name, engine).Scan(&tagID)
	if err == nil {
		return tagID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("query tag: %w", err)
	}

	newID, err := id.NewTag()
	if err != nil {
		return "", fmt.Errorf("generate tag id: %w", err)
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO tags (id, name, engine, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name, engine) DO NOTHING`,
		newID, name, engine, formatTime(now),
	); err != nil {
		return "", fmt.Errorf("insert tag: %w", err)
	}

	if err := q.QueryRowContext(ctx,
		`SELECT id FROM tags WHERE name = ? AND engine = ?`, name, engine).Scan(&tagID); err != nil {
		return "", fmt.Errorf("query tag after insert: %w", err)
	}
	return tagID, nil
}

// ReplaceTags implements store.TagStore.
// The delete of the engine's previous assignments and the insert of the new
// set commit together, so readers see either the old set or the new one.
func (s *Store) ReplaceTags(ctx context.Context, location, engine string, tags map[string]int) error {
	if tags == nil {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now()

	resourceID, err := ensureResource(ctx, tx, location, now)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM resource_tags
		WHERE resource_id = ?
		  AND tag_id IN (SELECT id FROM tags WHERE engine = ?)`,
		resourceID, engine,
	); err != nil {
		return fmt.Errorf("delete resource_tags: %w", err)
	}

	for _, name := range domain.SortedNames(tags) {
		tagID, err := findOrCreateTag(ctx, tx, name, engine, now)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO resource_tags (resource_id, tag_id, confidence)
			VALUES (?, ?, ?)`,
			resourceID, tagID, domain.ClampConfidence(tags[name]),
		); err != nil {
			return fmt.Errorf("insert resource_tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tags: %w", err)
	}

	s.logger.Debug("replaced resource tags",
		"location", location,
		"engine", engine,
		"count", len(tags),
	)
	return nil
}

// GetTagsForResource implements store.TagStore.
func (s *Store) GetTagsForResource(ctx context.Context, resourceID string) ([]domain.AssignedTag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, t.engine, rt.confidence
		FROM resource_tags rt
		JOIN tags t ON t.id = rt.tag_id
		WHERE rt.resource_id = ?
		ORDER BY t.engine ASC, t.name ASC`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("query resource_tags: %w", err)
	}
	defer rows.Close()

	assigned := []domain.AssignedTag{}
	for rows.Next() {
		var a domain.AssignedTag
		if err := rows.Scan(&a.Name, &a.Engine, &a.Confidence); err != nil {
			return nil, fmt.Errorf("scan resource_tag: %w", err)
		}
		assigned = append(assigned, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return assigned, nil
}
