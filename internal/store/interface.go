// Package store defines the persistence interfaces for the tigertag catalog.
package store

import (
	"context"
	"time"

	"github.com/tigertag/tigertag-server/internal/domain"
)

// FingerprintStore tracks the last-known content fingerprint of every resource.
type FingerprintStore interface {
	// ShouldProcess returns false only when a resource exists for location, its
	// stored fingerprint equals fingerprint exactly, and that fingerprint is
	// not the rescan sentinel.
	ShouldProcess(ctx context.Context, location, fingerprint string) (bool, error)

	// Record upserts the resource by location, refreshing its name,
	// fingerprint and indexing time.
	Record(ctx context.Context, location, name, fingerprint string, indexedAt time.Time) (*domain.Resource, error)

	// ForceRescan stores the rescan sentinel for location and refreshes its
	// indexing time. Existing tags are left untouched.
	ForceRescan(ctx context.Context, location string) error
}

// TagStore owns the (resource, engine) -> tags mapping.
type TagStore interface {
	// ReplaceTags atomically swaps the tags engine assigned to the resource at
	// location. A nil map is a no-op; an empty map clears the engine's tags.
	ReplaceTags(ctx context.Context, location, engine string, tags map[string]int) error

	// GetTagsForResource returns every tag assigned to the resource, across
	// all engines, ordered by engine then name.
	GetTagsForResource(ctx context.Context, resourceID string) ([]domain.AssignedTag, error)

	// GetResource looks a resource up by ID, falling back to location.
	GetResource(ctx context.Context, idOrLocation string) (*domain.Resource, error)
}

// Catalog is the full persistence surface used by the pipeline.
type Catalog interface {
	FingerprintStore
	TagStore
	Ping(ctx context.Context) error
	Close() error
}
