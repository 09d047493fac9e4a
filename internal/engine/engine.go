// Package engine defines classification engines and the registry that
// dispatches a resource to every enabled engine in registration order.
package engine

import (
	"context"
	"strings"

	"github.com/tigertag/tigertag-server/internal/domain"
)

// Request identifies the resource an engine should tag.
type Request struct {
	Path        string // Canonical location
	WorkingPath string // Optional local copy of a remote resource
	ExternalID  string // Optional identifier in the external tag system
}

// TagPath returns the path engines should read from.
func (r Request) TagPath() string {
	if r.WorkingPath != "" {
		return r.WorkingPath
	}
	return r.Path
}

// RequestFor builds a Request from a discovered item.
func RequestFor(f domain.FileInfo) Request {
	return Request{Path: f.Path, WorkingPath: f.WorkingPath, ExternalID: f.ExternalID}
}

// Info is an engine's registry identity.
type Info struct {
	Name    string // Unique registry key; stored as Tag.Engine
	Prefix  string // Namespace token applied to every emitted tag
	Enabled bool
}

// Qualify applies the engine prefix to a raw label: "dog" -> "imga_dog".
func (i Info) Qualify(label string) string {
	return i.Prefix + "_" + label
}

// Owns reports whether tag carries this engine's prefix, ignoring case.
func (i Info) Owns(tag string) bool {
	p := i.Prefix + "_"
	return len(tag) >= len(p) && strings.EqualFold(tag[:len(p)], p)
}

// Engine computes tags for one resource.
//
// Tag returns a nil computation, and a nil error, to defer: the resource is
// marked for rescan and its stored tags are left alone. An empty computation
// means the engine looked and found nothing. Every tag name in the result
// must already be qualified with the engine prefix.
type Engine interface {
	Info() Info
	Tag(ctx context.Context, req Request) (*domain.TagComputation, error)
}

// Closer is implemented by engines holding resources that need release.
type Closer interface {
	Close() error
}
