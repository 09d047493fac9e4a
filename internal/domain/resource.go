package domain

import "time"

// RescanFingerprint is the reserved fingerprint that forces the next pass to
// process a resource regardless of its content hash.
const RescanFingerprint = "rescan"

// Resource is one discoverable item (a photo) tracked by the catalog.
// Location is the identity key; at most one Resource exists per location.
type Resource struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	Fingerprint string    `json:"fingerprint"`
	LastIndexed time.Time `json:"last_indexed"`
	Description string    `json:"description,omitempty"`
}

// NeedsRescan reports whether the stored fingerprint is the rescan sentinel.
func (r *Resource) NeedsRescan() bool {
	return r.Fingerprint == RescanFingerprint
}

// FileInfo describes one item produced by a discovery source.
type FileInfo struct {
	Name        string `json:"name"`
	Path        string `json:"path"`                   // Canonical location
	Fingerprint string `json:"fingerprint"`            // Content digest
	WorkingPath string `json:"working_path,omitempty"` // Temporary local copy of a remote resource
	ExternalID  string `json:"external_id,omitempty"`  // Identifier in the external tag-bearing system
}

// TagPath returns the path engines should read: the working copy when one
// exists, otherwise the canonical path.
func (f FileInfo) TagPath() string {
	if f.WorkingPath != "" {
		return f.WorkingPath
	}
	return f.Path
}
