package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// DefaultSettleDelay is how long a file must stay unchanged before it is
// reported. Photos copied off a camera card or synced by a phone app arrive
// in several writes.
const DefaultSettleDelay = 2 * time.Second

// defaultIgnore lists OS litter, photo sidecars and in-flight downloads
// found in photo libraries. Patterns match a single path element.
var defaultIgnore = []string{
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	"@eaDir",
	"*.xmp",
	"*.aae",
	"*.tmp",
	"*.part",
	"*.crdownload",
}

// Options configures the file watcher.
type Options struct {
	// IgnorePatterns are filepath.Match patterns tested against every path
	// element, so a pattern naming a directory hides its whole subtree.
	IgnorePatterns []string
	SettleDelay    time.Duration
	IgnoreHidden   bool
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.SettleDelay <= 0 {
		o.SettleDelay = DefaultSettleDelay
	}

	// nil means "not configured"; an explicit empty slice keeps the caller's IgnoreHidden.
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = defaultIgnore
		o.IgnoreHidden = true
	}
}

// shouldIgnore reports whether any element of path is hidden or matches an
// ignore pattern.
func (o *Options) shouldIgnore(path string) bool {
	for part := range strings.SplitSeq(filepath.Clean(path), string(filepath.Separator)) {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if o.IgnoreHidden && strings.HasPrefix(part, ".") {
			return true
		}
		for _, pattern := range o.IgnorePatterns {
			if matched, err := filepath.Match(pattern, part); err == nil && matched {
				return true
			}
		}
	}
	return false
}
