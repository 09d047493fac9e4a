// Package id generates prefixed catalog identifiers.
package id

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for catalog entities.
const (
	PrefixResource = "res"
	PrefixTag      = "tag"
)

// Lowercase alphanumerics keep ids readable in logs and safe in URL paths
// without escaping.
const (
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	size     = 16
)

// Generate creates an id of the form prefix-xxxxxxxxxxxxxxxx.
func Generate(prefix string) (string, error) {
	suffix, err := gonanoid.Generate(alphabet, size)
	if err != nil {
		return "", fmt.Errorf("generate %s id: %w", prefix, err)
	}
	return prefix + "-" + suffix, nil
}

// NewResource returns a fresh resource id.
func NewResource() (string, error) { return Generate(PrefixResource) }

// NewTag returns a fresh tag id.
func NewTag() (string, error) { return Generate(PrefixTag) }

// IsResource reports whether s has the shape of a resource id rather than a
// location. Locations always contain a path separator or a scheme.
func IsResource(s string) bool {
	suffix, ok := strings.CutPrefix(s, PrefixResource+"-")
	if !ok || len(suffix) != size {
		return false
	}
	return strings.Trim(suffix, alphabet) == ""
}
