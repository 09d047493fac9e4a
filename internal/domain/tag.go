package domain

import (
	"sort"
	"time"
)

// Tag is a label scoped to the engine that produced it.
// Identity is the (Name, Engine) pair; rows are never updated once created.
type Tag struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`   // Prefixed form, e.g. "imga_dog"
	Engine      string    `json:"engine"` // Producing engine's identifier
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResourceTag assigns a Tag to a Resource with a confidence.
// Confidence is the only mutable field; the whole set for one (resource, engine)
// pair is replaced at once.
type ResourceTag struct {
	ResourceID string `json:"resource_id"`
	TagID      string `json:"tag_id"`
	Confidence int    `json:"confidence"` // 0-100
}

// AssignedTag is a read model joining a ResourceTag with its Tag.
type AssignedTag struct {
	Name       string `json:"name"`
	Engine     string `json:"engine"`
	Confidence int    `json:"confidence"`
}

// MinConfidence and MaxConfidence bound ResourceTag.Confidence.
const (
	MinConfidence = 0
	MaxConfidence = 100
)

// ClampConfidence forces a confidence into the 0-100 range.
func ClampConfidence(c int) int {
	if c < MinConfidence {
		return MinConfidence
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}

// TagComputation is one engine's raw output for one resource.
// A nil *TagComputation means the engine deferred: the resource should be
// rescanned later and its stored tags left alone.
type TagComputation struct {
	Path string         // Canonical path of the resource that was tagged
	Tags map[string]int // Prefixed tag name -> confidence
}

// NewTagComputation creates a computation with an empty (non-nil) tag set.
func NewTagComputation(path string) *TagComputation {
	return &TagComputation{Path: path, Tags: make(map[string]int)}
}

// Put records a tag, keeping the highest confidence seen for the name.
func (c *TagComputation) Put(name string, confidence int) {
	confidence = ClampConfidence(confidence)
	if existing, ok := c.Tags[name]; ok && existing >= confidence {
		return
	}
	c.Tags[name] = confidence
}

// Filter returns the tags whose confidence is at least threshold.
// The result is never nil so callers can tell "found nothing" from "deferred".
func (c *TagComputation) Filter(threshold int) map[string]int {
	out := make(map[string]int, len(c.Tags))
	for name, confidence := range c.Tags {
		if confidence >= threshold {
			out[name] = confidence
		}
	}
	return out
}

// SortedNames returns the tag names of m in lexical order.
func SortedNames(m map[string]int) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
