package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tigertag/tigertag-server/internal/domain"
)

// countTagRows returns how many tag rows exist for (name, engine).
func countTagRows(t *testing.T, s *Store, name, engine string) int {
	t.Helper()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tags WHERE name = ? AND engine = ?`, name, engine).Scan(&n)
	if err != nil {
		t.Fatalf("count tags: %v", err)
	}
	return n
}

// tagsByEngine returns the assigned tags for a resource grouped by engine.
func tagsByEngine(t *testing.T, s *Store, location string) map[string]map[string]int {
	t.Helper()
	ctx := context.Background()

	r, err := s.GetResourceByLocation(ctx, location)
	if err != nil {
		t.Fatalf("GetResourceByLocation(%s): %v", location, err)
	}
	assigned, err := s.GetTagsForResource(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetTagsForResource: %v", err)
	}

	out := make(map[string]map[string]int)
	for _, a := range assigned {
		if out[a.Engine] == nil {
			out[a.Engine] = make(map[string]int)
		}
		out[a.Engine][a.Name] = a.Confidence
	}
	return out
}

func TestReplaceTags_EngineIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceTags(ctx, smileLocation, "ENGINE_A", map[string]int{"ta_a": 90, "ta_b": 40}); err != nil {
		t.Fatalf("ReplaceTags A: %v", err)
	}
	if err := s.ReplaceTags(ctx, smileLocation, "ENGINE_B", map[string]int{"tb_c": 70}); err != nil {
		t.Fatalf("ReplaceTags B: %v", err)
	}

	// Replacing A must not touch B.
	if err := s.ReplaceTags(ctx, smileLocation, "ENGINE_A", map[string]int{"ta_z": 55}); err != nil {
		t.Fatalf("ReplaceTags A again: %v", err)
	}

	got := tagsByEngine(t, s, smileLocation)
	if len(got["ENGINE_A"]) != 1 || got["ENGINE_A"]["ta_z"] != 55 {
		t.Errorf("ENGINE_A tags: got %v", got["ENGINE_A"])
	}
	if len(got["ENGINE_B"]) != 1 || got["ENGINE_B"]["tb_c"] != 70 {
		t.Errorf("ENGINE_B tags: got %v", got["ENGINE_B"])
	}
}

func TestReplaceTags_DeduplicatesTagIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceTags(ctx, "/photos/one.jpg", "IMAGGA", map[string]int{"imga_hair": 80}); err != nil {
		t.Fatalf("ReplaceTags one: %v", err)
	}
	if err := s.ReplaceTags(ctx, "/photos/two.jpg", "IMAGGA", map[string]int{"imga_hair": 45}); err != nil {
		t.Fatalf("ReplaceTags two: %v", err)
	}

	if n := countTagRows(t, s, "imga_hair", "IMAGGA"); n != 1 {
		t.Errorf("expected one tag row, got %d", n)
	}

	// Same name from another engine is a distinct tag.
	if err := s.ReplaceTags(ctx, "/photos/one.jpg", "COMPREFACE", map[string]int{"imga_hair": 99}); err != nil {
		t.Fatalf("ReplaceTags compreface: %v", err)
	}
	tags, err := s.ListTagsByEngine(ctx, "COMPREFACE")
	if err != nil {
		t.Fatalf("ListTagsByEngine: %v", err)
	}
	imagga, err := s.GetTag(ctx, "imga_hair", "IMAGGA")
	if err != nil {
		t.Fatalf("GetTag: %v", err)
	}
	if len(tags) != 1 || tags[0].ID == imagga.ID {
		t.Errorf("expected a separate COMPREFACE tag, got %+v", tags)
	}

	got := tagsByEngine(t, s, "/photos/one.jpg")
	if got["IMAGGA"]["imga_hair"] != 80 || got["COMPREFACE"]["imga_hair"] != 99 {
		t.Errorf("confidences mixed across engines: %v", got)
	}
}

func TestReplaceTags_EmptyClearsNilIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceTags(ctx, smileLocation, "IMAGGA", map[string]int{"imga_smile": 100}); err != nil {
		t.Fatalf("ReplaceTags: %v", err)
	}

	if err := s.ReplaceTags(ctx, smileLocation, "IMAGGA", nil); err != nil {
		t.Fatalf("ReplaceTags nil: %v", err)
	}
	if got := tagsByEngine(t, s, smileLocation); len(got["IMAGGA"]) != 1 {
		t.Fatalf("nil map changed tags: %v", got)
	}

	if err := s.ReplaceTags(ctx, smileLocation, "IMAGGA", map[string]int{}); err != nil {
		t.Fatalf("ReplaceTags empty: %v", err)
	}
	if got := tagsByEngine(t, s, smileLocation); len(got["IMAGGA"]) != 0 {
		t.Errorf("empty map left tags behind: %v", got)
	}

	// The tag row itself survives for reuse.
	if n := countTagRows(t, s, "imga_smile", "IMAGGA"); n != 1 {
		t.Errorf("expected tag row to survive, got %d", n)
	}
}

func TestReplaceTags_NilOnUnknownLocationCreatesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceTags(ctx, "/never/seen.jpg", "IMAGGA", nil); err != nil {
		t.Fatalf("ReplaceTags nil: %v", err)
	}
	if _, err := s.GetResourceByLocation(ctx, "/never/seen.jpg"); err == nil {
		t.Error("expected no resource to be created for a nil tag map")
	}
}

func TestReplaceTags_CreatesPlaceholderResource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceTags(ctx, "/photos/new.jpg", "IMAGGA", map[string]int{"imga_sky": 60}); err != nil {
		t.Fatalf("ReplaceTags: %v", err)
	}

	r, err := s.GetResourceByLocation(ctx, "/photos/new.jpg")
	if err != nil {
		t.Fatalf("GetResourceByLocation: %v", err)
	}
	if r.Name != "new.jpg" {
		t.Errorf("Name: got %q", r.Name)
	}
	if r.Fingerprint != domain.RescanFingerprint {
		t.Errorf("placeholder fingerprint: got %q", r.Fingerprint)
	}

	// A later Record adopts the placeholder instead of duplicating it.
	rec, err := s.Record(ctx, "/photos/new.jpg", "new.jpg", "abc", time.Now())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.ID != r.ID {
		t.Errorf("Record created a new row: %q vs %q", rec.ID, r.ID)
	}
}

func TestReplaceTags_ClampsConfidence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceTags(ctx, smileLocation, "IMAGGA", map[string]int{"hi": 140, "lo": -3}); err != nil {
		t.Fatalf("ReplaceTags: %v", err)
	}

	got := tagsByEngine(t, s, smileLocation)["IMAGGA"]
	if got["hi"] != 100 || got["lo"] != 0 {
		t.Errorf("confidences not clamped: %v", got)
	}
}

func TestReplaceTags_ReadersSeeWholeSets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r, err := s.Record(ctx, smileLocation, "smile.png", "aaa", time.Now())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	sets := []map[string]int{
		{"a1": 10, "a2": 20, "a3": 30},
		{"b1": 40, "b2": 50, "b3": 60},
	}
	if err := s.ReplaceTags(ctx, smileLocation, "IMAGGA", sets[0]); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 40 {
			if err := s.ReplaceTags(ctx, smileLocation, "IMAGGA", sets[i%2]); err != nil {
				errs <- fmt.Errorf("replace %d: %w", i, err)
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 80 {
			assigned, err := s.GetTagsForResource(ctx, r.ID)
			if err != nil {
				errs <- fmt.Errorf("read %d: %w", i, err)
				return
			}
			if len(assigned) != 3 {
				errs <- fmt.Errorf("read %d: saw %d tags, want 3", i, len(assigned))
				return
			}
			prefix := assigned[0].Name[0]
			for _, a := range assigned {
				if a.Name[0] != prefix {
					errs <- fmt.Errorf("read %d: mixed sets %+v", i, assigned)
					return
				}
			}
		}
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
