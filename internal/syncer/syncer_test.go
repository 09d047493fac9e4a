package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigertag/tigertag-server/internal/engine"
	domainerrors "github.com/tigertag/tigertag-server/internal/errors"
)

// memorySystem is an in-memory TagSystem that, like Plex, upper-cases the
// first letter of every tag it returns.
type memorySystem struct {
	tags      map[string][]string
	calls     []string
	refreshes int
	readErr   error
}

func newMemorySystem(id string, tags ...string) *memorySystem {
	return &memorySystem{tags: map[string][]string{id: tags}}
}

func (m *memorySystem) Tags(_ context.Context, id string) ([]string, error) {
	m.calls = append(m.calls, "get")
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make([]string, 0, len(m.tags[id]))
	for _, t := range m.tags[id] {
		out = append(out, strings.ToUpper(t[:1])+t[1:])
	}
	return out, nil
}

func (m *memorySystem) RemoveTags(_ context.Context, id string, tags []string) error {
	m.calls = append(m.calls, "remove")
	var kept []string
	for _, have := range m.tags[id] {
		drop := false
		for _, t := range tags {
			if strings.EqualFold(have, t) {
				drop = true
			}
		}
		if !drop {
			kept = append(kept, have)
		}
	}
	m.tags[id] = kept
	return nil
}

func (m *memorySystem) AddTags(_ context.Context, id string, tags []string) error {
	m.calls = append(m.calls, "add")
	m.tags[id] = append(m.tags[id], tags...)
	return nil
}

type refreshingSystem struct{ *memorySystem }

func (r refreshingSystem) Refresh(context.Context, string) error {
	r.calls = append(r.calls, "refresh")
	r.refreshes++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var ttf = engine.Info{Name: "TTF", Prefix: "ttf", Enabled: true}

func sortedFold(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = strings.ToLower(t)
	}
	sort.Strings(out)
	return out
}

func TestReconcile_OnlyTouchesOwnedTags(t *testing.T) {
	sys := newMemorySystem("42", "ttf_Roman", "manual_favorite")
	w := NewWriter("PLEX", sys, discardLogger())

	d, err := w.Reconcile(context.Background(), "42", ttf, []string{"ttf_Poppy"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Ttf_Roman"}, d.Remove)
	assert.Equal(t, []string{"ttf_Poppy"}, d.Add)
	assert.ElementsMatch(t, []string{"ttf_Poppy", "manual_favorite"}, sys.tags["42"])
}

func TestReconcile_CaseInsensitiveIsStable(t *testing.T) {
	sys := newMemorySystem("42", "ttf_poppy", "other_x")
	w := NewWriter("PLEX", sys, discardLogger())

	d, err := w.Reconcile(context.Background(), "42", ttf, []string{"ttf_poppy"})
	require.NoError(t, err)

	assert.True(t, d.Empty(), "echoed casing must not cause a remove/add cycle")
	assert.Equal(t, []string{"get"}, sys.calls)
}

func TestReconcile_RefreshBetweenRemoveAndAdd(t *testing.T) {
	sys := refreshingSystem{newMemorySystem("7", "ttf_old")}
	w := NewWriter("PLEX", sys, discardLogger())

	_, err := w.Reconcile(context.Background(), "7", ttf, []string{"ttf_new"})
	require.NoError(t, err)

	assert.Equal(t, []string{"get", "remove", "refresh", "add"}, sys.calls)
	assert.Equal(t, []string{"ttf_new"}, sortedFold(sys.tags["7"]))
}

func TestReconcile_NoExternalIDIsNoop(t *testing.T) {
	sys := newMemorySystem("42", "ttf_Roman")
	w := NewWriter("PLEX", sys, discardLogger())

	d, err := w.Reconcile(context.Background(), "", ttf, []string{"ttf_Poppy"})
	require.NoError(t, err)
	assert.True(t, d.Empty())
	assert.Empty(t, sys.calls)
}

func TestReconcile_EmptySetClearsOwned(t *testing.T) {
	sys := newMemorySystem("42", "ttf_a", "ttf_b", "keep_me")
	w := NewWriter("PLEX", sys, discardLogger())

	_, err := w.Reconcile(context.Background(), "42", ttf, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep_me"}, sys.tags["42"])
}

func TestReconcile_ReadFailureIsSyncError(t *testing.T) {
	sys := newMemorySystem("42")
	sys.readErr = errors.New("connection refused")
	w := NewWriter("PLEX", sys, discardLogger())

	_, err := w.Reconcile(context.Background(), "42", ttf, []string{"ttf_a"})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrSync))
	assert.ErrorIs(t, err, sys.readErr)
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name       string
		current    []string
		wanted     []string
		wantRemove []string
		wantAdd    []string
	}{
		{"foreign tags untouched", []string{"ttf_Roman", "manual_favorite"}, []string{"ttf_Poppy"}, []string{"ttf_Roman"}, []string{"ttf_Poppy"}},
		{"prefix must be followed by underscore", []string{"ttfx_a", "ttf"}, nil, nil, nil},
		{"other engine untouched", []string{"imga_dog"}, []string{"ttf_dog"}, nil, []string{"ttf_dog"}},
		{"upper-cased prefix is owned", []string{"TTF_Dog"}, []string{"ttf_dog"}, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Plan(tt.current, ttf, tt.wanted)
			assert.Equal(t, tt.wantRemove, d.Remove)
			assert.Equal(t, tt.wantAdd, d.Add)
		})
	}
}

func TestManager_ContinuesPastFailure(t *testing.T) {
	broken := newMemorySystem("1")
	broken.readErr = errors.New("timeout")
	healthy := newMemorySystem("1")

	m := NewManager(discardLogger(),
		NewWriter("BROKEN", broken, discardLogger()),
		NewWriter("HEALTHY", healthy, discardLogger()),
	)

	err := m.Reconcile(context.Background(), "1", ttf, []string{"ttf_a"})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrSync))
	assert.Equal(t, []string{"ttf_a"}, healthy.tags["1"])
}
