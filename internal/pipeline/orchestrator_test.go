package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/engine"
	"github.com/tigertag/tigertag-server/internal/engine/enginetest"
	"github.com/tigertag/tigertag-server/internal/errors"
	"github.com/tigertag/tigertag-server/internal/store/sqlite"
	"github.com/tigertag/tigertag-server/internal/syncer"
)

var smile = domain.FileInfo{
	Name:        "smile.png",
	Path:        "data/images/input/smile.png",
	Fingerprint: "fp-1",
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "tigertag.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// memorySystem is an in-memory external tag system.
type memorySystem struct {
	mu   sync.Mutex
	tags map[string][]string
	fail error
}

func newMemorySystem() *memorySystem {
	return &memorySystem{tags: make(map[string][]string)}
}

func (m *memorySystem) Tags(_ context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	return append([]string(nil), m.tags[id]...), nil
}

func (m *memorySystem) RemoveTags(_ context.Context, id string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[id] = append(m.tags[id], tags...)
	return nil
}

func (m *memorySystem) snapshot(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.tags[id]...)
	sort.Strings(out)
	return out
}

type harness struct {
	store    *sqlite.Store
	registry *engine.Registry
	external *memorySystem
	orch     *Orchestrator
}

func newHarness(t *testing.T, engines ...engine.Engine) *harness {
	t.Helper()
	h := &harness{
		store:    newTestStore(t),
		registry: engine.NewRegistry(testLogger()),
		external: newMemorySystem(),
	}
	for _, e := range engines {
		h.registry.Register(e)
	}
	require.NoError(t, h.registry.Validate())

	writer := syncer.NewWriter("memory", h.external, testLogger())
	h.orch = New(h.store, h.registry, Options{Threshold: DefaultConfidenceThreshold, Logger: testLogger()},
		NewStoreListener(h.store),
		NewSyncListener(syncer.NewManager(testLogger(), writer)),
	)
	return h
}

func (h *harness) tags(t *testing.T, location string) map[string]int {
	t.Helper()
	res, err := h.store.GetResource(context.Background(), location)
	require.NoError(t, err)
	assigned, err := h.store.GetTagsForResource(context.Background(), res.ID)
	require.NoError(t, err)
	out := make(map[string]int, len(assigned))
	for _, a := range assigned {
		out[a.Engine+"/"+a.Name] = a.Confidence
	}
	return out
}

func (h *harness) fingerprint(t *testing.T, location string) string {
	t.Helper()
	res, err := h.store.GetResource(context.Background(), location)
	require.NoError(t, err)
	return res.Fingerprint
}

func TestOnResource_ConfidenceFiltering(t *testing.T) {
	eng := enginetest.New("TEST", "tst", map[string]int{"smile": 100, "dust": 10})
	h := newHarness(t, eng)

	outcome, err := h.orch.OnResource(context.Background(), smile)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeProcessed, outcome)
	assert.Equal(t, map[string]int{"TEST/tst_smile": 100}, h.tags(t, smile.Path))
	assert.Equal(t, "fp-1", h.fingerprint(t, smile.Path))
}

func TestOnResource_IdempotentSkip(t *testing.T) {
	eng := enginetest.New("TEST", "tst", map[string]int{"smile": 100})
	h := newHarness(t, eng)
	ctx := context.Background()

	_, err := h.orch.OnResource(ctx, smile)
	require.NoError(t, err)
	before := h.tags(t, smile.Path)

	outcome, err := h.orch.OnResource(ctx, smile)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeSkipped, outcome)
	assert.Equal(t, 1, eng.CallCount(), "no engine may run for an unchanged resource")
	assert.Equal(t, before, h.tags(t, smile.Path))
}

func TestOnResource_ChangedFingerprintReprocesses(t *testing.T) {
	eng := enginetest.New("TEST", "tst", map[string]int{"smile": 100})
	h := newHarness(t, eng)
	ctx := context.Background()

	_, err := h.orch.OnResource(ctx, smile)
	require.NoError(t, err)

	eng.Tags = map[string]int{"frown": 80}
	changed := smile
	changed.Fingerprint = "fp-2"
	outcome, err := h.orch.OnResource(ctx, changed)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeProcessed, outcome)
	assert.Equal(t, map[string]int{"TEST/tst_frown": 80}, h.tags(t, smile.Path))
	assert.Equal(t, "fp-2", h.fingerprint(t, smile.Path))
}

func TestOnResource_ForcedRescan(t *testing.T) {
	eng := enginetest.New("TEST", "tst", map[string]int{"smile": 100})
	h := newHarness(t, eng)
	ctx := context.Background()

	_, err := h.orch.OnResource(ctx, smile)
	require.NoError(t, err)
	require.NoError(t, h.store.ForceRescan(ctx, smile.Path))

	assert.Equal(t, map[string]int{"TEST/tst_smile": 100}, h.tags(t, smile.Path),
		"tags stay visible until replaced")

	outcome, err := h.orch.OnResource(ctx, smile)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, outcome)
	assert.Equal(t, 2, eng.CallCount())
}

func TestOnResource_TagIsolationAcrossEngines(t *testing.T) {
	a := enginetest.New("ENGINE_A", "ta", map[string]int{"dog": 90})
	b := enginetest.New("ENGINE_B", "tb", map[string]int{"dog": 70})
	h := newHarness(t, a, b)
	ctx := context.Background()

	_, err := h.orch.OnResource(ctx, smile)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ENGINE_A/ta_dog": 90, "ENGINE_B/tb_dog": 70}, h.tags(t, smile.Path))

	a.Tags = map[string]int{"cat": 60}
	changed := smile
	changed.Fingerprint = "fp-2"
	_, err = h.orch.OnResource(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ENGINE_A/ta_cat": 60, "ENGINE_B/tb_dog": 70}, h.tags(t, smile.Path))
}

func TestOnResource_DeferralForcesRescan(t *testing.T) {
	a := enginetest.New("ENGINE_A", "ta", map[string]int{"dog": 90})
	b := enginetest.New("ENGINE_B", "tb", nil)
	b.TagFunc = enginetest.Deferring()
	h := newHarness(t, a, b)
	ctx := context.Background()

	outcome, err := h.orch.OnResource(ctx, smile)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeDeferred, outcome)
	assert.Equal(t, domain.RescanFingerprint, h.fingerprint(t, smile.Path))
	assert.Equal(t, map[string]int{"ENGINE_A/ta_dog": 90}, h.tags(t, smile.Path),
		"the engine that answered keeps its tags")

	outcome, err = h.orch.OnResource(ctx, smile)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDeferred, outcome)
	assert.Equal(t, 2, b.CallCount(), "a deferred resource is always dispatched again")
}

func TestOnResource_DeferralKeepsPreviousTags(t *testing.T) {
	eng := enginetest.New("TEST", "tst", map[string]int{"smile": 100})
	h := newHarness(t, eng)
	ctx := context.Background()

	_, err := h.orch.OnResource(ctx, smile)
	require.NoError(t, err)

	eng.TagFunc = enginetest.Deferring()
	changed := smile
	changed.Fingerprint = "fp-2"
	outcome, err := h.orch.OnResource(ctx, changed)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeDeferred, outcome)
	assert.Equal(t, map[string]int{"TEST/tst_smile": 100}, h.tags(t, smile.Path))
}

func TestOnResource_EngineFailure(t *testing.T) {
	eng := enginetest.New("TEST", "tst", nil)
	eng.TagFunc = enginetest.Failing(fmt.Errorf("unsupported image"))
	h := newHarness(t, eng)

	outcome, err := h.orch.OnResource(context.Background(), smile)

	require.NoError(t, err, "an engine failure only fails the resource")
	assert.Equal(t, domain.OutcomeFailed, outcome)
	assert.Equal(t, domain.RescanFingerprint, h.fingerprint(t, smile.Path))
}

func TestOnResource_EmptyResultClearsTags(t *testing.T) {
	eng := enginetest.New("TEST", "tst", map[string]int{"smile": 100})
	h := newHarness(t, eng)
	ctx := context.Background()

	_, err := h.orch.OnResource(ctx, smile)
	require.NoError(t, err)

	eng.Tags = map[string]int{"dust": 5}
	changed := smile
	changed.Fingerprint = "fp-2"
	outcome, err := h.orch.OnResource(ctx, changed)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeProcessed, outcome)
	assert.Empty(t, h.tags(t, smile.Path))
}

func TestOnResource_ExternalSyncScoping(t *testing.T) {
	eng := enginetest.New("TTF", "ttf", map[string]int{"Poppy": 95})
	h := newHarness(t, eng)
	h.external.tags["4711"] = []string{"ttf_Roman", "manual_favorite"}

	file := smile
	file.ExternalID = "4711"
	_, err := h.orch.OnResource(context.Background(), file)
	require.NoError(t, err)

	assert.Equal(t, []string{"manual_favorite", "ttf_Poppy"}, h.external.snapshot("4711"))
}

func TestOnResource_NoExternalIDSkipsSync(t *testing.T) {
	eng := enginetest.New("TTF", "ttf", map[string]int{"Poppy": 95})
	h := newHarness(t, eng)
	h.external.fail = fmt.Errorf("must not be called")

	outcome, err := h.orch.OnResource(context.Background(), smile)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, outcome)
}

func TestOnResource_SyncErrorKeepsStoreWrite(t *testing.T) {
	eng := enginetest.New("TTF", "ttf", map[string]int{"Poppy": 95})
	h := newHarness(t, eng)
	h.external.fail = fmt.Errorf("plex unreachable")

	file := smile
	file.ExternalID = "4711"
	outcome, err := h.orch.OnResource(context.Background(), file)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, outcome)
	assert.Equal(t, map[string]int{"TTF/ttf_Poppy": 95}, h.tags(t, smile.Path))
	assert.Equal(t, domain.RescanFingerprint, h.fingerprint(t, smile.Path), "fingerprint is not committed")
}

func TestOnResource_SyncRecoversOnNextPass(t *testing.T) {
	eng := enginetest.New("TTF", "ttf", map[string]int{"Poppy": 95})
	h := newHarness(t, eng)
	h.external.tags["4711"] = []string{"ttf_Roman", "manual_favorite"}
	ctx := context.Background()

	file := smile
	file.ExternalID = "4711"

	h.external.fail = fmt.Errorf("plex unreachable")
	outcome, err := h.orch.OnResource(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, outcome)
	assert.Equal(t, []string{"manual_favorite", "ttf_Roman"}, h.external.snapshot("4711"))

	h.external.fail = nil
	outcome, err = h.orch.OnResource(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, outcome)
	assert.Equal(t, 2, eng.CallCount())
	assert.Equal(t, []string{"manual_favorite", "ttf_Poppy"}, h.external.snapshot("4711"))
	assert.Equal(t, "fp-1", h.fingerprint(t, smile.Path))

	outcome, err = h.orch.OnResource(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, outcome)
}

func TestOnResource_PersistenceErrorAborts(t *testing.T) {
	a := enginetest.New("ENGINE_A", "ta", map[string]int{"dog": 90})
	b := enginetest.New("ENGINE_B", "tb", map[string]int{"cat": 90})
	h := newHarness(t, a, b)
	broken := ListenerFunc(func(context.Context, domain.FileInfo, engine.Info, map[string]int) error {
		return errors.Persistence("replace tags", fmt.Errorf("disk I/O error"))
	})
	orch := New(h.store, h.registry, Options{Logger: testLogger()}, broken)

	outcome, err := orch.OnResource(context.Background(), smile)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPersistence))
	assert.Equal(t, domain.OutcomeFailed, outcome)
	assert.Zero(t, b.CallCount(), "the resource is abandoned at the failing write")
	assert.Equal(t, domain.RescanFingerprint, h.fingerprint(t, smile.Path))
}

func TestOnResource_ListenerErrorIsLogged(t *testing.T) {
	eng := enginetest.New("TEST", "tst", map[string]int{"smile": 100})
	h := newHarness(t, eng)
	var seen []string
	flaky := ListenerFunc(func(_ context.Context, _ domain.FileInfo, info engine.Info, _ map[string]int) error {
		seen = append(seen, info.Name)
		return fmt.Errorf("console closed")
	})
	orch := New(h.store, h.registry, Options{Logger: testLogger()}, flaky, NewStoreListener(h.store))

	outcome, err := orch.OnResource(context.Background(), smile)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, outcome)
	assert.Equal(t, []string{"TEST"}, seen)
	assert.Equal(t, map[string]int{"TEST/tst_smile": 100}, h.tags(t, smile.Path), "later listeners still run")
	assert.Equal(t, domain.RescanFingerprint, h.fingerprint(t, smile.Path))
}

func TestOnResource_MissingPrefixIsFatal(t *testing.T) {
	h := newHarness(t)
	noPrefix := enginetest.New("BARE", "", nil)
	h.registry.Register(noPrefix)

	_, err := h.orch.OnResource(context.Background(), smile)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
	assert.Zero(t, noPrefix.CallCount())
}

func TestOnResource_WorkingCopyAndExternalIDReachEngines(t *testing.T) {
	eng := enginetest.New("TEST", "tst", map[string]int{"smile": 100})
	h := newHarness(t, eng)

	file := smile
	file.WorkingPath = "/tmp/tigertag-123.png"
	file.ExternalID = "4711"
	_, err := h.orch.OnResource(context.Background(), file)
	require.NoError(t, err)

	calls := eng.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, engine.Request{Path: smile.Path, WorkingPath: "/tmp/tigertag-123.png", ExternalID: "4711"}, calls[0])
}
