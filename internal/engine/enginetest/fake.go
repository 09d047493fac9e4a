// Package enginetest provides a scriptable engine for tests.
package enginetest

import (
	"context"
	"sync"

	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/engine"
)

// Fake is an engine whose output is configured per call.
type Fake struct {
	info engine.Info

	mu    sync.Mutex
	calls []engine.Request

	// TagFunc computes the result. When nil, Tags is returned qualified with
	// the engine prefix.
	TagFunc func(ctx context.Context, req engine.Request) (*domain.TagComputation, error)
	// Tags are raw (unprefixed) labels and confidences.
	Tags map[string]int
}

// New creates an enabled fake engine.
func New(name, prefix string, tags map[string]int) *Fake {
	return &Fake{
		info: engine.Info{Name: name, Prefix: prefix, Enabled: true},
		Tags: tags,
	}
}

// Disabled returns the fake with its enabled flag cleared.
func (f *Fake) Disabled() *Fake {
	f.info.Enabled = false
	return f
}

// Info implements engine.Engine.
func (f *Fake) Info() engine.Info { return f.info }

// Tag implements engine.Engine.
func (f *Fake) Tag(ctx context.Context, req engine.Request) (*domain.TagComputation, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.TagFunc != nil {
		return f.TagFunc(ctx, req)
	}
	c := domain.NewTagComputation(req.Path)
	for label, confidence := range f.Tags {
		c.Put(f.info.Qualify(label), confidence)
	}
	return c, nil
}

// Calls returns the requests received so far.
func (f *Fake) Calls() []engine.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Request(nil), f.calls...)
}

// CallCount returns how many times Tag was invoked.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Deferring returns a TagFunc that always defers.
func Deferring() func(context.Context, engine.Request) (*domain.TagComputation, error) {
	return func(context.Context, engine.Request) (*domain.TagComputation, error) {
		return nil, nil
	}
}

// Failing returns a TagFunc that always fails with err.
func Failing(err error) func(context.Context, engine.Request) (*domain.TagComputation, error) {
	return func(context.Context, engine.Request) (*domain.TagComputation, error) {
		return nil, err
	}
}
