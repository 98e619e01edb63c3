package turn

import (
	"context"
	"errors"
	"sync"

	"github.com/redeven-labs/turnengine/internal/provider"
)

// scriptedStep is one call's worth of canned behavior for fakeProvider.
type scriptedStep struct {
	events      []provider.Event
	afterEvents func()
	err         error
}

// fakeProvider replays a fixed script of StreamTurn calls and records every
// request it was asked to stream, so tests can assert on turn_input without
// depending on a real model backend.
type fakeProvider struct {
	mu       sync.Mutex
	steps    []scriptedStep
	calls    int
	requests []provider.Request
}

func (f *fakeProvider) StreamTurn(ctx context.Context, req provider.Request, onEvent func(provider.Event)) error {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if idx >= len(f.steps) {
		return errors.New("fakeProvider: no more scripted steps")
	}
	step := f.steps[idx]
	for _, ev := range step.events {
		onEvent(ev)
	}
	if step.afterEvents != nil {
		step.afterEvents()
	}
	return step.err
}

func (f *fakeProvider) requestAt(i int) (provider.Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.requests) {
		return provider.Request{}, false
	}
	return f.requests[i], true
}

// alwaysErrProvider returns the same error from every StreamTurn call,
// without emitting any events. Used to exercise retry exhaustion.
type alwaysErrProvider struct{ err error }

func (p *alwaysErrProvider) StreamTurn(ctx context.Context, req provider.Request, onEvent func(provider.Event)) error {
	return p.err
}
