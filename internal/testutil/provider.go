// Package testutil provides configurable fake collaborators for tests:
// a scripted provider standing in for slow upstream fetchers and a
// store whose backend is permanently down.
package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// FetchResult is one scripted provider outcome.
type FetchResult struct {
	Value json.RawMessage
	Err   error
}

// ScriptedProvider returns queued results in order; the final result
// repeats once the queue is exhausted. It tracks call counts and the
// maximum number of concurrent fetches, which lets tests assert the
// one-refresh-per-key guarantee.
type ScriptedProvider struct {
	mu      sync.Mutex
	results []FetchResult
	next    int

	calls       int
	inFlight    int
	maxInFlight int

	// Delay is applied inside each fetch, honoring ctx cancellation.
	Delay time.Duration

	// Block, when set, makes fetches wait until the channel is closed
	// (or ctx is done), to hold a refresh in flight deliberately.
	Block chan struct{}
}

// NewScriptedProvider creates a provider yielding the given results.
func NewScriptedProvider(results ...FetchResult) *ScriptedProvider {
	return &ScriptedProvider{results: results}
}

// Fetch returns the next scripted result.
func (p *ScriptedProvider) Fetch(ctx context.Context) (json.RawMessage, error) {
	p.mu.Lock()
	p.calls++
	p.inFlight++
	if p.inFlight > p.maxInFlight {
		p.maxInFlight = p.inFlight
	}
	var result FetchResult
	if len(p.results) > 0 {
		result = p.results[p.next]
		if p.next < len(p.results)-1 {
			p.next++
		}
	}
	delay := p.Delay
	block := p.Block
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return result.Value, result.Err
}

// Calls returns how many fetches started.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// MaxInFlight returns the highest number of concurrent fetches observed.
func (p *ScriptedProvider) MaxInFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxInFlight
}
