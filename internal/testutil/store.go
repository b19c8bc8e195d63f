package testutil

import (
	"context"
	"encoding/json"
	"time"

	"github.com/finboard/finboard/pkg/store"
)

// DownStore is a store.Store whose backend is unreachable: every
// operation fails with store.ErrUnavailable.
type DownStore struct{}

func (DownStore) Get(context.Context, string) (*store.Entry, error) {
	return nil, store.ErrUnavailable
}

func (DownStore) Put(context.Context, string, json.RawMessage, time.Duration) error {
	return store.ErrUnavailable
}

func (DownStore) Clear(context.Context, string) error {
	return store.ErrUnavailable
}

func (DownStore) ClearAll(context.Context) error {
	return store.ErrUnavailable
}

func (DownStore) Keys(context.Context) ([]string, error) {
	return nil, store.ErrUnavailable
}
