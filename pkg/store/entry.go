// Package store implements the shared TTL cache that backs the dashboard
// read path. Entries are written only by the refresh scheduler and read by
// the gateway; the store itself never calls a provider.
package store

import (
	"encoding/json"
	"time"
)

// Entry represents a cached dataset value.
//
// An entry is immutable once written: a refresh replaces the whole entry,
// it never mutates a stored value in place.
type Entry struct {
	// Key is the logical dataset identifier (e.g. "market-cn:fear-greed").
	Key string `json:"key"`

	// Value is the opaque payload produced by a provider.
	Value json.RawMessage `json:"value"`

	// CachedAt is the timestamp of the last successful write.
	CachedAt time.Time `json:"cached_at"`

	// TTL is the duration after which the entry counts as expired.
	// An expired entry is still served, marked stale, until it is
	// physically evicted at the end of the retention window.
	TTL time.Duration `json:"ttl"`
}

// Fresh reports whether the entry is within its TTL at the given instant.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Sub(e.CachedAt) < e.TTL
}

// ExpiresAt returns the instant the entry stops being fresh.
func (e *Entry) ExpiresAt() time.Time {
	return e.CachedAt.Add(e.TTL)
}

// Age returns how long ago the entry was written.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CachedAt)
}
