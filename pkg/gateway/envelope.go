package gateway

import (
	"encoding/json"
	"time"

	"github.com/finboard/finboard/pkg/store"
)

// Status is the three-state response protocol shared with clients.
type Status string

const (
	// StatusOK carries data, possibly stale.
	StatusOK Status = "ok"

	// StatusWarmingUp means no value exists yet and a refresh is
	// presumed pending.
	StatusWarmingUp Status = "warming_up"

	// StatusError means the read itself failed (store unreachable).
	StatusError Status = "error"
)

// Envelope is the wire-level response produced by the gateway. Fields
// not applicable to the status are null rather than omitted, except the
// optional stale marker.
type Envelope struct {
	Status   Status          `json:"status"`
	Data     json.RawMessage `json:"data"`
	Message  *string         `json:"message"`
	CachedAt *time.Time      `json:"cached_at"`
	TTL      *int64          `json:"ttl"`
	Stale    bool            `json:"stale,omitempty"`
}

// User-visible messages for the non-ok states.
const (
	msgWarmingUp   = "data warming up"
	msgUnavailable = "cache unavailable"
)

func okEnvelope(entry *store.Entry, stale bool) Envelope {
	cachedAt := entry.CachedAt
	ttl := int64(entry.TTL / time.Second)
	return Envelope{
		Status:   StatusOK,
		Data:     entry.Value,
		CachedAt: &cachedAt,
		TTL:      &ttl,
		Stale:    stale,
	}
}

func warmingEnvelope() Envelope {
	msg := msgWarmingUp
	return Envelope{
		Status:  StatusWarmingUp,
		Message: &msg,
	}
}

func errorEnvelope(message string) Envelope {
	return Envelope{
		Status:  StatusError,
		Message: &message,
	}
}
