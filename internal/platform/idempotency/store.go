package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

// Status is the lifecycle state of a stored key.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState describes the outcome of reserving a key.
type ReservationState int

const (
	// ReservationStateNew means the caller owns the key and should run the request.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means a stored response should be replayed.
	ReservationStateCompleted
	// ReservationStatePending means another request holds the key.
	ReservationStatePending
)

type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the stored state of one key.
type Record struct {
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Response is the HTTP response stored for replay.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists reservations and completed responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reused for a different request")

// reserve applies the reservation rules to the currently stored record, if any. It returns the
// record to store (nil when nothing changes) and the reservation to report.
func reserve(existing *Record, fingerprint string, now time.Time, ttl time.Duration) (*Record, Reservation, error) {
	if existing == nil || existing.expired(now) {
		record := Record{
			Fingerprint: fingerprint,
			Status:      StatusPending,
			CreatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		}
		return &record, Reservation{State: ReservationStateNew, Record: record}, nil
	}
	if existing.Fingerprint != fingerprint {
		return nil, Reservation{}, ErrFingerprintMismatch
	}
	if existing.Status == StatusCompleted {
		return nil, Reservation{State: ReservationStateCompleted, Record: *existing}, nil
	}
	return nil, Reservation{State: ReservationStatePending, Record: *existing}, nil
}

func completed(fingerprint string, resp Response, createdAt, now time.Time, ttl time.Duration) Record {
	if createdAt.IsZero() {
		createdAt = now
	}
	var body []byte
	if len(resp.Body) > 0 {
		body = append([]byte(nil), resp.Body...)
	}
	return Record{
		Fingerprint:     fingerprint,
		Status:          StatusCompleted,
		ResponseStatus:  resp.Status,
		ResponseHeaders: storedHeaders(resp.Headers),
		ResponseBody:    body,
		CreatedAt:       createdAt,
		ExpiresAt:       now.Add(ttl),
	}
}

func hashKey(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// storedHeaders keeps the headers worth replaying.
func storedHeaders(header http.Header) map[string][]string {
	out := make(map[string][]string)
	for _, name := range []string{"Content-Type", "X-Cloud-Trace-Context"} {
		if values := header.Values(name); len(values) > 0 {
			out[name] = append([]string(nil), values...)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
