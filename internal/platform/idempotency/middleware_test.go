package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ukisoft/ownplate/internal/platform/auth"
)

var fixedTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

const placePath = "/api/v1/restaurants/r1/orders/o1/place"

func newPlaceRequest(body, key, uid string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, placePath, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderName, key)
	}
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
	}
	return req
}

func TestMiddleware_PassesThroughWithoutKey(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newPlaceRequest(`{"tip":100}`, "", "alice"))
		if rr.Code != http.StatusOK {
			t.Fatalf("unexpected status %d", rr.Code)
		}
		if rr.Header().Get(replayHeaderName) != "" {
			t.Fatalf("requests without a key must not be replayed")
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, got %d", calls)
	}
}

func TestMiddleware_ReplaysStoredResponse(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":300}`))
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, newPlaceRequest(`{"tip":100}`, "abc-123", "alice"))
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, newPlaceRequest(`{"tip":100}`, "abc-123", "alice"))

	if calls != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
	if rr2.Code != http.StatusOK || rr2.Header().Get(replayHeaderName) != "true" {
		t.Fatalf("expected replayed 200, got %d headers %v", rr2.Code, rr2.Header())
	}
	if rr2.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content type to be replayed")
	}
	if rr2.Body.String() != rr1.Body.String() {
		t.Fatalf("expected body %s, got %s", rr1.Body.String(), rr2.Body.String())
	}
}

func TestMiddleware_KeysAreScopedToCaller(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), newPlaceRequest(`{}`, "shared", "alice"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newPlaceRequest(`{}`, "shared", "bob"))

	if calls != 2 {
		t.Fatalf("expected each caller to run the handler, got %d calls", calls)
	}
	if rr.Header().Get(replayHeaderName) != "" {
		t.Fatalf("another caller must not receive a replay")
	}
}

func TestMiddleware_ConflictingBodyReturnsConflict(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), newPlaceRequest(`{"tip":100}`, "same-key", "alice"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newPlaceRequest(`{"tip":200}`, "same-key", "alice"))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency-key-conflict")
}

func TestMiddleware_PendingReservationReturnsConflict(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run while the key is pending")
	}))

	req := newPlaceRequest(`{"tip":100}`, "pending-key", "alice")
	body, err := readAndReplayBody(req)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if _, err := store.Reserve(req.Context(), "pending-key|alice", requestFingerprint(req, body, "alice"), fixedTime, time.Hour); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "aborted")
}

func TestMiddleware_ServerErrorReleasesKey(t *testing.T) {
	store := NewMemoryStore()
	status := http.StatusServiceUnavailable
	var calls int
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newPlaceRequest(`{}`, "retry-key", "alice"))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 to pass through, got %d", rr.Code)
	}

	status = http.StatusOK
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, newPlaceRequest(`{}`, "retry-key", "alice"))
	if calls != 2 || rr.Code != http.StatusOK || rr.Header().Get(replayHeaderName) != "" {
		t.Fatalf("expected retry to run the handler, calls=%d code=%d", calls, rr.Code)
	}
}

func TestMiddleware_CompleteFailureStillDeliversResponse(t *testing.T) {
	store := &stubStore{failComplete: true}
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newPlaceRequest(`{}`, "fail-key", "alice"))

	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("expected original response, got %d %q", rr.Code, rr.Body.String())
	}
	if !store.released {
		t.Fatalf("expected key to be released")
	}
}

func TestMiddleware_ReserveErrorIsUnavailable(t *testing.T) {
	store := &stubStore{reserveErr: errors.New("firestore down")}
	handler := Middleware(store)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newPlaceRequest(`{}`, "k", "alice"))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "unavailable")
}

func TestMemoryStore_ExpiredRecordIsReplaced(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Reserve(ctx, "k", "fp-1", fixedTime, time.Minute); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := store.Complete(ctx, "k", "fp-1", Response{Status: http.StatusOK}, fixedTime, time.Minute); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	res, err := store.Reserve(ctx, "k", "fp-1", fixedTime.Add(30*time.Second), time.Minute)
	if err != nil || res.State != ReservationStateCompleted {
		t.Fatalf("expected completed reservation, got %+v %v", res, err)
	}
	res, err = store.Reserve(ctx, "k", "fp-2", fixedTime.Add(2*time.Minute), time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected expired record to be replaced, got %+v %v", res, err)
	}
}

type stubStore struct {
	reserveErr   error
	failComplete bool
	released     bool
}

func (s *stubStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	if s.reserveErr != nil {
		return Reservation{}, s.reserveErr
	}
	return Reservation{State: ReservationStateNew}, nil
}

func (s *stubStore) Complete(context.Context, string, string, Response, time.Time, time.Duration) error {
	if s.failComplete {
		return errors.New("complete failed")
	}
	return nil
}

func (s *stubStore) Release(context.Context, string) error {
	s.released = true
	return nil
}

func assertErrorResponse(t *testing.T, payload []byte, expected string) {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if body.Error != expected {
		t.Fatalf("expected error code %s, got %s", expected, body.Error)
	}
}
