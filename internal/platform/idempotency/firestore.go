package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/ukisoft/ownplate/internal/platform/firestore"
)

const defaultCollection = "idempotencyKeys"

// FirestoreStore keeps records in a Firestore collection. Expired documents are removed by a
// Firestore TTL policy on expiresAt.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore constructs a Firestore-backed store. An empty collection uses the default.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency: firestore provider is required")
	}
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{provider: provider, collection: collection}, nil
}

func (s *FirestoreStore) ref(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	return s.provider.Doc(ctx, s.collection+"/"+hashKey(key))
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	ref, err := s.ref(ctx, key)
	if err != nil {
		return Reservation{}, err
	}
	var result Reservation
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, found, err := pfirestore.TxGet(tx, ref, pfirestore.StructDecoder[firestoreRecord]())
		if err != nil {
			return err
		}
		var existing *Record
		if found {
			record := doc.toRecord()
			existing = &record
		}
		next, reservation, err := reserve(existing, fingerprint, now.UTC(), ttl)
		if err != nil {
			return err
		}
		result = reservation
		if next == nil {
			return nil
		}
		return tx.Set(ref, fromRecord(*next))
	})
	return result, err
}

func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	ref, err := s.ref(ctx, key)
	if err != nil {
		return err
	}
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, found, err := pfirestore.TxGet(tx, ref, pfirestore.StructDecoder[firestoreRecord]())
		if err != nil {
			return err
		}
		if found && doc.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		return tx.Set(ref, fromRecord(completed(fingerprint, resp, doc.CreatedAt, now.UTC(), ttl)))
	})
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	ref, err := s.ref(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && !pfirestore.IsNotFound(pfirestore.WrapError("idempotency.release", err)) {
		return pfirestore.WrapError("idempotency.release", err)
	}
	return nil
}

type firestoreRecord struct {
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"responseStatus"`
	ResponseHeaders map[string][]string `firestore:"responseHeaders,omitempty"`
	ResponseBody    []byte              `firestore:"responseBody,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	ExpiresAt       time.Time           `firestore:"expiresAt"`
}

func (r firestoreRecord) toRecord() Record {
	return Record{
		Fingerprint:     r.Fingerprint,
		Status:          Status(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func fromRecord(r Record) firestoreRecord {
	return firestoreRecord{
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}
