package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Decoder hydrates a typed value from a snapshot.
type Decoder[T any] func(snap *firestore.DocumentSnapshot) (T, error)

// StructDecoder populates T using Firestore's native struct decoding.
func StructDecoder[T any]() Decoder[T] {
	return func(snap *firestore.DocumentSnapshot) (T, error) {
		var target T
		err := snap.DataTo(&target)
		return target, err
	}
}

// Get reads and decodes the document at path outside of a transaction.
func Get[T any](ctx context.Context, p *Provider, path string, decode Decoder[T]) (T, error) {
	var zero T
	ref, err := p.Doc(ctx, path)
	if err != nil {
		return zero, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return zero, WrapError("get "+path, err)
	}
	value, err := decode(snap)
	if err != nil {
		return zero, fmt.Errorf("firestore: decode %s: %w", path, err)
	}
	return value, nil
}

// TxGet reads ref inside tx. A missing document is reported through found rather than an error.
func TxGet[T any](tx *firestore.Transaction, ref *firestore.DocumentRef, decode Decoder[T]) (value T, found bool, err error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return value, false, nil
	}
	if err != nil {
		return value, false, WrapError("tx get "+ref.Path, err)
	}
	if !snap.Exists() {
		return value, false, nil
	}
	value, err = decode(snap)
	if err != nil {
		return value, false, fmt.Errorf("firestore: decode %s: %w", ref.Path, err)
	}
	return value, true, nil
}
