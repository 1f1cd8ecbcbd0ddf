package auth

import (
	"context"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Identity captures the authenticated caller extracted from a Firebase ID token.
type Identity struct {
	UID         string
	Email       string
	PhoneNumber string
	Locale      string
	// Admin marks restaurant operators, who sign in with email rather than a phone number.
	Admin bool

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token associated with this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

type contextKey string

const identityContextKey contextKey = "ownplate/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// CallerUID returns the authenticated uid, or "" for anonymous requests.
func CallerUID(ctx context.Context) string {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return ""
	}
	return identity.UID
}
