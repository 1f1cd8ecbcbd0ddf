package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/ukisoft/ownplate/internal/platform/httpx"
)

const (
	defaultLocaleClaim   = "locale"
	defaultAdminClaim    = "admin"
	emailSignInProvider  = "password"
	defaultVerifyTimeout = 5 * time.Second
)

var (
	// ErrTokenExpired signals that the provided Firebase ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid signals that the provided Firebase ID token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator wires Firebase token verification into HTTP middleware.
type Authenticator struct {
	verifier    TokenVerifier
	localeClaim string
	adminClaim  string
	timeout     time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithLocaleClaim overrides the claim used to populate Identity.Locale.
func WithLocaleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.localeClaim = claim
		}
	}
}

// WithAdminClaim overrides the custom boolean claim that grants operator access regardless of
// the sign-in provider.
func WithAdminClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.adminClaim = claim
		}
	}
}

// WithVerificationTimeout sets the timeout used when verifying tokens.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:    verifier,
		localeClaim: defaultLocaleClaim,
		adminClaim:  defaultAdminClaim,
		timeout:     defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth verifies the Authorization bearer token and stores the Identity on the
// request context. Requests without a valid token are rejected with 401.
func (a *Authenticator) RequireFirebaseAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeAuthError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				writeAuthError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
			token, err := a.verifier.VerifyIDToken(ctx, tokenStr)
			cancel()
			if err != nil {
				writeVerificationError(r.Context(), w, err)
				return
			}
			if token == nil || strings.TrimSpace(token.UID) == "" {
				writeAuthError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "token carries no uid")
				return
			}

			identity := a.identityFromToken(token)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAdmin rejects callers that are not restaurant operators with 403. It must run after
// RequireFirebaseAuth.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeAuthError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "authentication required")
				return
			}
			if !identity.Admin {
				writeAuthError(r.Context(), w, http.StatusForbidden, "permission-denied", "operator account required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) identityFromToken(token *firebaseauth.Token) *Identity {
	identity := &Identity{
		UID:         strings.TrimSpace(token.UID),
		Email:       claimAsString(token.Claims, "email"),
		PhoneNumber: claimAsString(token.Claims, "phone_number"),
		Locale:      claimAsString(token.Claims, a.localeClaim),
		token:       token,
	}
	identity.Admin = claimAsBool(token.Claims, a.adminClaim) ||
		(identity.Email != "" && token.Firebase.SignInProvider == emailSignInProvider)
	return identity
}

func claimAsString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func claimAsBool(claims map[string]interface{}, key string) bool {
	v, _ := claims[key].(bool)
	return v
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func writeAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}

func writeVerificationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired), firebaseauth.IsIDTokenExpired(err):
		writeAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "firebase id token expired")
	case errors.Is(err, ErrTokenInvalid), firebaseauth.IsIDTokenInvalid(err):
		writeAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "firebase id token invalid")
	default:
		writeAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "firebase id token verification failed")
	}
}
