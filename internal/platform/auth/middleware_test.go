package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func serve(t *testing.T, h http.Handler, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	code, _ := body["error"].(string)
	return code
}

func TestRequireFirebaseAuthOperatorToken(t *testing.T) {
	token := &firebaseauth.Token{
		UID:    "owner-1",
		Claims: map[string]interface{}{"email": "owner@example.com", "locale": "ja"},
	}
	token.Firebase.SignInProvider = "password"
	verifier := &stubTokenVerifier{token: token}
	authn := NewAuthenticator(verifier)

	called := false
	handler := authn.RequireFirebaseAuth()(RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "owner-1" || !identity.Admin || identity.Locale != "ja" {
			t.Fatalf("unexpected identity %+v", identity)
		}
		if CallerUID(r.Context()) != "owner-1" {
			t.Fatalf("expected caller uid")
		}
		w.WriteHeader(http.StatusNoContent)
	})))

	rr := serve(t, handler, "Bearer token-value")
	if rr.Code != http.StatusNoContent || !called {
		t.Fatalf("expected handler to run, got %d", rr.Code)
	}
	if verifier.received != "token-value" {
		t.Fatalf("expected verifier to receive token-value, got %s", verifier.received)
	}
}

func TestRequireAdminRejectsCustomers(t *testing.T) {
	token := &firebaseauth.Token{UID: "alice", Claims: map[string]interface{}{"phone_number": "+819011112222"}}
	token.Firebase.SignInProvider = "phone"
	authn := NewAuthenticator(&stubTokenVerifier{token: token})

	customerOnly := authn.RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		if identity.Admin || identity.PhoneNumber != "+819011112222" {
			t.Fatalf("unexpected identity %+v", identity)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	if rr := serve(t, customerOnly, "Bearer t"); rr.Code != http.StatusNoContent {
		t.Fatalf("expected customer route to pass, got %d", rr.Code)
	}

	adminOnly := authn.RequireFirebaseAuth()(RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run for customers")
	})))
	rr := serve(t, adminOnly, "Bearer t")
	if rr.Code != http.StatusForbidden || errorCode(t, rr) != "permission-denied" {
		t.Fatalf("expected 403 permission-denied, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAdminClaimGrantsOperatorAccess(t *testing.T) {
	token := &firebaseauth.Token{UID: "ops", Claims: map[string]interface{}{"operator": true}}
	authn := NewAuthenticator(&stubTokenVerifier{token: token}, WithAdminClaim("operator"))
	handler := authn.RequireFirebaseAuth()(RequireAdmin()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	if rr := serve(t, handler, "Bearer t"); rr.Code != http.StatusNoContent {
		t.Fatalf("expected custom claim to grant access, got %d", rr.Code)
	}
}

func TestRequireFirebaseAuthRejections(t *testing.T) {
	cases := []struct {
		name     string
		verifier TokenVerifier
		header   string
	}{
		{name: "missing header", verifier: &stubTokenVerifier{}, header: ""},
		{name: "wrong scheme", verifier: &stubTokenVerifier{}, header: "Basic abc"},
		{name: "expired token", verifier: &stubTokenVerifier{err: ErrTokenExpired}, header: "Bearer expired"},
		{name: "invalid token", verifier: &stubTokenVerifier{err: ErrTokenInvalid}, header: "Bearer invalid"},
		{name: "empty uid", verifier: &stubTokenVerifier{token: &firebaseauth.Token{}}, header: "Bearer t"},
		{name: "no verifier", verifier: nil, header: "Bearer t"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewAuthenticator(tc.verifier).RequireFirebaseAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("handler should not execute")
			}))
			rr := serve(t, handler, tc.header)
			if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "unauthenticated" {
				t.Fatalf("expected 401 unauthenticated, got %d %s", rr.Code, rr.Body.String())
			}
		})
	}
}
