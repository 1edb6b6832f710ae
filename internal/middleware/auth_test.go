package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAuthJWTRoundTrip(t *testing.T) {
	const secret = "test-secret"

	var gotUser string
	handler := AuthJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token, err := SignJWT(secret, "user-1", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotUser != "user-1" {
		t.Fatalf("user = %q, want user-1", gotUser)
	}
}

func TestAuthJWTRejections(t *testing.T) {
	const secret = "test-secret"
	handler := AuthJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("handler must not run")
	}))

	expired, err := SignJWT(secret, "user-1", -time.Minute)
	if err != nil {
		t.Fatalf("sign expired: %v", err)
	}
	wrongKey, err := SignJWT("other-secret", "user-1", time.Minute)
	if err != nil {
		t.Fatalf("sign wrong key: %v", err)
	}
	noSubject, err := SignJWT(secret, "", time.Minute)
	if err != nil {
		t.Fatalf("sign no subject: %v", err)
	}

	cases := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not.a.jwt"},
		{name: "expired", header: "Bearer " + expired},
		{name: "wrong key", header: "Bearer " + wrongKey},
		{name: "empty subject", header: "Bearer " + noSubject},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, r)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}
