package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"casebeam/internal/auth"
)

func echoUser(w http.ResponseWriter, r *http.Request) {
	if id, ok := auth.GetUserIDFromContext(r.Context()); ok {
		w.Header().Set("X-User", strconv.Itoa(id))
	}
	w.WriteHeader(http.StatusTeapot)
}

func TestAuthMiddleware(t *testing.T) {
	iss := auth.NewIssuer("secret", time.Hour, false)
	rev := auth.NewRevocations()
	h := Auth(iss, rev)(http.HandlerFunc(echoUser))

	// public path passes without a token
	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusTeapot {
		t.Errorf("Expected public path to pass, got %d", w.Code)
	}

	// protected path without a token
	req = httptest.NewRequest("GET", "/api/notes", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}

	// valid bearer token
	tok, claims, _ := iss.IssueToken(7)
	req = httptest.NewRequest("GET", "/api/notes", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusTeapot || w.Header().Get("X-User") != "7" {
		t.Errorf("Expected authenticated request, got %d %q", w.Code, w.Header().Get("X-User"))
	}

	// revoked token
	rev.Revoke(claims.ID, claims.ExpiresAt.Time)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected revoked token to be rejected, got %d", w.Code)
	}
}

func TestLoggingSetsRequestID(t *testing.T) {
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusCreated {
		t.Errorf("Expected 201, got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected a generated request id")
	}

	const incoming = "0b8f4a52-5d3e-4c1b-9f0e-2a7c6d1e8b94"
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set(RequestIDHeader, incoming)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != incoming {
		t.Errorf("Expected incoming request id to be kept, got %q", got)
	}

	for _, bad := range []string{"abc", "x\nforged log line", strings.Repeat("a", 4096)} {
		req := httptest.NewRequest("GET", "/healthz", nil)
		req.Header.Set(RequestIDHeader, bad)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		got := w.Header().Get(RequestIDHeader)
		if got == bad {
			t.Errorf("Expected %.20q to be replaced", bad)
		}
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("Expected a generated uuid, got %q", got)
		}
	}
}
