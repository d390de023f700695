package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Token(context.Context) (string, error) {
	return s.token, s.err
}

func TestTransport_AddsBearer(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &Transport{Tokens: staticTokens{token: "abc"}}}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	_ = resp.Body.Close()

	if got != "Bearer abc" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer abc")
	}
	if req.Header.Get("Authorization") != "" {
		t.Error("Transport mutated the caller's request")
	}
}

func TestTransport_TokenError(t *testing.T) {
	errMint := errors.New("mint failed")
	client := &http.Client{Transport: &Transport{Tokens: staticTokens{err: errMint}}}

	_, err := client.Get("http://127.0.0.1:1/")
	if !errors.Is(err, errMint) {
		t.Errorf("Get() error = %v, want %v", err, errMint)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRequireBearer(t *testing.T) {
	now := time.Now()
	admin, _ := NewTokenSource(TokenConfig{Subject: "ops", Roles: []string{"cache-admin"}}, testKey)
	reader, _ := NewTokenSource(TokenConfig{Subject: "viewer", Roles: []string{"reader"}}, testKey)
	adminToken, _ := admin.Token(context.Background())
	readerToken, _ := reader.Token(context.Background())

	v := NewVerifier(VerifierConfig{}, NewStaticKeyProvider(testKey))
	v.now = func() time.Time { return now }

	var principal string
	h := RequireBearer(v, "cache-admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + readerToken, http.StatusForbidden},
		{"admin", "Bearer " + adminToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/cache/projects", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && !strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), "Bearer") {
				t.Error("missing WWW-Authenticate challenge")
			}
		})
	}
	if principal != "ops" {
		t.Errorf("principal = %q, want ops", principal)
	}
}
