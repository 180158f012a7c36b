package httpkit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperr "cardpress/internal/pkg/errors"
)

func TestCORS(t *testing.T) {
	h := CORS(CORSOptions{AllowedOrigins: []string{" http://app.local "}, ExposedHeaders: []string{"X-Render-Warnings"}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }))

	req := httptest.NewRequest(http.MethodOptions, "/templates", nil)
	req.Header.Set("Origin", "http://app.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://app.local" {
		t.Errorf("allow origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != "X-Render-Warnings" {
		t.Errorf("expose headers = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/templates", nil)
	req.Header.Set("Origin", "http://evil.local")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot {
		t.Errorf("request should reach handler, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin must not be echoed")
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}
	tests := []struct {
		in   string
		code apperr.Code
		ok   bool
	}{
		{`{"name":"card"}`, "", true},
		{`{"name":"card","extra":1}`, apperr.CodeBadRequest, false},
		{`{"name":"card"} {}`, apperr.CodeBadRequest, false},
		{`not json`, apperr.CodeBadRequest, false},
	}
	for _, tt := range tests {
		var b body
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.in))
		err := DecodeJSON(httptest.NewRecorder(), req, &b)
		if tt.ok {
			if err != nil || b.Name != "card" {
				t.Errorf("%s: unexpected %v %+v", tt.in, err, b)
			}
			continue
		}
		if !apperr.IsCode(err, tt.code) {
			t.Errorf("%s: expected %s, got %v", tt.in, tt.code, err)
		}
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apperr.ValidationProblems("invalid template", []string{"width must be positive"}))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	var env ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Error.Code != "VALIDATION_ERROR" || env.Error.Message != "invalid template" {
		t.Errorf("unexpected envelope %+v", env)
	}
	if probs, _ := env.Error.Details["problems"].([]any); len(probs) != 1 {
		t.Errorf("details = %v", env.Error.Details)
	}

	rec = httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("dial tcp: refused"))
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "refused") {
		t.Errorf("internal errors must be opaque: %d %s", rec.Code, rec.Body.String())
	}
}

func TestPgHelpers(t *testing.T) {
	wrap := func(code string) error { return fmt.Errorf("insert: %w", &pgconn.PgError{Code: code}) }
	if !IsUniqueViolation(wrap("23505")) || IsUniqueViolation(wrap("42P01")) {
		t.Error("IsUniqueViolation mismatch")
	}
	if !IsUndefinedTable(wrap("42P01")) {
		t.Error("IsUndefinedTable mismatch")
	}
	if !IsForeignKeyViolation(wrap("23503")) {
		t.Error("IsForeignKeyViolation mismatch")
	}
	if !IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)) || IsNoRows(nil) {
		t.Error("IsNoRows mismatch")
	}
}

func TestSSE(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewSSE(rec)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Send("progress", map[string]int{"processed": 2}); err != nil {
		t.Fatal(err)
	}
	_ = s.Comment("ping")

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	want := "event: progress\ndata: {\"processed\":2}\n\n: ping\n\n"
	if rec.Body.String() != want {
		t.Errorf("body = %q, want %q", rec.Body.String(), want)
	}
}
