package daemon

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSONBasic(t *testing.T) {
	rec := httptest.NewRecorder()
	payload := map[string]string{"status": "ok"}
	if err := writeJSON(rec, 202, payload); err != nil {
		t.Fatalf("writeJSON error: %v", err)
	}
	if rec.Code != 202 {
		t.Fatalf("expected status 202 got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("unexpected content-type: %s", ct)
	}
	if body := rec.Body.String(); body == "" || body[0] != '{' {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestWriteJSONPretty(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/x?pretty=1", nil)
	payload := map[string]string{"hello": "world"}
	if err := writeJSONPretty(rec, r, 200, payload); err != nil {
		t.Fatalf("writeJSONPretty error: %v", err)
	}
	if rec.Code != 200 {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if lines := strings.Count(strings.TrimSpace(rec.Body.String()), "\n") + 1; lines < 2 {
		t.Fatalf("expected pretty (multi-line) output, got %d lines: %q", lines, rec.Body.String())
	}
}

func TestWriteJSONUnsupportedValue(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := writeJSON(rec, 200, make(chan int)); err == nil {
		t.Fatal("expected encode error")
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("no partial body expected, got %q", rec.Body.String())
	}
}
