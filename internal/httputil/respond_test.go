package httputil

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/skydeck-host/skydeck/internal/errors"
)

func TestErrorMapsServiceErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, errors.DomainCollision("my-site.skydeck.site"))

	if rec.Code != 409 {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Code != "domain_collision" {
		t.Errorf("code = %q, want domain_collision", body.Code)
	}
	if body.Error == "" {
		t.Error("error message should not be empty")
	}
}

func TestErrorHidesUnknownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, errFake("pq: connection refused to 10.0.0.5"))

	if rec.Code != 500 {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Error("internal error details leaked to the response")
	}
}

type errFake string

func (e errFake) Error() string { return string(e) }

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"a","bogus":1}`))

	var dst struct {
		Name string `json:"name"`
	}
	if DecodeJSON(rec, req, &dst) {
		t.Fatal("DecodeJSON accepted unknown field")
	}
	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.10:4321"
	if got := ClientIP(req); got != "192.0.2.10" {
		t.Errorf("ClientIP = %q, want 192.0.2.10", got)
	}

	req.Header.Set("X-Real-IP", "198.51.100.7")
	if got := ClientIP(req); got != "198.51.100.7" {
		t.Errorf("ClientIP = %q, want X-Real-IP value", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 198.51.100.7")
	if got := ClientIP(req); got != "203.0.113.9" {
		t.Errorf("ClientIP = %q, want first X-Forwarded-For value", got)
	}
}
