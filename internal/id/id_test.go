package id

import (
	"encoding/json"
	"testing"
)

func TestNewIsUniqueAndNonNil(t *testing.T) {
	a := New()
	b := New()

	if a.Nil() {
		t.Fatal("New() returned a nil ID")
	}
	if a == b {
		t.Fatal("two calls to New() produced the same ID")
	}
}

func TestIDJSONRoundTrip(t *testing.T) {
	want := New()

	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got ID
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got != want {
		t.Errorf("round-tripped ID = %v, want %v", got, want)
	}
}

func TestIDStringIsCanonicalHex(t *testing.T) {
	s := New().String()
	// 8-4-4-4-12 hex, hyphen-separated: 32 hex digits + 4 hyphens = 36 chars.
	if len(s) != 36 {
		t.Fatalf("String() length = %d, want 36 (got %q)", len(s), s)
	}
}
