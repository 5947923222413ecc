package store

import (
	"path/filepath"
	"testing"

	"mercatoria.dev/core/ledgercrypto"
	"mercatoria.dev/core/ledgererr"
)

func TestMemStorePutLookupRoundTrip(t *testing.T) {
	s := NewMemStore()
	code, err := s.PutBytes([]byte("hello"))
	if err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	got, err := s.LookupBytes(code)
	if err != nil {
		t.Fatalf("LookupBytes: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("LookupBytes = %q, want %q", got, "hello")
	}
}

func TestMemStorePutIdempotent(t *testing.T) {
	s := NewMemStore()
	c1, _ := s.PutBytes([]byte("x"))
	c2, _ := s.PutBytes([]byte("x"))
	if c1 != c2 {
		t.Fatalf("same bytes produced different codes")
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestMemStoreNotFound(t *testing.T) {
	s := NewMemStore()
	_, err := s.LookupBytes(ledgercrypto.HashBytes([]byte("missing")))
	if !ledgererr.Is(err, ledgererr.CodeNotFound) {
		t.Fatalf("expected CodeNotFound, got %v", err)
	}
}

func TestOverlayShadowsBase(t *testing.T) {
	base := NewMemStore()
	baseCode, _ := base.PutBytes([]byte("base-value"))

	overlay := NewOverlayStore(base)
	overlayCode, _ := overlay.PutBytes([]byte("overlay-value"))

	if got, err := overlay.LookupBytes(baseCode); err != nil || string(got) != "base-value" {
		t.Fatalf("overlay did not fall through to base: got=%q err=%v", got, err)
	}
	if got, err := overlay.LookupBytes(overlayCode); err != nil || string(got) != "overlay-value" {
		t.Fatalf("overlay did not serve its own writes: got=%q err=%v", got, err)
	}
	if _, err := base.LookupBytes(overlayCode); !ledgererr.Is(err, ledgererr.CodeNotFound) {
		t.Fatalf("overlay write leaked into base store")
	}
}

func TestOverlayDiscard(t *testing.T) {
	base := NewMemStore()
	overlay := NewOverlayStore(base)
	code, _ := overlay.PutBytes([]byte("staged"))
	overlay.Discard()
	if _, err := overlay.LookupBytes(code); !ledgererr.Is(err, ledgererr.CodeNotFound) {
		t.Fatalf("Discard did not drop staged writes")
	}
}

func TestBoltStorePutLookupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBoltStore(filepath.Join(dir, "content.db"))
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	defer s.Close()

	code, err := s.PutBytes([]byte("quorum-node-bytes"))
	if err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	got, err := s.LookupBytes(code)
	if err != nil {
		t.Fatalf("LookupBytes: %v", err)
	}
	if string(got) != "quorum-node-bytes" {
		t.Fatalf("LookupBytes = %q, want %q", got, "quorum-node-bytes")
	}
}

func TestBoltStoreNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBoltStore(filepath.Join(dir, "content.db"))
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	defer s.Close()

	_, err = s.LookupBytes(ledgercrypto.HashBytes([]byte("nope")))
	if !ledgererr.Is(err, ledgererr.CodeNotFound) {
		t.Fatalf("expected CodeNotFound, got %v", err)
	}
}
