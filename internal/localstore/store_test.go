package localstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveTokens("access", "refresh"); err != nil {
		t.Fatal(err)
	}

	// Reopen: tokens survive the process.
	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	access, refresh, err := s2.LoadTokens()
	if err != nil {
		t.Fatal(err)
	}
	if access != "access" || refresh != "refresh" {
		t.Fatalf("tokens = %q/%q", access, refresh)
	}

	if err := s2.ClearTokens(); err != nil {
		t.Fatal(err)
	}
	access, refresh, _ = s2.LoadTokens()
	if access != "" || refresh != "" {
		t.Fatal("tokens not cleared")
	}
}

func TestMissingFileIsEmptyStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nested", "store.json"))
	if err != nil {
		t.Fatal(err)
	}
	access, refresh, err := s.LoadTokens()
	if err != nil || access != "" || refresh != "" {
		t.Fatalf("got %q/%q err=%v", access, refresh, err)
	}
}

func TestCorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("corrupt file must not fail open: %v", err)
	}
	if err := s.SaveTokens("a", "r"); err != nil {
		t.Fatal(err)
	}
}

func TestSettings(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting("lang", "ar"); err != nil {
		t.Fatal(err)
	}
	if v, ok := s.Setting("lang"); !ok || v != "ar" {
		t.Fatalf("got %q/%v", v, ok)
	}
	if _, ok := s.Setting("missing"); ok {
		t.Fatal("missing key reported present")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error")
	}
}
