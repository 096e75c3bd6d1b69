package bbolt

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/tgrimes/keygate/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewRepositoryFromFile(filepath.Join(t.TempDir(), "keygate.db"), nil)
	if err != nil {
		t.Fatalf("opening bbolt store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBBoltRepository(t *testing.T) {
	s := newTestStore(t)

	t.Run("PutGetDelete", func(t *testing.T) {
		if err := s.Put("sessions", "SESSION", "api/42", []byte("payload")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get("sessions", "SESSION", "api/42")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "payload" {
			t.Errorf("got %s", got)
		}
		if err := s.Delete("sessions", "SESSION", "api/42"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Get("sessions", "SESSION", "api/42"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("MissingNamespace", func(t *testing.T) {
		if _, err := s.Get("nowhere", "SESSION", "x"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
		if err := s.Delete("nowhere", "SESSION", "x"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("ListPrefixIsolation", func(t *testing.T) {
		s.Put("sessions", "SESSION", "a", []byte("1"))
		s.Put("sessions", "SESSION", "b", []byte("2"))
		s.Put("sessions", "FLAG", "sweep", []byte("3"))

		keys, err := s.List("sessions", "SESSION")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(keys) != 2 {
			t.Fatalf("got %d keys, want 2: %v", len(keys), keys)
		}
		flags, _ := s.List("sessions", "FLAG")
		if len(flags) != 1 || flags[0] != "sweep" {
			t.Errorf("got %v", flags)
		}
	})
}
