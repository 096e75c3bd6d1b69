package memory

import (
	"errors"
	"testing"

	"github.com/tgrimes/keygate/storage"
)

func TestMemoryRepository(t *testing.T) {
	r := NewRepository()

	t.Run("PutGet", func(t *testing.T) {
		if err := r.Put("sessions", "SESSION", "api/42", []byte(`{"user":42}`)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := r.Get("sessions", "SESSION", "api/42")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `{"user":42}` {
			t.Errorf("got %s", got)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := r.Get("sessions", "SESSION", "nope")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		r.Put("sessions", "SESSION", "api/42", []byte("v1"))
		r.Put("sessions", "SESSION", "api/42", []byte("v2"))
		got, _ := r.Get("sessions", "SESSION", "api/42")
		if string(got) != "v2" {
			t.Errorf("got %s, want v2", got)
		}
	})

	t.Run("DeleteAndMissingDelete", func(t *testing.T) {
		r.Put("sessions", "SESSION", "gone", []byte("x"))
		if err := r.Delete("sessions", "SESSION", "gone"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := r.Delete("sessions", "SESSION", "gone"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("ListByKind", func(t *testing.T) {
		r.Put("sessions", "FLAG", "sweep", []byte("1"))
		keys, err := r.List("sessions", "FLAG")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(keys) != 1 || keys[0] != "sweep" {
			t.Errorf("got %v", keys)
		}
	})

	t.Run("ValueIsolation", func(t *testing.T) {
		v := []byte("mutable")
		r.Put("sessions", "SESSION", "iso", v)
		v[0] = 'X'
		got, _ := r.Get("sessions", "SESSION", "iso")
		if string(got) != "mutable" {
			t.Errorf("stored value aliased caller slice: %s", got)
		}
	})
}
