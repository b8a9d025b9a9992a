package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func newTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "artifacts.db"))
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStore_PutGetOverwrite(t *testing.T) {
	s := newTestBoltStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "receipt_a.csv", []byte("v1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put(ctx, "receipt_a.csv", []byte("v2")); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}

	got, err := s.Get(ctx, "receipt_a.csv")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("Get() = %q, want v2", got)
	}
}

func TestBoltStore_ListSorted(t *testing.T) {
	s := newTestBoltStore(t)
	ctx := context.Background()

	for _, name := range []string{"receipt_c.csv", "receipt_a.csv", "receipt_b.csv"} {
		if err := s.Put(ctx, name, []byte(name)); err != nil {
			t.Fatalf("Put(%q) error = %v", name, err)
		}
	}

	names, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"receipt_a.csv", "receipt_b.csv", "receipt_c.csv"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("List() = %v, want %v", names, want)
	}
}

func TestBoltStore_NotFound(t *testing.T) {
	s := newTestBoltStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing.csv"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "missing.csv"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestBoltStore_Delete(t *testing.T) {
	s := newTestBoltStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "receipt_a.csv", []byte("x")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Delete(ctx, "receipt_a.csv"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	names, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 0 {
		t.Errorf("List() after delete = %v, want empty", names)
	}
}

