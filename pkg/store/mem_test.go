package store

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestMemStore_SaveAndLoad(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.Save(ctx, "a", []byte(`{"id":"a"}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, "a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != `{"id":"a"}` {
		t.Fatalf("Load = %q", got)
	}
}

func TestMemStore_LoadMissing(t *testing.T) {
	s := NewMemStore()

	_, err := s.Load(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_Delete(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.Save(ctx, "a", []byte("x")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after Delete err = %v, want ErrNotFound", err)
	}

	// Deleting an absent record is not an error.
	if err := s.Delete(ctx, "ghost"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestMemStore_List(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Save(ctx, id, []byte(id)); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	slices.Sort(ids)
	if !slices.Equal(ids, []string{"a", "b", "c"}) {
		t.Fatalf("List = %v", ids)
	}
}

func TestMemStore_DefensiveCopies(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	in := []byte("original")
	if err := s.Save(ctx, "a", in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	in[0] = 'X'

	got, err := s.Load(ctx, "a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != "original" {
		t.Fatalf("stored record mutated through caller slice: %q", got)
	}

	got[0] = 'Y'
	again, _ := s.Load(ctx, "a")
	if string(again) != "original" {
		t.Fatalf("stored record mutated through returned slice: %q", again)
	}
}
