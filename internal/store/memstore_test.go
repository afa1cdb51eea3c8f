package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestMemStoreCreateAndGet(t *testing.T) {
	s := NewMemStore()

	id, err := s.Create(Email{
		Sender:     "a@x",
		Recipients: []string{"b@y"},
		Subject:    "hi",
		Body:       "hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatalf("expected non-empty id")
	}

	e, ok := s.Get(id)
	if !ok {
		t.Fatalf("expected to find email %q", id)
	}

	want := Email{
		ID:         id,
		Sender:     "a@x",
		Recipients: []string{"b@y"},
		Subject:    "hi",
		Body:       "hello",
		Status:     StatusReceived,
	}
	if diff := cmp.Diff(want, e, cmpopts.IgnoreFields(Email{}, "ReceivedAt")); diff != "" {
		t.Errorf("Get(%q) mismatch (-want +got):\n%s", id, diff)
	}
}

func TestMemStoreListOrder(t *testing.T) {
	s := NewMemStore()
	id1, _ := s.Create(Email{Sender: "first"})
	id2, _ := s.Create(Email{Sender: "second"})

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(list))
	}
	if list[0].ID != id2 || list[1].ID != id1 {
		t.Errorf("expected newest-first order, got %+v", list)
	}
}

func TestMemStoreDistinctIDs(t *testing.T) {
	s := NewMemStore()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := s.Create(Email{Sender: "a"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestMemStoreMarkRead(t *testing.T) {
	s := NewMemStore()
	id, _ := s.Create(Email{Sender: "a"})

	if err := s.MarkRead(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e, _ := s.Get(id)
	if e.Status != StatusRead {
		t.Errorf("status = %q, want %q", e.Status, StatusRead)
	}

	if err := s.MarkRead("nonexistent"); err == nil {
		t.Errorf("expected error marking nonexistent email read")
	}
}

func TestMemStoreDeleteAll(t *testing.T) {
	s := NewMemStore()
	s.Create(Email{Sender: "a"})
	s.Create(Email{Sender: "b"})

	if err := s.DeleteAll(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("expected 0 emails after DeleteAll, got %d", s.Count())
	}
}
