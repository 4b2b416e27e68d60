package inmemory

import (
	"bytes"
	"context"
	"testing"
)

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	uri, err := s.Put(ctx, "uploads/u1/a1.pdf", []byte("%PDF-1.4"), "application/pdf")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if uri != "mem://uploads/u1/a1.pdf" {
		t.Errorf("uri = %q", uri)
	}

	data, err := s.Get(ctx, uri)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(data, []byte("%PDF-1.4")) {
		t.Errorf("Get() = %q", data)
	}

	if err := s.Delete(ctx, uri); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, uri); err == nil {
		t.Error("Get() after Delete expected error")
	}
	if err := s.Delete(ctx, uri); err != nil {
		t.Errorf("Delete() of missing object error = %v", err)
	}
}

func TestStore_InvalidURI(t *testing.T) {
	s := NewStore()
	if _, err := s.Get(context.Background(), "gs://bucket/key"); err == nil {
		t.Error("Get() with foreign scheme expected error")
	}
}
