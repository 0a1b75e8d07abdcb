package credentials

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	stored, err := store.Create(ctx, &Credential{ID: "c1", UserID: "u1", AccessToken: "at"})
	if err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	if stored.CreatedAt.IsZero() || stored.UpdatedAt.IsZero() {
		t.Error("Create() should set timestamps")
	}

	got, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if got.AccessToken != "at" {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, "at")
	}
}

func TestMemoryStoreCreateDuplicate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, &Credential{ID: "c1", UserID: "u1"}); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	if _, err := store.Create(ctx, &Credential{ID: "c1", UserID: "u1"}); err == nil {
		t.Error("Create() with duplicate ID should return an error")
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreListByUser(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, cred := range []*Credential{
		{ID: "c1", UserID: "u1", Provider: "google"},
		{ID: "c2", UserID: "u1", Provider: "github"},
		{ID: "c3", UserID: "u2", Provider: "google"},
	} {
		if _, err := store.Create(ctx, cred); err != nil {
			t.Fatalf("Create(%s) unexpected error: %v", cred.ID, err)
		}
	}

	creds, err := store.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser() unexpected error: %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("ListByUser() returned %d credentials, want 2", len(creds))
	}
	if creds[0].ID != "c1" || creds[1].ID != "c2" {
		t.Errorf("ListByUser() order = [%s %s], want [c1 c2]", creds[0].ID, creds[1].ID)
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, err := store.Create(ctx, &Credential{ID: "c1", UserID: "u1", AccessToken: "old"})
	if err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	updated, err := store.Update(ctx, &Credential{ID: "c1", UserID: "u1", AccessToken: "new"})
	if err != nil {
		t.Fatalf("Update() unexpected error: %v", err)
	}
	if updated.AccessToken != "new" {
		t.Errorf("AccessToken = %q, want %q", updated.AccessToken, "new")
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("Update() must preserve CreatedAt")
	}
}

func TestMemoryStoreUpdateMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Update(context.Background(), &Credential{ID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, &Credential{ID: "c1", UserID: "u1"}); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	if err := store.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete() unexpected error: %v", err)
	}
	if _, err := store.Get(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete = %v, want ErrNotFound", err)
	}

	creds, err := store.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser() unexpected error: %v", err)
	}
	if len(creds) != 0 {
		t.Errorf("ListByUser() after delete returned %d credentials, want 0", len(creds))
	}
}

func TestMemoryStoreCreateBatchAtomic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, &Credential{ID: "c1", UserID: "u1"}); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	// c2 is new but c1 collides; nothing from the batch should land
	_, err := store.CreateBatch(ctx, []*Credential{
		{ID: "c2", UserID: "u1"},
		{ID: "c1", UserID: "u1"},
	})
	if err == nil {
		t.Fatal("CreateBatch() with colliding ID should return an error")
	}
	if store.Len() != 1 {
		t.Errorf("store has %d credentials after failed batch, want 1", store.Len())
	}
}

func TestMemoryStoreUpdateBatch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"c1", "c2"} {
		if _, err := store.Create(ctx, &Credential{ID: id, UserID: "u1", AccessToken: "old"}); err != nil {
			t.Fatalf("Create(%s) unexpected error: %v", id, err)
		}
	}

	updated, err := store.UpdateBatch(ctx, []*Credential{
		{ID: "c1", UserID: "u1", AccessToken: "new1"},
		{ID: "c2", UserID: "u1", AccessToken: "new2"},
	})
	if err != nil {
		t.Fatalf("UpdateBatch() unexpected error: %v", err)
	}
	if updated[0].AccessToken != "new1" || updated[1].AccessToken != "new2" {
		t.Error("UpdateBatch() did not apply all updates")
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, &Credential{ID: "c1", UserID: "u1", AccessToken: "at"}); err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	got, _ := store.Get(ctx, "c1")
	got.AccessToken = "mutated"

	again, _ := store.Get(ctx, "c1")
	if again.AccessToken != "at" {
		t.Error("mutating a returned credential must not affect the store")
	}
}
