package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"dupfinder/types"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("InitDatabase failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInitDatabaseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	for i := 0; i < 2; i++ {
		db, err := InitDatabase(path)
		if err != nil {
			t.Fatalf("InitDatabase #%d failed: %v", i+1, err)
		}
		db.Close()
	}
}

func TestHashCacheStoreAndLookup(t *testing.T) {
	ctx := context.Background()
	cache := NewHashCache(openTestDB(t))

	entry := types.CacheEntry{
		ImageID:        "/a.jpg",
		Path:           "/a.jpg",
		Digest:         "900150983cd24fb0d6963f7d28e17f72",
		PerceptualHash: "0101",
		Algorithm:      "dct",
		ModifiedAt:     1234,
		Size:           99,
	}
	if err := cache.Store(ctx, entry); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, ok, err := cache.Lookup(ctx, "/a.jpg")
	if err != nil || !ok {
		t.Fatalf("Lookup = %v, %v", ok, err)
	}
	if got.Digest != entry.Digest || got.PerceptualHash != entry.PerceptualHash || got.Algorithm != "dct" ||
		got.ModifiedAt != entry.ModifiedAt || got.Size != entry.Size {
		t.Errorf("Lookup returned %+v, want %+v", got, entry)
	}
	if got.CreatedAt == 0 {
		t.Error("CreatedAt not set")
	}

	if _, ok, err := cache.Lookup(ctx, "/missing.jpg"); ok || err != nil {
		t.Errorf("missing entry: ok=%v err=%v", ok, err)
	}

	// Overwrite keeps one row and drops the stale digest
	entry.Digest = ""
	entry.ModifiedAt = 5678
	if err := cache.Store(ctx, entry); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	got, _, _ = cache.Lookup(ctx, "/a.jpg")
	if got.Digest != "" || got.ModifiedAt != 5678 {
		t.Errorf("overwrite gave %+v", got)
	}
	if n, _ := cache.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestHashCacheLookupManyAcrossChunks(t *testing.T) {
	ctx := context.Background()
	cache := NewHashCache(openTestDB(t))

	const n = 2*lookupChunk + 17
	entries := make([]types.CacheEntry, n)
	ids := make([]string, 0, n+1)
	for i := range entries {
		id := fmt.Sprintf("/img/%05d.png", i)
		entries[i] = types.CacheEntry{ImageID: id, Path: id, Digest: fmt.Sprintf("d%d", i), ModifiedAt: int64(i), Size: int64(i)}
		ids = append(ids, id)
	}
	ids = append(ids, "/img/none.png")

	if err := cache.StoreMany(ctx, entries); err != nil {
		t.Fatalf("StoreMany failed: %v", err)
	}

	got, err := cache.LookupMany(ctx, ids)
	if err != nil {
		t.Fatalf("LookupMany failed: %v", err)
	}
	if len(got) != n {
		t.Fatalf("LookupMany returned %d entries, want %d", len(got), n)
	}
	if e := got["/img/01000.png"]; e.Digest != "d1000" || e.Size != 1000 {
		t.Errorf("entry 1000 = %+v", e)
	}
	if _, ok := got["/img/none.png"]; ok {
		t.Error("missing id present in result")
	}

	if err := cache.Delete(ctx, ids[:lookupChunk+1]...); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if c, _ := cache.Count(ctx); c != n-lookupChunk-1 {
		t.Errorf("Count after delete = %d, want %d", c, n-lookupChunk-1)
	}

	stats, err := GetCacheStats(cache.db)
	if err != nil {
		t.Fatalf("GetCacheStats failed: %v", err)
	}
	if stats.Entries != n-lookupChunk-1 || stats.WithPerceptualHash != 0 || stats.UniqueDigests != stats.Entries {
		t.Errorf("stats = %+v", stats)
	}
}

func TestTrashStore(t *testing.T) {
	ctx := context.Background()
	store := NewTrashStore(openTestDB(t))

	items := []types.TrashItem{
		{OriginalPath: "/p/a.jpg", TrashPath: "/t/1_a.jpg", Name: "a.jpg", Size: 10, MimeType: "image/jpeg", DeletedAt: 100, ExpiresAt: 200},
		{OriginalPath: "/p/b.jpg", TrashPath: "/t/2_b.jpg", Name: "b.jpg", Size: 32, DeletedAt: 150, ExpiresAt: 500},
	}
	var ids []int64
	for _, it := range items {
		id, err := store.Insert(ctx, it)
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		ids = append(ids, id)
	}

	list, err := store.List(ctx)
	if err != nil || len(list) != 2 || list[0].Name != "b.jpg" {
		t.Fatalf("List = %+v, %v", list, err)
	}

	expired, err := store.Expired(ctx, 300)
	if err != nil || len(expired) != 1 || expired[0].ID != ids[0] {
		t.Fatalf("Expired = %+v, %v", expired, err)
	}

	got, ok, err := store.Get(ctx, ids[0])
	if err != nil || !ok || got.MimeType != "image/jpeg" {
		t.Fatalf("Get = %+v %v %v", got, ok, err)
	}
	if _, ok, _ := store.Get(ctx, 9999); ok {
		t.Error("Get found a missing item")
	}

	if size, _ := store.TotalSize(ctx); size != 42 {
		t.Errorf("TotalSize = %d, want 42", size)
	}
	if err := store.Delete(ctx, ids...); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
	if size, _ := store.TotalSize(ctx); size != 0 {
		t.Errorf("TotalSize of empty trash = %d", size)
	}
}

func TestSettingsStore(t *testing.T) {
	ctx := context.Background()
	store := NewSettingsStore(openTestDB(t))

	if _, ok, err := store.Get(ctx, "threshold"); ok || err != nil {
		t.Fatalf("unset key: ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "threshold", "0.85"); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, "threshold", "0.8"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := store.Get(ctx, "threshold")
	if err != nil || !ok || v != "0.8" {
		t.Errorf("Get = %q %v %v", v, ok, err)
	}
	all, err := store.All(ctx)
	if err != nil || len(all) != 1 {
		t.Errorf("All = %v, %v", all, err)
	}
}
