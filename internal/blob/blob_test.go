package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	if store.Driver() != DriverMemory {
		t.Fatalf("driver = %q", store.Driver())
	}

	info, err := store.Put(ctx, "exports/orders/a.json", strings.NewReader(`{"x":1}`), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"rows": "1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 7 || info.ContentType != "application/json" {
		t.Fatalf("info = %+v", info)
	}

	// Create-only: a second put on the same key fails.
	if _, err := store.Put(ctx, "exports/orders/a.json", strings.NewReader("x"), PutOptions{}); err == nil {
		t.Fatal("overwrite accepted")
	}

	got, rc, err := store.Get(ctx, "exports/orders/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != `{"x":1}` || got.Metadata["rows"] != "1" {
		t.Fatalf("body = %q, info = %+v", body, got)
	}

	if _, err := store.Put(ctx, "exports/batches/b.csv", strings.NewReader("id\n"), PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	infos, err := store.List(ctx, "exports/orders/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 || infos[0].Key != "exports/orders/a.json" {
		t.Fatalf("list = %+v", infos)
	}

	if _, err := store.PresignURL(ctx, "exports/orders/a.json", SignedURLOptions{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("presign err = %v", err)
	}

	existed, err := store.Delete(ctx, "exports/orders/a.json")
	if err != nil || !existed {
		t.Fatalf("delete = %v %v", existed, err)
	}
	existed, err = store.Delete(ctx, "exports/orders/a.json")
	if err != nil || existed {
		t.Fatalf("second delete = %v %v", existed, err)
	}
	if _, err := store.Head(ctx, "exports/orders/a.json"); err == nil {
		t.Fatal("head after delete succeeded")
	}
}

func TestFilesystemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("driver = %q", store.Driver())
	}

	info, err := store.Put(ctx, "exports/orders/a.csv", strings.NewReader("id,status\nO1,pending\n"), PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"report": "orders"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.ETag == "" {
		t.Fatal("etag not computed")
	}
	if info.URL != "http://local.blob/exports/orders/a.csv" {
		t.Fatalf("url = %q", info.URL)
	}

	if _, err := store.Put(ctx, "exports/orders/a.csv", strings.NewReader("x"), PutOptions{}); err == nil {
		t.Fatal("overwrite accepted")
	}

	head, err := store.Head(ctx, "exports/orders/a.csv")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.ETag != info.ETag || head.Metadata["report"] != "orders" {
		t.Fatalf("head = %+v", head)
	}

	got, rc, err := store.Get(ctx, "exports/orders/a.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "id,status\nO1,pending\n" || got.ContentType != "text/csv" {
		t.Fatalf("body = %q, info = %+v", body, got)
	}

	infos, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 || infos[0].Key != "exports/orders/a.csv" {
		t.Fatalf("list = %+v", infos)
	}

	url, err := store.PresignURL(ctx, "exports/orders/a.csv", SignedURLOptions{Method: "GET"})
	if err != nil || url == "" {
		t.Fatalf("presign = %q %v", url, err)
	}
	if _, err := store.PresignURL(ctx, "exports/orders/a.csv", SignedURLOptions{Method: "PUT"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("presign put err = %v", err)
	}

	existed, err := store.Delete(ctx, "exports/orders/a.csv")
	if err != nil || !existed {
		t.Fatalf("delete = %v %v", existed, err)
	}
	infos, err = store.List(ctx, "")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("sidecar left behind: %+v", infos)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "  ", "../secret", "a/../../b", "/abs/path"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("key %q accepted", key)
		}
	}
	clean, err := sanitizeKey("exports/./orders/a.json")
	if err != nil {
		t.Fatalf("clean key rejected: %v", err)
	}
	if clean != "exports/orders/a.json" {
		t.Fatalf("clean = %q", clean)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	t.Setenv("AGRICHAIN_BLOB_DRIVER", "memory")
	store, err := Open(ctx)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("driver = %q", store.Driver())
	}

	t.Setenv("AGRICHAIN_BLOB_DRIVER", "fs")
	t.Setenv("AGRICHAIN_BLOB_FS_ROOT", t.TempDir())
	store, err = Open(ctx)
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("driver = %q", store.Driver())
	}

	t.Setenv("AGRICHAIN_BLOB_DRIVER", "bogus")
	if _, err := Open(ctx); err == nil {
		t.Fatal("unknown driver accepted")
	}
}
