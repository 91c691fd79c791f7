package fs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"ensemblestore/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestPutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	info, err := store.Put(ctx, "ens1/0/coeffs", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "text/plain", Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "ens1/0/coeffs" || info.Size != 5 {
		t.Fatalf("unexpected info %+v", info)
	}
	// create-only
	if _, err := store.Put(ctx, "ens1/0/coeffs", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatal("expected duplicate failure")
	}
	head, err := store.Head(ctx, "ens1/0/coeffs")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.ETag == "" || head.ContentType != "text/plain" {
		t.Fatalf("unexpected head %+v", head)
	}
	got, rc, err := store.Get(ctx, "ens1/0/coeffs")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(data) != "hello" || got.ETag != head.ETag {
		t.Fatalf("unexpected get result %q %+v", data, got)
	}
	list, err := store.List(ctx, "ens1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "ens1/0/coeffs" {
		t.Fatalf("unexpected list %+v", list)
	}
	deleted, err := store.Delete(ctx, "ens1/0/coeffs")
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	if _, err := store.Head(ctx, "ens1/0/coeffs"); err == nil {
		t.Fatal("expected head to fail after delete")
	}
	deleted, err = store.Delete(ctx, "ens1/0/coeffs")
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if deleted {
		t.Fatal("second delete should report missing")
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"../escape", "a/../../b", "/abs"} {
		if _, err := store.Put(ctx, key, bytes.NewReader(nil), core.PutOptions{}); err == nil {
			t.Fatalf("expected rejection for key %q", key)
		}
	}
}

func TestMultipartAssemblesInPartOrder(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	uploadID, err := store.CreateMultipart(ctx, "ens1/blob", core.PutOptions{ContentType: "application/octet-stream"})
	if err != nil {
		t.Fatalf("create multipart: %v", err)
	}
	// staged out of order
	var parts []core.Part
	for _, chunk := range []struct {
		number  int32
		content string
	}{{2, "b"}, {1, "a"}, {3, "c"}} {
		part, err := store.StageChunk(ctx, "ens1/blob", uploadID, chunk.number, []byte(chunk.content))
		if err != nil {
			t.Fatalf("stage chunk %d: %v", chunk.number, err)
		}
		parts = append(parts, part)
	}
	info, err := store.CompleteMultipart(ctx, "ens1/blob", uploadID, parts)
	if err != nil {
		t.Fatalf("complete multipart: %v", err)
	}
	if info.Size != 3 {
		t.Fatalf("unexpected size %d", info.Size)
	}
	_, rc, err := store.Get(ctx, "ens1/blob")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "abc" {
		t.Fatalf("expected %q, got %q", "abc", data)
	}
	// staging dir cleaned up
	if _, err := os.Stat(filepath.Join(store.root, ".multipart", uploadID)); !os.IsNotExist(err) {
		t.Fatalf("expected staging dir removed, got %v", err)
	}
}

func TestAbortMultipartDiscardsStagedParts(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	uploadID, err := store.CreateMultipart(ctx, "ens1/blob", core.PutOptions{})
	if err != nil {
		t.Fatalf("create multipart: %v", err)
	}
	part, err := store.StageChunk(ctx, "ens1/blob", uploadID, 1, []byte("a"))
	if err != nil {
		t.Fatalf("stage chunk: %v", err)
	}
	if err := store.AbortMultipart(ctx, "ens1/blob", uploadID); err != nil {
		t.Fatalf("abort multipart: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.root, ".multipart", uploadID)); !os.IsNotExist(err) {
		t.Fatalf("expected staging dir removed, got %v", err)
	}
	if _, err := store.CompleteMultipart(ctx, "ens1/blob", uploadID, []core.Part{part}); err == nil {
		t.Fatal("expected completing an aborted upload to fail")
	}
	// aborting an unknown upload is a no-op
	if err := store.AbortMultipart(ctx, "ens1/blob", "missing"); err != nil {
		t.Fatalf("abort unknown upload: %v", err)
	}
}

func TestListSkipsStagedUploads(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.CreateMultipart(ctx, "pending", core.PutOptions{}); err != nil {
		t.Fatalf("create multipart: %v", err)
	}
	list, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected staged upload hidden from list, got %+v", list)
	}
}
