package memory

import (
	"bytes"
	"context"
	"io"
	"testing"

	"ensemblestore/internal/blob/core"
)

func TestPutGetDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New()
	info, err := store.Put(ctx, "k1", bytes.NewReader([]byte("payload")), core.PutOptions{ContentType: "application/octet-stream"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 7 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "k1", bytes.NewReader([]byte("other")), core.PutOptions{}); err == nil {
		t.Fatal("expected create-only conflict")
	}
	_, rc, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "payload" {
		t.Fatalf("expected payload, got %q", data)
	}
	deleted, err := store.Delete(ctx, "k1")
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	if _, _, err := store.Get(ctx, "k1"); err == nil {
		t.Fatal("expected get to fail after delete")
	}
}

func TestListByPrefix(t *testing.T) {
	ctx := context.Background()
	store := New()
	for _, key := range []string{"ens1/0/a", "ens1/1/a", "ens2/0/a"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "ens1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 keys under ens1/, got %d", len(list))
	}
	if list[0].Key != "ens1/0/a" || list[1].Key != "ens1/1/a" {
		t.Fatalf("expected sorted keys, got %+v", list)
	}
}

func TestMultipartOutOfOrderStaging(t *testing.T) {
	ctx := context.Background()
	store := New()
	uploadID, err := store.CreateMultipart(ctx, "blob", core.PutOptions{})
	if err != nil {
		t.Fatalf("create multipart: %v", err)
	}
	var parts []core.Part
	for _, chunk := range []struct {
		number  int32
		content string
	}{{3, "c"}, {1, "a"}, {2, "b"}} {
		part, err := store.StageChunk(ctx, "blob", uploadID, chunk.number, []byte(chunk.content))
		if err != nil {
			t.Fatalf("stage: %v", err)
		}
		parts = append(parts, part)
	}
	info, err := store.CompleteMultipart(ctx, "blob", uploadID, parts)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if info.Size != 3 {
		t.Fatalf("unexpected size %d", info.Size)
	}
	_, rc, err := store.Get(ctx, "blob")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "abc" {
		t.Fatalf("expected %q, got %q", "abc", data)
	}
	// upload handle is spent
	if _, err := store.CompleteMultipart(ctx, "blob2", uploadID, parts); err == nil {
		t.Fatal("expected completing a spent upload to fail")
	}
}

func TestAbortMultipartDiscardsUpload(t *testing.T) {
	ctx := context.Background()
	store := New()
	uploadID, err := store.CreateMultipart(ctx, "blob", core.PutOptions{})
	if err != nil {
		t.Fatalf("create multipart: %v", err)
	}
	part, err := store.StageChunk(ctx, "blob", uploadID, 1, []byte("a"))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := store.AbortMultipart(ctx, "blob", uploadID); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if _, err := store.StageChunk(ctx, "blob", uploadID, 2, []byte("b")); err == nil {
		t.Fatal("expected staging into an aborted upload to fail")
	}
	if _, err := store.CompleteMultipart(ctx, "blob", uploadID, []core.Part{part}); err == nil {
		t.Fatal("expected completing an aborted upload to fail")
	}
	if err := store.AbortMultipart(ctx, "blob", "missing"); err != nil {
		t.Fatalf("abort unknown upload: %v", err)
	}
}

func TestStageChunkUnknownUpload(t *testing.T) {
	store := New()
	if _, err := store.StageChunk(context.Background(), "blob", "missing", 1, []byte("x")); err == nil {
		t.Fatal("expected unknown upload error")
	}
}
