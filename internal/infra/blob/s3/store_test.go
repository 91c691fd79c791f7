package s3

import (
	"bytes"
	"context"
	"io"
	"testing"

	"ensemblestore/internal/blob/core"
)

func TestMockPutGetHeadDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	info, err := store.Put(ctx, "ens1/0/coeffs", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "ens1/0/coeffs" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "ens1/0/coeffs", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatal("expected create-only conflict")
	}
	head, err := store.Head(ctx, "ens1/0/coeffs")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Size != 5 {
		t.Fatalf("unexpected head size %d", head.Size)
	}
	_, rc, err := store.Get(ctx, "ens1/0/coeffs")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", data)
	}
	deleted, err := store.Delete(ctx, "ens1/0/coeffs")
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	if _, err := store.Head(ctx, "ens1/0/coeffs"); err == nil {
		t.Fatal("expected head to fail after delete")
	}
}

func TestMockList(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	for _, key := range []string{"ens1/a", "ens1/b", "ens2/a"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "ens1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 keys, got %+v", list)
	}
}

func TestMockMultipartRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	uploadID, err := store.CreateMultipart(ctx, "big/blob", core.PutOptions{ContentType: "application/octet-stream"})
	if err != nil {
		t.Fatalf("create multipart: %v", err)
	}
	if uploadID == "" {
		t.Fatal("expected upload id")
	}
	var parts []core.Part
	for _, chunk := range []struct {
		number  int32
		content string
	}{{2, "world"}, {1, "hello "}} {
		part, err := store.StageChunk(ctx, "big/blob", uploadID, chunk.number, []byte(chunk.content))
		if err != nil {
			t.Fatalf("stage chunk %d: %v", chunk.number, err)
		}
		if part.ID == "" {
			t.Fatalf("expected part etag for chunk %d", chunk.number)
		}
		parts = append(parts, part)
	}
	if _, err := store.CompleteMultipart(ctx, "big/blob", uploadID, parts); err != nil {
		t.Fatalf("complete multipart: %v", err)
	}
	_, rc, err := store.Get(ctx, "big/blob")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello world" {
		t.Fatalf("expected assembled content, got %q", data)
	}
}

func TestMockAbortMultipart(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	uploadID, err := store.CreateMultipart(ctx, "big/blob", core.PutOptions{})
	if err != nil {
		t.Fatalf("create multipart: %v", err)
	}
	part, err := store.StageChunk(ctx, "big/blob", uploadID, 1, []byte("hello"))
	if err != nil {
		t.Fatalf("stage chunk: %v", err)
	}
	if err := store.AbortMultipart(ctx, "big/blob", uploadID); err != nil {
		t.Fatalf("abort multipart: %v", err)
	}
	if _, err := store.CompleteMultipart(ctx, "big/blob", uploadID, []core.Part{part}); err == nil {
		t.Fatal("expected completing an aborted upload to fail")
	}
	if _, err := store.Head(ctx, "big/blob"); err == nil {
		t.Fatal("expected no object after abort")
	}
}
