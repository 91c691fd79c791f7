// Package memory implements an in-memory blob store used by tests and
// ephemeral deployments.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"ensemblestore/internal/blob/core"
)

var _ core.Store = (*Store)(nil)

type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
	etag        string
	modified    time.Time
}

type upload struct {
	key         string
	contentType string
	parts       map[int32][]byte
}

// Store keeps blobs and in-flight multipart uploads in maps under a mutex.
type Store struct {
	mu        sync.RWMutex
	objects   map[string]object
	uploads   map[string]*upload
	uploadSeq int
}

// New returns an empty in-memory blob store.
func New() *Store {
	return &Store{
		objects: make(map[string]object),
		uploads: make(map[string]*upload),
	}
}

func (s *Store) Driver() core.Driver { return core.DriverMemory }

func etagFor(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *Store) infoFor(key string, obj object) core.Info {
	return core.Info{
		Key:          key,
		Size:         int64(len(obj.data)),
		ContentType:  obj.contentType,
		ETag:         obj.etag,
		Metadata:     cloneMetadata(obj.metadata),
		LastModified: obj.modified,
	}
}

func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[key]; exists {
		return core.Info{}, fmt.Errorf("blob %s already exists", key)
	}
	obj := object{
		data:        data,
		contentType: opts.ContentType,
		metadata:    cloneMetadata(opts.Metadata),
		etag:        etagFor(data),
		modified:    time.Now().UTC(),
	}
	s.objects[key] = obj
	return s.infoFor(key, obj), nil
}

func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return core.Info{}, nil, fmt.Errorf("blob %s: %w", key, os.ErrNotExist)
	}
	return s.infoFor(key, obj), io.NopCloser(bytes.NewReader(append([]byte(nil), obj.data...))), nil
}

func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, os.ErrNotExist)
	}
	return s.infoFor(key, obj), nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var infos []core.Info
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, s.infoFor(key, obj))
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *Store) CreateMultipart(_ context.Context, key string, opts core.PutOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadSeq++
	uploadID := "upload-" + strconv.Itoa(s.uploadSeq)
	s.uploads[uploadID] = &upload{key: key, contentType: opts.ContentType, parts: make(map[int32][]byte)}
	return uploadID, nil
}

func (s *Store) StageChunk(_ context.Context, key, uploadID string, partNumber int32, content []byte) (core.Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[uploadID]
	if !ok || up.key != key {
		return core.Part{}, fmt.Errorf("multipart upload %s for %s not found", uploadID, key)
	}
	up.parts[partNumber] = append([]byte(nil), content...)
	return core.Part{Number: partNumber, ID: etagFor(content)}, nil
}

func (s *Store) CompleteMultipart(_ context.Context, key, uploadID string, parts []core.Part) (core.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.uploads[uploadID]
	if !ok || up.key != key {
		return core.Info{}, fmt.Errorf("multipart upload %s for %s not found", uploadID, key)
	}
	ordered := append([]core.Part(nil), parts...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })
	var data []byte
	for _, part := range ordered {
		content, ok := up.parts[part.Number]
		if !ok {
			return core.Info{}, fmt.Errorf("multipart upload %s missing part %d", uploadID, part.Number)
		}
		data = append(data, content...)
	}
	obj := object{
		data:        data,
		contentType: up.contentType,
		etag:        etagFor(data),
		modified:    time.Now().UTC(),
	}
	s.objects[key] = obj
	delete(s.uploads, uploadID)
	return s.infoFor(key, obj), nil
}

func (s *Store) AbortMultipart(_ context.Context, _ string, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, uploadID)
	return nil
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
