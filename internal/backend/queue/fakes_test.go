package queue_test

import (
	"context"
	"errors"
	"sync"

	"github.com/jo-hoe/sicoem/internal/backend/docstore"
	"github.com/jo-hoe/sicoem/internal/backend/queue"
)

var (
	errNetwork = errors.New("dial tcp: connection refused")
	errRemove  = errors.New("database is locked")
)

// flakyStore fails RemoveTask for the ids in failRemove.
type flakyStore struct {
	queue.PendingStore
	failRemove map[string]bool
}

func (s *flakyStore) RemoveTask(ctx context.Context, id string) error {
	if s.failRemove[id] {
		return errRemove
	}
	return s.PendingStore.RemoveTask(ctx, id)
}

// fakeRemote records uploads and fails while failing is set.
type fakeRemote struct {
	mu       sync.Mutex
	failing  bool
	listErr  error
	uploads  []docstore.UploadRequest
	attempts int
	listing  []docstore.RemoteFile
}

func (f *fakeRemote) Upload(_ context.Context, req docstore.UploadRequest) (*docstore.UploadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failing {
		return nil, errNetwork
	}
	f.uploads = append(f.uploads, req)
	return &docstore.UploadResponse{Success: true, FileID: "drive-" + req.FileName}, nil
}

func (f *fakeRemote) List(_ context.Context, _ string) ([]docstore.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listing, nil
}

func (f *fakeRemote) setFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

func (f *fakeRemote) uploaded() []docstore.UploadRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]docstore.UploadRequest(nil), f.uploads...)
}
