package memory

import (
	"context"
	"errors"
	"sync"

	"campkit/enrollment"
)

// Blobs keeps uploaded payment proofs in memory and hands out mem:// URLs.
type Blobs struct {
	mu    sync.RWMutex
	files map[string]enrollment.File
	fail  error
}

func NewBlobs() *Blobs { return &Blobs{files: map[string]enrollment.File{}} }

func (b *Blobs) Upload(_ context.Context, enrollmentID string, file enrollment.File) (string, error) {
	if enrollmentID == "" {
		return "", errors.New("enrollment id is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return "", b.fail
	}
	key := enrollment.ProofKey(enrollmentID, file.Name)
	cp := file
	cp.Data = append([]byte(nil), file.Data...)
	b.files[key] = cp
	return "mem://" + key, nil
}

// SetFail makes every Upload return err until cleared with nil.
func (b *Blobs) SetFail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

// Get returns a stored file by the URL Upload returned.
func (b *Blobs) Get(rawURL string) (enrollment.File, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	const prefix = "mem://"
	if len(rawURL) <= len(prefix) {
		return enrollment.File{}, false
	}
	f, ok := b.files[rawURL[len(prefix):]]
	return f, ok
}

var _ enrollment.BlobStore = (*Blobs)(nil)
