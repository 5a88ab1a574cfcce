package blob

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// ErrTooLarge is returned when a reader yields more bytes than declared.
var ErrTooLarge = errors.New("payload exceeds declared size")

// Staging owns the binary payloads backing file items for one session.
// Each handle is owned by exactly one item; Release frees it exactly once.
type Staging struct {
	mu    sync.Mutex
	blobs map[string][]byte
	used  int64
}

func NewStaging() *Staging {
	return &Staging{blobs: make(map[string][]byte)}
}

// Stage reads the full payload and returns a fresh handle. Staging is
// atomic: if the reader fails or yields more than declaredSize bytes,
// nothing is retained.
func (s *Staging) Stage(r io.Reader, declaredSize int64) (string, int64, error) {
	if declaredSize < 0 {
		return "", 0, errors.New("negative declared size")
	}

	data, err := io.ReadAll(io.LimitReader(r, declaredSize+1))
	if err != nil {
		return "", 0, err
	}
	if int64(len(data)) > declaredSize {
		return "", 0, ErrTooLarge
	}

	handle := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[handle] = data
	s.used += int64(len(data))
	return handle, int64(len(data)), nil
}

func (s *Staging) Bytes(handle string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.blobs[handle]
	return data, ok
}

// Release frees the storage behind handle. Releasing an unknown or
// already-released handle is a programming error and fails loudly.
func (s *Staging) Release(handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.blobs[handle]
	if !ok {
		return fmt.Errorf("release of unknown blob handle %q", handle)
	}
	delete(s.blobs, handle)
	s.used -= int64(len(data))
	return nil
}

// ReleaseAll frees every staged blob. Idempotent: the session-teardown
// path may reach it from more than one direction.
func (s *Staging) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs = make(map[string][]byte)
	s.used = 0
}

// Used reports the live byte total across staged blobs.
func (s *Staging) Used() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

func (s *Staging) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
