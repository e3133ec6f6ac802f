// Package createguard serialises concurrent chat room creation for the same
// domain object so that the existing-room check and the insert are not
// interleaved between requests.
package createguard

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/example/chatrooms/internal/persistence"
)

// ErrBusy is returned when a lease could not be obtained before the
// context or wait timeout expired.
var ErrBusy = errors.New("createguard: creation already in progress")

// Guard hands out exclusive leases keyed by string.
type Guard interface {
	// Acquire blocks until the lease for key is held. The returned release
	// function must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Key derives the lease key for an object reference and tag set. Tags are
// normalised so the same set always yields the same key.
func Key(objectType, objectID string, tags []string) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(objectType)),
		strings.TrimSpace(objectID),
		strings.Join(persistence.NormalizeTags(tags), "\x1f"),
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x00")))
	return "chatrooms:create:" + hex.EncodeToString(sum[:16])
}

// Noop grants every lease immediately.
type Noop struct{}

// Acquire implements Guard.
func (Noop) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// Local serialises leases within one process.
type Local struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLocal creates an in-process guard.
func NewLocal() *Local {
	return &Local{locks: make(map[string]chan struct{})}
}

// Acquire implements Guard.
func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		held, busy := l.locks[key]
		if !busy {
			done := make(chan struct{})
			l.locks[key] = done
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.locks, key)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrBusy, ctx.Err())
		case <-held:
		}
	}
}
