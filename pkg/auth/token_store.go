// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	msalcache "github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
)

// The store key for the current user's token set. The cached data contains
// all tokens across tenants, so a single key suffices; for historical
// purposes (and to keep the backing file name stable) we use empty string.
const cTokenSetKey = ""

// Cache persists opaque blobs by key.
type Cache interface {
	Read(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

var errCacheKeyNotFound = errors.New("key not found")

// StorePhase is the lifecycle phase of a TokenStore.
type StorePhase int32

const (
	// StoreBuffering is the initial phase: writes are queued and served back
	// to readers, but nothing reaches the backing cache. Consumers holding
	// lazily-constructed credentials can issue cache operations before the
	// session set is settled and still observe a consistent view.
	StoreBuffering StorePhase = iota

	// StoreLive is the settled phase: operations go straight through to the
	// in-memory map and the backing cache.
	StoreLive
)

type queuedWrite struct {
	key   string
	value []byte
}

// TokenStore is the in-memory credential cache shared by every session
// credential. It implements the MSAL export/replace cache contract
// ([msalcache.ExportReplace]) so token consumers snapshot and publish their
// serialized token state through it.
//
// A store starts out buffering; Activate flushes the queued writes (in
// issue order) into the live map and the backing cache.
type TokenStore struct {
	mu     sync.Mutex
	phase  StorePhase
	queued []queuedWrite
	live   map[string][]byte
	inner  Cache // optional
}

// NewTokenStore creates a buffering store. inner may be nil for a purely
// in-memory store.
func NewTokenStore(inner Cache) *TokenStore {
	return &TokenStore{
		phase: StoreBuffering,
		live:  map[string][]byte{},
		inner: inner,
	}
}

// Phase returns the current lifecycle phase.
func (s *TokenStore) Phase() StorePhase {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.phase
}

// Replace populates cache with the stored token state for the current user.
// While buffering, the most recent queued write wins over the live map so
// readers observe their own writes.
func (s *TokenStore) Replace(ctx context.Context, cache msalcache.Unmarshaler, _ msalcache.ReplaceHints) error {
	s.mu.Lock()
	val, found := s.lookupLocked(cTokenSetKey)
	s.mu.Unlock()

	if found {
		if err := cache.Unmarshal(val); err != nil {
			return fmt.Errorf("failed to unmarshal value into cache: %w", err)
		}
		return nil
	}

	if s.inner != nil {
		val, err := s.inner.Read(cTokenSetKey)
		if errors.Is(err, errCacheKeyNotFound) {
			return nil
		} else if err != nil {
			return err
		}

		s.mu.Lock()
		s.live[cTokenSetKey] = val
		s.mu.Unlock()

		return cache.Unmarshal(val)
	}

	return nil
}

// Export stores cache's serialized token state. While buffering the write is
// queued; once live, unchanged contents are not re-written to the backing
// cache.
func (s *TokenStore) Export(ctx context.Context, cache msalcache.Marshaler, _ msalcache.ExportHints) error {
	val, err := cache.Marshal()
	if err != nil {
		return fmt.Errorf("error marshaling token state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == StoreBuffering {
		s.queued = append(s.queued, queuedWrite{key: cTokenSetKey, value: val})
		return nil
	}

	return s.writeLocked(cTokenSetKey, val)
}

// Activate flips the store from buffering to live, replaying queued writes
// in issue order.
func (s *TokenStore) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == StoreLive {
		return nil
	}

	for _, write := range s.queued {
		if err := s.writeLocked(write.key, write.value); err != nil {
			return fmt.Errorf("replaying buffered write: %w", err)
		}
	}

	s.queued = nil
	s.phase = StoreLive
	return nil
}

// Clear drops all queued and live state, removes the backing cache entry
// and returns the store to the buffering phase.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queued = nil
	s.live = map[string][]byte{}
	s.phase = StoreBuffering

	if s.inner != nil {
		if err := s.inner.Delete(cTokenSetKey); err != nil && !errors.Is(err, errCacheKeyNotFound) {
			return fmt.Errorf("clearing backing cache: %w", err)
		}
	}

	return nil
}

func (s *TokenStore) lookupLocked(key string) ([]byte, bool) {
	if s.phase == StoreBuffering {
		for i := len(s.queued) - 1; i >= 0; i-- {
			if s.queued[i].key == key {
				return s.queued[i].value, true
			}
		}
	}

	val, has := s.live[key]
	return val, has
}

func (s *TokenStore) writeLocked(key string, val []byte) error {
	if old, has := s.live[key]; has && string(old) == string(val) {
		// no change, nothing more to do.
		return nil
	}

	s.live[key] = val
	if s.inner != nil {
		return s.inner.Set(key, val)
	}

	return nil
}
