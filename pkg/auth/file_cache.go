// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package auth

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/azure/azure-account/pkg/osutil"
	"github.com/gofrs/flock"
)

// fileCache implements Cache by storing the data to disk. The cache key is
// used as part of the filename for the stored object. Files are stored in
// [root] and are named [prefix][key].[ext]. A file lock guards each entry
// against concurrent processes.
//
// [root] is the root directory for the cache, and must be created beforehand.
type fileCache struct {
	prefix string
	root   string
	ext    string
}

// NewFileTokenCache returns a Cache that persists token state under
// <configDir>/auth, for use as a TokenStore backing cache.
func NewFileTokenCache(configDir string) (Cache, error) {
	root := filepath.Join(configDir, "auth")
	if err := os.MkdirAll(root, osutil.PermissionDirectoryOwnerOnly); err != nil {
		return nil, fmt.Errorf("creating token cache root: %w", err)
	}

	return &fileCache{
		prefix: "tokens",
		root:   root,
		ext:    "json",
	}, nil
}

func (c *fileCache) Read(key string) ([]byte, error) {
	cachePath := c.pathForCache(key)

	unlock, err := c.lock(key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	contents, err := os.ReadFile(cachePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errCacheKeyNotFound
	}

	return contents, err
}

func (c *fileCache) Set(key string, value []byte) error {
	cachePath := c.pathForCache(key)

	unlock, err := c.lock(key)
	if err != nil {
		return err
	}
	defer unlock()

	return os.WriteFile(cachePath, value, osutil.PermissionFileOwnerOnly)
}

func (c *fileCache) Delete(key string) error {
	cachePath := c.pathForCache(key)

	unlock, err := c.lock(key)
	if err != nil {
		return err
	}
	defer unlock()

	err = os.Remove(cachePath)
	if errors.Is(err, os.ErrNotExist) {
		return errCacheKeyNotFound
	}

	return err
}

func (c *fileCache) lock(key string) (func(), error) {
	lockPath := c.pathForLock(key)
	fl := flock.New(lockPath)

	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("locking file %s: %w", lockPath, err)
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			log.Printf("failed to release file lock: %v", err)
		}
	}, nil
}

func (c *fileCache) pathForCache(key string) string {
	return filepath.Join(c.root, fmt.Sprintf("%s%s.%s", c.prefix, key, c.ext))
}

func (c *fileCache) pathForLock(key string) string {
	return filepath.Join(c.root, fmt.Sprintf("%s%s.%s.lock", c.prefix, key, c.ext))
}
