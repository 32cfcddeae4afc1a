// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/azure/azure-account/pkg/osutil"
)

// ErrCredentialNotFound indicates no credential blob is stored for the
// requested environment.
var ErrCredentialNotFound = errors.New("no stored credential")

// CredentialStore persists one opaque credential blob per environment name.
// The blob is whatever the login flow chose to store (a refresh token, or a
// structured redirect-flow credential); the store does not interpret it.
type CredentialStore interface {
	Get(environmentName string) ([]byte, error)
	Put(environmentName string, blob []byte) error
	Delete(environmentName string) error

	// Migrate moves the blob stored under a legacy environment name to the
	// current name. A blob already present under the current name wins.
	Migrate(legacyName, environmentName string) error
}

// invalidKeyChars matches characters that may not appear in a credential
// file name.
var invalidKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

type fileCredentialStore struct {
	cache *fileCache
}

// NewFileCredentialStore creates a credential store rooted at
// <configDir>/auth. The directory is created with owner-only permissions.
func NewFileCredentialStore(configDir string) (CredentialStore, error) {
	root := filepath.Join(configDir, "auth")
	if err := os.MkdirAll(root, osutil.PermissionDirectoryOwnerOnly); err != nil {
		return nil, fmt.Errorf("creating credential store root: %w", err)
	}

	return &fileCredentialStore{
		cache: &fileCache{
			prefix: "credential-",
			root:   root,
			ext:    "bin",
		},
	}, nil
}

func (s *fileCredentialStore) Get(environmentName string) ([]byte, error) {
	blob, err := s.cache.Read(keyForEnvironment(environmentName))
	if errors.Is(err, errCacheKeyNotFound) {
		return nil, ErrCredentialNotFound
	}

	return blob, err
}

func (s *fileCredentialStore) Put(environmentName string, blob []byte) error {
	return s.cache.Set(keyForEnvironment(environmentName), blob)
}

func (s *fileCredentialStore) Delete(environmentName string) error {
	err := s.cache.Delete(keyForEnvironment(environmentName))
	if errors.Is(err, errCacheKeyNotFound) {
		return nil
	}

	return err
}

func (s *fileCredentialStore) Migrate(legacyName, environmentName string) error {
	if _, err := s.Get(environmentName); err == nil {
		return nil
	}

	blob, err := s.Get(legacyName)
	if errors.Is(err, ErrCredentialNotFound) {
		return nil
	} else if err != nil {
		return fmt.Errorf("reading legacy credential: %w", err)
	}

	if err := s.Put(environmentName, blob); err != nil {
		return fmt.Errorf("storing migrated credential: %w", err)
	}

	return s.Delete(legacyName)
}

func keyForEnvironment(environmentName string) string {
	return invalidKeyChars.ReplaceAllString(environmentName, "_")
}
