// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileCredentialStore_RoundTrip(t *testing.T) {
	store, err := NewFileCredentialStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("AzureCloud")
	require.ErrorIs(t, err, ErrCredentialNotFound)

	require.NoError(t, store.Put("AzureCloud", []byte("refresh-token")))

	blob, err := store.Get("AzureCloud")
	require.NoError(t, err)
	require.Equal(t, []byte("refresh-token"), blob)

	require.NoError(t, store.Delete("AzureCloud"))
	_, err = store.Get("AzureCloud")
	require.ErrorIs(t, err, ErrCredentialNotFound)

	// Deleting an absent credential is not an error.
	require.NoError(t, store.Delete("AzureCloud"))
}

func TestFileCredentialStore_SanitizesEnvironmentNames(t *testing.T) {
	store, err := NewFileCredentialStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put("Some/Cloud Name", []byte("blob")))

	blob, err := store.Get("Some/Cloud Name")
	require.NoError(t, err)
	require.Equal(t, []byte("blob"), blob)
}

func TestFileCredentialStore_Migrate(t *testing.T) {
	t.Run("MovesLegacyBlob", func(t *testing.T) {
		store, err := NewFileCredentialStore(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, store.Put("Azure", []byte("legacy-token")))

		require.NoError(t, store.Migrate("Azure", "AzureCloud"))

		blob, err := store.Get("AzureCloud")
		require.NoError(t, err)
		require.Equal(t, []byte("legacy-token"), blob)

		_, err = store.Get("Azure")
		require.ErrorIs(t, err, ErrCredentialNotFound)
	})

	t.Run("CurrentNameWins", func(t *testing.T) {
		store, err := NewFileCredentialStore(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, store.Put("Azure", []byte("legacy-token")))
		require.NoError(t, store.Put("AzureCloud", []byte("current-token")))

		require.NoError(t, store.Migrate("Azure", "AzureCloud"))

		blob, err := store.Get("AzureCloud")
		require.NoError(t, err)
		require.Equal(t, []byte("current-token"), blob)
	})

	t.Run("NothingToMigrate", func(t *testing.T) {
		store, err := NewFileCredentialStore(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, store.Migrate("Azure", "AzureCloud"))

		_, err = store.Get("AzureCloud")
		require.ErrorIs(t, err, ErrCredentialNotFound)
	})
}
