// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package account

import (
	"context"
	"testing"
	"time"

	azpolicy "github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/azure/azure-account/pkg/auth"
	"github.com/azure/azure-account/pkg/cloud"
	"github.com/stretchr/testify/require"
)

func testEnvironment() cloud.Environment {
	return cloud.AzurePublic()
}

func testToken(user, tenant string) auth.Token {
	return auth.Token{
		AccessToken:  "at-" + tenant,
		RefreshToken: "rt-" + tenant,
		ExpiresOn:    time.Now().Add(time.Hour),
		TenantID:     tenant,
		Claims: auth.TokenClaims{
			PreferredUsername: user,
			TenantId:          tenant,
		},
	}
}

func TestSessionSet_Update(t *testing.T) {
	store := auth.NewTokenStore(nil)
	set := newSessionSet(&fakeProvider{}, store)

	tokens := []auth.Token{
		testToken("user@contoso.com", "t1"),
		testToken("user@contoso.com", "t2"),
		// Duplicate identity triple; collapsed into one session.
		testToken("user@contoso.com", "t2"),
	}

	require.NoError(t, set.update(context.Background(), testEnvironment(), tokens))

	sessions := set.list()
	require.Len(t, sessions, 2)
	require.Equal(t, 2, set.count())
	require.Equal(t, "t1", sessions[0].TenantID)
	require.Equal(t, "t2", sessions[1].TenantID)
	require.Equal(t, "user@contoso.com", sessions[0].UserID)

	// The store flipped live and serves the written tokens through the
	// sessions' credentials without touching the provider.
	credential, err := sessions[0].Credential()
	require.NoError(t, err)

	accessToken, err := credential.GetToken(context.Background(), azpolicy.TokenRequestOptions{})
	require.NoError(t, err)
	require.Equal(t, "at-t1", accessToken.Token)
}

func TestSessionSet_UpdateReplacesWholesale(t *testing.T) {
	set := newSessionSet(&fakeProvider{}, auth.NewTokenStore(nil))
	ctx := context.Background()

	require.NoError(t, set.update(ctx, testEnvironment(), []auth.Token{testToken("user@contoso.com", "t1")}))
	require.NoError(t, set.update(ctx, testEnvironment(), []auth.Token{testToken("other@contoso.com", "t2")}))

	sessions := set.list()
	require.Len(t, sessions, 1)
	require.Equal(t, "other@contoso.com", sessions[0].UserID)
}

func TestSessionSet_ReplayWithoutTokens(t *testing.T) {
	set := newSessionSet(&fakeProvider{}, auth.NewTokenStore(nil))

	set.replay(testEnvironment(), []SessionIdentity{
		{EnvironmentName: "AzureCloud", UserID: "user@contoso.com", TenantID: "t1"},
	})

	sessions := set.list()
	require.Len(t, sessions, 1)

	// The token store holds nothing, so the credential resolves but token
	// acquisition reports the signed-out state.
	credential, err := sessions[0].Credential()
	require.NoError(t, err)

	_, err = credential.GetToken(context.Background(), azpolicy.TokenRequestOptions{})
	require.ErrorIs(t, err, auth.ErrNotSignedIn)
}

func TestSessionSet_Clear(t *testing.T) {
	set := newSessionSet(&fakeProvider{}, auth.NewTokenStore(nil))

	require.NoError(t, set.update(context.Background(), testEnvironment(), []auth.Token{
		testToken("user@contoso.com", "t1"),
	}))
	require.Equal(t, 1, set.count())

	require.NoError(t, set.clear())
	require.Equal(t, 0, set.count())
	require.Empty(t, set.list())
}
