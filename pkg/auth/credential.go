// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	azpolicy "github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	msalcache "github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/azure/azure-account/pkg/cloud"
)

// tokenRefreshWindow is how long before expiry a cached access token is
// considered stale.
const tokenRefreshWindow = 5 * time.Minute

// storedToken is one entry of the serialized token set kept in the
// TokenStore. Only what the refresh grant needs is stored.
type storedToken struct {
	RefreshToken string    `json:"refreshToken"`
	AccessToken  string    `json:"accessToken,omitempty"`
	ExpiresOn    time.Time `json:"expiresOn,omitempty"`
}

// tokenSet is the full serialized token state for the current user, keyed
// by "tenantId/userId". It implements the store's marshal contract
// ([msalcache.Marshaler] / [msalcache.Unmarshaler]).
type tokenSet map[string]storedToken

func (t tokenSet) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

func (t *tokenSet) Unmarshal(data []byte) error {
	return json.Unmarshal(data, t)
}

func tokenSetKey(tenantID, userID string) string {
	return tenantID + "/" + userID
}

// WriteTokens exports the given tokens as the store's token set, replacing
// whatever set was stored before.
func WriteTokens(ctx context.Context, store *TokenStore, tokens []Token) error {
	set := tokenSet{}
	for _, token := range tokens {
		set[tokenSetKey(token.TenantID, token.UserID())] = storedToken{
			RefreshToken: token.RefreshToken,
			AccessToken:  token.AccessToken,
			ExpiresOn:    token.ExpiresOn,
		}
	}

	return store.Export(ctx, set, msalcache.ExportHints{})
}

// SessionCredential implements azcore.TokenCredential for a single
// (environment, tenant, user) combination. Access tokens are renewed
// through the provider's refresh grant; serialized token state snapshots
// through the shared TokenStore, so a credential constructed while the
// store is still buffering observes the buffered view.
type SessionCredential struct {
	provider TokenProvider
	store    *TokenStore
	env      cloud.Environment
	tenantID string
	userID   string

	mu      sync.Mutex
	current storedToken
}

func NewSessionCredential(
	provider TokenProvider, store *TokenStore, env cloud.Environment, tenantID string, userID string,
) *SessionCredential {
	return &SessionCredential{
		provider: provider,
		store:    store,
		env:      env,
		tenantID: tenantID,
		userID:   userID,
	}
}

func (c *SessionCredential) GetToken(
	ctx context.Context, options azpolicy.TokenRequestOptions,
) (azcore.AccessToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.AccessToken != "" && time.Until(c.current.ExpiresOn) > tokenRefreshWindow {
		return azcore.AccessToken{Token: c.current.AccessToken, ExpiresOn: c.current.ExpiresOn}, nil
	}

	set := tokenSet{}
	if err := c.store.Replace(ctx, &set, msalcache.ReplaceHints{}); err != nil {
		return azcore.AccessToken{}, fmt.Errorf("reading token store: %w", err)
	}

	stored, has := set[tokenSetKey(c.tenantID, c.userID)]
	if !has || stored.RefreshToken == "" {
		return azcore.AccessToken{}, ErrNotSignedIn
	}

	if stored.AccessToken != "" && time.Until(stored.ExpiresOn) > tokenRefreshWindow {
		c.current = stored
		return azcore.AccessToken{Token: stored.AccessToken, ExpiresOn: stored.ExpiresOn}, nil
	}

	token, err := c.provider.ExchangeRefreshToken(ctx, c.env, stored.RefreshToken, c.tenantID)
	if err != nil {
		return azcore.AccessToken{}, err
	}

	refreshed := storedToken{
		RefreshToken: token.RefreshToken,
		AccessToken:  token.AccessToken,
		ExpiresOn:    token.ExpiresOn,
	}
	if refreshed.RefreshToken == "" {
		// The provider may not roll the refresh token; keep the old one.
		refreshed.RefreshToken = stored.RefreshToken
	}

	set[tokenSetKey(c.tenantID, c.userID)] = refreshed
	if err := c.store.Export(ctx, set, msalcache.ExportHints{}); err != nil {
		return azcore.AccessToken{}, fmt.Errorf("writing token store: %w", err)
	}

	c.current = refreshed
	return azcore.AccessToken{Token: refreshed.AccessToken, ExpiresOn: refreshed.ExpiresOn}, nil
}
