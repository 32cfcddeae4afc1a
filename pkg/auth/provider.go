// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package auth

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	azpolicy "github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/azure/azure-account/pkg/cloud"
	"github.com/cli/browser"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/oauth2"
)

// TODO(#12): We re-use the App Id of the `az` CLI until we have our own.
const ClientID = "04b07795-8ddb-461a-bbee-02f9e1bf7b46"

// CommonTenant is the sentinel tenant meaning "enumerate all tenants the
// account belongs to".
const CommonTenant = "organizations"

// cRedirectTimeout bounds how long the browser flow waits for the local
// redirect before failing.
const cRedirectTimeout = 5 * time.Minute

// TokenProvider acquires and exchanges tokens against the identity
// provider's token endpoint for a given environment and tenant.
type TokenProvider interface {
	// AcquireInteractive runs the browser redirect flow. Fails with
	// ErrRedirectListenerUnavailable when the local listener cannot start.
	AcquireInteractive(ctx context.Context, env cloud.Environment, tenantID string) (Token, error)

	// AcquireDeviceCode runs the device code flow.
	AcquireDeviceCode(ctx context.Context, env cloud.Environment, tenantID string) (Token, error)

	// ExchangeAuthorizationCode redeems a stored authorization code.
	ExchangeAuthorizationCode(
		ctx context.Context, env cloud.Environment, redirectURL string, tenantID string, code string,
	) (Token, error)

	// ExchangeRefreshToken redeems a refresh token for the given tenant.
	ExchangeRefreshToken(
		ctx context.Context, env cloud.Environment, refreshToken string, tenantID string,
	) (Token, error)

	// ExpandTenants takes a token acquired against the common tenant and
	// returns one token per tenant the account belongs to.
	ExpandTenants(ctx context.Context, env cloud.Environment, token Token) ([]Token, error)
}

// AadProviderOptions configures the default provider. The zero value is
// usable.
type AadProviderOptions struct {
	// ClientID of the application requesting tokens. Defaults to [ClientID].
	ClientID string

	// OpenBrowser launches the system browser at the given URL. Defaults to
	// the cli/browser launcher.
	OpenBrowser func(url string) error

	// RedirectTimeout bounds the wait for the browser redirect.
	RedirectTimeout time.Duration

	// OnDeviceCodeMessage displays the device flow instructions to the
	// user. Defaults to logging.
	OnDeviceCodeMessage func(message string)
}

// AadProvider is the default TokenProvider, talking OAuth 2.0 (v2 endpoints)
// to Azure Active Directory.
type AadProvider struct {
	clientID        string
	openBrowser     func(url string) error
	redirectTimeout time.Duration
	onMessage       func(message string)
}

func NewAadProvider(options *AadProviderOptions) *AadProvider {
	if options == nil {
		options = &AadProviderOptions{}
	}

	p := &AadProvider{
		clientID:        options.ClientID,
		openBrowser:     options.OpenBrowser,
		redirectTimeout: options.RedirectTimeout,
		onMessage:       options.OnDeviceCodeMessage,
	}

	if p.clientID == "" {
		p.clientID = ClientID
	}
	if p.openBrowser == nil {
		p.openBrowser = browser.OpenURL
	}
	if p.redirectTimeout == 0 {
		p.redirectTimeout = cRedirectTimeout
	}
	if p.onMessage == nil {
		p.onMessage = func(message string) { log.Println(message) }
	}

	return p
}

// LoginScopes returns the scopes requested during the login flow for the
// given environment.
func LoginScopes(env cloud.Environment) []string {
	return []string{
		strings.TrimSuffix(env.ResourceManagerAudience(), "/") + "/.default",
		"openid",
		"profile",
		"offline_access",
	}
}

func (p *AadProvider) oauthConfig(env cloud.Environment, tenantID string, redirectURL string) *oauth2.Config {
	base := strings.TrimSuffix(env.Authority(), "/") + "/" + tenantID

	return &oauth2.Config{
		ClientID:    p.clientID,
		RedirectURL: redirectURL,
		Scopes:      LoginScopes(env),
		Endpoint: oauth2.Endpoint{
			AuthURL:       base + "/oauth2/v2.0/authorize",
			TokenURL:      base + "/oauth2/v2.0/token",
			DeviceAuthURL: base + "/oauth2/v2.0/devicecode",
		},
	}
}

func (p *AadProvider) AcquireInteractive(
	ctx context.Context, env cloud.Environment, tenantID string,
) (Token, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrRedirectListenerUnavailable, err)
	}
	defer listener.Close()

	redirectURL := fmt.Sprintf("http://localhost:%d/callback", listener.Addr().(*net.TCPAddr).Port)
	cfg := p.oauthConfig(env, tenantID, redirectURL)

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := cfg.AuthCodeURL(
		state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- fmt.Errorf("redirect state mismatch")
			return
		}

		if errName := query.Get("error"); errName != "" {
			http.Error(w, errName, http.StatusBadRequest)
			errCh <- fmt.Errorf("authorization failed: %s: %s", errName, query.Get("error_description"))
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>Sign-in complete. You may close this window.</body></html>")
		codeCh <- query.Get("code")
	})}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	defer server.Close()

	if err := p.openBrowser(authURL); err != nil {
		return Token{}, fmt.Errorf("opening browser: %w", err)
	}

	var code string
	select {
	case <-ctx.Done():
		return Token{}, ctx.Err()
	case <-time.After(p.redirectTimeout):
		return Token{}, fmt.Errorf("timed out waiting for browser redirect")
	case err := <-errCh:
		return Token{}, err
	case code = <-codeCh:
	}

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return Token{}, newAuthFailedError(err)
	}

	return toToken(tok, tenantID)
}

func (p *AadProvider) AcquireDeviceCode(
	ctx context.Context, env cloud.Environment, tenantID string,
) (Token, error) {
	cfg := p.oauthConfig(env, tenantID, "")

	deviceAuth, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return Token{}, newAuthFailedError(err)
	}

	// oauth2.DeviceAuthResponse does not expose the server-provided message,
	// so construct the standard prompt from the URI and user code.
	message := fmt.Sprintf(
		"To sign in, use a web browser to open the page %s and enter the code %s to authenticate.",
		deviceAuth.VerificationURI, deviceAuth.UserCode)
	p.onMessage(message)

	// Best effort convenience; the message above is sufficient on its own.
	if err := p.openBrowser(deviceAuth.VerificationURI); err != nil {
		log.Printf("failed opening browser for device login: %v", err)
	}

	tok, err := cfg.DeviceAccessToken(ctx, deviceAuth)
	if err != nil {
		return Token{}, newAuthFailedError(err)
	}

	return toToken(tok, tenantID)
}

func (p *AadProvider) ExchangeAuthorizationCode(
	ctx context.Context, env cloud.Environment, redirectURL string, tenantID string, code string,
) (Token, error) {
	cfg := p.oauthConfig(env, tenantID, redirectURL)

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return Token{}, newAuthFailedError(err)
	}

	return toToken(tok, tenantID)
}

func (p *AadProvider) ExchangeRefreshToken(
	ctx context.Context, env cloud.Environment, refreshToken string, tenantID string,
) (Token, error) {
	cfg := p.oauthConfig(env, tenantID, "")

	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return Token{}, newAuthFailedError(err)
	}

	return toToken(tok, tenantID)
}

func (p *AadProvider) ExpandTenants(
	ctx context.Context, env cloud.Environment, token Token,
) ([]Token, error) {
	client, err := armsubscriptions.NewTenantsClient(
		NewStaticTokenCredential(token.AccessToken, token.ExpiresOn),
		&arm.ClientOptions{ClientOptions: azpolicy.ClientOptions{Cloud: env.Configuration}},
	)
	if err != nil {
		return nil, fmt.Errorf("creating tenants client: %w", err)
	}

	var tenantIDs []string
	pager := client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing tenants: %w", err)
		}

		for _, tenant := range page.Value {
			if tenant.TenantID != nil && *tenant.TenantID != "" {
				tenantIDs = append(tenantIDs, *tenant.TenantID)
			}
		}
	}

	if len(tenantIDs) == 0 {
		return []Token{token}, nil
	}

	tokens := make([]Token, 0, len(tenantIDs))
	var errs error
	for _, tenantID := range tenantIDs {
		tenantToken, err := p.ExchangeRefreshToken(ctx, env, token.RefreshToken, tenantID)
		if err != nil {
			// Tenants requiring additional challenges (MFA, device policy)
			// reject the refresh grant; keep the tenants that work.
			errs = multierr.Append(errs, fmt.Errorf("tenant '%s': %w", tenantID, err))
			continue
		}

		tokens = append(tokens, tenantToken)
	}

	if len(tokens) == 0 {
		return nil, errs
	}

	if errs != nil {
		log.Printf("some tenants were skipped during token expansion: %v", errs)
	}

	return tokens, nil
}

func toToken(tok *oauth2.Token, tenantID string) (Token, error) {
	claims, err := GetClaimsFromAccessToken(tok.AccessToken)
	if err != nil {
		return Token{}, fmt.Errorf("reading token claims: %w", err)
	}

	return Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresOn:    tok.Expiry.UTC(),
		TenantID:     tenantID,
		Claims:       claims,
	}, nil
}

// staticTokenCredential adapts an already-acquired access token to the
// azcore credential interface.
type staticTokenCredential struct {
	token     string
	expiresOn time.Time
}

func NewStaticTokenCredential(token string, expiresOn time.Time) azcore.TokenCredential {
	return &staticTokenCredential{token: token, expiresOn: expiresOn}
}

func (c *staticTokenCredential) GetToken(
	ctx context.Context, options azpolicy.TokenRequestOptions,
) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     c.token,
		ExpiresOn: c.expiresOn,
	}, nil
}
