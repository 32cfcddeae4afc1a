package account

import (
	"context"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/azure/azure-account/pkg/auth"
	"github.com/azure/azure-account/pkg/cloud"
	"github.com/azure/azure-account/pkg/lazy"
)

// Session is a materialized identity scoped to one
// (environment, user, tenant) combination. Its credential is constructed
// lazily and bound to the shared token store.
type Session struct {
	Environment cloud.Environment
	UserID      string
	TenantID    string

	credential *lazy.Lazy[azcore.TokenCredential]
}

// Credential returns the request-signing credential for this session,
// constructing it on first use.
func (s *Session) Credential() (azcore.TokenCredential, error) {
	return s.credential.GetValue()
}

// Key returns the identity triple the session is unique by.
func (s *Session) Key() string {
	return fmt.Sprintf("%s %s %s", s.Environment.Name, s.UserID, s.TenantID)
}

// SessionIdentity is the persistable projection of a session: the identity
// triple only, never credentials.
type SessionIdentity struct {
	EnvironmentName string `json:"environment"`
	UserID          string `json:"userId"`
	TenantID        string `json:"tenantId"`
}

// sessionSet owns the session list and the token store backing the
// sessions' credentials. The list is only ever replaced wholesale.
type sessionSet struct {
	provider auth.TokenProvider
	store    *auth.TokenStore

	mu       sync.Mutex
	sessions []*Session
}

func newSessionSet(provider auth.TokenProvider, store *auth.TokenStore) *sessionSet {
	return &sessionSet{
		provider: provider,
		store:    store,
	}
}

// update materializes sessions from a settled token set: the token store is
// cleared, repopulated, and flipped live; the session list is rebuilt in
// place (replace-all, not append). One session per distinct identity triple.
func (s *sessionSet) update(ctx context.Context, env cloud.Environment, tokens []auth.Token) error {
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("clearing token store: %w", err)
	}

	if err := auth.WriteTokens(ctx, s.store, tokens); err != nil {
		return fmt.Errorf("storing tokens: %w", err)
	}

	if err := s.store.Activate(); err != nil {
		return fmt.Errorf("activating token store: %w", err)
	}

	identities := make([]SessionIdentity, 0, len(tokens))
	for _, token := range tokens {
		identities = append(identities, SessionIdentity{
			EnvironmentName: env.Name,
			UserID:          token.UserID(),
			TenantID:        token.TenantID,
		})
	}

	s.replace(env, identities)
	return nil
}

// replay rebuilds the session list from persisted identities, without
// touching the token store. Credentials resolve lazily against whatever the
// store holds (or fail with a sign-in error if it holds nothing).
func (s *sessionSet) replay(env cloud.Environment, identities []SessionIdentity) {
	s.replace(env, identities)
}

// clear drops all sessions and token state. Used on logout and when a
// silent bootstrap fails.
func (s *sessionSet) clear() error {
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("clearing token store: %w", err)
	}

	s.mu.Lock()
	s.sessions = nil
	s.mu.Unlock()

	return nil
}

// list returns a snapshot of the current session list.
func (s *sessionSet) list() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := make([]*Session, len(s.sessions))
	copy(sessions, s.sessions)
	return sessions
}

func (s *sessionSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

func (s *sessionSet) replace(env cloud.Environment, identities []SessionIdentity) {
	seen := map[string]struct{}{}
	sessions := make([]*Session, 0, len(identities))

	for _, identity := range identities {
		key := fmt.Sprintf("%s %s %s", identity.EnvironmentName, identity.UserID, identity.TenantID)
		if _, has := seen[key]; has {
			continue
		}
		seen[key] = struct{}{}

		tenantID := identity.TenantID
		userID := identity.UserID
		sessions = append(sessions, &Session{
			Environment: env,
			UserID:      userID,
			TenantID:    tenantID,
			credential: lazy.NewLazy(func() (azcore.TokenCredential, error) {
				return auth.NewSessionCredential(s.provider, s.store, env, tenantID, userID), nil
			}),
		})
	}

	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()
}
