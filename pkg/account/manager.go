// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package account implements the login and session lifecycle for Azure
// identities: interactive and silent sign-in, session materialization,
// subscription discovery and the persisted resource filter.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/azure/azure-account/internal/telemetry"
	"github.com/azure/azure-account/pkg/auth"
	"github.com/azure/azure-account/pkg/cloud"
	"github.com/azure/azure-account/pkg/config"
	"github.com/azure/azure-account/pkg/ext"
	"github.com/azure/azure-account/pkg/input"
	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Configuration paths owned by the account manager.
const (
	// TenantConfigPath selects the tenant logins are scoped to. Unset means
	// the common tenant, which expands into every tenant of the account.
	TenantConfigPath = "azure.tenant"

	// ResourceFilterConfigPath holds the subscription filter: a list of
	// "tenantId/subscriptionId" keys, or the "all" sentinel.
	ResourceFilterConfigPath = "azure.resourceFilter"
)

// Trigger identifies what initiated a login attempt, for telemetry.
type Trigger string

const (
	TriggerLogin               Trigger = "login"
	TriggerLoginWithDeviceCode Trigger = "loginWithDeviceCode"
	TriggerLoginToCloud        Trigger = "loginToCloud"
	TriggerAskForLogin         Trigger = "askForLogin"
	TriggerActivation          Trigger = "activation"
	TriggerConfigChange        Trigger = "configChange"
)

// Events raised by the manager. Payloads are the new Status, []*Session or
// []Subscription respectively.
const (
	EventStatusChanged        ext.Event = "statusChanged"
	EventSessionsChanged      ext.Event = "sessionsChanged"
	EventSubscriptionsChanged ext.Event = "subscriptionsChanged"
	EventFiltersChanged       ext.Event = "filtersChanged"
)

// Telemetry path values distinguishing how a login settled.
const (
	pathNewLogin    = "newLogin"
	pathDeviceCode  = "deviceCode"
	pathTryExisting = "tryExisting"
)

const (
	// cLoginProbeTimeout is how long an interactive login waits for the
	// authority to answer before asking the user whether to keep waiting.
	cLoginProbeTimeout = 2 * time.Second

	// cInitializeProbeTimeout is how long a silent sign-in waits for the
	// authority before proceeding anyway and letting the exchange fail.
	cInitializeProbeTimeout = 5 * time.Second
)

// ManagerOptions configures a Manager. Zero-value fields get production
// defaults; tests substitute fakes.
type ManagerOptions struct {
	// ConfigDir overrides the user configuration directory.
	ConfigDir string

	Provider        auth.TokenProvider
	CredentialStore auth.CredentialStore
	TokenStore      *auth.TokenStore
	Console         input.Console
	Reporter        telemetry.Reporter
	Clock           clock.Clock
	HTTPClient      *http.Client
	Lister          SubscriptionLister

	// WatchConfig starts a file watcher that re-runs the affected pipelines
	// when the settings file is edited externally.
	WatchConfig bool
}

// Manager orchestrates the login lifecycle: it drives the status state
// machine, owns the session list, and keeps the subscription and filter
// views derived from it. All published state is replaced wholesale, never
// mutated in place.
type Manager struct {
	configManager config.FileConfigManager
	configPath    string

	provider   auth.TokenProvider
	credStore  auth.CredentialStore
	console    input.Console
	reporter   telemetry.Reporter
	clk        clock.Clock
	httpClient *http.Client
	lister     SubscriptionLister
	subsCache  *SubscriptionsCache
	watcher    *config.Watcher

	events   *ext.EventDispatcher[any]
	status   *StatusTracker
	sessions *sessionSet

	// loginMu serializes Login, Initialize and Logout. Holding it while the
	// status is LoggingIn is what makes WaitForLogin a reliable barrier.
	loginMu sync.Mutex

	subsMu        sync.Mutex
	subscriptions []Subscription
	subsInFlight  chan struct{}

	filtersMu sync.Mutex
	filters   []Subscription

	// oldResourceFilter holds the serialized filter value this process last
	// wrote or observed, so the config watcher can tell self-inflicted
	// changes from external edits.
	oldResourceFilter *atomic.String
}

func NewManager(options *ManagerOptions) (*Manager, error) {
	if options == nil {
		options = &ManagerOptions{}
	}

	configDir := options.ConfigDir
	if configDir == "" {
		dir, err := config.GetUserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolving config directory: %w", err)
		}
		configDir = dir
	}

	credStore := options.CredentialStore
	if credStore == nil {
		store, err := auth.NewFileCredentialStore(configDir)
		if err != nil {
			return nil, fmt.Errorf("creating credential store: %w", err)
		}
		credStore = store
	}

	tokenStore := options.TokenStore
	if tokenStore == nil {
		inner, err := auth.NewFileTokenCache(configDir)
		if err != nil {
			return nil, fmt.Errorf("creating token cache: %w", err)
		}
		tokenStore = auth.NewTokenStore(inner)
	}

	provider := options.Provider
	if provider == nil {
		provider = auth.NewAadProvider(nil)
	}

	console := options.Console
	if console == nil {
		console = input.NewConsole()
	}

	reporter := options.Reporter
	if reporter == nil {
		reporter = telemetry.NewLogReporter()
	}

	clk := options.Clock
	if clk == nil {
		clk = clock.New()
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	lister := options.Lister
	if lister == nil {
		lister = NewArmSubscriptionLister()
	}

	m := &Manager{
		configManager:     config.NewFileConfigManager(config.NewManager()),
		configPath:        filepath.Join(configDir, "config.json"),
		provider:          provider,
		credStore:         credStore,
		console:           console,
		reporter:          reporter,
		clk:               clk,
		httpClient:        httpClient,
		lister:            lister,
		subsCache:         NewSubscriptionsCache(filepath.Join(configDir, cSubscriptionsCacheFile)),
		oldResourceFilter: atomic.NewString(""),
	}
	m.events = ext.NewEventDispatcher[any](
		EventStatusChanged, EventSessionsChanged, EventSubscriptionsChanged, EventFiltersChanged)
	m.status = NewStatusTracker(func(status Status) {
		m.raise(context.Background(), EventStatusChanged, status)
	})
	m.sessions = newSessionSet(provider, tokenStore)

	if options.WatchConfig {
		watcher, err := config.NewWatcher(m.configManager, m.configPath)
		if err != nil {
			return nil, fmt.Errorf("creating config watcher: %w", err)
		}
		watcher.OnDidChange(m.handleConfigChange)
		watcher.Start(context.Background())
		m.watcher = watcher
	}

	return m, nil
}

// Close stops background work. Published state remains readable.
func (m *Manager) Close() {
	if m.watcher != nil {
		m.watcher.Close()
	}
}

// Events exposes the dispatcher hosts subscribe to.
func (m *Manager) Events() *ext.EventDispatcher[any] {
	return m.events
}

// Status returns the current login status.
func (m *Manager) Status() Status {
	return m.status.Current()
}

// Sessions returns a snapshot of the current sessions.
func (m *Manager) Sessions() []*Session {
	return m.sessions.list()
}

// Subscriptions returns a snapshot of the discovered subscriptions.
func (m *Manager) Subscriptions() []Subscription {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	subscriptions := make([]Subscription, len(m.subscriptions))
	copy(subscriptions, m.subscriptions)
	return subscriptions
}

// Filters returns a snapshot of the filtered subscription selection.
func (m *Manager) Filters() []Subscription {
	m.filtersMu.Lock()
	defer m.filtersMu.Unlock()

	filters := make([]Subscription, len(m.filters))
	copy(filters, m.filters)
	return filters
}

// WaitForLogin suspends until the status settles, returning true when the
// user ended up logged in.
func (m *Manager) WaitForLogin(ctx context.Context) (bool, error) {
	return m.status.WaitForLogin(ctx)
}

// WaitForSubscriptions suspends until the login settles and any in-flight
// subscription refresh completes. Returns false when the user is logged out.
func (m *Manager) WaitForSubscriptions(ctx context.Context) (bool, error) {
	loggedIn, err := m.WaitForLogin(ctx)
	if err != nil || !loggedIn {
		return false, err
	}

	m.subsMu.Lock()
	inFlight := m.subsInFlight
	m.subsMu.Unlock()

	if inFlight != nil {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-inFlight:
		}
	}

	return true, nil
}

// Login runs the interactive sign-in flow, then refreshes the subscription
// and filter views. The status always settles to LoggedIn or LoggedOut
// before the pipelines run, whatever the outcome.
func (m *Manager) Login(ctx context.Context, trigger Trigger) error {
	m.loginMu.Lock()
	err := m.loginLocked(ctx, trigger)
	m.status.Update(m.sessions.count())
	m.loginMu.Unlock()

	if err != nil {
		return err
	}

	m.runPipelines(ctx)
	return nil
}

// Initialize restores sessions silently from stored credentials. Persisted
// state (subscriptions, filters, session identities) is replayed
// optimistically first so a host has immediate data; a failed restore clears
// it all again. When doLogin is set, a failed restore falls through to the
// interactive flow instead of surfacing the error.
func (m *Manager) Initialize(ctx context.Context, trigger Trigger, doLogin bool, migrateToken bool) error {
	m.loginMu.Lock()
	err := m.initializeLocked(ctx, trigger, migrateToken)
	m.reportLogin(trigger, pathTryExisting, err)

	if err != nil {
		// Optimistically replayed data must not outlive a failed restore.
		if clearErr := m.clearState(ctx); clearErr != nil {
			log.Printf("clearing state after failed initialize: %v", clearErr)
		}
	}
	m.status.Update(m.sessions.count())

	if err != nil && doLogin && !errors.Is(err, context.Canceled) {
		err = m.loginLocked(ctx, trigger)
		m.status.Update(m.sessions.count())
	}
	m.loginMu.Unlock()

	if err != nil {
		return err
	}

	m.runPipelines(ctx)
	return nil
}

// Logout removes stored credentials for every known environment name and
// clears all published state.
func (m *Manager) Logout(ctx context.Context) error {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	var errs error
	for _, name := range cloud.KnownNames() {
		if err := m.credStore.Delete(name); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("removing credential for '%s': %w", name, err))
		}
	}

	if err := m.clearState(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}

	m.status.Update(m.sessions.count())
	return errs
}

// LoginToCloud prompts for a cloud instance, persists the selection and
// signs in to it. Choosing the custom cloud prompts for its endpoint and
// tenant first.
func (m *Manager) LoginToCloud(ctx context.Context) error {
	cfg, err := m.loadConfig()
	if err != nil {
		return err
	}

	registry := cloud.NewRegistry(cfg)
	current, _ := registry.ResolveSelected()

	environments := registry.List(false)
	options := make([]string, 0, len(environments)+1)
	for _, env := range environments {
		options = append(options, env.Name)
	}
	options = append(options, cloud.AzureCustomCloudName)

	idx, err := m.console.Select("Select an Azure cloud", options)
	if errors.Is(err, input.ErrPromptCancelled) {
		return nil
	} else if err != nil {
		return err
	}

	selected := options[idx]
	if selected == cloud.AzureCustomCloudName {
		currentTenant, _ := cfg.GetString(TenantConfigPath)
		var customConfig cloud.CustomCloudConfig
		_, _ = cfg.GetSection(cloud.CustomCloudConfigPath, &customConfig)

		armEndpoint, err := m.console.Prompt("Resource manager endpoint", customConfig.ResourceManagerEndpoint)
		if errors.Is(err, input.ErrPromptCancelled) || armEndpoint == "" {
			return nil
		} else if err != nil {
			return err
		}

		tenant, err := m.console.Prompt("Tenant id", currentTenant)
		if errors.Is(err, input.ErrPromptCancelled) {
			return nil
		} else if err != nil {
			return err
		}

		if err := cfg.Set(cloud.CustomCloudConfigPath+".resourceManagerEndpoint", armEndpoint); err != nil {
			return err
		}
		if err := cfg.Set(TenantConfigPath, tenant); err != nil {
			return err
		}
		if err := cfg.Set(cloud.ConfigPath, cloud.AzureCustomCloudName); err != nil {
			return err
		}
	} else {
		if current.Name == selected {
			return nil
		}
		if err := cfg.Set(cloud.ConfigPath, selected); err != nil {
			return err
		}
	}

	if err := m.saveConfig(ctx, cfg); err != nil {
		return err
	}

	return m.Login(ctx, TriggerLoginToCloud)
}

// SelectSubscriptions shows the subscription picker seeded from the current
// filter and persists the new selection. When logged out it offers to sign
// in first.
func (m *Manager) SelectSubscriptions(ctx context.Context) error {
	loggedIn, err := m.WaitForSubscriptions(ctx)
	if err != nil {
		return err
	}

	if !loggedIn {
		signIn, err := m.console.Confirm("You are not signed in. Sign in first?", true)
		if errors.Is(err, input.ErrPromptCancelled) || (err == nil && !signIn) {
			return nil
		} else if err != nil {
			return err
		}

		return m.Login(ctx, TriggerAskForLogin)
	}

	subscriptions := m.Subscriptions()
	if len(subscriptions) == 0 {
		m.console.Message("No subscriptions were found.")
		return nil
	}

	cfg, err := m.loadConfig()
	if err != nil {
		return err
	}

	value, present := cfg.GetStringSlice(ResourceFilterConfigPath)
	filter := normalizeFilter(value, present)

	options := make([]string, len(subscriptions))
	keys := make([]string, len(subscriptions))
	checked := make([]int, 0, len(subscriptions))
	for i, subscription := range subscriptions {
		options[i] = fmt.Sprintf("%s (%s)", subscription.DisplayName, subscription.ID)
		keys[i] = FilterKey(subscription.TenantID, subscription.ID)
		if IsSelected(filter, keys[i]) {
			checked = append(checked, i)
		}
	}

	newChecked, err := m.console.MultiSelect("Select subscriptions", options, checked)
	if errors.Is(err, input.ErrPromptCancelled) {
		return nil
	} else if err != nil {
		return err
	}

	wasChecked := map[int]bool{}
	for _, i := range checked {
		wasChecked[i] = true
	}
	isChecked := map[int]bool{}
	for _, i := range newChecked {
		isChecked[i] = true
	}

	changed := len(wasChecked) != len(isChecked)
	for i := range isChecked {
		if !wasChecked[i] {
			changed = true
		}
	}
	if !changed {
		return nil
	}

	newFilter := nextFilter(filter, keys, isChecked)

	// Stamp before writing so the watcher does not re-run the pipeline for
	// our own edit.
	m.oldResourceFilter.Store(serializeFilter(newFilter))

	if err := cfg.Set(ResourceFilterConfigPath, newFilter); err != nil {
		return err
	}
	if err := m.saveConfig(ctx, cfg); err != nil {
		return err
	}

	return m.updateFilters(ctx)
}

// nextFilter computes the persisted filter after the picker toggles some of
// keys. Entries for subscriptions outside the current list survive
// untouched; the "all" sentinel expands into just the checked keys.
func nextFilter(filter []string, keys []string, isChecked map[int]bool) []string {
	newFilter := []string{}

	if len(filter) > 0 && filter[0] == AllFilter {
		for i, key := range keys {
			if isChecked[i] {
				newFilter = append(newFilter, key)
			}
		}
		return newFilter
	}

	known := map[string]bool{}
	for _, key := range keys {
		known[key] = true
	}

	for _, entry := range filter {
		if !known[entry] {
			newFilter = append(newFilter, entry)
		}
	}
	for i, key := range keys {
		if isChecked[i] {
			newFilter = AddFilter(newFilter, key)
		}
	}

	return newFilter
}

// loginLocked performs the interactive sign-in. Callers hold loginMu and
// settle the status afterwards.
func (m *Manager) loginLocked(ctx context.Context, trigger Trigger) error {
	cfg, err := m.loadConfig()
	if err != nil {
		m.reportLogin(trigger, pathNewLogin, err)
		return err
	}

	env, err := cloud.NewRegistry(cfg).ResolveSelected()
	if err != nil {
		m.reportLogin(trigger, pathNewLogin, err)
		return err
	}

	probe := startReachabilityProbe(ctx, m.httpClient, env.Authority())
	defer probe.Cancel()

	online, err := probe.waitWithTimeout(ctx, m.clk, cLoginProbeTimeout)
	if err != nil {
		m.reportLogin(trigger, pathNewLogin, err)
		return err
	}

	if !online {
		keepWaiting, promptErr := m.console.Confirm(
			"You appear to be offline. Keep waiting for the network?", true)
		if promptErr != nil || !keepWaiting {
			err := auth.ErrOfflineCancelled
			m.reportLogin(trigger, pathNewLogin, err)
			return err
		}

		if _, err := probe.wait(ctx); err != nil {
			m.reportLogin(trigger, pathNewLogin, err)
			return err
		}
	}

	m.status.BeginLoggingIn()

	tenant := m.resolveTenant(cfg)
	useDeviceCode := trigger == TriggerLoginWithDeviceCode || env.IsADFS()
	path := pathNewLogin

	var token auth.Token
	if !useDeviceCode {
		token, err = m.provider.AcquireInteractive(ctx, env, tenant)
		if errors.Is(err, auth.ErrRedirectListenerUnavailable) {
			// No local listener means no redirect flow; the device flow
			// needs neither.
			useDeviceCode = true
		} else if err != nil {
			m.reportLogin(trigger, path, err)
			return err
		}
	}

	if useDeviceCode {
		path = pathDeviceCode
		token, err = m.provider.AcquireDeviceCode(ctx, env, tenant)
		if err != nil {
			m.reportLogin(trigger, path, err)
			return err
		}
	}

	if err := m.materialize(ctx, env, tenant, token); err != nil {
		m.reportLogin(trigger, path, err)
		return err
	}

	m.reportLogin(trigger, path, nil)
	return nil
}

// initializeLocked restores sessions from the stored credential blob.
// Callers hold loginMu, report telemetry and settle the status.
func (m *Manager) initializeLocked(ctx context.Context, trigger Trigger, migrateToken bool) error {
	m.replayCache(ctx)

	cfg, err := m.loadConfig()
	if err != nil {
		return err
	}

	env, err := cloud.NewRegistry(cfg).ResolveSelected()
	if err != nil {
		return err
	}

	if migrateToken {
		for legacy, canonical := range cloud.LegacyAliases() {
			if err := m.credStore.Migrate(legacy, canonical); err != nil {
				log.Printf("migrating credential from '%s': %v", legacy, err)
			}
		}
	}

	blob, err := m.credStore.Get(env.Name)
	if errors.Is(err, auth.ErrCredentialNotFound) {
		return auth.ErrNotSignedIn
	} else if err != nil {
		return err
	}

	// The probe timeout is advisory here: a silent restore proceeds even if
	// the authority has not answered yet and lets the exchange fail instead.
	probe := startReachabilityProbe(ctx, m.httpClient, env.Authority())
	_, err = probe.waitWithTimeout(ctx, m.clk, cInitializeProbeTimeout)
	probe.Cancel()
	if err != nil {
		return err
	}

	m.status.BeginLoggingIn()

	tenant := m.resolveTenant(cfg)
	token, err := m.exchangeStoredCredential(ctx, env, tenant, blob)
	if err != nil {
		return err
	}

	return m.materialize(ctx, env, tenant, token)
}

// materialize turns a freshly acquired token into sessions: expanding the
// common tenant, persisting the rolling refresh token, and replacing the
// session list.
func (m *Manager) materialize(ctx context.Context, env cloud.Environment, tenant string, token auth.Token) error {
	tokens := []auth.Token{token}
	if tenant == auth.CommonTenant {
		expanded, err := m.provider.ExpandTenants(ctx, env, token)
		if err != nil {
			return err
		}
		tokens = expanded
	}

	if token.RefreshToken != "" {
		if err := m.credStore.Put(env.Name, []byte(token.RefreshToken)); err != nil {
			log.Printf("persisting credential for '%s': %v", env.Name, err)
		}
	}

	if err := m.sessions.update(ctx, env, tokens); err != nil {
		return err
	}

	m.raise(ctx, EventSessionsChanged, m.sessions.list())
	return nil
}

// exchangeStoredCredential redeems a stored credential blob for a token. A
// blob that is not JSON is treated as a raw refresh token; a JSON blob must
// carry the redirect-flow {redirectionUrl, code} shape.
func (m *Manager) exchangeStoredCredential(
	ctx context.Context, env cloud.Environment, tenant string, blob []byte,
) (auth.Token, error) {
	var parsed any
	if err := json.Unmarshal(blob, &parsed); err != nil {
		token, err := m.provider.ExchangeRefreshToken(ctx, env, string(blob), tenant)
		if err != nil {
			return auth.Token{}, fmt.Errorf("%w: %v", auth.ErrStoredCredentialExchange, err)
		}
		return token, nil
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return auth.Token{}, auth.ErrMalformedStoredCredentials
	}

	redirectionURL, _ := obj["redirectionUrl"].(string)
	code, _ := obj["code"].(string)
	if redirectionURL == "" || code == "" {
		return auth.Token{}, auth.ErrMalformedStoredCredentials
	}

	token, err := m.provider.ExchangeAuthorizationCode(ctx, env, redirectionURL, tenant, code)
	if err != nil {
		return auth.Token{}, fmt.Errorf("%w: %v", auth.ErrStoredCredentialExchange, err)
	}

	return token, nil
}

// replayCache republishes the persisted snapshot (session identities,
// subscriptions and the filter selection) before any network work, so a
// host shows data immediately. The replayed sessions' credentials resolve
// against the still-buffering token store.
func (m *Manager) replayCache(ctx context.Context) {
	entries, err := m.subsCache.Load()
	if err != nil || len(entries) == 0 {
		return
	}

	cfg, err := m.loadConfig()
	if err != nil {
		return
	}

	env, err := m.environmentForName(cfg, entries[0].Session.EnvironmentName)
	if err != nil {
		return
	}

	identities := make([]SessionIdentity, 0, len(entries))
	for _, entry := range entries {
		identities = append(identities, entry.Session)
	}
	m.sessions.replay(env, identities)
	m.status.Update(m.sessions.count())
	m.raise(ctx, EventSessionsChanged, m.sessions.list())

	byKey := map[string]*Session{}
	for _, session := range m.sessions.list() {
		byKey[session.Key()] = session
	}

	subscriptions := make([]Subscription, 0, len(entries))
	for _, entry := range entries {
		key := fmt.Sprintf("%s %s %s", entry.Session.EnvironmentName, entry.Session.UserID, entry.Session.TenantID)
		session, has := byKey[key]
		if !has {
			continue
		}
		subscriptions = append(subscriptions, Subscription{
			Session:          session,
			SubscriptionInfo: entry.Subscription,
		})
	}
	sortSubscriptions(subscriptions)
	m.publishSubscriptions(ctx, subscriptions)

	if err := m.updateFilters(ctx); err != nil {
		log.Printf("replaying filters: %v", err)
	}
}

// environmentForName resolves a persisted environment name, falling back to
// the configured custom cloud for names the static set does not know.
func (m *Manager) environmentForName(cfg config.Config, name string) (cloud.Environment, error) {
	env, err := cloud.ParseName(name)
	if err == nil {
		return env, nil
	}

	selected, selErr := cloud.NewRegistry(cfg).ResolveSelected()
	if selErr == nil && selected.Name == name {
		return selected, nil
	}

	return cloud.Environment{}, err
}

// clearState drops sessions, subscriptions, filters and the persisted
// snapshot, raising the matching events.
func (m *Manager) clearState(ctx context.Context) error {
	var errs error

	if err := m.sessions.clear(); err != nil {
		errs = multierr.Append(errs, err)
	}
	m.raise(ctx, EventSessionsChanged, m.sessions.list())

	m.publishSubscriptions(ctx, nil)

	m.filtersMu.Lock()
	m.filters = nil
	m.filtersMu.Unlock()
	m.raise(ctx, EventFiltersChanged, []Subscription{})

	if err := m.subsCache.Clear(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("clearing subscriptions cache: %w", err))
	}

	return errs
}

// runPipelines refreshes the subscription view and then the filter view.
// Pipeline failures are logged, not surfaced: the login itself succeeded.
func (m *Manager) runPipelines(ctx context.Context) {
	if err := m.updateSubscriptions(ctx); err != nil {
		log.Printf("updating subscriptions: %v", err)
	}
	if err := m.updateFilters(ctx); err != nil {
		log.Printf("updating filters: %v", err)
	}
}

// updateSubscriptions rebuilds the subscription view by listing every
// session's subscriptions in parallel. Sessions that fail to list are
// skipped unless every one of them fails.
func (m *Manager) updateSubscriptions(ctx context.Context) error {
	loggedIn, err := m.WaitForLogin(ctx)
	if err != nil {
		return err
	}

	inFlight := make(chan struct{})
	m.subsMu.Lock()
	m.subsInFlight = inFlight
	m.subsMu.Unlock()
	defer func() {
		m.subsMu.Lock()
		if m.subsInFlight == inFlight {
			m.subsInFlight = nil
		}
		m.subsMu.Unlock()
		close(inFlight)
	}()

	if !loggedIn {
		m.publishSubscriptions(ctx, nil)
		if err := m.subsCache.Clear(); err != nil {
			log.Printf("clearing subscriptions cache: %v", err)
		}
		return nil
	}

	sessions := m.sessions.list()
	results := make([][]SubscriptionInfo, len(sessions))

	var resultsMu sync.Mutex
	var errs error
	anySucceeded := false

	group, groupCtx := errgroup.WithContext(ctx)
	for i, session := range sessions {
		i, session := i, session
		group.Go(func() error {
			infos, err := m.lister.ListSubscriptions(groupCtx, session)

			resultsMu.Lock()
			defer resultsMu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("listing subscriptions for '%s': %w", session.Key(), err))
				return nil
			}

			results[i] = infos
			anySucceeded = true
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if !anySucceeded && errs != nil {
		return errs
	}
	for _, err := range multierr.Errors(errs) {
		log.Println(err)
	}

	subscriptions := []Subscription{}
	for i, session := range sessions {
		for _, info := range results[i] {
			subscriptions = append(subscriptions, Subscription{
				Session:          session,
				SubscriptionInfo: info,
			})
		}
	}
	sortSubscriptions(subscriptions)

	m.publishSubscriptions(ctx, subscriptions)
	if err := m.subsCache.Save(toCacheEntries(subscriptions)); err != nil {
		log.Printf("saving subscriptions cache: %v", err)
	}

	return nil
}

func (m *Manager) publishSubscriptions(ctx context.Context, subscriptions []Subscription) {
	m.subsMu.Lock()
	m.subscriptions = subscriptions
	m.subsMu.Unlock()

	if subscriptions == nil {
		subscriptions = []Subscription{}
	}
	m.raise(ctx, EventSubscriptionsChanged, subscriptions)
}

// updateFilters recomputes the filtered selection from the configured
// filter and the current subscription view.
func (m *Manager) updateFilters(ctx context.Context) error {
	cfg, err := m.loadConfig()
	if err != nil {
		return err
	}

	value, present := cfg.GetStringSlice(ResourceFilterConfigPath)
	filter := normalizeFilter(value, present)
	m.oldResourceFilter.Store(serializeFilter(filter))

	selected := applyFilter(filter, m.Subscriptions())

	m.filtersMu.Lock()
	m.filters = selected
	m.filtersMu.Unlock()

	m.raise(ctx, EventFiltersChanged, selected)
	return nil
}

// handleConfigChange reacts to external edits of the settings file: cloud
// or tenant changes restart the silent sign-in, filter changes recompute
// the selection. Filter values matching what this process last wrote are
// ignored.
func (m *Manager) handleConfigChange(ctx context.Context, event config.ChangeEvent) {
	if event.AffectsKey(cloud.ConfigPath) ||
		event.AffectsKey(cloud.CustomCloudConfigPath) ||
		event.AffectsKey(TenantConfigPath) {
		if err := m.Initialize(ctx, TriggerConfigChange, false, false); err != nil {
			log.Printf("reinitializing after config change: %v", err)
		}
		return
	}

	if !event.AffectsKey(ResourceFilterConfigPath) {
		return
	}

	cfg, err := m.loadConfig()
	if err != nil {
		log.Printf("reading config after change: %v", err)
		return
	}

	value, present := cfg.GetStringSlice(ResourceFilterConfigPath)
	serialized := serializeFilter(normalizeFilter(value, present))
	if serialized == m.oldResourceFilter.Load() {
		return
	}

	if _, err := m.WaitForSubscriptions(ctx); err != nil {
		log.Printf("waiting for subscriptions after filter change: %v", err)
		return
	}

	if err := m.updateFilters(ctx); err != nil {
		log.Printf("updating filters after config change: %v", err)
	}
}

func (m *Manager) resolveTenant(cfg config.Config) string {
	tenant, has := cfg.GetString(TenantConfigPath)
	if !has || tenant == "" {
		return auth.CommonTenant
	}

	return tenant
}

func (m *Manager) loadConfig() (config.Config, error) {
	cfg, err := config.LoadOrCreate(m.configManager, m.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	return cfg, nil
}

func (m *Manager) saveConfig(ctx context.Context, cfg config.Config) error {
	if err := m.configManager.Save(cfg, m.configPath); err != nil {
		return fmt.Errorf("saving configuration: %w", err)
	}

	if m.watcher != nil {
		m.watcher.Reload(ctx)
	}

	return nil
}

func (m *Manager) raise(ctx context.Context, event ext.Event, payload any) {
	if err := m.events.RaiseEvent(ctx, event, payload); err != nil {
		log.Printf("raising %s: %v", event, err)
	}
}

// reportLogin emits the login telemetry event. Only error classifications
// cross the boundary; unclassified failures carry the error text of our own
// wrapping, not provider responses.
func (m *Manager) reportLogin(trigger Trigger, path string, err error) {
	attributes := []attribute.KeyValue{
		telemetry.TriggerKey.String(string(trigger)),
		telemetry.PathKey.String(path),
	}

	switch {
	case err == nil:
		attributes = append(attributes, telemetry.OutcomeKey.String(telemetry.OutcomeSuccess))
	case errors.Is(err, context.Canceled):
		attributes = append(attributes, telemetry.OutcomeKey.String(telemetry.OutcomeCanceled))
	default:
		if class := auth.ClassifyError(err); class != "" {
			attributes = append(attributes,
				telemetry.OutcomeKey.String(telemetry.OutcomeError),
				telemetry.ErrorClassKey.String(class))
		} else {
			attributes = append(attributes,
				telemetry.OutcomeKey.String(telemetry.OutcomeFailure),
				telemetry.MessageKey.String(err.Error()))
		}
	}

	m.reporter.ReportEvent("login", attributes...)
}
