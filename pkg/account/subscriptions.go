package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	azpolicy "github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/azure/azure-account/pkg/convert"
	"github.com/azure/azure-account/pkg/osutil"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SubscriptionInfo is the subscription metadata returned by the management
// service.
type SubscriptionInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	TenantID    string `json:"tenantId"`
}

// Subscription pairs subscription metadata with the session whose
// credentials can access it. The session reference is non-owning.
type Subscription struct {
	Session *Session
	SubscriptionInfo
}

// SubscriptionLister lists the subscriptions visible to a session's
// credentials.
type SubscriptionLister interface {
	ListSubscriptions(ctx context.Context, session *Session) ([]SubscriptionInfo, error)
}

// armSubscriptionLister lists subscriptions through the resource manager
// endpoint of the session's environment.
type armSubscriptionLister struct {
}

func NewArmSubscriptionLister() SubscriptionLister {
	return &armSubscriptionLister{}
}

func (l *armSubscriptionLister) ListSubscriptions(
	ctx context.Context, session *Session,
) ([]SubscriptionInfo, error) {
	credential, err := session.Credential()
	if err != nil {
		return nil, fmt.Errorf("resolving session credential: %w", err)
	}

	client, err := armsubscriptions.NewClient(credential, &arm.ClientOptions{
		ClientOptions: azpolicy.ClientOptions{Cloud: session.Environment.Configuration},
	})
	if err != nil {
		return nil, fmt.Errorf("creating subscriptions client: %w", err)
	}

	var subscriptions []SubscriptionInfo
	pager := client.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed getting next page of subscriptions: %w", err)
		}

		for _, subscription := range page.Value {
			if subscription.SubscriptionID == nil {
				continue
			}

			subscriptions = append(subscriptions, SubscriptionInfo{
				ID:          *subscription.SubscriptionID,
				DisplayName: convert.ToValueWithDefault(subscription.DisplayName, ""),
				TenantID:    convert.ToValueWithDefault(subscription.TenantID, session.TenantID),
			})
		}
	}

	return subscriptions, nil
}

// sortSubscriptions orders subscriptions by display name using
// case-insensitive collation, stable across equal names.
func sortSubscriptions(subscriptions []Subscription) {
	collator := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(subscriptions, func(i, j int) bool {
		return collator.CompareString(subscriptions[i].DisplayName, subscriptions[j].DisplayName) < 0
	})
}

// CacheEntry is one persisted {session identity, subscription} pair.
// Credentials are never part of the snapshot.
type CacheEntry struct {
	Session      SessionIdentity  `json:"session"`
	Subscription SubscriptionInfo `json:"subscription"`
}

// The cache file used for storing subscriptions accessible by the
// currently signed in user.
const cSubscriptionsCacheFile = "subscriptions.cache"

// SubscriptionsCache persists the subscription snapshot across restarts so
// a host UI has immediate (possibly stale) data on startup.
type SubscriptionsCache struct {
	cachePath string
}

func NewSubscriptionsCache(cachePath string) *SubscriptionsCache {
	return &SubscriptionsCache{cachePath: cachePath}
}

// Load reads the cache snapshot from disk.
func (c *SubscriptionsCache) Load() ([]CacheEntry, error) {
	contents, err := os.ReadFile(c.cachePath)
	if err != nil {
		return nil, err
	}

	var entries []CacheEntry
	if err := json.Unmarshal(contents, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// Save writes the cache snapshot to disk.
func (c *SubscriptionsCache) Save(entries []CacheEntry) error {
	contents, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal subscriptions: %w", err)
	}

	if err := os.WriteFile(c.cachePath, contents, osutil.PermissionFileOwnerOnly); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// Clear removes the persisted snapshot.
func (c *SubscriptionsCache) Clear() error {
	err := os.Remove(c.cachePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}

func toCacheEntries(subscriptions []Subscription) []CacheEntry {
	entries := make([]CacheEntry, 0, len(subscriptions))
	for _, subscription := range subscriptions {
		entries = append(entries, CacheEntry{
			Session: SessionIdentity{
				EnvironmentName: subscription.Session.Environment.Name,
				UserID:          subscription.Session.UserID,
				TenantID:        subscription.Session.TenantID,
			},
			Subscription: subscription.SubscriptionInfo,
		})
	}

	return entries
}
