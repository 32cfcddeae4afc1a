package account

import (
	"encoding/json"
	"slices"
)

// AllFilter is the sentinel filter entry meaning every subscription is
// included. When present it is always the only entry.
const AllFilter = "all"

// FilterKey returns the filter entry for a subscription.
func FilterKey(tenantID, subscriptionID string) string {
	return tenantID + "/" + subscriptionID
}

// IsSelected reports whether the filter includes the given subscription key.
func IsSelected(filter []string, key string) bool {
	if len(filter) > 0 && filter[0] == AllFilter {
		return true
	}

	return slices.Contains(filter, key)
}

// AddFilter returns the filter with key included. Adding to the "all"
// sentinel is a no-op since everything is already included.
func AddFilter(filter []string, key string) []string {
	if len(filter) > 0 && filter[0] == AllFilter {
		return filter
	}

	if slices.Contains(filter, key) {
		return filter
	}

	result := make([]string, 0, len(filter)+1)
	result = append(result, filter...)
	return append(result, key)
}

// RemoveFilter returns the filter with key excluded. Removing from the
// "all" sentinel requires the full subscription key list to expand the
// sentinel into explicit entries first.
func RemoveFilter(filter []string, key string, allKeys []string) []string {
	if len(filter) > 0 && filter[0] == AllFilter {
		result := make([]string, 0, len(allKeys))
		for _, k := range allKeys {
			if k != key {
				result = append(result, k)
			}
		}
		return result
	}

	result := make([]string, 0, len(filter))
	for _, k := range filter {
		if k != key {
			result = append(result, k)
		}
	}
	return result
}

// normalizeFilter applies the sentinel invariant: a missing value means
// unfiltered, and "all" anywhere collapses the list to just the sentinel.
func normalizeFilter(filter []string, present bool) []string {
	if !present {
		return []string{AllFilter}
	}

	if slices.Contains(filter, AllFilter) {
		return []string{AllFilter}
	}

	return filter
}

// serializeFilter renders a filter value for change comparison. The
// serialized form is what gets stamped into oldResourceFilter so that
// self-triggered configuration writes do not cause a redundant recompute.
func serializeFilter(filter []string) string {
	serialized, err := json.Marshal(filter)
	if err != nil {
		return ""
	}

	return string(serialized)
}

// applyFilter computes the selected subset of subscriptions for a filter.
func applyFilter(filter []string, subscriptions []Subscription) []Subscription {
	selected := make([]Subscription, 0, len(subscriptions))
	for _, subscription := range subscriptions {
		if IsSelected(filter, FilterKey(subscription.TenantID, subscription.ID)) {
			selected = append(selected, subscription)
		}
	}

	return selected
}
