// Package router translates decoded change events into targeted cache-key
// invalidations. The router decides which keys are stale; it never touches
// cached values and never fetches.
package router

import (
	"github.com/campuslink/campuslink/internal/realtime/cachestore"
	"github.com/campuslink/campuslink/internal/realtime/change"
)

// Cache key kinds produced by the standard rules.
const (
	KindIdentity        = "identity" // one viewer's identity snapshot
	KindRequests        = "requests" // one viewer's mentorship request list
	KindMentorDirectory = "mentors"  // one college domain's mentor directory
)

// ProfileRule maps profile change events to cache keys.
type ProfileRule struct {
	Match func(change.ProfileEvent) bool
	Keys  func(change.ProfileEvent) []cachestore.Key
}

// RequestRule maps mentorship request change events to cache keys.
type RequestRule struct {
	Match func(change.RequestEvent) bool
	Keys  func(change.RequestEvent) []cachestore.Key
}

// Router applies per-consumer routing rules to incoming change events.
type Router struct {
	profileRules []ProfileRule
	requestRules []RequestRule
}

// New creates an empty router. Rules are added per consumer at wiring time.
func New() *Router {
	return &Router{}
}

// AddProfileRule registers a rule for the profiles collection.
func (r *Router) AddProfileRule(rule ProfileRule) {
	r.profileRules = append(r.profileRules, rule)
}

// AddRequestRule registers a rule for the mentorship_requests collection.
func (r *Router) AddRequestRule(rule RequestRule) {
	r.requestRules = append(r.requestRules, rule)
}

// Route returns the cache keys event makes stale, deduplicated, in rule
// registration order.
func (r *Router) Route(event change.Event) []cachestore.Key {
	var keys []cachestore.Key
	switch e := event.(type) {
	case change.ProfileEvent:
		for _, rule := range r.profileRules {
			if rule.Match != nil && !rule.Match(e) {
				continue
			}
			keys = append(keys, rule.Keys(e)...)
		}
	case change.RequestEvent:
		for _, rule := range r.requestRules {
			if rule.Match != nil && !rule.Match(e) {
				continue
			}
			keys = append(keys, rule.Keys(e)...)
		}
	}
	return dedupeKeys(keys)
}

func dedupeKeys(keys []cachestore.Key) []cachestore.Key {
	if len(keys) < 2 {
		return keys
	}
	seen := make(map[cachestore.Key]struct{}, len(keys))
	deduped := keys[:0]
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, key)
	}
	return deduped
}

// IdentityRelevantChange reports whether a profile update touched a field
// that feeds the identity snapshot: role, verification, college domain, or
// email. High-frequency touches like last-active timestamps must not trigger
// identity refetches.
func IdentityRelevantChange(before, after *change.ProfileRecord) bool {
	if before == nil || after == nil {
		return true
	}
	return before.Role != after.Role ||
		before.IsVerified != after.IsVerified ||
		before.CollegeDomain != after.CollegeDomain ||
		before.Email != after.Email
}

// IdentityKey is the cache key for one user's identity snapshot.
func IdentityKey(userID string) cachestore.Key {
	return cachestore.Key{Kind: KindIdentity, Scope: userID}
}

// RequestsKey is the cache key for one user's mentorship request list.
func RequestsKey(userID string) cachestore.Key {
	return cachestore.Key{Kind: KindRequests, Scope: userID}
}

// MentorDirectoryKey is the cache key for one domain's mentor directory.
func MentorDirectoryKey(collegeDomain string) cachestore.Key {
	return cachestore.Key{Kind: KindMentorDirectory, Scope: collegeDomain}
}
