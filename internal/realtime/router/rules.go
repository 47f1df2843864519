package router

import (
	"github.com/campuslink/campuslink/internal/realtime/cachestore"
	"github.com/campuslink/campuslink/internal/realtime/change"
)

// Viewer describes the consumer a router instance serves. Targeted rules
// invalidate only this viewer's entries; coarse rules invalidate the shared
// per-domain discovery entries.
type Viewer struct {
	UserID        string
	CollegeDomain string
}

// NewForViewer creates a router carrying the standard rule set for one
// signed-in consumer.
func NewForViewer(viewer Viewer) *Router {
	r := New()
	r.AddProfileRule(IdentitySnapshotRule())
	r.AddProfileRule(MentorDirectoryRule(viewer.CollegeDomain))
	r.AddRequestRule(SelfRequestsRule(viewer.UserID))
	return r
}

// IdentitySnapshotRule invalidates a user's identity snapshot when a profile
// change touches an identity-relevant field. Inserts and deletes always
// qualify; updates are diffed field by field.
func IdentitySnapshotRule() ProfileRule {
	return ProfileRule{
		Match: func(e change.ProfileEvent) bool {
			if e.Operation == change.OperationUpdate {
				return IdentityRelevantChange(e.Before, e.After)
			}
			return true
		},
		Keys: func(e change.ProfileEvent) []cachestore.Key {
			record := e.After
			if record == nil {
				record = e.Before
			}
			if record == nil || record.UserID == "" {
				return nil
			}
			return []cachestore.Key{IdentityKey(record.UserID)}
		},
	}
}

// MentorDirectoryRule invalidates the shared per-domain mentor directory for
// changes scoped to collegeDomain. The channel feeding this rule is opened
// once per domain, not once per viewer, to bound channel count. Updates that
// change nothing identity-relevant (role, verification, domain) leave the
// directory alone.
func MentorDirectoryRule(collegeDomain string) ProfileRule {
	return ProfileRule{
		Match: func(e change.ProfileEvent) bool {
			if collegeDomain == "" || e.ScopeKey != collegeDomain {
				return false
			}
			if e.Operation == change.OperationUpdate {
				return IdentityRelevantChange(e.Before, e.After)
			}
			return true
		},
		Keys: func(e change.ProfileEvent) []cachestore.Key {
			return []cachestore.Key{MentorDirectoryKey(collegeDomain)}
		},
	}
}

// SelfRequestsRule invalidates the viewer's own request list when a request
// involving the viewer changes. Other users' lists are untouched.
func SelfRequestsRule(viewerUserID string) RequestRule {
	return RequestRule{
		Match: func(e change.RequestEvent) bool {
			if viewerUserID == "" {
				return false
			}
			return requestInvolves(e.Before, viewerUserID) || requestInvolves(e.After, viewerUserID)
		},
		Keys: func(e change.RequestEvent) []cachestore.Key {
			return []cachestore.Key{RequestsKey(viewerUserID)}
		},
	}
}

func requestInvolves(record *change.RequestRecord, userID string) bool {
	if record == nil {
		return false
	}
	return record.RequesterID == userID || record.MentorID == userID
}
