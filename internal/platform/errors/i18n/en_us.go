package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeProfileUserIDRequired  = "PROFILE_USER_ID_REQUIRED"
	CodeProfileEmailInvalid    = "PROFILE_EMAIL_INVALID"
	CodeProfileDomainRequired  = "PROFILE_DOMAIN_REQUIRED"
	CodeProfileRoleInvalid     = "PROFILE_ROLE_INVALID"
	CodeProfileSourceInvalid   = "PROFILE_SOURCE_INVALID"
	CodeProfileDisplayNameLong = "PROFILE_DISPLAY_NAME_TOO_LONG"

	CodeRequestRequesterRequired = "REQUEST_REQUESTER_REQUIRED"
	CodeRequestMentorRequired    = "REQUEST_MENTOR_REQUIRED"
	CodeRequestSelfNotAllowed    = "REQUEST_SELF_NOT_ALLOWED"
	CodeRequestRoleNotAllowed    = "REQUEST_ROLE_NOT_ALLOWED"
	CodeRequestAlreadyActive     = "REQUEST_ALREADY_ACTIVE"
	CodeRequestInvalidTransition = "REQUEST_INVALID_TRANSITION"
	CodeRequestTerminalState     = "REQUEST_TERMINAL_STATE"
	CodeRequestPartyMismatch     = "REQUEST_PARTY_MISMATCH"

	CodeFeedbackNotCompleted  = "FEEDBACK_REQUEST_NOT_COMPLETED"
	CodeFeedbackFieldNotOwned = "FEEDBACK_FIELD_NOT_OWNED"
	CodeFeedbackEmpty         = "FEEDBACK_EMPTY"

	CodeIdentityFetchFailed  = "IDENTITY_FETCH_FAILED"
	CodeIdentityNotSignedIn  = "IDENTITY_NOT_SIGNED_IN"
	CodeIdentityTokenInvalid = "IDENTITY_TOKEN_INVALID"
	CodeIdentityTokenExpired = "IDENTITY_TOKEN_EXPIRED"

	CodeChannelNameRequired = "CHANNEL_NAME_REQUIRED"
	CodeChannelOpenFailed   = "CHANNEL_OPEN_FAILED"

	CodeSyncFrameInvalid    = "SYNC_FRAME_INVALID"
	CodeSyncPayloadTooLarge = "SYNC_PAYLOAD_TOO_LARGE"
	CodeSyncScopeDenied     = "SYNC_SCOPE_DENIED"
	CodeSyncRateLimited     = "SYNC_RATE_LIMITED"

	CodeNotFound = "NOT_FOUND"
)

func init() {
	Register("en-US", map[Code]string{
		CodeProfileUserIDRequired:  "A user id is required.",
		CodeProfileEmailInvalid:    "The email address is not valid for a campus account.",
		CodeProfileDomainRequired:  "A college domain is required.",
		CodeProfileRoleInvalid:     "The profile role is not recognized.",
		CodeProfileSourceInvalid:   "The profile source is not recognized.",
		CodeProfileDisplayNameLong: "The display name is too long.",

		CodeRequestRequesterRequired: "A requester is required.",
		CodeRequestMentorRequired:    "A mentor is required.",
		CodeRequestSelfNotAllowed:    "You cannot send a mentorship request to yourself.",
		CodeRequestRoleNotAllowed:    "Your current role cannot create mentorship requests.",
		CodeRequestAlreadyActive:     "There is already an active mentorship request between you and {{.mentor}}.",
		CodeRequestInvalidTransition: "This request cannot move from {{.from}} to {{.to}}.",
		CodeRequestTerminalState:     "This request is already {{.status}} and cannot change.",
		CodeRequestPartyMismatch:     "Only the participants of this request can act on it.",

		CodeFeedbackNotCompleted:  "Feedback can only be submitted for completed mentorships.",
		CodeFeedbackFieldNotOwned: "You can only submit your own side of the feedback.",
		CodeFeedbackEmpty:         "Feedback cannot be empty.",

		CodeIdentityFetchFailed:  "We could not refresh your profile. Showing the last known details.",
		CodeIdentityNotSignedIn:  "You are not signed in.",
		CodeIdentityTokenInvalid: "Your session is no longer valid. Please sign in again.",
		CodeIdentityTokenExpired: "Your session has expired. Please sign in again.",

		CodeChannelNameRequired: "A channel name is required.",
		CodeChannelOpenFailed:   "The realtime connection is unavailable right now.",

		CodeSyncFrameInvalid:    "The sync frame could not be read.",
		CodeSyncPayloadTooLarge: "The sync frame payload is too large.",
		CodeSyncScopeDenied:     "You do not have access to this channel.",
		CodeSyncRateLimited:     "Too many sync frames. Slow down and reconnect.",

		CodeNotFound: "The requested record was not found.",
	})
}
