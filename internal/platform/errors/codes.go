// Package errors provides structured domain errors with machine-readable
// codes that the i18n catalog renders into user-facing messages.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Profile errors
	CodeProfileUserIDRequired  Code = "PROFILE_USER_ID_REQUIRED"
	CodeProfileEmailInvalid    Code = "PROFILE_EMAIL_INVALID"
	CodeProfileDomainRequired  Code = "PROFILE_DOMAIN_REQUIRED"
	CodeProfileRoleInvalid     Code = "PROFILE_ROLE_INVALID"
	CodeProfileSourceInvalid   Code = "PROFILE_SOURCE_INVALID"
	CodeProfileDisplayNameLong Code = "PROFILE_DISPLAY_NAME_TOO_LONG"

	// Mentorship request errors
	CodeRequestRequesterRequired Code = "REQUEST_REQUESTER_REQUIRED"
	CodeRequestMentorRequired    Code = "REQUEST_MENTOR_REQUIRED"
	CodeRequestSelfNotAllowed    Code = "REQUEST_SELF_NOT_ALLOWED"
	CodeRequestRoleNotAllowed    Code = "REQUEST_ROLE_NOT_ALLOWED"
	CodeRequestAlreadyActive     Code = "REQUEST_ALREADY_ACTIVE"
	CodeRequestInvalidTransition Code = "REQUEST_INVALID_TRANSITION"
	CodeRequestTerminalState     Code = "REQUEST_TERMINAL_STATE"
	CodeRequestPartyMismatch     Code = "REQUEST_PARTY_MISMATCH"

	// Feedback errors
	CodeFeedbackNotCompleted  Code = "FEEDBACK_REQUEST_NOT_COMPLETED"
	CodeFeedbackFieldNotOwned Code = "FEEDBACK_FIELD_NOT_OWNED"
	CodeFeedbackEmpty         Code = "FEEDBACK_EMPTY"

	// Identity errors
	CodeIdentityFetchFailed  Code = "IDENTITY_FETCH_FAILED"
	CodeIdentityNotSignedIn  Code = "IDENTITY_NOT_SIGNED_IN"
	CodeIdentityTokenInvalid Code = "IDENTITY_TOKEN_INVALID"
	CodeIdentityTokenExpired Code = "IDENTITY_TOKEN_EXPIRED"

	// Channel errors
	CodeChannelNameRequired Code = "CHANNEL_NAME_REQUIRED"
	CodeChannelOpenFailed   Code = "CHANNEL_OPEN_FAILED"

	// Sync gateway errors
	CodeSyncFrameInvalid    Code = "SYNC_FRAME_INVALID"
	CodeSyncPayloadTooLarge Code = "SYNC_PAYLOAD_TOO_LARGE"
	CodeSyncScopeDenied     Code = "SYNC_SCOPE_DENIED"
	CodeSyncRateLimited     Code = "SYNC_RATE_LIMITED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)
