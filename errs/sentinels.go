package errs

var (
	ErrUnauthorized = New(CodeUnauthenticated, "UNAUTHORIZED", "invalid or expired token")

	ErrMissingReceiver    = New(CodeInvalidArgument, "MISSING_RECEIVER", "receiver is required")
	ErrSelfMessage        = New(CodeInvalidArgument, "SELF_MESSAGE", "cannot message yourself")
	ErrEmptyPayload       = New(CodeInvalidArgument, "EMPTY_PAYLOAD", "message payload is required")
	ErrUnknownPayload     = New(CodeInvalidArgument, "UNKNOWN_PAYLOAD", "unknown payload type")
	ErrEmptyText          = New(CodeInvalidArgument, "EMPTY_TEXT", "message text cannot be empty")
	ErrMalformedEncrypted = New(CodeInvalidArgument, "MALFORMED_ENCRYPTED", "ciphertext and nonce are required")
	ErrMissingVoiceFile   = New(CodeInvalidArgument, "MISSING_VOICE_FILE", "voice file is required")
	ErrInvalidDuration    = New(CodeInvalidArgument, "INVALID_DURATION", "voice duration must not be negative")
	ErrForeignAttachment  = New(CodeInvalidArgument, "FOREIGN_ATTACHMENT", "voice attachment does not belong to sender")
	ErrPlaintextForbidden = New(CodeInvalidArgument, "PLAINTEXT_FORBIDDEN", "plaintext messages are disabled, send an encrypted payload")
	ErrInvalidAudio       = New(CodeInvalidArgument, "INVALID_AUDIO", "only audio files are accepted")
	ErrVoiceTooLarge      = New(CodeInvalidArgument, "VOICE_TOO_LARGE", "voice file exceeds the size limit")
	ErrMissingPublicKey   = New(CodeInvalidArgument, "MISSING_PUBLIC_KEY", "public key is required")
	ErrInvalidPushToken   = New(CodeInvalidArgument, "INVALID_PUSH_TOKEN", "push token is malformed")
	ErrSelfBlock          = New(CodeInvalidArgument, "SELF_BLOCK", "cannot block yourself")
	ErrMalformedRequest   = New(CodeInvalidArgument, "MALFORMED_REQUEST", "request body could not be parsed")

	ErrRecipientNotE2EE = New(CodeFailedPrecondition, "RECIPIENT_NOT_E2EE_READY", "recipient has not enabled end-to-end encryption")

	ErrBlockedByRecipient = New(CodePermissionDenied, "BLOCKED_BY_RECIPIENT", "you have been blocked by this user")
	ErrYouBlocked         = New(CodePermissionDenied, "YOU_BLOCKED_USER", "you blocked this user")
	ErrNotMessageOwner    = New(CodePermissionDenied, "NOT_MESSAGE_OWNER", "only the sender can delete this message")

	ErrUserNotFound    = New(CodeNotFound, "USER_NOT_FOUND", "user not found")
	ErrMessageNotFound = New(CodeNotFound, "MESSAGE_NOT_FOUND", "message not found")

	ErrRateLimited = New(CodeResourceExhausted, "RATE_LIMITED", "too many events, slow down")
)
