package protocol

// Wire error kinds, surfaced as {status:0, error:<kind>}. The strings
// are part of the client protocol and must not change.
const (
	ErrKindVersionFail       = "version-fail"
	ErrKindUsernameTaken     = "username_taken"
	ErrKindEmailTaken        = "email_taken"
	ErrKindSteamIDTaken      = "steam-id-taken"
	ErrKindEmailInvalid      = "email_invalid"
	ErrKindUserDoesNotExist  = "user_does_not_exist"
	ErrKindEmailDoesNotMatch = "email_does_not_match"
	ErrKindExpiredCode       = "expired_code"
	ErrKindWrongCode         = "wrong_code"
	ErrKindUserNotFound      = "user-not-found"
	ErrKindAuthorizeFail     = "authorize-fail"
	ErrKindUserOnlineFail    = "user-online-fail"
	ErrKindConnectionFail    = "connection-fail"
	ErrKindGetStatsFail      = "get-stats-fail"
	ErrKindInvalidPrice      = "invalid-price"
	ErrKindGeneric           = "error"
)
