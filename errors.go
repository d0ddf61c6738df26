package authkit

import "errors"

var (
	// ErrInvalidCredentials is returned for both an unknown email and a wrong
	// password so login cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is returned when the failed-login budget for an
	// identifier or IP is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")

	// ErrEmailExists is returned by Register when the email is taken.
	ErrEmailExists = errors.New("email already registered")
	// ErrPhoneExists is returned by Register when the phone number is taken.
	ErrPhoneExists = errors.New("phone number already registered")
	// ErrEmailInUse is returned by ChangeEmail when the target address
	// belongs to another account.
	ErrEmailInUse = errors.New("email already in use")

	// ErrAccountNotFound is returned by flows that address an account
	// directly (reset, email verification, lifecycle operations).
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountDeactivated is returned when an operation requires an active
	// account.
	ErrAccountDeactivated = errors.New("account deactivated")
	// ErrAccountStateConflict is returned when activating an already-active
	// account or deactivating an already-deactivated one.
	ErrAccountStateConflict = errors.New("account already in requested state")

	// ErrTokenInvalid covers missing, malformed, expired, or
	// wrong-signature tokens of any class, and challenge tokens with the
	// wrong purpose.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenRevoked is returned by Authenticate when the token's version
	// snapshot no longer matches the account, i.e. the token was issued
	// before a logout, login, or password change elsewhere.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrRefreshInvalid signals a refresh token that is not the account's
	// active one. Presenting a rotated-away token is a replay indicator and
	// revokes the account's session as a precaution.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshExpired signals a refresh token past its lifetime; the
	// account's records are purged and a full re-login is required.
	ErrRefreshExpired = errors.New("refresh token expired")

	// ErrTwoFactorEnabled is returned when enrollment is requested but the
	// second factor is already enabled.
	ErrTwoFactorEnabled = errors.New("two-factor authentication already enabled")
	// ErrTwoFactorNotEnabled is returned when an operation requires an
	// enabled second factor.
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication not enabled")
	// ErrEnrollmentNotStarted is returned by ConfirmTwoFactorEnrollment when
	// no pending secret exists.
	ErrEnrollmentNotStarted = errors.New("two-factor enrollment not started")

	// ErrCodeInvalid covers wrong or expired one-time codes: TOTP codes and
	// emailed/SMSed numeric OTPs alike.
	ErrCodeInvalid = errors.New("invalid one-time code")
	// ErrCodeAttemptsExceeded is returned once the attempt cap for an
	// outstanding OTP is reached; the code is discarded.
	ErrCodeAttemptsExceeded = errors.New("one-time code attempts exceeded")

	// ErrPasswordPolicy is returned when a new password fails validation.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a password change supplies the
	// current password as the new one.
	ErrPasswordReuse = errors.New("new password must differ from current password")

	// ErrStoreUnavailable wraps storage and signing infrastructure failures,
	// including context cancellation surfaced by the backing stores.
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrEngineNotReady is returned when a method is called on an engine
	// that was not constructed through Builder.Build.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrProviderDuplicateEmail must be returned by AccountProvider.Create
	// on a unique-email violation.
	ErrProviderDuplicateEmail = errors.New("provider duplicate email")
	// ErrProviderDuplicatePhone must be returned by AccountProvider.Create
	// on a unique-phone violation.
	ErrProviderDuplicatePhone = errors.New("provider duplicate phone")
)
