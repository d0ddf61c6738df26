package authkit

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/ledgertrack/authkit/internal/audit"
	internalmetrics "github.com/ledgertrack/authkit/internal/metrics"
)

// AccountRecord is the full account document exchanged with the
// [AccountProvider]. The engine never caches records; every operation
// re-reads through the provider.
type AccountRecord struct {
	AccountID    string
	Name         string
	Email        string
	Phone        string
	PasswordHash string

	Active        bool
	TokenVersion  int64
	EmailVerified bool

	TwoFactorEnabled       bool
	TwoFactorSecret        string
	PendingTwoFactorSecret string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateAccountInput is passed to [AccountProvider.Create]. PasswordHash is
// already derived; providers never see plaintext passwords.
type CreateAccountInput struct {
	Name         string
	Email        string
	Phone        string
	PasswordHash string
}

// AccountProvider is the storage interface callers implement to integrate
// the engine with their account database. Every method must behave as an
// atomic single-document operation; BumpTokenVersion in particular must be
// an atomic increment returning the post-increment value.
//
// Lookup methods return [ErrAccountNotFound] for missing accounts. Create
// returns [ErrProviderDuplicateEmail] or [ErrProviderDuplicatePhone] on
// uniqueness violations.
type AccountProvider interface {
	Create(ctx context.Context, input CreateAccountInput) (AccountRecord, error)
	GetByID(ctx context.Context, accountID string) (AccountRecord, error)
	GetByEmail(ctx context.Context, email string) (AccountRecord, error)
	GetByPhone(ctx context.Context, phone string) (AccountRecord, error)

	UpdatePasswordHash(ctx context.Context, accountID, newHash string) error
	BumpTokenVersion(ctx context.Context, accountID string) (int64, error)
	SetActive(ctx context.Context, accountID string, active bool) error

	SetPendingTwoFactorSecret(ctx context.Context, accountID, secret string) error
	EnableTwoFactor(ctx context.Context, accountID, secret string) error
	DisableTwoFactor(ctx context.Context, accountID string) error

	UpdateEmail(ctx context.Context, accountID, newEmail string) error
	SetEmailVerified(ctx context.Context, accountID string) error

	Delete(ctx context.Context, accountID string) error
}

// Notifier delivers out-of-band messages. Delivery is best effort: the
// engine logs failures and never rolls back state already committed, so
// implementations should not block longer than their own transport demands.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	SendSMS(ctx context.Context, to, message string) error
}

// NoopNotifier discards all messages. Used when no Notifier is configured.
type NoopNotifier struct{}

func (NoopNotifier) SendEmail(context.Context, string, string, string) error { return nil }
func (NoopNotifier) SendSMS(context.Context, string, string) error           { return nil }

// LoginResult is returned by [Engine.Login]. Either the token pair is
// populated, or TwoFactorRequired is set and Challenge carries the pre-auth
// token to redeem together with a TOTP code.
type LoginResult struct {
	AccessToken  string
	RefreshToken string

	TwoFactorRequired bool
	Challenge         string
}

// TokenPair is a freshly issued access+refresh credential pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthResult is the decoded identity of a verified access token, already
// checked against the live account's token version.
type AuthResult struct {
	AccountID    string
	Email        string
	Name         string
	TokenVersion int64
}

// TwoFactorEnrollment is returned by [Engine.BeginTwoFactorEnrollment]. The
// secret is pending until a first code is confirmed.
type TwoFactorEnrollment struct {
	Secret          string
	ProvisioningURI string
}

// RegisterResult is returned by [Engine.Register].
type RegisterResult struct {
	AccountID string
	Email     string
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] writing one JSON event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific engine counter.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess               = internalmetrics.MetricLoginSuccess
	MetricLoginFailure               = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited           = internalmetrics.MetricLoginRateLimited
	MetricChallengeIssued            = internalmetrics.MetricChallengeIssued
	MetricChallengeRedeemSuccess     = internalmetrics.MetricChallengeRedeemSuccess
	MetricChallengeRedeemFailure     = internalmetrics.MetricChallengeRedeemFailure
	MetricRefreshSuccess             = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure             = internalmetrics.MetricRefreshFailure
	MetricRefreshReuseDetected       = internalmetrics.MetricRefreshReuseDetected
	MetricAuthenticateSuccess        = internalmetrics.MetricAuthenticateSuccess
	MetricAuthenticateRejected       = internalmetrics.MetricAuthenticateRejected
	MetricTokenVersionMismatch       = internalmetrics.MetricTokenVersionMismatch
	MetricLogout                     = internalmetrics.MetricLogout
	MetricLogoutAll                  = internalmetrics.MetricLogoutAll
	MetricAccountCreated             = internalmetrics.MetricAccountCreated
	MetricAccountCreationDuplicate   = internalmetrics.MetricAccountCreationDuplicate
	MetricAccountDeactivated         = internalmetrics.MetricAccountDeactivated
	MetricAccountDeleted             = internalmetrics.MetricAccountDeleted
	MetricPasswordChangeSuccess      = internalmetrics.MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld   = internalmetrics.MetricPasswordChangeInvalidOld
	MetricPasswordResetRequest       = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetSuccess       = internalmetrics.MetricPasswordResetSuccess
	MetricPasswordResetFailure       = internalmetrics.MetricPasswordResetFailure
	MetricEmailOTPSent               = internalmetrics.MetricEmailOTPSent
	MetricEmailVerified              = internalmetrics.MetricEmailVerified
	MetricEmailChanged               = internalmetrics.MetricEmailChanged
	MetricTwoFactorEnrollmentStarted = internalmetrics.MetricTwoFactorEnrollmentStarted
	MetricTwoFactorEnabled           = internalmetrics.MetricTwoFactorEnabled
	MetricTwoFactorDisabled          = internalmetrics.MetricTwoFactorDisabled
	MetricTwoFactorCodeRejected      = internalmetrics.MetricTwoFactorCodeRejected
	MetricNotifyFailure              = internalmetrics.MetricNotifyFailure
)

// Metrics holds the engine's atomic counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot
