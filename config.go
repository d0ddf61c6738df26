package authkit

import (
	"errors"
	"time"
)

// Config is the engine's complete tuning surface. Construct with
// [DefaultConfig] and override fields before passing to [Builder.WithConfig];
// the zero value does not validate.
type Config struct {
	Token             TokenConfig
	Password          PasswordConfig
	TwoFactor         TwoFactorConfig
	PasswordReset     PasswordResetConfig
	EmailVerification EmailVerificationConfig
	Security          SecurityConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
	Redis             RedisConfig
}

// TokenConfig carries one signing secret and lifetime per token class.
// Secrets must be distinct: a token of one class must never verify under
// another class's key.
type TokenConfig struct {
	AccessSecret    []byte
	RefreshSecret   []byte
	ChallengeSecret []byte

	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	ChallengeTTL time.Duration

	Issuer string
	Leeway time.Duration
}

// PasswordConfig holds argon2id cost parameters.
type PasswordConfig struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// TwoFactorConfig shapes generated TOTP secrets and the verification
// tolerance window.
type TwoFactorConfig struct {
	Issuer string
	Digits int
	Period uint
	Skew   uint
}

// PasswordResetConfig controls the SMS OTP reset flow.
type PasswordResetConfig struct {
	Enabled     bool
	OTPDigits   int
	OTPTTL      time.Duration
	MaxAttempts int
}

// EmailVerificationConfig controls the email OTP verification and
// email-change flows.
type EmailVerificationConfig struct {
	Enabled     bool
	OTPDigits   int
	OTPTTL      time.Duration
	MaxAttempts int
}

// SecurityConfig holds the login throttle budget. A zero MaxLoginAttempts
// disables throttling.
type SecurityConfig struct {
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	EnableIPThrottle bool
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// RedisConfig namespaces the engine's keys so several deployments can share
// one Redis.
type RedisConfig struct {
	KeyPrefix string
}

// DefaultConfig returns the baseline configuration: 1h access tokens, 7d
// refresh tokens, 5m challenges, 6-digit 15-minute OTPs, and moderate
// argon2id costs. Signing secrets are intentionally absent and must be set
// by the caller.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:    time.Hour,
			RefreshTTL:   7 * 24 * time.Hour,
			ChallengeTTL: 5 * time.Minute,
			Issuer:       "authkit",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		TwoFactor: TwoFactorConfig{
			Issuer: "authkit",
			Digits: 6,
			Period: 30,
			Skew:   1,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:     true,
			OTPDigits:   6,
			OTPTTL:      15 * time.Minute,
			MaxAttempts: 5,
		},
		EmailVerification: EmailVerificationConfig{
			Enabled:     true,
			OTPDigits:   6,
			OTPTTL:      15 * time.Minute,
			MaxAttempts: 5,
		},
		Security: SecurityConfig{
			MaxLoginAttempts: 0,
			LoginCooldown:    time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{Enabled: true},
		Redis:   RedisConfig{KeyPrefix: "ak"},
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c Config) Validate() error {
	if len(c.Token.AccessSecret) < 16 ||
		len(c.Token.RefreshSecret) < 16 ||
		len(c.Token.ChallengeSecret) < 16 {
		return errors.New("token secrets must be at least 16 bytes each")
	}
	if sameSecret(c.Token.AccessSecret, c.Token.RefreshSecret) ||
		sameSecret(c.Token.AccessSecret, c.Token.ChallengeSecret) ||
		sameSecret(c.Token.RefreshSecret, c.Token.ChallengeSecret) {
		return errors.New("token classes must not share a secret")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 || c.Token.ChallengeTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if c.PasswordReset.Enabled {
		if c.PasswordReset.OTPTTL <= 0 || c.PasswordReset.OTPDigits < 4 {
			return errors.New("invalid password reset OTP configuration")
		}
	}
	if c.EmailVerification.Enabled {
		if c.EmailVerification.OTPTTL <= 0 || c.EmailVerification.OTPDigits < 4 {
			return errors.New("invalid email verification OTP configuration")
		}
	}
	if c.Security.MaxLoginAttempts > 0 && c.Security.LoginCooldown <= 0 {
		return errors.New("login throttle requires a positive cooldown")
	}
	return nil
}

func sameSecret(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return len(a) > 0
}
