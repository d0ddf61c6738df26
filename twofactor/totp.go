package twofactor

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Config controls code shape and tolerance. Zero values fall back to the
// RFC 6238 defaults used by common authenticator apps.
type Config struct {
	Issuer string
	Digits int
	Period uint
	Skew   uint
}

// Manager wraps secret generation and window-tolerant code verification.
// Secrets are handled as base32 strings end to end; the engine decides where
// they live and when a pending secret becomes authoritative.
type Manager struct {
	config Config
}

func New(cfg Config) *Manager {
	if cfg.Issuer == "" {
		cfg.Issuer = "authkit"
	}
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	if cfg.Skew == 0 {
		cfg.Skew = 1
	}
	return &Manager{config: cfg}
}

// GenerateSecret creates a fresh shared secret for the given account label
// and returns it together with the otpauth:// provisioning URI that
// authenticator apps consume.
func (m *Manager) GenerateSecret(accountName string) (secret, provisioningURI string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: accountName,
		Period:      m.config.Period,
		Digits:      m.digits(),
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// Verify checks a submitted code against the secret, tolerating the
// configured number of time steps in either direction.
func (m *Manager) Verify(code, secret string) bool {
	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    m.config.Period,
		Skew:      m.config.Skew,
		Digits:    m.digits(),
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

func (m *Manager) digits() otp.Digits {
	if m.config.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}
