package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// PurposeTwoFactor is the purpose claim carried by login challenge tokens.
const PurposeTwoFactor = "2fa"

// ErrTokenInvalid covers every parse failure: bad signature, expired,
// malformed, wrong purpose, wrong secret class.
var ErrTokenInvalid = errors.New("invalid token")

// Config carries one signing secret and lifetime per token class. Classes
// never share a secret, so an access token can never be replayed as a
// challenge or refresh token.
type Config struct {
	AccessSecret    []byte
	RefreshSecret   []byte
	ChallengeSecret []byte

	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	ChallengeTTL time.Duration

	Issuer string
	Leeway time.Duration
}

// Manager mints and verifies the three token classes. It performs no I/O;
// liveness checks against account state happen one layer up.
type Manager struct {
	config Config
}

// AccessClaims is the stateless identity payload of an access token. The
// embedded token-version snapshot is the only revocation hook.
type AccessClaims struct {
	AccountID    string `json:"uid"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
	TokenVersion int64  `json:"tv"`
	jwt.RegisteredClaims
}

// RefreshClaims identifies the account a refresh token belongs to. The
// registered ID (jti) makes every minted token unique even within one
// second, so rotation always produces a distinct value.
type RefreshClaims struct {
	AccountID string `json:"uid"`
	jwt.RegisteredClaims
}

// ChallengeClaims is the pre-auth payload issued after a correct password
// when a second factor is still owed.
type ChallengeClaims struct {
	AccountID string `json:"uid"`
	Purpose   string `json:"purpose"`
	jwt.RegisteredClaims
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 || len(cfg.ChallengeSecret) == 0 {
		return nil, errors.New("all three token class secrets are required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.ChallengeTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// IssueAccess mints a signed access token from the given identity snapshot.
func (m *Manager) IssueAccess(accountID, email, name string, tokenVersion int64) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		AccountID:    accountID,
		Email:        email,
		Name:         name,
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.AccessSecret)
}

// ParseAccess verifies and decodes an access token. It does not consult
// storage: a decoded token may still be stale against the live account.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims, m.config.AccessSecret); err != nil {
		return nil, err
	}
	if claims.AccountID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// IssueRefresh mints a refresh token and returns its expiry so the caller
// can persist the registry record with the same deadline.
func (m *Manager) IssueRefresh(accountID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.RefreshTTL)
	claims := RefreshClaims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.RefreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseRefresh verifies a refresh token's signature and expiry. Whether the
// token is still the account's active one is the registry's question.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims, m.config.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.AccountID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// IssueChallenge mints the short-lived pre-auth token returned when a
// password check succeeds but a second factor is enabled.
func (m *Manager) IssueChallenge(accountID string) (string, error) {
	now := time.Now()
	claims := ChallengeClaims{
		AccountID: accountID,
		Purpose:   PurposeTwoFactor,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.ChallengeTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.ChallengeSecret)
}

// ParseChallenge verifies a challenge token and rejects any purpose other
// than the second-factor login flow.
func (m *Manager) ParseChallenge(tokenStr string) (*ChallengeClaims, error) {
	claims := &ChallengeClaims{}
	if err := m.parse(tokenStr, claims, m.config.ChallengeSecret); err != nil {
		return nil, err
	}
	if claims.AccountID == "" || claims.Purpose != PurposeTwoFactor {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return ErrTokenInvalid
	}
	return nil
}
