package authkit

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/ledgertrack/authkit/internal/audit"
	internalmetrics "github.com/ledgertrack/authkit/internal/metrics"
	"github.com/ledgertrack/authkit/internal/rate"
	"github.com/ledgertrack/authkit/internal/stores"
	"github.com/ledgertrack/authkit/password"
	"github.com/ledgertrack/authkit/token"
	"github.com/ledgertrack/authkit/twofactor"
)

// Builder assembles an Engine. Zero-value fields picked up from
// [DefaultConfig]; Redis and an AccountProvider are mandatory.
type Builder struct {
	config    Config
	hasConfig bool
	redis     redis.UniversalClient
	accounts  AccountProvider
	notifier  Notifier
	auditSink AuditSink
}

// New starts a builder chain.
func New() *Builder {
	return &Builder{}
}

// WithConfig replaces the default configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	b.hasConfig = true
	return b
}

// WithRedis supplies the Redis client backing refresh rotation, OTP storage
// and login throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountProvider supplies the durable account store.
func (b *Builder) WithAccountProvider(provider AccountProvider) *Builder {
	b.accounts = provider
	return b
}

// WithNotifier supplies the email/SMS delivery hook. Defaults to
// [NoopNotifier] when omitted.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink supplies the destination for audit events. Only consulted
// when Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, wires all subsystems and returns a
// ready Engine.
func (b *Builder) Build() (*Engine, error) {
	cfg := b.config
	if !b.hasConfig {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}
	if b.redis == nil {
		return nil, fmt.Errorf("%w: redis client is required", ErrEngineNotReady)
	}
	if b.accounts == nil {
		return nil, fmt.Errorf("%w: account provider is required", ErrEngineNotReady)
	}

	tokens, err := token.NewManager(token.Config{
		AccessSecret:    cfg.Token.AccessSecret,
		RefreshSecret:   cfg.Token.RefreshSecret,
		ChallengeSecret: cfg.Token.ChallengeSecret,
		AccessTTL:       cfg.Token.AccessTTL,
		RefreshTTL:      cfg.Token.RefreshTTL,
		ChallengeTTL:    cfg.Token.ChallengeTTL,
		Issuer:          cfg.Token.Issuer,
		Leeway:          cfg.Token.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = NoopNotifier{}
	}

	prefix := cfg.Redis.KeyPrefix
	if prefix == "" {
		prefix = "ak"
	}

	e := &Engine{
		config:   cfg,
		accounts: b.accounts,
		notifier: notifier,
		hasher:   hasher,
		tokens:   tokens,
		totp: twofactor.New(twofactor.Config{
			Issuer: cfg.TwoFactor.Issuer,
			Digits: cfg.TwoFactor.Digits,
			Period: cfg.TwoFactor.Period,
			Skew:   cfg.TwoFactor.Skew,
		}),
		refresh:  stores.NewRefreshRegistry(b.redis, prefix+":rt"),
		resetOTP: stores.NewOTPStore(b.redis, prefix+":pr"),
		emailOTP: stores.NewOTPStore(b.redis, prefix+":ev"),
		limiter: rate.New(b.redis, rate.Config{
			EnableIPThrottle: cfg.Security.EnableIPThrottle,
			MaxLoginAttempts: cfg.Security.MaxLoginAttempts,
			LoginCooldown:    cfg.Security.LoginCooldown,
		}, prefix+":lr"),
		metrics: internalmetrics.New(internalmetrics.Config{Enabled: cfg.Metrics.Enabled}),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}
	return e, nil
}
