package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	internalaudit "github.com/ledgertrack/authkit/internal/audit"
	internalmetrics "github.com/ledgertrack/authkit/internal/metrics"
	"github.com/ledgertrack/authkit/internal/rate"
	"github.com/ledgertrack/authkit/internal/stores"
	"github.com/ledgertrack/authkit/password"
	"github.com/ledgertrack/authkit/token"
	"github.com/ledgertrack/authkit/twofactor"

	"github.com/ledgertrack/authkit/internal"
)

// Engine is the authentication core. Construct with [Builder.Build]; all
// methods are safe for concurrent use.
type Engine struct {
	config   Config
	accounts AccountProvider
	notifier Notifier

	hasher *password.Hasher
	tokens *token.Manager
	totp   *twofactor.Manager

	refresh  *stores.RefreshRegistry
	resetOTP *stores.OTPStore
	emailOTP *stores.OTPStore
	limiter  *rate.Limiter

	audit   *internalaudit.Dispatcher
	metrics *internalmetrics.Metrics
}

// Close flushes the audit dispatcher. The engine must not be used after
// Close returns.
func (e *Engine) Close() {
	e.audit.Close()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login verifies an email/password pair. Accounts with a second factor
// enabled receive a short-lived challenge token instead of credentials; all
// other accounts get a fresh token pair, displacing any prior session.
//
// Failures surface as [ErrInvalidCredentials] regardless of whether the
// email exists, so login cannot be used to enumerate accounts.
func (e *Engine) Login(ctx context.Context, email, plainPassword string) (*LoginResult, error) {
	email = normalizeEmail(email)
	ip := clientIPFromContext(ctx)

	if err := e.limiter.CheckLogin(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditLoginRateLimited, "", ip, false, "too many attempts")
			return nil, ErrLoginRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	account, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, e.failLogin(ctx, email, ip, "unknown email")
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(plainPassword, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, e.failLogin(ctx, email, ip, "wrong password")
	}
	if !account.Active {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditLoginFailure, account.AccountID, ip, false, "account deactivated")
		return nil, ErrAccountDeactivated
	}

	if err := e.limiter.ResetLogin(ctx, email, ip); err != nil {
		logBestEffort("login throttle reset", err)
	}

	if account.TwoFactorEnabled {
		challenge, err := e.tokens.IssueChallenge(account.AccountID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.metricInc(MetricChallengeIssued)
		e.emitAudit(ctx, auditChallengeIssued, account.AccountID, ip, true, "")
		return &LoginResult{TwoFactorRequired: true, Challenge: challenge}, nil
	}

	pair, err := e.completeLogin(ctx, &account)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditLoginSuccess, account.AccountID, ip, true, "")
	return &LoginResult{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

func (e *Engine) failLogin(ctx context.Context, email, ip, reason string) error {
	if err := e.limiter.IncrementLogin(ctx, email, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		logBestEffort("login throttle increment", err)
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditLoginFailure, "", ip, false, reason)
	return ErrInvalidCredentials
}

// completeLogin bumps the account's token version, then issues the pair
// against the new version and installs the refresh hash. The bump precedes
// issuance so every token minted before this call is dead the moment the
// pair exists.
func (e *Engine) completeLogin(ctx context.Context, account *AccountRecord) (*TokenPair, error) {
	version, err := e.accounts.BumpTokenVersion(ctx, account.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	access, err := e.tokens.IssueAccess(account.AccountID, account.Email, account.Name, version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	refresh, expiresAt, err := e.tokens.IssueRefresh(account.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	record := &stores.RefreshRecord{
		TokenHash: internal.HashToken(refresh),
		ExpiresAt: expiresAt.Unix(),
	}
	if err := e.refresh.Replace(ctx, account.AccountID, record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// RedeemChallenge exchanges a pending two-factor challenge plus a TOTP code
// for a full token pair.
func (e *Engine) RedeemChallenge(ctx context.Context, challengeToken, code string) (*TokenPair, error) {
	ip := clientIPFromContext(ctx)

	claims, err := e.tokens.ParseChallenge(challengeToken)
	if err != nil {
		e.metricInc(MetricChallengeRedeemFailure)
		e.emitAudit(ctx, auditChallengeRejected, "", ip, false, "invalid challenge token")
		return nil, ErrTokenInvalid
	}

	account, err := e.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricChallengeRedeemFailure)
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !account.Active {
		return nil, ErrAccountDeactivated
	}
	if !account.TwoFactorEnabled {
		return nil, ErrTwoFactorNotEnabled
	}

	if !e.totp.Verify(code, account.TwoFactorSecret) {
		e.metricInc(MetricChallengeRedeemFailure)
		e.metricInc(MetricTwoFactorCodeRejected)
		e.emitAudit(ctx, auditChallengeRejected, account.AccountID, ip, false, "wrong code")
		return nil, ErrCodeInvalid
	}

	pair, err := e.completeLogin(ctx, &account)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricChallengeRedeemSuccess)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditChallengeRedeemed, account.AccountID, ip, true, "")
	return pair, nil
}

// Refresh rotates a refresh token: the presented token must match the
// account's single stored record, which is swapped for a new one in the same
// transaction. Presenting an already-rotated token revokes the record
// entirely and forces a fresh login.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	ip := clientIPFromContext(ctx)

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditRefreshFailure, "", ip, false, "invalid refresh token")
		return nil, ErrRefreshInvalid
	}
	accountID := claims.AccountID

	next, expiresAt, err := e.tokens.IssueRefresh(accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	nextRecord := &stores.RefreshRecord{
		TokenHash: internal.HashToken(next),
		ExpiresAt: expiresAt.Unix(),
	}

	err = e.refresh.Rotate(ctx, accountID, internal.HashToken(refreshToken), nextRecord)
	switch {
	case err == nil:
	case errors.Is(err, stores.ErrRefreshMismatch):
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditRefreshReuse, accountID, ip, false, "rotated token presented again")
		return nil, ErrRefreshInvalid
	case errors.Is(err, stores.ErrRefreshNotFound):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditRefreshFailure, accountID, ip, false, "no active session")
		return nil, ErrRefreshInvalid
	case errors.Is(err, stores.ErrRefreshRecordExpired):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditRefreshFailure, accountID, ip, false, "session expired")
		return nil, ErrRefreshExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			if revokeErr := e.refresh.Revoke(ctx, accountID); revokeErr != nil {
				logBestEffort("refresh revoke", revokeErr)
			}
			e.metricInc(MetricRefreshFailure)
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !account.Active {
		if revokeErr := e.refresh.Revoke(ctx, accountID); revokeErr != nil {
			logBestEffort("refresh revoke", revokeErr)
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditRefreshFailure, accountID, ip, false, "account deactivated")
		return nil, ErrAccountDeactivated
	}

	access, err := e.tokens.IssueAccess(account.AccountID, account.Email, account.Name, account.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditRefreshSuccess, accountID, ip, true, "")
	return &TokenPair{AccessToken: access, RefreshToken: next}, nil
}

// Authenticate verifies an access token's signature and lifetime, then
// checks its embedded token version against the live account. A stale
// version means the token was revoked by a later login, logout or password
// change.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*AuthResult, error) {
	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		e.metricInc(MetricAuthenticateRejected)
		return nil, ErrTokenInvalid
	}

	account, err := e.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricAuthenticateRejected)
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !account.Active {
		e.metricInc(MetricAuthenticateRejected)
		return nil, ErrAccountDeactivated
	}
	if claims.TokenVersion != account.TokenVersion {
		e.metricInc(MetricAuthenticateRejected)
		e.metricInc(MetricTokenVersionMismatch)
		return nil, ErrTokenRevoked
	}

	e.metricInc(MetricAuthenticateSuccess)
	return &AuthResult{
		AccountID:    account.AccountID,
		Email:        account.Email,
		Name:         account.Name,
		TokenVersion: account.TokenVersion,
	}, nil
}

// Logout revokes the account's session: the token version is bumped so
// outstanding access tokens die, and the refresh record is deleted.
func (e *Engine) Logout(ctx context.Context, accountID string) error {
	return e.revokeSessions(ctx, accountID, auditLogout, MetricLogout)
}

// LogoutAll is an alias for [Engine.Logout] kept for callers that speak in
// terms of "all devices". With a single account-keyed refresh record the two
// operations coincide.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) error {
	return e.revokeSessions(ctx, accountID, auditLogoutAll, MetricLogoutAll)
}

func (e *Engine) revokeSessions(ctx context.Context, accountID, eventType string, metric MetricID) error {
	ip := clientIPFromContext(ctx)

	if _, err := e.accounts.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := e.accounts.BumpTokenVersion(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.refresh.Revoke(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(metric)
	e.emitAudit(ctx, eventType, accountID, ip, true, "")
	return nil
}
