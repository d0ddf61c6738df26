package authkit

import (
	"context"
	"errors"
	"fmt"
)

// BeginTwoFactorEnrollment generates a fresh TOTP secret and stores it as
// pending. The secret has no effect on login until a first code is confirmed
// with [Engine.ConfirmTwoFactorEnrollment]; calling Begin again simply
// replaces the pending secret.
func (e *Engine) BeginTwoFactorEnrollment(ctx context.Context, accountID string) (*TwoFactorEnrollment, error) {
	ip := clientIPFromContext(ctx)

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if account.TwoFactorEnabled {
		return nil, ErrTwoFactorEnabled
	}

	secret, uri, err := e.totp.GenerateSecret(account.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.accounts.SetPendingTwoFactorSecret(ctx, accountID, secret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricTwoFactorEnrollmentStarted)
	e.emitAudit(ctx, auditTwoFactorStarted, accountID, ip, true, "")
	return &TwoFactorEnrollment{Secret: secret, ProvisioningURI: uri}, nil
}

// ConfirmTwoFactorEnrollment proves possession of the pending secret with a
// live code and promotes it to the account's authoritative secret. From this
// point logins return a challenge instead of a token pair.
func (e *Engine) ConfirmTwoFactorEnrollment(ctx context.Context, accountID, code string) error {
	ip := clientIPFromContext(ctx)

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if account.TwoFactorEnabled {
		return ErrTwoFactorEnabled
	}
	if account.PendingTwoFactorSecret == "" {
		return ErrEnrollmentNotStarted
	}

	if !e.totp.Verify(code, account.PendingTwoFactorSecret) {
		e.metricInc(MetricTwoFactorCodeRejected)
		e.emitAudit(ctx, auditTwoFactorRejected, accountID, ip, false, "wrong code during enrollment")
		return ErrCodeInvalid
	}

	if err := e.accounts.EnableTwoFactor(ctx, accountID, account.PendingTwoFactorSecret); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricTwoFactorEnabled)
	e.emitAudit(ctx, auditTwoFactorEnabled, accountID, ip, true, "")
	return nil
}

// DisableTwoFactor turns the second factor off. A live code is required so a
// stolen access token alone cannot weaken the account.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID, code string) error {
	ip := clientIPFromContext(ctx)

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !account.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}

	if !e.totp.Verify(code, account.TwoFactorSecret) {
		e.metricInc(MetricTwoFactorCodeRejected)
		e.emitAudit(ctx, auditTwoFactorRejected, accountID, ip, false, "wrong code during disable")
		return ErrCodeInvalid
	}

	if err := e.accounts.DisableTwoFactor(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricTwoFactorDisabled)
	e.emitAudit(ctx, auditTwoFactorDisabled, accountID, ip, true, "")
	return nil
}
