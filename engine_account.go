package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledgertrack/authkit/password"
)

// Register creates an account. The password is hashed before the provider
// ever sees it. When email verification is enabled, a verification OTP is
// sent best effort; its failure does not undo the registration.
func (e *Engine) Register(ctx context.Context, input CreateAccountInput, plainPassword string) (*RegisterResult, error) {
	ip := clientIPFromContext(ctx)

	input.Email = normalizeEmail(input.Email)
	input.Name = strings.TrimSpace(input.Name)
	if input.Email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidCredentials)
	}

	hash, err := e.hasher.Hash(plainPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			return nil, ErrPasswordPolicy
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	input.PasswordHash = hash

	account, err := e.accounts.Create(ctx, input)
	if err != nil {
		switch {
		case errors.Is(err, ErrProviderDuplicateEmail):
			e.metricInc(MetricAccountCreationDuplicate)
			return nil, ErrEmailExists
		case errors.Is(err, ErrProviderDuplicatePhone):
			e.metricInc(MetricAccountCreationDuplicate)
			return nil, ErrPhoneExists
		default:
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditAccountCreated, account.AccountID, ip, true, "")

	if e.config.EmailVerification.Enabled {
		if err := e.sendEmailOTP(ctx, &account, account.Email); err != nil {
			logBestEffort("verification email", err)
			e.metricInc(MetricNotifyFailure)
		}
	}

	return &RegisterResult{AccountID: account.AccountID, Email: account.Email}, nil
}

// ChangePassword replaces the account's password after verifying the current
// one. Success revokes every outstanding credential: the token version is
// bumped and the refresh record deleted, so all other devices must log in
// again with the new password.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	ip := clientIPFromContext(ctx)

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	ok, err := e.hasher.Verify(oldPassword, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditPasswordChanged, accountID, ip, false, "wrong current password")
		return ErrInvalidCredentials
	}

	if oldPassword == newPassword {
		return ErrPasswordReuse
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			return ErrPasswordPolicy
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.accounts.UpdatePasswordHash(ctx, accountID, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := e.accounts.BumpTokenVersion(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.refresh.Revoke(ctx, accountID); err != nil {
		logBestEffort("refresh revoke", err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditPasswordChanged, accountID, ip, true, "")
	return nil
}

// DeactivateAccount suspends the account and revokes all its credentials.
// The record remains and can be re-enabled with [Engine.ActivateAccount].
func (e *Engine) DeactivateAccount(ctx context.Context, accountID string) error {
	ip := clientIPFromContext(ctx)

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !account.Active {
		return ErrAccountStateConflict
	}

	if err := e.accounts.SetActive(ctx, accountID, false); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, err := e.accounts.BumpTokenVersion(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.refresh.Revoke(ctx, accountID); err != nil {
		logBestEffort("refresh revoke", err)
	}

	e.metricInc(MetricAccountDeactivated)
	e.emitAudit(ctx, auditAccountDeactivated, accountID, ip, true, "")
	return nil
}

// ActivateAccount re-enables a previously deactivated account. Credentials
// revoked at deactivation stay revoked; the account must log in anew.
func (e *Engine) ActivateAccount(ctx context.Context, accountID string) error {
	ip := clientIPFromContext(ctx)

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if account.Active {
		return ErrAccountStateConflict
	}

	if err := e.accounts.SetActive(ctx, accountID, true); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, auditAccountActivated, accountID, ip, true, "")
	return nil
}

// DeleteAccount removes the account and every piece of engine state keyed to
// it: refresh record and any outstanding OTPs.
func (e *Engine) DeleteAccount(ctx context.Context, accountID string) error {
	ip := clientIPFromContext(ctx)

	if err := e.accounts.Delete(ctx, accountID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.refresh.Revoke(ctx, accountID); err != nil {
		logBestEffort("refresh revoke", err)
	}
	if err := e.resetOTP.Clear(ctx, accountID); err != nil {
		logBestEffort("reset otp clear", err)
	}
	if err := e.emailOTP.Clear(ctx, accountID); err != nil {
		logBestEffort("email otp clear", err)
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditAccountDeleted, accountID, ip, true, "")
	return nil
}
