package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgertrack/authkit/internal"
	"github.com/ledgertrack/authkit/internal/stores"
	"github.com/ledgertrack/authkit/password"
)

// RequestPasswordReset looks the account up by phone and texts it a numeric
// one-time code. Issuing a new code displaces any outstanding one. Unlike
// login, a missing account is reported as [ErrAccountNotFound]; the phone
// number is assumed to already be known to the caller.
func (e *Engine) RequestPasswordReset(ctx context.Context, phone string) error {
	if !e.config.PasswordReset.Enabled {
		return ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	account, err := e.accounts.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	code, err := internal.NumericOTP(e.config.PasswordReset.OTPDigits)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.resetOTP.Save(ctx, account.AccountID, internal.HashToken(code), e.config.PasswordReset.OTPTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	msg := fmt.Sprintf("Your password reset code is %s. It expires in %d minutes.",
		code, int(e.config.PasswordReset.OTPTTL.Minutes()))
	if err := e.notifier.SendSMS(ctx, account.Phone, msg); err != nil {
		logBestEffort("reset sms", err)
		e.metricInc(MetricNotifyFailure)
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditPasswordResetSent, account.AccountID, ip, true, "")
	return nil
}

// ResetPassword redeems a reset code and installs a new password. The code
// is single use; exhausting the attempt budget kills it. Success revokes
// every outstanding credential for the account.
func (e *Engine) ResetPassword(ctx context.Context, phone, code, newPassword string) error {
	if !e.config.PasswordReset.Enabled {
		return ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	account, err := e.accounts.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Hash first so a policy violation does not burn the code.
	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			return ErrPasswordPolicy
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	err = e.resetOTP.Consume(ctx, account.AccountID, internal.HashToken(code), e.config.PasswordReset.MaxAttempts)
	switch {
	case err == nil:
	case errors.Is(err, stores.ErrOTPNotFound):
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditPasswordResetFailed, account.AccountID, ip, false, "no active code")
		return ErrCodeInvalid
	case errors.Is(err, stores.ErrOTPMismatch):
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditPasswordResetFailed, account.AccountID, ip, false, "wrong code")
		return ErrCodeInvalid
	case errors.Is(err, stores.ErrOTPAttemptsExceeded):
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditPasswordResetFailed, account.AccountID, ip, false, "attempts exceeded")
		return ErrCodeAttemptsExceeded
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.accounts.UpdatePasswordHash(ctx, account.AccountID, newHash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := e.accounts.BumpTokenVersion(ctx, account.AccountID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.refresh.Revoke(ctx, account.AccountID); err != nil {
		logBestEffort("refresh revoke", err)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditPasswordResetDone, account.AccountID, ip, true, "")
	return nil
}
