package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgertrack/authkit/internal"
	"github.com/ledgertrack/authkit/internal/stores"
)

func (e *Engine) sendEmailOTP(ctx context.Context, account *AccountRecord, targetEmail string) error {
	code, err := internal.NumericOTP(e.config.EmailVerification.OTPDigits)
	if err != nil {
		return err
	}
	// The target address is folded into the stored hash so a code issued for
	// one address cannot be redeemed to confirm a different one.
	hash := internal.HashToken(targetEmail + ":" + code)
	if err := e.emailOTP.Save(ctx, account.AccountID, hash, e.config.EmailVerification.OTPTTL); err != nil {
		return err
	}

	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(e.config.EmailVerification.OTPTTL.Minutes()))
	if err := e.notifier.SendEmail(ctx, targetEmail, "Verify your email", body); err != nil {
		return err
	}

	e.metricInc(MetricEmailOTPSent)
	e.emitAudit(ctx, auditEmailOTPSent, account.AccountID, clientIPFromContext(ctx), true, "")
	return nil
}

// SendEmailOTP (re)sends a verification code to the account's current email
// address. Already-verified accounts get [ErrAccountStateConflict].
func (e *Engine) SendEmailOTP(ctx context.Context, accountID string) error {
	if !e.config.EmailVerification.Enabled {
		return ErrEngineNotReady
	}

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if account.EmailVerified {
		return ErrAccountStateConflict
	}

	if err := e.sendEmailOTP(ctx, &account, account.Email); err != nil {
		e.metricInc(MetricNotifyFailure)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// VerifyEmail redeems a verification code for the account's current address
// and marks the account verified.
func (e *Engine) VerifyEmail(ctx context.Context, accountID, code string) error {
	if !e.config.EmailVerification.Enabled {
		return ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if account.EmailVerified {
		return ErrAccountStateConflict
	}

	if err := e.consumeEmailOTP(ctx, account.AccountID, account.Email, code); err != nil {
		return err
	}

	if err := e.accounts.SetEmailVerified(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricEmailVerified)
	e.emitAudit(ctx, auditEmailVerified, accountID, ip, true, "")
	return nil
}

// RequestEmailChange sends a verification code to the proposed new address.
// The change only takes effect when the code is redeemed with
// [Engine.ChangeEmail] for the same address.
func (e *Engine) RequestEmailChange(ctx context.Context, accountID, newEmail string) error {
	if !e.config.EmailVerification.Enabled {
		return ErrEngineNotReady
	}
	newEmail = normalizeEmail(newEmail)

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if newEmail == "" || newEmail == account.Email {
		return ErrAccountStateConflict
	}

	if _, err := e.accounts.GetByEmail(ctx, newEmail); err == nil {
		return ErrEmailInUse
	} else if !errors.Is(err, ErrAccountNotFound) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.sendEmailOTP(ctx, &account, newEmail); err != nil {
		e.metricInc(MetricNotifyFailure)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ChangeEmail redeems a change code for the proposed address and installs it
// as the account's email. The new address starts out verified, having just
// proven itself.
func (e *Engine) ChangeEmail(ctx context.Context, accountID, newEmail, code string) error {
	if !e.config.EmailVerification.Enabled {
		return ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)
	newEmail = normalizeEmail(newEmail)

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.consumeEmailOTP(ctx, account.AccountID, newEmail, code); err != nil {
		return err
	}

	if _, err := e.accounts.GetByEmail(ctx, newEmail); err == nil {
		return ErrEmailInUse
	} else if !errors.Is(err, ErrAccountNotFound) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := e.accounts.UpdateEmail(ctx, accountID, newEmail); err != nil {
		if errors.Is(err, ErrProviderDuplicateEmail) {
			return ErrEmailInUse
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.accounts.SetEmailVerified(ctx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricEmailChanged)
	e.emitAudit(ctx, auditEmailChanged, accountID, ip, true, "")
	return nil
}

func (e *Engine) consumeEmailOTP(ctx context.Context, accountID, email, code string) error {
	err := e.emailOTP.Consume(ctx, accountID, internal.HashToken(email+":"+code), e.config.EmailVerification.MaxAttempts)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrOTPNotFound), errors.Is(err, stores.ErrOTPMismatch):
		return ErrCodeInvalid
	case errors.Is(err, stores.ErrOTPAttemptsExceeded):
		return ErrCodeAttemptsExceeded
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
