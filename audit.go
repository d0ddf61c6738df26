package authkit

import (
	"context"
	"time"

	"github.com/ledgertrack/authkit/internal/audit"
)

// Audit event types emitted by the engine.
const (
	auditLoginSuccess        = "login.success"
	auditLoginFailure        = "login.failure"
	auditLoginRateLimited    = "login.rate_limited"
	auditChallengeIssued     = "login.challenge_issued"
	auditChallengeRedeemed   = "login.challenge_redeemed"
	auditChallengeRejected   = "login.challenge_rejected"
	auditRefreshSuccess      = "refresh.success"
	auditRefreshFailure      = "refresh.failure"
	auditRefreshReuse        = "refresh.reuse_detected"
	auditLogout              = "logout"
	auditLogoutAll           = "logout.all"
	auditAccountCreated      = "account.created"
	auditAccountDeactivated  = "account.deactivated"
	auditAccountActivated    = "account.activated"
	auditAccountDeleted      = "account.deleted"
	auditPasswordChanged     = "password.changed"
	auditPasswordResetSent   = "password.reset_sent"
	auditPasswordResetDone   = "password.reset_done"
	auditPasswordResetFailed = "password.reset_failed"
	auditEmailOTPSent        = "email.otp_sent"
	auditEmailVerified       = "email.verified"
	auditEmailChanged        = "email.changed"
	auditTwoFactorStarted    = "twofactor.enrollment_started"
	auditTwoFactorEnabled    = "twofactor.enabled"
	auditTwoFactorDisabled   = "twofactor.disabled"
	auditTwoFactorRejected   = "twofactor.code_rejected"
)

func (e *Engine) emitAudit(ctx context.Context, eventType, accountID, ip string, success bool, errMsg string) {
	if e.audit == nil {
		return
	}
	e.audit.Emit(ctx, audit.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		AccountID: accountID,
		IP:        ip,
		Success:   success,
		Error:     errMsg,
	})
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}
