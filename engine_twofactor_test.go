package authkit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func totpCode(t *testing.T, secret string) string {
	t.Helper()

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	return code
}

func TestTwoFactorEnrollmentLifecycle(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	provider := newMockProvider()
	engine := newTestEngine(t, rdb, provider, newTestConfig(), nil)
	seedAccount(t, engine, provider, "u1", "alice@example.com", "", "correct-horse-pw")

	enrollment, err := engine.BeginTwoFactorEnrollment(ctx, "u1")
	if err != nil {
		t.Fatalf("BeginTwoFactorEnrollment failed: %v", err)
	}
	if enrollment.Secret == "" {
		t.Fatal("expected a secret")
	}
	if !strings.HasPrefix(enrollment.ProvisioningURI, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning URI: %q", enrollment.ProvisioningURI)
	}
	if !strings.Contains(enrollment.ProvisioningURI, "alice%40example.com") &&
		!strings.Contains(enrollment.ProvisioningURI, "alice@example.com") {
		t.Fatalf("provisioning URI does not label the account: %q", enrollment.ProvisioningURI)
	}

	// Pending secret has no effect on login yet.
	res := mustLogin(t, engine, "alice@example.com", "correct-horse-pw")
	if res.TwoFactorRequired {
		t.Fatal("pending enrollment must not gate login")
	}

	if err := engine.ConfirmTwoFactorEnrollment(ctx, "u1", totpCode(t, enrollment.Secret)); err != nil {
		t.Fatalf("ConfirmTwoFactorEnrollment failed: %v", err)
	}

	rec := provider.get("u1")
	if !rec.TwoFactorEnabled || rec.TwoFactorSecret != enrollment.Secret {
		t.Fatalf("secret not promoted: %+v", rec)
	}
	if rec.PendingTwoFactorSecret != "" {
		t.Fatal("pending secret should be cleared after confirmation")
	}

	res = mustLogin(t, engine, "alice@example.com", "correct-horse-pw")
	if !res.TwoFactorRequired {
		t.Fatal("expected a challenge after enabling the second factor")
	}
}

func TestTwoFactorConfirmWrongCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	provider := newMockProvider()
	engine := newTestEngine(t, rdb, provider, newTestConfig(), nil)
	seedAccount(t, engine, provider, "u1", "alice@example.com", "", "correct-horse-pw")

	if _, err := engine.BeginTwoFactorEnrollment(ctx, "u1"); err != nil {
		t.Fatalf("BeginTwoFactorEnrollment failed: %v", err)
	}

	if err := engine.ConfirmTwoFactorEnrollment(ctx, "u1", "000000"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
	if provider.get("u1").TwoFactorEnabled {
		t.Fatal("wrong code must not enable the second factor")
	}
}

func TestTwoFactorConfirmWithoutEnrollment(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	provider := newMockProvider()
	engine := newTestEngine(t, rdb, provider, newTestConfig(), nil)
	seedAccount(t, engine, provider, "u1", "alice@example.com", "", "correct-horse-pw")

	err := engine.ConfirmTwoFactorEnrollment(context.Background(), "u1", "123456")
	if !errors.Is(err, ErrEnrollmentNotStarted) {
		t.Fatalf("expected ErrEnrollmentNotStarted, got %v", err)
	}
}

func TestTwoFactorReEnrollmentReplacesPendingSecret(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	provider := newMockProvider()
	engine := newTestEngine(t, rdb, provider, newTestConfig(), nil)
	seedAccount(t, engine, provider, "u1", "alice@example.com", "", "correct-horse-pw")

	first, err := engine.BeginTwoFactorEnrollment(ctx, "u1")
	if err != nil {
		t.Fatalf("first Begin failed: %v", err)
	}
	second, err := engine.BeginTwoFactorEnrollment(ctx, "u1")
	if err != nil {
		t.Fatalf("second Begin failed: %v", err)
	}
	if first.Secret == second.Secret {
		t.Fatal("expected a fresh secret on re-enrollment")
	}

	// Only the latest pending secret confirms.
	if err := engine.ConfirmTwoFactorEnrollment(ctx, "u1", totpCode(t, first.Secret)); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid for stale secret, got %v", err)
	}
	if err := engine.ConfirmTwoFactorEnrollment(ctx, "u1", totpCode(t, second.Secret)); err != nil {
		t.Fatalf("Confirm with current secret failed: %v", err)
	}
}

func TestTwoFactorBeginWhenAlreadyEnabled(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	provider := newMockProvider()
	engine := newTestEngine(t, rdb, provider, newTestConfig(), nil)
	rec := seedAccount(t, engine, provider, "u1", "alice@example.com", "", "correct-horse-pw")
	rec.TwoFactorEnabled = true
	rec.TwoFactorSecret = "JBSWY3DPEHPK3PXP"
	provider.put(rec)

	if _, err := engine.BeginTwoFactorEnrollment(context.Background(), "u1"); !errors.Is(err, ErrTwoFactorEnabled) {
		t.Fatalf("expected ErrTwoFactorEnabled, got %v", err)
	}
}

func TestRedeemChallengeIssuesPair(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	provider := newMockProvider()
	engine := newTestEngine(t, rdb, provider, newTestConfig(), nil)
	seedAccount(t, engine, provider, "u1", "alice@example.com", "", "correct-horse-pw")

	enrollment, err := engine.BeginTwoFactorEnrollment(ctx, "u1")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := engine.ConfirmTwoFactorEnrollment(ctx, "u1", totpCode(t, enrollment.Secret)); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	res := mustLogin(t, engine, "alice@example.com", "correct-horse-pw")
	if !res.TwoFactorRequired {
		t.Fatal("expected a challenge")
	}

	pair, err := engine.RedeemChallenge(ctx, res.Challenge, totpCode(t, enrollment.Secret))
	if err != nil {
		t.Fatalf("RedeemChallenge failed: %v", err)
	}
	if _, err := engine.Authenticate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("access token from challenge rejected: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh token from challenge rejected: %v", err)
	}
}

func TestRedeemChallengeWrongCode(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	provider := newMockProvider()
	engine := newTestEngine(t, rdb, provider, newTestConfig(), nil)

	seedAccount(t, engine, provider, "u1", "alice@example.com", "", "correct-horse-pw")
	enrollment, err := engine.BeginTwoFactorEnrollment(ctx, "u1")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := engine.ConfirmTwoFactorEnrollment(ctx, "u1", totpCode(t, enrollment.Secret)); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	secret := enrollment.Secret

	res := mustLogin(t, engine, "alice@example.com", "correct-horse-pw")

	if _, err := engine.RedeemChallenge(ctx, res.Challenge, "000000"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}

	// A wrong code does not consume the challenge; a right one still works.
	if _, err := engine.RedeemChallenge(ctx, res.Challenge, totpCode(t, secret)); err != nil {
		t.Fatalf("RedeemChallenge after wrong attempt failed: %v", err)
	}
}

func TestRedeemChallengeGarbageToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	provider := newMockProvider()
	engine := newTestEngine(t, rdb, provider, newTestConfig(), nil)

	if _, err := engine.RedeemChallenge(context.Background(), "garbage", "123456"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRedeemChallengeAccessTokenRejected(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	provider := newMockProvider()
	engine := newTestEngine(t, rdb, provider, newTestConfig(), nil)
	seedAccount(t, engine, provider, "u1", "alice@example.com", "", "correct-horse-pw")

	login := mustLogin(t, engine, "alice@example.com", "correct-horse-pw")

	if _, err := engine.RedeemChallenge(ctx, login.AccessToken, "123456"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for access token, got %v", err)
	}
}

func TestDisableTwoFactor(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	provider := newMockProvider()
	engine := newTestEngine(t, rdb, provider, newTestConfig(), nil)
	seedAccount(t, engine, provider, "u1", "alice@example.com", "", "correct-horse-pw")

	enrollment, err := engine.BeginTwoFactorEnrollment(ctx, "u1")
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := engine.ConfirmTwoFactorEnrollment(ctx, "u1", totpCode(t, enrollment.Secret)); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	if err := engine.DisableTwoFactor(ctx, "u1", "000000"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid with wrong code, got %v", err)
	}
	if err := engine.DisableTwoFactor(ctx, "u1", totpCode(t, enrollment.Secret)); err != nil {
		t.Fatalf("DisableTwoFactor failed: %v", err)
	}

	rec := provider.get("u1")
	if rec.TwoFactorEnabled || rec.TwoFactorSecret != "" {
		t.Fatalf("second factor not cleared: %+v", rec)
	}

	res := mustLogin(t, engine, "alice@example.com", "correct-horse-pw")
	if res.TwoFactorRequired {
		t.Fatal("login should be password-only again")
	}
}

func TestDisableTwoFactorWhenNotEnabled(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	provider := newMockProvider()
	engine := newTestEngine(t, rdb, provider, newTestConfig(), nil)
	seedAccount(t, engine, provider, "u1", "alice@example.com", "", "correct-horse-pw")

	err := engine.DisableTwoFactor(context.Background(), "u1", "123456")
	if !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("expected ErrTwoFactorNotEnabled, got %v", err)
	}
}
