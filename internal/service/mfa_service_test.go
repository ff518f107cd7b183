package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
)

// enrollFactor enrolls a TOTP factor and returns its response with the
// plaintext secret.
func enrollFactor(t *testing.T, env *testEnv, user *models.User) *models.EnrollFactorResponse {
	t.Helper()
	resp, err := env.mfa.EnrollFactor(context.Background(), user, models.EnrollFactorRequest{FriendlyName: "phone"})
	require.NoError(t, err)
	return resp
}

func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now().UTC())
	require.NoError(t, err)
	return code
}

func TestEnrollFactor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice", "alice@example.com", "password123", true)

	resp := enrollFactor(t, env, user)
	assert.NotEmpty(t, resp.Secret)
	assert.Contains(t, resp.OTPAuthURL, "otpauth://totp/")

	// Only the encrypted secret is persisted.
	factor, err := env.factors.FindByID(ctx, resp.FactorID)
	require.NoError(t, err)
	assert.Equal(t, models.FactorStatusUnverified, factor.Status)
	assert.NotEqual(t, resp.Secret, factor.EncryptedSecret)

	decrypted, err := env.encryption.Decrypt(factor.EncryptedSecret, env.keyHex)
	require.NoError(t, err)
	assert.Equal(t, resp.Secret, decrypted)
}

func TestEnrollFactor_RejectedWithVerifiedFactor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice", "alice@example.com", "password123", true)

	resp := enrollFactor(t, env, user)
	require.NoError(t, env.factors.UpdateStatus(ctx, resp.FactorID, models.FactorStatusVerified))

	_, err := env.mfa.EnrollFactor(ctx, user, models.EnrollFactorRequest{FriendlyName: "tablet"})
	assert.ErrorIs(t, err, domainErrors.ErrFactorAlreadyExists)
}

func TestCreateChallenge_OwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", "alice@example.com", "password123", true)
	bob := env.createUser(t, "bob", "bob@example.com", "password123", true)

	resp := enrollFactor(t, env, alice)

	_, err := env.mfa.CreateChallenge(ctx, bob.ID, resp.FactorID, "203.0.113.7")
	assert.ErrorIs(t, err, domainErrors.ErrForbidden)

	challenge, err := env.mfa.CreateChallenge(ctx, alice.ID, resp.FactorID, "203.0.113.7")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(models.ChallengeLifetime), challenge.ExpiresAt, 5*time.Second)
}

func TestVerifyChallenge_EscalatesSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice", "alice@example.com", "password123", true)
	session := env.createSession(t, user, "203.0.113.7")
	resp := enrollFactor(t, env, user)

	challenge, err := env.mfa.CreateChallenge(ctx, user.ID, resp.FactorID, "203.0.113.7")
	require.NoError(t, err)

	pair, err := env.mfa.VerifyChallenge(ctx, user, session.ID, models.VerifyFactorRequest{
		ChallengeID: challenge.ID,
		Code:        totpCode(t, resp.Secret),
	}, "203.0.113.7", resp.FactorID)
	require.NoError(t, err)

	// The session escalated and the factor was promoted.
	escalated, err := env.sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AAL2, escalated.AAL)
	require.NotNil(t, escalated.FactorID)
	assert.Equal(t, resp.FactorID, *escalated.FactorID)
	require.Len(t, escalated.AMR, 2)
	assert.Equal(t, "password", escalated.AMR[0].Method)
	assert.Equal(t, "totp", escalated.AMR[1].Method)

	factor, err := env.factors.FindByID(ctx, resp.FactorID)
	require.NoError(t, err)
	assert.Equal(t, models.FactorStatusVerified, factor.Status)

	// The fresh pair carries aal2.
	claims, err := env.tokenManager.ParseAccessToken(pair.AccessToken, false)
	require.NoError(t, err)
	assert.Equal(t, models.AAL2, claims.AAL)
	assert.Equal(t, models.AAL2, claims.UserAALLevel)
}

func TestVerifyChallenge_GuardOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", "alice@example.com", "password123", true)
	bob := env.createUser(t, "bob", "bob@example.com", "password123", true)
	session := env.createSession(t, alice, "203.0.113.7")
	resp := enrollFactor(t, env, alice)

	challenge, err := env.mfa.CreateChallenge(ctx, alice.ID, resp.FactorID, "203.0.113.7")
	require.NoError(t, err)
	code := totpCode(t, resp.Secret)

	// Foreign factor: forbidden before anything else is inspected.
	bobSession := env.createSession(t, bob, "203.0.113.7")
	_, err = env.mfa.VerifyChallenge(ctx, bob, bobSession.ID, models.VerifyFactorRequest{
		ChallengeID: challenge.ID, Code: code,
	}, "203.0.113.7", resp.FactorID)
	assert.ErrorIs(t, err, domainErrors.ErrForbidden)

	// IP pin: a valid code from the wrong address is rejected.
	_, err = env.mfa.VerifyChallenge(ctx, alice, session.ID, models.VerifyFactorRequest{
		ChallengeID: challenge.ID, Code: code,
	}, "198.51.100.1", resp.FactorID)
	assert.ErrorIs(t, err, domainErrors.ErrChallengeIPMismatch)

	// Wrong code.
	_, err = env.mfa.VerifyChallenge(ctx, alice, session.ID, models.VerifyFactorRequest{
		ChallengeID: challenge.ID, Code: "000000",
	}, "203.0.113.7", resp.FactorID)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidTOTPCode)

	// The failed attempts did not consume the challenge.
	_, err = env.mfa.VerifyChallenge(ctx, alice, session.ID, models.VerifyFactorRequest{
		ChallengeID: challenge.ID, Code: code,
	}, "203.0.113.7", resp.FactorID)
	assert.NoError(t, err)
}

func TestVerifyChallenge_SingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice", "alice@example.com", "password123", true)
	session := env.createSession(t, user, "203.0.113.7")
	resp := enrollFactor(t, env, user)

	challenge, err := env.mfa.CreateChallenge(ctx, user.ID, resp.FactorID, "203.0.113.7")
	require.NoError(t, err)
	code := totpCode(t, resp.Secret)

	_, err = env.mfa.VerifyChallenge(ctx, user, session.ID, models.VerifyFactorRequest{
		ChallengeID: challenge.ID, Code: code,
	}, "203.0.113.7", resp.FactorID)
	require.NoError(t, err)

	_, err = env.mfa.VerifyChallenge(ctx, user, session.ID, models.VerifyFactorRequest{
		ChallengeID: challenge.ID, Code: code,
	}, "203.0.113.7", resp.FactorID)
	assert.ErrorIs(t, err, domainErrors.ErrChallengeVerified)
}

func TestVerifyChallenge_LifetimeBoundary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice", "alice@example.com", "password123", true)
	session := env.createSession(t, user, "203.0.113.7")
	resp := enrollFactor(t, env, user)

	ageChallenge := func(id uuid.UUID, age time.Duration) {
		env.challenges.mu.Lock()
		env.challenges.challenges[id].CreatedAt = time.Now().Add(-age)
		env.challenges.mu.Unlock()
	}

	// Just inside the lifetime the challenge is still verifiable.
	challenge, err := env.mfa.CreateChallenge(ctx, user.ID, resp.FactorID, "203.0.113.7")
	require.NoError(t, err)
	ageChallenge(challenge.ID, models.ChallengeLifetime-5*time.Second)

	_, err = env.mfa.VerifyChallenge(ctx, user, session.ID, models.VerifyFactorRequest{
		ChallengeID: challenge.ID, Code: totpCode(t, resp.Secret),
	}, "203.0.113.7", resp.FactorID)
	assert.NoError(t, err)

	// Just past it the challenge is dead.
	challenge, err = env.mfa.CreateChallenge(ctx, user.ID, resp.FactorID, "203.0.113.7")
	require.NoError(t, err)
	ageChallenge(challenge.ID, models.ChallengeLifetime+time.Second)

	_, err = env.mfa.VerifyChallenge(ctx, user, session.ID, models.VerifyFactorRequest{
		ChallengeID: challenge.ID, Code: totpCode(t, resp.Secret),
	}, "203.0.113.7", resp.FactorID)
	assert.ErrorIs(t, err, domainErrors.ErrChallengeExpired)
}

func TestUnenrollFactor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice", "alice@example.com", "password123", true)
	session := env.createSession(t, user, "203.0.113.7")
	resp := enrollFactor(t, env, user)

	// Verify once to reach aal2 and promote the factor.
	challenge, err := env.mfa.CreateChallenge(ctx, user.ID, resp.FactorID, "203.0.113.7")
	require.NoError(t, err)
	_, err = env.mfa.VerifyChallenge(ctx, user, session.ID, models.VerifyFactorRequest{
		ChallengeID: challenge.ID, Code: totpCode(t, resp.Secret),
	}, "203.0.113.7", resp.FactorID)
	require.NoError(t, err)

	// Unenroll needs a fresh challenge plus the account password.
	unenrollChallenge, err := env.mfa.CreateChallenge(ctx, user.ID, resp.FactorID, "203.0.113.7")
	require.NoError(t, err)

	err = env.mfa.UnenrollFactor(ctx, user, session.ID, resp.FactorID, models.UnenrollFactorRequest{
		Password:    "wrong-password",
		ChallengeID: unenrollChallenge.ID,
		Code:        totpCode(t, resp.Secret),
	}, "203.0.113.7")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCredentials)

	err = env.mfa.UnenrollFactor(ctx, user, session.ID, resp.FactorID, models.UnenrollFactorRequest{
		Password:    "password123",
		ChallengeID: unenrollChallenge.ID,
		Code:        totpCode(t, resp.Secret),
	}, "203.0.113.7")
	require.NoError(t, err)

	_, err = env.factors.FindByID(ctx, resp.FactorID)
	assert.ErrorIs(t, err, domainErrors.ErrFactorNotFound)

	// The session dropped back to aal1 and lost its totp AMR entry.
	downgraded, err := env.sessions.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AAL1, downgraded.AAL)
	require.Len(t, downgraded.AMR, 1)
	assert.Equal(t, "password", downgraded.AMR[0].Method)
}
