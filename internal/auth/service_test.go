package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interview-prep-api/internal/observability"
	"interview-prep-api/internal/token"
	"interview-prep-api/internal/validate"
)

const (
	testPassword = "Mighty#Oak42River"
	testEmail    = "new@x.com"
)

func newTestService(store Store, denylist Denylist) *Service {
	policy := validate.DefaultPasswordPolicy()
	policy.BcryptCost = 4 // keep tests fast

	codec := token.NewCodec("test-secret-0123456789abcdef", "interview-prep-api", "interview-prep-web")

	return NewService(store, codec, denylist, observability.NewLogger()).
		WithPasswordPolicy(policy).
		WithSecurityConfig(5, 15*time.Minute)
}

func TestCreateUser(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeDenylist())
	ctx := context.Background()

	user, tokens, err := svc.CreateUser(ctx, " New@X.com ", testPassword, `Alice <Smith>`)
	require.NoError(t, err)

	assert.Equal(t, testEmail, user.Email, "email must be normalized")
	assert.Equal(t, "Alice Smith", user.Name, "name must be sanitized")
	assert.Equal(t, DefaultSignupCredits, user.Credits)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "Bearer", tokens.TokenType)
	require.NotNil(t, tokens.User)
	assert.Equal(t, user.ID, tokens.User.ID)

	// Signup registered one refresh jti and counted as first login.
	assert.Equal(t, 1, store.refreshCount(user.ID))
	stored, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.LoginCount)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestCreateUserValidationFailsBeforeAnyWrite(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeDenylist())
	ctx := context.Background()

	_, _, err := svc.CreateUser(ctx, "not-an-email", testPassword, "")
	assert.Equal(t, CodeInvalidEmail, CodeOf(err))

	_, _, err = svc.CreateUser(ctx, testEmail, "aaaa1111", "")
	assert.Equal(t, CodeWeakPassword, CodeOf(err))
	assert.Contains(t, err.Error(), "uppercase letter")
	assert.Contains(t, err.Error(), "special character")

	assert.Empty(t, store.users, "no account may exist after failed validation")
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeDenylist())
	ctx := context.Background()

	_, _, err := svc.CreateUser(ctx, testEmail, testPassword, "")
	require.NoError(t, err)

	_, _, err = svc.CreateUser(ctx, "NEW@x.com", testPassword, "")
	assert.Equal(t, CodeEmailExists, CodeOf(err))
}

func TestAuthenticate(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeDenylist())
	ctx := context.Background()

	created, _, err := svc.CreateUser(ctx, testEmail, testPassword, "Alice")
	require.NoError(t, err)

	user, tokens, err := svc.Authenticate(ctx, testEmail, testPassword)
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.Equal(t, 2, store.refreshCount(user.ID), "signup pair plus login pair")

	// Wrong password bumps the failed counter and reports the shared code.
	_, _, err = svc.Authenticate(ctx, testEmail, "wrongpass")
	assert.Equal(t, CodeInvalidCredentials, CodeOf(err))
	stored, _ := store.GetUserByID(ctx, created.ID)
	assert.Equal(t, 1, stored.FailedLoginAttempts)

	// Unknown accounts are indistinguishable from wrong passwords.
	_, _, err = svc.Authenticate(ctx, "ghost@x.com", testPassword)
	assert.Equal(t, CodeInvalidCredentials, CodeOf(err))

	_, _, err = svc.Authenticate(ctx, "", "")
	assert.Equal(t, CodeMissingCredentials, CodeOf(err))
}

func TestAuthenticateLockout(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeDenylist())
	ctx := context.Background()

	created, _, err := svc.CreateUser(ctx, "locked@x.com", testPassword, "")
	require.NoError(t, err)

	// Five consecutive failures: each reports INVALID_CREDENTIALS, the
	// fifth arms the lock.
	for i := 0; i < 5; i++ {
		_, _, err = svc.Authenticate(ctx, "locked@x.com", "wrongpass")
		assert.Equal(t, CodeInvalidCredentials, CodeOf(err), "attempt %d", i+1)
	}

	// The sixth attempt fails as locked even with the correct password.
	_, _, err = svc.Authenticate(ctx, "locked@x.com", testPassword)
	assert.Equal(t, CodeAccountLocked, CodeOf(err))

	// Once the lock expires, a correct login succeeds and resets the counter.
	past := time.Now().UTC().Add(-time.Second)
	store.users[created.ID].LockedUntil = &past

	_, _, err = svc.Authenticate(ctx, "locked@x.com", testPassword)
	require.NoError(t, err)
	stored, _ := store.GetUserByID(ctx, created.ID)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
	assert.Nil(t, stored.LockedUntil)
}

func TestAuthenticateDeactivated(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeDenylist())
	ctx := context.Background()

	created, _, err := svc.CreateUser(ctx, testEmail, testPassword, "")
	require.NoError(t, err)

	store.users[created.ID].IsActive = false

	_, _, err = svc.Authenticate(ctx, testEmail, testPassword)
	assert.Equal(t, CodeAccountDeactivated, CodeOf(err))
}

func TestRefreshRotation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeDenylist())
	ctx := context.Background()

	user, tokens, err := svc.CreateUser(ctx, testEmail, testPassword, "")
	require.NoError(t, err)

	rotated, err := svc.RefreshTokens(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)
	assert.Equal(t, 1, store.refreshCount(user.ID), "rotation replaces, never appends")

	// The stale token's jti left the active set: replay fails as revoked.
	_, err = svc.RefreshTokens(ctx, tokens.RefreshToken)
	assert.Equal(t, CodeTokenRevoked, CodeOf(err))

	// The rotated token still works.
	_, err = svc.RefreshTokens(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeDenylist())
	ctx := context.Background()

	_, tokens, err := svc.CreateUser(ctx, testEmail, testPassword, "")
	require.NoError(t, err)

	_, err = svc.RefreshTokens(ctx, tokens.AccessToken)
	assert.Equal(t, CodeInvalidToken, CodeOf(err))

	_, err = svc.RefreshTokens(ctx, "garbage")
	assert.Equal(t, CodeInvalidToken, CodeOf(err))
}

func TestRefreshDeactivatedAccount(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeDenylist())
	ctx := context.Background()

	user, tokens, err := svc.CreateUser(ctx, testEmail, testPassword, "")
	require.NoError(t, err)

	store.users[user.ID].IsActive = false

	_, err = svc.RefreshTokens(ctx, tokens.RefreshToken)
	assert.Equal(t, CodeAccountDeactivated, CodeOf(err))
}

func TestRevokeRefreshTokenIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeDenylist())
	ctx := context.Background()

	user, tokens, err := svc.CreateUser(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	_, _, err = svc.Authenticate(ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, 2, store.refreshCount(user.ID))

	// Global revocation empties the active set; a second call is a no-op.
	require.NoError(t, svc.RevokeRefreshToken(ctx, user.ID, ""))
	assert.Equal(t, 0, store.refreshCount(user.ID))
	require.NoError(t, svc.RevokeRefreshToken(ctx, user.ID, ""))
	assert.Equal(t, 0, store.refreshCount(user.ID))

	// Revoked tokens no longer refresh.
	_, err = svc.RefreshTokens(ctx, tokens.RefreshToken)
	assert.Equal(t, CodeTokenRevoked, CodeOf(err))
}

func TestRevokeSpecificRefreshToken(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeDenylist())
	ctx := context.Background()

	user, first, err := svc.CreateUser(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	_, second, err := svc.Authenticate(ctx, testEmail, testPassword)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeRefreshToken(ctx, user.ID, first.RefreshToken))
	assert.Equal(t, 1, store.refreshCount(user.ID))

	_, err = svc.RefreshTokens(ctx, first.RefreshToken)
	assert.Equal(t, CodeTokenRevoked, CodeOf(err))
	_, err = svc.RefreshTokens(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestBlacklistToken(t *testing.T) {
	store := newFakeStore()
	denylist := newFakeDenylist()
	svc := newTestService(store, denylist)
	ctx := context.Background()

	_, tokens, err := svc.CreateUser(ctx, testEmail, testPassword, "")
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(ctx, tokens.AccessToken)
	require.NoError(t, err)

	svc.BlacklistToken(ctx, tokens.AccessToken)

	_, err = svc.VerifyAccessToken(ctx, tokens.AccessToken)
	assert.Equal(t, CodeTokenRevoked, CodeOf(err))

	// Garbage input is swallowed, not an error.
	svc.BlacklistToken(ctx, "garbage")

	// A failing denylist is treated as "not blacklisted".
	denylist.getErr = errors.New("redis down")
	_, err = svc.VerifyAccessToken(ctx, tokens.AccessToken)
	assert.NoError(t, err)
}

func TestVerifyAccessToken(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeDenylist())
	ctx := context.Background()

	user, tokens, err := svc.CreateUser(ctx, testEmail, testPassword, "")
	require.NoError(t, err)

	resolved, err := svc.VerifyAccessToken(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)

	// A refresh token is not an access token.
	_, err = svc.VerifyAccessToken(ctx, tokens.RefreshToken)
	assert.Equal(t, CodeInvalidToken, CodeOf(err))

	// Deactivation takes effect on the very next verification.
	store.users[user.ID].IsActive = false
	_, err = svc.VerifyAccessToken(ctx, tokens.AccessToken)
	assert.Equal(t, CodeAccountDeactivated, CodeOf(err))
}

func TestCredits(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeDenylist())
	ctx := context.Background()

	user, _, err := svc.CreateUser(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	store.users[user.ID].Credits = 3

	check, err := svc.CheckCredits(ctx, user.ID, 5)
	require.NoError(t, err)
	assert.False(t, check.HasCredits)
	assert.Equal(t, 3, check.CurrentCredits)
	assert.Equal(t, 5, check.RequiredCredits)

	// Over-deduction leaves the balance unchanged.
	result, err := svc.DeductCredits(ctx, user.ID, 5)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 3, result.NewBalance)

	result, err = svc.DeductCredits(ctx, user.ID, 2)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.NewBalance)

	result, err = svc.AddCredits(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 11, result.NewBalance)
}

func TestCreditsNeverNegative(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeDenylist())
	ctx := context.Background()

	user, _, err := svc.CreateUser(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	store.users[user.ID].Credits = 5

	for i := 0; i < 10; i++ {
		_, err := svc.DeductCredits(ctx, user.ID, 2)
		require.NoError(t, err)

		balance, err := store.GetCredits(ctx, user.ID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, balance, 0)
	}

	balance, _ := store.GetCredits(ctx, user.ID)
	assert.Equal(t, 1, balance, "5 credits allow exactly two deductions of 2")
}

func TestUpdateProfile(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeDenylist())
	ctx := context.Background()

	user, _, err := svc.CreateUser(ctx, testEmail, testPassword, "Alice")
	require.NoError(t, err)

	profile, err := svc.UpdateProfile(ctx, user.ID, `Bob <script>`)
	require.NoError(t, err)
	assert.Equal(t, "Bob script", profile.Name)

	_, err = svc.UpdateProfile(ctx, "missing-id", "Bob")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStoreFailuresAreOpaque(t *testing.T) {
	store := newFakeStore()
	store.failOn["CreateUser"] = errors.New("connection reset by peer")
	svc := newTestService(store, newFakeDenylist())

	_, _, err := svc.CreateUser(context.Background(), testEmail, testPassword, "")
	require.Error(t, err)
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.NotContains(t, err.Error(), "connection reset", "store detail must not leak")
}
