package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"interview-prep-api/internal/observability"
	"interview-prep-api/internal/token"
	"interview-prep-api/internal/validate"
)

const (
	defaultMaxLoginAttempts = 5
	defaultLockoutDuration  = 15 * time.Minute
)

// Store is the persistence surface the service drives. *Repository is the
// Postgres implementation; tests substitute an in-memory fake.
type Store interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)

	ClearExpiredLockout(ctx context.Context, userID string) error
	RecordFailedLogin(ctx context.Context, userID string, maxAttempts int, lockout time.Duration) (int, *time.Time, error)
	RecordLogin(ctx context.Context, userID string) error

	AddRefreshToken(ctx context.Context, userID, jti string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, userID, oldJTI, newJTI string, expiresAt time.Time) error
	RevokeRefreshToken(ctx context.Context, userID, jti string) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error

	GetCredits(ctx context.Context, userID string) (int, error)
	DeductCredits(ctx context.Context, userID string, cost int) (int, bool, error)
	AddCredits(ctx context.Context, userID string, amount int) (int, error)

	UpdateProfile(ctx context.Context, userID, name string) (*User, error)
	SessionIDs(ctx context.Context, userID string) ([]string, error)
}

var _ Store = (*Repository)(nil)

// Denylist is the best-effort revoked-access-token set.
type Denylist interface {
	Add(ctx context.Context, jti string, ttl time.Duration) error
	Contains(ctx context.Context, jti string) (bool, error)
}

// Service orchestrates signup, login, token refresh, revocation and credit
// accounting. Constructed once at startup and shared across requests.
type Service struct {
	store     Store
	codec     *token.Codec
	denylist  Denylist
	logger    *observability.Logger
	passwords validate.PasswordPolicy

	maxLoginAttempts int
	lockoutDuration  time.Duration
}

func NewService(store Store, codec *token.Codec, denylist Denylist, logger *observability.Logger) *Service {
	return &Service{
		store:            store,
		codec:            codec,
		denylist:         denylist,
		logger:           logger,
		passwords:        validate.DefaultPasswordPolicy(),
		maxLoginAttempts: defaultMaxLoginAttempts,
		lockoutDuration:  defaultLockoutDuration,
	}
}

func (s *Service) WithSecurityConfig(maxAttempts int, lockout time.Duration) *Service {
	if maxAttempts > 0 {
		s.maxLoginAttempts = maxAttempts
	}
	if lockout > 0 {
		s.lockoutDuration = lockout
	}
	return s
}

func (s *Service) WithPasswordPolicy(policy validate.PasswordPolicy) *Service {
	s.passwords = policy
	return s
}

// internalError logs the unexpected failure and hides it behind the opaque
// internal error. Store and codec detail never reaches a client.
func (s *Service) internalError(op string, err error) error {
	s.logger.Error("auth_operation_failed", map[string]any{"op": op, "error": err.Error()})
	return ErrInternal
}

// CreateUser validates, persists and logs in a new account. Validation is
// side-effect free: nothing is written before every check passes.
func (s *Service) CreateUser(ctx context.Context, email, password, name string) (*User, Tokens, error) {
	normalized, err := validate.CheckEmail(email)
	if err != nil {
		return nil, Tokens{}, newError(CodeInvalidEmail, err.Error())
	}

	strength := s.passwords.CheckPasswordStrength(password)
	if !strength.OK {
		return nil, Tokens{}, newError(CodeWeakPassword, strength.Message)
	}

	hash, err := s.passwords.HashPassword(password)
	if err != nil {
		return nil, Tokens{}, s.internalError("create_user", err)
	}

	user := &User{
		Email:            normalized,
		Name:             validate.SanitizeName(name),
		PasswordHash:     hash,
		Credits:          DefaultSignupCredits,
		PasswordStrength: strength.Score,
		IsActive:         true,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, Tokens{}, newError(CodeEmailExists, "user with this email already exists")
		}
		return nil, Tokens{}, s.internalError("create_user", err)
	}

	// Signup counts as the first login.
	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, Tokens{}, err
	}
	tokens.User = publicUser(user, []string{})

	return user, tokens, nil
}

// Authenticate verifies credentials and issues a fresh token pair. Lookup
// misses and password mismatches share one failure code so responses never
// reveal whether an account exists.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, Tokens, error) {
	if email == "" || password == "" {
		return nil, Tokens{}, newError(CodeMissingCredentials, "email and password are required")
	}

	normalized := validate.NormalizeEmail(email)
	user, err := s.store.GetUserByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, Tokens{}, newError(CodeInvalidCredentials, "invalid email or password")
		}
		return nil, Tokens{}, s.internalError("authenticate", err)
	}

	if !user.IsActive {
		return nil, Tokens{}, newError(CodeAccountDeactivated, "account is deactivated")
	}

	if user.LockedUntil != nil {
		now := time.Now().UTC()
		if now.Before(*user.LockedUntil) {
			remaining := int(user.LockedUntil.Sub(now).Minutes()) + 1
			return nil, Tokens{}, newError(CodeAccountLocked,
				fmt.Sprintf("account temporarily locked, try again in %d minutes", remaining))
		}
		// Expired lock: lazy reset before the password check.
		if err := s.store.ClearExpiredLockout(ctx, user.ID); err != nil {
			return nil, Tokens{}, s.internalError("authenticate", err)
		}
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
	}

	if !validate.VerifyPassword(password, user.PasswordHash) {
		failed, lockedUntil, err := s.store.RecordFailedLogin(ctx, user.ID, s.maxLoginAttempts, s.lockoutDuration)
		if err != nil {
			return nil, Tokens{}, s.internalError("authenticate", err)
		}
		if lockedUntil != nil {
			s.logger.Info("account_locked", map[string]any{
				"user_id":         user.ID,
				"failed_attempts": failed,
				"locked_until":    lockedUntil.Format(time.RFC3339),
			})
		}
		return nil, Tokens{}, newError(CodeInvalidCredentials, "invalid email or password")
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, Tokens{}, err
	}

	sessions, err := s.store.SessionIDs(ctx, user.ID)
	if err != nil {
		return nil, Tokens{}, s.internalError("authenticate", err)
	}
	tokens.User = publicUser(user, sessions)

	return user, tokens, nil
}

// issueTokens mints an access/refresh pair, registers the refresh jti and
// updates login statistics.
func (s *Service) issueTokens(ctx context.Context, user *User) (Tokens, error) {
	pair, err := s.codec.IssuePair(user.ID, user.Email)
	if err != nil {
		return Tokens{}, s.internalError("issue_tokens", err)
	}

	if err := s.store.AddRefreshToken(ctx, user.ID, pair.RefreshClaims.ID, pair.RefreshClaims.ExpiresAt.Time); err != nil {
		return Tokens{}, s.internalError("issue_tokens", err)
	}
	if err := s.store.RecordLogin(ctx, user.ID); err != nil {
		return Tokens{}, s.internalError("issue_tokens", err)
	}

	return Tokens{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// RefreshTokens rotates a refresh token into a new pair. The stale jti is
// swapped for the new one atomically, so a replayed old token fails as
// revoked even though its signature stays valid until natural expiry.
func (s *Service) RefreshTokens(ctx context.Context, rawRefresh string) (Tokens, error) {
	claims, err := s.codec.Verify(rawRefresh, token.TypeRefresh)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return Tokens{}, newError(CodeTokenExpired, "refresh token expired")
		}
		return Tokens{}, newError(CodeInvalidToken, "invalid refresh token")
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Tokens{}, newError(CodeInvalidToken, "invalid refresh token")
		}
		return Tokens{}, s.internalError("refresh_tokens", err)
	}
	if !user.IsActive {
		return Tokens{}, newError(CodeAccountDeactivated, "account is deactivated")
	}

	pair, err := s.codec.IssuePair(user.ID, user.Email)
	if err != nil {
		return Tokens{}, s.internalError("refresh_tokens", err)
	}

	err = s.store.RotateRefreshToken(ctx, user.ID, claims.ID, pair.RefreshClaims.ID, pair.RefreshClaims.ExpiresAt.Time)
	if err != nil {
		if errors.Is(err, ErrRefreshRevoked) {
			return Tokens{}, newError(CodeTokenRevoked, "refresh token revoked")
		}
		return Tokens{}, s.internalError("refresh_tokens", err)
	}

	return Tokens{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// RevokeRefreshToken removes one refresh token from the active set, or the
// whole set when rawRefresh is empty (logout everywhere). Idempotent.
func (s *Service) RevokeRefreshToken(ctx context.Context, userID, rawRefresh string) error {
	if rawRefresh == "" {
		if err := s.store.RevokeAllRefreshTokens(ctx, userID); err != nil {
			return s.internalError("revoke_refresh_token", err)
		}
		return nil
	}

	claims, err := s.codec.Verify(rawRefresh, token.TypeRefresh)
	if err != nil {
		return newError(CodeInvalidToken, "invalid refresh token")
	}
	if err := s.store.RevokeRefreshToken(ctx, userID, claims.ID); err != nil {
		return s.internalError("revoke_refresh_token", err)
	}

	return nil
}

// BlacklistToken denylists an access token's jti until its natural expiry.
// Best effort: verification and store failures are logged and swallowed,
// since the token's own expiry is the backstop.
func (s *Service) BlacklistToken(ctx context.Context, rawAccess string) {
	claims, err := s.codec.Verify(rawAccess, token.TypeAccess)
	if err != nil {
		return
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.denylist.Add(ctx, claims.ID, ttl); err != nil {
		s.logger.Error("blacklist_token_failed", map[string]any{"error": err.Error()})
	}
}

// IsTokenBlacklisted treats every failure as "not blacklisted": the denylist
// is an optimization, not the revocation mechanism of record.
func (s *Service) IsTokenBlacklisted(ctx context.Context, jti string) bool {
	found, err := s.denylist.Contains(ctx, jti)
	if err != nil {
		s.logger.Error("blacklist_check_failed", map[string]any{"error": err.Error()})
		return false
	}
	return found
}

// VerifyAccessToken resolves an access token to its live account: signature,
// type, denylist and account state are all re-checked per request, so
// deactivation takes effect on the next call.
func (s *Service) VerifyAccessToken(ctx context.Context, rawAccess string) (*User, error) {
	claims, err := s.codec.Verify(rawAccess, token.TypeAccess)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, newError(CodeTokenExpired, "token expired")
		}
		return nil, newError(CodeInvalidToken, "invalid token")
	}
	if claims.UserID == "" {
		return nil, newError(CodeInvalidToken, "invalid token")
	}

	if s.IsTokenBlacklisted(ctx, claims.ID) {
		return nil, newError(CodeTokenRevoked, "token has been revoked")
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, newError(CodeInvalidToken, "invalid token")
		}
		return nil, s.internalError("verify_access_token", err)
	}
	if !user.IsActive {
		return nil, newError(CodeAccountDeactivated, "account is deactivated")
	}

	return user, nil
}

// CreditCheck reports whether a balance covers a cost.
type CreditCheck struct {
	HasCredits      bool `json:"has_credits"`
	CurrentCredits  int  `json:"current_credits"`
	RequiredCredits int  `json:"required_credits"`
}

// CreditResult is the outcome of a balance mutation.
type CreditResult struct {
	Success    bool `json:"success"`
	NewBalance int  `json:"new_credit_balance"`
}

func (s *Service) CheckCredits(ctx context.Context, userID string, cost int) (CreditCheck, error) {
	credits, err := s.store.GetCredits(ctx, userID)
	if err != nil {
		return CreditCheck{}, s.internalError("check_credits", err)
	}

	return CreditCheck{
		HasCredits:      credits >= cost,
		CurrentCredits:  credits,
		RequiredCredits: cost,
	}, nil
}

func (s *Service) DeductCredits(ctx context.Context, userID string, cost int) (CreditResult, error) {
	balance, ok, err := s.store.DeductCredits(ctx, userID, cost)
	if err != nil {
		return CreditResult{}, s.internalError("deduct_credits", err)
	}

	return CreditResult{Success: ok, NewBalance: balance}, nil
}

func (s *Service) AddCredits(ctx context.Context, userID string, amount int) (CreditResult, error) {
	balance, err := s.store.AddCredits(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return CreditResult{}, newError(CodeInvalidToken, "unknown account")
		}
		return CreditResult{}, s.internalError("add_credits", err)
	}

	return CreditResult{Success: true, NewBalance: balance}, nil
}

// Profile returns the public view of an account.
func (s *Service) Profile(ctx context.Context, user *User) (*PublicUser, error) {
	sessions, err := s.store.SessionIDs(ctx, user.ID)
	if err != nil {
		return nil, s.internalError("profile", err)
	}
	return publicUser(user, sessions), nil
}

// UpdateProfile writes the whitelisted mutable fields (display name only).
func (s *Service) UpdateProfile(ctx context.Context, userID, name string) (*PublicUser, error) {
	updated, err := s.store.UpdateProfile(ctx, userID, validate.SanitizeName(name))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.internalError("update_profile", err)
	}

	sessions, err := s.store.SessionIDs(ctx, userID)
	if err != nil {
		return nil, s.internalError("update_profile", err)
	}

	return publicUser(updated, sessions), nil
}

func publicUser(user *User, sessions []string) *PublicUser {
	if sessions == nil {
		sessions = []string{}
	}
	return &PublicUser{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Credits:   user.Credits,
		Sessions:  sessions,
		CreatedAt: user.CreatedAt,
	}
}
