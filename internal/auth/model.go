package auth

import "time"

// User is one account row. Mutations go through Service methods only; every
// write refreshes UpdatedAt.
type User struct {
	ID              string
	Email           string
	Name            string
	PasswordHash    string
	PasswordHistory []string

	Credits int

	FailedLoginAttempts int
	LockedUntil         *time.Time
	PasswordChangedAt   *time.Time
	PasswordStrength    int

	OperationCount int64
	LastLoginAt    *time.Time
	LoginCount     int

	IsActive      bool
	EmailVerified bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicUser is the client-visible projection of an account.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Credits   int       `json:"credits"`
	Sessions  []string  `json:"sessions"`
	CreatedAt time.Time `json:"created_at"`
}

// Tokens is the issued pair as returned to clients.
type Tokens struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	User         *PublicUser `json:"user,omitempty"`
}

// DefaultSignupCredits is the starting balance for new accounts.
const DefaultSignupCredits = 10
