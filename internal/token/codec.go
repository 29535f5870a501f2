package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type discriminates access tokens from refresh tokens. Verification rejects
// a well-formed token presented as the wrong type.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	// ErrExpired marks a token whose signature verified but whose expiry has
	// passed. Distinguished from ErrInvalid for logging only; both collapse to
	// 401 at the HTTP boundary.
	ErrExpired = errors.New("token expired")
	// ErrInvalid marks a structurally or cryptographically invalid token.
	ErrInvalid = errors.New("token invalid")
	// ErrWrongType marks a valid token of the wrong type.
	ErrWrongType = errors.New("wrong token type")
)

// Claims carried by every issued token.
type Claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	TokenType Type   `json:"token_type"`
	jwt.RegisteredClaims
}

// Pair is one access/refresh issuance for a single user.
type Pair struct {
	AccessToken   string
	RefreshToken  string
	AccessClaims  *Claims
	RefreshClaims *Claims
	ExpiresIn     int64
}

// Codec signs and verifies HS256 tokens with issuer/audience pinning.
type Codec struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewCodec(secret, issuer, audience string) *Codec {
	return &Codec{
		secret:     []byte(secret),
		issuer:     issuer,
		audience:   audience,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
	}
}

func (c *Codec) WithTTL(accessTTL, refreshTTL time.Duration) *Codec {
	if accessTTL > 0 {
		c.accessTTL = accessTTL
	}
	if refreshTTL > 0 {
		c.refreshTTL = refreshTTL
	}
	return c
}

func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// Issue creates a signed token of the given type with a fresh jti. The expiry
// defaults by type unless an explicit ttl override is supplied.
func (c *Codec) Issue(userID, email string, typ Type, ttl ...time.Duration) (string, *Claims, error) {
	lifetime := c.accessTTL
	if typ == TypeRefresh {
		lifetime = c.refreshTTL
	}
	if len(ttl) > 0 && ttl[0] > 0 {
		lifetime = ttl[0]
	}

	now := time.Now().UTC()
	claims := &Claims{
		UserID:    userID,
		Email:     email,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", typ, err)
	}

	return signed, claims, nil
}

// IssuePair issues one access and one refresh token for the user.
func (c *Codec) IssuePair(userID, email string) (Pair, error) {
	access, accessClaims, err := c.Issue(userID, email, TypeAccess)
	if err != nil {
		return Pair{}, err
	}

	refresh, refreshClaims, err := c.Issue(userID, email, TypeRefresh)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:   access,
		RefreshToken:  refresh,
		AccessClaims:  accessClaims,
		RefreshClaims: refreshClaims,
		ExpiresIn:     int64(c.accessTTL.Seconds()),
	}, nil
}

// Verify checks signature, issuer and audience, then the token type. Expired
// tokens yield ErrExpired; any other failure yields ErrInvalid.
func (c *Codec) Verify(raw string, want Type) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalid
	}

	if want != "" && claims.TokenType != want {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongType, claims.TokenType, want)
	}

	return claims, nil
}
