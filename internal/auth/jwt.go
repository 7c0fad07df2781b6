// Package auth holds the client's auth session and the JWT helpers around the
// backend's session token.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The user signs in with POST /auth/login (username + password)
//  2. The backend answers with the user and sets an HttpOnly "token" cookie
//     holding a signed JWT
//  3. The API client keeps that cookie in its jar and sends it on every
//     authenticated call; the live channel sends it as a bearer token
//  4. Session stores the user in memory and persists user + cookies so the
//     next run of the CLI is still signed in
//  5. Logout, account deletion or any 401 clears the session
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims (data) → {"sub":"9","exp":1234567890}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// The client never holds the secret. It can only Inspect a token: read the
// subject and expiry without verifying the signature. TokenService, which
// signs and verifies, is what the test backend uses to issue tokens.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the "iss" claim of every session token.
const Issuer = "snippethub"

// DefaultTokenTTL is the lifetime of tokens issued by Generate.
const DefaultTokenTTL = 15 * time.Minute

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// claims is the JWT payload. "sub" holds the numeric user id as a string.
type claims struct {
	jwt.RegisteredClaims
}

// Generate signs a token for userID valid for DefaultTokenTTL.
func (s *TokenService) Generate(userID int64) (string, error) {
	return s.GenerateWithDuration(userID, DefaultTokenTTL)
}

// GenerateWithDuration creates a token with a custom expiry duration.
// A negative duration yields an already expired token, which tests use.
func (s *TokenService) GenerateWithDuration(userID int64, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns the user id in its
// "sub" claim.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired (ExpiresAt is in the future)
//   - Issuer matches Issuer
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
func (s *TokenService) Validate(tokenStr string) (int64, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return 0, fmt.Errorf("auth: invalid token claims")
	}
	return subjectID(c)
}

// ErrTokenExpired is returned by Validate for a well-formed but expired
// token.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenInfo is what the client can learn from a token without the secret.
type TokenInfo struct {
	UserID    int64
	ExpiresAt time.Time // zero when the token has no "exp"
}

// Expired reports whether the token had expired at now.
func (i TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// Inspect decodes a token WITHOUT verifying its signature. Only the backend
// can verify; the client uses the claims to skip restoring a session that
// has obviously expired.
func Inspect(tokenStr string) (TokenInfo, error) {
	c := &claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, c); err != nil {
		return TokenInfo{}, fmt.Errorf("auth: inspect token: %w", err)
	}
	id, err := subjectID(c)
	if err != nil {
		return TokenInfo{}, err
	}
	info := TokenInfo{UserID: id}
	if c.ExpiresAt != nil {
		info.ExpiresAt = c.ExpiresAt.Time
	}
	return info, nil
}

func subjectID(c *claims) (int64, error) {
	if c.Subject == "" {
		return 0, fmt.Errorf("auth: token has no subject")
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("auth: token subject %q is not a user id: %w", c.Subject, err)
	}
	return id, nil
}
