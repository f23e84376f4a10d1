package utils // package utils provides helper functions for tokens, hashing and money

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA‑256 hashing for refresh tokens
	"encoding/hex"  // hex encoding and decoding functions
	"errors"
	"fmt"
	"strconv"
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// RefreshToken represents a long‑lived token used to obtain new access
// tokens.  Only the SHA‑256 hash of Raw is stored server side.
type RefreshToken struct {
	Raw string    // raw token string returned to the client
	Exp time.Time // UTC expiration time
}

// Identity is what an access token proves about the caller.
type Identity struct {
	UserID uint64
	Role   string
}

var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken builds and signs an HS256 JWT carrying the user ID as
// subject and the marketplace role.
func NewAccessToken(secret string, userID uint64, role string, ttlMin int) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(userID, 10),
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies an HS256 token and extracts the identity.  The
// subject may be encoded as a decimal string or a JSON number.
func ParseAccessToken(secret, raw string) (Identity, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	var id Identity
	switch sub := claims["sub"].(type) {
	case string:
		n, err := strconv.ParseUint(sub, 10, 64)
		if err != nil {
			return Identity{}, ErrInvalidToken
		}
		id.UserID = n
	case float64:
		id.UserID = uint64(sub)
	default:
		return Identity{}, ErrInvalidToken
	}
	id.Role, _ = claims["role"].(string)
	if id.UserID == 0 || id.Role == "" {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}

// NewRefreshToken returns a random 96-character refresh token and its expiry.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
	raw, err := RandomHex(48)
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw: raw,
		Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
	}, nil
}

// HashRefreshRaw returns the hex SHA‑256 of a raw refresh token.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RandomHex returns 2n hex characters of crypto/rand output.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
