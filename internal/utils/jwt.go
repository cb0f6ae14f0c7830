package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DevJwtSecret is used when no secret is configured and strict mode is off.
const DevJwtSecret = "dev_jwt_secret_123"

var ErrMissingJwtSecret = errors.New("JWT_SECRET environment variable not set")

// ResolveJwtSecret picks the configured secret, falling back to the dev
// default unless strict is set.
func ResolveJwtSecret(configured string, strict bool) (string, error) {
	secret := strings.TrimSpace(configured)
	if secret == "" && !strict {
		secret = DevJwtSecret
	}
	if secret == "" {
		return "", ErrMissingJwtSecret
	}
	return secret, nil
}

// GenerateJWT creates a signed HS256 token for a user.
func GenerateJWT(secret []byte, userID uuid.UUID, username string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrMissingJwtSecret
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":  userID.String(),
		"username": username,
		"exp":      now.Add(ttl).Unix(),
		"iat":      now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseJWT verifies signature, algorithm and expiry and returns the claims.
func ParseJWT(secret []byte, tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
