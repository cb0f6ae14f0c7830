package utils

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted on signin.
const MinPasswordLength = 8

// HashPassword hashes a plain text password with bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a plain text password with a stored hash
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var weakPasswords = []string{"password", "123456", "qwerty", "letmein", "admin"}

// ValidatePasswordPolicy checks length, character classes and common
// patterns. disallow lists values (such as the username) that must not
// appear in the password.
func ValidatePasswordPolicy(pw string, disallow ...string) (ok bool, reason string) {
	if len(pw) < MinPasswordLength {
		return false, "password must be at least 8 characters"
	}
	var hasLetter, hasDigit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return false, "password must include a letter and a digit"
	}
	lower := strings.ToLower(pw)
	for _, w := range weakPasswords {
		if strings.Contains(lower, w) {
			return false, "password is too common/guessable"
		}
	}
	for _, d := range disallow {
		if d != "" && strings.Contains(lower, strings.ToLower(d)) {
			return false, "password must not contain the username"
		}
	}
	return true, ""
}
