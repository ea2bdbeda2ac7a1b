package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// TokenLength is the fixed length of every issued account token.
const TokenLength = 32

// tokenCharset leaves out characters that are easy to confuse: 0/O/o, 1/l/I.
const tokenCharset = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"

const (
	usernameMinLength = 3
	usernameMaxLength = 32
	passwordMinLength = 6
	passwordMaxLength = 64
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`)
	passwordPattern = regexp.MustCompile(`^[\x21-\x7E]+$`)
)

// GenerateToken returns a TokenLength-character token drawn from a
// cryptographically secure source.
func GenerateToken() (string, error) {
	limit := big.NewInt(int64(len(tokenCharset)))
	result := make([]byte, TokenLength)
	for i := range result {
		num, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}
		result[i] = tokenCharset[num.Int64()]
	}
	return string(result), nil
}

// IsTokenWellFormed reports whether s could have been produced by GenerateToken.
func IsTokenWellFormed(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(tokenCharset, s[i]) < 0 {
			return false
		}
	}
	return true
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword checks if a password matches a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// IsUsernameValid: 3-32 chars, a leading letter, then letters, digits, '_', '.' or '-'.
func IsUsernameValid(username string) bool {
	if len(username) < usernameMinLength || len(username) > usernameMaxLength {
		return false
	}
	return usernamePattern.MatchString(username)
}

// IsPasswordValid: 6-64 printable ASCII characters, no whitespace.
func IsPasswordValid(password string) bool {
	if len(password) < passwordMinLength || len(password) > passwordMaxLength {
		return false
	}
	return passwordPattern.MatchString(password)
}
