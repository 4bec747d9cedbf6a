package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashAPIKey returns the bcrypt hash to put in server.api_key_hash.
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("crypto: api key is empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("crypto: hash api key: %w", err)
	}
	return string(h), nil
}

// CheckAPIKey reports whether key matches a bcrypt hash.
func CheckAPIKey(hash, key string) bool {
	if hash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
