package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// legacyHashLen is the length of an unsalted sha256 hex digest
const legacyHashLen = sha256.Size * 2

func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: %w", ErrInvalidPassword, err)
	}
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyPassword checks password against a bcrypt or legacy hash.
// legacy is true when the stored hash uses the old unsalted scheme.
func verifyPassword(stored, password string) (ok, legacy bool) {
	if isLegacyHash(stored) {
		sum := sha256.Sum256([]byte(password))
		candidate := hex.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(candidate), []byte(stored)) == 1, true
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil, false
}

func isLegacyHash(h string) bool {
	if len(h) != legacyHashLen {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil
}
