package auth

import (
	"errors"
	"fmt"

	"github.com/sethvargo/go-password/password"
	"golang.org/x/crypto/bcrypt"
)

const temporaryPasswordLength = 20

// GenerateToken returns an opaque alphanumeric token of the given length
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("token length must be positive")
	}
	digits := length / 4
	token, err := password.Generate(length, digits, 0, false, true)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// GenerateTemporaryPassword returns a random password for accounts created on
// a user's behalf. It is never shown; the user signs in after verification.
func GenerateTemporaryPassword() (string, error) {
	pw, err := password.Generate(temporaryPasswordLength, 4, 4, false, true)
	if err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return pw, nil
}

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(plain string, cost int) (string, error) {
	if plain == "" {
		return "", errors.New("password is empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a bcrypt hash with its possible plaintext equivalent.
func CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
