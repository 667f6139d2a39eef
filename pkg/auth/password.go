package auth

import (
	"errors"
	"fmt"

	"github.com/antibyte/catterm/pkg/configuration"
	"github.com/antibyte/catterm/pkg/logger"

	"golang.org/x/crypto/bcrypt"
)

var ErrWrongPassword = errors.New("wrong password")

// HashPassword returns a bcrypt hash suitable for [Authentication] password_hash.
// A cost outside bcrypt's range falls back to bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares password against a bcrypt hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrWrongPassword
		}
		return fmt.Errorf("failed to verify password: %w", err)
	}
	return nil
}

// ConfiguredCost returns password_hash_cost from the configuration.
func ConfiguredCost() int {
	return configuration.GetInt("Authentication", "password_hash_cost", 12)
}

// StorePasswordHash hashes password with the configured cost and writes it to
// [Authentication] password_hash in the settings file.
func StorePasswordHash(password string) error {
	hash, err := HashPassword(password, ConfiguredCost())
	if err != nil {
		return err
	}
	configuration.SetString("Authentication", "password_hash", hash)
	if err := configuration.Save(); err != nil {
		return fmt.Errorf("failed to save password hash: %w", err)
	}
	logger.AuthInfo("password hash updated in configuration")
	return nil
}
