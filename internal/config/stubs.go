package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// StubConfig holds the settings of the in-process stub platform services.
type StubConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
	Pepper     string // optional global secret appended before hashing
}

// NewStubConfig reads JWT_SECRET, JWT_EXPIRATION_HOURS (default 24), BCRYPT_COST
// (default 10) and PASSWORD_PEPPER. A missing JWT_SECRET gets a random one, so
// tokens from a previous stub process are not accepted.
func NewStubConfig() (*StubConfig, error) {
	cfg := &StubConfig{
		JWTSecret:  os.Getenv("JWT_SECRET"),
		TokenTTL:   24 * time.Hour,
		BcryptCost: bcrypt.MinCost + 6,
		Pepper:     os.Getenv("PASSWORD_PEPPER"),
	}

	if s := os.Getenv("JWT_EXPIRATION_HOURS"); s != "" {
		hours, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid JWT_EXPIRATION_HOURS: %v", err)
		}
		cfg.TokenTTL = time.Duration(hours) * time.Hour
	}
	if s := os.Getenv("BCRYPT_COST"); s != "" {
		cost, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid BCRYPT_COST: %v", err)
		}
		cfg.BcryptCost = cost
	}
	if cfg.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.JWTSecret = secret
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// normalize validates the configuration.
func (c *StubConfig) normalize() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT secret cannot be empty")
	}
	if c.TokenTTL < time.Hour {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %s", c.TokenTTL)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > 14 {
		return fmt.Errorf("bcrypt cost out of range: %d (must be %d-14)", c.BcryptCost, bcrypt.MinCost)
	}
	return nil
}

// HashPassword hashes a password using bcrypt (with optional pepper).
func (c *StubConfig) HashPassword(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw+c.Pepper), c.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword verifies a password against a stored hash (with optional pepper).
func (c *StubConfig) VerifyPassword(pw, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(pw+c.Pepper)) == nil
}
