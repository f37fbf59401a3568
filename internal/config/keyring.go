package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rohankatakam/gitranker/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "gitranker"

	// KeyringTokensItem holds the comma-separated GitHub token pool
	KeyringTokensItem = "github-tokens"
)

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct {
	logger logrus.FieldLogger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager(logger logrus.FieldLogger) *KeyringManager {
	return &KeyringManager{
		logger: logging.OrDiscard(logger).WithField("component", "keyring"),
	}
}

// GetGitHubTokens retrieves the token pool. An unset entry yields no
// tokens and no error.
func (km *KeyringManager) GetGitHubTokens() ([]string, error) {
	raw, err := keyring.Get(KeyringService, KeyringTokensItem)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		km.logger.WithError(err).Error("failed to get github tokens from keychain")
		return nil, fmt.Errorf("failed to read from OS keychain: %w", err)
	}

	km.logger.Debug("github tokens retrieved from keychain")
	return SplitList(raw), nil
}

// SetGitHubTokens replaces the stored token pool.
// This uses OS-level encryption:
// - macOS: Keychain Access.app → "gitranker" → "github-tokens"
// - Windows: Credential Manager → "gitranker"
// - Linux: Secret Service (requires libsecret)
func (km *KeyringManager) SetGitHubTokens(tokens []string) error {
	var clean []string
	for _, t := range tokens {
		clean = append(clean, SplitList(t)...)
	}
	if len(clean) == 0 {
		return fmt.Errorf("github tokens cannot be empty")
	}

	if err := keyring.Set(KeyringService, KeyringTokensItem, strings.Join(clean, ",")); err != nil {
		km.logger.WithError(err).Error("failed to save github tokens to keychain")
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}

	km.logger.WithField("count", len(clean)).Info("github tokens saved to keychain")
	return nil
}

// DeleteGitHubTokens removes the token pool from OS keychain
func (km *KeyringManager) DeleteGitHubTokens() error {
	err := keyring.Delete(KeyringService, KeyringTokensItem)
	if errors.Is(err, keyring.ErrNotFound) {
		// Already deleted, not an error
		return nil
	}
	if err != nil {
		km.logger.WithError(err).Error("failed to delete github tokens from keychain")
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}

	km.logger.Info("github tokens deleted from keychain")
	return nil
}

// IsAvailable checks if OS keychain is available
// Returns false on headless systems (CI/CD) where keychain isn't available
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")

	// "not found" means the keychain answered
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return true
	}
	km.logger.WithError(err).Debug("keychain not available")
	return false
}

// MaskSecret masks a secret for display, keeping the last 4 chars: "****abcd"
func MaskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) < 12 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
