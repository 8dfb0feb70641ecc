package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

const providersKey = "providers"

// ErrSettingNotFound is returned by repositories for absent keys.
var ErrSettingNotFound = errors.New("setting not found")

// SettingsRepository is the minimal DB interface for settings persistence.
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key string, value string) error
}

// SettingsStore persists the provider table between restarts. Credentials are
// encrypted at rest and never written in plaintext.
type SettingsStore struct {
	mu     sync.Mutex
	logger *slog.Logger
	secret *SecretKey
	repo   SettingsRepository
}

func NewSettingsStore(logger *slog.Logger, repo SettingsRepository, secret *SecretKey) *SettingsStore {
	return &SettingsStore{
		logger: logger,
		secret: secret,
		repo:   repo,
	}
}

// LoadProviders returns the saved providers with decrypted credentials, or nil
// when nothing has been saved yet.
func (s *SettingsStore) LoadProviders(ctx context.Context) ([]domain.ProviderConfig, error) {
	raw, err := s.repo.GetSetting(ctx, providersKey)
	if errors.Is(err, ErrSettingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}

	var stored []storedProvider
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal providers: %w", err)
	}

	out := make([]domain.ProviderConfig, 0, len(stored))
	for _, sp := range stored {
		cfg := domain.ProviderConfig{
			Name:            sp.Name,
			Kind:            sp.Kind,
			Endpoint:        sp.Endpoint,
			AuthType:        sp.AuthType,
			AvailableModels: sp.AvailableModels,
		}
		if sp.EncryptedAPIKey != "" {
			key, err := s.secret.Decrypt(sp.EncryptedAPIKey)
			if err != nil {
				s.logger.Warn("failed to decrypt provider credentials", "provider", sp.Name, "error", err)
			} else {
				cfg.APIKey = key
			}
		}
		out = append(out, cfg)
	}
	return out, nil
}

// SaveProviders replaces the saved provider table.
func (s *SettingsStore) SaveProviders(ctx context.Context, providers []domain.ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]storedProvider, 0, len(providers))
	for _, p := range providers {
		if isMasked(p.APIKey) {
			return fmt.Errorf("provider %s: refusing to persist a masked credential", p.Name)
		}
		sp := storedProvider{
			Name:            p.Name,
			Kind:            p.Kind,
			Endpoint:        p.Endpoint,
			AuthType:        p.AuthType,
			AvailableModels: p.AvailableModels,
		}
		if p.APIKey != "" {
			enc, err := s.secret.Encrypt(p.APIKey)
			if err != nil {
				return fmt.Errorf("encrypt %s credentials: %w", p.Name, err)
			}
			sp.EncryptedAPIKey = enc
		}
		stored = append(stored, sp)
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal providers: %w", err)
	}
	if err := s.repo.SaveSetting(ctx, providersKey, string(raw)); err != nil {
		return fmt.Errorf("save providers: %w", err)
	}

	s.logger.Info("provider settings saved", "providers", len(stored))
	return nil
}

// storedProvider is the DB representation with the encrypted credential.
type storedProvider struct {
	Name            string              `json:"name"`
	Kind            domain.ProviderKind `json:"kind"`
	Endpoint        string              `json:"endpoint"`
	AuthType        domain.AuthType     `json:"auth_type"`
	AvailableModels []string            `json:"available_models,omitempty"`
	EncryptedAPIKey string              `json:"encrypted_api_key,omitempty"`
}

func isMasked(s string) bool {
	return len(s) >= 4 && s[:4] == "****"
}
