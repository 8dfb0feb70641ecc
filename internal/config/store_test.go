package config

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

type memorySettings map[string]string

func (m memorySettings) GetSetting(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", ErrSettingNotFound
	}
	return v, nil
}

func (m memorySettings) SaveSetting(_ context.Context, key, value string) error {
	m[key] = value
	return nil
}

func TestSettingsStore_ProvidersRoundTrip(t *testing.T) {
	repo := memorySettings{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := NewSettingsStore(logger, repo, NewSecretKeyFromPassphrase("k"))
	ctx := context.Background()

	loaded, err := store.LoadProviders(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	providers := []domain.ProviderConfig{
		{Name: "ollama", Kind: domain.ProviderKindOllama, Endpoint: "http://localhost:11434", AuthType: domain.AuthNone},
		{Name: "openai", Kind: domain.ProviderKindOpenAI, Endpoint: "https://api.openai.com/v1", AuthType: domain.AuthBearer, APIKey: "sk-live-abcdef"},
	}
	require.NoError(t, store.SaveProviders(ctx, providers))

	assert.NotContains(t, repo[providersKey], "sk-live-abcdef")

	loaded, err = store.LoadProviders(ctx)
	require.NoError(t, err)
	assert.Equal(t, providers, loaded)
}

func TestSettingsStore_RejectsMaskedCredential(t *testing.T) {
	store := NewSettingsStore(slog.New(slog.NewTextHandler(os.Stderr, nil)), memorySettings{}, NewSecretKeyFromPassphrase("k"))

	err := store.SaveProviders(context.Background(), []domain.ProviderConfig{{Name: "openai", APIKey: "****abcd"}})
	assert.Error(t, err)
}

func TestSettingsStore_WrongKeyDropsCredential(t *testing.T) {
	repo := memorySettings{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	require.NoError(t, NewSettingsStore(logger, repo, NewSecretKeyFromPassphrase("old")).
		SaveProviders(ctx, []domain.ProviderConfig{{Name: "openai", APIKey: "sk-abc"}}))

	loaded, err := NewSettingsStore(logger, repo, NewSecretKeyFromPassphrase("new")).LoadProviders(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Empty(t, loaded[0].APIKey)
}
