package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

func TestModelRegistry_RoundTrip(t *testing.T) {
	reg := NewModelRegistry(testLogger())

	for _, m := range domain.DefaultCatalog() {
		require.NoError(t, reg.Register(m))
	}
	for _, m := range domain.DefaultCatalog() {
		got, err := reg.Get(m.ID)
		require.NoError(t, err)
		assert.Equal(t, m.ID, got.ID)
	}
	assert.Equal(t, len(domain.DefaultCatalog()), reg.Len())
}

func TestModelRegistry_OverwriteKeepsPosition(t *testing.T) {
	reg := NewModelRegistry(testLogger())
	require.NoError(t, reg.Register(descriptor("a", 1, 1, domain.CategoryReasoning)))
	require.NoError(t, reg.Register(descriptor("b", 1, 1, domain.CategoryReasoning)))
	require.NoError(t, reg.Register(descriptor("a", 9, 9, domain.CategorySummarization)))

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, 9.0, list[0].Resources.Memory)
	assert.True(t, list[0].Supports(domain.CategorySummarization))
}

func TestModelRegistry_NotFound(t *testing.T) {
	reg := NewModelRegistry(testLogger())
	_, err := reg.Get("missing")
	assert.ErrorIs(t, err, domain.ErrModelNotFound)
}

func TestModelRegistry_RejectsInvalid(t *testing.T) {
	reg := NewModelRegistry(testLogger())

	assert.ErrorIs(t, reg.Register(descriptor("", 1, 1)), domain.ErrInvalidDescriptor)
	assert.ErrorIs(t, reg.Register(descriptor("neg", -1, 1)), domain.ErrInvalidDescriptor)
	assert.Zero(t, reg.Len())
}

func TestModelRegistry_StoresCopies(t *testing.T) {
	reg := NewModelRegistry(testLogger())
	m := descriptor("a", 1, 1, domain.CategoryReasoning)
	require.NoError(t, reg.Register(m))

	m.Capabilities[0] = domain.CategoryTranslation
	got, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryReasoning, got.Capabilities[0])

	got.Capabilities[0] = domain.CategorySentiment
	again, _ := reg.Get("a")
	assert.Equal(t, domain.CategoryReasoning, again.Capabilities[0])
}

func TestModelRegistry_Unregister(t *testing.T) {
	reg := NewModelRegistry(testLogger())
	require.NoError(t, reg.Register(descriptor("a", 1, 1)))
	require.NoError(t, reg.Register(descriptor("b", 1, 1)))

	reg.Unregister("a")
	reg.Unregister("unknown")

	assert.False(t, reg.Has("a"))
	require.Len(t, reg.List(), 1)
	assert.Equal(t, "b", reg.List()[0].ID)
}
