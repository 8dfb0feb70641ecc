package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

func TestOptimizedParameters_CategoryOverlay(t *testing.T) {
	s := newStack(t, descriptor("m", 4, 2, domain.AllCategories()...))

	tests := []struct {
		category    domain.TaskCategory
		temperature float64
		maxTokens   int
		topP        float64
	}{
		{domain.CategoryClassification, 0.3, 1024, 0.9},
		{domain.CategorySummarization, 0.5, 512, 0.9},
		{domain.CategoryCodeGeneration, 0.2, 1024, 0.95},
		{domain.CategoryReasoning, 0.8, 1024, 0.9},
		{domain.CategoryTranslation, 0.7, 1024, 0.9},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			p, err := s.params.OptimizedParameters("m", tt.category)
			require.NoError(t, err)
			assert.Equal(t, tt.temperature, p.Temperature)
			assert.Equal(t, tt.maxTokens, p.MaxTokens)
			assert.Equal(t, tt.topP, p.TopP)
		})
	}
}

func TestOptimizedParameters_SummarizationKeepsSmallerCap(t *testing.T) {
	m := descriptor("m", 4, 2, domain.CategorySummarization)
	m.Defaults.MaxTokens = 256
	s := newStack(t, m)

	p, err := s.params.OptimizedParameters("m", domain.CategorySummarization)
	require.NoError(t, err)
	assert.Equal(t, 256, p.MaxTokens)
}

func TestOptimizedParameters_DoesNotMutateDefaults(t *testing.T) {
	s := newStack(t, descriptor("m", 4, 2, domain.CategoryCodeGeneration))

	_, err := s.params.OptimizedParameters("m", domain.CategoryCodeGeneration)
	require.NoError(t, err)

	desc, err := s.registry.Get("m")
	require.NoError(t, err)
	assert.Equal(t, 0.7, desc.Defaults.Temperature)
}

func TestOptimizedParameters_UnknownModel(t *testing.T) {
	s := newStack(t)
	_, err := s.params.OptimizedParameters("nope", domain.CategoryReasoning)
	assert.ErrorIs(t, err, domain.ErrModelNotFound)
}

func TestPreloadModel(t *testing.T) {
	s := newStack(t, descriptor("m", 4, 2, domain.CategoryReasoning))
	s.invoker.On("Preload", mock.Anything, mock.MatchedBy(func(d domain.ModelDescriptor) bool {
		return d.ID == "m"
	})).Return(nil).Once()

	assert.False(t, s.params.IsPreloaded("m"))
	require.NoError(t, s.params.PreloadModel(context.Background(), "m"))
	assert.True(t, s.params.IsPreloaded("m"))
	s.invoker.AssertExpectations(t)
}

func TestPreloadModel_BackendFailureLeavesMarkerUnset(t *testing.T) {
	s := newStack(t, descriptor("m", 4, 2, domain.CategoryReasoning))
	s.invoker.On("Preload", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	err := s.params.PreloadModel(context.Background(), "m")
	require.Error(t, err)
	assert.False(t, s.params.IsPreloaded("m"))
}

func TestPreloadModel_UnknownModel(t *testing.T) {
	s := newStack(t)
	err := s.params.PreloadModel(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrModelNotFound)
}
