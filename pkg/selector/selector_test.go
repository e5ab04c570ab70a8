package selector

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/types"
)

func makeTargets(n int, kind string, labels map[string]string) []types.Target {
	targets := make([]types.Target, 0, n)
	for i := 0; i < n; i++ {
		targets = append(targets, types.Target{
			ID:     fmt.Sprintf("target-%d", i),
			Kind:   kind,
			Labels: labels,
		})
	}
	return targets
}

func TestSelect_BlastRadiusCap(t *testing.T) {
	candidates := makeTargets(10, "process", nil)

	selected, total, err := Select(candidates, types.SelectorSpec{
		MaxBlastRadiusPct: 0.2,
	})
	require.NoError(t, err)
	assert.Len(t, selected, 2)
	assert.Equal(t, 10, total)
}

func TestSelect_CeilRounding(t *testing.T) {
	// ceil(0.1 * 5) = 1, a positive cap never rounds down to zero
	candidates := makeTargets(5, "process", nil)

	selected, _, err := Select(candidates, types.SelectorSpec{
		MaxBlastRadiusPct: 0.1,
	})
	require.NoError(t, err)
	assert.Len(t, selected, 1)
}

func TestSelect_FullPopulation(t *testing.T) {
	candidates := makeTargets(4, "process", nil)

	selected, total, err := Select(candidates, types.SelectorSpec{
		MaxBlastRadiusPct: 1.0,
	})
	require.NoError(t, err)
	assert.Len(t, selected, 4)
	assert.Equal(t, 4, total)
}

func TestSelect_InvalidBlastRadius(t *testing.T) {
	candidates := makeTargets(3, "process", nil)

	for _, pct := range []float64{0, -0.5, 1.01} {
		_, _, err := Select(candidates, types.SelectorSpec{MaxBlastRadiusPct: pct})
		require.Error(t, err, "pct=%v", pct)
		assert.Equal(t, cerrors.ErrorTypeValidation, cerrors.GetErrorType(err))
	}
}

func TestSelect_KindAndLabelFilter(t *testing.T) {
	candidates := append(
		makeTargets(6, "process", map[string]string{"env": "staging"}),
		makeTargets(4, "container", map[string]string{"env": "staging"})...,
	)

	selected, total, err := Select(candidates, types.SelectorSpec{
		MatchKind:         "container",
		MatchLabels:       map[string]string{"env": "staging"},
		MaxBlastRadiusPct: 0.5,
	})
	require.NoError(t, err)
	// the denominator is the filtered count, not the full population
	assert.Equal(t, 4, total)
	assert.Len(t, selected, 2)
	for _, target := range selected {
		assert.Equal(t, "container", target.Kind)
	}
}

func TestSelect_NoMatch(t *testing.T) {
	candidates := makeTargets(5, "process", nil)

	_, _, err := Select(candidates, types.SelectorSpec{
		MatchKind:         "vm",
		MaxBlastRadiusPct: 0.5,
	})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeInsufficientTargets, cerrors.GetErrorType(err))
}

func TestSelect_MinTargetsUnsatisfied(t *testing.T) {
	candidates := makeTargets(10, "process", nil)

	_, _, err := Select(candidates, types.SelectorSpec{
		MaxBlastRadiusPct: 0.1,
		MinTargets:        3,
	})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrorTypeInsufficientTargets, cerrors.GetErrorType(err))
}

func TestSelect_DeterministicSeed(t *testing.T) {
	candidates := makeTargets(20, "process", nil)
	spec := types.SelectorSpec{
		MaxBlastRadiusPct: 0.25,
		Deterministic:     true,
		Seed:              42,
	}

	first, _, err := Select(candidates, spec)
	require.NoError(t, err)
	second, _, err := Select(candidates, spec)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
