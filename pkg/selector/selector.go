package selector

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/log"
	"github.com/chaosworks/havok/pkg/math"
	"github.com/chaosworks/havok/pkg/types"
)

// Select filters the candidate population by the selector spec and bounds the
// result to the blast radius cap. It returns the frozen target list plus the
// filtered candidate count, the denominator all later blast-radius checks use.
// The returned list is never recomputed mid-run.
func Select(candidates []types.Target, spec types.SelectorSpec) ([]types.Target, int, error) {
	if spec.MaxBlastRadiusPct <= 0 || spec.MaxBlastRadiusPct > 1 {
		return nil, 0, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeValidation,
			Reason:    fmt.Sprintf("maxBlastRadiusPct must be in (0, 1], got %v", spec.MaxBlastRadiusPct),
		}
	}

	filtered := filter(candidates, spec)
	if len(filtered) == 0 {
		return nil, 0, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeInsufficientTargets,
			Reason:    "no candidate target matched the selector",
		}
	}

	limit := math.Adjustment(spec.MaxBlastRadiusPct, len(filtered))
	selected := filtered
	if len(filtered) > limit {
		shuffled := append([]types.Target(nil), filtered...)
		rng := rand.New(rand.NewSource(seed(spec)))
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		selected = shuffled[:limit]
	}

	if len(selected) < spec.MinTargets {
		return nil, 0, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeInsufficientTargets,
			Reason: fmt.Sprintf("blast radius cap yields %d targets, %d required",
				len(selected), spec.MinTargets),
		}
	}

	log.Infof("[Select]: Number of targets selected: %v out of %v candidates", len(selected), len(filtered))
	return selected, len(filtered), nil
}

// filter keeps the candidates matching the selector's kind and every label
func filter(candidates []types.Target, spec types.SelectorSpec) []types.Target {
	var filtered []types.Target
	for _, target := range candidates {
		if spec.MatchKind != "" && target.Kind != spec.MatchKind {
			continue
		}
		if !labelsMatch(target.Labels, spec.MatchLabels) {
			continue
		}
		filtered = append(filtered, target)
	}
	return filtered
}

func labelsMatch(labels, want map[string]string) bool {
	for key, value := range want {
		if labels[key] != value {
			return false
		}
	}
	return true
}

// seed returns the fixed seed in deterministic mode, else a cryptographically
// random one
func seed(spec types.SelectorSpec) int64 {
	if spec.Deterministic {
		return spec.Seed
	}
	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		// rng failure is not a reason to fail selection, fall back to the fixed seed
		return spec.Seed
	}
	return int64(binary.LittleEndian.Uint64(buf[:]))
}
