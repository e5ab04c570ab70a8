package selector

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"

	"github.com/chaosworks/havok/pkg/types"
)

func FuzzSelect(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)
		targetStruct := &struct {
			Count uint8
			Pct   float64
			Seed  int64
		}{}
		err := fuzzConsumer.GenerateStruct(targetStruct)
		if err != nil {
			return
		}

		candidates := makeTargets(int(targetStruct.Count), "process", nil)
		selected, total, err := Select(candidates, types.SelectorSpec{
			MaxBlastRadiusPct: targetStruct.Pct,
			Deterministic:     true,
			Seed:              targetStruct.Seed,
		})
		if err != nil {
			return
		}

		// a successful selection never exceeds the filtered population and
		// every selected target comes from the candidate set
		assert.LessOrEqual(t, len(selected), total)
		assert.Equal(t, int(targetStruct.Count), total)
		known := map[string]bool{}
		for _, c := range candidates {
			known[c.ID] = true
		}
		for _, s := range selected {
			assert.True(t, known[s.ID])
		}
	})
}
