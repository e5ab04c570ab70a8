package stringutils

import (
	"math/rand"
	"strings"
	"testing"
)

func TestRandStringBytesMask(t *testing.T) {
	tests := []struct {
		name string
		n    int
		seed int64
	}{
		{name: "6-char string", n: 6, seed: 1234},
		{name: "8-char string", n: 8, seed: 42},
		{name: "empty string with n = 0", n: 0, seed: 999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RandStringBytesMask(tt.n, rand.NewSource(tt.seed))
			if len(got) != tt.n {
				t.Errorf("RandStringBytesMask(%d) length = %d; want %d", tt.n, len(got), tt.n)
			}
			again := RandStringBytesMask(tt.n, rand.NewSource(tt.seed))
			if got != again {
				t.Errorf("same seed produced %q and %q", got, again)
			}
		})
	}
}

func TestGetRunID(t *testing.T) {
	id := GetRunID()

	if len(id) != 6 {
		t.Errorf("expected length 6, got %d", len(id))
	}

	for _, ch := range id {
		if !strings.ContainsRune(shaLetters, ch) {
			t.Errorf("invalid character %q in run ID", ch)
		}
	}
}
