package math

import "testing"

func TestMaximum(t *testing.T) {
	if got := Maximum(3, 7); got != 7 {
		t.Errorf("Maximum(3, 7) = %d; want 7", got)
	}
	if got := Maximum(7, 3); got != 7 {
		t.Errorf("Maximum(7, 3) = %d; want 7", got)
	}
}

func TestMinimum(t *testing.T) {
	if got := Minimum(3, 7); got != 3 {
		t.Errorf("Minimum(3, 7) = %d; want 3", got)
	}
}

func TestAdjustment(t *testing.T) {
	tests := []struct {
		name     string
		fraction float64
		total    int
		expected int
	}{
		{name: "exact fraction", fraction: 0.2, total: 10, expected: 2},
		{name: "rounds up", fraction: 0.1, total: 15, expected: 2},
		{name: "tiny fraction still covers one", fraction: 0.01, total: 10, expected: 1},
		{name: "zero total", fraction: 0.5, total: 0, expected: 0},
		{name: "zero fraction", fraction: 0, total: 10, expected: 0},
		{name: "full population", fraction: 1.0, total: 10, expected: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Adjustment(tt.fraction, tt.total); got != tt.expected {
				t.Errorf("Adjustment(%v, %d) = %d; want %d", tt.fraction, tt.total, got, tt.expected)
			}
		})
	}
}
