package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveLAPJV(t *testing.T) {

	tests := []struct {
		name  string
		cost  [][]float64
		wantX []int
		wantY []int
	}{
		{
			name: "small integers",
			cost: [][]float64{
				{4, 1, 3, 2},
				{2, 0, 5, 3},
				{3, 2, 2, 3},
				{2, 3, 3, 2},
			},
			wantX: []int{3, 1, 2, 0},
			wantY: []int{3, 1, 2, 0},
		},
		{
			name: "larger spread",
			cost: [][]float64{
				{10, 19, 8, 15},
				{10, 18, 7, 17},
				{13, 16, 9, 14},
				{12, 19, 8, 18},
			},
			wantX: []int{3, 0, 1, 2},
			wantY: []int{1, 2, 3, 0},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y, err := solveLAPJV(tc.cost)
			require.NoError(t, err)
			assert.Equal(t, tc.wantX, x)
			assert.Equal(t, tc.wantY, y)
		})
	}
}

func TestLinearAssignment(t *testing.T) {

	cost := [][]float32{
		{0.1, 0.9, 0.95},
		{0.9, 0.2, 0.95},
	}

	matches, uRows, uCols, err := linearAssignment(cost, 2, 3, 0.8)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{0, 0}, {1, 1}}, matches)
	assert.Empty(t, uRows)
	assert.Equal(t, []int{2}, uCols)

	// every pairing is above threshold
	matches, uRows, uCols, err = linearAssignment([][]float32{{0.9}}, 1, 1, 0.5)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, []int{0}, uRows)
	assert.Equal(t, []int{0}, uCols)

	matches, uRows, uCols, err = linearAssignment(nil, 0, 2, 0.5)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Empty(t, uRows)
	assert.Equal(t, []int{0, 1}, uCols)
}
