package rating

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/pongladder/internal/model"
)

func TestUpdate(t *testing.T) {
	tests := []struct {
		name         string
		ratingA      int
		ratingB      int
		result       model.Result
		expectedNewA int
		expectedNewB int
	}{
		{"equal ratings, A wins", 1500, 1500, model.ResultAWin, 1516, 1484},
		{"equal ratings, B wins", 1500, 1500, model.ResultBWin, 1484, 1516},
		{"equal ratings, draw", 1500, 1500, model.ResultDraw, 1500, 1500},
		{"favourite loses", 1600, 1400, model.ResultBWin, 1576, 1424},
		{"favourite wins", 1600, 1400, model.ResultAWin, 1608, 1392},
		{"draw moves towards the underdog", 1600, 1400, model.ResultDraw, 1592, 1408},
		{"expected outcome barely moves ratings", 10, 800, model.ResultBWin, 10, 800},
		{"ratings may go below zero after a loss", 5, 5, model.ResultBWin, -11, 21},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newA, newB, err := Update(tt.ratingA, tt.ratingB, tt.result)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedNewA, newA)
			assert.Equal(t, tt.expectedNewB, newB)
		})
	}
}

func TestUpdateRejectsInvalidResult(t *testing.T) {
	_, _, err := Update(1500, 1500, model.Result("forfeit"))
	assert.ErrorIs(t, err, model.ErrInvalidResult)

	_, _, err = Deltas(1500, 1500, model.Result(""))
	assert.ErrorIs(t, err, model.ErrInvalidResult)
}

func TestExpected(t *testing.T) {
	assert.InDelta(t, 0.5, Expected(1500, 1500), 1e-12)
	assert.InDelta(t, 0.7597, Expected(1600, 1400), 1e-4)
	assert.InDelta(t, 1.0, Expected(1600, 1400)+Expected(1400, 1600), 1e-12)
}

func TestDeltasSumToZero(t *testing.T) {
	results := []model.Result{model.ResultAWin, model.ResultBWin, model.ResultDraw}
	for a := -400; a <= 3000; a += 137 {
		for b := -400; b <= 3000; b += 211 {
			for _, r := range results {
				deltaA, deltaB, err := Deltas(a, b, r)
				require.NoError(t, err)
				assert.InDelta(t, 0, deltaA+deltaB, 1e-9, "a=%d b=%d result=%s", a, b, r)
				assert.LessOrEqual(t, math.Abs(deltaA), K)
			}
		}
	}
}

func TestDeltasMatchUpdate(t *testing.T) {
	deltaA, deltaB, err := Deltas(1600, 1400, model.ResultBWin)
	require.NoError(t, err)
	assert.InDelta(t, -24.31, deltaA, 0.01)
	assert.InDelta(t, 24.31, deltaB, 0.01)
}

func TestRoundRatingHalfToEven(t *testing.T) {
	assert.Equal(t, 1500, roundRating(1500.5))
	assert.Equal(t, 1502, roundRating(1501.5))
	assert.Equal(t, 1501, roundRating(1500.51))
	assert.Equal(t, -2, roundRating(-2.5))
	assert.Equal(t, 1484, roundRating(1484.0))
}
