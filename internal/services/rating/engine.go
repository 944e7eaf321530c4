// Package rating implements the Elo update applied after every match.
// It is pure: no state, no I/O, no knowledge of who is playing.
package rating

import (
	"fmt"
	"math"

	"github.com/mcoot/pongladder/internal/model"
)

// K is the update factor applied to every match
const K = 32.0

// Expected returns player A's expected score against player B
func Expected(ratingA, ratingB int) float64 {
	return 1 / (1 + math.Pow(10, float64(ratingB-ratingA)/400))
}

// Deltas returns the unrounded rating change for each side.
// The two deltas always sum to zero.
func Deltas(ratingA, ratingB int, result model.Result) (deltaA, deltaB float64, err error) {
	actualA, err := actualScore(result)
	if err != nil {
		return 0, 0, err
	}
	expectedA := Expected(ratingA, ratingB)
	deltaA = K * (actualA - expectedA)
	return deltaA, -deltaA, nil
}

// Update returns both players' ratings after a match with the given result
func Update(ratingA, ratingB int, result model.Result) (newA, newB int, err error) {
	actualA, err := actualScore(result)
	if err != nil {
		return 0, 0, err
	}
	expectedA := Expected(ratingA, ratingB)
	expectedB := 1 - expectedA
	actualB := 1 - actualA

	newA = roundRating(float64(ratingA) + K*(actualA-expectedA))
	newB = roundRating(float64(ratingB) + K*(actualB-expectedB))
	return newA, newB, nil
}

func actualScore(result model.Result) (float64, error) {
	switch result {
	case model.ResultAWin:
		return 1, nil
	case model.ResultBWin:
		return 0, nil
	case model.ResultDraw:
		return 0.5, nil
	}
	return 0, fmt.Errorf("%w: %q", model.ErrInvalidResult, result)
}

// roundRating rounds half to even
func roundRating(v float64) int {
	return int(math.RoundToEven(v))
}
