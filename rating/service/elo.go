package service

import (
	"math"

	"llm-arena/backend/rating/models"
)

// KFactor caps the rating change of a single match
const KFactor = 32

// ExpectedScore is the probability that a player rated ra beats one rated rb
func ExpectedScore(ra, rb int) float64 {
	return 1 / (1 + math.Pow(10, float64(rb-ra)/400))
}

// NewRatings returns both ratings after one match. Each side's expectation
// is computed from its own point of view, so swapping the arguments and
// inverting the result swaps the output exactly.
func NewRatings(ra, rb int, result models.Result) (int, int) {
	ea := ExpectedScore(ra, rb)
	eb := ExpectedScore(rb, ra)
	sa, sb := result.Scores()
	return adjust(ra, sa, ea), adjust(rb, sb, eb)
}

func adjust(r int, actual, expected float64) int {
	return int(math.Round(float64(r) + KFactor*(actual-expected)))
}
