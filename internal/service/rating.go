package service

import (
	"math"
)

// Elo computes zero-sum rating changes with a fixed K factor.
type Elo struct {
	K int
}

// Expected is the probability that a player rated a beats one rated b.
func (e Elo) Expected(a, b int) float64 {
	return 1 / (1 + math.Pow(10, float64(b-a)/400))
}

// Deltas returns the change for the winner and the loser.
func (e Elo) Deltas(winnerRating, loserRating int) (int, int) {
	change := int(math.Round(float64(e.K) * (1 - e.Expected(winnerRating, loserRating))))
	return change, -change
}
