package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEloDeltas(t *testing.T) {
	elo := Elo{K: 20}

	tests := []struct {
		name   string
		winner int
		loser  int
		want   int
	}{
		{"equal ratings", 1500, 1500, 10},
		{"favourite wins", 1700, 1500, 5},
		{"underdog wins", 1500, 1700, 15},
		{"huge gap", 2400, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, l := elo.Deltas(tt.winner, tt.loser)
			assert.Equal(t, tt.want, w)
			assert.Equal(t, -tt.want, l)
		})
	}
}

func TestEloExpectedIsSymmetric(t *testing.T) {
	elo := Elo{K: 20}
	assert.InDelta(t, 1.0, elo.Expected(1600, 1400)+elo.Expected(1400, 1600), 1e-9)
	assert.InDelta(t, 0.5, elo.Expected(1500, 1500), 1e-9)
}
