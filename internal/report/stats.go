package report

import (
	"math"
	"slices"

	"mjscore/internal/domain"
)

// PlayerStats summarises one player's score stream.
type PlayerStats struct {
	UserID     int
	Name       string
	Total      int
	Wins       int // entries with a positive delta
	Rounds     int // entries that touched the player
	Average    int
	Max        int
	Min        int
	StdDev     int
	WinPercent int // wins over all entries
}

// Standings computes per-player statistics from history, ranked by total score. Ties keep seat
// order.
func Standings(s domain.State, entries []domain.Entry) []PlayerStats {
	seats := s.SeatOrder()
	rounds := make(map[int][]int, len(seats))
	for _, e := range entries {
		for _, c := range e.Changes {
			rounds[c.UserID] = append(rounds[c.UserID], c.Delta)
		}
	}

	out := make([]PlayerStats, 0, len(seats))
	for _, id := range seats {
		st := PlayerStats{UserID: id, Name: s.NameOf(id)}
		deltas := rounds[id]
		for _, d := range deltas {
			st.Total += d
			if d > 0 {
				st.Wins++
			}
		}
		if len(deltas) > 0 {
			st.Rounds = len(deltas)
			st.Average = roundHalfUp(float64(st.Total) / float64(st.Rounds))
			st.Max = slices.Max(deltas)
			st.Min = slices.Min(deltas)
			variance := 0.0
			for _, d := range deltas {
				diff := float64(d - st.Average)
				variance += diff * diff
			}
			st.StdDev = roundHalfUp(math.Sqrt(variance / float64(len(deltas))))
			if len(entries) > 0 {
				st.WinPercent = roundHalfUp(float64(st.Wins) / float64(len(entries)) * 100)
			}
		}
		out = append(out, st)
	}
	slices.SortStableFunc(out, func(a, b PlayerStats) int {
		return b.Total - a.Total
	})
	return out
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
