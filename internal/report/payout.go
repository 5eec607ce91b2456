package report

import (
	"errors"
	"fmt"

	"mjscore/internal/domain"
)

var ErrInvalidDivisor = errors.New("divisor must be positive")

// Payout converts a score total into money.
type Payout struct {
	UserID     int
	Name       string
	Total      int
	Base       float64 // Total / divisor
	Adjustment float64 // signed manual correction
	Final      float64
}

// Payouts divides each player's total by divisor and adds the player's manual adjustment.
func Payouts(s domain.State, totals map[int]int, divisor float64, adjustments map[int]float64) ([]Payout, error) {
	if divisor <= 0 {
		return nil, fmt.Errorf("%w: %g", ErrInvalidDivisor, divisor)
	}
	out := make([]Payout, 0, len(s.Players))
	for _, id := range s.SeatOrder() {
		p := Payout{
			UserID:     id,
			Name:       s.NameOf(id),
			Total:      totals[id],
			Adjustment: adjustments[id],
		}
		p.Base = float64(p.Total) / divisor
		p.Final = p.Base + p.Adjustment
		out = append(out, p)
	}
	return out, nil
}
