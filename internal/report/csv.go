package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"mjscore/internal/domain"
)

// WriteCSV writes one column per player in seat order and one row per history entry, newest
// first. Players an entry did not touch get 0. limit <= 0 writes every entry.
func WriteCSV(w io.Writer, s domain.State, entries []domain.Entry, limit int) error {
	cw := csv.NewWriter(w)
	seats := s.SeatOrder()

	header := make([]string, len(seats))
	for i, id := range seats {
		header[i] = s.NameOf(id)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	written := 0
	for i := len(entries) - 1; i >= 0; i-- {
		if limit > 0 && written == limit {
			break
		}
		deltas := make(map[int]int, len(entries[i].Changes))
		for _, c := range entries[i].Changes {
			deltas[c.UserID] += c.Delta
		}
		row := make([]string, len(seats))
		for j, id := range seats {
			row[j] = strconv.Itoa(deltas[id])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
		written++
	}
	cw.Flush()
	return cw.Error()
}
