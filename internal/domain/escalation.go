package domain

// EscalationMap counts consecutive hits of a winner over a specific loser since the winner's
// row was last reset. Empty rows and zero counts are not stored.
type EscalationMap map[int]map[int]int

// Get returns the count of winner over loser.
func (m EscalationMap) Get(winner, loser int) int {
	return m[winner][loser]
}

// Set stores a count; zero or less removes the entry.
func (m EscalationMap) Set(winner, loser, count int) {
	if count <= 0 {
		row, ok := m[winner]
		if !ok {
			return
		}
		delete(row, loser)
		if len(row) == 0 {
			delete(m, winner)
		}
		return
	}
	row, ok := m[winner]
	if !ok {
		row = make(map[int]int)
		m[winner] = row
	}
	row[loser] = count
}

// Increment adds one hit of winner over loser and returns the new count.
func (m EscalationMap) Increment(winner, loser int) int {
	n := m.Get(winner, loser) + 1
	m.Set(winner, loser, n)
	return n
}

// ResetRow forgets every count held by winner.
func (m EscalationMap) ResetRow(winner int) {
	delete(m, winner)
}

// ResetAll forgets every count.
func (m EscalationMap) ResetAll() {
	clear(m)
}

// Clone returns a deep copy. A nil map clones to nil.
func (m EscalationMap) Clone() EscalationMap {
	if m == nil {
		return nil
	}
	out := make(EscalationMap, len(m))
	for winner, row := range m {
		out[winner] = cloneCounts(row)
	}
	return out
}
