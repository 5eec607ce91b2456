package domain

import "time"

// Entry is one committed event. PreState is the snapshot undo restores.
type Entry struct {
	ID          string
	At          time.Time
	Kind        EventKind
	Description string
	Changes     []ScoreChange
	PreState    State
}

// History is the ordered list of committed events, oldest first.
type History struct {
	entries []Entry
}

// NewHistory wraps already committed entries, e.g. loaded from storage.
func NewHistory(entries []Entry) *History {
	h := &History{}
	for _, e := range entries {
		h.Push(e)
	}
	return h
}

// Push appends an entry. Changes and the snapshot are copied so later mutation of the live
// state cannot leak into history.
func (h *History) Push(e Entry) {
	e.Changes = append([]ScoreChange(nil), e.Changes...)
	e.PreState = e.PreState.Clone()
	h.entries = append(h.entries, e)
}

// Pop removes and returns the newest entry.
func (h *History) Pop() (Entry, bool) {
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	last := h.entries[len(h.entries)-1]
	h.entries = h.entries[:len(h.entries)-1]
	return last, true
}

// Last returns the newest entry without removing it.
func (h *History) Last() (Entry, bool) {
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

func (h *History) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the entries, oldest first.
func (h *History) Entries() []Entry {
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) Clear() {
	h.entries = nil
}

// Totals sums every entry's changes per player. Players that never scored are absent.
func (h *History) Totals() map[int]int {
	totals := make(map[int]int)
	for _, e := range h.entries {
		for _, c := range e.Changes {
			totals[c.UserID] += c.Delta
		}
	}
	return totals
}

// Session is everything a table persists: undoable state, history and house rules.
type Session struct {
	State   State
	History *History
	Rules   Rules
}

// NewSession seats names with default rules and an empty history.
func NewSession(names []string, rules Rules) *Session {
	return &Session{State: NewState(names), History: &History{}, Rules: rules}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	out := &Session{State: s.State.Clone(), Rules: s.Rules, History: &History{}}
	if s.History != nil {
		out.History = NewHistory(s.History.entries)
	}
	return out
}
