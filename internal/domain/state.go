package domain

import (
	"fmt"
	"slices"
)

// NoPlayer marks the absence of a player, e.g. before anyone has won.
const NoPlayer = 0

// DefaultPlayerCount is the number of seats at a standard table.
const DefaultPlayerCount = 4

// DefaultForfeitThreshold is the escalation count that unlocks a forfeit.
const DefaultForfeitThreshold = 3

// Player is a seated participant and the unsettled claims it holds against opponents.
type Player struct {
	ID     int
	Name   string
	Claims map[int]int // opponent id -> amount that opponent owes this player
}

// Dealer tracks the dealer seat and how many rounds in a row it has kept the deal.
type Dealer struct {
	ID     int
	Streak int
}

// Bonus is the per-opponent amount added whenever the dealer wins or pays.
func (d Dealer) Bonus() int {
	return 2*d.Streak - 1
}

// After returns the dealer for the next round given the round's principal winner.
// The dealer keeps the deal on a win; otherwise it passes to the next seat.
func (d Dealer) After(winnerID int, seats []int) Dealer {
	if winnerID == d.ID {
		return Dealer{ID: d.ID, Streak: d.Streak + 1}
	}
	return Dealer{ID: nextSeat(seats, d.ID), Streak: 1}
}

// Bumped returns the dealer with one more streak round, without a win.
func (d Dealer) Bumped() Dealer {
	return Dealer{ID: d.ID, Streak: d.Streak + 1}
}

func nextSeat(seats []int, id int) int {
	i := slices.Index(seats, id)
	if i < 0 {
		return seats[0]
	}
	return seats[(i+1)%len(seats)]
}

// Rules are session preferences kept outside the undoable snapshot.
type Rules struct {
	// PopOnNewWinner clears everyone else's claims when a new winner takes over.
	PopOnNewWinner bool
	// ForfeitThreshold is the escalation count at which a loser may surrender a claim.
	ForfeitThreshold int
}

// DefaultRules returns the house rules used when nothing is configured.
func DefaultRules() Rules {
	return Rules{PopOnNewWinner: true, ForfeitThreshold: DefaultForfeitThreshold}
}

func (r Rules) forfeitThreshold() int {
	if r.ForfeitThreshold <= 0 {
		return DefaultForfeitThreshold
	}
	return r.ForfeitThreshold
}

// State is the full undoable state of a session. A copy taken before an event is the
// snapshot that undo restores.
type State struct {
	Players      []Player // seat order
	Escalation   EscalationMap
	LastWinnerID int
	Dealer       Dealer
}

// NewState seats one player per name with ids 1..n. The first seat deals.
func NewState(names []string) State {
	players := make([]Player, len(names))
	for i, name := range names {
		players[i] = Player{ID: i + 1, Name: name}
	}
	s := State{
		Players:    players,
		Escalation: EscalationMap{},
	}
	if len(players) > 0 {
		s.Dealer = Dealer{ID: players[0].ID, Streak: 1}
	}
	return s
}

// DefaultNames returns placeholder names for n seats.
func DefaultNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("Player %d", i+1)
	}
	return names
}

// Clone returns a structurally independent deep copy.
func (s State) Clone() State {
	out := State{
		Players:      make([]Player, len(s.Players)),
		Escalation:   s.Escalation.Clone(),
		LastWinnerID: s.LastWinnerID,
		Dealer:       s.Dealer,
	}
	for i, p := range s.Players {
		out.Players[i] = Player{ID: p.ID, Name: p.Name, Claims: cloneCounts(p.Claims)}
	}
	return out
}

func cloneCounts(m map[int]int) map[int]int {
	if m == nil {
		return nil
	}
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SeatOrder returns player ids in seat order.
func (s State) SeatOrder() []int {
	ids := make([]int, len(s.Players))
	for i, p := range s.Players {
		ids[i] = p.ID
	}
	return ids
}

// HasPlayer reports whether id belongs to a seated player.
func (s State) HasPlayer(id int) bool {
	return s.index(id) >= 0
}

// Player returns the player with the given id.
func (s State) Player(id int) (Player, bool) {
	i := s.index(id)
	if i < 0 {
		return Player{}, false
	}
	return s.Players[i], true
}

// NameOf returns the display name for id, falling back to the numeric id.
func (s State) NameOf(id int) string {
	if p, ok := s.Player(id); ok && p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("#%d", id)
}

func (s State) index(id int) int {
	for i, p := range s.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// mustIndex panics on ids that are not seated; callers validate operator input first.
func (s State) mustIndex(id int) int {
	i := s.index(id)
	if i < 0 {
		panic(fmt.Sprintf("domain: player %d is not seated", id))
	}
	return i
}

// Claim returns what debtor currently owes holder.
func (s State) Claim(holder, debtor int) int {
	i := s.mustIndex(holder)
	s.mustIndex(debtor)
	return s.Players[i].Claims[debtor]
}

// SetClaim records what debtor owes holder. Zero removes the entry.
func (s *State) SetClaim(holder, debtor, amount int) {
	if holder == debtor {
		panic(fmt.Sprintf("domain: self-claim for player %d", holder))
	}
	i := s.mustIndex(holder)
	s.mustIndex(debtor)
	if amount == 0 {
		delete(s.Players[i].Claims, debtor)
		return
	}
	if s.Players[i].Claims == nil {
		s.Players[i].Claims = make(map[int]int)
	}
	s.Players[i].Claims[debtor] = amount
}

// HasLiveClaims reports whether the player holds any positive claim.
func (s State) HasLiveClaims(id int) bool {
	for _, amount := range s.Players[s.mustIndex(id)].Claims {
		if amount > 0 {
			return true
		}
	}
	return false
}

// LaCount returns the escalation count of winner over loser.
func (s State) LaCount(winner, loser int) int {
	s.mustIndex(winner)
	s.mustIndex(loser)
	return s.Escalation.Get(winner, loser)
}

// Apply commits a patch produced by Resolve.
func (s *State) Apply(p Patch) {
	for _, w := range p.Claims {
		s.SetClaim(w.Holder, w.Debtor, w.Amount)
	}
	if len(p.Escalation) > 0 && s.Escalation == nil {
		s.Escalation = EscalationMap{}
	}
	for _, w := range p.Escalation {
		s.mustIndex(w.Winner)
		s.mustIndex(w.Loser)
		s.Escalation.Set(w.Winner, w.Loser, w.Count)
	}
	if p.Dealer != nil {
		s.Dealer = *p.Dealer
	}
	if p.LastWinnerID != nil {
		s.LastWinnerID = *p.LastWinnerID
	}
}

// Restore rewinds ledger, escalation, dealer and last winner to a snapshot. Claims are matched
// by player id so names and seating chosen since the snapshot survive.
func (s *State) Restore(pre State) {
	for i := range s.Players {
		s.Players[i].Claims = nil
		if p, ok := pre.Player(s.Players[i].ID); ok {
			s.Players[i].Claims = cloneCounts(p.Claims)
		}
	}
	s.Escalation = pre.Escalation.Clone()
	s.Dealer = pre.Dealer
	s.LastWinnerID = pre.LastWinnerID
}

// ResetScores clears every claim and escalation count, returns the deal to the first seat and
// forgets the last winner. Names and seating are kept.
func (s *State) ResetScores() {
	for i := range s.Players {
		s.Players[i].Claims = nil
	}
	s.Escalation = EscalationMap{}
	s.LastWinnerID = NoPlayer
	if len(s.Players) > 0 {
		s.Dealer = Dealer{ID: s.Players[0].ID, Streak: 1}
	}
}

// SelectDealer hands the deal to id. The streak restarts only when the dealer changes.
func (s *State) SelectDealer(id int) error {
	if !s.HasPlayer(id) {
		return fmt.Errorf("%w: %d", ErrUnknownPlayer, id)
	}
	if s.Dealer.ID != id {
		s.Dealer = Dealer{ID: id, Streak: 1}
	}
	return nil
}

// Rename changes a player's display name.
func (s *State) Rename(id int, name string) error {
	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownPlayer, id)
	}
	normalized, err := NormalizeName(name)
	if err != nil {
		return err
	}
	s.Players[i].Name = normalized
	return nil
}

// Reseat reorders the table. order must be a permutation of the current player ids.
func (s *State) Reseat(order []int) error {
	if len(order) != len(s.Players) {
		return ErrInvalidSeating
	}
	seated := make([]Player, 0, len(order))
	seen := make(map[int]bool, len(order))
	for _, id := range order {
		i := s.index(id)
		if i < 0 || seen[id] {
			return ErrInvalidSeating
		}
		seen[id] = true
		seated = append(seated, s.Players[i])
	}
	s.Players = seated
	return nil
}
