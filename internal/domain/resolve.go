package domain

import (
	"fmt"
	"slices"
	"strings"
)

// ScoreChange is one signed adjustment to a player's running total.
type ScoreChange struct {
	UserID int
	Delta  int
}

// ClaimWrite sets what Debtor owes Holder.
type ClaimWrite struct {
	Holder int
	Debtor int
	Amount int
}

// CountWrite sets the escalation count of Winner over Loser.
type CountWrite struct {
	Winner int
	Loser  int
	Count  int
}

// Patch is the state change of one resolved event, applied in order by State.Apply.
// Nil Dealer and LastWinnerID leave those fields alone.
type Patch struct {
	Claims       []ClaimWrite
	Escalation   []CountWrite
	Dealer       *Dealer
	LastWinnerID *int
}

// Breakdown explains one winner/opponent pair of a win.
type Breakdown struct {
	WinnerID    int
	OpponentID  int
	Base        int // declared fan
	DealerBonus int
	LaBonus     int // compounding on a prior claim, or the takeover carry
	Prior       int // winner's claim on the opponent before the event
	Final       int // winner's claim on the opponent after the event
}

// Total is what the opponent pays the winner for this pair.
func (b Breakdown) Total() int {
	return b.Base + b.DealerBonus + b.LaBonus
}

// ResetNotice lists the claims a takeover is about to zero, for the operator to confirm.
type ResetNotice struct {
	WinnerIDs []int
	Cleared   []ClearedClaims
}

// ClearedClaims is what one player held before a takeover wiped it.
type ClearedClaims struct {
	PlayerID int
	Claims   map[int]int
}

// Resolution is the outcome of resolving an event against a state. Resolve never mutates the
// state it reads; callers commit Patch with State.Apply.
type Resolution struct {
	Kind EventKind
	// Applied is false when a precondition was not met and the event is a no-op.
	Applied     bool
	Changes     []ScoreChange
	Patch       Patch
	Breakdown   []Breakdown
	Notice      *ResetNotice
	Description string
}

// Resolve turns an event into score changes and a state patch.
func Resolve(s State, rules Rules, ev Event) (Resolution, error) {
	switch e := ev.(type) {
	case SelfDraw:
		return resolveSelfDraw(s, rules, e)
	case DirectWin:
		return resolveDirectWin(s, rules, e)
	case MultiHit:
		return resolveMultiHit(s, rules, e)
	case Special:
		return resolveSpecial(s, e)
	case CustomPayout:
		return resolveCustomPayout(s, e)
	case Forfeit:
		return resolveForfeit(s, rules, e)
	default:
		return Resolution{}, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

// CanForfeit reports whether loser may currently surrender to the last winner.
func CanForfeit(s State, rules Rules, loserID int) bool {
	winner := s.LastWinnerID
	if winner == NoPlayer || winner == loserID || !s.HasPlayer(winner) || !s.HasPlayer(loserID) {
		return false
	}
	return s.Escalation.Get(winner, loserID) >= rules.forfeitThreshold() && s.Claim(winner, loserID) > 0
}

func resolveSelfDraw(s State, rules Rules, e SelfDraw) (Resolution, error) {
	if !s.HasPlayer(e.WinnerID) {
		return Resolution{}, fmt.Errorf("%w: winner %d", ErrUnknownPlayer, e.WinnerID)
	}
	if e.Fan <= 0 {
		return Resolution{}, fmt.Errorf("%w: %d", ErrInvalidFan, e.Fan)
	}
	var opponents []int
	for _, id := range s.SeatOrder() {
		if id != e.WinnerID {
			opponents = append(opponents, id)
		}
	}
	res := resolveWin(s, rules, KindSelfDraw, []hit{{winner: e.WinnerID, fan: e.Fan, opponents: opponents}})
	res.Description = fmt.Sprintf("%s self-draw %d fan", s.NameOf(e.WinnerID), e.Fan)
	return res, nil
}

func resolveDirectWin(s State, rules Rules, e DirectWin) (Resolution, error) {
	if !s.HasPlayer(e.WinnerID) {
		return Resolution{}, fmt.Errorf("%w: winner %d", ErrUnknownPlayer, e.WinnerID)
	}
	if !s.HasPlayer(e.LoserID) {
		return Resolution{}, fmt.Errorf("%w: loser %d", ErrUnknownPlayer, e.LoserID)
	}
	if e.WinnerID == e.LoserID {
		return Resolution{}, ErrSelfTarget
	}
	if e.Fan <= 0 {
		return Resolution{}, fmt.Errorf("%w: %d", ErrInvalidFan, e.Fan)
	}
	res := resolveWin(s, rules, KindDirectWin, []hit{{winner: e.WinnerID, fan: e.Fan, opponents: []int{e.LoserID}}})
	res.Description = fmt.Sprintf("%s wins %d fan off %s", s.NameOf(e.WinnerID), e.Fan, s.NameOf(e.LoserID))
	return res, nil
}

func resolveMultiHit(s State, rules Rules, e MultiHit) (Resolution, error) {
	if !s.HasPlayer(e.LoserID) {
		return Resolution{}, fmt.Errorf("%w: loser %d", ErrUnknownPlayer, e.LoserID)
	}
	if len(e.Winners) < 2 || len(e.Winners) > 3 {
		return Resolution{}, fmt.Errorf("%w: got %d", ErrWinnerCount, len(e.Winners))
	}
	hits := make([]hit, 0, len(e.Winners))
	seen := make(map[int]bool, len(e.Winners))
	parts := make([]string, 0, len(e.Winners))
	for _, w := range e.Winners {
		switch {
		case !s.HasPlayer(w.WinnerID):
			return Resolution{}, fmt.Errorf("%w: winner %d", ErrUnknownPlayer, w.WinnerID)
		case w.WinnerID == e.LoserID:
			return Resolution{}, ErrSelfTarget
		case seen[w.WinnerID]:
			return Resolution{}, fmt.Errorf("%w: %d", ErrDuplicateWinner, w.WinnerID)
		case w.Fan <= 0:
			return Resolution{}, fmt.Errorf("%w: winner %d declared %d", ErrInvalidFan, w.WinnerID, w.Fan)
		}
		seen[w.WinnerID] = true
		hits = append(hits, hit{winner: w.WinnerID, fan: w.Fan, opponents: []int{e.LoserID}})
		parts = append(parts, fmt.Sprintf("%s (%d fan)", s.NameOf(w.WinnerID), w.Fan))
	}
	res := resolveWin(s, rules, KindMultiHit, hits)
	res.Description = fmt.Sprintf("%s deals into %s", s.NameOf(e.LoserID), strings.Join(parts, ", "))
	return res, nil
}

func resolveSpecial(s State, e Special) (Resolution, error) {
	if !s.HasPlayer(e.ActorID) {
		return Resolution{}, fmt.Errorf("%w: actor %d", ErrUnknownPlayer, e.ActorID)
	}
	var sign int
	var verb string
	switch e.Action {
	case ActionCollect:
		sign, verb = 1, "collects %d from every player"
	case ActionPay:
		sign, verb = -1, "pays %d to every player"
	default:
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidAction, e.Action)
	}
	if e.Amount <= 0 {
		return Resolution{}, fmt.Errorf("%w: %d", ErrInvalidAmount, e.Amount)
	}

	changes := []ScoreChange{{UserID: e.ActorID, Delta: sign * e.Amount * (len(s.Players) - 1)}}
	for _, id := range s.SeatOrder() {
		if id != e.ActorID {
			changes = append(changes, ScoreChange{UserID: id, Delta: -sign * e.Amount})
		}
	}
	return Resolution{
		Kind:        KindSpecial,
		Applied:     true,
		Changes:     changes,
		Description: s.NameOf(e.ActorID) + " " + fmt.Sprintf(verb, e.Amount),
	}, nil
}

func resolveCustomPayout(s State, e CustomPayout) (Resolution, error) {
	if !s.HasPlayer(e.ActorID) {
		return Resolution{}, fmt.Errorf("%w: actor %d", ErrUnknownPlayer, e.ActorID)
	}
	for id, amount := range e.Payouts {
		switch {
		case id == e.ActorID:
			return Resolution{}, ErrSelfTarget
		case !s.HasPlayer(id):
			return Resolution{}, fmt.Errorf("%w: opponent %d", ErrUnknownPlayer, id)
		case amount < 0:
			return Resolution{}, fmt.Errorf("%w: opponent %d", ErrNegativePayout, id)
		}
	}

	var changes []ScoreChange
	var parts []string
	total := 0
	for _, id := range s.SeatOrder() {
		if id == e.ActorID {
			continue
		}
		amount, ok := e.Payouts[id]
		if !ok {
			return Resolution{}, fmt.Errorf("%w: opponent %d", ErrMissingPayout, id)
		}
		if amount == 0 {
			continue
		}
		total += amount
		changes = append(changes, ScoreChange{UserID: id, Delta: amount})
		parts = append(parts, fmt.Sprintf("%s %d", s.NameOf(id), amount))
	}
	if total == 0 {
		return Resolution{}, ErrNothingToPay
	}
	return Resolution{
		Kind:        KindCustomPayout,
		Applied:     true,
		Changes:     append([]ScoreChange{{UserID: e.ActorID, Delta: -total}}, changes...),
		Description: fmt.Sprintf("%s false win, pays %s", s.NameOf(e.ActorID), strings.Join(parts, ", ")),
	}, nil
}

func resolveForfeit(s State, rules Rules, e Forfeit) (Resolution, error) {
	if !s.HasPlayer(e.LoserID) {
		return Resolution{}, fmt.Errorf("%w: loser %d", ErrUnknownPlayer, e.LoserID)
	}
	res := Resolution{Kind: KindForfeit, Changes: []ScoreChange{}}
	if !CanForfeit(s, rules, e.LoserID) {
		return res, nil
	}
	winner := s.LastWinnerID
	claim := s.Claim(winner, e.LoserID)
	res.Applied = true
	res.Patch = Patch{
		Claims:     []ClaimWrite{{Holder: winner, Debtor: e.LoserID, Amount: 0}},
		Escalation: []CountWrite{{Winner: winner, Loser: e.LoserID, Count: 0}},
	}
	res.Description = fmt.Sprintf("%s surrenders %d to %s", s.NameOf(e.LoserID), claim, s.NameOf(winner))
	return res, nil
}

// hit is one winner collecting from a set of opponents.
type hit struct {
	winner    int
	fan       int
	opponents []int
}

// resolveWin prices every winner/opponent pair from the same pre-event state, then builds the
// patch: takeover clears, collected claims, new claims and counts, dealer and last winner.
func resolveWin(s State, rules Rules, kind EventKind, hits []hit) Resolution {
	winners := make(map[int]bool, len(hits))
	winnerIDs := make([]int, 0, len(hits))
	for _, h := range hits {
		winners[h.winner] = true
		winnerIDs = append(winnerIDs, h.winner)
	}
	takeover := rules.PopOnNewWinner && liveClaimsOutside(s, winners)
	bonus := s.Dealer.Bonus()

	deltas := make(map[int]int)
	breakdown := make([]Breakdown, 0)
	for _, h := range hits {
		for _, o := range h.opponents {
			b := Breakdown{WinnerID: h.winner, OpponentID: o, Base: h.fan, Prior: s.Claim(h.winner, o)}
			if h.winner == s.Dealer.ID || o == s.Dealer.ID {
				b.DealerBonus = bonus
			}
			switch {
			case b.Prior > 0:
				b.LaBonus = halfRoundedUp(b.Prior)
			case takeover:
				b.LaBonus = s.Claim(o, h.winner) / 2
			}
			b.Final = b.Prior + b.Total()
			deltas[h.winner] += b.Total()
			deltas[o] -= b.Total()
			breakdown = append(breakdown, b)
		}
	}

	var patch Patch
	claimCleared := make(map[[2]int]bool)
	clearClaim := func(holder, debtor int) {
		key := [2]int{holder, debtor}
		if claimCleared[key] {
			return
		}
		claimCleared[key] = true
		patch.Claims = append(patch.Claims, ClaimWrite{Holder: holder, Debtor: debtor})
	}
	countCleared := make(map[[2]int]bool)
	clearCount := func(winner, loser int) {
		key := [2]int{winner, loser}
		if countCleared[key] {
			return
		}
		countCleared[key] = true
		patch.Escalation = append(patch.Escalation, CountWrite{Winner: winner, Loser: loser})
	}

	var notice *ResetNotice
	if takeover {
		notice = &ResetNotice{WinnerIDs: slices.Clone(winnerIDs)}
		for _, p := range s.Players {
			zeroed := make(map[int]int)
			for _, debtor := range sortedKeys(p.Claims) {
				amount := p.Claims[debtor]
				if amount <= 0 || (winners[p.ID] && opposes(hits, p.ID, debtor)) {
					continue
				}
				clearClaim(p.ID, debtor)
				zeroed[debtor] = amount
			}
			if len(zeroed) > 0 {
				notice.Cleared = append(notice.Cleared, ClearedClaims{PlayerID: p.ID, Claims: zeroed})
			}
			if !winners[p.ID] {
				for _, loser := range sortedKeys(s.Escalation[p.ID]) {
					clearCount(p.ID, loser)
				}
			}
		}
	}

	for _, w := range winnerIDs {
		for _, p := range s.Players {
			if winners[p.ID] {
				continue
			}
			if s.Claim(p.ID, w) > 0 {
				clearClaim(p.ID, w)
			}
			if s.Escalation.Get(p.ID, w) > 0 {
				clearCount(p.ID, w)
			}
		}
	}

	for _, b := range breakdown {
		patch.Claims = append(patch.Claims, ClaimWrite{Holder: b.WinnerID, Debtor: b.OpponentID, Amount: b.Final})
		patch.Escalation = append(patch.Escalation, CountWrite{
			Winner: b.WinnerID,
			Loser:  b.OpponentID,
			Count:  s.Escalation.Get(b.WinnerID, b.OpponentID) + 1,
		})
	}

	principal := winnerIDs[0]
	dealer := s.Dealer.After(principal, s.SeatOrder())
	patch.Dealer = &dealer
	patch.LastWinnerID = &principal

	changes := make([]ScoreChange, 0, len(s.Players))
	for _, w := range winnerIDs {
		changes = append(changes, ScoreChange{UserID: w, Delta: deltas[w]})
	}
	for _, id := range s.SeatOrder() {
		if !winners[id] && deltas[id] != 0 {
			changes = append(changes, ScoreChange{UserID: id, Delta: deltas[id]})
		}
	}

	return Resolution{
		Kind:      kind,
		Applied:   true,
		Changes:   changes,
		Patch:     patch,
		Breakdown: breakdown,
		Notice:    notice,
	}
}

// liveClaimsOutside reports whether anyone outside the winner set holds a positive claim.
func liveClaimsOutside(s State, winners map[int]bool) bool {
	for _, p := range s.Players {
		if !winners[p.ID] && s.HasLiveClaims(p.ID) {
			return true
		}
	}
	return false
}

func opposes(hits []hit, winner, opponent int) bool {
	for _, h := range hits {
		if h.winner == winner && slices.Contains(h.opponents, opponent) {
			return true
		}
	}
	return false
}

// halfRoundedUp is round(n*0.5) with halves rounded up, for n >= 0.
func halfRoundedUp(n int) int {
	return (n + 1) / 2
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SumChanges returns the total of all deltas; every resolved event sums to zero.
func SumChanges(changes []ScoreChange) int {
	total := 0
	for _, c := range changes {
		total += c.Delta
	}
	return total
}
