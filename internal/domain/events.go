package domain

// EventKind identifies an operator-declared event.
type EventKind string

const (
	KindSelfDraw     EventKind = "self_draw"
	KindDirectWin    EventKind = "direct_win"
	KindMultiHit     EventKind = "multi_hit"
	KindSpecial      EventKind = "special"
	KindCustomPayout EventKind = "custom_payout"
	KindForfeit      EventKind = "forfeit"
)

// Event is one of the declared event variants below. The set is closed; Resolve switches on it.
type Event interface {
	Kind() EventKind
	isEvent()
}

// SelfDraw: the winner collects from every opponent.
type SelfDraw struct {
	WinnerID int
	Fan      int
}

// DirectWin: the loser discarded the winning tile and pays alone.
type DirectWin struct {
	WinnerID int
	LoserID  int
	Fan      int
}

// WinnerFan pairs a multi-hit winner with the fan it declared.
type WinnerFan struct {
	WinnerID int
	Fan      int
}

// MultiHit: one discard wins for two or three players at once. The first winner listed drives
// the dealer transition.
type MultiHit struct {
	LoserID int
	Winners []WinnerFan
}

// SpecialAction is the direction of a flat side payment.
type SpecialAction string

const (
	ActionCollect SpecialAction = "collect"
	ActionPay     SpecialAction = "pay"
)

// Special is a flat side payment between the actor and every other player.
type Special struct {
	ActorID int
	Action  SpecialAction
	Amount  int
}

// CustomPayout ("zha hu") makes the actor pay each opponent an operator-chosen amount.
type CustomPayout struct {
	ActorID int
	Payouts map[int]int // opponent id -> amount, every opponent required
}

// Forfeit writes off the current winner's claim against the loser.
type Forfeit struct {
	LoserID int
}

func (SelfDraw) Kind() EventKind     { return KindSelfDraw }
func (DirectWin) Kind() EventKind    { return KindDirectWin }
func (MultiHit) Kind() EventKind     { return KindMultiHit }
func (Special) Kind() EventKind      { return KindSpecial }
func (CustomPayout) Kind() EventKind { return KindCustomPayout }
func (Forfeit) Kind() EventKind      { return KindForfeit }

func (SelfDraw) isEvent()     {}
func (DirectWin) isEvent()    {}
func (MultiHit) isEvent()     {}
func (Special) isEvent()      {}
func (CustomPayout) isEvent() {}
func (Forfeit) isEvent()      {}

// IsWin reports whether the kind moves the dealer and the claims ledger.
func (k EventKind) IsWin() bool {
	return k == KindSelfDraw || k == KindDirectWin || k == KindMultiHit
}
