package app

import "mjscore/internal/domain"

// EventKind identifies emitted session events for dispatch to clients.
type EventKind string

const (
	EventResolved       EventKind = "resolved"
	EventTakeover       EventKind = "takeover"
	EventUndone         EventKind = "undone"
	EventSessionReset   EventKind = "session_reset"
	EventDealerChanged  EventKind = "dealer_changed"
	EventRulesChanged   EventKind = "rules_changed"
	EventSeatingChanged EventKind = "seating_changed"
	EventPlayerRenamed  EventKind = "player_renamed"
)

// Event is an app event with optional targeted recipients.
type Event struct {
	Kind       EventKind
	Payload    any
	Recipients []string // user IDs; empty means broadcast
}

type ResolvedPayload struct {
	EntryID     string
	Kind        domain.EventKind
	Description string
	Changes     []domain.ScoreChange
	Breakdown   []domain.Breakdown
}

type TakeoverPayload struct {
	Notice domain.ResetNotice
}

type UndonePayload struct {
	EntryID     string
	Description string
}

type DealerPayload struct {
	Dealer domain.Dealer
}

type RulesPayload struct {
	Rules domain.Rules
}

type SeatingPayload struct {
	Order []int
}

type RenamedPayload struct {
	UserID int
	Name   string
}
