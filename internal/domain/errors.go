package domain

import "errors"

// Validation errors returned by Resolve and the state mutators. State is never touched when one
// of these is returned.
var (
	ErrUnknownPlayer   = errors.New("unknown player")
	ErrInvalidFan      = errors.New("fan must be positive")
	ErrWinnerCount     = errors.New("multi-hit needs 2 or 3 winners")
	ErrDuplicateWinner = errors.New("winner declared more than once")
	ErrSelfTarget      = errors.New("player cannot target themselves")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidAction   = errors.New("unknown special action")
	ErrMissingPayout   = errors.New("payout required for every opponent")
	ErrNegativePayout  = errors.New("payout cannot be negative")
	ErrNothingToPay    = errors.New("payouts are all zero")
	ErrUnknownEvent    = errors.New("unknown event")
	ErrEmptyName       = errors.New("name is empty")
	ErrNameTooLong     = errors.New("name is too long")
	ErrInvalidSeating  = errors.New("seating must list every player exactly once")
)
