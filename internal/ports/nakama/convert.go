package nakama

import (
	"fmt"
	"strconv"
	"time"

	"mjscore/internal/app"
	"mjscore/internal/domain"
)

// declareRequest is the body of OpDeclare and OpPreview. Kind selects which fields apply.
type declareRequest struct {
	Kind         string         `json:"kind"`
	WinnerID     int            `json:"winner_id,omitempty"`
	LoserID      int            `json:"loser_id,omitempty"`
	Fan          int            `json:"fan,omitempty"`
	Winners      []winnerFan    `json:"winners,omitempty"`
	ActorID      int            `json:"actor_id,omitempty"`
	Action       string         `json:"action,omitempty"`
	Amount       int            `json:"amount,omitempty"`
	Payouts      map[string]int `json:"payouts,omitempty"`
	ConfirmReset bool           `json:"confirm_reset,omitempty"`
}

type winnerFan struct {
	UserID int `json:"user_id"`
	Fan    int `json:"fan"`
}

type userRequest struct {
	UserID int `json:"user_id"`
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

type reseatRequest struct {
	Order []int `json:"order"`
}

type renameRequest struct {
	UserID int    `json:"user_id"`
	Name   string `json:"name"`
}

// toEvent converts a declare request into the matching domain event.
func (r declareRequest) toEvent() (domain.Event, error) {
	switch domain.EventKind(r.Kind) {
	case domain.KindSelfDraw:
		return domain.SelfDraw{WinnerID: r.WinnerID, Fan: r.Fan}, nil
	case domain.KindDirectWin:
		return domain.DirectWin{WinnerID: r.WinnerID, LoserID: r.LoserID, Fan: r.Fan}, nil
	case domain.KindMultiHit:
		winners := make([]domain.WinnerFan, len(r.Winners))
		for i, w := range r.Winners {
			winners[i] = domain.WinnerFan{WinnerID: w.UserID, Fan: w.Fan}
		}
		return domain.MultiHit{LoserID: r.LoserID, Winners: winners}, nil
	case domain.KindSpecial:
		return domain.Special{ActorID: r.ActorID, Action: domain.SpecialAction(r.Action), Amount: r.Amount}, nil
	case domain.KindCustomPayout:
		payouts := make(map[int]int, len(r.Payouts))
		for k, v := range r.Payouts {
			id, err := strconv.Atoi(k)
			if err != nil {
				return nil, fmt.Errorf("%w: payout key %q", domain.ErrUnknownPlayer, k)
			}
			payouts[id] = v
		}
		return domain.CustomPayout{ActorID: r.ActorID, Payouts: payouts}, nil
	case domain.KindForfeit:
		return domain.Forfeit{LoserID: r.LoserID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEvent, r.Kind)
	}
}

type playerView struct {
	ID     int            `json:"id"`
	Name   string         `json:"name"`
	Total  int            `json:"total"`
	Claims map[string]int `json:"claims"`
}

type dealerView struct {
	ID     int `json:"id"`
	Streak int `json:"streak"`
	Bonus  int `json:"bonus"`
}

type changeView struct {
	UserID int `json:"user_id"`
	Delta  int `json:"delta"`
}

type entryView struct {
	ID          string       `json:"id"`
	At          int64        `json:"at"`
	Kind        string       `json:"kind"`
	Description string       `json:"description"`
	Changes     []changeView `json:"changes"`
}

type breakdownView struct {
	WinnerID    int `json:"winner_id"`
	OpponentID  int `json:"opponent_id"`
	Base        int `json:"base"`
	DealerBonus int `json:"dealer_bonus"`
	LaBonus     int `json:"la_bonus"`
	Total       int `json:"total"`
	Final       int `json:"final"`
}

type noticeView struct {
	WinnerIDs []int                     `json:"winner_ids"`
	Cleared   map[string]map[string]int `json:"cleared"`
}

// stateView is the full table snapshot sent with OpState.
type stateView struct {
	TableID          string                    `json:"table_id"`
	OwnerID          string                    `json:"owner_id"`
	Players          []playerView              `json:"players"`
	Dealer           dealerView                `json:"dealer"`
	LastWinnerID     int                       `json:"last_winner_id"`
	LaCounts         map[string]map[string]int `json:"la_counts"`
	PopOnNewWinner   bool                      `json:"pop_on_new_winner"`
	ForfeitThreshold int                       `json:"forfeit_threshold"`
	CanForfeit       []int                     `json:"can_forfeit"`
	History          []entryView               `json:"history"` // newest first
}

type resolvedView struct {
	EntryID     string          `json:"entry_id"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	Changes     []changeView    `json:"changes"`
	Breakdown   []breakdownView `json:"breakdown"`
}

type previewView struct {
	Kind        string          `json:"kind"`
	Applied     bool            `json:"applied"`
	Description string          `json:"description"`
	Changes     []changeView    `json:"changes"`
	Breakdown   []breakdownView `json:"breakdown"`
	Notice      *noticeView     `json:"notice,omitempty"`
}

type errorView struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func toStateView(ms *MatchState) stateView {
	sess := ms.Session
	s := sess.State
	totals := sess.History.Totals()
	view := stateView{
		TableID:          ms.TableID,
		OwnerID:          ms.OwnerID,
		Players:          make([]playerView, 0, len(s.Players)),
		Dealer:           dealerView{ID: s.Dealer.ID, Streak: s.Dealer.Streak, Bonus: s.Dealer.Bonus()},
		LastWinnerID:     s.LastWinnerID,
		LaCounts:         make(map[string]map[string]int, len(s.Escalation)),
		PopOnNewWinner:   sess.Rules.PopOnNewWinner,
		ForfeitThreshold: sess.Rules.ForfeitThreshold,
		CanForfeit:       []int{},
	}
	for _, p := range s.Players {
		view.Players = append(view.Players, playerView{
			ID:     p.ID,
			Name:   p.Name,
			Total:  totals[p.ID],
			Claims: stringKeys(p.Claims),
		})
		if domain.CanForfeit(s, sess.Rules, p.ID) {
			view.CanForfeit = append(view.CanForfeit, p.ID)
		}
	}
	for w, row := range s.Escalation {
		view.LaCounts[strconv.Itoa(w)] = stringKeys(row)
	}
	entries := sess.History.Entries()
	view.History = make([]entryView, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		view.History = append(view.History, entryView{
			ID:          e.ID,
			At:          e.At.UnixMilli(),
			Kind:        string(e.Kind),
			Description: e.Description,
			Changes:     toChangeViews(e.Changes),
		})
	}
	return view
}

func toResolvedView(p app.ResolvedPayload) resolvedView {
	return resolvedView{
		EntryID:     p.EntryID,
		Kind:        string(p.Kind),
		Description: p.Description,
		Changes:     toChangeViews(p.Changes),
		Breakdown:   toBreakdownViews(p.Breakdown),
	}
}

func toPreviewView(res domain.Resolution) previewView {
	return previewView{
		Kind:        string(res.Kind),
		Applied:     res.Applied,
		Description: res.Description,
		Changes:     toChangeViews(res.Changes),
		Breakdown:   toBreakdownViews(res.Breakdown),
		Notice:      toNoticeView(res.Notice),
	}
}

func toNoticeView(n *domain.ResetNotice) *noticeView {
	if n == nil {
		return nil
	}
	view := &noticeView{WinnerIDs: n.WinnerIDs, Cleared: make(map[string]map[string]int, len(n.Cleared))}
	for _, c := range n.Cleared {
		view.Cleared[strconv.Itoa(c.PlayerID)] = stringKeys(c.Claims)
	}
	return view
}

func toChangeViews(changes []domain.ScoreChange) []changeView {
	out := make([]changeView, len(changes))
	for i, c := range changes {
		out[i] = changeView{UserID: c.UserID, Delta: c.Delta}
	}
	return out
}

func toBreakdownViews(bs []domain.Breakdown) []breakdownView {
	out := make([]breakdownView, len(bs))
	for i, b := range bs {
		out[i] = breakdownView{
			WinnerID:    b.WinnerID,
			OpponentID:  b.OpponentID,
			Base:        b.Base,
			DealerBonus: b.DealerBonus,
			LaBonus:     b.LaBonus,
			Total:       b.Total(),
			Final:       b.Final,
		}
	}
	return out
}

func stringKeys(m map[int]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[strconv.Itoa(k)] = v
	}
	return out
}

// exportFileName names an exported CSV after the day it was taken.
func exportFileName(tableID string, at time.Time) string {
	return fmt.Sprintf("%s-%s.csv", tableID, at.Format("2006-01-02"))
}
