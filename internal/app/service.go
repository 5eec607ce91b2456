package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mjscore/internal/domain"
)

var (
	ErrNotOwner     = errors.New("actor is not table owner")
	ErrNotConfirmed = errors.New("takeover reset was not confirmed")
	ErrNoSession    = errors.New("session is nil")
)

// Confirm is asked before a takeover wipes other players' claims. A nil Confirm accepts.
type Confirm func(notice *domain.ResetNotice) bool

// Saver receives every committed session. Implementations must not block the caller.
type Saver interface {
	Save(ctx context.Context, sess *domain.Session)
}

// Service contains score tracking use-cases operating on a session.
// It resolves one operator action at a time; callers serialize access to a session.
type Service struct {
	log   logrus.FieldLogger
	saver Saver
	now   func() time.Time
	newID func() string
}

// NewService constructs a Service. saver may be nil when nothing is persisted.
func NewService(log logrus.FieldLogger, saver Saver) *Service {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	return &Service{
		log:   log,
		saver: saver,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// WithClock replaces the time source used to stamp history entries.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Authorize allows only the table owner to mutate a session.
func Authorize(ownerID, actorID string) error {
	if ownerID == "" || ownerID != actorID {
		return ErrNotOwner
	}
	return nil
}

// Preview resolves ev without committing it, for showing the breakdown before confirmation.
func (s *Service) Preview(sess *domain.Session, ev domain.Event) (domain.Resolution, error) {
	if sess == nil {
		return domain.Resolution{}, ErrNoSession
	}
	return domain.Resolve(sess.State, sess.Rules, ev)
}

// Declare resolves and commits an operator-declared event.
// Nothing changes when validation fails, the event is a no-op, or the takeover is declined.
func (s *Service) Declare(ctx context.Context, sess *domain.Session, ev domain.Event, confirm Confirm) ([]Event, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	res, err := domain.Resolve(sess.State, sess.Rules, ev)
	if err != nil {
		s.log.WithField("kind", kindOf(ev)).WithError(err).Debug("Declare: rejected")
		return nil, err
	}
	if !res.Applied {
		s.log.WithField("kind", res.Kind).Debug("Declare: precondition not met, ignoring")
		return nil, nil
	}
	if res.Notice != nil && confirm != nil && !confirm(res.Notice) {
		return nil, ErrNotConfirmed
	}

	pre := sess.State.Clone()
	sess.State.Apply(res.Patch)
	entry := domain.Entry{
		ID:          s.newID(),
		At:          s.now(),
		Kind:        res.Kind,
		Description: res.Description,
		Changes:     res.Changes,
		PreState:    pre,
	}
	sess.History.Push(entry)

	s.log.WithFields(logrus.Fields{
		"kind":    res.Kind,
		"entry":   entry.ID,
		"dealer":  sess.State.Dealer.ID,
		"streak":  sess.State.Dealer.Streak,
		"history": sess.History.Len(),
	}).Info("Declare: committed")

	events := make([]Event, 0, 2)
	if res.Notice != nil {
		events = append(events, Event{Kind: EventTakeover, Payload: TakeoverPayload{Notice: *res.Notice}})
	}
	events = append(events, Event{
		Kind: EventResolved,
		Payload: ResolvedPayload{
			EntryID:     entry.ID,
			Kind:        res.Kind,
			Description: res.Description,
			Changes:     res.Changes,
			Breakdown:   res.Breakdown,
		},
	})
	s.save(ctx, sess)
	return events, nil
}

// Undo reverts the newest history entry. Undo on an empty history is a no-op.
func (s *Service) Undo(ctx context.Context, sess *domain.Session) ([]Event, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	entry, ok := sess.History.Pop()
	if !ok {
		s.log.Debug("Undo: history empty")
		return nil, nil
	}
	sess.State.Restore(entry.PreState)
	s.log.WithField("entry", entry.ID).Info("Undo: reverted")
	s.save(ctx, sess)
	return []Event{{
		Kind:    EventUndone,
		Payload: UndonePayload{EntryID: entry.ID, Description: entry.Description},
	}}, nil
}

// Reset clears scores, claims and history. It cannot be undone.
func (s *Service) Reset(ctx context.Context, sess *domain.Session) ([]Event, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	sess.State.ResetScores()
	sess.History.Clear()
	s.log.Info("Reset: session cleared")
	s.save(ctx, sess)
	return []Event{{Kind: EventSessionReset}}, nil
}

// SelectDealer hands the deal to a seat. It is not recorded in history.
func (s *Service) SelectDealer(ctx context.Context, sess *domain.Session, userID int) ([]Event, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	if err := sess.State.SelectDealer(userID); err != nil {
		return nil, err
	}
	s.save(ctx, sess)
	return []Event{{Kind: EventDealerChanged, Payload: DealerPayload{Dealer: sess.State.Dealer}}}, nil
}

// BumpStreak adds a dealer streak round without a win. It is not recorded in history.
func (s *Service) BumpStreak(ctx context.Context, sess *domain.Session) ([]Event, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	sess.State.Dealer = sess.State.Dealer.Bumped()
	s.save(ctx, sess)
	return []Event{{Kind: EventDealerChanged, Payload: DealerPayload{Dealer: sess.State.Dealer}}}, nil
}

// SetPopOnNewWinner toggles whether a takeover wipes other players' claims.
func (s *Service) SetPopOnNewWinner(ctx context.Context, sess *domain.Session, on bool) ([]Event, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	sess.Rules.PopOnNewWinner = on
	s.save(ctx, sess)
	return []Event{{Kind: EventRulesChanged, Payload: RulesPayload{Rules: sess.Rules}}}, nil
}

// Reseat reorders the table without touching scores.
func (s *Service) Reseat(ctx context.Context, sess *domain.Session, order []int) ([]Event, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	if err := sess.State.Reseat(order); err != nil {
		return nil, err
	}
	s.save(ctx, sess)
	return []Event{{Kind: EventSeatingChanged, Payload: SeatingPayload{Order: sess.State.SeatOrder()}}}, nil
}

// Rename changes a player's display name without touching scores.
func (s *Service) Rename(ctx context.Context, sess *domain.Session, userID int, name string) ([]Event, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	if err := sess.State.Rename(userID, name); err != nil {
		return nil, err
	}
	s.save(ctx, sess)
	return []Event{{
		Kind:    EventPlayerRenamed,
		Payload: RenamedPayload{UserID: userID, Name: sess.State.NameOf(userID)},
	}}, nil
}

func (s *Service) save(ctx context.Context, sess *domain.Session) {
	if s.saver == nil {
		return
	}
	s.saver.Save(ctx, sess)
}

func kindOf(ev domain.Event) string {
	if ev == nil {
		return "<nil>"
	}
	return fmt.Sprint(ev.Kind())
}
