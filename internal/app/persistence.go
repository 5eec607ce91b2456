package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mjscore/internal/domain"
	"mjscore/internal/ports"
)

// Blob keys of a persisted session.
const (
	KeySchemaVersion   = "schemaVersion"
	KeyUsers           = "users"
	KeyHistory         = "history"
	KeyDealerID        = "dealerId"
	KeyConsecutiveWins = "consecutiveWins"
	KeyCurrentWinnerID = "currentWinnerId"
	KeyLaCounts        = "laCounts"
	KeyPopOnNewWinner  = "popOnNewWinner"
)

// SchemaVersion is written with every save. Sessions saved without one are read as version 1.
const SchemaVersion = 1

const persistTimeout = 10 * time.Second

var ErrUnsupportedSchema = errors.New("unsupported session schema version")

type userRecord struct {
	ID        int         `json:"id"`
	Name      string      `json:"name"`
	WinValues map[int]int `json:"winValues"`
}

type changeRecord struct {
	UserID int `json:"userId"`
	Change int `json:"change"`
}

type snapshotRecord struct {
	Users           []userRecord        `json:"users"`
	LaCounts        map[int]map[int]int `json:"laCounts"`
	DealerID        int                 `json:"dealerId"`
	ConsecutiveWins int                 `json:"consecutiveWins"`
	CurrentWinnerID *int                `json:"currentWinnerId"`
}

type entryRecord struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	Kind          string         `json:"kind"`
	Description   string         `json:"description"`
	ScoreChanges  []changeRecord `json:"scoreChanges"`
	PreviousState snapshotRecord `json:"previousState"`
}

// EncodeSession serializes a session into its blob keys.
func EncodeSession(sess *domain.Session) (map[string][]byte, error) {
	snap := toSnapshot(sess.State)
	entries := sess.History.Entries()
	history := make([]entryRecord, len(entries))
	for i, e := range entries {
		changes := make([]changeRecord, len(e.Changes))
		for j, c := range e.Changes {
			changes[j] = changeRecord{UserID: c.UserID, Change: c.Delta}
		}
		history[i] = entryRecord{
			ID:            e.ID,
			Timestamp:     e.At,
			Kind:          string(e.Kind),
			Description:   e.Description,
			ScoreChanges:  changes,
			PreviousState: toSnapshot(e.PreState),
		}
	}

	values := map[string]any{
		KeySchemaVersion:   SchemaVersion,
		KeyUsers:           snap.Users,
		KeyHistory:         history,
		KeyDealerID:        snap.DealerID,
		KeyConsecutiveWins: snap.ConsecutiveWins,
		KeyCurrentWinnerID: snap.CurrentWinnerID,
		KeyLaCounts:        snap.LaCounts,
		KeyPopOnNewWinner:  sess.Rules.PopOnNewWinner,
	}
	blobs := make(map[string][]byte, len(values))
	for key, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		blobs[key] = b
	}
	return blobs, nil
}

// SaveSession writes every key of the session synchronously.
func SaveSession(ctx context.Context, store ports.BlobStore, sess *domain.Session) error {
	blobs, err := EncodeSession(sess)
	if err != nil {
		return err
	}
	if batch, ok := store.(ports.BatchSetter); ok {
		return batch.SetMany(ctx, blobs)
	}
	keys := make([]string, 0, len(blobs))
	for k := range blobs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var errs []error
	for _, k := range keys {
		if err := store.Set(ctx, k, blobs[k]); err != nil {
			errs = append(errs, fmt.Errorf("set %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// LoadSession reads a session from store. found is false when no players were ever saved;
// rules supplies defaults for preferences that were never written.
func LoadSession(ctx context.Context, store ports.BlobStore, rules domain.Rules) (*domain.Session, bool, error) {
	var version int
	found, err := getJSON(ctx, store, KeySchemaVersion, &version)
	if err != nil {
		return nil, false, err
	}
	if found && version > SchemaVersion {
		return nil, false, fmt.Errorf("%w: %d", ErrUnsupportedSchema, version)
	}

	var snap snapshotRecord
	found, err = getJSON(ctx, store, KeyUsers, &snap.Users)
	if err != nil || !found {
		return nil, false, err
	}
	if _, err := getJSON(ctx, store, KeyLaCounts, &snap.LaCounts); err != nil {
		return nil, false, err
	}
	if _, err := getJSON(ctx, store, KeyDealerID, &snap.DealerID); err != nil {
		return nil, false, err
	}
	if _, err := getJSON(ctx, store, KeyConsecutiveWins, &snap.ConsecutiveWins); err != nil {
		return nil, false, err
	}
	if _, err := getJSON(ctx, store, KeyCurrentWinnerID, &snap.CurrentWinnerID); err != nil {
		return nil, false, err
	}
	if _, err := getJSON(ctx, store, KeyPopOnNewWinner, &rules.PopOnNewWinner); err != nil {
		return nil, false, err
	}
	var records []entryRecord
	if _, err := getJSON(ctx, store, KeyHistory, &records); err != nil {
		return nil, false, err
	}

	entries := make([]domain.Entry, len(records))
	for i, r := range records {
		changes := make([]domain.ScoreChange, len(r.ScoreChanges))
		for j, c := range r.ScoreChanges {
			changes[j] = domain.ScoreChange{UserID: c.UserID, Delta: c.Change}
		}
		entries[i] = domain.Entry{
			ID:          r.ID,
			At:          r.Timestamp,
			Kind:        domain.EventKind(r.Kind),
			Description: r.Description,
			Changes:     changes,
			PreState:    fromSnapshot(r.PreviousState),
		}
	}

	state := fromSnapshot(snap)
	if !state.HasPlayer(state.Dealer.ID) && len(state.Players) > 0 {
		state.Dealer = domain.Dealer{ID: state.Players[0].ID, Streak: 1}
	}
	return &domain.Session{State: state, History: domain.NewHistory(entries), Rules: rules}, true, nil
}

func getJSON(ctx context.Context, store ports.BlobStore, key string, v any) (bool, error) {
	blob, found, err := store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if !found || len(blob) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(blob, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func toSnapshot(s domain.State) snapshotRecord {
	users := make([]userRecord, len(s.Players))
	for i, p := range s.Players {
		claims := make(map[int]int, len(p.Claims))
		for k, v := range p.Claims {
			claims[k] = v
		}
		users[i] = userRecord{ID: p.ID, Name: p.Name, WinValues: claims}
	}
	counts := make(map[int]map[int]int, len(s.Escalation))
	for w, row := range s.Escalation {
		counts[w] = make(map[int]int, len(row))
		for l, n := range row {
			counts[w][l] = n
		}
	}
	rec := snapshotRecord{
		Users:           users,
		LaCounts:        counts,
		DealerID:        s.Dealer.ID,
		ConsecutiveWins: s.Dealer.Streak,
	}
	if s.LastWinnerID != domain.NoPlayer {
		id := s.LastWinnerID
		rec.CurrentWinnerID = &id
	}
	return rec
}

func fromSnapshot(r snapshotRecord) domain.State {
	s := domain.State{
		Players:    make([]domain.Player, len(r.Users)),
		Escalation: domain.EscalationMap{},
		Dealer:     domain.Dealer{ID: r.DealerID, Streak: max(r.ConsecutiveWins, 1)},
	}
	for i, u := range r.Users {
		s.Players[i] = domain.Player{ID: u.ID, Name: u.Name}
	}
	for i, u := range r.Users {
		for debtor, amount := range u.WinValues {
			if amount != 0 && debtor != u.ID && s.HasPlayer(debtor) {
				if s.Players[i].Claims == nil {
					s.Players[i].Claims = make(map[int]int)
				}
				s.Players[i].Claims[debtor] = amount
			}
		}
	}
	for w, row := range r.LaCounts {
		for l, n := range row {
			s.Escalation.Set(w, l, n)
		}
	}
	if r.CurrentWinnerID != nil {
		s.LastWinnerID = *r.CurrentWinnerID
	}
	return s
}

// Persister writes committed sessions in the background. Saves arriving while a write is in
// flight coalesce so only the newest session is written next. Failures are logged and dropped.
type Persister struct {
	store   ports.BlobStore
	log     logrus.FieldLogger
	pending chan *domain.Session
	done    chan struct{}

	mu     sync.Mutex
	closed bool
	frozen error
}

var _ Saver = (*Persister)(nil)

// NewPersister starts the background writer. Call Close to flush and stop it.
func NewPersister(store ports.BlobStore, log logrus.FieldLogger) *Persister {
	p := &Persister{
		store:   store,
		log:     log,
		pending: make(chan *domain.Session, 1),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Save queues a copy of sess. It never blocks on the store.
func (p *Persister) Save(_ context.Context, sess *domain.Session) {
	snap := sess.Clone()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.log.Warn("Persister: save after close dropped")
		return
	}
	if p.frozen != nil {
		p.log.WithError(p.frozen).Error("Persister: table failed to load, save refused")
		return
	}
	for {
		select {
		case p.pending <- snap:
			return
		default:
		}
		select {
		case <-p.pending:
		default:
		}
	}
}

// Freeze makes every later Save a logged no-op. It is used when the stored table could not
// be read, so a fresh session never overwrites it.
func (p *Persister) Freeze(cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frozen = cause
}

// Close writes any queued session and stops the writer.
func (p *Persister) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.pending)
	}
	p.mu.Unlock()
	<-p.done
}

func (p *Persister) run() {
	defer close(p.done)
	for sess := range p.pending {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := SaveSession(ctx, p.store, sess); err != nil {
			p.log.WithError(err).Error("Persister: failed to save session")
		}
		cancel()
	}
}
