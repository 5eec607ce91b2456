package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"mjscore/internal/app"
	"mjscore/internal/config"
	"mjscore/internal/domain"
	"mjscore/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	MatchParamTableID = "table_id"
	MatchParamOwnerID = "owner_id"
)

// MatchState holds the authoritative runtime state for one score table.
type MatchState struct {
	TableID    string                      `json:"table_id"`
	OwnerID    string                      `json:"owner_id"`
	Tick       int64                       `json:"tick"`
	EmptySince int64                       `json:"empty_since"` // tick the table became empty, -1 until then or while occupied
	IdleTicks  int64                       `json:"idle_ticks"`
	Presences  map[string]runtime.Presence `json:"-"` // Map UserId -> Presence for targeted messaging
	Session    *domain.Session             `json:"-"`
	LoadErr    error                       `json:"-"` // set when the stored table could not be read; changes are refused
	App        *app.Service                `json:"-"`
	Persister  *app.Persister              `json:"-"`
}

type matchHandler struct{}

func newMatchHandler() *matchHandler {
	return &matchHandler{}
}

// newMatchState builds the state of a table from whatever the store holds.
func newMatchState(ctx context.Context, logger runtime.Logger, store ports.BlobStore, tableID, ownerID string, cfg *config.TableConfig) *MatchState {
	appLogger := newAppLogger(logger).WithFields(logrus.Fields{"table": tableID})

	persister := app.NewPersister(store, appLogger)
	sess, found, err := app.LoadSession(ctx, store, cfg.Rules())
	if err != nil {
		logger.Error("MatchInit: Failed to load table %s, serving it read-only: %v", tableID, err)
		persister.Freeze(err)
	}
	if !found || err != nil {
		sess = domain.NewSession(cfg.Names(), cfg.Rules())
	}
	// the threshold is a deployment setting, not saved with the table
	sess.Rules.ForfeitThreshold = cfg.Rules().ForfeitThreshold

	return &MatchState{
		TableID:    tableID,
		OwnerID:    ownerID,
		EmptySince: -1,
		IdleTicks:  cfg.IdleTimeoutTicks(),
		Presences:  make(map[string]runtime.Presence),
		Session:    sess,
		LoadErr:    err,
		App:        app.NewService(appLogger, persister),
		Persister:  persister,
	}
}

// MatchInit is called when the match is created.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	tableID, _ := params[MatchParamTableID].(string)
	ownerID, _ := params[MatchParamOwnerID].(string)
	if tableID == "" || ownerID == "" {
		logger.Error("MatchInit: table_id and owner_id are required")
		return nil, 0, ""
	}

	cfg := config.GetTableConfig()
	store := NewNakamaBlobStore(nk, envValue(ctx, EnvStorageCollection), tableID)
	state := newMatchState(ctx, logger, store, tableID, ownerID, cfg)

	label, err := matchLabel(state)
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		return nil, 0, ""
	}
	logger.Info("MatchInit: Table %s opened by %s with %d history entries.", tableID, ownerID, state.Session.History.Len())
	return state, cfg.GetTickRate(), label
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	if _, ok := state.(*MatchState); !ok {
		return state, false, "state not found"
	}
	// anyone may watch; only the owner may change scores
	return state, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}

	for _, p := range presences {
		matchState.Presences[p.GetUserId()] = p
		logger.Debug("MatchJoin: User %s joined table %s (owner=%t).", p.GetUserId(), matchState.TableID, p.GetUserId() == matchState.OwnerID)
	}
	matchState.EmptySince = -1

	mh.sendState(matchState, dispatcher, logger, presences)
	return matchState
}

// MatchLeave is called when one or more presences leave the match.
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}

	for _, p := range presences {
		delete(matchState.Presences, p.GetUserId())
		logger.Debug("MatchLeave: User %s left table %s.", p.GetUserId(), matchState.TableID)
	}
	if len(matchState.Presences) == 0 {
		matchState.EmptySince = tick
	}
	return matchState
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}

	matchState.Tick = tick

	for _, msg := range messages {
		mh.handleMessage(ctx, matchState, dispatcher, logger, msg)
	}

	if len(matchState.Presences) == 0 {
		// a table nobody ever joined idles from its first tick
		if matchState.EmptySince < 0 {
			matchState.EmptySince = tick
		}
		if tick-matchState.EmptySince >= matchState.IdleTicks {
			logger.Info("MatchLoop: Closing idle table %s.", matchState.TableID)
			matchState.Persister.Close()
			return nil
		}
	}
	return matchState
}

func (mh *matchHandler) handleMessage(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	senderID := msg.GetUserId()

	if msg.GetOpCode() == OpPreview {
		mh.handlePreview(state, dispatcher, logger, msg)
		return
	}

	if err := app.Authorize(state.OwnerID, senderID); err != nil {
		logger.Warn("MatchLoop: User %s tried op %d on table %s but is not owner.", senderID, msg.GetOpCode(), state.TableID)
		mh.sendError(state, dispatcher, logger, senderID, ErrCodeNotOwner, err.Error())
		return
	}
	if state.LoadErr != nil {
		logger.Warn("MatchLoop: Op %d on table %s refused, table failed to load.", msg.GetOpCode(), state.TableID)
		mh.sendError(state, dispatcher, logger, senderID, ErrCodeUnavailable, "table could not be loaded, changes are disabled")
		return
	}

	var (
		events []app.Event
		err    error
	)
	switch msg.GetOpCode() {
	case OpDeclare:
		events, err = mh.handleDeclare(ctx, state, dispatcher, logger, msg)
	case OpUndo:
		events, err = state.App.Undo(ctx, state.Session)
	case OpReset:
		events, err = state.App.Reset(ctx, state.Session)
	case OpSelectDealer:
		var req userRequest
		if err = json.Unmarshal(msg.GetData(), &req); err == nil {
			events, err = state.App.SelectDealer(ctx, state.Session, req.UserID)
		}
	case OpBumpStreak:
		events, err = state.App.BumpStreak(ctx, state.Session)
	case OpSetPopOnNewWinner:
		var req toggleRequest
		if err = json.Unmarshal(msg.GetData(), &req); err == nil {
			events, err = state.App.SetPopOnNewWinner(ctx, state.Session, req.Enabled)
		}
	case OpReseat:
		var req reseatRequest
		if err = json.Unmarshal(msg.GetData(), &req); err == nil {
			events, err = state.App.Reseat(ctx, state.Session, req.Order)
		}
	case OpRename:
		var req renameRequest
		if err = json.Unmarshal(msg.GetData(), &req); err == nil {
			events, err = state.App.Rename(ctx, state.Session, req.UserID, req.Name)
		}
	default:
		logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
		return
	}

	if errors.Is(err, app.ErrNotConfirmed) {
		return
	}
	if err != nil {
		logger.Warn("MatchLoop: Op %d from %s rejected: %v", msg.GetOpCode(), senderID, err)
		mh.sendError(state, dispatcher, logger, senderID, ErrCodeBadRequest, err.Error())
		return
	}
	if len(events) == 0 {
		return
	}

	for _, ev := range events {
		mh.broadcastEvent(state, dispatcher, logger, ev)
	}
	mh.sendState(state, dispatcher, logger, nil)
	mh.updateLabel(state, dispatcher, logger)
}

// handleDeclare resolves a declared event. A takeover is committed only when the request
// carries confirm_reset; otherwise the notice is sent back to the owner to confirm.
func (mh *matchHandler) handleDeclare(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) ([]app.Event, error) {
	var req declareRequest
	if err := json.Unmarshal(msg.GetData(), &req); err != nil {
		return nil, err
	}
	ev, err := req.toEvent()
	if err != nil {
		return nil, err
	}
	confirm := func(notice *domain.ResetNotice) bool {
		if req.ConfirmReset {
			return true
		}
		mh.sendTo(state, dispatcher, logger, msg.GetUserId(), OpResetNotice, toNoticeView(notice))
		return false
	}
	return state.App.Declare(ctx, state.Session, ev, confirm)
}

func (mh *matchHandler) handlePreview(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData) {
	var req declareRequest
	if err := json.Unmarshal(msg.GetData(), &req); err != nil {
		mh.sendError(state, dispatcher, logger, msg.GetUserId(), ErrCodeBadRequest, err.Error())
		return
	}
	ev, err := req.toEvent()
	if err == nil {
		var res domain.Resolution
		if res, err = state.App.Preview(state.Session, ev); err == nil {
			mh.sendTo(state, dispatcher, logger, msg.GetUserId(), OpPreviewResult, toPreviewView(res))
			return
		}
	}
	mh.sendError(state, dispatcher, logger, msg.GetUserId(), ErrCodeBadRequest, err.Error())
}

// broadcastEvent maps app events to op codes and sends them to every presence.
func (mh *matchHandler) broadcastEvent(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, ev app.Event) {
	var (
		opCode  int64
		payload any
	)
	switch p := ev.Payload.(type) {
	case app.ResolvedPayload:
		opCode, payload = OpResolved, toResolvedView(p)
		logger.Info("Event: resolved %s (%s)", p.Kind, p.Description)
	case app.TakeoverPayload:
		opCode, payload = OpTakeover, toNoticeView(&p.Notice)
	case app.UndonePayload:
		opCode, payload = OpUndone, map[string]string{"entry_id": p.EntryID, "description": p.Description}
	case app.DealerPayload:
		opCode, payload = OpDealerChanged, dealerView{ID: p.Dealer.ID, Streak: p.Dealer.Streak, Bonus: p.Dealer.Bonus()}
	case app.RulesPayload:
		opCode, payload = OpRulesChanged, map[string]any{"pop_on_new_winner": p.Rules.PopOnNewWinner}
	case app.SeatingPayload:
		opCode, payload = OpSeatingChanged, map[string]any{"order": p.Order}
	case app.RenamedPayload:
		opCode, payload = OpPlayerRenamed, map[string]any{"user_id": p.UserID, "name": p.Name}
	default:
		if ev.Kind != app.EventSessionReset {
			logger.Warn("Unknown event kind: %v", ev.Kind)
			return
		}
		opCode, payload = OpSessionReset, map[string]any{}
	}

	bytes, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal event %v: %v", ev.Kind, err)
		return
	}

	var recipients []runtime.Presence
	for _, userID := range ev.Recipients {
		if p, ok := state.Presences[userID]; ok {
			recipients = append(recipients, p)
		}
	}
	if len(ev.Recipients) > 0 && len(recipients) == 0 {
		return
	}
	if err := dispatcher.BroadcastMessage(opCode, bytes, recipients, nil, true); err != nil {
		logger.Error("Failed to broadcast event %v: %v", ev.Kind, err)
	}
}

// sendState sends the full table snapshot; nil presences means everyone.
func (mh *matchHandler) sendState(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, presences []runtime.Presence) {
	bytes, err := json.Marshal(toStateView(state))
	if err != nil {
		logger.Error("sendState: Failed to marshal state: %v", err)
		return
	}
	if err := dispatcher.BroadcastMessage(OpState, bytes, presences, nil, true); err != nil {
		logger.Error("sendState: Failed to broadcast: %v", err)
	}
}

func (mh *matchHandler) sendTo(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string, opCode int64, payload any) {
	presence, ok := state.Presences[userID]
	if !ok {
		logger.Warn("Cannot send op %d to %s: Presence not found", opCode, userID)
		return
	}
	bytes, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal op %d: %v", opCode, err)
		return
	}
	if err := dispatcher.BroadcastMessage(opCode, bytes, []runtime.Presence{presence}, nil, true); err != nil {
		logger.Error("Failed to send op %d to %s: %v", opCode, userID, err)
	}
}

// sendError sends an error event to a specific user.
func (mh *matchHandler) sendError(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string, code int, message string) {
	mh.sendTo(state, dispatcher, logger, userID, OpError, errorView{Code: code, Message: message})
}

// matchLabel renders the label clients and open_table query on.
func matchLabel(state *MatchState) (string, error) {
	label, err := structpb.NewStruct(map[string]interface{}{
		"game":     MatchLabelGame,
		"table_id": state.TableID,
		"owner_id": state.OwnerID,
		"players":  len(state.Session.State.Players),
		"entries":  state.Session.History.Len(),
	})
	if err != nil {
		return "", err
	}
	b, err := protojson.MarshalOptions{EmitUnpopulated: true}.Marshal(label)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (mh *matchHandler) updateLabel(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	label, err := matchLabel(state)
	if err != nil {
		logger.Error("UpdateLabel: Failed to marshal: %v", err)
		return
	}
	if err := dispatcher.MatchLabelUpdate(label); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
	}
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	logger.Debug("MatchTerminate: Match terminated, grace %d seconds", graceSeconds)
	if matchState, ok := state.(*MatchState); ok && matchState.Persister != nil {
		matchState.Persister.Close()
	}
	return state
}

func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	return state, ""
}

func envValue(ctx context.Context, key string) string {
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	return env[key]
}
