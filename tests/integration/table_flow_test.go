package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

type player struct {
	ID     int            `json:"id"`
	Name   string         `json:"name"`
	Total  int            `json:"total"`
	Claims map[string]int `json:"claims"`
}

type tableState struct {
	TableID string   `json:"table_id"`
	OwnerID string   `json:"owner_id"`
	Players []player `json:"players"`
	Dealer  struct {
		ID     int `json:"id"`
		Streak int `json:"streak"`
	} `json:"dealer"`
	History []struct {
		Description string `json:"description"`
	} `json:"history"`
}

type errorEvent struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func TestScoreTableFlow(t *testing.T) {
	owner := NewTestClient(t)
	defer owner.Close()
	viewer := NewTestClient(t)
	defer viewer.Close()

	tableID := fmt.Sprintf("it_%d", time.Now().UnixNano())
	opened := owner.OpenTable(t, tableID)
	if !opened.IsNew {
		t.Fatalf("expected a new table, got %+v", opened)
	}
	var state tableState
	owner.WaitFor(t, OpState, &state, 5*time.Second)
	if state.OwnerID != owner.UserID || len(state.Players) != 4 {
		t.Fatalf("initial state = %+v", state)
	}

	// a second user cannot take over the table id
	if _, err := viewer.Client.RpcFunc(context.Background(), viewer.Session, "open_table", fmt.Sprintf(`{"table_id":%q}`, tableID)); err == nil {
		t.Fatalf("open_table by another user succeeded")
	}
	if _, err := viewer.Socket.JoinMatch(context.Background(), nil, opened.MatchID, nil); err != nil {
		t.Fatalf("viewer failed to join: %v", err)
	}
	viewer.WaitFor(t, OpState, nil, 5*time.Second)

	// viewers may preview but not declare
	viewer.Send(t, opened.MatchID, OpDeclare, map[string]any{"kind": "self_draw", "winner_id": 2, "fan": 1})
	var denied errorEvent
	viewer.WaitFor(t, OpError, &denied, 5*time.Second)
	if denied.Code != 403 {
		t.Fatalf("viewer declare error = %+v", denied)
	}

	owner.Send(t, opened.MatchID, OpDeclare, map[string]any{"kind": "self_draw", "winner_id": 1, "fan": 3})
	viewer.WaitFor(t, OpResolved, nil, 5*time.Second)
	viewer.WaitFor(t, OpState, &state, 5*time.Second)
	if state.Players[0].Total != 12 || state.Dealer.Streak != 2 || len(state.History) != 1 {
		t.Fatalf("state after self-draw = %+v", state)
	}

	// a takeover asks the owner first
	takeover := map[string]any{"kind": "direct_win", "winner_id": 3, "loser_id": 4, "fan": 2}
	owner.Send(t, opened.MatchID, OpDeclare, takeover)
	owner.WaitFor(t, OpResetNotice, nil, 5*time.Second)

	takeover["confirm_reset"] = true
	owner.Send(t, opened.MatchID, OpDeclare, takeover)
	viewer.WaitFor(t, OpTakeover, nil, 5*time.Second)
	viewer.WaitFor(t, OpState, &state, 5*time.Second)
	if len(state.Players[0].Claims) != 0 {
		t.Fatalf("takeover left claims behind: %+v", state.Players[0])
	}

	owner.Send(t, opened.MatchID, OpUndo, nil)
	viewer.WaitFor(t, OpUndone, nil, 5*time.Second)
	viewer.WaitFor(t, OpState, &state, 5*time.Second)
	if len(state.History) != 1 || state.Players[0].Claims["2"] != 4 {
		t.Fatalf("state after undo = %+v", state)
	}

	// reopening resumes the running match
	rpc, err := owner.Client.RpcFunc(context.Background(), owner.Session, "open_table", fmt.Sprintf(`{"table_id":%q}`, tableID))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	var again openTableResponse
	if err := json.Unmarshal([]byte(rpc.Payload), &again); err != nil {
		t.Fatalf("decode reopen: %v", err)
	}
	if again.IsNew || again.MatchID != opened.MatchID {
		t.Fatalf("reopen = %+v, want match %s", again, opened.MatchID)
	}
}
