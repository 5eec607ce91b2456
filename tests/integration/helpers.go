package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/heroiclabs/nakama-common/rtapi"
	"github.com/heroiclabs/nakama-go/v2"
)

const (
	ServerKey = "defaultkey"
	Host      = "127.0.0.1"
	Port      = 7350
)

// Op codes mirrored from the server module.
const (
	OpDeclare       = 1
	OpPreview       = 2
	OpUndo          = 3
	OpState         = 101
	OpResolved      = 102
	OpResetNotice   = 103
	OpUndone        = 104
	OpPreviewResult = 106
	OpError         = 107
	OpTakeover      = 112
)

type TestClient struct {
	Client   *nakama.Client
	Session  *nakama.Session
	Socket   *nakama.Socket
	UserID   string
	messages chan *rtapi.MatchData
}

func NewTestClient(t *testing.T) *TestClient {
	client := nakama.NewClient(ServerKey, Host, Port, false)

	deviceID := fmt.Sprintf("mjscore_device_%d", time.Now().UnixNano())

	session, err := client.AuthenticateDevice(context.Background(), deviceID, true, "")
	if err != nil {
		t.Fatalf("Failed to authenticate: %v", err)
	}

	tc := &TestClient{
		Client:   client,
		Session:  session,
		UserID:   session.UserId,
		messages: make(chan *rtapi.MatchData, 64),
	}

	socket := client.NewSocket()
	socket.OnMatchData = func(data *rtapi.MatchData) {
		select {
		case tc.messages <- data:
		default:
		}
	}
	if err := socket.Connect(context.Background(), session, true); err != nil {
		t.Fatalf("Failed to connect socket: %v", err)
	}
	tc.Socket = socket
	return tc
}

func (tc *TestClient) Close() {
	if tc.Socket != nil {
		tc.Socket.Close()
	}
}

type openTableResponse struct {
	MatchID string `json:"match_id"`
	TableID string `json:"table_id"`
	IsNew   bool   `json:"is_new"`
}

// OpenTable calls the 'open_table' RPC and joins the returned match.
func (tc *TestClient) OpenTable(t *testing.T, tableID string) openTableResponse {
	payload, _ := json.Marshal(map[string]string{"table_id": tableID})
	rpc, err := tc.Client.RpcFunc(context.Background(), tc.Session, "open_table", string(payload))
	if err != nil {
		t.Fatalf("RPC open_table failed: %v", err)
	}

	var resp openTableResponse
	if err := json.Unmarshal([]byte(rpc.Payload), &resp); err != nil {
		t.Fatalf("open_table returned %q: %v", rpc.Payload, err)
	}
	if resp.MatchID == "" {
		t.Fatalf("RPC open_table returned empty match id")
	}

	if _, err := tc.Socket.JoinMatch(context.Background(), nil, resp.MatchID, nil); err != nil {
		t.Fatalf("Failed to join match %s: %v", resp.MatchID, err)
	}
	return resp
}

// Send marshals body as JSON and sends it with opCode.
func (tc *TestClient) Send(t *testing.T, matchID string, opCode int64, body any) {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal op %d: %v", opCode, err)
		}
	}
	if _, err := tc.Socket.SendMatchState(context.Background(), matchID, opCode, data, nil); err != nil {
		t.Fatalf("Failed to send op %d: %v", opCode, err)
	}
}

// WaitFor drops messages until one with opCode arrives and decodes it into out.
func (tc *TestClient) WaitFor(t *testing.T, opCode int64, out any, timeout time.Duration) {
	deadline := time.After(timeout)
	for {
		select {
		case data := <-tc.messages:
			if data.OpCode != opCode {
				continue
			}
			if out != nil {
				if err := json.Unmarshal(data.Data, out); err != nil {
					t.Fatalf("decode op %d: %v", opCode, err)
				}
			}
			return
		case <-deadline:
			t.Fatalf("Timeout waiting for OpCode %d", opCode)
		}
	}
}
