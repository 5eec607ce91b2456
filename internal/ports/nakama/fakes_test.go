package nakama

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

// noopLogger implements runtime.Logger for tests that only need to satisfy the interface.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) WithField(string, interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) WithFields(map[string]interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) Fields() map[string]interface{} {
	return nil
}

type sentMessage struct {
	opCode     int64
	data       []byte
	recipients []string // nil means everyone
}

// mockDispatcher records match dispatcher calls for assertions.
type mockDispatcher struct {
	sent         []sentMessage
	labelUpdates int
	lastLabel    string
}

func (md *mockDispatcher) BroadcastMessage(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	msg := sentMessage{opCode: opCode, data: append([]byte(nil), data...)}
	for _, p := range presences {
		msg.recipients = append(msg.recipients, p.GetUserId())
	}
	md.sent = append(md.sent, msg)
	return nil
}

func (md *mockDispatcher) BroadcastMessageDeferred(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	return nil
}

func (md *mockDispatcher) MatchKick(presences []runtime.Presence) error {
	return nil
}

func (md *mockDispatcher) MatchLabelUpdate(label string) error {
	md.labelUpdates++
	md.lastLabel = label
	return nil
}

func (md *mockDispatcher) opCodes() []int64 {
	ops := make([]int64, len(md.sent))
	for i, m := range md.sent {
		ops[i] = m.opCode
	}
	return ops
}

// last returns the newest message with opCode and fails the test when there is none.
func (md *mockDispatcher) last(t *testing.T, opCode int64) sentMessage {
	t.Helper()
	for i := len(md.sent) - 1; i >= 0; i-- {
		if md.sent[i].opCode == opCode {
			return md.sent[i]
		}
	}
	t.Fatalf("no message with op %d sent, got %v", opCode, md.opCodes())
	return sentMessage{}
}

func (md *mockDispatcher) reset() {
	md.sent = nil
}

// fakePresence only answers GetUserId; other methods panic through the nil embed.
type fakePresence struct {
	runtime.Presence
	userID string
}

func (p fakePresence) GetUserId() string { return p.userID }

type fakeMatchData struct {
	runtime.MatchData
	userID string
	opCode int64
	data   []byte
}

func (m fakeMatchData) GetUserId() string { return m.userID }
func (m fakeMatchData) GetOpCode() int64  { return m.opCode }
func (m fakeMatchData) GetData() []byte   { return m.data }

func message(t *testing.T, userID string, opCode int64, body any) runtime.MatchData {
	t.Helper()
	var data []byte
	switch b := body.(type) {
	case nil:
	case string:
		data = []byte(b)
	default:
		var err error
		if data, err = json.Marshal(b); err != nil {
			t.Fatalf("marshal message: %v", err)
		}
	}
	return fakeMatchData{userID: userID, opCode: opCode, data: data}
}

// fakeNakama is an in-memory runtime.NakamaModule covering storage and match listing.
type fakeNakama struct {
	runtime.NakamaModule

	mu      sync.Mutex
	objects map[string]string
	writes  int
	matches map[string]string // match id -> table id
	created []map[string]interface{}
}

func newFakeNakama() *fakeNakama {
	return &fakeNakama{objects: map[string]string{}, matches: map[string]string{}}
}

func (f *fakeNakama) StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*api.StorageObject
	for _, r := range reads {
		if v, ok := f.objects[r.Collection+"|"+r.Key]; ok {
			out = append(out, &api.StorageObject{Collection: r.Collection, Key: r.Key, Value: v, Version: "1"})
		}
	}
	return out, nil
}

func (f *fakeNakama) StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range writes {
		if _, exists := f.objects[w.Collection+"|"+w.Key]; exists && w.Version == "*" {
			return nil, runtime.ErrStorageRejectedVersion
		}
	}
	acks := make([]*api.StorageObjectAck, 0, len(writes))
	for _, w := range writes {
		f.objects[w.Collection+"|"+w.Key] = w.Value
		acks = append(acks, &api.StorageObjectAck{Collection: w.Collection, Key: w.Key, Version: "1"})
	}
	f.writes++
	return acks, nil
}

func (f *fakeNakama) MatchList(ctx context.Context, limit int, authoritative bool, label string, minSize, maxSize *int, query string) ([]*api.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*api.Match
	for id, table := range f.matches {
		if strings.Contains(query, "label.table_id:"+table) {
			out = append(out, &api.Match{MatchId: id, Authoritative: true})
		}
	}
	return out, nil
}

func (f *fakeNakama) MatchCreate(ctx context.Context, module string, params map[string]interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "match-" + params[MatchParamTableID].(string)
	f.matches[id] = params[MatchParamTableID].(string)
	f.created = append(f.created, params)
	return id, nil
}

func (f *fakeNakama) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[defaultStorageCollection+"|"+key]
	return ok
}

func userContext(userID string, env map[string]string) context.Context {
	ctx := context.Background()
	if userID != "" {
		ctx = context.WithValue(ctx, runtime.RUNTIME_CTX_USER_ID, userID)
	}
	if env != nil {
		ctx = context.WithValue(ctx, runtime.RUNTIME_CTX_ENV, env)
	}
	return ctx
}
