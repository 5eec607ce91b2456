package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mjscore/internal/app"
	"mjscore/internal/domain"
	"mjscore/internal/storage/sqlite"
)

func seatedState() domain.State {
	return domain.NewState([]string{"Alice", "Bob", "Carol", "Dave"})
}

func TestParsePlayer(t *testing.T) {
	s := seatedState()

	id, err := parsePlayer(s, "3")
	require.NoError(t, err)
	assert.Equal(t, 3, id)

	id, err = parsePlayer(s, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, id)

	_, err = parsePlayer(s, "9")
	assert.ErrorIs(t, err, domain.ErrUnknownPlayer)
	_, err = parsePlayer(s, "Eve")
	assert.ErrorIs(t, err, domain.ErrUnknownPlayer)
}

func TestParseEvent(t *testing.T) {
	s := seatedState()
	tests := []struct {
		name string
		cmd  string
		args []string
		want domain.Event
	}{
		{name: "SelfDraw", cmd: "zimo", args: []string{"alice", "3"}, want: domain.SelfDraw{WinnerID: 1, Fan: 3}},
		{name: "DirectWin", cmd: "win", args: []string{"2", "Carol", "5"}, want: domain.DirectWin{WinnerID: 2, LoserID: 3, Fan: 5}},
		{
			name: "MultiHit",
			cmd:  "multi",
			args: []string{"dave", "alice:2", "bob:3"},
			want: domain.MultiHit{LoserID: 4, Winners: []domain.WinnerFan{{WinnerID: 1, Fan: 2}, {WinnerID: 2, Fan: 3}}},
		},
		{name: "Collect", cmd: "collect", args: []string{"1", "2"}, want: domain.Special{ActorID: 1, Action: domain.ActionCollect, Amount: 2}},
		{name: "Pay", cmd: "pay", args: []string{"1", "2"}, want: domain.Special{ActorID: 1, Action: domain.ActionPay, Amount: 2}},
		{
			name: "CustomPayout",
			cmd:  "zhahu",
			args: []string{"bob", "alice=8", "carol=3", "dave=0"},
			want: domain.CustomPayout{ActorID: 2, Payouts: map[int]int{1: 8, 3: 3, 4: 0}},
		},
		{name: "Forfeit", cmd: "forfeit", args: []string{"carol"}, want: domain.Forfeit{LoserID: 3}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := parseEvent(s, test.cmd, test.args)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestParseEventErrors(t *testing.T) {
	s := seatedState()

	_, err := parseEvent(s, "zimo", []string{"alice"})
	assert.ErrorIs(t, err, errUsage)

	_, err = parseEvent(s, "win", []string{"alice", "bob", "lots"})
	assert.ErrorContains(t, err, "not a number")

	_, err = parseEvent(s, "multi", []string{"dave", "alice2"})
	assert.ErrorContains(t, err, "expected player:value")

	_, err = parseEvent(s, "chow", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownEvent)
}

func TestParseAdjustmentsAndToggle(t *testing.T) {
	adj, err := parseAdjustments(seatedState(), []string{"alice=-1.5", "bob=2", "alice=0.5"})
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{1: -1, 2: 2}, adj)

	on, err := parseToggle("ON")
	require.NoError(t, err)
	assert.True(t, on)
	_, err = parseToggle("maybe")
	assert.Error(t, err)
}

func TestHistoryRowsNewestFirst(t *testing.T) {
	s := seatedState()
	entries := []domain.Entry{
		{Description: "first", Changes: []domain.ScoreChange{{UserID: 1, Delta: 3}, {UserID: 2, Delta: -3}}},
		{Description: "second"},
		{Description: "third"},
	}
	rows := historyRows(s, entries, 2)
	require.Len(t, rows, 3)
	assert.Equal(t, "third", rows[1][2])
	assert.Equal(t, "second", rows[2][2])

	rows = historyRows(s, entries, 0)
	require.Len(t, rows, 4)
	assert.Equal(t, "Alice +3, Bob -3", rows[3][3])
}

func TestTableRowsMarksDealerAndClaims(t *testing.T) {
	sess := domain.NewSession([]string{"Alice", "Bob", "Carol", "Dave"}, domain.DefaultRules())
	sess.State.SetClaim(2, 1, 4)
	sess.State.SetClaim(2, 3, 2)

	rows := tableRows(sess)
	assert.Equal(t, "Alice (dealer)", rows[1][2])
	assert.Equal(t, "Alice 4, Carol 2", rows[2][4])
}

func TestRunPersistsAcrossInvocations(t *testing.T) {
	pterm.DisableOutput()
	t.Cleanup(pterm.EnableOutput)

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "scores.db")
	t.Setenv("MJSCORE_STORE", "sqlite")
	t.Setenv("MJSCORE_SQLITE_PATH", dbPath)
	t.Setenv("MJSCORE_TABLE", "friday")
	t.Setenv("MJSCORE_TABLE_CONFIG", "")

	ctx := context.Background()
	require.NoError(t, run(ctx, "", true, []string{"rename", "1", "Alice"}))
	require.NoError(t, run(ctx, "", true, []string{"zimo", "alice", "3"}))
	require.NoError(t, run(ctx, "", true, []string{"win", "2", "1", "1"}))
	require.NoError(t, run(ctx, "", true, []string{"undo"}))

	out := filepath.Join(dir, "history.csv")
	require.NoError(t, run(ctx, "", true, []string{"export", out}))
	csv, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csv)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Alice,Player 2,Player 3,Player 4", lines[0])
	assert.Equal(t, "12,-4,-4,-4", lines[1])

	err = run(ctx, "", true, []string{"fly"})
	assert.ErrorIs(t, err, errUsage)

	store, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()
	sess, found, err := app.LoadSession(ctx, store.Table("friday"), domain.DefaultRules())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, sess.History.Len())
	assert.Equal(t, 4, sess.State.Claim(1, 2))
	assert.Equal(t, domain.Dealer{ID: 1, Streak: 2}, sess.State.Dealer)

	tables, err := store.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"friday"}, tables)
}

func TestRunRefusesUnreadableTable(t *testing.T) {
	pterm.DisableOutput()
	t.Cleanup(pterm.EnableOutput)

	dbPath := filepath.Join(t.TempDir(), "scores.db")
	t.Setenv("MJSCORE_STORE", "sqlite")
	t.Setenv("MJSCORE_SQLITE_PATH", dbPath)
	t.Setenv("MJSCORE_TABLE", "friday")
	t.Setenv("MJSCORE_TABLE_CONFIG", "")

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, run(ctx, "", true, []string{"zimo", "1", "1"}))
	}

	store, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()
	table := store.Table("friday")
	require.NoError(t, table.Set(ctx, app.KeySchemaVersion, []byte("2")))

	err = run(ctx, "", true, []string{"bump"})
	assert.ErrorIs(t, err, app.ErrUnsupportedSchema)

	require.NoError(t, table.Set(ctx, app.KeySchemaVersion, []byte("1")))
	sess, found, err := app.LoadSession(ctx, table, domain.DefaultRules())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, sess.History.Len())
}
