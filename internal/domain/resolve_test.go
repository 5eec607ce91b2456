package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = 1
	bob   = 2
	carol = 3
	dave  = 4
)

func newTable() State {
	return NewState([]string{"Alice", "Bob", "Carol", "Dave"})
}

// commit resolves ev and applies it, failing the test on any error.
func commit(t *testing.T, s *State, rules Rules, ev Event) Resolution {
	t.Helper()
	res, err := Resolve(*s, rules, ev)
	require.NoError(t, err)
	s.Apply(res.Patch)
	return res
}

func changesByID(changes []ScoreChange) map[int]int {
	out := make(map[int]int, len(changes))
	for _, c := range changes {
		out[c.UserID] += c.Delta
	}
	return out
}

func TestSelfDrawByDealerFromCleanTable(t *testing.T) {
	s := newTable()
	res := commit(t, &s, DefaultRules(), SelfDraw{WinnerID: alice, Fan: 3})

	assert.True(t, res.Applied)
	assert.Nil(t, res.Notice)
	assert.Equal(t, map[int]int{alice: 12, bob: -4, carol: -4, dave: -4}, changesByID(res.Changes))
	assert.Equal(t, Dealer{ID: alice, Streak: 2}, s.Dealer)
	assert.Equal(t, alice, s.LastWinnerID)
	for _, o := range []int{bob, carol, dave} {
		assert.Equal(t, 4, s.Claim(alice, o))
		assert.Equal(t, 1, s.LaCount(alice, o))
	}
}

func TestRepeatSelfDrawCompoundsPriorClaim(t *testing.T) {
	s := newTable()
	commit(t, &s, DefaultRules(), SelfDraw{WinnerID: alice, Fan: 3})
	res := commit(t, &s, DefaultRules(), SelfDraw{WinnerID: alice, Fan: 3})

	// prior 4, la round(4*0.5)=2, base 3, dealer bonus 2*2-1=3
	require.Len(t, res.Breakdown, 3)
	for _, b := range res.Breakdown {
		assert.Equal(t, Breakdown{WinnerID: alice, OpponentID: b.OpponentID, Base: 3, DealerBonus: 3, LaBonus: 2, Prior: 4, Final: 12}, b)
		assert.Equal(t, 12, s.Claim(alice, b.OpponentID))
		assert.Equal(t, 2, s.LaCount(alice, b.OpponentID))
	}
	// deltas carry only what the claim grew by
	assert.Equal(t, map[int]int{alice: 24, bob: -8, carol: -8, dave: -8}, changesByID(res.Changes))
	assert.Equal(t, Dealer{ID: alice, Streak: 3}, s.Dealer)
}

func TestEscalationRoundsHalfUp(t *testing.T) {
	tests := []struct {
		prior int
		want  int
	}{
		{1, 1}, {2, 1}, {3, 2}, {5, 3}, {7, 4}, {12, 6},
	}
	for _, tt := range tests {
		s := newTable()
		s.Dealer = Dealer{ID: carol, Streak: 1}
		s.SetClaim(alice, bob, tt.prior)
		res, err := Resolve(s, DefaultRules(), DirectWin{WinnerID: alice, LoserID: bob, Fan: 2})
		require.NoError(t, err)
		require.Len(t, res.Breakdown, 1)
		assert.Equal(t, tt.want, res.Breakdown[0].LaBonus, "prior %d", tt.prior)
		assert.Equal(t, tt.prior+tt.want+2, res.Breakdown[0].Final, "prior %d", tt.prior)
	}
}

func TestDirectWinAgainstDealerAddsBonus(t *testing.T) {
	s := newTable()
	s.Dealer = Dealer{ID: bob, Streak: 2}
	res := commit(t, &s, DefaultRules(), DirectWin{WinnerID: carol, LoserID: bob, Fan: 2})

	assert.Equal(t, map[int]int{carol: 5, bob: -5}, changesByID(res.Changes))
	assert.Equal(t, Dealer{ID: carol, Streak: 1}, s.Dealer)
}

func TestDirectWinWithoutDealerInvolved(t *testing.T) {
	s := newTable()
	res := commit(t, &s, DefaultRules(), DirectWin{WinnerID: carol, LoserID: dave, Fan: 2})

	assert.Equal(t, []ScoreChange{{UserID: carol, Delta: 2}, {UserID: dave, Delta: -2}}, res.Changes)
	assert.Equal(t, Dealer{ID: bob, Streak: 1}, s.Dealer)
}

func TestDealerPassesCircularly(t *testing.T) {
	s := newTable()
	s.Dealer = Dealer{ID: dave, Streak: 4}
	commit(t, &s, DefaultRules(), DirectWin{WinnerID: bob, LoserID: carol, Fan: 1})
	assert.Equal(t, Dealer{ID: alice, Streak: 1}, s.Dealer)
}

func TestTakeoverClearsOtherClaimsAndCarriesHalf(t *testing.T) {
	s := newTable()
	commit(t, &s, DefaultRules(), SelfDraw{WinnerID: alice, Fan: 3})
	s.Escalation.Set(carol, dave, 2)

	res := commit(t, &s, DefaultRules(), DirectWin{WinnerID: bob, LoserID: alice, Fan: 2})

	// carry floor(4/2)=2, base 2, alice is dealer at streak 2 so bonus 3
	require.Len(t, res.Breakdown, 1)
	assert.Equal(t, 2, res.Breakdown[0].LaBonus)
	assert.Equal(t, 3, res.Breakdown[0].DealerBonus)
	assert.Equal(t, map[int]int{bob: 7, alice: -7}, changesByID(res.Changes))

	require.NotNil(t, res.Notice)
	assert.Equal(t, []int{bob}, res.Notice.WinnerIDs)
	assert.Equal(t, []ClearedClaims{{PlayerID: alice, Claims: map[int]int{bob: 4, carol: 4, dave: 4}}}, res.Notice.Cleared)

	for _, o := range []int{bob, carol, dave} {
		assert.Zero(t, s.Claim(alice, o))
		assert.Zero(t, s.LaCount(alice, o))
	}
	assert.Zero(t, s.LaCount(carol, dave))
	assert.Equal(t, 7, s.Claim(bob, alice))
	assert.Equal(t, 1, s.LaCount(bob, alice))
	assert.Equal(t, Dealer{ID: bob, Streak: 1}, s.Dealer)
}

func TestTakeoverKeepsWinnerClaimOnlyAgainstOpponent(t *testing.T) {
	s := newTable()
	s.Dealer = Dealer{ID: dave, Streak: 1}
	s.SetClaim(bob, carol, 6)
	s.SetClaim(bob, alice, 3)
	s.SetClaim(carol, dave, 5)
	s.Escalation.Set(bob, carol, 1)

	res := commit(t, &s, DefaultRules(), DirectWin{WinnerID: bob, LoserID: alice, Fan: 1})

	// prior 3 compounds, carol still holds a claim so a takeover is in effect
	assert.Equal(t, 3+2+1, s.Claim(bob, alice))
	assert.Zero(t, s.Claim(bob, carol))
	assert.Zero(t, s.Claim(carol, dave))
	assert.Equal(t, 1, s.LaCount(bob, carol), "winner rows survive a takeover")
	require.NotNil(t, res.Notice)
	assert.Equal(t, []ClearedClaims{
		{PlayerID: bob, Claims: map[int]int{carol: 6}},
		{PlayerID: carol, Claims: map[int]int{dave: 5}},
	}, res.Notice.Cleared)
}

func TestNoTakeoverWhenPopDisabled(t *testing.T) {
	rules := Rules{PopOnNewWinner: false}
	s := newTable()
	commit(t, &s, rules, SelfDraw{WinnerID: alice, Fan: 3})

	res := commit(t, &s, rules, DirectWin{WinnerID: bob, LoserID: alice, Fan: 2})

	assert.Nil(t, res.Notice)
	assert.Zero(t, res.Breakdown[0].LaBonus)
	assert.Equal(t, map[int]int{bob: 5, alice: -5}, changesByID(res.Changes))
	// collected: alice can no longer claim from bob, but keeps the rest
	assert.Zero(t, s.Claim(alice, bob))
	assert.Zero(t, s.LaCount(alice, bob))
	assert.Equal(t, 4, s.Claim(alice, carol))
	assert.Equal(t, 1, s.LaCount(alice, carol))
}

func TestWinnerWithOnlyOwnClaimsIsNotATakeover(t *testing.T) {
	s := newTable()
	commit(t, &s, DefaultRules(), SelfDraw{WinnerID: alice, Fan: 1})
	res := commit(t, &s, DefaultRules(), DirectWin{WinnerID: alice, LoserID: carol, Fan: 1})

	assert.Nil(t, res.Notice)
	assert.Equal(t, 2, s.Claim(alice, bob))
	assert.Equal(t, 2, s.Claim(alice, dave))
}

func TestMultiHitReadsPreEventState(t *testing.T) {
	s := newTable()
	commit(t, &s, DefaultRules(), SelfDraw{WinnerID: alice, Fan: 3})
	s.SetClaim(dave, bob, 4)
	s.SetClaim(dave, carol, 6)

	res := commit(t, &s, DefaultRules(), MultiHit{
		LoserID: dave,
		Winners: []WinnerFan{{WinnerID: bob, Fan: 2}, {WinnerID: carol, Fan: 1}},
	})

	// both carries come from dave's pre-event claims
	require.Len(t, res.Breakdown, 2)
	assert.Equal(t, 2, res.Breakdown[0].LaBonus)
	assert.Equal(t, 3, res.Breakdown[1].LaBonus)
	assert.Equal(t, []ScoreChange{{UserID: bob, Delta: 4}, {UserID: carol, Delta: 4}, {UserID: dave, Delta: -8}}, res.Changes)
	assert.Equal(t, Dealer{ID: bob, Streak: 1}, s.Dealer)
	assert.Equal(t, bob, s.LastWinnerID)
	assert.Zero(t, s.Claim(dave, bob))
	assert.Zero(t, s.Claim(alice, dave))
	require.NotNil(t, res.Notice)
	assert.Equal(t, []int{bob, carol}, res.Notice.WinnerIDs)
}

func TestMultiHitPrincipalDealerKeepsDeal(t *testing.T) {
	s := newTable()
	res := commit(t, &s, DefaultRules(), MultiHit{
		LoserID: carol,
		Winners: []WinnerFan{{WinnerID: alice, Fan: 1}, {WinnerID: bob, Fan: 1}},
	})
	assert.Equal(t, map[int]int{alice: 2, bob: 1, carol: -3}, changesByID(res.Changes))
	assert.Equal(t, Dealer{ID: alice, Streak: 2}, s.Dealer)
}

func TestWinEventsAreZeroSum(t *testing.T) {
	s := newTable()
	events := []Event{
		SelfDraw{WinnerID: alice, Fan: 2},
		DirectWin{WinnerID: alice, LoserID: bob, Fan: 5},
		DirectWin{WinnerID: carol, LoserID: alice, Fan: 1},
		MultiHit{LoserID: dave, Winners: []WinnerFan{{WinnerID: carol, Fan: 3}, {WinnerID: alice, Fan: 2}, {WinnerID: bob, Fan: 1}}},
		SelfDraw{WinnerID: dave, Fan: 8},
		Special{ActorID: bob, Action: ActionCollect, Amount: 3},
		CustomPayout{ActorID: carol, Payouts: map[int]int{alice: 1, bob: 0, dave: 7}},
	}
	for _, ev := range events {
		res := commit(t, &s, DefaultRules(), ev)
		assert.Zero(t, SumChanges(res.Changes), "%s", res.Description)
	}
}

func TestResolveRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want error
	}{
		{"nil event", nil, ErrUnknownEvent},
		{"self-draw unknown winner", SelfDraw{WinnerID: 9, Fan: 1}, ErrUnknownPlayer},
		{"self-draw zero fan", SelfDraw{WinnerID: alice, Fan: 0}, ErrInvalidFan},
		{"direct win self", DirectWin{WinnerID: bob, LoserID: bob, Fan: 1}, ErrSelfTarget},
		{"direct win negative fan", DirectWin{WinnerID: bob, LoserID: carol, Fan: -2}, ErrInvalidFan},
		{"direct win unknown loser", DirectWin{WinnerID: bob, LoserID: 0, Fan: 1}, ErrUnknownPlayer},
		{"multi-hit one winner", MultiHit{LoserID: alice, Winners: []WinnerFan{{bob, 1}}}, ErrWinnerCount},
		{"multi-hit four winners", MultiHit{LoserID: alice, Winners: []WinnerFan{{bob, 1}, {carol, 1}, {dave, 1}, {alice, 1}}}, ErrWinnerCount},
		{"multi-hit loser wins", MultiHit{LoserID: alice, Winners: []WinnerFan{{bob, 1}, {alice, 1}}}, ErrSelfTarget},
		{"multi-hit duplicate", MultiHit{LoserID: alice, Winners: []WinnerFan{{bob, 1}, {bob, 2}}}, ErrDuplicateWinner},
		{"multi-hit zero fan", MultiHit{LoserID: alice, Winners: []WinnerFan{{bob, 1}, {carol, 0}}}, ErrInvalidFan},
		{"special bad action", Special{ActorID: alice, Action: "steal", Amount: 1}, ErrInvalidAction},
		{"special zero amount", Special{ActorID: alice, Action: ActionPay, Amount: 0}, ErrInvalidAmount},
		{"payout missing opponent", CustomPayout{ActorID: alice, Payouts: map[int]int{bob: 1, carol: 1}}, ErrMissingPayout},
		{"payout negative", CustomPayout{ActorID: alice, Payouts: map[int]int{bob: 1, carol: -1, dave: 1}}, ErrNegativePayout},
		{"payout to self", CustomPayout{ActorID: alice, Payouts: map[int]int{alice: 1, bob: 1, carol: 1, dave: 1}}, ErrSelfTarget},
		{"payout all zero", CustomPayout{ActorID: alice, Payouts: map[int]int{bob: 0, carol: 0, dave: 0}}, ErrNothingToPay},
		{"forfeit unknown loser", Forfeit{LoserID: 7}, ErrUnknownPlayer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTable()
			s.SetClaim(alice, bob, 3)
			before := s.Clone()
			_, err := Resolve(s, DefaultRules(), tt.ev)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, before, s)
		})
	}
}

func TestSpecialCollectAndPay(t *testing.T) {
	s := newTable()
	s.SetClaim(bob, carol, 4)
	before := s.Clone()

	res, err := Resolve(s, DefaultRules(), Special{ActorID: bob, Action: ActionCollect, Amount: 5})
	require.NoError(t, err)
	assert.Equal(t, []ScoreChange{{bob, 15}, {alice, -5}, {carol, -5}, {dave, -5}}, res.Changes)
	assert.Equal(t, Patch{}, res.Patch)

	res, err = Resolve(s, DefaultRules(), Special{ActorID: bob, Action: ActionPay, Amount: 2})
	require.NoError(t, err)
	assert.Equal(t, []ScoreChange{{bob, -6}, {alice, 2}, {carol, 2}, {dave, 2}}, res.Changes)

	s.Apply(res.Patch)
	assert.Equal(t, before, s)
}

func TestCustomPayoutOmitsZeroAmounts(t *testing.T) {
	s := newTable()
	res, err := Resolve(s, DefaultRules(), CustomPayout{ActorID: carol, Payouts: map[int]int{alice: 8, bob: 0, dave: 3}})
	require.NoError(t, err)
	assert.Equal(t, []ScoreChange{{carol, -11}, {alice, 8}, {dave, 3}}, res.Changes)
	assert.Equal(t, "Carol false win, pays Alice 8, Dave 3", res.Description)
}

func TestForfeitGating(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		claim   int
		last    int
		applied bool
	}{
		{"below threshold", 2, 10, alice, false},
		{"at threshold", 3, 10, alice, true},
		{"above threshold", 5, 10, alice, true},
		{"claim already zero", 3, 0, alice, false},
		{"no last winner", 3, 10, NoPlayer, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTable()
			s.SetClaim(alice, bob, tt.claim)
			s.Escalation.Set(alice, bob, tt.count)
			s.LastWinnerID = tt.last
			before := s.Clone()

			res := commit(t, &s, DefaultRules(), Forfeit{LoserID: bob})

			assert.Equal(t, tt.applied, res.Applied)
			assert.Empty(t, res.Changes)
			assert.NotNil(t, res.Changes)
			if !tt.applied {
				assert.Equal(t, before, s)
				return
			}
			assert.Zero(t, s.Claim(alice, bob))
			assert.Zero(t, s.LaCount(alice, bob))
			assert.Equal(t, before.Dealer, s.Dealer)
			assert.Equal(t, alice, s.LastWinnerID)
		})
	}
}

func TestForfeitHonoursConfiguredThreshold(t *testing.T) {
	s := newTable()
	s.SetClaim(alice, bob, 10)
	s.Escalation.Set(alice, bob, 2)
	s.LastWinnerID = alice

	assert.False(t, CanForfeit(s, DefaultRules(), bob))
	assert.True(t, CanForfeit(s, Rules{ForfeitThreshold: 2}, bob))
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	s := newTable()
	commit(t, &s, DefaultRules(), SelfDraw{WinnerID: alice, Fan: 3})
	before := s.Clone()

	_, err := Resolve(s, DefaultRules(), DirectWin{WinnerID: bob, LoserID: alice, Fan: 2})
	require.NoError(t, err)
	assert.Equal(t, before, s)
}
