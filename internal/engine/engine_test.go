package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/config"
	"github.com/elys-network/votesnap/internal/simulations"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epochLength = 7 * 24 * time.Hour

var (
	alice   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000002")
	wrapper = common.HexToAddress("0x000000000000000000000000000000000000a001")
	poolA   = common.HexToAddress("0x000000000000000000000000000000000000aa01")
	poolB   = common.HexToAddress("0x000000000000000000000000000000000000aa02")
	usdc    = common.HexToAddress("0x000000000000000000000000000000000000c0c0")
	weth    = common.HexToAddress("0x000000000000000000000000000000000000e7e7")
	dai     = common.HexToAddress("0x000000000000000000000000000000000000da10")
)

func i64(v int64) sdkmath.Int { return sdkmath.NewInt(v) }

// windowOpen is 30 minutes before an epoch boundary.
func windowOpen() time.Time {
	secs := int64(epochLength / time.Second)
	ref := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	return time.Unix((ref/secs+1)*secs, 0).UTC().Add(-30 * time.Minute)
}

type fixture struct {
	env    *simulations.Environment
	clock  *clockwork.FakeClock
	engine *Engine
}

func newFixture(t *testing.T, now time.Time, store Store) *fixture {
	t.Helper()
	env := simulations.NewEnvironment()
	clock := clockwork.NewFakeClockAt(now)

	e, err := NewEngine(Config{
		Collaborators: Collaborators{
			Tokens:     env.Tokens,
			Supply:     env.Tokens,
			Minter:     env.Tokens,
			Balances:   env.Balances,
			External:   env.External,
			Registry:   env.Registry,
			Upstream:   env.Bribes,
			Gauges:     env.Gauges,
			Governance: env.Governance,
			Locks:      env.Locks,
		},
		Addresses: Addresses{
			Custody:              simulations.Custody,
			Treasury:             simulations.Treasury,
			Ecosystem:            simulations.Ecosystem,
			BaseToken:            simulations.BaseToken,
			DerivativeToken:      simulations.DerivativeToken,
			SecondaryToken:       simulations.SecondaryToken,
			LockedSecondaryToken: simulations.LockedSecondaryToken,
			BaseStakersPool:      simulations.BaseStakersPool,
			PartnerPool:          simulations.PartnerPool,
			LockersPool:          simulations.LockersPool,
		},
		Clock:          clock,
		Admin:          simulations.Governor,
		Params:         config.DefaultProtocolParameters,
		Store:          store,
		EpochLength:    epochLength,
		Window:         time.Hour,
		MaxPoolsLength: 10,
	})
	require.NoError(t, err)

	env.AddWrapper(wrapper, "LP")
	require.NoError(t, e.RegisterWrapper(simulations.Governor, wrapper))
	return &fixture{env: env, clock: clock, engine: e}
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(Config{})
	require.Error(t, err)

	env := simulations.NewEnvironment()
	_, err = NewEngine(Config{
		Collaborators: Collaborators{Registry: env.Registry, Gauges: env.Gauges},
		Clock:         clockwork.NewFakeClock(),
	})
	assert.ErrorContains(t, err, "admin address cannot be zero")
}

func TestRunTickProcessesWrapper(t *testing.T) {
	f := newFixture(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), nil)
	f.env.External.List(usdc)
	require.NoError(t, f.env.AddBribe(wrapper, usdc, "USDC", i64(500)))
	require.NoError(t, f.env.Gauges.Accrue(wrapper, i64(1_000_000)))

	snap := f.engine.RunTick(context.Background())

	assert.Empty(t, snap.Errors)
	assert.Equal(t, 1, snap.TickNumber)
	assert.NotEmpty(t, snap.TickID)
	require.Len(t, snap.Syncs, 1)
	assert.Equal(t, []common.Address{usdc}, snap.Syncs[0].Added)

	require.Len(t, snap.Claims, 1)
	assert.Equal(t, usdc, snap.Claims[0].Token)
	assert.True(t, snap.Claims[0].Amount.Equal(i64(500)))

	require.Len(t, snap.Distributions, 2)
	base := snap.Distributions[0]
	assert.Equal(t, simulations.BaseToken, base.Token)
	assert.True(t, base.Total().Equal(i64(1_000_000)))
	assert.Nil(t, snap.Submission, "no submission outside the window")

	latest, ok := f.engine.LatestTick()
	require.True(t, ok)
	assert.Equal(t, snap.TickID, latest.TickID)
	assert.Equal(t, 1, f.engine.Status().Ticks)

	// Nothing left to claim on the next tick.
	snap = f.engine.RunTick(context.Background())
	assert.Equal(t, 2, snap.TickNumber)
	assert.Empty(t, snap.Distributions)
	assert.True(t, snap.Claims[0].Amount.IsZero())
}

func TestRunTickSyncPagesAdvance(t *testing.T) {
	f := newFixture(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), nil)
	require.NoError(t, f.engine.SetSyncPageSize(simulations.Governor, 2))
	for _, tok := range []common.Address{usdc, weth, dai} {
		f.env.External.List(tok)
		require.NoError(t, f.env.AddBribe(wrapper, tok, "T", sdkmath.ZeroInt()))
	}

	snap := f.engine.RunTick(context.Background())
	assert.Equal(t, []common.Address{usdc, weth}, snap.Syncs[0].Added)

	snap = f.engine.RunTick(context.Background())
	assert.Equal(t, []common.Address{dai}, snap.Syncs[0].Added)

	active, err := f.engine.ActiveTokens(wrapper)
	require.NoError(t, err)
	assert.ElementsMatch(t, []common.Address{usdc, weth, dai}, active)

	// Wrapped around: the first page is scanned again and nothing changes.
	snap = f.engine.RunTick(context.Background())
	assert.Empty(t, snap.Syncs[0].Added)
	assert.Empty(t, snap.Syncs[0].Removed)
}

func TestRunTickRecordsFailedSteps(t *testing.T) {
	f := newFixture(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), nil)
	f.env.External.List(usdc)
	require.NoError(t, f.env.AddBribe(wrapper, usdc, "USDC", i64(500)))
	require.NoError(t, f.env.Gauges.Accrue(wrapper, i64(1_000)))
	f.env.Tokens.Get(simulations.BaseToken).FailTransfers = true

	snap := f.engine.RunTick(context.Background())

	require.Len(t, snap.Errors, 1)
	assert.Contains(t, snap.Errors[0], "emissions")
	assert.Len(t, snap.Claims, 1, "bribes are still notified when emissions fail")
	assert.Empty(t, snap.Distributions)
}

func TestRunTickRetriesPendingPayouts(t *testing.T) {
	f := newFixture(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), nil)
	require.NoError(t, f.env.Gauges.Accrue(wrapper, i64(1_000_000)))
	secondary := f.env.Tokens.Get(simulations.SecondaryToken)
	secondary.FailTransfers = true

	snap := f.engine.RunTick(context.Background())
	require.Len(t, snap.Distributions, 2, "pools are credited even when a payout transfer fails")
	require.Len(t, snap.Errors, 1)
	assert.Contains(t, snap.Errors[0], "payouts")
	assert.True(t, secondary.BalanceOf(simulations.Treasury).IsZero())
	owed := snap.Distributions[1].Treasury
	require.True(t, owed.IsPositive())

	secondary.FailTransfers = false
	snap = f.engine.RunTick(context.Background())
	assert.Empty(t, snap.Errors)
	assert.True(t, secondary.BalanceOf(simulations.Treasury).Equal(owed))
}

func TestRunTickSubmitsOncePerEpoch(t *testing.T) {
	f := newFixture(t, windowOpen(), nil)
	f.env.Balances.SetCapacity(alice, i64(100))
	f.env.Balances.SetTotalVoteWeight(i64(1_000))
	require.NoError(t, f.engine.Vote(alice, alice, poolA, i64(60)))
	require.NoError(t, f.engine.Vote(alice, alice, poolB, i64(-40)))

	snap := f.engine.RunTick(context.Background())
	require.NotNil(t, snap.Submission)
	assert.Equal(t, []common.Address{poolA}, snap.Submission.Vote.Pools)
	assert.True(t, snap.Submission.Vote.Weights[0].Equal(i64(1_000)))
	assert.Equal(t, 1, f.env.Governance.Submissions)
	require.Len(t, snap.TopPools, 2)
	assert.Equal(t, poolA, snap.TopPools[0].Pool)

	f.clock.Advance(10 * time.Minute)
	snap = f.engine.RunTick(context.Background())
	assert.Nil(t, snap.Submission)
	assert.Equal(t, 1, f.env.Governance.Submissions)

	// Next epoch's window.
	f.clock.Advance(epochLength - 10*time.Minute)
	snap = f.engine.RunTick(context.Background())
	require.NotNil(t, snap.Submission)
	assert.Equal(t, 2, f.env.Governance.Submissions)
}

func TestRunTickSubmissionFailure(t *testing.T) {
	f := newFixture(t, windowOpen(), nil)
	f.env.Governance.Fail = true

	snap := f.engine.RunTick(context.Background())
	assert.Nil(t, snap.Submission)
	require.Len(t, snap.Errors, 1)
	assert.Contains(t, snap.Errors[0], "submit")

	_, ok := f.engine.LastSubmission()
	assert.False(t, ok)
}

func TestAllowlistSettersRequireAdmin(t *testing.T) {
	f := newFixture(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), nil)

	for name, call := range map[string]func(common.Address) error{
		"SetTokenAllowed":   func(c common.Address) error { return f.engine.SetTokenAllowed(c, usdc, true) },
		"SetTokensAllowed":  func(c common.Address) error { return f.engine.SetTokensAllowed(c, []common.Address{usdc}, true) },
		"SetExternalCheck":  func(c common.Address) error { return f.engine.SetExternalCheckDisabled(c, usdc, true) },
		"SetExternalSwitch": func(c common.Address) error { return f.engine.SetExternalAllowlistEnabled(c, false) },
		"SetNotifyPageSize": func(c common.Address) error { return f.engine.SetNotifyPageSize(c, 3) },
		"RegisterWrapper":   func(c common.Address) error { return f.engine.RegisterWrapper(c, poolA) },
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, call(alice), types.ErrNotAuthorized)
			assert.NoError(t, call(simulations.Governor))
		})
	}
	entry := f.engine.AllowlistEntry(usdc)
	assert.True(t, entry.ExplicitlyAllowed)
	assert.True(t, entry.ExternalCheckDisabled)
	assert.True(t, f.engine.TokenIsAllowed(usdc), "the explicit flag wins over the external switch")
}

func TestPositionsNeverObserveTornVotes(t *testing.T) {
	f := newFixture(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), nil)
	f.env.Balances.SetCapacity(alice, i64(100))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = f.engine.VoteBatch(alice, alice, []types.PoolVote{
				{Pool: poolA, Weight: i64(int64(i % 50))},
				{Pool: poolB, Weight: i64(-int64(50 - i%50))},
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			p, err := f.engine.PositionsOf(alice)
			if !assert.NoError(t, err) {
				return
			}
			sum := sdkmath.ZeroInt()
			for _, v := range p.Votes.Votes {
				sum = sum.Add(v.Weight.Abs())
			}
			assert.True(t, sum.Equal(p.Votes.WeightUsed), "used %s, votes sum %s", p.Votes.WeightUsed, sum)
			assert.True(t, p.Votes.WeightUsed.LTE(i64(100)))
		}
	}()
	wg.Wait()
}

func TestRunLoopTicksOnInterval(t *testing.T) {
	f := newFixture(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.engine.RunLoop(ctx, time.Minute)
		close(done)
	}()

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	require.Eventually(t, func() bool { return f.engine.Status().Ticks == 1 }, time.Second, time.Millisecond)

	f.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return f.engine.Status().Ticks == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
}

func TestRunTickStopsOnCancelledContext(t *testing.T) {
	f := newFixture(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap := f.engine.RunTick(ctx)
	assert.Empty(t, snap.Syncs)
	require.Len(t, snap.Errors, 1)
	assert.Contains(t, snap.Errors[0], "interrupted")
}

type memoryStore struct {
	next          int
	ticks         []types.TickSnapshot
	distributions []types.Distribution
	submissions   []types.Submission
	failSave      bool
}

func (s *memoryStore) NextTickNumber() (int, error) {
	s.next++
	return s.next, nil
}

func (s *memoryStore) SaveTick(snapshot types.TickSnapshot) (int64, error) {
	if s.failSave {
		return 0, errors.New("database unavailable")
	}
	s.ticks = append(s.ticks, snapshot)
	return int64(len(s.ticks)), nil
}

func (s *memoryStore) SaveSubmission(_ string, sub types.Submission) error {
	s.submissions = append(s.submissions, sub)
	return nil
}

func (s *memoryStore) SaveDistribution(_ string, d types.Distribution) error {
	s.distributions = append(s.distributions, d)
	return nil
}

func TestRunTickPersists(t *testing.T) {
	store := &memoryStore{next: 41}
	f := newFixture(t, windowOpen(), store)
	f.env.Balances.SetCapacity(alice, i64(10))
	f.env.Balances.SetTotalVoteWeight(i64(10))
	require.NoError(t, f.engine.Vote(alice, alice, poolA, i64(10)))
	require.NoError(t, f.env.Gauges.Accrue(wrapper, i64(10_000)))

	snap := f.engine.RunTick(context.Background())

	assert.Equal(t, 42, snap.TickNumber)
	require.Len(t, store.ticks, 1)
	assert.Equal(t, snap.TickID, store.ticks[0].TickID)
	assert.Len(t, store.distributions, 2)
	assert.Len(t, store.submissions, 1)

	store.failSave = true
	snap = f.engine.RunTick(context.Background())
	require.Len(t, snap.Errors, 1)
	assert.Contains(t, snap.Errors[0], "store")
	latest, ok := f.engine.LatestTick()
	require.True(t, ok)
	assert.Equal(t, 43, latest.TickNumber, "the tick is kept in memory when persistence fails")
}

func TestRestoreLatestTickKeepsNewest(t *testing.T) {
	f := newFixture(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), nil)
	f.engine.RestoreLatestTick(types.TickSnapshot{TickNumber: 7, TickID: "restored"})

	latest, ok := f.engine.LatestTick()
	require.True(t, ok)
	assert.Equal(t, "restored", latest.TickID)

	f.engine.RestoreLatestTick(types.TickSnapshot{TickNumber: 3, TickID: "older"})
	latest, _ = f.engine.LatestTick()
	assert.Equal(t, "restored", latest.TickID)
}
