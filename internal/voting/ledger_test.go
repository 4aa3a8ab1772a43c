package voting

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/simulations"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/elys-network/votesnap/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000002")
	carol = common.HexToAddress("0x0000000000000000000000000000000000000003")

	poolA = common.HexToAddress("0x000000000000000000000000000000000000a00a")
	poolB = common.HexToAddress("0x000000000000000000000000000000000000b00b")
	poolC = common.HexToAddress("0x000000000000000000000000000000000000c00c")
	poolD = common.HexToAddress("0x000000000000000000000000000000000000d00d")
	poolE = common.HexToAddress("0x000000000000000000000000000000000000e00e")
)

const week = 7 * 24 * time.Hour

// epochBoundary is a fixed epoch boundary used by the window tests.
var epochBoundary = time.Unix(int64(week/time.Second)*3000, 0).UTC()

type fixture struct {
	ledger     *Ledger
	oracle     *simulations.LockedBalances
	governance *simulations.Governance
	clock      *clockwork.FakeClock
}

func newFixture(t *testing.T, maxPools int) *fixture {
	t.Helper()
	oracle := simulations.NewLockedBalances()
	governance := &simulations.Governance{}
	clock := clockwork.NewFakeClockAt(epochBoundary.Add(-2 * time.Hour))
	ledger, err := NewLedger(Config{
		Oracle:         oracle,
		Governance:     governance,
		Clock:          clock,
		Admin:          admin,
		EpochLength:    week,
		Window:         time.Hour,
		MaxPoolsLength: maxPools,
	})
	require.NoError(t, err)
	return &fixture{ledger: ledger, oracle: oracle, governance: governance, clock: clock}
}

func i64(v int64) math.Int { return math.NewInt(v) }

func eqInt(t *testing.T, expected, actual math.Int) bool {
	t.Helper()
	return assert.Truef(t, expected.Equal(actual), "expected %s, got %s", expected, actual)
}

func TestNewLedgerValidatesConfig(t *testing.T) {
	_, err := NewLedger(Config{})
	require.Error(t, err)

	_, err = NewLedger(Config{
		Oracle: simulations.NewLockedBalances(), Governance: &simulations.Governance{}, Clock: clockwork.NewFakeClock(),
		EpochLength: week, Window: 2 * week, MaxPoolsLength: 10,
	})
	require.Error(t, err)
}

func TestBasicWeightedVote(t *testing.T) {
	f := newFixture(t, 10)
	f.oracle.SetCapacity(alice, i64(1000))

	require.NoError(t, f.ledger.Vote(alice, alice, poolA, i64(500)))
	require.NoError(t, f.ledger.Vote(alice, alice, poolB, i64(500)))
	eqInt(t, i64(1000), f.ledger.VoteWeightUsedByAccount(alice))
	assert.True(t, f.ledger.VoteWeightAvailableByAccount(alice).IsZero())

	require.NoError(t, f.ledger.Vote(alice, alice, poolA, i64(250)))
	eqInt(t, i64(750), f.ledger.VoteWeightUsedByAccount(alice))
	eqInt(t, i64(250), f.ledger.WeightByPoolSigned(poolA))
	eqInt(t, i64(250), f.ledger.VoteWeightAvailableByAccount(alice))
	eqInt(t, i64(1000), f.ledger.VoteWeightTotalByAccount(alice))
}

func TestCapacityExceededLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, 10)
	f.oracle.SetCapacity(alice, i64(1000))
	require.NoError(t, f.ledger.Vote(alice, alice, poolA, i64(600)))

	err := f.ledger.Vote(alice, alice, poolB, i64(-401))
	require.ErrorIs(t, err, types.ErrCapacityExceeded)
	eqInt(t, i64(600), f.ledger.VoteWeightUsedByAccount(alice))
	assert.True(t, f.ledger.WeightByPoolSigned(poolB).IsZero())

	// Re-voting the same pool counts only the new weight.
	require.NoError(t, f.ledger.Vote(alice, alice, poolA, i64(-1000)))
	eqInt(t, i64(1000), f.ledger.VoteWeightUsedByAccount(alice))
}

func TestVoteBatchIsAllOrNothing(t *testing.T) {
	f := newFixture(t, 10)
	f.oracle.SetCapacity(alice, i64(1000))

	err := f.ledger.VoteBatch(alice, alice, []types.PoolVote{
		{Pool: poolA, Weight: i64(400)},
		{Pool: poolB, Weight: i64(-400)},
		{Pool: poolC, Weight: i64(300)},
	})
	require.ErrorIs(t, err, types.ErrCapacityExceeded)
	assert.Equal(t, StateIdle, f.ledger.AccountState(alice))
	assert.Equal(t, 0, f.ledger.VotesLength())

	err = f.ledger.VoteBatch(alice, alice, []types.PoolVote{
		{Pool: poolA, Weight: i64(400)},
		{Pool: common.Address{}, Weight: i64(1)},
	})
	require.ErrorIs(t, err, ErrZeroPool)
	assert.Equal(t, StateIdle, f.ledger.AccountState(alice))

	require.NoError(t, f.ledger.VoteBatch(alice, alice, []types.PoolVote{
		{Pool: poolA, Weight: i64(400)},
		{Pool: poolB, Weight: i64(-400)},
		{Pool: poolC, Weight: i64(200)},
	}))
	eqInt(t, i64(1000), f.ledger.VoteWeightUsedByAccount(alice))
	assert.Equal(t, StateHasVotes, f.ledger.AccountState(alice))
}

func TestZeroWeightDeletesAndRelinksIndex(t *testing.T) {
	f := newFixture(t, 10)
	f.oracle.SetCapacity(alice, i64(1000))
	require.NoError(t, f.ledger.VoteBatch(alice, alice, []types.PoolVote{
		{Pool: poolA, Weight: i64(100)},
		{Pool: poolB, Weight: i64(200)},
		{Pool: poolC, Weight: i64(300)},
	}))

	require.NoError(t, f.ledger.Vote(alice, alice, poolA, math.ZeroInt()))

	votes := f.ledger.VotesByAccount(alice)
	require.Len(t, votes, 2)
	assert.Equal(t, poolC, votes[0].Pool)
	assert.Equal(t, poolB, votes[1].Pool)

	idx, ok := f.ledger.AccountVoteIndexByPool(alice, poolC)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	_, ok = f.ledger.AccountVoteIndexByPool(alice, poolA)
	assert.False(t, ok)

	v, ok := f.ledger.AccountVoteByIndex(alice, 0)
	require.True(t, ok)
	eqInt(t, i64(300), v.Weight)
	_, ok = f.ledger.AccountVoteByIndex(alice, 2)
	assert.False(t, ok)

	eqInt(t, i64(500), f.ledger.VoteWeightUsedByAccount(alice))
	assert.True(t, f.ledger.WeightByPoolUnsigned(poolA).IsZero())

	require.NoError(t, f.ledger.Vote(alice, alice, poolC, math.ZeroInt()))
	require.NoError(t, f.ledger.Vote(alice, alice, poolB, math.ZeroInt()))
	assert.Equal(t, StateIdle, f.ledger.AccountState(alice))
	assert.Empty(t, f.ledger.VotesByAccount(alice))
}

func TestPoolWeightChangesByDelta(t *testing.T) {
	f := newFixture(t, 10)
	f.oracle.SetCapacity(alice, i64(1000))
	f.oracle.SetCapacity(bob, i64(1000))

	require.NoError(t, f.ledger.Vote(alice, alice, poolA, i64(300)))
	require.NoError(t, f.ledger.Vote(bob, bob, poolA, i64(-200)))
	before := f.ledger.PoolWeight(poolA)
	eqInt(t, i64(100), before.Signed)
	eqInt(t, i64(500), before.Unsigned)

	require.NoError(t, f.ledger.Vote(alice, alice, poolA, i64(-50)))
	after := f.ledger.PoolWeight(poolA)
	eqInt(t, before.Signed.Add(i64(-50-300)), after.Signed)
	eqInt(t, before.Unsigned.Add(i64(50-300)), after.Unsigned)

	// Opposing votes cancelling out remove the pool from the ranking but keep its unsigned weight.
	require.NoError(t, f.ledger.Vote(bob, bob, poolA, i64(50)))
	assert.True(t, f.ledger.WeightByPoolSigned(poolA).IsZero())
	eqInt(t, i64(100), f.ledger.WeightByPoolUnsigned(poolA))
	assert.Equal(t, 0, f.ledger.VotesLength())
}

func TestNegativeVoteRanking(t *testing.T) {
	f := newFixture(t, 3)
	f.oracle.SetCapacity(alice, i64(10_000))
	f.oracle.SetCapacity(bob, i64(10_000))

	require.NoError(t, f.ledger.VoteBatch(alice, alice, []types.PoolVote{
		{Pool: poolA, Weight: i64(-500)},
		{Pool: poolB, Weight: i64(-600)},
		{Pool: poolC, Weight: i64(200)},
		{Pool: poolD, Weight: i64(700)},
		{Pool: poolE, Weight: i64(-900)},
	}))

	order := func() []common.Address {
		var out []common.Address
		for _, p := range f.ledger.Votes() {
			out = append(out, p.Pool)
		}
		return out
	}
	assert.Equal(t, []common.Address{poolE, poolD, poolB, poolA, poolC}, order())
	assert.Equal(t, 5, f.ledger.VotesLength())
	assert.Equal(t, 5, f.ledger.UniqueVotesLength())
	assert.Len(t, f.ledger.TopVotes(), 3)
	eqInt(t, i64(900+700+600), f.ledger.TopVotesWeight())

	// E flips to +900 then bob votes -800 against it, leaving a net of 100.
	require.NoError(t, f.ledger.Vote(alice, alice, poolE, i64(900)))
	require.NoError(t, f.ledger.Vote(bob, bob, poolE, i64(-800)))
	assert.Equal(t, []common.Address{poolD, poolB, poolA, poolC, poolE}, order())
	eqInt(t, i64(100), f.ledger.WeightByPoolSigned(poolE))
	eqInt(t, i64(1700), f.ledger.WeightByPoolUnsigned(poolE))
	eqInt(t, i64(700+600+500), f.ledger.TopVotesWeight())
}

func TestRankingTiesKeepEntryOrder(t *testing.T) {
	f := newFixture(t, 10)
	f.oracle.SetCapacity(alice, i64(10_000))

	require.NoError(t, f.ledger.Vote(alice, alice, poolA, i64(300)))
	require.NoError(t, f.ledger.Vote(alice, alice, poolB, i64(-300)))
	require.NoError(t, f.ledger.Vote(alice, alice, poolC, i64(300)))

	votes := f.ledger.Votes()
	require.Len(t, votes, 3)
	assert.Equal(t, poolA, votes[0].Pool)
	assert.Equal(t, poolB, votes[1].Pool)
	assert.Equal(t, poolC, votes[2].Pool)
	assert.Equal(t, 1, f.ledger.UniqueVotesLength())

	// Changing A's weight and back keeps its original position among equals.
	require.NoError(t, f.ledger.Vote(alice, alice, poolA, i64(100)))
	require.NoError(t, f.ledger.Vote(alice, alice, poolA, i64(300)))
	assert.Equal(t, poolA, f.ledger.Votes()[0].Pool)

	// Leaving the ranking resets the position.
	require.NoError(t, f.ledger.Vote(alice, alice, poolA, math.ZeroInt()))
	require.NoError(t, f.ledger.Vote(alice, alice, poolA, i64(300)))
	assert.Equal(t, poolA, f.ledger.Votes()[2].Pool)
}

func TestRankingMatchesRecomputation(t *testing.T) {
	f := newFixture(t, 4)
	rng := rand.New(rand.NewSource(7))

	accounts := []common.Address{alice, bob, carol}
	pools := make([]common.Address, 12)
	for i := range pools {
		pools[i] = common.BigToAddress(math.NewInt(int64(0x1000 + i)).BigInt())
	}
	for _, a := range accounts {
		f.oracle.SetCapacity(a, i64(1_000_000))
	}

	for step := 0; step < 500; step++ {
		account := accounts[rng.Intn(len(accounts))]
		pool := pools[rng.Intn(len(pools))]
		weight := i64(int64(rng.Intn(20_001) - 10_000))
		if rng.Intn(5) == 0 {
			weight = math.ZeroInt()
		}
		require.NoError(t, f.ledger.Vote(account, account, pool, weight))

		// Recompute every pool's net weight from the account ledgers.
		net := make(map[common.Address]math.Int)
		for _, a := range accounts {
			for _, v := range f.ledger.VotesByAccount(a) {
				if cur, ok := net[v.Pool]; ok {
					net[v.Pool] = cur.Add(v.Weight)
				} else {
					net[v.Pool] = v.Weight
				}
			}
		}
		var expected []math.Int
		for p, w := range net {
			eqInt(t, w, f.ledger.WeightByPoolSigned(p))
			if !w.IsZero() {
				expected = append(expected, utils.Abs(w))
			}
		}
		sort.Slice(expected, func(i, j int) bool { return expected[i].GT(expected[j]) })

		ranked := f.ledger.Votes()
		require.Len(t, ranked, len(expected))
		for i, p := range ranked {
			eqInt(t, expected[i], utils.Abs(p.Weight))
			eqInt(t, net[p.Pool], p.Weight)
		}
		top := f.ledger.TopVotes()
		assert.LessOrEqual(t, len(top), 4)
		for i := range top {
			assert.Equal(t, ranked[i].Pool, top[i].Pool)
		}

		for _, a := range accounts {
			used := math.ZeroInt()
			for _, v := range f.ledger.VotesByAccount(a) {
				used = used.Add(utils.Abs(v.Weight))
			}
			eqInt(t, used, f.ledger.VoteWeightUsedByAccount(a))
		}
	}
}

func TestDelegationIsExclusive(t *testing.T) {
	f := newFixture(t, 10)
	f.oracle.SetCapacity(alice, i64(1000))

	require.NoError(t, f.ledger.SetVoteDelegate(alice, bob))
	d, ok := f.ledger.DelegateOf(alice)
	require.True(t, ok)
	assert.Equal(t, bob, d)

	err := f.ledger.Vote(alice, alice, poolA, i64(100))
	require.ErrorIs(t, err, types.ErrNotAuthorized)
	require.ErrorIs(t, err, types.ErrDelegatedAway)

	require.NoError(t, f.ledger.Vote(bob, alice, poolA, i64(100)))
	eqInt(t, i64(100), f.ledger.AccountVoteByPool(alice, poolA))
	assert.True(t, f.ledger.VoteWeightUsedByAccount(bob).IsZero())

	// The delegate spends the delegator's capacity, not its own.
	require.ErrorIs(t, f.ledger.Vote(bob, alice, poolB, i64(901)), types.ErrCapacityExceeded)

	require.ErrorIs(t, f.ledger.Vote(carol, alice, poolA, i64(1)), types.ErrNotAuthorized)

	f.ledger.ClearVoteDelegate(alice)
	require.NoError(t, f.ledger.Vote(alice, alice, poolA, i64(200)))
	require.ErrorIs(t, f.ledger.Vote(bob, alice, poolA, i64(300)), types.ErrNotAuthorized)

	require.ErrorIs(t, f.ledger.SetVoteDelegate(alice, alice), ErrSelfDelegation)
	require.NoError(t, f.ledger.SetVoteDelegate(alice, bob))
	require.NoError(t, f.ledger.SetVoteDelegate(alice, common.Address{}))
	_, ok = f.ledger.DelegateOf(alice)
	assert.False(t, ok)
}

func TestResetVotesAuthorization(t *testing.T) {
	f := newFixture(t, 10)
	f.oracle.SetCapacity(alice, i64(1000))
	require.NoError(t, f.ledger.VoteBatch(alice, alice, []types.PoolVote{
		{Pool: poolA, Weight: i64(400)},
		{Pool: poolB, Weight: i64(-300)},
	}))

	require.ErrorIs(t, f.ledger.ResetVotes(carol, alice), types.ErrNotAuthorized)
	assert.Equal(t, StateHasVotes, f.ledger.AccountState(alice))

	require.NoError(t, f.ledger.SetVoteDelegate(alice, bob))
	require.NoError(t, f.ledger.ResetVotes(bob, alice))
	assert.Equal(t, StateIdle, f.ledger.AccountState(alice))
	assert.True(t, f.ledger.WeightByPoolUnsigned(poolA).IsZero())
	assert.True(t, f.ledger.WeightByPoolUnsigned(poolB).IsZero())
	assert.Equal(t, 0, f.ledger.VotesLength())

	require.NoError(t, f.ledger.Vote(bob, alice, poolA, i64(400)))
	require.NoError(t, f.ledger.ResetVotes(admin, alice))
	assert.Equal(t, StateIdle, f.ledger.AccountState(alice))

	// Resetting an idle account is a no-op.
	f.ledger.ClearVoteDelegate(alice)
	require.NoError(t, f.ledger.ResetVotes(alice, alice))
}

func TestResetVotesByDelegatedAccountIsRejected(t *testing.T) {
	f := newFixture(t, 10)
	f.oracle.SetCapacity(alice, i64(1000))
	require.NoError(t, f.ledger.Vote(alice, alice, poolA, i64(400)))
	require.NoError(t, f.ledger.SetVoteDelegate(alice, bob))

	// Once delegated, the votes belong to the delegate until the delegation is cleared.
	err := f.ledger.ResetVotes(alice, alice)
	require.ErrorIs(t, err, types.ErrNotAuthorized)
	require.ErrorIs(t, err, types.ErrDelegatedAway)
	assert.Equal(t, StateHasVotes, f.ledger.AccountState(alice))
	eqInt(t, i64(400), f.ledger.WeightByPoolSigned(poolA))

	f.ledger.ClearVoteDelegate(alice)
	require.NoError(t, f.ledger.ResetVotes(alice, alice))
	assert.Equal(t, StateIdle, f.ledger.AccountState(alice))
}

func TestResetVotesFreesCapacityAfterCapacityDrop(t *testing.T) {
	f := newFixture(t, 10)
	f.oracle.SetCapacity(alice, i64(1000))
	require.NoError(t, f.ledger.Vote(alice, alice, poolA, i64(1000)))

	f.oracle.SetCapacity(alice, i64(100))
	assert.True(t, f.ledger.VoteWeightAvailableByAccount(alice).IsZero())
	require.ErrorIs(t, f.ledger.Vote(alice, alice, poolA, i64(500)), types.ErrCapacityExceeded)

	require.NoError(t, f.ledger.ResetVotes(alice, alice))
	require.NoError(t, f.ledger.Vote(alice, alice, poolA, i64(100)))
}

func TestSetMaxPoolsLength(t *testing.T) {
	f := newFixture(t, 10)
	require.ErrorIs(t, f.ledger.SetMaxPoolsLength(alice, 3), types.ErrNotAuthorized)
	require.Error(t, f.ledger.SetMaxPoolsLength(admin, 0))
	require.NoError(t, f.ledger.SetMaxPoolsLength(admin, 3))
	assert.Equal(t, 3, f.ledger.MaxPoolsLength())
}
