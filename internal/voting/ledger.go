/*

This file contains the voting ledger: per-account signed votes against pools, vote weight
accounting against the capacity reported by the locked balance oracle, delegation and the
per-pool aggregates that feed the global ranking.

The ledger is not safe for concurrent use. The engine holds its lock around every call.

*/

package voting

import (
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/chain"
	"github.com/elys-network/votesnap/internal/logger"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/elys-network/votesnap/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
)

var ledgerLogger = logger.GetForComponent("voting_ledger")

var (
	ErrZeroPool       = errors.New("pool address is zero")
	ErrSelfDelegation = errors.New("cannot delegate to self")
	ErrNilWeight      = errors.New("vote weight is nil")
)

// AccountState is the per-account voting state.
type AccountState int

const (
	StateIdle AccountState = iota
	StateHasVotes
)

func (s AccountState) String() string {
	if s == StateHasVotes {
		return "has_votes"
	}
	return "idle"
}

// Config holds the dependencies and cadence of a Ledger.
type Config struct {
	Oracle     chain.LockedBalanceOracle
	Governance chain.GovernanceRegistry
	Clock      clockwork.Clock
	// Admin may reset any account's votes and change the ranking size.
	Admin common.Address

	EpochLength    time.Duration
	Window         time.Duration
	MaxPoolsLength int
}

type accountVotes struct {
	votes       []types.PoolVote
	indexByPool map[common.Address]int
	used        math.Int
}

type poolWeight struct {
	signed   math.Int
	unsigned math.Int
}

// Ledger is the voting ledger.
type Ledger struct {
	oracle     chain.LockedBalanceOracle
	governance chain.GovernanceRegistry
	clock      clockwork.Clock
	admin      common.Address

	epochLength    time.Duration
	window         time.Duration
	maxPoolsLength int

	accounts  map[common.Address]*accountVotes
	delegates map[common.Address]common.Address
	pools     map[common.Address]*poolWeight
	ranking   ranking

	lastSubmission *types.Submission
}

// NewLedger creates an empty ledger.
func NewLedger(cfg Config) (*Ledger, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("voting ledger configuration validation failed: %w", err)
	}
	return &Ledger{
		oracle:         cfg.Oracle,
		governance:     cfg.Governance,
		clock:          cfg.Clock,
		admin:          cfg.Admin,
		epochLength:    cfg.EpochLength,
		window:         cfg.Window,
		maxPoolsLength: cfg.MaxPoolsLength,
		accounts:       make(map[common.Address]*accountVotes),
		delegates:      make(map[common.Address]common.Address),
		pools:          make(map[common.Address]*poolWeight),
	}, nil
}

func validateConfig(cfg Config) error {
	if cfg.Oracle == nil {
		return fmt.Errorf("locked balance oracle cannot be nil")
	}
	if cfg.Governance == nil {
		return fmt.Errorf("governance registry cannot be nil")
	}
	if cfg.Clock == nil {
		return fmt.Errorf("clock cannot be nil")
	}
	if cfg.EpochLength < time.Second {
		return fmt.Errorf("epoch length must be at least one second, got %s", cfg.EpochLength)
	}
	if cfg.Window <= 0 || cfg.Window > cfg.EpochLength {
		return fmt.Errorf("window must be in (0, epoch length], got %s", cfg.Window)
	}
	if cfg.MaxPoolsLength <= 0 {
		return fmt.Errorf("max pools length must be positive, got %d", cfg.MaxPoolsLength)
	}
	return nil
}

// authorizeVoter checks that caller may vote for account. Delegation is exclusive:
// once delegated, only the delegate may vote for the account.
func (l *Ledger) authorizeVoter(caller, account common.Address) error {
	delegate, delegated := l.delegates[account]
	if caller == account {
		if delegated {
			return fmt.Errorf("%w: %w: %s votes through %s", types.ErrNotAuthorized, types.ErrDelegatedAway, account.Hex(), delegate.Hex())
		}
		return nil
	}
	if delegated && caller == delegate {
		return nil
	}
	return fmt.Errorf("%w: %s cannot vote for %s", types.ErrNotAuthorized, caller.Hex(), account.Hex())
}

// Vote sets account's weight on pool. A zero weight deletes the vote.
func (l *Ledger) Vote(caller, account, pool common.Address, weight math.Int) error {
	return l.VoteBatch(caller, account, []types.PoolVote{{Pool: pool, Weight: weight}})
}

// VoteBatch applies every entry for account, or none of them. Later entries for the same
// pool override earlier ones.
func (l *Ledger) VoteBatch(caller, account common.Address, votes []types.PoolVote) error {
	if err := l.authorizeVoter(caller, account); err != nil {
		return err
	}

	// --- 1. Validate entries and compute the resulting usage ---
	pending := make(map[common.Address]math.Int, len(votes))
	for i, v := range votes {
		if v.Pool == (common.Address{}) {
			return fmt.Errorf("entry %d: %w", i, ErrZeroPool)
		}
		if v.Weight.IsNil() {
			return fmt.Errorf("entry %d: %w", i, ErrNilWeight)
		}
		pending[v.Pool] = v.Weight
	}

	used := l.VoteWeightUsedByAccount(account)
	for pool, weight := range pending {
		used = used.Sub(utils.Abs(l.AccountVoteByPool(account, pool))).Add(utils.Abs(weight))
	}

	capacity := utils.OrZero(l.oracle.CapacityOf(account))
	if used.GT(capacity) {
		ledgerLogger.Debug().
			Str("account", account.Hex()).
			Str("used", used.String()).
			Str("capacity", capacity.String()).
			Msg("Rejected vote above capacity")
		return fmt.Errorf("%w: %s would use %s of %s", types.ErrCapacityExceeded, account.Hex(), used, capacity)
	}

	// --- 2. Commit in input order ---
	for _, v := range votes {
		l.applyVote(account, v.Pool, pending[v.Pool])
	}

	ledgerLogger.Debug().
		Str("caller", caller.Hex()).
		Str("account", account.Hex()).
		Int("entries", len(votes)).
		Msg("Votes applied")
	return nil
}

// applyVote sets one vote and updates every derived structure by delta.
func (l *Ledger) applyVote(account, pool common.Address, weight math.Int) {
	acct := l.accounts[account]
	if acct == nil {
		if weight.IsZero() {
			return
		}
		acct = &accountVotes{indexByPool: make(map[common.Address]int), used: math.ZeroInt()}
		l.accounts[account] = acct
	}

	old := math.ZeroInt()
	idx, exists := acct.indexByPool[pool]
	if exists {
		old = acct.votes[idx].Weight
	}
	if old.Equal(weight) {
		return
	}

	switch {
	case weight.IsZero():
		// Swap with the last vote, then relink the moved vote's index.
		last := len(acct.votes) - 1
		if idx != last {
			moved := acct.votes[last]
			acct.votes[idx] = moved
			acct.indexByPool[moved.Pool] = idx
		}
		acct.votes = acct.votes[:last]
		delete(acct.indexByPool, pool)
	case exists:
		acct.votes[idx].Weight = weight
	default:
		acct.indexByPool[pool] = len(acct.votes)
		acct.votes = append(acct.votes, types.PoolVote{Pool: pool, Weight: weight})
	}
	acct.used = acct.used.Sub(utils.Abs(old)).Add(utils.Abs(weight))
	if len(acct.votes) == 0 {
		delete(l.accounts, account)
	}

	pw := l.pools[pool]
	if pw == nil {
		pw = &poolWeight{signed: math.ZeroInt(), unsigned: math.ZeroInt()}
		l.pools[pool] = pw
	}
	pw.signed = pw.signed.Add(weight.Sub(old))
	pw.unsigned = pw.unsigned.Add(utils.Abs(weight).Sub(utils.Abs(old)))
	if pw.unsigned.IsZero() {
		delete(l.pools, pool)
	}

	l.ranking.update(pool, pw.signed)
}

// ResetVotes deletes every vote of account. The caller must be the account itself (when
// not delegated), its delegate, or the admin.
func (l *Ledger) ResetVotes(caller, account common.Address) error {
	if caller != l.admin || l.admin == (common.Address{}) {
		if err := l.authorizeVoter(caller, account); err != nil {
			return err
		}
	}
	acct := l.accounts[account]
	if acct == nil {
		return nil
	}
	for len(acct.votes) > 0 {
		last := acct.votes[len(acct.votes)-1]
		l.applyVote(account, last.Pool, math.ZeroInt())
	}
	ledgerLogger.Info().Str("caller", caller.Hex()).Str("account", account.Hex()).Msg("Votes reset")
	return nil
}

// SetVoteDelegate lets delegate vote and reset votes for caller. A zero delegate clears delegation.
func (l *Ledger) SetVoteDelegate(caller, delegate common.Address) error {
	if delegate == (common.Address{}) {
		l.ClearVoteDelegate(caller)
		return nil
	}
	if delegate == caller {
		return ErrSelfDelegation
	}
	l.delegates[caller] = delegate
	ledgerLogger.Info().Str("account", caller.Hex()).Str("delegate", delegate.Hex()).Msg("Vote delegate set")
	return nil
}

// ClearVoteDelegate removes caller's delegate.
func (l *Ledger) ClearVoteDelegate(caller common.Address) {
	if _, ok := l.delegates[caller]; !ok {
		return
	}
	delete(l.delegates, caller)
	ledgerLogger.Info().Str("account", caller.Hex()).Msg("Vote delegate cleared")
}

// SetMaxPoolsLength changes the size of the top pools ranking.
func (l *Ledger) SetMaxPoolsLength(caller common.Address, n int) error {
	if caller != l.admin {
		return fmt.Errorf("%w: only admin may set max pools length", types.ErrNotAuthorized)
	}
	if n <= 0 {
		return fmt.Errorf("max pools length must be positive, got %d", n)
	}
	l.maxPoolsLength = n
	return nil
}

// --- Views ---

func (l *Ledger) DelegateOf(account common.Address) (common.Address, bool) {
	d, ok := l.delegates[account]
	return d, ok
}

func (l *Ledger) AccountState(account common.Address) AccountState {
	if _, ok := l.accounts[account]; ok {
		return StateHasVotes
	}
	return StateIdle
}

func (l *Ledger) VoteWeightTotalByAccount(account common.Address) math.Int {
	return utils.OrZero(l.oracle.CapacityOf(account))
}

func (l *Ledger) VoteWeightUsedByAccount(account common.Address) math.Int {
	if acct := l.accounts[account]; acct != nil {
		return acct.used
	}
	return math.ZeroInt()
}

// VoteWeightAvailableByAccount is capacity minus usage, floored at zero when the
// capacity dropped below what is already voted.
func (l *Ledger) VoteWeightAvailableByAccount(account common.Address) math.Int {
	available := l.VoteWeightTotalByAccount(account).Sub(l.VoteWeightUsedByAccount(account))
	if available.IsNegative() {
		return math.ZeroInt()
	}
	return available
}

// VotesByAccount returns a copy of the account's votes in storage order.
func (l *Ledger) VotesByAccount(account common.Address) []types.PoolVote {
	acct := l.accounts[account]
	if acct == nil {
		return []types.PoolVote{}
	}
	return append([]types.PoolVote(nil), acct.votes...)
}

func (l *Ledger) AccountVoteByPool(account, pool common.Address) math.Int {
	if acct := l.accounts[account]; acct != nil {
		if idx, ok := acct.indexByPool[pool]; ok {
			return acct.votes[idx].Weight
		}
	}
	return math.ZeroInt()
}

func (l *Ledger) AccountVoteByIndex(account common.Address, index int) (types.PoolVote, bool) {
	acct := l.accounts[account]
	if acct == nil || index < 0 || index >= len(acct.votes) {
		return types.PoolVote{}, false
	}
	return acct.votes[index], true
}

func (l *Ledger) AccountVoteIndexByPool(account, pool common.Address) (int, bool) {
	if acct := l.accounts[account]; acct != nil {
		idx, ok := acct.indexByPool[pool]
		return idx, ok
	}
	return 0, false
}

func (l *Ledger) WeightByPoolSigned(pool common.Address) math.Int {
	if pw := l.pools[pool]; pw != nil {
		return pw.signed
	}
	return math.ZeroInt()
}

func (l *Ledger) WeightByPoolUnsigned(pool common.Address) math.Int {
	if pw := l.pools[pool]; pw != nil {
		return pw.unsigned
	}
	return math.ZeroInt()
}

// PoolWeight returns both aggregates of a pool.
func (l *Ledger) PoolWeight(pool common.Address) types.PoolWeight {
	return types.PoolWeight{Pool: pool, Signed: l.WeightByPoolSigned(pool), Unsigned: l.WeightByPoolUnsigned(pool)}
}

// Votes returns every ranked pool.
func (l *Ledger) Votes() []types.RankedPool { return l.ranking.list(-1) }

// TopVotes returns at most MaxPoolsLength ranked pools.
func (l *Ledger) TopVotes() []types.RankedPool { return l.ranking.list(l.maxPoolsLength) }

// TopVotesWeight is the absolute weight held by the top pools.
func (l *Ledger) TopVotesWeight() math.Int {
	total := math.ZeroInt()
	for _, p := range l.TopVotes() {
		total = total.Add(utils.Abs(p.Weight))
	}
	return total
}

func (l *Ledger) VotesLength() int       { return l.ranking.len() }
func (l *Ledger) UniqueVotesLength() int { return l.ranking.uniqueWeights() }
func (l *Ledger) MaxPoolsLength() int    { return l.maxPoolsLength }

func (l *Ledger) TotalVoteWeight() math.Int { return utils.OrZero(l.oracle.TotalVoteWeight()) }
