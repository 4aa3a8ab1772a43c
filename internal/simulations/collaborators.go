package simulations

import (
	"errors"
	"fmt"
	"sort"

	"cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/chain"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrClaimFailed      = errors.New("upstream claim failed")
	ErrSubmissionFailed = errors.New("governance submission failed")
)

// LockedBalances is an in-memory vote-escrow oracle.
type LockedBalances struct {
	capacities map[common.Address]math.Int
	nfts       map[uint64]veNFT
	total      math.Int
}

type veNFT struct {
	owner   common.Address
	locked  math.Int
	balance math.Int
}

var _ chain.LockedBalanceOracle = (*LockedBalances)(nil)

func NewLockedBalances() *LockedBalances {
	return &LockedBalances{
		capacities: make(map[common.Address]math.Int),
		nfts:       make(map[uint64]veNFT),
		total:      math.ZeroInt(),
	}
}

func (o *LockedBalances) SetCapacity(account common.Address, capacity math.Int) {
	o.capacities[account] = capacity
}

func (o *LockedBalances) SetTotalVoteWeight(total math.Int) { o.total = total }

func (o *LockedBalances) AddNFT(tokenID uint64, owner common.Address, locked, balance math.Int) {
	o.nfts[tokenID] = veNFT{owner: owner, locked: locked, balance: balance}
}

func (o *LockedBalances) CapacityOf(account common.Address) math.Int {
	if c, ok := o.capacities[account]; ok {
		return c
	}
	return math.ZeroInt()
}

func (o *LockedBalances) LockedAmount(tokenID uint64) math.Int {
	if n, ok := o.nfts[tokenID]; ok {
		return n.locked
	}
	return math.ZeroInt()
}

func (o *LockedBalances) BalanceOfNFT(tokenID uint64) math.Int {
	if n, ok := o.nfts[tokenID]; ok {
		return n.balance
	}
	return math.ZeroInt()
}

func (o *LockedBalances) TokensOf(account common.Address) []uint64 {
	ids := make([]uint64, 0)
	for id, n := range o.nfts {
		if n.owner == account {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (o *LockedBalances) TotalVoteWeight() math.Int { return o.total }

// ExternalAllowlist is an in-memory AMM allowlist.
type ExternalAllowlist struct {
	listed map[common.Address]bool
}

var _ chain.ExternalAllowlist = (*ExternalAllowlist)(nil)

func NewExternalAllowlist(tokens ...common.Address) *ExternalAllowlist {
	a := &ExternalAllowlist{listed: make(map[common.Address]bool)}
	for _, t := range tokens {
		a.listed[t] = true
	}
	return a
}

func (a *ExternalAllowlist) List(token common.Address) { a.listed[token] = true }

func (a *ExternalAllowlist) Unlist(token common.Address) { delete(a.listed, token) }

func (a *ExternalAllowlist) IsListed(token common.Address) bool { return a.listed[token] }

// Registry is an in-memory bribe and fee token registry.
type Registry struct {
	bribeTokens map[common.Address][]common.Address
	feeTokens   map[common.Address][]common.Address
}

var _ chain.ExternalRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		bribeTokens: make(map[common.Address][]common.Address),
		feeTokens:   make(map[common.Address][]common.Address),
	}
}

// AddBribeToken appends token to the wrapper's bribe list unless already present.
func (r *Registry) AddBribeToken(wrapper, token common.Address) {
	for _, t := range r.bribeTokens[wrapper] {
		if t == token {
			return
		}
	}
	r.bribeTokens[wrapper] = append(r.bribeTokens[wrapper], token)
}

// RemoveBribeToken drops token from the wrapper's bribe list, preserving order.
func (r *Registry) RemoveBribeToken(wrapper, token common.Address) {
	list := r.bribeTokens[wrapper]
	for i, t := range list {
		if t == token {
			r.bribeTokens[wrapper] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (r *Registry) SetFeeTokens(wrapper common.Address, tokens ...common.Address) {
	r.feeTokens[wrapper] = tokens
}

func (r *Registry) BribeTokensLength(wrapper common.Address) int {
	return len(r.bribeTokens[wrapper])
}

func (r *Registry) BribeTokenAt(wrapper common.Address, index int) common.Address {
	return r.bribeTokens[wrapper][index]
}

func (r *Registry) FeeTokens(wrapper common.Address) []common.Address {
	return append([]common.Address(nil), r.feeTokens[wrapper]...)
}

type pairKey struct {
	wrapper common.Address
	token   common.Address
}

// Bribes is an in-memory upstream bribe and fee source. Claimable amounts are hidden
// until every pending checkpoint of the pair has been processed.
type Bribes struct {
	ledger    *TokenLedger
	custody   common.Address
	claimable map[pairKey]math.Int
	lag       map[pairKey]int

	// FailClaims makes claims of the listed tokens fail.
	FailClaims map[common.Address]bool
	// Checkpoints counts processed checkpoint runs per token, for assertions.
	Checkpoints map[common.Address]int
}

var _ chain.UpstreamBribeSource = (*Bribes)(nil)

func NewBribes(ledger *TokenLedger, custody common.Address) *Bribes {
	return &Bribes{
		ledger:      ledger,
		custody:     custody,
		claimable:   make(map[pairKey]math.Int),
		lag:         make(map[pairKey]int),
		FailClaims:  make(map[common.Address]bool),
		Checkpoints: make(map[common.Address]int),
	}
}

// Fund mints amount of token into custody and makes it claimable for wrapper.
func (b *Bribes) Fund(wrapper, token common.Address, amount math.Int) error {
	if err := b.ledger.Mint(token, b.custody, amount); err != nil {
		return err
	}
	k := pairKey{wrapper, token}
	b.claimable[k] = b.rawClaimable(k).Add(amount)
	return nil
}

// SetLag sets the number of pending checkpoints for the pair.
func (b *Bribes) SetLag(wrapper, token common.Address, lag int) {
	b.lag[pairKey{wrapper, token}] = lag
}

func (b *Bribes) rawClaimable(k pairKey) math.Int {
	if c, ok := b.claimable[k]; ok {
		return c
	}
	return math.ZeroInt()
}

func (b *Bribes) Claimable(wrapper, token common.Address) math.Int {
	k := pairKey{wrapper, token}
	if b.lag[k] > 0 {
		return math.ZeroInt()
	}
	return b.rawClaimable(k)
}

func (b *Bribes) Claim(wrapper, token, to common.Address) error {
	if b.FailClaims[token] {
		return fmt.Errorf("%w: %s", ErrClaimFailed, token.Hex())
	}
	amount := b.Claimable(wrapper, token)
	if amount.IsZero() {
		return nil
	}
	t, err := b.ledger.Token(token)
	if err != nil {
		return err
	}
	if err := t.Transfer(b.custody, to, amount); err != nil {
		return err
	}
	b.claimable[pairKey{wrapper, token}] = math.ZeroInt()
	return nil
}

func (b *Bribes) CheckpointLag(wrapper, token common.Address) int {
	return b.lag[pairKey{wrapper, token}]
}

func (b *Bribes) Checkpoint(wrapper, token common.Address, runs int) error {
	k := pairKey{wrapper, token}
	if runs > b.lag[k] {
		runs = b.lag[k]
	}
	b.lag[k] -= runs
	b.Checkpoints[token] += runs
	return nil
}

// Gauges is an in-memory gauge paying base token emissions.
type Gauges struct {
	ledger    *TokenLedger
	baseToken common.Address
	custody   common.Address
	pending   map[common.Address]math.Int
}

var _ chain.GaugeSource = (*Gauges)(nil)

func NewGauges(ledger *TokenLedger, baseToken, custody common.Address) *Gauges {
	return &Gauges{ledger: ledger, baseToken: baseToken, custody: custody, pending: make(map[common.Address]math.Int)}
}

// Accrue mints emissions for wrapper into the gauge's custody.
func (g *Gauges) Accrue(wrapper common.Address, amount math.Int) error {
	if err := g.ledger.Mint(g.baseToken, g.custody, amount); err != nil {
		return err
	}
	g.pending[wrapper] = g.Pending(wrapper).Add(amount)
	return nil
}

func (g *Gauges) Pending(wrapper common.Address) math.Int {
	if p, ok := g.pending[wrapper]; ok {
		return p
	}
	return math.ZeroInt()
}

func (g *Gauges) ClaimEmissions(wrapper, to common.Address) (math.Int, error) {
	amount := g.Pending(wrapper)
	if amount.IsZero() {
		return amount, nil
	}
	t, err := g.ledger.Token(g.baseToken)
	if err != nil {
		return math.ZeroInt(), err
	}
	if err := t.Transfer(g.custody, to, amount); err != nil {
		return math.ZeroInt(), err
	}
	g.pending[wrapper] = math.ZeroInt()
	return amount, nil
}

// Governance is an in-memory AMM voter that records submitted weights.
type Governance struct {
	Pools       []common.Address
	Weights     []math.Int
	Submissions int
	Fail        bool
}

var _ chain.GovernanceRegistry = (*Governance)(nil)

func (g *Governance) SubmitWeights(pools []common.Address, weights []math.Int) error {
	if g.Fail {
		return ErrSubmissionFailed
	}
	g.Pools = append([]common.Address(nil), pools...)
	g.Weights = append([]math.Int(nil), weights...)
	g.Submissions++
	return nil
}

// Locks is an in-memory lock schedule.
type Locks struct {
	locks map[common.Address][]types.Lock
}

var _ chain.LockSchedule = (*Locks)(nil)

func NewLocks() *Locks { return &Locks{locks: make(map[common.Address][]types.Lock)} }

func (l *Locks) AddLock(account common.Address, lock types.Lock) {
	l.locks[account] = append(l.locks[account], lock)
}

func (l *Locks) LocksOf(account common.Address) []types.Lock {
	return append([]types.Lock(nil), l.locks[account]...)
}
