/*

This file contains the position aggregator: one read-only call that gathers everything an
account holds across tokens, locks, votes and reward pools.

It reads live state without locking. Callers that share the components with writers must
hold a read lock for the whole call, which is what the engine does.

*/

package lens

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/chain"
	"github.com/elys-network/votesnap/internal/rewards"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/elys-network/votesnap/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
)

// VotingView is the part of the voting ledger the aggregator reads.
type VotingView interface {
	DelegateOf(account common.Address) (common.Address, bool)
	VoteWeightTotalByAccount(account common.Address) sdkmath.Int
	VoteWeightUsedByAccount(account common.Address) sdkmath.Int
	VoteWeightAvailableByAccount(account common.Address) sdkmath.Int
	VotesByAccount(account common.Address) []types.PoolVote
}

// Config holds the sources of a Lens. Locks may be nil when no lock schedule is available.
type Config struct {
	Tokens      chain.TokenRegistry
	Locked      chain.LockedBalanceOracle
	Locks       chain.LockSchedule
	Voting      VotingView
	Distributor *rewards.Distributor
	Clock       clockwork.Clock
}

type Lens struct {
	cfg Config
}

func New(cfg Config) (*Lens, error) {
	if cfg.Tokens == nil || cfg.Locked == nil || cfg.Voting == nil || cfg.Distributor == nil || cfg.Clock == nil {
		return nil, fmt.Errorf("%w: lens requires tokens, locked balances, voting, distributor and clock", types.ErrInvalidParameters)
	}
	return &Lens{cfg: cfg}, nil
}

func (l *Lens) balance(token, account common.Address) (sdkmath.Int, error) {
	if token == (common.Address{}) {
		return sdkmath.ZeroInt(), nil
	}
	t, err := l.cfg.Tokens.Token(token)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to resolve token %s: %w", token.Hex(), err)
	}
	return utils.OrZero(t.BalanceOf(account)), nil
}

// PositionsOf returns the account's full position snapshot.
func (l *Lens) PositionsOf(account common.Address) (types.Positions, error) {
	d := l.cfg.Distributor
	dc := d.Config()

	p := types.Positions{
		Account:   account,
		IsPartner: d.IsPartner(account),
		Treasury:  d.Treasury(),
		TakenAt:   l.cfg.Clock.Now(),
	}

	balances := []struct {
		token common.Address
		dst   *sdkmath.Int
	}{
		{dc.BaseToken, &p.BaseBalance},
		{dc.DerivativeToken, &p.DerivativeBalance},
		{dc.SecondaryToken, &p.SecondaryBalance},
		{dc.LockedSecondaryToken, &p.LockedSecondaryBalance},
	}
	for _, b := range balances {
		v, err := l.balance(b.token, account)
		if err != nil {
			return types.Positions{}, err
		}
		*b.dst = v
	}
	p.StakedDerivativeBalance = d.BaseStakersPool().StakeOf(account).Add(d.PartnerPool().StakeOf(account))

	if l.cfg.Locks != nil {
		p.Locks = l.cfg.Locks.LocksOf(account)
	}
	p.VePositions = l.VePositionsOf(account)
	p.Votes = l.VotesOf(account)
	p.StakingPositions = l.StakingPositionsOf(account)
	return p, nil
}

// VePositionsOf lists the account's ve NFTs.
func (l *Lens) VePositionsOf(account common.Address) []types.VePosition {
	ids := l.cfg.Locked.TokensOf(account)
	out := make([]types.VePosition, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.VePosition{
			TokenID:      id,
			BalanceOf:    utils.OrZero(l.cfg.Locked.BalanceOfNFT(id)),
			LockedAmount: utils.OrZero(l.cfg.Locked.LockedAmount(id)),
		})
	}
	return out
}

// VotesOf returns the account's voting state.
func (l *Lens) VotesOf(account common.Address) types.VotesData {
	delegate, _ := l.cfg.Voting.DelegateOf(account)
	return types.VotesData{
		Delegate:        delegate,
		WeightTotal:     l.cfg.Voting.VoteWeightTotalByAccount(account),
		WeightUsed:      l.cfg.Voting.VoteWeightUsedByAccount(account),
		WeightAvailable: l.cfg.Voting.VoteWeightAvailableByAccount(account),
		Votes:           l.cfg.Voting.VotesByAccount(account),
	}
}

// StakingPositionsOf lists the pools where the account has a stake or something to claim.
func (l *Lens) StakingPositionsOf(account common.Address) []types.StakingPosition {
	out := make([]types.StakingPosition, 0)
	for _, pool := range l.cfg.Distributor.Pools() {
		staked := pool.StakeOf(account)
		claimable := make([]types.TokenAmount, 0)
		for _, e := range pool.Earned(account) {
			if e.Amount.IsPositive() {
				claimable = append(claimable, e)
			}
		}
		if !staked.IsPositive() && len(claimable) == 0 {
			continue
		}
		out = append(out, types.StakingPosition{Pool: pool.Address(), Staked: staked, Claimable: claimable})
	}
	return out
}
