/*

This file contains the staking reward pool: stakes of one staking token, and rewards in any
number of reward tokens accrued through a reward-per-token accumulator. Rewards notified while
nothing is staked are queued and handed to the first stake.

*/

package rewards

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/elys-network/votesnap/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

// StakingPool is one reward pool. Not safe for concurrent use.
type StakingPool struct {
	address      common.Address
	stakingToken common.Address

	totalStaked sdkmath.Int
	stakes      map[common.Address]sdkmath.Int

	rewardTokens   []common.Address
	rewardPerToken map[common.Address]sdkmath.Int // 18 decimals
	carry          map[common.Address]sdkmath.Int // scaled remainder not yet in rewardPerToken
	queued         map[common.Address]sdkmath.Int
	paid           map[common.Address]map[common.Address]sdkmath.Int
	earned         map[common.Address]map[common.Address]sdkmath.Int
}

func newStakingPool(address, stakingToken common.Address) *StakingPool {
	return &StakingPool{
		address:        address,
		stakingToken:   stakingToken,
		totalStaked:    sdkmath.ZeroInt(),
		stakes:         make(map[common.Address]sdkmath.Int),
		rewardPerToken: make(map[common.Address]sdkmath.Int),
		carry:          make(map[common.Address]sdkmath.Int),
		queued:         make(map[common.Address]sdkmath.Int),
		paid:           make(map[common.Address]map[common.Address]sdkmath.Int),
		earned:         make(map[common.Address]map[common.Address]sdkmath.Int),
	}
}

func get(m map[common.Address]sdkmath.Int, k common.Address) sdkmath.Int {
	if v, ok := m[k]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

func (p *StakingPool) Address() common.Address      { return p.address }
func (p *StakingPool) StakingToken() common.Address { return p.stakingToken }
func (p *StakingPool) TotalStaked() sdkmath.Int     { return p.totalStaked }

func (p *StakingPool) StakeOf(account common.Address) sdkmath.Int {
	return get(p.stakes, account)
}

// RewardTokens lists the reward tokens in the order they were first notified.
func (p *StakingPool) RewardTokens() []common.Address {
	return append([]common.Address(nil), p.rewardTokens...)
}

func (p *StakingPool) trackToken(token common.Address) {
	if _, ok := p.rewardPerToken[token]; ok {
		return
	}
	p.rewardPerToken[token] = sdkmath.ZeroInt()
	p.rewardTokens = append(p.rewardTokens, token)
}

// notify credits amount of token to the current stakers.
func (p *StakingPool) notify(token common.Address, amount sdkmath.Int) {
	if !amount.IsPositive() {
		return
	}
	p.trackToken(token)
	if p.totalStaked.IsZero() {
		p.queued[token] = get(p.queued, token).Add(amount)
		return
	}
	scaled := amount.Mul(utils.Precision).Add(get(p.carry, token))
	p.rewardPerToken[token] = p.rewardPerToken[token].Add(scaled.Quo(p.totalStaked))
	p.carry[token] = scaled.Mod(p.totalStaked)
}

func (p *StakingPool) pending(account, token common.Address) sdkmath.Int {
	delta := p.rewardPerToken[token].Sub(get(p.paid[account], token))
	return p.StakeOf(account).Mul(delta).Quo(utils.Precision)
}

func (p *StakingPool) settle(account common.Address) {
	if p.paid[account] == nil {
		p.paid[account] = make(map[common.Address]sdkmath.Int)
		p.earned[account] = make(map[common.Address]sdkmath.Int)
	}
	for _, token := range p.rewardTokens {
		p.earned[account][token] = get(p.earned[account], token).Add(p.pending(account, token))
		p.paid[account][token] = p.rewardPerToken[token]
	}
}

func (p *StakingPool) stake(account common.Address, amount sdkmath.Int) {
	p.settle(account)
	wasEmpty := p.totalStaked.IsZero()
	p.stakes[account] = p.StakeOf(account).Add(amount)
	p.totalStaked = p.totalStaked.Add(amount)
	if wasEmpty && p.totalStaked.IsPositive() {
		for _, token := range p.rewardTokens {
			if q := get(p.queued, token); q.IsPositive() {
				delete(p.queued, token)
				p.notify(token, q)
			}
		}
	}
}

func (p *StakingPool) unstake(account common.Address, amount sdkmath.Int) error {
	staked := p.StakeOf(account)
	if staked.LT(amount) {
		return fmt.Errorf("%w: %s staked %s, unstaking %s", types.ErrInvalidAmount, account.Hex(), staked, amount)
	}
	p.settle(account)
	p.stakes[account] = staked.Sub(amount)
	if p.stakes[account].IsZero() {
		delete(p.stakes, account)
	}
	p.totalStaked = p.totalStaked.Sub(amount)
	return nil
}

// Earned returns what account can claim, per reward token.
func (p *StakingPool) Earned(account common.Address) []types.TokenAmount {
	out := make([]types.TokenAmount, 0, len(p.rewardTokens))
	for _, token := range p.rewardTokens {
		amount := get(p.earned[account], token).Add(p.pending(account, token))
		out = append(out, types.TokenAmount{Token: token, Amount: amount})
	}
	return out
}

// claim zeroes and returns the account's positive earnings.
func (p *StakingPool) claim(account common.Address) []types.TokenAmount {
	p.settle(account)
	out := make([]types.TokenAmount, 0)
	for _, token := range p.rewardTokens {
		if amount := get(p.earned[account], token); amount.IsPositive() {
			out = append(out, types.TokenAmount{Token: token, Amount: amount})
			p.earned[account][token] = sdkmath.ZeroInt()
		}
	}
	return out
}

// Queued returns rewards waiting for a first stake.
func (p *StakingPool) Queued(token common.Address) sdkmath.Int {
	return get(p.queued, token)
}
