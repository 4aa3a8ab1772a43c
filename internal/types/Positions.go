/*

This file contains the composite position view returned by the position aggregator.

*/

package types

import (
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Lock is one entry of a secondary token lock schedule.
type Lock struct {
	Amount     math.Int  `json:"amount"`
	UnlockTime time.Time `json:"unlock_time"`
}

// VePosition is a vote-escrow NFT owned by the account.
type VePosition struct {
	TokenID      uint64   `json:"token_id"`
	BalanceOf    math.Int `json:"balance_of"`
	LockedAmount math.Int `json:"locked_amount"`
}

// VotesData is the account's voting state.
type VotesData struct {
	Delegate        common.Address `json:"delegate"` // Zero address when not delegated
	WeightTotal     math.Int       `json:"weight_total"`
	WeightUsed      math.Int       `json:"weight_used"`
	WeightAvailable math.Int       `json:"weight_available"`
	Votes           []PoolVote     `json:"votes"`
}

// TokenAmount pairs a reward token with an amount.
type TokenAmount struct {
	Token  common.Address `json:"token"`
	Amount math.Int       `json:"amount"`
}

// StakingPosition is the account's stake in one reward pool and what it can claim there.
type StakingPosition struct {
	Pool      common.Address `json:"pool"`
	Staked    math.Int       `json:"staked"`
	Claimable []TokenAmount  `json:"claimable"`
}

// Positions is the point-in-time snapshot of everything an account holds.
type Positions struct {
	Account   common.Address `json:"account"`
	IsPartner bool           `json:"is_partner"`

	BaseBalance             math.Int `json:"base_balance"`
	DerivativeBalance       math.Int `json:"derivative_balance"`
	StakedDerivativeBalance math.Int `json:"staked_derivative_balance"` // Base stakers pool + partner pool
	SecondaryBalance        math.Int `json:"secondary_balance"`
	LockedSecondaryBalance  math.Int `json:"locked_secondary_balance"`
	Locks                   []Lock   `json:"locks"`

	VePositions      []VePosition      `json:"ve_positions"`
	Votes            VotesData         `json:"votes"`
	StakingPositions []StakingPosition `json:"staking_positions"`

	Treasury common.Address `json:"treasury"`
	TakenAt  time.Time      `json:"taken_at"`
}
