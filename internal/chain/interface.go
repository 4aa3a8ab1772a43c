package chain

import (
	"cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// The interfaces below abstract away the external systems the engine talks to,
// allowing for different implementations (live adapters, in-memory simulations, etc.).
// Every call is synchronous and fallible; a failure aborts the enclosing engine operation.

// Token is the narrow fungible token capability the engine needs.
type Token interface {
	Address() common.Address
	BalanceOf(account common.Address) math.Int
	// Transfer moves amount from one account to another. Non-conforming tokens may
	// deliver less than amount to the recipient.
	Transfer(from, to common.Address, amount math.Int) error
	Approve(owner, spender common.Address, amount math.Int) error
}

// TokenRegistry resolves token addresses to token capabilities.
type TokenRegistry interface {
	Token(address common.Address) (Token, error)
}

// Minter issues new units of protocol-owned tokens (the secondary emission and its locked variant).
type Minter interface {
	Mint(token, to common.Address, amount math.Int) error
}

// LockedBalanceOracle exposes the vote-escrow lock state that defines voting capacity.
type LockedBalanceOracle interface {
	// CapacityOf returns the vote weight capacity of an account.
	CapacityOf(account common.Address) math.Int
	// LockedAmount returns the amount locked in a ve NFT.
	LockedAmount(tokenID uint64) math.Int
	// BalanceOfNFT returns the current voting balance of a ve NFT.
	BalanceOfNFT(tokenID uint64) math.Int
	// TokensOf lists the ve NFTs owned by an account.
	TokensOf(account common.Address) []uint64
	// TotalVoteWeight is the weight the protocol distributes when submitting votes.
	TotalVoteWeight() math.Int
}

// ExternalAllowlist is the AMM's own token allowlist.
type ExternalAllowlist interface {
	IsListed(token common.Address) bool
}

// ExternalRegistry lists the bribe and fee tokens known upstream for a pool wrapper.
type ExternalRegistry interface {
	BribeTokensLength(wrapper common.Address) int
	BribeTokenAt(wrapper common.Address, index int) common.Address
	FeeTokens(wrapper common.Address) []common.Address
}

// UpstreamBribeSource holds the bribes and fees earned by the protocol's votes.
type UpstreamBribeSource interface {
	// Claimable returns what Claim would transfer right now.
	Claimable(wrapper, token common.Address) math.Int
	// Claim transfers the claimable amount of token to the recipient.
	Claim(wrapper, token, to common.Address) error
	// CheckpointLag is the number of reward checkpoints not yet processed for the pair.
	CheckpointLag(wrapper, token common.Address) int
	// Checkpoint processes up to runs pending checkpoints.
	Checkpoint(wrapper, token common.Address, runs int) error
}

// GaugeSource pays the base token emissions earned by a pool wrapper's gauge deposit.
type GaugeSource interface {
	// ClaimEmissions transfers the wrapper's pending base token emissions to the recipient
	// and returns the amount the gauge reports as sent.
	ClaimEmissions(wrapper, to common.Address) (math.Int, error)
}

// GovernanceRegistry is the AMM voter that receives the protocol's pool weights.
type GovernanceRegistry interface {
	SubmitWeights(pools []common.Address, weights []math.Int) error
}

// LockSchedule exposes the lock schedule of locked secondary token positions.
type LockSchedule interface {
	LocksOf(account common.Address) []types.Lock
}

// SupplySource reports the circulating supply of a token.
type SupplySource interface {
	TotalSupply(token common.Address) math.Int
}
