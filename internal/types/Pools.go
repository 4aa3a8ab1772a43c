/*

This file contains the vote ledger types: individual votes, the per-pool aggregates
derived from them and the prepared distribution pushed to the governance registry.

*/

package types

import (
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Vote is one account's signed weight against one pool. Zero-weight votes are never stored.
type Vote struct {
	Account common.Address `json:"account"`
	Pool    common.Address `json:"pool"`
	Weight  math.Int       `json:"weight"` // Negative weights vote against the pool
}

// PoolVote is the (pool, weight) pair used for batch votes and account vote listings.
type PoolVote struct {
	Pool   common.Address `json:"pool"`
	Weight math.Int       `json:"weight"`
}

// PoolWeight is the aggregate of every vote targeting a pool.
type PoolWeight struct {
	Pool     common.Address `json:"pool"`
	Signed   math.Int       `json:"signed"`   // Sum of signed weights
	Unsigned math.Int       `json:"unsigned"` // Sum of absolute weights
}

// RankedPool is a pool in the global ranking together with its rank (0 = first).
type RankedPool struct {
	Rank   int            `json:"rank"`
	Pool   common.Address `json:"pool"`
	Weight math.Int       `json:"weight"` // Net signed weight
}

// PreparedVote is the proportional distribution of the total vote weight over the
// positively weighted top pools.
type PreparedVote struct {
	Pools           []common.Address `json:"pools"`
	Weights         []math.Int       `json:"weights"`
	TotalVoteWeight math.Int         `json:"total_vote_weight"`
}

// Submission records what was last pushed to the governance registry.
type Submission struct {
	Epoch       int64        `json:"epoch"` // Epoch boundary (unix seconds) the submission targets
	SubmittedAt time.Time    `json:"submitted_at"`
	Vote        PreparedVote `json:"vote"`
}
