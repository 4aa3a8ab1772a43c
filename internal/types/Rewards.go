/*

This file contains the reward distribution records produced by the distributor.

*/

package types

import (
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Distribution is the outcome of splitting one inflow of a reward token.
// Partner + BaseStakers + Lockers + LPStakers + Treasury + Ecosystem always equals Amount.
type Distribution struct {
	Wrapper      common.Address `json:"wrapper"` // Liquidity pool wrapper whose stakers receive the LP share
	Token        common.Address `json:"token"`
	PartnerToken common.Address `json:"partner_token"` // Token actually paid to the partner pool
	Amount       math.Int       `json:"amount"`
	PartnerBps   uint64         `json:"partner_bps"`

	Partner     math.Int `json:"partner"`
	BaseStakers math.Int `json:"base_stakers"`
	Lockers     math.Int `json:"lockers"`
	LPStakers   math.Int `json:"lp_stakers"`
	Treasury    math.Int `json:"treasury"` // Includes rounding dust
	Ecosystem   math.Int `json:"ecosystem"`

	Timestamp time.Time `json:"timestamp"`
}

// Total returns the sum of every bucket.
func (d Distribution) Total() math.Int {
	return d.Partner.Add(d.BaseStakers).Add(d.Lockers).Add(d.LPStakers).Add(d.Treasury).Add(d.Ecosystem)
}

// ClaimResult reports a single bribe or fee claim against the upstream source.
type ClaimResult struct {
	Wrapper     common.Address `json:"wrapper"`
	Token       common.Address `json:"token"`
	Amount      math.Int       `json:"amount"`
	CaughtUp    bool           `json:"caught_up"` // False when only checkpoints were advanced
	Stored      bool           `json:"stored"`    // True when the token was not allowed and the amount was kept in storage
	Checkpoints int            `json:"checkpoints"`
}

// TickSnapshot is what one engine tick did, persisted by the state store.
type TickSnapshot struct {
	TickNumber    int            `json:"tick_number"`
	TickID        string         `json:"tick_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Syncs         []SyncResult   `json:"syncs"`
	Claims        []ClaimResult  `json:"claims"`
	Distributions []Distribution `json:"distributions"`
	Submission    *Submission    `json:"submission,omitempty"`
	Errors        []string       `json:"errors,omitempty"`
	TopPools      []RankedPool   `json:"top_pools"`
}
