/*

This file contains the default protocol parameters of the reward flow distributor.

They are used when neither the parameters file nor the database holds an active set.

*/

package config

import (
	"github.com/elys-network/votesnap/internal/types"
)

// DefaultProtocolParameters is the baseline partner schedule and reward split.
var DefaultProtocolParameters = types.ProtocolParameters{
	// --- Partner Tier ---
	PartnerTier: types.PartnerTier{
		FirstBreakpointBps: 1250, // Full base rate up to 12.5% of the base token supply staked by partners.
		// Rationale: early partners should be rewarded generously to bootstrap the partner pool.

		SecondBreakpointBps: 2500, // Share stops growing at 25% staked.
		// Rationale: beyond this point more partner stake no longer needs extra incentives.

		BaseRateBps: 20000, // 2x the staked ratio below the first breakpoint, so 12.5% staked earns 25%.

		MarginalRateBps: 7500, // Each extra point above the first breakpoint earns 75% of the base rate.

		CapMultiplierBps: 20000, // Never more than 2x the staked ratio.

		CeilingBps: 2500, // Partners never take more than 25% of an inflow.
		// Rationale: the remainder must stay large enough for LP stakers to keep liquidity deep.
	},

	// --- Base Token Split (post partner remainder) ---
	BaseSplit: types.RewardSplit{
		BaseStakersBps: 500,
		LockersBps:     500,
		LPStakersBps:   8500, // Liquidity is what the votes are directing, so LP stakers get the bulk.
		TreasuryBps:    300,
		EcosystemBps:   200,
	},

	// --- Secondary Token Split (post partner remainder) ---
	SecondarySplit: types.RewardSplit{
		BaseStakersBps: 1000,
		LockersBps:     1000,
		LPStakersBps:   7500,
		TreasuryBps:    500,
		EcosystemBps:   0,
	},

	SecondaryEmissionBps: 10000, // One secondary token emitted per base token distributed.

	PartnersReceiveLockedSecondary: true,
	// Rationale: partners are long term aligned, paying them in the locked variant keeps emissions off the market.
}
