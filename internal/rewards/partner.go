/*

This file contains the partner share schedule.

The partner pool's share of an inflow grows with its stake as a share of the base token supply:
 - up to the first breakpoint the share is ratio * baseRate;
 - between the breakpoints every extra point of ratio earns only marginalRate of baseRate;
 - beyond the second breakpoint the share stops growing.
The result never exceeds capMultiplier * ratio nor the ceiling.

All ratios are fixed point with 18 decimals.

*/

package rewards

import (
	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/elys-network/votesnap/internal/utils"
)

var bps = sdkmath.NewIntFromUint64(types.BpsDenominator)

func bpsToRatio(v uint64) sdkmath.Int {
	return sdkmath.NewIntFromUint64(v).Mul(utils.Precision).Quo(bps)
}

func scaleBps(x sdkmath.Int, v uint64) sdkmath.Int {
	return x.Mul(sdkmath.NewIntFromUint64(v)).Quo(bps)
}

// StakedRatio returns partnerStaked / totalSupply at 18 decimals, zero for an empty supply.
func StakedRatio(partnerStaked, totalSupply sdkmath.Int) sdkmath.Int {
	if totalSupply.IsNil() || !totalSupply.IsPositive() || partnerStaked.IsNil() || !partnerStaked.IsPositive() {
		return sdkmath.ZeroInt()
	}
	if partnerStaked.GT(totalSupply) {
		return utils.Precision
	}
	ratio, err := utils.MulDiv(partnerStaked, utils.Precision, totalSupply)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	return ratio
}

// PartnerRate returns the partner share of an inflow at 18 decimals for a staked ratio.
func PartnerRate(ratio sdkmath.Int, tier types.PartnerTier) sdkmath.Int {
	if ratio.IsNil() || !ratio.IsPositive() {
		return sdkmath.ZeroInt()
	}
	first := bpsToRatio(tier.FirstBreakpointBps)
	second := bpsToRatio(tier.SecondBreakpointBps)
	if ratio.GT(second) {
		ratio = second
	}

	var rate sdkmath.Int
	if ratio.LTE(first) {
		rate = scaleBps(ratio, tier.BaseRateBps)
	} else {
		rate = scaleBps(first, tier.BaseRateBps).
			Add(scaleBps(scaleBps(ratio.Sub(first), tier.BaseRateBps), tier.MarginalRateBps))
	}

	if limit := scaleBps(ratio, tier.CapMultiplierBps); rate.GT(limit) {
		rate = limit
	}
	if ceiling := bpsToRatio(tier.CeilingBps); rate.GT(ceiling) {
		rate = ceiling
	}
	return rate
}

// RateToBps converts an 18 decimal rate to basis points, rounding down.
func RateToBps(rate sdkmath.Int) uint64 {
	return rate.Mul(bps).Quo(utils.Precision).Uint64()
}
