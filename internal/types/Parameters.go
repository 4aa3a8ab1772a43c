/*

This file contains the protocol parameters of the reward flow distributor.
Every percentage is expressed in basis points (10_000 = 100%).

*/

package types

import (
	"fmt"
)

// BpsDenominator is the basis point denominator used by every configured percentage.
const BpsDenominator uint64 = 10_000

// PartnerTier parameterizes the partner share schedule as a function of the partner pool's
// share of the total base token supply.
type PartnerTier struct {
	FirstBreakpointBps  uint64 `json:"first_breakpoint_bps" yaml:"first_breakpoint_bps" toml:"first_breakpoint_bps"`    // Staked ratio where the marginal rate starts to shrink.
	SecondBreakpointBps uint64 `json:"second_breakpoint_bps" yaml:"second_breakpoint_bps" toml:"second_breakpoint_bps"` // Staked ratio from which the ceiling applies.
	BaseRateBps         uint64 `json:"base_rate_bps" yaml:"base_rate_bps" toml:"base_rate_bps"`                         // Multiplier applied to the staked ratio below the first breakpoint.
	MarginalRateBps     uint64 `json:"marginal_rate_bps" yaml:"marginal_rate_bps" toml:"marginal_rate_bps"`             // Fraction of the base rate earned above the first breakpoint.
	CapMultiplierBps    uint64 `json:"cap_multiplier_bps" yaml:"cap_multiplier_bps" toml:"cap_multiplier_bps"`          // The share never exceeds this multiple of the staked ratio.
	CeilingBps          uint64 `json:"ceiling_bps" yaml:"ceiling_bps" toml:"ceiling_bps"`                               // Absolute upper bound of the partner share.
}

// RewardSplit is the split of the post-partner remainder. The buckets must sum to BpsDenominator.
type RewardSplit struct {
	BaseStakersBps uint64 `json:"base_stakers_bps" yaml:"base_stakers_bps" toml:"base_stakers_bps"`
	LockersBps     uint64 `json:"lockers_bps" yaml:"lockers_bps" toml:"lockers_bps"`
	LPStakersBps   uint64 `json:"lp_stakers_bps" yaml:"lp_stakers_bps" toml:"lp_stakers_bps"`
	TreasuryBps    uint64 `json:"treasury_bps" yaml:"treasury_bps" toml:"treasury_bps"`
	EcosystemBps   uint64 `json:"ecosystem_bps" yaml:"ecosystem_bps" toml:"ecosystem_bps"`
}

// Sum returns the total of all buckets.
func (s RewardSplit) Sum() uint64 {
	return s.BaseStakersBps + s.LockersBps + s.LPStakersBps + s.TreasuryBps + s.EcosystemBps
}

// ProtocolParameters holds every tunable of the reward flow distributor.
type ProtocolParameters struct {
	PartnerTier PartnerTier `json:"partner_tier" yaml:"partner_tier" toml:"partner_tier"`

	BaseSplit      RewardSplit `json:"base_split" yaml:"base_split" toml:"base_split"`
	SecondarySplit RewardSplit `json:"secondary_split" yaml:"secondary_split" toml:"secondary_split"`

	// SecondaryEmissionBps is the amount of secondary token emitted per unit of base token inflow.
	SecondaryEmissionBps uint64 `json:"secondary_emission_bps" yaml:"secondary_emission_bps" toml:"secondary_emission_bps"`
	// PartnersReceiveLockedSecondary pays the partner share of the secondary token in its locked variant.
	PartnersReceiveLockedSecondary bool `json:"partners_receive_locked_secondary" yaml:"partners_receive_locked_secondary" toml:"partners_receive_locked_secondary"`
}

// Validate checks the internal consistency of the parameters.
func (p ProtocolParameters) Validate() error {
	t := p.PartnerTier
	if t.FirstBreakpointBps == 0 || t.FirstBreakpointBps > t.SecondBreakpointBps {
		return fmt.Errorf("%w: partner breakpoints must satisfy 0 < first (%d) <= second (%d)",
			ErrInvalidParameters, t.FirstBreakpointBps, t.SecondBreakpointBps)
	}
	if t.SecondBreakpointBps > BpsDenominator {
		return fmt.Errorf("%w: second partner breakpoint %d exceeds %d", ErrInvalidParameters, t.SecondBreakpointBps, BpsDenominator)
	}
	if t.MarginalRateBps > BpsDenominator {
		return fmt.Errorf("%w: marginal rate %d exceeds %d", ErrInvalidParameters, t.MarginalRateBps, BpsDenominator)
	}
	if t.CeilingBps > BpsDenominator {
		return fmt.Errorf("%w: partner ceiling %d exceeds %d", ErrInvalidParameters, t.CeilingBps, BpsDenominator)
	}
	if sum := p.BaseSplit.Sum(); sum != BpsDenominator {
		return fmt.Errorf("%w: base split sums to %d, expected %d", ErrInvalidParameters, sum, BpsDenominator)
	}
	if sum := p.SecondarySplit.Sum(); sum != BpsDenominator {
		return fmt.Errorf("%w: secondary split sums to %d, expected %d", ErrInvalidParameters, sum, BpsDenominator)
	}
	return nil
}
