package rewards

import (
	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/elys-network/votesnap/internal/utils"
)

// Shares is the split of one inflow. Treasury absorbs the rounding remainder, so the
// buckets always add up to the inflow.
type Shares struct {
	Partner     sdkmath.Int
	BaseStakers sdkmath.Int
	Lockers     sdkmath.Int
	LPStakers   sdkmath.Int
	Treasury    sdkmath.Int
	Ecosystem   sdkmath.Int
}

// Split divides amount: first the partner share at partnerRate (18 decimals), then the
// remainder by the configured basis points.
func Split(amount, partnerRate sdkmath.Int, split types.RewardSplit) Shares {
	partner := amount.Mul(partnerRate).Quo(utils.Precision)
	remainder := amount.Sub(partner)

	s := Shares{
		Partner:     partner,
		BaseStakers: utils.BpsOf(remainder, split.BaseStakersBps),
		Lockers:     utils.BpsOf(remainder, split.LockersBps),
		LPStakers:   utils.BpsOf(remainder, split.LPStakersBps),
		Ecosystem:   utils.BpsOf(remainder, split.EcosystemBps),
	}
	s.Treasury = remainder.Sub(s.BaseStakers).Sub(s.Lockers).Sub(s.LPStakers).Sub(s.Ecosystem)
	return s
}
