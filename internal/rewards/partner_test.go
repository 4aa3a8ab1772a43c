package rewards

import (
	"math/rand"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/config"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/elys-network/votesnap/internal/utils"
	"github.com/stretchr/testify/assert"
)

func ratioBps(v int64) sdkmath.Int {
	return utils.Precision.MulRaw(v).QuoRaw(10_000)
}

func TestPartnerRateSchedule(t *testing.T) {
	tier := config.DefaultProtocolParameters.PartnerTier

	tests := []struct {
		name     string
		ratioBps int64
		wantBps  uint64
	}{
		{"nothing staked", 0, 0},
		{"below first breakpoint", 500, 1000},
		{"at first breakpoint earns twice the ratio", 1250, 2500},
		{"between breakpoints already at ceiling", 1500, 2500},
		{"above second breakpoint", 3000, 2500},
		{"far above second breakpoint", 6000, 2500},
		{"everything staked", 10_000, 2500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantBps, RateToBps(PartnerRate(ratioBps(tt.ratioBps), tier)))
		})
	}
}

func TestPartnerRateFirstBreakpointEarnsQuarter(t *testing.T) {
	rate := PartnerRate(ratioBps(1250), config.DefaultProtocolParameters.PartnerTier)
	assert.True(t, rate.Equal(ratioBps(2500)), "got %s", rate)
}

func TestPartnerRateExactBetweenBreakpoints(t *testing.T) {
	tier := config.DefaultProtocolParameters.PartnerTier
	tier.BaseRateBps = 15000
	rate := PartnerRate(ratioBps(1500), tier)
	// 12.5% * 1.5 + 2.5% * 1.5 * 0.75 = 21.5625%
	assert.True(t, rate.Equal(sdkmath.NewInt(215625).Mul(sdkmath.NewIntWithDecimal(1, 12))), "got %s", rate)
}

func TestPartnerRateCapMultiplier(t *testing.T) {
	tier := config.DefaultProtocolParameters.PartnerTier
	tier.CapMultiplierBps = 10_000
	assert.Equal(t, uint64(1000), RateToBps(PartnerRate(ratioBps(1000), tier)))
}

func TestStakedRatio(t *testing.T) {
	assert.True(t, StakedRatio(sdkmath.NewInt(150), sdkmath.NewInt(1000)).Equal(ratioBps(1500)))
	assert.True(t, StakedRatio(sdkmath.NewInt(5), sdkmath.ZeroInt()).IsZero())
	assert.True(t, StakedRatio(sdkmath.NewInt(2000), sdkmath.NewInt(1000)).Equal(utils.Precision))
}

func TestSplitConservesAmount(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	params := config.DefaultProtocolParameters
	for i := 0; i < 200; i++ {
		amount := sdkmath.NewInt(rng.Int63n(1_000_000_000) + 1)
		rate := PartnerRate(ratioBps(rng.Int63n(10_001)), params.PartnerTier)
		for _, split := range []types.RewardSplit{params.BaseSplit, params.SecondarySplit} {
			s := Split(amount, rate, split)
			total := s.Partner.Add(s.BaseStakers).Add(s.Lockers).Add(s.LPStakers).Add(s.Treasury).Add(s.Ecosystem)
			assert.Truef(t, total.Equal(amount), "split of %s sums to %s", amount, total)
			assert.False(t, s.Treasury.IsNegative())
		}
	}
}

func TestSplitTreasuryTakesDust(t *testing.T) {
	s := Split(sdkmath.NewInt(1_000_000), ratioBps(0), config.DefaultProtocolParameters.BaseSplit)
	assert.True(t, s.Partner.IsZero())
	assert.True(t, s.LPStakers.Equal(sdkmath.NewInt(850_000)))
	assert.True(t, s.Treasury.Equal(sdkmath.NewInt(30_000)))

	s = Split(sdkmath.NewInt(9), ratioBps(0), config.DefaultProtocolParameters.BaseSplit)
	// 9 * 85% floors to 7, the rest of the buckets floor to zero.
	assert.True(t, s.LPStakers.Equal(sdkmath.NewInt(7)))
	assert.True(t, s.Treasury.Equal(sdkmath.NewInt(2)))
}
