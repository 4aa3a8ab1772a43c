package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDivFloors(t *testing.T) {
	got, err := MulDiv(sdkmath.NewInt(10), sdkmath.NewInt(1), sdkmath.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(3), got)

	_, err = MulDiv(sdkmath.NewInt(1), sdkmath.NewInt(1), sdkmath.ZeroInt())
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = MulDiv(sdkmath.NewInt(-1), sdkmath.NewInt(1), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, ErrAmountNegative)
}

func TestBpsOfAndAbs(t *testing.T) {
	assert.Equal(t, sdkmath.NewInt(2500), BpsOf(sdkmath.NewInt(10_000), 2500))
	assert.Equal(t, sdkmath.NewInt(0), BpsOf(sdkmath.NewInt(3), 2500))
	assert.Equal(t, sdkmath.NewInt(900), Abs(sdkmath.NewInt(-900)))
	assert.Equal(t, sdkmath.NewInt(7), Abs(sdkmath.NewInt(7)))
	assert.True(t, OrZero(sdkmath.Int{}).IsZero())
}

func TestSDKIntToFloat64(t *testing.T) {
	f, err := SDKIntToFloat64(sdkmath.NewInt(-1_500_000), 6)
	require.NoError(t, err)
	assert.InDelta(t, -1.5, f, 1e-9)

	_, err = SDKIntToFloat64(sdkmath.NewInt(1), 19)
	assert.ErrorIs(t, err, ErrInvalidPrecision)

	_, err = SDKIntToFloat64(sdkmath.Int{}, 6)
	assert.ErrorIs(t, err, ErrAmountNil)
}
