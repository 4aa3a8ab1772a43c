/*

This file wires every in-memory collaborator into one environment with a fixed set of
well-known addresses. The binary's simulation mode and the engine tests run against it.

*/

package simulations

import (
	"fmt"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Addresses of the simulated protocol.
var (
	Governor   = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	Custody    = common.HexToAddress("0x0000000000000000000000000000000000d15700")
	Treasury   = common.HexToAddress("0x0000000000000000000000000000000000007ea5")
	Ecosystem  = common.HexToAddress("0x000000000000000000000000000000000000ec05")
	Upstream   = common.HexToAddress("0x00000000000000000000000000000000000b1b00")
	GaugeVault = common.HexToAddress("0x0000000000000000000000000000000000064e00")

	BaseToken            = common.HexToAddress("0x0000000000000000000000000000000000000ba5")
	DerivativeToken      = common.HexToAddress("0x0000000000000000000000000000000000000de7")
	SecondaryToken       = common.HexToAddress("0x00000000000000000000000000000000000005ec")
	LockedSecondaryToken = common.HexToAddress("0x000000000000000000000000000000000000105e")

	BaseStakersPool = common.HexToAddress("0x0000000000000000000000000000000000b00001")
	PartnerPool     = common.HexToAddress("0x0000000000000000000000000000000000b00002")
	LockersPool     = common.HexToAddress("0x0000000000000000000000000000000000b00003")
)

// Environment groups the in-memory collaborators of one simulated deployment.
type Environment struct {
	Tokens     *TokenLedger
	Balances   *LockedBalances
	External   *ExternalAllowlist
	Registry   *Registry
	Bribes     *Bribes
	Gauges     *Gauges
	Governance *Governance
	Locks      *Locks
}

// NewEnvironment creates the protocol tokens and empty collaborators.
func NewEnvironment() *Environment {
	tokens := NewTokenLedger()
	tokens.AddToken(BaseToken, "BASE")
	tokens.AddToken(DerivativeToken, "xBASE")
	tokens.AddToken(SecondaryToken, "SEC")
	tokens.AddToken(LockedSecondaryToken, "lSEC")

	return &Environment{
		Tokens:     tokens,
		Balances:   NewLockedBalances(),
		External:   NewExternalAllowlist(),
		Registry:   NewRegistry(),
		Bribes:     NewBribes(tokens, Upstream),
		Gauges:     NewGauges(tokens, BaseToken, GaugeVault),
		Governance: &Governance{},
		Locks:      NewLocks(),
	}
}

// AddWrapper registers the LP token of a pool wrapper and its fee tokens.
func (e *Environment) AddWrapper(wrapper common.Address, symbol string, feeTokens ...common.Address) {
	e.Tokens.AddToken(wrapper, symbol)
	e.Registry.SetFeeTokens(wrapper, feeTokens...)
}

// AddBribe registers a bribe token for wrapper and funds the upstream source with amount.
func (e *Environment) AddBribe(wrapper, token common.Address, symbol string, amount math.Int) error {
	e.Tokens.AddToken(token, symbol)
	e.Registry.AddBribeToken(wrapper, token)
	if amount.IsNil() || amount.IsZero() {
		return nil
	}
	if err := e.Bribes.Fund(wrapper, token, amount); err != nil {
		return fmt.Errorf("failed to fund bribe %s: %w", symbol, err)
	}
	return nil
}

// Seed populates a small demo deployment: two wrappers with bribes and fees, three voters
// and pending gauge emissions. It returns the wrappers in registration order.
func (e *Environment) Seed() ([]common.Address, error) {
	wrapperA := common.HexToAddress("0x000000000000000000000000000000000000a001")
	wrapperB := common.HexToAddress("0x000000000000000000000000000000000000a002")
	usdc := common.HexToAddress("0x000000000000000000000000000000000000c0c0")
	weth := common.HexToAddress("0x000000000000000000000000000000000000e7e7")
	meme := common.HexToAddress("0x000000000000000000000000000000000000bad0")

	e.Tokens.AddToken(usdc, "USDC")
	e.Tokens.AddToken(weth, "WETH")
	e.External.List(usdc)
	e.External.List(weth)

	e.AddWrapper(wrapperA, "LP-A", usdc, weth)
	e.AddWrapper(wrapperB, "LP-B", usdc)

	for _, b := range []struct {
		wrapper common.Address
		token   common.Address
		symbol  string
		amount  int64
	}{
		{wrapperA, usdc, "USDC", 50_000},
		{wrapperA, weth, "WETH", 20},
		{wrapperA, meme, "MEME", 1_000_000},
		{wrapperB, usdc, "USDC", 12_000},
	} {
		if err := e.AddBribe(b.wrapper, b.token, b.symbol, math.NewInt(b.amount)); err != nil {
			return nil, err
		}
	}

	if err := e.Bribes.Fund(wrapperA, weth, math.NewInt(3)); err != nil {
		return nil, err
	}
	e.Bribes.SetLag(wrapperB, usdc, 7)

	voters := []common.Address{
		common.HexToAddress("0x0000000000000000000000000000000000000001"),
		common.HexToAddress("0x0000000000000000000000000000000000000002"),
		common.HexToAddress("0x0000000000000000000000000000000000000003"),
	}
	for i, v := range voters {
		e.Balances.SetCapacity(v, math.NewInt(int64(1_000*(i+1))))
		e.Balances.AddNFT(uint64(i+1), v, math.NewInt(int64(1_000*(i+1))), math.NewInt(int64(900*(i+1))))
	}
	e.Balances.SetTotalVoteWeight(math.NewInt(1_000_000))

	for _, w := range []common.Address{wrapperA, wrapperB} {
		if err := e.Gauges.Accrue(w, math.NewInt(100_000)); err != nil {
			return nil, err
		}
	}
	return []common.Address{wrapperA, wrapperB}, nil
}
