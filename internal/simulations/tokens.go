/*

This file contains an in-memory fungible token ledger used by tests and by the
simulation mode of the binary. Tokens can be configured to charge a fee on transfer
or to fail transfers, which is how non-conforming upstream tokens are modelled.

*/

package simulations

import (
	"errors"
	"fmt"

	"cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/chain"
	"github.com/elys-network/votesnap/internal/utils"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownToken        = errors.New("unknown token")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransferFailed      = errors.New("transfer failed")
)

// Token is an in-memory token.
type Token struct {
	address    common.Address
	Symbol     string
	balances   map[common.Address]math.Int
	allowances map[[2]common.Address]math.Int

	// TransferFeeBps is burned from every transfer, like a fee-on-transfer token.
	TransferFeeBps uint64
	// FailTransfers makes every transfer return ErrTransferFailed.
	FailTransfers bool
}

var _ chain.Token = (*Token)(nil)

func (t *Token) Address() common.Address { return t.address }

func (t *Token) BalanceOf(account common.Address) math.Int {
	if b, ok := t.balances[account]; ok {
		return b
	}
	return math.ZeroInt()
}

func (t *Token) Mint(to common.Address, amount math.Int) {
	t.balances[to] = t.BalanceOf(to).Add(amount)
}

func (t *Token) Transfer(from, to common.Address, amount math.Int) error {
	if t.FailTransfers {
		return fmt.Errorf("%s: %w", t.Symbol, ErrTransferFailed)
	}
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%s: negative transfer amount", t.Symbol)
	}
	balance := t.BalanceOf(from)
	if balance.LT(amount) {
		return fmt.Errorf("%s: %w: have %s, need %s", t.Symbol, ErrInsufficientBalance, balance, amount)
	}
	fee := utils.BpsOf(amount, t.TransferFeeBps)
	t.balances[from] = balance.Sub(amount)
	t.balances[to] = t.BalanceOf(to).Add(amount.Sub(fee))
	return nil
}

func (t *Token) Approve(owner, spender common.Address, amount math.Int) error {
	t.allowances[[2]common.Address{owner, spender}] = amount
	return nil
}

// TotalSupply sums every balance; transfer fees are burned and leave the supply.
func (t *Token) TotalSupply() math.Int {
	total := math.ZeroInt()
	for _, b := range t.balances {
		total = total.Add(b)
	}
	return total
}

// Allowance returns the approved amount.
func (t *Token) Allowance(owner, spender common.Address) math.Int {
	if a, ok := t.allowances[[2]common.Address{owner, spender}]; ok {
		return a
	}
	return math.ZeroInt()
}

// TokenLedger is a registry of in-memory tokens. It implements chain.TokenRegistry and chain.Minter.
type TokenLedger struct {
	tokens map[common.Address]*Token
}

var (
	_ chain.TokenRegistry = (*TokenLedger)(nil)
	_ chain.Minter        = (*TokenLedger)(nil)
	_ chain.SupplySource  = (*TokenLedger)(nil)
)

func NewTokenLedger() *TokenLedger {
	return &TokenLedger{tokens: make(map[common.Address]*Token)}
}

// AddToken registers a token, returning the existing one if the address is taken.
func (l *TokenLedger) AddToken(address common.Address, symbol string) *Token {
	if t, ok := l.tokens[address]; ok {
		return t
	}
	t := &Token{
		address:    address,
		Symbol:     symbol,
		balances:   make(map[common.Address]math.Int),
		allowances: make(map[[2]common.Address]math.Int),
	}
	l.tokens[address] = t
	return t
}

// Get returns the concrete token for test setup.
func (l *TokenLedger) Get(address common.Address) *Token {
	return l.tokens[address]
}

func (l *TokenLedger) Token(address common.Address) (chain.Token, error) {
	t, ok := l.tokens[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, address.Hex())
	}
	return t, nil
}

func (l *TokenLedger) Mint(token, to common.Address, amount math.Int) error {
	t, ok := l.tokens[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	t.Mint(to, amount)
	return nil
}

func (l *TokenLedger) TotalSupply(token common.Address) math.Int {
	t, ok := l.tokens[token]
	if !ok {
		return math.ZeroInt()
	}
	return t.TotalSupply()
}
