/*

This file contains the reward flow distributor. It owns the protocol's staking reward pools
(base stakers, partners, lockers and one pool per liquidity pool wrapper) and keeps every
token they are owed in its own custody account.

Any custody balance above what the pools are owed is "stored": tokens that arrived without
being eligible for distribution. Stored balances are released to base stakers once the token
is allowed.

Every operation performs its fallible external calls before touching the pools, so a failed
call leaves the pools unchanged. Two effects of a distribution are kept apart from that rule:
 - secondary emission minted for a distribution that then fails is held as a reserve and used
   by the next distribution instead of being minted again;
 - treasury and ecosystem shares become payouts owed by custody, settled by transfer once the
   pools are credited and retried by SettlePayouts while a transfer keeps failing.

*/

package rewards

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/chain"
	"github.com/elys-network/votesnap/internal/logger"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/elys-network/votesnap/internal/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
)

var distributorLogger = logger.GetForComponent("rewards_distributor")

// Allowlist is the eligibility check applied to bribe, fee and stored tokens.
type Allowlist interface {
	TokenIsAllowed(token common.Address) bool
}

// Config holds the dependencies and addresses of a Distributor.
type Config struct {
	Address   common.Address // custody account
	Admin     common.Address
	Tokens    chain.TokenRegistry
	Supply    chain.SupplySource
	Minter    chain.Minter
	Allowlist Allowlist
	Clock     clockwork.Clock
	Params    types.ProtocolParameters

	BaseToken            common.Address
	DerivativeToken      common.Address
	SecondaryToken       common.Address
	LockedSecondaryToken common.Address

	Treasury  common.Address
	Ecosystem common.Address

	BaseStakersPool common.Address
	PartnerPool     common.Address
	LockersPool     common.Address
}

// Distributor is the reward flow distributor. Not safe for concurrent use.
type Distributor struct {
	cfg    Config
	params types.ProtocolParameters

	baseStakers *StakingPool
	partners    *StakingPool
	lockers     *StakingPool
	lpPools     map[common.Address]*StakingPool
	lpOrder     []common.Address

	partnerSet map[common.Address]bool
	owed       map[common.Address]sdkmath.Int

	reserved    map[common.Address]sdkmath.Int // minted emission not yet distributed
	payouts     map[payoutKey]sdkmath.Int
	payoutOrder []payoutKey
}

type payoutKey struct {
	token, to common.Address
}

// NewDistributor validates the configuration and creates the protocol pools.
func NewDistributor(cfg Config) (*Distributor, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("rewards distributor configuration validation failed: %w", err)
	}
	return &Distributor{
		cfg:         cfg,
		params:      cfg.Params,
		baseStakers: newStakingPool(cfg.BaseStakersPool, cfg.DerivativeToken),
		partners:    newStakingPool(cfg.PartnerPool, cfg.DerivativeToken),
		lockers:     newStakingPool(cfg.LockersPool, cfg.SecondaryToken),
		lpPools:     make(map[common.Address]*StakingPool),
		partnerSet:  make(map[common.Address]bool),
		owed:        make(map[common.Address]sdkmath.Int),
		reserved:    make(map[common.Address]sdkmath.Int),
		payouts:     make(map[payoutKey]sdkmath.Int),
	}, nil
}

func validateConfig(cfg Config) error {
	if cfg.Tokens == nil || cfg.Supply == nil || cfg.Minter == nil {
		return fmt.Errorf("token registry, supply source and minter cannot be nil")
	}
	if cfg.Allowlist == nil {
		return fmt.Errorf("allowlist cannot be nil")
	}
	if cfg.Clock == nil {
		return fmt.Errorf("clock cannot be nil")
	}
	zero := common.Address{}
	for name, a := range map[string]common.Address{
		"custody": cfg.Address, "base token": cfg.BaseToken, "derivative token": cfg.DerivativeToken,
		"secondary token": cfg.SecondaryToken, "treasury": cfg.Treasury, "ecosystem": cfg.Ecosystem,
		"base stakers pool": cfg.BaseStakersPool, "partner pool": cfg.PartnerPool, "lockers pool": cfg.LockersPool,
	} {
		if a == zero {
			return fmt.Errorf("%s address cannot be zero", name)
		}
	}
	if cfg.Params.PartnersReceiveLockedSecondary && cfg.LockedSecondaryToken == zero {
		return fmt.Errorf("locked secondary token is required when partners receive it")
	}
	return cfg.Params.Validate()
}

// --- Pools and roles ---

// RegisterLPPool creates the reward pool of a liquidity pool wrapper. Registering twice is a no-op.
func (d *Distributor) RegisterLPPool(wrapper common.Address) {
	if _, ok := d.lpPools[wrapper]; ok {
		return
	}
	d.lpPools[wrapper] = newStakingPool(wrapper, wrapper)
	d.lpOrder = append(d.lpOrder, wrapper)
}

// Pool looks up any reward pool by address.
func (d *Distributor) Pool(address common.Address) (*StakingPool, bool) {
	switch address {
	case d.cfg.BaseStakersPool:
		return d.baseStakers, true
	case d.cfg.PartnerPool:
		return d.partners, true
	case d.cfg.LockersPool:
		return d.lockers, true
	}
	p, ok := d.lpPools[address]
	return p, ok
}

// Pools lists every reward pool: base stakers, partners, lockers, then LP pools in registration order.
func (d *Distributor) Pools() []*StakingPool {
	out := []*StakingPool{d.baseStakers, d.partners, d.lockers}
	for _, w := range d.lpOrder {
		out = append(out, d.lpPools[w])
	}
	return out
}

func (d *Distributor) BaseStakersPool() *StakingPool { return d.baseStakers }
func (d *Distributor) PartnerPool() *StakingPool     { return d.partners }
func (d *Distributor) LockersPool() *StakingPool     { return d.lockers }
func (d *Distributor) Treasury() common.Address      { return d.cfg.Treasury }
func (d *Distributor) Address() common.Address       { return d.cfg.Address }
func (d *Distributor) Config() Config                { return d.cfg }

func (d *Distributor) IsPartner(account common.Address) bool { return d.partnerSet[account] }

// SetPartner whitelists or removes a partner. Admin only.
func (d *Distributor) SetPartner(caller, account common.Address, partner bool) error {
	if caller != d.cfg.Admin {
		return fmt.Errorf("%w: only admin may set partners", types.ErrNotAuthorized)
	}
	if partner {
		d.partnerSet[account] = true
	} else {
		delete(d.partnerSet, account)
	}
	distributorLogger.Info().Str("account", account.Hex()).Bool("partner", partner).Msg("Partner status changed")
	return nil
}

func (d *Distributor) Parameters() types.ProtocolParameters { return d.params }

// SetParameters replaces the protocol parameters. Admin only.
func (d *Distributor) SetParameters(caller common.Address, params types.ProtocolParameters) error {
	if caller != d.cfg.Admin {
		return fmt.Errorf("%w: only admin may change parameters", types.ErrNotAuthorized)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if params.PartnersReceiveLockedSecondary && d.cfg.LockedSecondaryToken == (common.Address{}) {
		return fmt.Errorf("%w: locked secondary token not configured", types.ErrInvalidParameters)
	}
	d.params = params
	return nil
}

// PartnerRate is the current partner share at 18 decimals: the partner pool's stake measured
// against the whole base token supply.
func (d *Distributor) PartnerRate() sdkmath.Int {
	ratio := StakedRatio(d.partners.TotalStaked(), d.cfg.Supply.TotalSupply(d.cfg.BaseToken))
	return PartnerRate(ratio, d.params.PartnerTier)
}

// PartnerShareBps is the partner share, in basis points, for a staked ratio at 18 decimals.
func (d *Distributor) PartnerShareBps(ratio sdkmath.Int) uint64 {
	return RateToBps(PartnerRate(ratio, d.params.PartnerTier))
}

// --- Custody ---

// Owed is the amount of token the pools are owed.
func (d *Distributor) Owed(token common.Address) sdkmath.Int { return get(d.owed, token) }

func (d *Distributor) token(address common.Address) (chain.Token, error) {
	t, err := d.cfg.Tokens.Token(address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token %s: %w", address.Hex(), err)
	}
	return t, nil
}

// StoredAmount is the custody balance of token not owed to any pool.
func (d *Distributor) StoredAmount(token common.Address) (sdkmath.Int, error) {
	t, err := d.token(token)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	stored := t.BalanceOf(d.cfg.Address).Sub(d.Owed(token))
	if stored.IsNegative() {
		return sdkmath.ZeroInt(), nil
	}
	return stored, nil
}

func (d *Distributor) requireStored(token common.Address, amount sdkmath.Int) error {
	stored, err := d.StoredAmount(token)
	if err != nil {
		return err
	}
	if stored.LT(amount) {
		return fmt.Errorf("%w: %s custody holds %s unassigned, need %s", types.ErrUpstreamTransferShortfall, token.Hex(), stored, amount)
	}
	return nil
}

func (d *Distributor) credit(pool *StakingPool, token common.Address, amount sdkmath.Int) {
	if !amount.IsPositive() {
		return
	}
	pool.notify(token, amount)
	d.owed[token] = d.Owed(token).Add(amount)
}

// reserveEmission makes sure custody holds amount of freshly minted token for the current
// distribution, minting only what an earlier failed distribution did not leave behind.
func (d *Distributor) reserveEmission(token common.Address, amount sdkmath.Int) error {
	have := get(d.reserved, token)
	need := amount.Sub(have)
	if !need.IsPositive() {
		return nil
	}
	if err := d.cfg.Minter.Mint(token, d.cfg.Address, need); err != nil {
		return fmt.Errorf("failed to mint %s of %s: %w", need, token.Hex(), err)
	}
	d.reserved[token] = have.Add(need)
	d.owed[token] = d.Owed(token).Add(need)
	return nil
}

// consumeEmission releases amount of the reserve so the pools can be credited with it.
func (d *Distributor) consumeEmission(token common.Address, amount sdkmath.Int) {
	if !amount.IsPositive() {
		return
	}
	d.reserved[token] = get(d.reserved, token).Sub(amount)
	d.owed[token] = d.Owed(token).Sub(amount)
}

// Reserved is the emission of token minted into custody but not distributed yet.
func (d *Distributor) Reserved(token common.Address) sdkmath.Int { return get(d.reserved, token) }

func (d *Distributor) owePayout(token, to common.Address, amount sdkmath.Int) {
	if !amount.IsPositive() {
		return
	}
	key := payoutKey{token: token, to: to}
	if _, ok := d.payouts[key]; !ok {
		d.payoutOrder = append(d.payoutOrder, key)
	}
	d.payouts[key] = d.PendingPayout(token, to).Add(amount)
	d.owed[token] = d.Owed(token).Add(amount)
}

// PendingPayout is the amount of token custody still owes to an account such as the treasury.
func (d *Distributor) PendingPayout(token, to common.Address) sdkmath.Int {
	if v, ok := d.payouts[payoutKey{token: token, to: to}]; ok {
		return v
	}
	return sdkmath.ZeroInt()
}

// SettlePayouts transfers every pending treasury and ecosystem payout. A failed transfer stays
// pending; the first failure is returned after every payout has been tried.
func (d *Distributor) SettlePayouts() error {
	var firstErr error
	remaining := d.payoutOrder[:0]
	for _, key := range d.payoutOrder {
		amount := d.payouts[key]
		if err := d.transferOut(key.token, key.to, amount); err != nil {
			distributorLogger.Warn().Err(err).Str("token", key.token.Hex()).Str("to", key.to.Hex()).
				Str("amount", amount.String()).Msg("Payout failed, kept pending")
			if firstErr == nil {
				firstErr = err
			}
			remaining = append(remaining, key)
			continue
		}
		delete(d.payouts, key)
		d.owed[key.token] = d.Owed(key.token).Sub(amount)
	}
	d.payoutOrder = remaining
	return firstErr
}

func (d *Distributor) transferOut(token, to common.Address, amount sdkmath.Int) error {
	if !amount.IsPositive() {
		return nil
	}
	t, err := d.token(token)
	if err != nil {
		return err
	}
	if err := t.Transfer(d.cfg.Address, to, amount); err != nil {
		return fmt.Errorf("failed to transfer %s of %s to %s: %w", amount, token.Hex(), to.Hex(), err)
	}
	return nil
}

// --- Inflows ---

// NotifyRewardAmount splits an inflow of base token for a liquidity pool wrapper, already in
// custody, and emits the matching secondary token split. It returns the base and secondary
// distributions.
func (d *Distributor) NotifyRewardAmount(wrapper common.Address, amount sdkmath.Int) ([]types.Distribution, error) {
	lp, ok := d.lpPools[wrapper]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownPool, wrapper.Hex())
	}
	if amount.IsNil() || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: reward amount must be positive", types.ErrInvalidAmount)
	}
	if err := d.requireStored(d.cfg.BaseToken, amount); err != nil {
		return nil, err
	}

	// --- 1. Compute both splits ---
	rate := d.PartnerRate()
	baseShares := Split(amount, rate, d.params.BaseSplit)
	secondaryAmount := utils.BpsOf(amount, d.params.SecondaryEmissionBps)
	secondaryShares := Split(secondaryAmount, rate, d.params.SecondarySplit)
	partnerToken := d.cfg.SecondaryToken
	if d.params.PartnersReceiveLockedSecondary {
		partnerToken = d.cfg.LockedSecondaryToken
	}

	// --- 2. External effects: mint the secondary emission ---
	liquidEmission := secondaryAmount
	if partnerToken != d.cfg.SecondaryToken {
		liquidEmission = secondaryAmount.Sub(secondaryShares.Partner)
		if err := d.reserveEmission(partnerToken, secondaryShares.Partner); err != nil {
			return nil, err
		}
	}
	if err := d.reserveEmission(d.cfg.SecondaryToken, liquidEmission); err != nil {
		return nil, err
	}
	if partnerToken != d.cfg.SecondaryToken {
		d.consumeEmission(partnerToken, secondaryShares.Partner)
	}
	d.consumeEmission(d.cfg.SecondaryToken, liquidEmission)

	// --- 3. Credit the pools and the payouts ---
	d.credit(d.partners, d.cfg.BaseToken, baseShares.Partner)
	d.credit(d.baseStakers, d.cfg.BaseToken, baseShares.BaseStakers)
	d.credit(d.lockers, d.cfg.BaseToken, baseShares.Lockers)
	d.credit(lp, d.cfg.BaseToken, baseShares.LPStakers)
	d.owePayout(d.cfg.BaseToken, d.cfg.Treasury, baseShares.Treasury)
	d.owePayout(d.cfg.BaseToken, d.cfg.Ecosystem, baseShares.Ecosystem)

	d.credit(d.partners, partnerToken, secondaryShares.Partner)
	d.credit(d.baseStakers, d.cfg.SecondaryToken, secondaryShares.BaseStakers)
	d.credit(d.lockers, d.cfg.SecondaryToken, secondaryShares.Lockers)
	d.credit(lp, d.cfg.SecondaryToken, secondaryShares.LPStakers)
	d.owePayout(d.cfg.SecondaryToken, d.cfg.Treasury, secondaryShares.Treasury)
	d.owePayout(d.cfg.SecondaryToken, d.cfg.Ecosystem, secondaryShares.Ecosystem)

	// --- 4. Settle payouts; failures stay pending ---
	if err := d.SettlePayouts(); err != nil {
		distributorLogger.Warn().Err(err).Str("wrapper", wrapper.Hex()).Msg("Distribution committed with pending payouts")
	}

	now := d.cfg.Clock.Now()
	partnerBps := RateToBps(rate)
	distributions := []types.Distribution{
		distribution(wrapper, d.cfg.BaseToken, d.cfg.BaseToken, amount, partnerBps, baseShares, now),
		distribution(wrapper, d.cfg.SecondaryToken, partnerToken, secondaryAmount, partnerBps, secondaryShares, now),
	}

	distributorLogger.Info().
		Str("wrapper", wrapper.Hex()).
		Str("amount", amount.String()).
		Str("secondaryAmount", secondaryAmount.String()).
		Uint64("partnerBps", partnerBps).
		Msg("Reward amount distributed")
	return distributions, nil
}

func distribution(wrapper, token, partnerToken common.Address, amount sdkmath.Int, partnerBps uint64, s Shares, now time.Time) types.Distribution {
	return types.Distribution{
		Wrapper:      wrapper,
		Token:        token,
		PartnerToken: partnerToken,
		Amount:       amount,
		PartnerBps:   partnerBps,
		Partner:      s.Partner,
		BaseStakers:  s.BaseStakers,
		Lockers:      s.Lockers,
		LPStakers:    s.LPStakers,
		Treasury:     s.Treasury,
		Ecosystem:    s.Ecosystem,
		Timestamp:    now,
	}
}

// NotifyBribe credits an allowed bribe token, already in custody, to the wrapper's LP stakers.
func (d *Distributor) NotifyBribe(wrapper, token common.Address, amount sdkmath.Int) error {
	lp, ok := d.lpPools[wrapper]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownPool, wrapper.Hex())
	}
	if !d.cfg.Allowlist.TokenIsAllowed(token) {
		return fmt.Errorf("%w: bribe token %s", types.ErrTokenNotEligible, token.Hex())
	}
	if err := d.requireStored(token, amount); err != nil {
		return err
	}
	d.credit(lp, token, amount)
	return nil
}

// NotifyFee credits an allowed fee token, already in custody, to base stakers.
func (d *Distributor) NotifyFee(token common.Address, amount sdkmath.Int) error {
	if !d.cfg.Allowlist.TokenIsAllowed(token) {
		return fmt.Errorf("%w: fee token %s", types.ErrTokenNotEligible, token.Hex())
	}
	if err := d.requireStored(token, amount); err != nil {
		return err
	}
	d.credit(d.baseStakers, token, amount)
	return nil
}

// NotifyStoredRewardAmount releases the stored balance of an allowed token to base stakers.
// Anyone may call it.
func (d *Distributor) NotifyStoredRewardAmount(token common.Address) (sdkmath.Int, error) {
	if !d.cfg.Allowlist.TokenIsAllowed(token) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: stored token %s", types.ErrTokenNotEligible, token.Hex())
	}
	stored, err := d.StoredAmount(token)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	d.credit(d.baseStakers, token, stored)
	distributorLogger.Info().Str("token", token.Hex()).Str("amount", stored.String()).Msg("Stored reward amount released")
	return stored, nil
}

// --- Staking ---

// Stake moves amount of the pool's staking token from account into custody.
func (d *Distributor) Stake(account, poolAddress common.Address, amount sdkmath.Int) error {
	pool, ok := d.Pool(poolAddress)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownPool, poolAddress.Hex())
	}
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: stake amount must be positive", types.ErrInvalidAmount)
	}
	if pool == d.partners && !d.IsPartner(account) {
		return fmt.Errorf("%w: %s is not a partner", types.ErrNotAuthorized, account.Hex())
	}

	t, err := d.token(pool.StakingToken())
	if err != nil {
		return err
	}
	before := t.BalanceOf(d.cfg.Address)
	if err := t.Transfer(account, d.cfg.Address, amount); err != nil {
		return fmt.Errorf("failed to transfer stake: %w", err)
	}
	if received := t.BalanceOf(d.cfg.Address).Sub(before); received.LT(amount) {
		return fmt.Errorf("%w: staked %s, received %s", types.ErrUpstreamTransferShortfall, amount, received)
	}

	pool.stake(account, amount)
	d.owed[pool.StakingToken()] = d.Owed(pool.StakingToken()).Add(amount)
	return nil
}

// Unstake returns amount of the pool's staking token to account.
func (d *Distributor) Unstake(account, poolAddress common.Address, amount sdkmath.Int) error {
	pool, ok := d.Pool(poolAddress)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownPool, poolAddress.Hex())
	}
	if amount.IsNil() || !amount.IsPositive() || pool.StakeOf(account).LT(amount) {
		return fmt.Errorf("%w: cannot unstake %s", types.ErrInvalidAmount, amount)
	}
	if err := d.transferOut(pool.StakingToken(), account, amount); err != nil {
		return err
	}
	if err := pool.unstake(account, amount); err != nil {
		return err
	}
	d.owed[pool.StakingToken()] = d.Owed(pool.StakingToken()).Sub(amount)
	return nil
}

// MigrateToPartner moves a partner's base stakers position into the partner pool.
func (d *Distributor) MigrateToPartner(account common.Address) error {
	if !d.IsPartner(account) {
		return fmt.Errorf("%w: %s is not a partner", types.ErrNotAuthorized, account.Hex())
	}
	amount := d.baseStakers.StakeOf(account)
	if !amount.IsPositive() {
		return nil
	}
	if err := d.baseStakers.unstake(account, amount); err != nil {
		return err
	}
	d.partners.stake(account, amount)
	return nil
}

// ClaimRewards pays out everything account earned in a pool.
func (d *Distributor) ClaimRewards(account, poolAddress common.Address) ([]types.TokenAmount, error) {
	pool, ok := d.Pool(poolAddress)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownPool, poolAddress.Hex())
	}
	for _, e := range pool.Earned(account) {
		t, err := d.token(e.Token)
		if err != nil {
			return nil, err
		}
		if t.BalanceOf(d.cfg.Address).LT(e.Amount) {
			return nil, fmt.Errorf("%w: custody cannot cover %s of %s", types.ErrUpstreamTransferShortfall, e.Amount, e.Token.Hex())
		}
	}

	claimed := pool.claim(account)
	for _, c := range claimed {
		if err := d.transferOut(c.Token, account, c.Amount); err != nil {
			return nil, err
		}
		d.owed[c.Token] = d.Owed(c.Token).Sub(c.Amount)
	}
	return claimed, nil
}
