/*

This file contains bribe notification and fee claiming.

Claims are measured as the distributor's balance delta, so a token that moves less than the
upstream source reported is caught as a shortfall. Each token commits on its own: it is
claimed, paid to its stakers, and only then does the notify cursor move past it. When a page
fails midway the tokens before the failure are fully paid and the cursor stops at the failed
token, so the retry starts there.

*/

package bribes

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/logger"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

var claimLogger = logger.GetForComponent("bribe_claims")

// claimInto pulls the claimable amount of token for wrapper into the distributor's custody.
func (m *Manager) claimInto(wrapper, token common.Address) (sdkmath.Int, error) {
	claimable := m.cfg.Upstream.Claimable(wrapper, token)
	if claimable.IsNil() || !claimable.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}

	t, err := m.cfg.Tokens.Token(token)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to resolve token %s: %w", token.Hex(), err)
	}
	custody := m.cfg.Distributor.Address()
	before := t.BalanceOf(custody)
	if err := m.cfg.Upstream.Claim(wrapper, token, custody); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to claim %s for wrapper %s: %w", token.Hex(), wrapper.Hex(), err)
	}
	received := t.BalanceOf(custody).Sub(before)
	if received.LT(claimable) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: claimed %s of %s, received %s",
			types.ErrUpstreamTransferShortfall, claimable, token.Hex(), received)
	}
	return claimable, nil
}

// NotifyTokens claims one page of the wrapper's active tokens, starting at the notify cursor,
// and pays them to the wrapper's liquidity stakers. The cursor wraps to the first slot after
// the last page. A token moved below the cursor by a removal is picked up on the next round.
func (m *Manager) NotifyTokens(wrapper common.Address) ([]types.ClaimResult, error) {
	s, err := m.set(wrapper)
	if err != nil {
		return nil, err
	}
	if s.Len() == 0 {
		m.cursors[wrapper] = 0
		return nil, nil
	}

	start := m.cursors[wrapper]
	if start >= s.Len() {
		start = 0
	}
	end := start + m.cfg.Allowlist.NotifyPageSize()
	if end > s.Len() {
		end = s.Len()
	}

	page := make([]common.Address, 0, end-start)
	for i := start; i < end; i++ {
		token := s.At(i)
		if !m.cfg.Allowlist.TokenIsAllowed(token) {
			return nil, fmt.Errorf("%w: active token %s of wrapper %s", types.ErrTokenNotEligible, token.Hex(), wrapper.Hex())
		}
		page = append(page, token)
	}

	results := make([]types.ClaimResult, 0, len(page))
	for i, token := range page {
		amount, err := m.claimInto(wrapper, token)
		if err == nil && amount.IsPositive() {
			if err = m.cfg.Distributor.NotifyBribe(wrapper, token, amount); err != nil {
				err = fmt.Errorf("failed to notify bribe %s: %w", token.Hex(), err)
			}
		}
		if err != nil {
			m.cursors[wrapper] = start + i
			return results, err
		}
		results = append(results, types.ClaimResult{Wrapper: wrapper, Token: token, Amount: amount, CaughtUp: true})
	}

	if end >= s.Len() {
		end = 0
	}
	m.cursors[wrapper] = end

	claimLogger.Debug().Str("wrapper", wrapper.Hex()).Int("from", start).Int("tokens", len(page)).Int("nextCursor", end).
		Msg("Bribe tokens notified")
	return results, nil
}

// BatchCheckpointOrClaim advances at most maxRuns upstream checkpoints of (wrapper, token).
// Once the remaining lag fits in maxRuns it is processed and the bribe is claimed: allowed
// tokens go to the wrapper's liquidity stakers, other tokens stay stored in custody.
func (m *Manager) BatchCheckpointOrClaim(wrapper, token common.Address, maxRuns int) (types.ClaimResult, error) {
	return m.checkpointOrClaim(wrapper, token, maxRuns, func(amount sdkmath.Int) error {
		return m.cfg.Distributor.NotifyBribe(wrapper, token, amount)
	})
}

// ClaimFees runs the catch-up-or-claim for every fee token of the wrapper with the configured
// checkpoint batch size. Allowed fees go to base stakers. Every fee token commits on its own; a
// failing token is reported after the remaining ones have been processed.
func (m *Manager) ClaimFees(wrapper common.Address) ([]types.ClaimResult, error) {
	if _, err := m.set(wrapper); err != nil {
		return nil, err
	}
	feeTokens := m.cfg.Registry.FeeTokens(wrapper)
	results := make([]types.ClaimResult, 0, len(feeTokens))
	var firstErr error
	for _, token := range feeTokens {
		r, err := m.checkpointOrClaim(wrapper, token, m.cfg.CheckpointBatchSize, func(amount sdkmath.Int) error {
			return m.cfg.Distributor.NotifyFee(token, amount)
		})
		if err != nil {
			claimLogger.Warn().Err(err).Str("wrapper", wrapper.Hex()).Str("token", token.Hex()).Msg("Fee claim failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, r)
	}
	return results, firstErr
}

func (m *Manager) checkpointOrClaim(wrapper, token common.Address, maxRuns int, pay func(sdkmath.Int) error) (types.ClaimResult, error) {
	result := types.ClaimResult{Wrapper: wrapper, Token: token, Amount: sdkmath.ZeroInt()}
	if maxRuns <= 0 {
		return result, fmt.Errorf("%w: checkpoint batch size must be positive", types.ErrInvalidParameters)
	}

	lag := m.cfg.Upstream.CheckpointLag(wrapper, token)
	if lag > maxRuns {
		if err := m.cfg.Upstream.Checkpoint(wrapper, token, maxRuns); err != nil {
			return result, fmt.Errorf("failed to checkpoint %s for wrapper %s: %w", token.Hex(), wrapper.Hex(), err)
		}
		result.Checkpoints = maxRuns
		claimLogger.Info().Str("wrapper", wrapper.Hex()).Str("token", token.Hex()).Int("remainingLag", lag-maxRuns).
			Msg("Upstream checkpoints advanced, claim deferred")
		return result, nil
	}
	if lag > 0 {
		if err := m.cfg.Upstream.Checkpoint(wrapper, token, lag); err != nil {
			return result, fmt.Errorf("failed to checkpoint %s for wrapper %s: %w", token.Hex(), wrapper.Hex(), err)
		}
		result.Checkpoints = lag
	}
	result.CaughtUp = true

	amount, err := m.claimInto(wrapper, token)
	if err != nil {
		return result, err
	}
	result.Amount = amount
	if !amount.IsPositive() {
		return result, nil
	}

	if !m.cfg.Allowlist.TokenIsAllowed(token) {
		result.Stored = true
		claimLogger.Info().Str("wrapper", wrapper.Hex()).Str("token", token.Hex()).Str("amount", amount.String()).
			Msg("Claimed token not allowed, kept as stored balance")
		return result, nil
	}
	if err := pay(amount); err != nil {
		return result, err
	}
	return result, nil
}
