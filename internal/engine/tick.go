/*

This file contains the tick loop. One tick walks every registered pool wrapper: it syncs
one page of bribe tokens, notifies one page of active tokens, catches up and claims fees and
pulls the gauge emissions into the distributor. Sync pages advance
through the registry list from tick to tick. Treasury and ecosystem payouts left pending by a
failed transfer are retried. It then submits the prepared vote once per epoch while the
submission window is open, and records what it did.

A failed step is logged, counted and recorded in the snapshot; the tick moves on to the
next step. Each step is all-or-nothing on its own.

*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/votesnap/internal/metrics"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RunLoop runs a tick immediately and then every interval until ctx is cancelled.
func (e *Engine) RunLoop(ctx context.Context, interval time.Duration) {
	e.logger.Info().
		Dur("interval", interval).
		Msg("Starting engine loop")

	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	e.RunTick(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Engine loop stopped due to context cancellation")
			return
		case <-ticker.Chan():
			e.RunTick(ctx)
		}
	}
}

// RunTick executes one full tick and returns its snapshot.
func (e *Engine) RunTick(ctx context.Context) types.TickSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.clock.Now()
	tickID := uuid.New().String()
	tickLogger := e.logger.With().Str("tick_id", tickID).Logger()

	snapshot := types.TickSnapshot{
		TickNumber:    e.nextTickNumber(tickLogger),
		TickID:        tickID,
		Timestamp:     start.UTC(),
		Syncs:         []types.SyncResult{},
		Claims:        []types.ClaimResult{},
		Distributions: []types.Distribution{},
	}
	tickLogger.Info().Int("tick", snapshot.TickNumber).Msg("--- Starting tick ---")

	fail := func(step string, wrapper common.Address, err error) {
		metrics.RecordTickError(step)
		snapshot.Errors = append(snapshot.Errors, fmt.Sprintf("%s %s: %v", step, wrapper.Hex(), err))
		ev := tickLogger.Error()
		if errors.Is(err, types.ErrTokenNotEligible) {
			ev = tickLogger.Warn()
		}
		ev.Err(err).Str("step", step).Str("wrapper", wrapper.Hex()).Msg("Tick step failed")
	}

	for _, wrapper := range e.bribes.Wrappers() {
		if ctx.Err() != nil {
			tickLogger.Warn().Err(ctx.Err()).Msg("Tick interrupted, remaining wrappers skipped")
			snapshot.Errors = append(snapshot.Errors, fmt.Sprintf("interrupted: %v", ctx.Err()))
			break
		}
		e.tickWrapper(wrapper, &snapshot, tickLogger, fail)
	}

	if err := e.distributor.SettlePayouts(); err != nil {
		fail("payouts", common.Address{}, err)
	}

	if sub, ok, err := e.submitIfDue(); err != nil {
		fail("submit", common.Address{}, err)
	} else if ok {
		snapshot.Submission = &sub
	}

	snapshot.TopPools = e.ledger.TopVotes()
	e.persistTick(snapshot, tickLogger, fail)

	e.tickCount++
	e.latestTick = &snapshot
	metrics.RecordTick(snapshot, e.clock.Since(start))

	tickLogger.Info().
		Int("tick", snapshot.TickNumber).
		Int("syncs", len(snapshot.Syncs)).
		Int("claims", len(snapshot.Claims)).
		Int("distributions", len(snapshot.Distributions)).
		Bool("submitted", snapshot.Submission != nil).
		Int("errors", len(snapshot.Errors)).
		Dur("duration", e.clock.Since(start)).
		Msg("--- Tick completed ---")
	return snapshot
}

func (e *Engine) tickWrapper(wrapper common.Address, snapshot *types.TickSnapshot, log zerolog.Logger, fail func(string, common.Address, error)) {
	synced, err := e.syncPage(wrapper)
	if err != nil {
		fail("sync", wrapper, err)
	} else {
		snapshot.Syncs = append(snapshot.Syncs, synced)
	}
	if active, err := e.bribes.ActiveTokens(wrapper); err == nil {
		metrics.SetActiveTokens(wrapper.Hex(), len(active))
	}

	claims, err := e.bribes.NotifyTokens(wrapper)
	if err != nil {
		fail("notify", wrapper, err)
	}
	for _, c := range claims {
		metrics.RecordClaim("bribe", c)
	}
	snapshot.Claims = append(snapshot.Claims, claims...)

	fees, err := e.bribes.ClaimFees(wrapper)
	if err != nil {
		fail("fees", wrapper, err)
	}
	for _, c := range fees {
		metrics.RecordClaim("fee", c)
	}
	snapshot.Claims = append(snapshot.Claims, fees...)

	emitted, err := e.gauges.ClaimEmissions(wrapper, e.distributor.Address())
	if err != nil {
		fail("emissions", wrapper, err)
		return
	}
	if emitted.IsNil() || !emitted.IsPositive() {
		return
	}
	distributions, err := e.distributor.NotifyRewardAmount(wrapper, emitted)
	if err != nil {
		// The claimed emissions stay in custody as a stored balance of the base token.
		fail("emissions", wrapper, err)
		return
	}
	for _, d := range distributions {
		metrics.RecordDistribution(d)
	}
	snapshot.Distributions = append(snapshot.Distributions, distributions...)

	log.Debug().
		Str("wrapper", wrapper.Hex()).
		Str("emitted", emitted.String()).
		Int("added", len(synced.Added)).
		Int("removed", len(synced.Removed)).
		Msg("Wrapper processed")
}

// syncPage syncs the next page of the wrapper's bribe token list and wraps to the start
// once the end of the list has been reached.
func (e *Engine) syncPage(wrapper common.Address) (types.SyncResult, error) {
	start := e.syncCursors[wrapper]
	total := e.registry.BribeTokensLength(wrapper)
	if start >= total {
		start = 0
	}
	page := e.allowlist.SyncPageSize()
	result, err := e.bribes.SyncTokens(wrapper, start, page)
	if err != nil {
		return result, err
	}
	next := start + page
	if next >= total {
		next = 0
	}
	e.syncCursors[wrapper] = next
	return result, nil
}

// submitIfDue submits once per epoch, on the first tick inside the submission window.
func (e *Engine) submitIfDue() (types.Submission, bool, error) {
	if !e.ledger.InSubmissionWindow() {
		return types.Submission{}, false, nil
	}
	next := e.ledger.NextEpoch().Unix()
	if last, ok := e.ledger.LastSubmission(); ok && last.Epoch == next {
		return types.Submission{}, false, nil
	}
	sub, err := e.ledger.SubmitVote()
	metrics.RecordSubmission(err)
	if err != nil {
		return types.Submission{}, false, err
	}
	return sub, true, nil
}

func (e *Engine) nextTickNumber(log zerolog.Logger) int {
	if e.store == nil {
		return e.tickCount + 1
	}
	n, err := e.store.NextTickNumber()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get next tick number from store, using in-memory counter")
		return e.tickCount + 1
	}
	return n
}

func (e *Engine) persistTick(snapshot types.TickSnapshot, log zerolog.Logger, fail func(string, common.Address, error)) {
	if e.store == nil {
		return
	}
	id, err := e.store.SaveTick(snapshot)
	if err != nil {
		fail("store", common.Address{}, err)
		return
	}
	for _, d := range snapshot.Distributions {
		if err := e.store.SaveDistribution(snapshot.TickID, d); err != nil {
			fail("store", d.Wrapper, err)
		}
	}
	if snapshot.Submission != nil {
		if err := e.store.SaveSubmission(snapshot.TickID, *snapshot.Submission); err != nil {
			fail("store", common.Address{}, err)
		}
	}
	log.Debug().Int64("id", id).Msg("Tick persisted")
}
