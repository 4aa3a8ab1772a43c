/*

This file exposes the ledger operations behind the engine lock. Every mutation takes the
write lock for its full duration, including the synchronous external calls it makes, and
every view takes the read lock.

*/

package engine

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/metrics"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// --- Voting ---

func (e *Engine) Vote(caller, account, pool common.Address, weight sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Vote(caller, account, pool, weight)
}

func (e *Engine) VoteBatch(caller, account common.Address, votes []types.PoolVote) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.VoteBatch(caller, account, votes)
}

func (e *Engine) ResetVotes(caller, account common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.ResetVotes(caller, account)
}

func (e *Engine) SetVoteDelegate(caller, delegate common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.SetVoteDelegate(caller, delegate)
}

func (e *Engine) ClearVoteDelegate(caller common.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.ClearVoteDelegate(caller)
}

func (e *Engine) SetMaxPoolsLength(caller common.Address, n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.SetMaxPoolsLength(caller, n)
}

// SubmitVote pushes the prepared vote to governance and persists it when a store is configured.
func (e *Engine) SubmitVote() (types.Submission, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sub, err := e.ledger.SubmitVote()
	metrics.RecordSubmission(err)
	if err != nil {
		return sub, err
	}
	if e.store != nil {
		if err := e.store.SaveSubmission("", sub); err != nil {
			e.logger.Error().Err(err).Int64("epoch", sub.Epoch).Msg("Failed to persist vote submission")
		}
	}
	return sub, nil
}

// --- Allowlist (governance only) ---

func (e *Engine) SetTokenAllowed(caller, token common.Address, allowed bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorizeAdmin(caller); err != nil {
		return err
	}
	return e.allowlist.SetTokenAllowed(token, allowed)
}

func (e *Engine) SetTokensAllowed(caller common.Address, tokens []common.Address, allowed bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorizeAdmin(caller); err != nil {
		return err
	}
	return e.allowlist.SetTokensAllowed(tokens, allowed)
}

func (e *Engine) SetTokensAllowedStates(caller common.Address, states []types.TokenAllowedState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorizeAdmin(caller); err != nil {
		return err
	}
	return e.allowlist.SetTokensAllowedStates(states)
}

func (e *Engine) SetExternalCheckDisabled(caller, token common.Address, disabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorizeAdmin(caller); err != nil {
		return err
	}
	return e.allowlist.SetExternalCheckDisabled(token, disabled)
}

func (e *Engine) SetExternalAllowlistEnabled(caller common.Address, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorizeAdmin(caller); err != nil {
		return err
	}
	e.allowlist.SetExternalAllowlistEnabled(enabled)
	return nil
}

func (e *Engine) SetSyncPageSize(caller common.Address, n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorizeAdmin(caller); err != nil {
		return err
	}
	return e.allowlist.SetSyncPageSize(n)
}

func (e *Engine) SetNotifyPageSize(caller common.Address, n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorizeAdmin(caller); err != nil {
		return err
	}
	return e.allowlist.SetNotifyPageSize(n)
}

// --- Pool wrappers, bribes and fees ---

// RegisterWrapper starts tracking a pool wrapper in both the sync engine and the distributor.
func (e *Engine) RegisterWrapper(caller, wrapper common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorizeAdmin(caller); err != nil {
		return err
	}
	e.bribes.RegisterWrapper(wrapper)
	e.distributor.RegisterLPPool(wrapper)
	return nil
}

func (e *Engine) SyncTokens(wrapper common.Address, start, count int) (types.SyncResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bribes.SyncTokens(wrapper, start, count)
}

func (e *Engine) UpdateTokensAllowedStates(wrapper common.Address, tokens []common.Address) (types.SyncResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bribes.UpdateTokensAllowedStates(wrapper, tokens)
}

func (e *Engine) NotifyTokens(wrapper common.Address) ([]types.ClaimResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bribes.NotifyTokens(wrapper)
}

func (e *Engine) BatchCheckpointOrClaim(wrapper, token common.Address, maxRuns int) (types.ClaimResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bribes.BatchCheckpointOrClaim(wrapper, token, maxRuns)
}

func (e *Engine) ClaimFees(wrapper common.Address) ([]types.ClaimResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bribes.ClaimFees(wrapper)
}

// --- Distributor ---

func (e *Engine) NotifyRewardAmount(wrapper common.Address, amount sdkmath.Int) ([]types.Distribution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.distributor.NotifyRewardAmount(wrapper, amount)
}

func (e *Engine) NotifyStoredRewardAmount(token common.Address) (sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.distributor.NotifyStoredRewardAmount(token)
}

func (e *Engine) SettlePayouts() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.distributor.SettlePayouts()
}

func (e *Engine) SetPartner(caller, account common.Address, partner bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.distributor.SetPartner(caller, account, partner)
}

func (e *Engine) SetParameters(caller common.Address, params types.ProtocolParameters) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.distributor.SetParameters(caller, params)
}

func (e *Engine) Stake(account, pool common.Address, amount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.distributor.Stake(account, pool, amount)
}

func (e *Engine) Unstake(account, pool common.Address, amount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.distributor.Unstake(account, pool, amount)
}

func (e *Engine) MigrateToPartner(account common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.distributor.MigrateToPartner(account)
}

func (e *Engine) ClaimRewards(account, pool common.Address) ([]types.TokenAmount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.distributor.ClaimRewards(account, pool)
}

// --- Views ---

// Status is a summary of the voting ledger and the tick loop.
type Status struct {
	Now                time.Time   `json:"now"`
	NextEpoch          time.Time   `json:"next_epoch"`
	NextVoteSubmission time.Time   `json:"next_vote_submission"`
	InSubmissionWindow bool        `json:"in_submission_window"`
	VotesLength        int         `json:"votes_length"`
	UniqueVotesLength  int         `json:"unique_votes_length"`
	MaxPoolsLength     int         `json:"max_pools_length"`
	TotalVoteWeight    sdkmath.Int `json:"total_vote_weight"`
	TopVotesWeight     sdkmath.Int `json:"top_votes_weight"`
	Wrappers           int         `json:"wrappers"`
	Ticks              int         `json:"ticks"`
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Now:                e.clock.Now().UTC(),
		NextEpoch:          e.ledger.NextEpoch(),
		NextVoteSubmission: e.ledger.NextVoteSubmission(),
		InSubmissionWindow: e.ledger.InSubmissionWindow(),
		VotesLength:        e.ledger.VotesLength(),
		UniqueVotesLength:  e.ledger.UniqueVotesLength(),
		MaxPoolsLength:     e.ledger.MaxPoolsLength(),
		TotalVoteWeight:    e.ledger.TotalVoteWeight(),
		TopVotesWeight:     e.ledger.TopVotesWeight(),
		Wrappers:           len(e.bribes.Wrappers()),
		Ticks:              e.tickCount,
	}
}

func (e *Engine) Votes() []types.RankedPool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Votes()
}

func (e *Engine) TopVotes() []types.RankedPool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.TopVotes()
}

func (e *Engine) PrepareVote() types.PreparedVote {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.PrepareVote()
}

func (e *Engine) LastSubmission() (types.Submission, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.LastSubmission()
}

func (e *Engine) PoolWeight(pool common.Address) types.PoolWeight {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.PoolWeight(pool)
}

func (e *Engine) VotesByAccount(account common.Address) types.VotesData {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lens.VotesOf(account)
}

func (e *Engine) PositionsOf(account common.Address) (types.Positions, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lens.PositionsOf(account)
}

func (e *Engine) TokenIsAllowed(token common.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.allowlist.TokenIsAllowed(token)
}

func (e *Engine) AllowlistEntry(token common.Address) types.AllowlistEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.allowlist.Entry(token)
}

func (e *Engine) Wrappers() []common.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bribes.Wrappers()
}

func (e *Engine) ActiveTokens(wrapper common.Address) ([]common.Address, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bribes.ActiveTokens(wrapper)
}

func (e *Engine) Parameters() types.ProtocolParameters {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.distributor.Parameters()
}

func (e *Engine) StoredAmount(token common.Address) (sdkmath.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.distributor.StoredAmount(token)
}

// LatestTick returns the snapshot of the most recent tick.
func (e *Engine) LatestTick() (types.TickSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.latestTick == nil {
		return types.TickSnapshot{}, false
	}
	return *e.latestTick, true
}

// RestoreLatestTick seeds the in-memory latest tick, typically from the store after a restart.
func (e *Engine) RestoreLatestTick(snapshot types.TickSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latestTick == nil || e.latestTick.TickNumber < snapshot.TickNumber {
		e.latestTick = &snapshot
	}
}
