/*

This file contains the epoch cadence and the submission of the ledger's top pools to the
governance registry.

Epoch boundaries are multiples of the epoch length since the unix epoch. Votes for the next
boundary may be submitted during [nextEpoch - window, nextEpoch).

*/

package voting

import (
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// NextEpoch returns the first epoch boundary strictly after now.
func (l *Ledger) NextEpoch() time.Time {
	return nextEpochAfter(l.clock.Now(), l.epochLength)
}

func nextEpochAfter(now time.Time, epoch time.Duration) time.Time {
	secs := int64(epoch / time.Second)
	return time.Unix((now.Unix()/secs+1)*secs, 0).UTC()
}

// NextVoteSubmission is the opening of the current submission window.
func (l *Ledger) NextVoteSubmission() time.Time {
	return l.NextEpoch().Add(-l.window)
}

func (l *Ledger) Window() time.Duration      { return l.window }
func (l *Ledger) EpochLength() time.Duration { return l.epochLength }

// InSubmissionWindow reports whether submitVote would pass the window gate right now.
func (l *Ledger) InSubmissionWindow() bool {
	now := l.clock.Now()
	next := nextEpochAfter(now, l.epochLength)
	return !now.Before(next.Add(-l.window)) && now.Before(next)
}

// PrepareVote splits the total vote weight across the positively weighted top pools,
// proportionally to their net weight and rounded down.
func (l *Ledger) PrepareVote() types.PreparedVote {
	total := l.TotalVoteWeight()
	prepared := types.PreparedVote{
		Pools:           []common.Address{},
		Weights:         []math.Int{},
		TotalVoteWeight: total,
	}

	positive := make([]types.RankedPool, 0, l.maxPoolsLength)
	sum := math.ZeroInt()
	for _, p := range l.TopVotes() {
		if p.Weight.IsPositive() {
			positive = append(positive, p)
			sum = sum.Add(p.Weight)
		}
	}
	if sum.IsZero() {
		return prepared
	}

	for _, p := range positive {
		prepared.Pools = append(prepared.Pools, p.Pool)
		prepared.Weights = append(prepared.Weights, total.Mul(p.Weight).Quo(sum))
	}
	return prepared
}

// SubmitVote pushes the prepared vote to the governance registry. Repeated calls inside
// one window resubmit the distribution derived from the current ledger.
func (l *Ledger) SubmitVote() (types.Submission, error) {
	now := l.clock.Now()
	next := nextEpochAfter(now, l.epochLength)
	opens := next.Add(-l.window)
	if now.Before(opens) || !now.Before(next) {
		return types.Submission{}, fmt.Errorf("%w: now %s, window [%s, %s)",
			types.ErrOutsideSubmissionWindow, now.UTC().Format(time.RFC3339), opens.Format(time.RFC3339), next.Format(time.RFC3339))
	}

	prepared := l.PrepareVote()
	if err := l.governance.SubmitWeights(prepared.Pools, prepared.Weights); err != nil {
		return types.Submission{}, fmt.Errorf("failed to submit weights to governance: %w", err)
	}

	submission := types.Submission{Epoch: next.Unix(), SubmittedAt: now, Vote: prepared}
	l.lastSubmission = &submission

	ledgerLogger.Info().
		Int64("epoch", submission.Epoch).
		Int("pools", len(prepared.Pools)).
		Str("totalVoteWeight", prepared.TotalVoteWeight.String()).
		Msg("Vote submitted to governance")
	return submission, nil
}

// LastSubmission returns the most recent successful submission.
func (l *Ledger) LastSubmission() (types.Submission, bool) {
	if l.lastSubmission == nil {
		return types.Submission{}, false
	}
	return *l.lastSubmission, true
}
