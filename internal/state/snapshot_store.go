package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"
)

// SaveTick saves a complete tick snapshot.
func (s *Store) SaveTick(snapshot types.TickSnapshot) (int64, error) {
	// Marshal all JSONB fields
	syncsJSON, err := json.Marshal(snapshot.Syncs)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal syncs: %w", err)
	}
	claimsJSON, err := json.Marshal(snapshot.Claims)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal claims: %w", err)
	}
	distributionsJSON, err := json.Marshal(snapshot.Distributions)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal distributions: %w", err)
	}
	submissionJSON, err := json.Marshal(snapshot.Submission)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal submission: %w", err)
	}
	topPoolsJSON, err := json.Marshal(snapshot.TopPools)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal top_pools: %w", err)
	}

	query := `
		INSERT INTO tick_snapshots (
			tick_number, tick_id, snapshot_timestamp,
			syncs, claims, distributions, submission, top_pools, errors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = s.db.QueryRow(
		query,
		snapshot.TickNumber, snapshot.TickID, snapshot.Timestamp,
		syncsJSON, claimsJSON, distributionsJSON, submissionJSON, topPoolsJSON,
		pq.Array(snapshot.Errors),
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save tick snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("tick_number", snapshot.TickNumber).
		Int("distributions", len(snapshot.Distributions)).
		Msg("Tick snapshot saved to database")
	return snapshotID, nil
}

const tickColumns = `tick_number, tick_id, snapshot_timestamp, syncs, claims, distributions, submission, top_pools, errors`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTick(row rowScanner) (types.TickSnapshot, error) {
	var t types.TickSnapshot
	var syncsJSON, claimsJSON, distributionsJSON, submissionJSON, topPoolsJSON []byte
	err := row.Scan(
		&t.TickNumber, &t.TickID, &t.Timestamp,
		&syncsJSON, &claimsJSON, &distributionsJSON, &submissionJSON, &topPoolsJSON,
		pq.Array(&t.Errors),
	)
	if err != nil {
		return t, err
	}
	if err := unmarshalJSONFields(&t, syncsJSON, claimsJSON, distributionsJSON, submissionJSON, topPoolsJSON); err != nil {
		return t, err
	}
	return t, nil
}

// unmarshalJSONFields unmarshals the JSONB columns of a tick snapshot.
func unmarshalJSONFields(t *types.TickSnapshot, syncsJSON, claimsJSON, distributionsJSON, submissionJSON, topPoolsJSON []byte) error {
	targets := []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"syncs", syncsJSON, &t.Syncs},
		{"claims", claimsJSON, &t.Claims},
		{"distributions", distributionsJSON, &t.Distributions},
		{"submission", submissionJSON, &t.Submission},
		{"top pools", topPoolsJSON, &t.TopPools},
	}
	for _, target := range targets {
		if len(target.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(target.raw, target.dst); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", target.name, err)
		}
	}
	return nil
}

// LoadLatestTick returns the most recent tick snapshot, or ErrNotFound.
func (s *Store) LoadLatestTick() (*types.TickSnapshot, error) {
	query := `SELECT ` + tickColumns + ` FROM tick_snapshots ORDER BY snapshot_timestamp DESC, snapshot_id DESC LIMIT 1`
	t, err := scanTick(s.db.QueryRow(query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("latest tick: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load latest tick: %w", err)
	}
	return &t, nil
}

// SaveSubmission records a vote pushed to governance.
func (s *Store) SaveSubmission(tickID string, sub types.Submission) error {
	pools := make([]string, len(sub.Vote.Pools))
	for i, p := range sub.Vote.Pools {
		pools[i] = p.Hex()
	}
	weights := make([]string, len(sub.Vote.Weights))
	for i, w := range sub.Vote.Weights {
		weights[i] = w.String()
	}

	_, err := s.db.Exec(`
		INSERT INTO vote_submissions (tick_id, epoch, submitted_at, pools, weights, total_vote_weight)
		VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5, $6)`,
		tickID, sub.Epoch, sub.SubmittedAt, pq.Array(pools), pq.Array(weights), sub.Vote.TotalVoteWeight.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save vote submission for epoch %d: %w", sub.Epoch, err)
	}
	return nil
}

// LatestSubmission returns the most recently recorded submission, or ErrNotFound.
func (s *Store) LatestSubmission() (*types.Submission, error) {
	var sub types.Submission
	var pools, weights []string
	var total string
	err := s.db.QueryRow(`
		SELECT epoch, submitted_at, pools, weights::text[], total_vote_weight::text
		FROM vote_submissions ORDER BY submitted_at DESC, submission_id DESC LIMIT 1`,
	).Scan(&sub.Epoch, &sub.SubmittedAt, pq.Array(&pools), pq.Array(&weights), &total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("latest submission: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load latest submission: %w", err)
	}

	for _, p := range pools {
		sub.Vote.Pools = append(sub.Vote.Pools, common.HexToAddress(p))
	}
	for _, w := range weights {
		v, err := parseInt(w)
		if err != nil {
			return nil, err
		}
		sub.Vote.Weights = append(sub.Vote.Weights, v)
	}
	if sub.Vote.TotalVoteWeight, err = parseInt(total); err != nil {
		return nil, err
	}
	return &sub, nil
}

// SaveDistribution records one split inflow.
func (s *Store) SaveDistribution(tickID string, d types.Distribution) error {
	_, err := s.db.Exec(`
		INSERT INTO distributions (
			tick_id, distributed_at, wrapper, token, partner_token, amount, partner_bps,
			partner, base_stakers, lockers, lp_stakers, treasury, ecosystem
		) VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		tickID, d.Timestamp, d.Wrapper.Hex(), d.Token.Hex(), d.PartnerToken.Hex(), d.Amount.String(), d.PartnerBps,
		d.Partner.String(), d.BaseStakers.String(), d.Lockers.String(), d.LPStakers.String(), d.Treasury.String(), d.Ecosystem.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save distribution of %s: %w", d.Token.Hex(), err)
	}
	return nil
}

func parseInt(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}
