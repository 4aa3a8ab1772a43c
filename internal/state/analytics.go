package state

import (
	"fmt"

	"github.com/elys-network/votesnap/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// TokenTotals aggregates every recorded distribution of one token.
type TokenTotals struct {
	Token         common.Address `json:"token"`
	Distributions int            `json:"distributions"`
	Amount        string         `json:"amount"`
	Partner       string         `json:"partner"`
	BaseStakers   string         `json:"base_stakers"`
	Lockers       string         `json:"lockers"`
	LPStakers     string         `json:"lp_stakers"`
	Treasury      string         `json:"treasury"`
	Ecosystem     string         `json:"ecosystem"`
}

// RecentTicks retrieves recent tick snapshots, newest first.
func (s *Store) RecentTicks(limit int) ([]types.TickSnapshot, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	rows, err := s.db.Query(`SELECT `+tickColumns+` FROM tick_snapshots ORDER BY snapshot_timestamp DESC, snapshot_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent ticks: %w", err)
	}
	defer rows.Close()

	ticks := make([]types.TickSnapshot, 0, limit)
	for rows.Next() {
		t, err := scanTick(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan tick row")
			continue
		}
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return ticks, nil
}

// DistributionTotals sums recorded distributions per token.
func (s *Store) DistributionTotals() ([]TokenTotals, error) {
	rows, err := s.db.Query(`
		SELECT
			token,
			COUNT(*),
			COALESCE(SUM(amount), 0)::text,
			COALESCE(SUM(partner), 0)::text,
			COALESCE(SUM(base_stakers), 0)::text,
			COALESCE(SUM(lockers), 0)::text,
			COALESCE(SUM(lp_stakers), 0)::text,
			COALESCE(SUM(treasury), 0)::text,
			COALESCE(SUM(ecosystem), 0)::text
		FROM distributions
		GROUP BY token
		ORDER BY token`)
	if err != nil {
		return nil, fmt.Errorf("failed to query distribution totals: %w", err)
	}
	defer rows.Close()

	totals := make([]TokenTotals, 0)
	for rows.Next() {
		var t TokenTotals
		var token string
		if err := rows.Scan(&token, &t.Distributions, &t.Amount, &t.Partner, &t.BaseStakers,
			&t.Lockers, &t.LPStakers, &t.Treasury, &t.Ecosystem); err != nil {
			return nil, fmt.Errorf("failed to scan distribution totals: %w", err)
		}
		t.Token = common.HexToAddress(token)
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return totals, nil
}
