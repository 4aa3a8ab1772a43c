/*

This file manages the persistent global tick counter.
The counter is stored in the database to ensure continuity across restarts.

*/

package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// CurrentTickNumber retrieves the current tick number.
func (s *Store) CurrentTickNumber() (int, error) {
	var current int
	err := s.db.QueryRow(`SELECT current_tick FROM tick_counter WHERE id = 1;`).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn().Msg("No tick counter row found, initializing to 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current tick number: %w", err)
	}
	return current, nil
}

// NextTickNumber increments the tick counter and returns the new value.
func (s *Store) NextTickNumber() (int, error) {
	updateQuery := `
		UPDATE tick_counter
		SET current_tick = current_tick + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_tick;`

	var next int
	if err := s.db.QueryRow(updateQuery).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to increment tick number: %w", err)
	}
	log.Debug().Int("tick", next).Msg("Incremented tick counter")
	return next, nil
}

// ResetTickNumber sets the tick counter to a specific value (for testing/maintenance).
func (s *Store) ResetTickNumber(tick int) error {
	if tick < 0 {
		return fmt.Errorf("tick number cannot be negative: %d", tick)
	}
	result, err := s.db.Exec(`UPDATE tick_counter SET current_tick = $1, updated_at = CURRENT_TIMESTAMP WHERE id = 1;`, tick)
	if err != nil {
		return fmt.Errorf("failed to reset tick number to %d: %w", tick, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("tick counter row missing, run EnsureSchema first")
	}
	log.Info().Int("tick", tick).Msg("Reset tick counter")
	return nil
}
