package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/votesnap/internal/types"
	"github.com/rs/zerolog/log"
)

// SaveParameters saves a new version of the protocol parameters, optionally making it the active one.
func (s *Store) SaveParameters(params types.ProtocolParameters, configName string, version int, makeActive bool) (paramsID int64, err error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal protocol parameters: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if makeActive {
		_, err = tx.Exec(`UPDATE protocol_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	now := time.Now()
	err = tx.QueryRow(`
		INSERT INTO protocol_parameters (version, config_name, is_active, activated_at, created_at, parameters)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING params_id;`,
		version, configName, makeActive, now, now, raw,
	).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert protocol parameters: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved protocol parameters")
	return paramsID, nil
}

// LoadActiveParameters loads the currently active parameters of configName, or ErrNotFound.
func (s *Store) LoadActiveParameters(configName string) (*types.ProtocolParameters, error) {
	var raw []byte
	err := s.db.QueryRow(`
		SELECT parameters FROM protocol_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`, configName).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active parameters for config '%s': %w", configName, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load active parameters for config '%s': %w", configName, err)
	}

	var p types.ProtocolParameters
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameters for config '%s': %w", configName, err)
	}
	log.Info().Str("config", configName).Msg("Loaded active protocol parameters")
	return &p, nil
}

// LatestParametersVersion returns the highest stored version of configName, 0 when none exists.
func (s *Store) LatestParametersVersion(configName string) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(version) FROM protocol_parameters WHERE config_name = $1`, configName).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read parameters version for config '%s': %w", configName, err)
	}
	return int(version.Int64), nil
}
