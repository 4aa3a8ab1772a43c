/*

This file contains the token allowlist oracle consumed by every reward distribution step.

A token is allowed when it is explicitly marked allowed, or when the external allowlist
lists it. The external check can be switched off per token or globally, in which case
only the explicit flag counts. A fresh oracle allows nothing it has not been told about.

*/

package allowlist

import (
	"errors"
	"fmt"

	"github.com/elys-network/votesnap/internal/chain"
	"github.com/elys-network/votesnap/internal/logger"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

var allowlistLogger = logger.GetForComponent("allowlist_oracle")

var (
	ErrZeroToken       = errors.New("token address is zero")
	ErrInvalidPageSize = errors.New("page size must be at least 1")
)

const (
	DefaultSyncPageSize   = 10
	DefaultNotifyPageSize = 2
)

// Oracle is the allowlist store. It is not safe for concurrent use; the engine serializes access.
type Oracle struct {
	external chain.ExternalAllowlist

	explicit              map[common.Address]bool
	externalCheckDisabled map[common.Address]bool
	externalEnabled       bool

	syncPageSize   int
	notifyPageSize int
}

// NewOracle returns an oracle with the external check enabled and default page sizes.
// A nil external allowlist behaves as an empty one.
func NewOracle(external chain.ExternalAllowlist) *Oracle {
	return &Oracle{
		external:              external,
		explicit:              make(map[common.Address]bool),
		externalCheckDisabled: make(map[common.Address]bool),
		externalEnabled:       true,
		syncPageSize:          DefaultSyncPageSize,
		notifyPageSize:        DefaultNotifyPageSize,
	}
}

// TokenIsAllowed reports whether token may be synced, notified and distributed.
func (o *Oracle) TokenIsAllowed(token common.Address) bool {
	if o.explicit[token] {
		return true
	}
	if !o.externalEnabled || o.externalCheckDisabled[token] {
		return false
	}
	return o.externallyListed(token)
}

func (o *Oracle) externallyListed(token common.Address) bool {
	if o.external == nil {
		return false
	}
	return o.external.IsListed(token)
}

// Entry returns the full allowlist configuration of token.
func (o *Oracle) Entry(token common.Address) types.AllowlistEntry {
	return types.AllowlistEntry{
		Token:                 token,
		ExplicitlyAllowed:     o.explicit[token],
		ExternalCheckDisabled: o.externalCheckDisabled[token],
		ExternallyListed:      o.externallyListed(token),
		Allowed:               o.TokenIsAllowed(token),
	}
}

// SetTokenAllowed sets the explicit flag of a single token.
func (o *Oracle) SetTokenAllowed(token common.Address, allowed bool) error {
	return o.SetTokensAllowedStates([]types.TokenAllowedState{{Token: token, Allowed: allowed}})
}

// SetTokensAllowed sets the same explicit flag on every token, all or nothing.
func (o *Oracle) SetTokensAllowed(tokens []common.Address, allowed bool) error {
	states := make([]types.TokenAllowedState, len(tokens))
	for i, t := range tokens {
		states[i] = types.TokenAllowedState{Token: t, Allowed: allowed}
	}
	return o.SetTokensAllowedStates(states)
}

// SetTokensAllowedStates applies a list of (token, allowed) pairs. Nothing is applied
// if any entry is invalid.
func (o *Oracle) SetTokensAllowedStates(states []types.TokenAllowedState) error {
	for i, s := range states {
		if s.Token == (common.Address{}) {
			return fmt.Errorf("entry %d: %w", i, ErrZeroToken)
		}
	}
	for _, s := range states {
		if s.Allowed {
			o.explicit[s.Token] = true
		} else {
			delete(o.explicit, s.Token)
		}
	}
	allowlistLogger.Debug().Int("count", len(states)).Msg("Applied token allowed states")
	return nil
}

// SetExternalCheckDisabled makes the oracle ignore the external allowlist for token.
func (o *Oracle) SetExternalCheckDisabled(token common.Address, disabled bool) error {
	if token == (common.Address{}) {
		return ErrZeroToken
	}
	if disabled {
		o.externalCheckDisabled[token] = true
	} else {
		delete(o.externalCheckDisabled, token)
	}
	return nil
}

// SetExternalAllowlistEnabled is the global switch for the external check.
func (o *Oracle) SetExternalAllowlistEnabled(enabled bool) {
	o.externalEnabled = enabled
	allowlistLogger.Info().Bool("enabled", enabled).Msg("External allowlist switch changed")
}

// ExternalAllowlistEnabled reports the global switch.
func (o *Oracle) ExternalAllowlistEnabled() bool { return o.externalEnabled }

// SyncPageSize is the number of registry entries scanned by a default sync.
func (o *Oracle) SyncPageSize() int { return o.syncPageSize }

// NotifyPageSize is the number of active tokens notified per call.
func (o *Oracle) NotifyPageSize() int { return o.notifyPageSize }

func (o *Oracle) SetSyncPageSize(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPageSize, n)
	}
	o.syncPageSize = n
	return nil
}

func (o *Oracle) SetNotifyPageSize(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPageSize, n)
	}
	o.notifyPageSize = n
	return nil
}
