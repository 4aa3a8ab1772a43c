/*

This file contains the token allowlist types.

*/

package types

import "github.com/ethereum/go-ethereum/common"

// TokenAllowedState is one (token, allowed) pair used by the batch allowlist setters
// and by updateTokensAllowedStates results.
type TokenAllowedState struct {
	Token   common.Address `json:"token"`
	Allowed bool           `json:"allowed"`
}

// AllowlistEntry is the full view of a token's allowlist configuration.
type AllowlistEntry struct {
	Token                 common.Address `json:"token"`
	ExplicitlyAllowed     bool           `json:"explicitly_allowed"`
	ExternalCheckDisabled bool           `json:"external_check_disabled"`
	ExternallyListed      bool           `json:"externally_listed"`
	Allowed               bool           `json:"allowed"` // Effective result of isTokenAllowed
}

// SyncResult summarizes a token sync over a pool wrapper's active set.
type SyncResult struct {
	Wrapper common.Address   `json:"wrapper"`
	Added   []common.Address `json:"added"`
	Removed []common.Address `json:"removed"`
	Scanned int              `json:"scanned"`
}
