/*

This file contains the error taxonomy shared by every ledger in the engine.
Callers match them with errors.Is; packages wrap them with context via fmt.Errorf.

*/

package types

import "errors"

var (
	// ErrCapacityExceeded is returned when a vote or a batch would push the account's
	// absolute vote weight over its capacity.
	ErrCapacityExceeded = errors.New("vote weight capacity exceeded")
	// ErrNotAuthorized is returned when the caller is neither the account, its delegate,
	// nor the governance role required by the operation.
	ErrNotAuthorized = errors.New("caller not authorized")
	// ErrDelegatedAway is returned when an account votes for itself while its votes are delegated.
	ErrDelegatedAway = errors.New("account has delegated its votes")
	// ErrOutsideSubmissionWindow is returned by submitVote outside [nextVoteSubmission, nextEpoch).
	ErrOutsideSubmissionWindow = errors.New("outside vote submission window")
	// ErrTokenNotEligible is returned when a reward token fails the allowlist check.
	ErrTokenNotEligible = errors.New("token not eligible")
	// ErrUpstreamTransferShortfall is returned when an external transfer moves less than expected.
	ErrUpstreamTransferShortfall = errors.New("upstream transfer shortfall")
	// ErrUnknownPool is returned for a pool wrapper that was never registered.
	ErrUnknownPool = errors.New("unknown pool")
	// ErrInvalidParameters is returned when protocol parameters fail validation.
	ErrInvalidParameters = errors.New("invalid protocol parameters")
	// ErrInvalidAmount is returned for nil or negative amounts where a non-negative one is required.
	ErrInvalidAmount = errors.New("invalid amount")
)
