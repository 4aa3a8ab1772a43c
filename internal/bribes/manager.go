/*

This file contains the bribe and fee token sync engine.

Each registered pool wrapper keeps an ActiveSet of reward tokens: the tokens of the external
registry that the allowlist currently allows. Syncs scan the registry in pages and are
idempotent, so repeated or overlapping ranges converge to the same set.

*/

package bribes

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/chain"
	"github.com/elys-network/votesnap/internal/logger"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

var syncLogger = logger.GetForComponent("bribe_sync")

// DefaultCheckpointBatchSize bounds the upstream checkpoints advanced by one catch-up call.
const DefaultCheckpointBatchSize = 5

// Allowlist is the part of the allowlist oracle the sync engine reads.
type Allowlist interface {
	TokenIsAllowed(token common.Address) bool
	SyncPageSize() int
	NotifyPageSize() int
}

// Distributor receives claimed bribes and fees. The claimed tokens are already in its custody.
type Distributor interface {
	Address() common.Address
	NotifyBribe(wrapper, token common.Address, amount sdkmath.Int) error
	NotifyFee(token common.Address, amount sdkmath.Int) error
}

// Config holds the collaborators of a Manager.
type Config struct {
	Registry    chain.ExternalRegistry
	Upstream    chain.UpstreamBribeSource
	Tokens      chain.TokenRegistry
	Allowlist   Allowlist
	Distributor Distributor

	CheckpointBatchSize int
}

// Manager owns the active token sets and notify cursors of every pool wrapper.
// Not safe for concurrent use.
type Manager struct {
	cfg      Config
	wrappers []common.Address
	sets     map[common.Address]*ActiveSet
	cursors  map[common.Address]int
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Registry == nil || cfg.Upstream == nil || cfg.Tokens == nil {
		return nil, fmt.Errorf("%w: registry, upstream source and token registry are required", types.ErrInvalidParameters)
	}
	if cfg.Allowlist == nil || cfg.Distributor == nil {
		return nil, fmt.Errorf("%w: allowlist and distributor are required", types.ErrInvalidParameters)
	}
	if cfg.CheckpointBatchSize <= 0 {
		cfg.CheckpointBatchSize = DefaultCheckpointBatchSize
	}
	return &Manager{
		cfg:     cfg,
		sets:    make(map[common.Address]*ActiveSet),
		cursors: make(map[common.Address]int),
	}, nil
}

// RegisterWrapper starts tracking a pool wrapper. Registering twice is a no-op.
func (m *Manager) RegisterWrapper(wrapper common.Address) {
	if _, ok := m.sets[wrapper]; ok {
		return
	}
	m.sets[wrapper] = newActiveSet()
	m.wrappers = append(m.wrappers, wrapper)
}

// Wrappers lists registered wrappers in registration order.
func (m *Manager) Wrappers() []common.Address {
	return append([]common.Address(nil), m.wrappers...)
}

func (m *Manager) set(wrapper common.Address) (*ActiveSet, error) {
	s, ok := m.sets[wrapper]
	if !ok {
		return nil, fmt.Errorf("%w: wrapper %s is not registered", types.ErrUnknownPool, wrapper.Hex())
	}
	return s, nil
}

// ActiveTokens returns the wrapper's active tokens in slot order.
func (m *Manager) ActiveTokens(wrapper common.Address) ([]common.Address, error) {
	s, err := m.set(wrapper)
	if err != nil {
		return nil, err
	}
	return s.Tokens(), nil
}

// NotifyCursor is the slot the next notify page starts from.
func (m *Manager) NotifyCursor(wrapper common.Address) int { return m.cursors[wrapper] }

func (m *Manager) reconcile(s *ActiveSet, token common.Address, result *types.SyncResult) {
	if m.cfg.Allowlist.TokenIsAllowed(token) {
		if s.add(token) {
			result.Added = append(result.Added, token)
		}
		return
	}
	if s.remove(token) {
		result.Removed = append(result.Removed, token)
	}
}

// SyncTokens reconciles the registry tokens in [start, start+count) with the allowlist.
// The range is clamped to the registry; a start past the end is a no-op. A scan covering
// the whole registry also drops active tokens the registry no longer lists.
func (m *Manager) SyncTokens(wrapper common.Address, start, count int) (types.SyncResult, error) {
	result := types.SyncResult{Wrapper: wrapper}
	s, err := m.set(wrapper)
	if err != nil {
		return result, err
	}

	total := m.cfg.Registry.BribeTokensLength(wrapper)
	if start < 0 {
		start = 0
	}
	if count <= 0 || start >= total {
		syncLogger.Debug().Str("wrapper", wrapper.Hex()).Int("start", start).Int("count", count).Int("registryLength", total).
			Msg("Sync range outside registry, nothing to do")
		return result, nil
	}
	end := start + count
	if end > total || end < start {
		end = total
	}

	listed := make(map[common.Address]bool, end-start)
	for i := start; i < end; i++ {
		token := m.cfg.Registry.BribeTokenAt(wrapper, i)
		listed[token] = true
		m.reconcile(s, token, &result)
		result.Scanned++
	}

	if start == 0 && end == total {
		for _, token := range s.Tokens() {
			if !listed[token] && s.remove(token) {
				result.Removed = append(result.Removed, token)
			}
		}
	}

	if len(result.Added) > 0 || len(result.Removed) > 0 {
		syncLogger.Info().
			Str("wrapper", wrapper.Hex()).
			Int("added", len(result.Added)).
			Int("removed", len(result.Removed)).
			Int("active", s.Len()).
			Msg("Active tokens synced")
	}
	return result, nil
}

// SyncTokensDefault syncs from the start of the registry using the configured page size.
func (m *Manager) SyncTokensDefault(wrapper common.Address) (types.SyncResult, error) {
	return m.SyncTokens(wrapper, 0, m.cfg.Allowlist.SyncPageSize())
}

// UpdateTokensAllowedStates re-evaluates an explicit list of tokens without scanning the registry.
func (m *Manager) UpdateTokensAllowedStates(wrapper common.Address, tokens []common.Address) (types.SyncResult, error) {
	result := types.SyncResult{Wrapper: wrapper}
	s, err := m.set(wrapper)
	if err != nil {
		return result, err
	}
	for _, token := range tokens {
		m.reconcile(s, token, &result)
		result.Scanned++
	}
	return result, nil
}
