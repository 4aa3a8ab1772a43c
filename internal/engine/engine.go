package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/elys-network/votesnap/internal/allowlist"
	"github.com/elys-network/votesnap/internal/bribes"
	"github.com/elys-network/votesnap/internal/chain"
	"github.com/elys-network/votesnap/internal/lens"
	"github.com/elys-network/votesnap/internal/logger"
	"github.com/elys-network/votesnap/internal/rewards"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/elys-network/votesnap/internal/voting"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Store persists what the engine does. It is optional; the engine keeps the latest tick in memory.
type Store interface {
	NextTickNumber() (int, error)
	SaveTick(snapshot types.TickSnapshot) (int64, error)
	SaveSubmission(tickID string, sub types.Submission) error
	SaveDistribution(tickID string, d types.Distribution) error
}

// Collaborators are the external systems the engine talks to.
type Collaborators struct {
	Tokens     chain.TokenRegistry
	Supply     chain.SupplySource
	Minter     chain.Minter
	Balances   chain.LockedBalanceOracle
	External   chain.ExternalAllowlist // may be nil
	Registry   chain.ExternalRegistry
	Upstream   chain.UpstreamBribeSource
	Gauges     chain.GaugeSource
	Governance chain.GovernanceRegistry
	Locks      chain.LockSchedule // may be nil
}

// Addresses are the protocol-owned accounts and tokens.
type Addresses struct {
	Custody   common.Address // distributor account, receives claims and emissions
	Treasury  common.Address
	Ecosystem common.Address

	BaseToken            common.Address
	DerivativeToken      common.Address
	SecondaryToken       common.Address
	LockedSecondaryToken common.Address

	BaseStakersPool common.Address
	PartnerPool     common.Address
	LockersPool     common.Address
}

// Config holds the configuration for creating a new Engine
type Config struct {
	Collaborators
	Addresses

	Clock  clockwork.Clock
	Admin  common.Address
	Params types.ProtocolParameters
	Store  Store

	EpochLength         time.Duration
	Window              time.Duration
	MaxPoolsLength      int
	SyncPageSize        int
	NotifyPageSize      int
	CheckpointBatchSize int
}

// Engine serializes every ledger mutation behind one lock. Views take the read lock, so a
// positions snapshot never mixes state from before and after a concurrent mutation.
type Engine struct {
	mu sync.RWMutex

	logger   zerolog.Logger
	clock    clockwork.Clock
	admin    common.Address
	store    Store
	gauges   chain.GaugeSource
	registry chain.ExternalRegistry

	ledger      *voting.Ledger
	allowlist   *allowlist.Oracle
	bribes      *bribes.Manager
	distributor *rewards.Distributor
	lens        *lens.Lens

	tickCount   int
	latestTick  *types.TickSnapshot
	syncCursors map[common.Address]int
}

// NewEngine builds every ledger on top of the collaborators.
func NewEngine(cfg Config) (*Engine, error) {
	if err := validateEngineConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}

	oracle := allowlist.NewOracle(cfg.External)
	if cfg.SyncPageSize > 0 {
		if err := oracle.SetSyncPageSize(cfg.SyncPageSize); err != nil {
			return nil, err
		}
	}
	if cfg.NotifyPageSize > 0 {
		if err := oracle.SetNotifyPageSize(cfg.NotifyPageSize); err != nil {
			return nil, err
		}
	}

	ledger, err := voting.NewLedger(voting.Config{
		Oracle:         cfg.Balances,
		Governance:     cfg.Governance,
		Clock:          cfg.Clock,
		Admin:          cfg.Admin,
		EpochLength:    cfg.EpochLength,
		Window:         cfg.Window,
		MaxPoolsLength: cfg.MaxPoolsLength,
	})
	if err != nil {
		return nil, err
	}

	distributor, err := rewards.NewDistributor(rewards.Config{
		Address:              cfg.Custody,
		Admin:                cfg.Admin,
		Tokens:               cfg.Tokens,
		Supply:               cfg.Supply,
		Minter:               cfg.Minter,
		Allowlist:            oracle,
		Clock:                cfg.Clock,
		Params:               cfg.Params,
		BaseToken:            cfg.BaseToken,
		DerivativeToken:      cfg.DerivativeToken,
		SecondaryToken:       cfg.SecondaryToken,
		LockedSecondaryToken: cfg.LockedSecondaryToken,
		Treasury:             cfg.Treasury,
		Ecosystem:            cfg.Ecosystem,
		BaseStakersPool:      cfg.BaseStakersPool,
		PartnerPool:          cfg.PartnerPool,
		LockersPool:          cfg.LockersPool,
	})
	if err != nil {
		return nil, err
	}

	manager, err := bribes.NewManager(bribes.Config{
		Registry:            cfg.Registry,
		Upstream:            cfg.Upstream,
		Tokens:              cfg.Tokens,
		Allowlist:           oracle,
		Distributor:         distributor,
		CheckpointBatchSize: cfg.CheckpointBatchSize,
	})
	if err != nil {
		return nil, err
	}

	positions, err := lens.New(lens.Config{
		Tokens:      cfg.Tokens,
		Locked:      cfg.Balances,
		Locks:       cfg.Locks,
		Voting:      ledger,
		Distributor: distributor,
		Clock:       cfg.Clock,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		logger:      logger.GetForComponent("engine_core"),
		clock:       cfg.Clock,
		admin:       cfg.Admin,
		store:       cfg.Store,
		gauges:      cfg.Gauges,
		registry:    cfg.Registry,
		ledger:      ledger,
		allowlist:   oracle,
		bribes:      manager,
		distributor: distributor,
		lens:        positions,
		syncCursors: make(map[common.Address]int),
	}

	e.logger.Info().
		Str("admin", cfg.Admin.Hex()).
		Dur("epochLength", cfg.EpochLength).
		Dur("window", cfg.Window).
		Int("maxPoolsLength", cfg.MaxPoolsLength).
		Bool("persistence", cfg.Store != nil).
		Msg("Engine created")

	return e, nil
}

// validateEngineConfig checks the collaborators the ledgers do not validate themselves
func validateEngineConfig(cfg Config) error {
	if cfg.Clock == nil {
		return fmt.Errorf("clock cannot be nil")
	}
	if cfg.Registry == nil {
		return fmt.Errorf("external registry cannot be nil")
	}
	if cfg.Gauges == nil {
		return fmt.Errorf("gauge source cannot be nil")
	}
	if cfg.Admin == (common.Address{}) {
		return fmt.Errorf("admin address cannot be zero")
	}
	return nil
}

func (e *Engine) authorizeAdmin(caller common.Address) error {
	if caller != e.admin {
		return fmt.Errorf("%w: %s is not the governance account", types.ErrNotAuthorized, caller.Hex())
	}
	return nil
}
