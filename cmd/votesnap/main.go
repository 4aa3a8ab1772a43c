package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/votesnap/internal/config"
	"github.com/elys-network/votesnap/internal/engine"
	"github.com/elys-network/votesnap/internal/logger"
	"github.com/elys-network/votesnap/internal/simulations"
	"github.com/elys-network/votesnap/internal/state"
	"github.com/elys-network/votesnap/internal/types"
	"github.com/elys-network/votesnap/internal/web"
	"github.com/ethereum/go-ethereum/common"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const (
	PARAMETERS_CONFIG_NAME = "default_votesnap_parameters"
)

// main is the entry point of the votesnap engine. It runs against the in-memory deployment
// from internal/simulations.
func main() {
	seed := pflag.Bool("seed", true, "populate the simulated deployment with demo wrappers, bribes, votes and emissions")
	once := pflag.Bool("once", false, "run a single tick and exit")
	pflag.Parse()

	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var extra []io.Writer
	if config.LogFile != "" {
		w, err := logger.FileWriter(config.LogFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", config.LogFile).Msg("Failed to open log file")
		}
		extra = append(extra, w)
	}
	logger.Initialize(config.LogLevel, extra...)
	log.Info().Msg("votesnap engine starting...")

	// --- 2. Persistence and parameters ---
	var store *state.Store
	if config.DBEnabled {
		var err error
		store, err = state.Open(config.Database.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer store.Close()
		if err := store.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
	}

	params, err := resolveParameters(store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve protocol parameters")
	}

	// --- 3. Engine ---
	env := simulations.NewEnvironment()
	var wrappers []common.Address
	if *seed {
		if wrappers, err = env.Seed(); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed simulated deployment")
		}
	}

	admin := config.OrDefault(config.GovernanceAddress, simulations.Governor)
	engineConfig := engine.Config{
		Collaborators: engine.Collaborators{
			Tokens:     env.Tokens,
			Supply:     env.Tokens,
			Minter:     env.Tokens,
			Balances:   env.Balances,
			External:   env.External,
			Registry:   env.Registry,
			Upstream:   env.Bribes,
			Gauges:     env.Gauges,
			Governance: env.Governance,
			Locks:      env.Locks,
		},
		Addresses: engine.Addresses{
			Custody:              config.OrDefault(config.CustodyAddress, simulations.Custody),
			Treasury:             config.OrDefault(config.TreasuryAddress, simulations.Treasury),
			Ecosystem:            config.OrDefault(config.EcosystemAddress, simulations.Ecosystem),
			BaseToken:            simulations.BaseToken,
			DerivativeToken:      simulations.DerivativeToken,
			SecondaryToken:       simulations.SecondaryToken,
			LockedSecondaryToken: simulations.LockedSecondaryToken,
			BaseStakersPool:      simulations.BaseStakersPool,
			PartnerPool:          simulations.PartnerPool,
			LockersPool:          simulations.LockersPool,
		},
		Clock:               clockwork.NewRealClock(),
		Admin:               admin,
		Params:              params,
		EpochLength:         config.EpochLength,
		Window:              config.SubmissionWindow,
		MaxPoolsLength:      config.MaxPoolsLength,
		SyncPageSize:        config.SyncPageSize,
		NotifyPageSize:      config.NotifyPageSize,
		CheckpointBatchSize: config.CheckpointBatchSize,
	}
	if store != nil {
		engineConfig.Store = store
	}

	e, err := engine.NewEngine(engineConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}
	if store != nil {
		restoreHistory(e, store)
	}
	for _, w := range wrappers {
		if err := e.RegisterWrapper(admin, w); err != nil {
			log.Fatal().Err(err).Str("wrapper", w.Hex()).Msg("Failed to register pool wrapper")
		}
	}
	if *seed {
		seedVotes(e, wrappers)
	}

	if *once {
		snapshot := e.RunTick(context.Background())
		log.Info().Int("tick", snapshot.TickNumber).Int("errors", len(snapshot.Errors)).Msg("Single tick finished")
		return
	}

	// --- 4. Web server and main loop ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var history web.History
	if store != nil {
		history = store
	}
	webServer := web.NewWebServer(config.WebPort, e, history)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting votesnap API")
		return webServer.Start(gctx)
	})
	g.Go(func() error {
		e.RunLoop(gctx, config.TickInterval)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("votesnap stopped with error")
		return
	}
	log.Info().Msg("votesnap stopped")
}

// resolveParameters picks the protocol parameters: the YAML file when configured, otherwise the
// active set in the database, otherwise the defaults. A new set is saved as the active version.
func resolveParameters(store *state.Store) (types.ProtocolParameters, error) {
	params := config.DefaultProtocolParameters
	fromFile := config.ParametersFile != ""
	if fromFile {
		p, err := config.LoadParametersFile(config.ParametersFile)
		if err != nil {
			return params, err
		}
		params = p
		log.Info().Str("path", config.ParametersFile).Msg("Protocol parameters loaded from file.")
	}

	if store == nil {
		return params, nil
	}

	if !fromFile {
		active, err := store.LoadActiveParameters(PARAMETERS_CONFIG_NAME)
		if err == nil {
			log.Info().Msg("Active protocol parameters loaded from database.")
			return *active, nil
		}
		if !errors.Is(err, state.ErrNotFound) {
			return params, err
		}
		log.Warn().Msg("No active protocol parameters, using defaults and saving.")
	}

	version, err := store.LatestParametersVersion(PARAMETERS_CONFIG_NAME)
	if err != nil {
		return params, err
	}
	if _, err := store.SaveParameters(params, PARAMETERS_CONFIG_NAME, version+1, true); err != nil {
		return params, err
	}
	return params, nil
}

// restoreHistory brings the last persisted tick back into the engine after a restart.
func restoreHistory(e *engine.Engine, store *state.Store) {
	if tick, err := store.LoadLatestTick(); err == nil {
		e.RestoreLatestTick(*tick)
		log.Info().Int("tick", tick.TickNumber).Time("at", tick.Timestamp).Msg("Restored latest tick from database.")
	} else if !errors.Is(err, state.ErrNotFound) {
		log.Warn().Err(err).Msg("Failed to load latest tick")
	}
	if sub, err := store.LatestSubmission(); err == nil {
		log.Info().Int64("epoch", sub.Epoch).Int("pools", len(sub.Vote.Pools)).Msg("Last persisted vote submission.")
	} else if !errors.Is(err, state.ErrNotFound) {
		log.Warn().Err(err).Msg("Failed to load latest vote submission")
	}
}

// seedVotes makes the simulated voters spread their capacity over the seeded wrappers.
func seedVotes(e *engine.Engine, wrappers []common.Address) {
	if len(wrappers) < 2 {
		return
	}
	voters := []struct {
		account common.Address
		votes   []types.PoolVote
	}{
		{common.HexToAddress("0x1"), []types.PoolVote{{Pool: wrappers[0], Weight: sdkmath.NewInt(700)}, {Pool: wrappers[1], Weight: sdkmath.NewInt(300)}}},
		{common.HexToAddress("0x2"), []types.PoolVote{{Pool: wrappers[1], Weight: sdkmath.NewInt(2000)}}},
		{common.HexToAddress("0x3"), []types.PoolVote{{Pool: wrappers[0], Weight: sdkmath.NewInt(-500)}}},
	}
	for _, v := range voters {
		if err := e.VoteBatch(v.account, v.account, v.votes); err != nil {
			log.Warn().Err(err).Str("account", v.account.Hex()).Msg("Failed to seed votes")
		}
	}
}
