package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/rangevault/rvm/internal/bank"
	"github.com/rangevault/rvm/internal/config"
	"github.com/rangevault/rvm/internal/keeper"
	"github.com/rangevault/rvm/internal/logger"
	"github.com/rangevault/rvm/internal/planner"
	"github.com/rangevault/rvm/internal/rebalance"
	"github.com/rangevault/rvm/internal/registry"
	"github.com/rangevault/rvm/internal/state"
	"github.com/rangevault/rvm/internal/types"
	"github.com/rangevault/rvm/internal/vault"
	"github.com/rangevault/rvm/internal/venue"
	"github.com/rangevault/rvm/internal/venue/clpool"
	"github.com/rangevault/rvm/internal/web"
)

// main is the entry point for the RVM daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("RVM Core Starting...")

	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Core Wiring ---
	memBank := bank.NewMemory()
	venues := venue.NewRegistry()

	// The pair resolver closes over the manager created below.
	var mgr *vault.Manager
	pairOf := func(id types.VaultID) (string, string, error) {
		v, err := mgr.Vault(id)
		if err != nil {
			return "", "", err
		}
		return v.TokenA, v.TokenB, nil
	}

	clVenue := clpool.New(config.VenueTag, memBank, pairOf)
	if err := venues.Register(config.VenueTag, clVenue); err != nil {
		log.Fatal().Err(err).Msg("Failed to register venue adapter")
	}

	tickSpacing := int32(mustAtoi(os.Getenv("RVM_TICK_SPACING"), 60))
	initialTick := int32(mustAtoi(os.Getenv("RVM_INITIAL_TICK"), 0))
	if _, err := clVenue.CreatePool(config.PoolID, config.TokenA, config.TokenB, tickSpacing, initialTick, nil); err != nil {
		log.Fatal().Err(err).Msg("Failed to create managed pool")
	}

	operator := os.Getenv("RVM_OPERATOR_ID")
	if operator == "" {
		operator = "rvm-operator"
	}
	roles := vault.NewStaticRoles(map[string][]string{
		vault.RoleKeeper:   {operator},
		vault.RoleTreasury: {operator},
		vault.RoleManager:  {operator},
	})

	ranges := registry.New()
	engine := rebalance.New(venues, ranges, memBank, vault.RejectSwaps{})

	mgr, err := vault.NewManager(vault.Options{
		Bank:     memBank,
		Venues:   venues,
		Ranges:   ranges,
		Engine:   engine,
		Access:   roles,
		Pause:    vault.NewPauseSwitch(),
		Treasury: vault.LoggingTreasury{},
		Store:    state.NewStore(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault manager")
	}

	// --- 3. Vault Restore or Bootstrap ---
	vaultID := types.VaultID(config.VaultID)
	if err := restoreOrCreateVault(mgr, memBank, operator, vaultID); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare managed vault")
	}

	// --- 4. Web Server + Keeper Loop ---
	webServer := web.NewWebServer(config.WebPort, mgr)
	go func() {
		log.Info().Str("port", config.WebPort).Msg("Starting RVM status API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	plnr := planner.New(venues, ranges, config.VenueTag, config.PoolID)
	kpr, err := keeper.New(keeper.Config{
		Facade:  mgr,
		Planner: plnr,
		Store:   state.NewStore(),
		Caller:  operator,
		VaultID: vaultID,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create keeper")
	}

	interval := time.Duration(config.KeeperIntervalSeconds) * time.Second
	log.Info().Str("interval", interval.String()).Msg("Starting keeper loop")
	kpr.RunLoop(context.Background(), interval)
}

// restoreOrCreateVault loads the managed vault from the database or creates
// it from environment configuration on first run. Restored balances are
// re-minted into the in-memory bank so the account invariant holds across
// restarts; positions on the in-process venue cannot be reconstructed and
// any persisted ranges are cleared with a warning.
func restoreOrCreateVault(mgr *vault.Manager, memBank *bank.Memory, operator string, id types.VaultID) error {
	stored, err := state.LoadVault(id)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			return err
		}
		v := &types.Vault{
			ID:              id,
			TokenA:          config.TokenA,
			TokenB:          config.TokenB,
			MaxShares:       config.MaxShares,
			Fees:            config.DefaultFeeSchedule,
			InitAmountA:     config.InitAmountA,
			InitAmountB:     config.InitAmountB,
			InitShares:      config.InitShares,
			TwapLookbackSec: config.DefaultTwapLookbackSec,
			MaxDeviationBps: config.DefaultMaxDeviationBps,
		}
		log.Info().Uint64("vault", uint64(id)).Msg("No stored vault found, creating from configuration")
		return mgr.CreateVault(operator, v)
	}

	shares, err := state.LoadShareBalances(id)
	if err != nil {
		return err
	}
	if err := mgr.Restore(stored, shares); err != nil {
		return err
	}

	acct := bank.VaultAccount(id)
	memBank.Mint(acct,
		sdk.NewCoin(stored.TokenA, stored.IdleA.Add(stored.PendingFeeA).Add(stored.AccruedFeeA)),
		sdk.NewCoin(stored.TokenB, stored.IdleB.Add(stored.PendingFeeB).Add(stored.AccruedFeeB)),
	)

	persisted, err := state.LoadRanges(id)
	if err != nil {
		return err
	}
	if len(persisted) > 0 {
		log.Warn().
			Int("ranges", len(persisted)).
			Msg("Persisted ranges reference in-process venue positions that do not survive a restart; clearing them")
		if err := state.SaveRanges(id, nil); err != nil {
			return err
		}
	}

	log.Info().Uint64("vault", uint64(id)).Msg("Vault restored from database")
	return nil
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
