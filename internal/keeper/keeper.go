/*

The keeper is the autonomous operator: on every cycle it asks the planner for
a rebalance plan, submits it through the facade under its keeper role, and
records a receipt. A failed cycle is logged and recorded, never fatal; the
next tick gets a fresh chance.

*/

package keeper

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rangevault/rvm/internal/logger"
	"github.com/rangevault/rvm/internal/planner"
	"github.com/rangevault/rvm/internal/types"
	"github.com/rangevault/rvm/internal/vault"
)

// Keeper drives periodic rebalance cycles for one vault.
type Keeper struct {
	logger  zerolog.Logger
	facade  vault.Facade
	planner *planner.Planner
	store   vault.Store

	caller  string
	vaultID types.VaultID

	cycleCount int
}

// Config holds the dependencies for creating a new Keeper instance.
type Config struct {
	Facade  vault.Facade
	Planner *planner.Planner
	Store   vault.Store // optional
	Caller  string      // identity presented to the access controller
	VaultID types.VaultID
}

// New creates a keeper with dependency injection.
func New(cfg Config) (*Keeper, error) {
	if cfg.Facade == nil {
		return nil, fmt.Errorf("facade cannot be nil")
	}
	if cfg.Planner == nil {
		return nil, fmt.Errorf("planner cannot be nil")
	}
	if cfg.Caller == "" {
		return nil, fmt.Errorf("keeper caller identity cannot be empty")
	}
	return &Keeper{
		logger:  logger.GetForComponent("keeper"),
		facade:  cfg.Facade,
		planner: cfg.Planner,
		store:   cfg.Store,
		caller:  cfg.Caller,
		vaultID: cfg.VaultID,
	}, nil
}

// RunLoop starts the keeper loop with the specified interval. The first cycle
// runs immediately.
func (k *Keeper) RunLoop(ctx context.Context, interval time.Duration) {
	k.logger.Info().
		Dur("interval", interval).
		Uint64("vault", uint64(k.vaultID)).
		Msg("Starting keeper loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	k.cycleCount++
	k.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return
		case <-ticker.C:
			k.cycleCount++
			k.RunCycle(ctx)
		}
	}
}

// RunCycle executes one plan/execute/record cycle.
func (k *Keeper) RunCycle(ctx context.Context) {
	cycleStart := time.Now()
	cycleID := uuid.New().String()
	cycleLogger := k.logger.With().Str("cycle_id", cycleID).Int("cycle", k.cycleCount).Logger()

	cycleLogger.Info().Msg("--- Starting keeper cycle ---")

	v, err := k.facade.Vault(k.vaultID)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cannot load vault, skipping cycle")
		return
	}

	plan, err := k.planner.BuildPlan(&v)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Planning failed, skipping cycle")
		k.record(cycleLogger, cycleID, nil, err)
		return
	}
	if plan == nil {
		cycleLogger.Info().Msg("No rebalance needed")
		return
	}

	res, err := k.facade.Rebalance(k.caller, plan)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Rebalance failed")
		k.record(cycleLogger, cycleID, nil, err)
		return
	}

	receipt := &types.RebalanceReceipt{
		CycleID:       cycleID,
		VaultID:       k.vaultID,
		Timestamp:     time.Now(),
		Success:       true,
		RangesClosed:  res.RangesClosed,
		SwapsExecuted: res.SwapsExecuted,
		RangesOpened:  res.RangesOpened,
		LPFeesA:       res.LPFeesA,
		LPFeesB:       res.LPFeesB,
	}
	k.save(cycleLogger, receipt)

	cycleLogger.Info().
		Dur("duration", time.Since(cycleStart)).
		Int("closed", res.RangesClosed).
		Int("opened", res.RangesOpened).
		Msg("--- Keeper cycle completed ---")
}

// record stores a failure receipt so the status API shows why a cycle did
// nothing.
func (k *Keeper) record(log zerolog.Logger, cycleID string, res *types.RebalanceReceipt, cause error) {
	receipt := res
	if receipt == nil {
		receipt = &types.RebalanceReceipt{
			CycleID:   cycleID,
			VaultID:   k.vaultID,
			Timestamp: time.Now(),
			LPFeesA:   sdkmath.ZeroInt(),
			LPFeesB:   sdkmath.ZeroInt(),
		}
	}
	receipt.Success = false
	if cause != nil {
		receipt.Message = cause.Error()
	}
	k.save(log, receipt)
}

func (k *Keeper) save(log zerolog.Logger, receipt *types.RebalanceReceipt) {
	if k.store == nil {
		return
	}
	if err := k.store.SaveReceipt(receipt); err != nil {
		log.Error().Err(err).Msg("Failed to persist rebalance receipt")
	}
}
