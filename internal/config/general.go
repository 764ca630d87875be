package config

import (
	"errors"
	"os"
	"strconv"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/rangevault/rvm/internal/types"
)

// AppConfig holds all application configuration loaded from environment
// variables. These are populated at startup by LoadConfig.
var (
	// VaultID is the ID of the vault this RVM instance manages.
	VaultID uint64

	// TokenA and TokenB are the canonical pair of the managed vault
	// (TokenA's identifier must sort before TokenB's).
	TokenA string
	TokenB string

	// InitAmountA/InitAmountB/InitShares are the bootstrap terms applied to
	// the very first deposit, when total share supply is zero.
	InitAmountA sdkmath.Int
	InitAmountB sdkmath.Int
	InitShares  sdkmath.Int

	// MaxShares caps the vault's total share supply.
	MaxShares sdkmath.Int

	// VenueTag and PoolID locate the managed pool on the adapter registry.
	VenueTag string
	PoolID   string

	// KeeperIntervalSeconds is the rebalance cycle period.
	KeeperIntervalSeconds uint64

	// WebPort is the status API listen port.
	WebPort string
)

// LoadConfig loads configuration from environment variables and sets the
// global config vars. All listed variables are required.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	VaultID, err = getEnvAsUint64("RVM_VAULT_ID")
	if err != nil {
		return err
	}
	if types.VaultID(VaultID) == types.ProtocolVaultID {
		return errors.New("RVM_VAULT_ID 0 is reserved for protocol accounting")
	}

	TokenA, err = getEnv("RVM_TOKEN_A")
	if err != nil {
		return err
	}
	TokenB, err = getEnv("RVM_TOKEN_B")
	if err != nil {
		return err
	}
	if TokenA >= TokenB {
		return errors.New("RVM_TOKEN_A must sort before RVM_TOKEN_B (canonical pair order)")
	}

	InitAmountA, err = getEnvAsInt("RVM_INIT_AMOUNT_A")
	if err != nil {
		return err
	}
	InitAmountB, err = getEnvAsInt("RVM_INIT_AMOUNT_B")
	if err != nil {
		return err
	}
	InitShares, err = getEnvAsInt("RVM_INIT_SHARES")
	if err != nil {
		return err
	}
	MaxShares, err = getEnvAsInt("RVM_MAX_SHARES")
	if err != nil {
		return err
	}

	VenueTag, err = getEnv("RVM_VENUE")
	if err != nil {
		return err
	}
	PoolID, err = getEnv("RVM_POOL_ID")
	if err != nil {
		return err
	}

	KeeperIntervalSeconds, err = getEnvAsUint64("RVM_KEEPER_INTERVAL_SECONDS")
	if err != nil {
		return err
	}

	WebPort, err = getEnv("RVM_WEB_PORT")
	if err != nil {
		return err
	}

	log.Debug().
		Uint64("VaultID", VaultID).
		Str("TokenA", TokenA).
		Str("TokenB", TokenB).
		Str("PoolID", PoolID).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as a non-negative base-unit
// integer amount.
func getEnvAsInt(key string) (sdkmath.Int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	value, ok := sdkmath.NewIntFromString(valueStr)
	if !ok || value.IsNegative() {
		return sdkmath.ZeroInt(), errors.New("environment variable " + key + " must be a non-negative integer, got: " + valueStr)
	}
	return value, nil
}
