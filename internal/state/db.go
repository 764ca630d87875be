package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
// Token amounts are stored as NUMERIC(78, 0): wide enough for any 256-bit
// base-unit integer, round-tripped through strings on both sides.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS vaults (
			vault_id BIGINT PRIMARY KEY,
			token_a VARCHAR(128) NOT NULL,
			token_b VARCHAR(128) NOT NULL,
			total_shares NUMERIC(78, 0) NOT NULL,
			max_shares NUMERIC(78, 0) NOT NULL,
			entry_bps BIGINT NOT NULL,
			exit_bps BIGINT NOT NULL,
			management_bps BIGINT NOT NULL,
			performance_bps BIGINT NOT NULL,
			flash_bps BIGINT NOT NULL,
			idle_a NUMERIC(78, 0) NOT NULL,
			idle_b NUMERIC(78, 0) NOT NULL,
			pending_fee_a NUMERIC(78, 0) NOT NULL,
			pending_fee_b NUMERIC(78, 0) NOT NULL,
			accrued_fee_a NUMERIC(78, 0) NOT NULL,
			accrued_fee_b NUMERIC(78, 0) NOT NULL,
			init_amount_a NUMERIC(78, 0) NOT NULL,
			init_amount_b NUMERIC(78, 0) NOT NULL,
			init_shares NUMERIC(78, 0) NOT NULL,
			twap_lookback_sec INTEGER NOT NULL,
			max_deviation_bps BIGINT NOT NULL,
			mint_restricted BOOLEAN NOT NULL DEFAULT FALSE,
			last_fee_accrual TIMESTAMPTZ,
			last_fee_collected TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS vault_ranges (
			range_id VARCHAR(64) PRIMARY KEY,
			vault_id BIGINT NOT NULL REFERENCES vaults(vault_id),
			venue VARCHAR(64) NOT NULL,
			pool_id VARCHAR(128) NOT NULL,
			position_id VARCHAR(128),
			weight_bps BIGINT NOT NULL,
			liquidity NUMERIC(78, 0) NOT NULL,
			lower_tick INTEGER NOT NULL,
			upper_tick INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_vault_ranges_vault_id ON vault_ranges(vault_id);

		CREATE TABLE IF NOT EXISTS share_balances (
			vault_id BIGINT NOT NULL REFERENCES vaults(vault_id),
			holder VARCHAR(255) NOT NULL,
			shares NUMERIC(78, 0) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (vault_id, holder)
		);

		CREATE TABLE IF NOT EXISTS rebalance_receipts (
			receipt_id SERIAL PRIMARY KEY,
			cycle_id VARCHAR(64) NOT NULL,
			vault_id BIGINT NOT NULL,
			receipt_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			success BOOLEAN NOT NULL,
			message TEXT,
			ranges_closed INTEGER NOT NULL DEFAULT 0,
			swaps_executed INTEGER NOT NULL DEFAULT 0,
			ranges_opened INTEGER NOT NULL DEFAULT 0,
			lp_fees_a NUMERIC(78, 0) NOT NULL,
			lp_fees_b NUMERIC(78, 0) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_rebalance_receipts_timestamp ON rebalance_receipts(receipt_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_rebalance_receipts_vault_id ON rebalance_receipts(vault_id);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
