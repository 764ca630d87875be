package state

import (
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/rangevault/rvm/internal/types"
)

// parseAmount converts a NUMERIC column value back to a base-unit integer.
func parseAmount(column, value string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(value)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("column %s holds a non-integer value: %q", column, value)
	}
	return v, nil
}

// SaveVault upserts a vault record.
func SaveVault(v *types.Vault) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO vaults (
			vault_id, token_a, token_b, total_shares, max_shares,
			entry_bps, exit_bps, management_bps, performance_bps, flash_bps,
			idle_a, idle_b, pending_fee_a, pending_fee_b, accrued_fee_a, accrued_fee_b,
			init_amount_a, init_amount_b, init_shares,
			twap_lookback_sec, max_deviation_bps, mint_restricted,
			last_fee_accrual, last_fee_collected, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, CURRENT_TIMESTAMP
		)
		ON CONFLICT (vault_id) DO UPDATE SET
			total_shares = EXCLUDED.total_shares,
			max_shares = EXCLUDED.max_shares,
			entry_bps = EXCLUDED.entry_bps,
			exit_bps = EXCLUDED.exit_bps,
			management_bps = EXCLUDED.management_bps,
			performance_bps = EXCLUDED.performance_bps,
			flash_bps = EXCLUDED.flash_bps,
			idle_a = EXCLUDED.idle_a,
			idle_b = EXCLUDED.idle_b,
			pending_fee_a = EXCLUDED.pending_fee_a,
			pending_fee_b = EXCLUDED.pending_fee_b,
			accrued_fee_a = EXCLUDED.accrued_fee_a,
			accrued_fee_b = EXCLUDED.accrued_fee_b,
			twap_lookback_sec = EXCLUDED.twap_lookback_sec,
			max_deviation_bps = EXCLUDED.max_deviation_bps,
			mint_restricted = EXCLUDED.mint_restricted,
			last_fee_accrual = EXCLUDED.last_fee_accrual,
			last_fee_collected = EXCLUDED.last_fee_collected,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := DB.Exec(query,
		int64(v.ID), v.TokenA, v.TokenB, v.TotalShares.String(), v.MaxShares.String(),
		int64(v.Fees.EntryBps), int64(v.Fees.ExitBps), int64(v.Fees.ManagementBps),
		int64(v.Fees.PerformanceBps), int64(v.Fees.FlashBps),
		v.IdleA.String(), v.IdleB.String(),
		v.PendingFeeA.String(), v.PendingFeeB.String(),
		v.AccruedFeeA.String(), v.AccruedFeeB.String(),
		v.InitAmountA.String(), v.InitAmountB.String(), v.InitShares.String(),
		int64(v.TwapLookbackSec), int64(v.MaxDeviationBps), v.MintRestricted,
		nullTime(v.LastFeeAccrual), nullTime(v.LastFeeCollected),
	)
	if err != nil {
		return fmt.Errorf("failed to save vault %d: %w", v.ID, err)
	}
	return nil
}

// LoadVault loads one vault record by id.
func LoadVault(id types.VaultID) (*types.Vault, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT vault_id, token_a, token_b, total_shares, max_shares,
			entry_bps, exit_bps, management_bps, performance_bps, flash_bps,
			idle_a, idle_b, pending_fee_a, pending_fee_b, accrued_fee_a, accrued_fee_b,
			init_amount_a, init_amount_b, init_shares,
			twap_lookback_sec, max_deviation_bps, mint_restricted,
			last_fee_accrual, last_fee_collected
		FROM vaults WHERE vault_id = $1
	`
	row := DB.QueryRow(query, int64(id))
	v, err := scanVault(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: vault %d", types.ErrNotFound, id)
	}
	return v, err
}

// LoadVaults loads every persisted vault record.
func LoadVaults() ([]*types.Vault, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT vault_id, token_a, token_b, total_shares, max_shares,
			entry_bps, exit_bps, management_bps, performance_bps, flash_bps,
			idle_a, idle_b, pending_fee_a, pending_fee_b, accrued_fee_a, accrued_fee_b,
			init_amount_a, init_amount_b, init_shares,
			twap_lookback_sec, max_deviation_bps, mint_restricted,
			last_fee_accrual, last_fee_collected
		FROM vaults ORDER BY vault_id
	`
	rows, err := DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query vaults: %w", err)
	}
	defer rows.Close()

	var vaults []*types.Vault
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, err
		}
		vaults = append(vaults, v)
	}
	return vaults, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVault(row rowScanner) (*types.Vault, error) {
	var (
		v                                      types.Vault
		vaultID                                int64
		totalShares, maxShares                 string
		entry, exit, mgmt, perf, flash         int64
		idleA, idleB                           string
		pendingA, pendingB, accruedA, accruedB string
		initA, initB, initShares               string
		lookback, maxDeviation                 int64
		lastAccrual, lastCollected             sql.NullTime
	)
	err := row.Scan(
		&vaultID, &v.TokenA, &v.TokenB, &totalShares, &maxShares,
		&entry, &exit, &mgmt, &perf, &flash,
		&idleA, &idleB, &pendingA, &pendingB, &accruedA, &accruedB,
		&initA, &initB, &initShares,
		&lookback, &maxDeviation, &v.MintRestricted,
		&lastAccrual, &lastCollected,
	)
	if err != nil {
		return nil, err
	}

	v.ID = types.VaultID(vaultID)
	v.Fees = types.FeeSchedule{
		EntryBps:       uint64(entry),
		ExitBps:        uint64(exit),
		ManagementBps:  uint64(mgmt),
		PerformanceBps: uint64(perf),
		FlashBps:       uint64(flash),
	}
	v.TwapLookbackSec = uint32(lookback)
	v.MaxDeviationBps = uint64(maxDeviation)
	if lastAccrual.Valid {
		v.LastFeeAccrual = lastAccrual.Time
	}
	if lastCollected.Valid {
		v.LastFeeCollected = lastCollected.Time
	}

	for _, col := range []struct {
		name  string
		value string
		dst   *sdkmath.Int
	}{
		{"total_shares", totalShares, &v.TotalShares},
		{"max_shares", maxShares, &v.MaxShares},
		{"idle_a", idleA, &v.IdleA},
		{"idle_b", idleB, &v.IdleB},
		{"pending_fee_a", pendingA, &v.PendingFeeA},
		{"pending_fee_b", pendingB, &v.PendingFeeB},
		{"accrued_fee_a", accruedA, &v.AccruedFeeA},
		{"accrued_fee_b", accruedB, &v.AccruedFeeB},
		{"init_amount_a", initA, &v.InitAmountA},
		{"init_amount_b", initB, &v.InitAmountB},
		{"init_shares", initShares, &v.InitShares},
	} {
		parsed, err := parseAmount(col.name, col.value)
		if err != nil {
			return nil, err
		}
		*col.dst = parsed
	}
	return &v, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
