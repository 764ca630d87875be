package state

import (
	"fmt"

	"github.com/rangevault/rvm/internal/types"
)

// SaveRanges replaces the persisted range set for one vault in a single
// transaction, mirroring the registry's commit semantics.
func SaveRanges(id types.VaultID, ranges []*types.Range) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin range transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM vault_ranges WHERE vault_id = $1`, int64(id)); err != nil {
		return fmt.Errorf("failed to clear ranges for vault %d: %w", id, err)
	}

	insert := `
		INSERT INTO vault_ranges (
			range_id, vault_id, venue, pool_id, position_id,
			weight_bps, liquidity, lower_tick, upper_tick, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
	`
	for _, rg := range ranges {
		_, err := tx.Exec(insert,
			string(rg.ID), int64(rg.VaultID), rg.Venue, rg.PoolID, rg.PositionID,
			int64(rg.WeightBps), rg.Liquidity.String(), rg.LowerTick, rg.UpperTick,
		)
		if err != nil {
			return fmt.Errorf("failed to save range %s: %w", rg.ID, err)
		}
	}
	return tx.Commit()
}

// LoadRanges loads the persisted range set for one vault.
func LoadRanges(id types.VaultID) ([]*types.Range, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT range_id, vault_id, venue, pool_id, position_id,
			weight_bps, liquidity, lower_tick, upper_tick
		FROM vault_ranges WHERE vault_id = $1
	`
	rows, err := DB.Query(query, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query ranges for vault %d: %w", id, err)
	}
	defer rows.Close()

	var ranges []*types.Range
	for rows.Next() {
		var (
			rg                 types.Range
			rangeID            string
			vaultID, weightBps int64
			liquidity          string
		)
		err := rows.Scan(&rangeID, &vaultID, &rg.Venue, &rg.PoolID, &rg.PositionID,
			&weightBps, &liquidity, &rg.LowerTick, &rg.UpperTick)
		if err != nil {
			return nil, fmt.Errorf("failed to scan range row: %w", err)
		}
		rg.ID = types.RangeID(rangeID)
		rg.VaultID = types.VaultID(vaultID)
		rg.WeightBps = uint64(weightBps)
		rg.Liquidity, err = parseAmount("liquidity", liquidity)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, &rg)
	}
	return ranges, rows.Err()
}
