package state

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/rangevault/rvm/internal/types"
)

// SaveShareBalance upserts one holder's share balance in a vault.
func SaveShareBalance(id types.VaultID, holder string, shares sdkmath.Int) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO share_balances (vault_id, holder, shares, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (vault_id, holder) DO UPDATE SET
			shares = EXCLUDED.shares,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := DB.Exec(query, int64(id), holder, shares.String()); err != nil {
		return fmt.Errorf("failed to save share balance for %s in vault %d: %w", holder, id, err)
	}
	return nil
}

// LoadShareBalances loads every holder balance for one vault.
func LoadShareBalances(id types.VaultID) (map[string]sdkmath.Int, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.Query(`SELECT holder, shares FROM share_balances WHERE vault_id = $1`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query share balances for vault %d: %w", id, err)
	}
	defer rows.Close()

	balances := make(map[string]sdkmath.Int)
	for rows.Next() {
		var holder, shares string
		if err := rows.Scan(&holder, &shares); err != nil {
			return nil, fmt.Errorf("failed to scan share balance row: %w", err)
		}
		balances[holder], err = parseAmount("shares", shares)
		if err != nil {
			return nil, err
		}
	}
	return balances, rows.Err()
}
