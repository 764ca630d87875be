package state

import (
	"fmt"

	"github.com/rangevault/rvm/internal/types"
)

// SaveReceipt inserts one rebalance receipt and fills in its assigned id.
func SaveReceipt(r *types.RebalanceReceipt) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO rebalance_receipts (
			cycle_id, vault_id, receipt_timestamp, success, message,
			ranges_closed, swaps_executed, ranges_opened, lp_fees_a, lp_fees_b
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING receipt_id
	`
	err := DB.QueryRow(query,
		r.CycleID, int64(r.VaultID), r.Timestamp, r.Success, r.Message,
		r.RangesClosed, r.SwapsExecuted, r.RangesOpened,
		r.LPFeesA.String(), r.LPFeesB.String(),
	).Scan(&r.ReceiptID)
	if err != nil {
		return fmt.Errorf("failed to save rebalance receipt: %w", err)
	}
	return nil
}

// LoadRecentReceipts returns the newest receipts, most recent first.
func LoadRecentReceipts(limit int) ([]types.RebalanceReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT receipt_id, cycle_id, vault_id, receipt_timestamp, success, message,
			ranges_closed, swaps_executed, ranges_opened, lp_fees_a, lp_fees_b
		FROM rebalance_receipts
		ORDER BY receipt_timestamp DESC
		LIMIT $1
	`
	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalance receipts: %w", err)
	}
	defer rows.Close()

	var receipts []types.RebalanceReceipt
	for rows.Next() {
		var (
			r                types.RebalanceReceipt
			vaultID          int64
			lpFeesA, lpFeesB string
		)
		err := rows.Scan(&r.ReceiptID, &r.CycleID, &vaultID, &r.Timestamp, &r.Success, &r.Message,
			&r.RangesClosed, &r.SwapsExecuted, &r.RangesOpened, &lpFeesA, &lpFeesB)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		r.VaultID = types.VaultID(vaultID)
		r.LPFeesA, err = parseAmount("lp_fees_a", lpFeesA)
		if err != nil {
			return nil, err
		}
		r.LPFeesB, err = parseAmount("lp_fees_b", lpFeesB)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}
