package state

import (
	sdkmath "cosmossdk.io/math"

	"github.com/rangevault/rvm/internal/types"
)

// Postgres adapts the package-level store functions to the facade's Store
// interface.
type Postgres struct{}

// NewStore returns the Postgres-backed store. InitDB must have succeeded.
func NewStore() *Postgres { return &Postgres{} }

func (Postgres) SaveVault(v *types.Vault) error { return SaveVault(v) }

func (Postgres) SaveRanges(id types.VaultID, ranges []*types.Range) error {
	return SaveRanges(id, ranges)
}

func (Postgres) SaveReceipt(r *types.RebalanceReceipt) error { return SaveReceipt(r) }

func (Postgres) SaveShareBalance(id types.VaultID, holder string, shares sdkmath.Int) error {
	return SaveShareBalance(id, holder, shares)
}
