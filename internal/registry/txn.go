package registry

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/rangevault/rvm/internal/types"
)

// Txn is a staged view of one vault's ranges. All mutations land on deep
// copies; Commit replaces the vault's live set atomically under the registry
// lock, and dropping the Txn without committing discards everything.
//
// The caller must hold the vault's exclusive lock for the Txn's lifetime; the
// registry does not serialize concurrent transactions on the same vault.
type Txn struct {
	reg       *Registry
	vaultID   types.VaultID
	ranges    []*types.Range
	byID      map[types.RangeID]*types.Range
	committed bool
}

// Begin stages a transaction over the vault's current ranges.
func (r *Registry) Begin(v types.VaultID) *Txn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t := &Txn{
		reg:     r,
		vaultID: v,
		byID:    make(map[types.RangeID]*types.Range),
	}
	for _, rg := range r.byVault[v] {
		cp := rg.Clone()
		t.ranges = append(t.ranges, cp)
		t.byID[cp.ID] = cp
	}
	return t
}

// Get returns the staged range with the given id.
func (t *Txn) Get(id types.RangeID) (*types.Range, error) {
	rg, ok := t.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: range %s", types.ErrNotFound, id)
	}
	return rg, nil
}

// Ranges returns the staged range set.
func (t *Txn) Ranges() []*types.Range {
	out := make([]*types.Range, len(t.ranges))
	copy(out, t.ranges)
	return out
}

// Remove deletes a staged range (swap-with-last-and-truncate).
func (t *Txn) Remove(id types.RangeID) error {
	if _, ok := t.byID[id]; !ok {
		return fmt.Errorf("%w: range %s", types.ErrNotFound, id)
	}
	delete(t.byID, id)
	for i, cur := range t.ranges {
		if cur.ID == id {
			last := len(t.ranges) - 1
			t.ranges[i] = t.ranges[last]
			t.ranges[last] = nil
			t.ranges = t.ranges[:last]
			break
		}
	}
	return nil
}

// Append stages a new range for the vault.
func (t *Txn) Append(rg *types.Range) error {
	if rg == nil || rg.VaultID != t.vaultID {
		return types.ErrInvalidParameter
	}
	if err := rg.Validate(); err != nil {
		return err
	}
	if rg.ID == "" {
		rg.ID = types.NewRangeID(rg.VaultID, rg.PoolID, rg.LowerTick, rg.UpperTick)
	}
	if _, dup := t.byID[rg.ID]; dup {
		return fmt.Errorf("%w: range %s already open", types.ErrInvalidParameter, rg.ID)
	}
	var sum uint64
	for _, cur := range t.ranges {
		sum += cur.WeightBps
	}
	if sum+rg.WeightBps >= types.BpsDenominator {
		return types.NewExceedsUint64("range weight sum", sum+rg.WeightBps, types.BpsDenominator-1)
	}
	cp := rg.Clone()
	t.ranges = append(t.ranges, cp)
	t.byID[cp.ID] = cp
	return nil
}

// SetLiquidity mutates a staged range's liquidity.
func (t *Txn) SetLiquidity(id types.RangeID, liquidity sdkmath.Int) error {
	rg, ok := t.byID[id]
	if !ok {
		return fmt.Errorf("%w: range %s", types.ErrNotFound, id)
	}
	if liquidity.IsNil() || liquidity.IsNegative() {
		return fmt.Errorf("%w: liquidity must be non-negative", types.ErrInvalidParameter)
	}
	rg.Liquidity = liquidity
	return nil
}

// Commit replaces the vault's live range set with the staged one. A Txn can
// commit at most once.
func (t *Txn) Commit() error {
	if t.committed {
		return fmt.Errorf("%w: transaction already committed", types.ErrInvalidParameter)
	}
	t.reg.mu.Lock()
	defer t.reg.mu.Unlock()

	for _, rg := range t.reg.byVault[t.vaultID] {
		delete(t.reg.byID, rg.ID)
	}
	delete(t.reg.byVault, t.vaultID)

	for _, rg := range t.ranges {
		t.reg.byID[rg.ID] = rg
	}
	if len(t.ranges) > 0 {
		live := make([]*types.Range, len(t.ranges))
		copy(live, t.ranges)
		t.reg.byVault[t.vaultID] = live
	}
	t.committed = true
	return nil
}
