/*

The range registry owns every open range. It is the sole authority over
Range.Liquidity, enforces the per-vault weight-sum invariant at configuration
time, and removes ranges with swap-with-last-and-truncate semantics (no
caller depends on iteration order).

Rebalances run against a staged transaction (Begin/Commit) so a mid-sequence
failure never leaves a partial range mutation in the registry.

*/

package registry

import (
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/rangevault/rvm/internal/types"
)

// Registry is the explicit repository for range records, keyed by range id
// with a per-vault index. No package-level singleton exists; the facade owns
// the instance and passes it where needed.
type Registry struct {
	mu      sync.RWMutex
	byID    map[types.RangeID]*types.Range
	byVault map[types.VaultID][]*types.Range
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byID:    make(map[types.RangeID]*types.Range),
		byVault: make(map[types.VaultID][]*types.Range),
	}
}

// Append adds a new range. The id must be unique across all vaults.
func (r *Registry) Append(rg *types.Range) error {
	if rg == nil {
		return types.ErrInvalidParameter
	}
	if err := rg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(rg)
}

func (r *Registry) appendLocked(rg *types.Range) error {
	if rg.ID == "" {
		rg.ID = types.NewRangeID(rg.VaultID, rg.PoolID, rg.LowerTick, rg.UpperTick)
	}
	if _, dup := r.byID[rg.ID]; dup {
		return fmt.Errorf("%w: range %s already open", types.ErrInvalidParameter, rg.ID)
	}
	if err := r.checkWeightLocked(rg.VaultID, rg); err != nil {
		return err
	}
	r.byID[rg.ID] = rg
	r.byVault[rg.VaultID] = append(r.byVault[rg.VaultID], rg)
	return nil
}

// Get returns the range with the given id.
func (r *Registry) Get(id types.RangeID) (*types.Range, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rg, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: range %s", types.ErrNotFound, id)
	}
	return rg, nil
}

// VaultRanges returns a snapshot of a vault's ranges. The slice is a copy;
// the records themselves are shared and must only be mutated through the
// registry.
func (r *Registry) VaultRanges(v types.VaultID) []*types.Range {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.byVault[v]
	out := make([]*types.Range, len(src))
	copy(out, src)
	return out
}

// Remove deletes a range, moving the last element of the vault's slice into
// the vacated slot and truncating.
func (r *Registry) Remove(id types.RangeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

func (r *Registry) removeLocked(id types.RangeID) error {
	rg, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: range %s", types.ErrNotFound, id)
	}
	delete(r.byID, id)
	list := r.byVault[rg.VaultID]
	for i, cur := range list {
		if cur.ID == id {
			last := len(list) - 1
			list[i] = list[last]
			list[last] = nil
			r.byVault[rg.VaultID] = list[:last]
			break
		}
	}
	if len(r.byVault[rg.VaultID]) == 0 {
		delete(r.byVault, rg.VaultID)
	}
	return nil
}

// SetLiquidity mutates a range's liquidity. Every liquidity change in the
// system funnels through here (or through a staged transaction).
func (r *Registry) SetLiquidity(id types.RangeID, liquidity sdkmath.Int) error {
	if liquidity.IsNil() || liquidity.IsNegative() {
		return fmt.Errorf("%w: liquidity must be non-negative", types.ErrInvalidParameter)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rg, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: range %s", types.ErrNotFound, id)
	}
	rg.Liquidity = liquidity
	return nil
}

// SetWeights updates target weights for a vault's ranges in one shot. The
// weight sum must stay strictly below 100%; a violating call changes nothing.
func (r *Registry) SetWeights(v types.VaultID, weights map[types.RangeID]uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sum uint64
	for _, rg := range r.byVault[v] {
		w, ok := weights[rg.ID]
		if !ok {
			w = rg.WeightBps
		}
		sum += w
	}
	if sum >= types.BpsDenominator {
		return types.NewExceedsUint64("range weight sum", sum, types.BpsDenominator-1)
	}
	for id, w := range weights {
		rg, ok := r.byID[id]
		if !ok || rg.VaultID != v {
			return fmt.Errorf("%w: range %s on vault %d", types.ErrNotFound, id, v)
		}
		rg.WeightBps = w
	}
	return nil
}

// checkWeightLocked verifies the weight-sum invariant with rg counted in.
// rg may replace an existing entry with the same id (staged commits).
func (r *Registry) checkWeightLocked(v types.VaultID, rg *types.Range) error {
	sum := rg.WeightBps
	for _, cur := range r.byVault[v] {
		if cur.ID == rg.ID {
			continue
		}
		sum += cur.WeightBps
	}
	if sum >= types.BpsDenominator {
		return types.NewExceedsUint64("range weight sum", sum, types.BpsDenominator-1)
	}
	return nil
}
