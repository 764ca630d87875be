/*

Reference implementations of the external collaborators. Role storage,
pause flags and the treasury are out of scope for the core accounting; these
in-process stand-ins back the daemon and the tests, and deployments with real
governance swap them out at the facade boundary.

*/

package vault

import (
	"fmt"
	"sync"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/rangevault/rvm/internal/logger"
	"github.com/rangevault/rvm/internal/types"
)

// StaticRoles is an in-memory role table.
type StaticRoles struct {
	mu    sync.RWMutex
	roles map[string]map[string]struct{} // role -> callers
}

// NewStaticRoles builds a role table from role -> caller lists.
func NewStaticRoles(grants map[string][]string) *StaticRoles {
	r := &StaticRoles{roles: make(map[string]map[string]struct{})}
	for role, callers := range grants {
		set := make(map[string]struct{}, len(callers))
		for _, c := range callers {
			set[c] = struct{}{}
		}
		r.roles[role] = set
	}
	return r
}

// Grant adds a caller to a role.
func (r *StaticRoles) Grant(caller, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roles[role] == nil {
		r.roles[role] = make(map[string]struct{})
	}
	r.roles[role][caller] = struct{}{}
}

// RequireRole implements AccessController.
func (r *StaticRoles) RequireRole(caller, role string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.roles[role][caller]; !ok {
		return fmt.Errorf("caller %q lacks role %q", caller, role)
	}
	return nil
}

// PauseSwitch is an in-memory pause flag per vault.
type PauseSwitch struct {
	mu     sync.RWMutex
	paused map[types.VaultID]bool
}

// NewPauseSwitch returns a switch with every vault running.
func NewPauseSwitch() *PauseSwitch {
	return &PauseSwitch{paused: make(map[types.VaultID]bool)}
}

// SetPaused flips the flag for one vault.
func (p *PauseSwitch) SetPaused(id types.VaultID, paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused[id] = paused
}

// IsPaused implements PauseProbe.
func (p *PauseSwitch) IsPaused(id types.VaultID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[id]
}

// LoggingTreasury acknowledges fee payouts. The tokens themselves land in
// the treasury bank account; this collaborator only observes.
type LoggingTreasury struct{}

// Receive implements the treasury contract.
func (LoggingTreasury) Receive(amountA, amountB sdk.Coin) error {
	log := logger.GetForComponent("treasury")
	log.Info().
		Str("amountA", amountA.String()).
		Str("amountB", amountB.String()).
		Msg("Fees received")
	return nil
}

// RejectSwaps is the swap executor for deployments that never route swaps:
// any swap instruction aborts the plan.
type RejectSwaps struct{}

// ExecuteSwap implements rebalance.SwapExecutor.
func (RejectSwaps) ExecuteSwap(target string, payload []byte) error {
	return fmt.Errorf("swap routing is not configured (target %s)", target)
}
