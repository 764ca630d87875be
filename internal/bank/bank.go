/*

In-process token movement. Deposits, withdrawals, venue mints and fee
collection all settle through this double-entry surface; the in-memory
implementation backs the daemon and the tests, and the interface is the seam
a chain-backed implementation would fill.

*/

package bank

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/rangevault/rvm/internal/types"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Bank moves coins between named accounts.
type Bank interface {
	Transfer(from, to string, coins sdk.Coins) error
	Balance(account, denom string) sdkmath.Int
}

// Account naming scheme shared by the facade and the venues.

// VaultAccount is the account holding a vault's idle principal and its
// uncollected protocol fees.
func VaultAccount(id types.VaultID) string {
	return fmt.Sprintf("vault/%d", id)
}

// PoolAccount is the account holding a venue pool's deployed principal.
func PoolAccount(venueTag, poolID string) string {
	return fmt.Sprintf("pool/%s/%s", venueTag, poolID)
}

// TreasuryAccount receives collected protocol fees.
const TreasuryAccount = "treasury"

// Memory is the in-memory bank implementation.
type Memory struct {
	mu       sync.RWMutex
	balances map[string]sdk.Coins
}

// NewMemory returns an empty in-memory bank.
func NewMemory() *Memory {
	return &Memory{balances: make(map[string]sdk.Coins)}
}

// Mint credits coins to an account out of thin air. Used to fund deposits in
// tests and to model venue-side LP fee accrual in the reference venue.
func (m *Memory) Mint(account string, coins ...sdk.Coin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = m.balances[account].Add(coins...)
}

// Transfer moves coins between accounts, failing without side effects when
// the source balance does not cover the amount.
func (m *Memory) Transfer(from, to string, coins sdk.Coins) error {
	if from == "" || to == "" {
		return fmt.Errorf("%w: account names are required", types.ErrInvalidParameter)
	}
	if coins.IsZero() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.balances[from]
	for _, c := range coins {
		if src.AmountOf(c.Denom).LT(c.Amount) {
			return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientFunds,
				from, src.AmountOf(c.Denom), c.Denom, c.Amount)
		}
	}
	m.balances[from] = src.Sub(coins...)
	m.balances[to] = m.balances[to].Add(coins...)
	return nil
}

// Balance returns the balance of one denom in an account.
func (m *Memory) Balance(account, denom string) sdkmath.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[account].AmountOf(denom)
}
