/*

This file contains the range record: one bounded concentrated-liquidity
position owned by a vault on some venue. Range identifiers are derived
deterministically so the same (vault, pool, bounds) tuple always maps to the
same id and distinct tuples never collide.

*/

package types

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	sdkmath "cosmossdk.io/math"
)

// RangeID is the hex encoding of a SHA-256 digest over the identifying tuple.
type RangeID string

// NewRangeID derives the deterministic identifier for a range from its vault,
// venue pool and tick bounds.
func NewRangeID(vault VaultID, poolID string, lowerTick, upperTick int32) RangeID {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(vault))
	h.Write(buf[:])
	h.Write([]byte(poolID))
	binary.BigEndian.PutUint32(buf[:4], uint32(lowerTick))
	h.Write(buf[:4])
	binary.BigEndian.PutUint32(buf[:4], uint32(upperTick))
	h.Write(buf[:4])
	return RangeID(hex.EncodeToString(h.Sum(nil)))
}

// Range is one open position. The Range Registry is the sole authority over
// Liquidity; everything else is fixed at open time except PositionID, which
// the venue assigns on mint.
type Range struct {
	ID      RangeID `json:"id"`
	VaultID VaultID `json:"vault_id"`

	Venue      string `json:"venue"`       // adapter registry tag
	PoolID     string `json:"pool_id"`     // venue pool identifier
	PositionID string `json:"position_id"` // venue-specific, set on mint

	WeightBps uint64      `json:"weight_bps"`
	Liquidity sdkmath.Int `json:"liquidity"`

	LowerTick int32 `json:"lower_tick"`
	UpperTick int32 `json:"upper_tick"`
}

// Validate checks the structural invariants of a range record.
func (r *Range) Validate() error {
	if r.VaultID == ProtocolVaultID {
		return ErrInvalidParameter
	}
	if r.Venue == "" || r.PoolID == "" {
		return ErrInvalidParameter
	}
	if r.LowerTick >= r.UpperTick {
		return ErrInvalidParameter
	}
	if r.WeightBps >= BpsDenominator {
		return NewExceedsUint64("range weight", r.WeightBps, BpsDenominator-1)
	}
	return nil
}

// Clone returns an independent copy of the range.
func (r *Range) Clone() *Range {
	cp := *r
	return &cp
}
