/*

The planner turns pool state into rebalance plans for the keeper: ranges the
price has escaped are closed and reopened centered on the current tick, and a
vault with idle funds and no open ranges gets an initial placement. The
planner only proposes; the facade and engine enforce.

*/

package planner

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rangevault/rvm/internal/config"
	"github.com/rangevault/rvm/internal/logger"
	"github.com/rangevault/rvm/internal/registry"
	"github.com/rangevault/rvm/internal/types"
	"github.com/rangevault/rvm/internal/venue"
)

// Planner builds rebalance plans for one managed pool.
type Planner struct {
	venues   *venue.Registry
	ranges   *registry.Registry
	venueTag string
	poolID   string
	log      zerolog.Logger
}

// New creates a planner bound to one venue pool.
func New(venues *venue.Registry, ranges *registry.Registry, venueTag, poolID string) *Planner {
	return &Planner{
		venues:   venues,
		ranges:   ranges,
		venueTag: venueTag,
		poolID:   poolID,
		log:      logger.GetForComponent("planner"),
	}
}

// BuildPlan proposes the next rebalance for the vault. A nil plan with no
// error means nothing needs to move.
func (p *Planner) BuildPlan(v *types.Vault) (*types.RebalancePlan, error) {
	a, err := p.venues.Resolve(p.venueTag)
	if err != nil {
		return nil, err
	}
	_, tick, err := a.PriceAndTick(p.poolID)
	if err != nil {
		return nil, fmt.Errorf("%w: price %s: %w", types.ErrAdapterCallFailed, p.poolID, err)
	}
	spacing, err := a.TickSpacing(p.poolID)
	if err != nil {
		return nil, err
	}

	plan := &types.RebalancePlan{VaultID: v.ID}
	open := p.ranges.VaultRanges(v.ID)

	if len(open) == 0 {
		if v.IdleA.IsZero() && v.IdleB.IsZero() {
			return nil, nil
		}
		lower, upper := centeredBounds(tick, config.DefaultRangeWidthTicks, spacing)
		plan.Opens = append(plan.Opens, types.OpenInstruction{
			Venue:     p.venueTag,
			PoolID:    p.poolID,
			LowerTick: lower,
			UpperTick: upper,
			WeightBps: config.DefaultRangeWeightBps,
		})
		p.log.Info().
			Uint64("vault", uint64(v.ID)).
			Int32("lower", lower).
			Int32("upper", upper).
			Msg("Proposing initial range placement")
		return plan, nil
	}

	for _, rg := range open {
		if rg.PoolID != p.poolID || rg.Venue != p.venueTag {
			continue
		}
		if tick >= rg.LowerTick && tick < rg.UpperTick {
			continue
		}
		width := rg.UpperTick - rg.LowerTick
		lower, upper := centeredBounds(tick, width, spacing)
		if lower == rg.LowerTick && upper == rg.UpperTick {
			continue
		}
		plan.Closes = append(plan.Closes, types.CloseInstruction{RangeID: rg.ID})
		plan.Opens = append(plan.Opens, types.OpenInstruction{
			Venue:     p.venueTag,
			PoolID:    p.poolID,
			LowerTick: lower,
			UpperTick: upper,
			WeightBps: rg.WeightBps,
		})
		p.log.Info().
			Uint64("vault", uint64(v.ID)).
			Str("range", string(rg.ID)).
			Int32("tick", tick).
			Int32("newLower", lower).
			Int32("newUpper", upper).
			Msg("Proposing range recentre")
	}

	if plan.IsEmpty() {
		return nil, nil
	}
	return plan, nil
}

// centeredBounds returns spacing-aligned bounds of the given width centered
// on the tick. Width is rounded up to a whole number of spacings.
func centeredBounds(tick, width, spacing int32) (int32, int32) {
	if spacing <= 0 {
		spacing = 1
	}
	if width < spacing {
		width = spacing
	}
	if rem := width % spacing; rem != 0 {
		width += spacing - rem
	}
	lower := alignDown(tick-width/2, spacing)
	return lower, lower + width
}

// alignDown floors the tick to a multiple of spacing, correct for negatives.
func alignDown(tick, spacing int32) int32 {
	aligned := (tick / spacing) * spacing
	if tick < 0 && tick%spacing != 0 {
		aligned -= spacing
	}
	return aligned
}
