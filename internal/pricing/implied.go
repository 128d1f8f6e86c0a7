package pricing

import (
	"errors"
	"fmt"
	"math"
)

var ErrNoSolution = errors.New("implied volatility has no solution")

const (
	minVol        = 1e-6
	maxVol        = 10.0
	priceTol      = 1e-10
	maxIterations = 200
)

// ImpliedVol finds the volatility at which the model price of p equals
// target. p.Vol is ignored. Newton steps are used while they stay inside the
// current bracket, bisection otherwise.
func ImpliedVol(target float64, p Params) (float64, error) {
	if p.Years <= 0 {
		return 0, fmt.Errorf("%w: expired option", ErrNoSolution)
	}
	if p.Spot <= 0 || p.Strike <= 0 || math.IsNaN(target) || target <= 0 {
		return 0, fmt.Errorf("%w: non-positive input", ErrNoSolution)
	}
	lower, upper := priceBounds(p)
	slack := 1e-12 * upper
	if target < lower-slack || target > upper+slack {
		return 0, fmt.Errorf("%w: target %g outside [%g, %g]", ErrNoSolution, target, lower, upper)
	}

	lo, hi := minVol, maxVol
	priceAt := func(vol float64) float64 {
		q := p
		q.Vol = vol
		return Price(q)
	}
	if target < priceAt(lo)-priceTol || target > priceAt(hi)+priceTol {
		return 0, fmt.Errorf("%w: target %g outside search range", ErrNoSolution, target)
	}

	vol := 0.5
	for i := 0; i < maxIterations; i++ {
		q := p
		q.Vol = vol
		diff := Price(q) - target
		if math.Abs(diff) < priceTol {
			return vol, nil
		}
		if diff > 0 {
			hi = vol
		} else {
			lo = vol
		}
		next := lo + (hi-lo)/2
		if v := Vega(q); v > 1e-12 {
			if step := vol - diff/v; step > lo && step < hi {
				next = step
			}
		}
		if hi-lo < 1e-15 {
			return next, nil
		}
		vol = next
	}
	return vol, nil
}

// priceBounds are the no-arbitrage limits for a European option.
func priceBounds(p Params) (float64, float64) {
	fwdSpot := p.Spot * p.carryDiscount()
	pvStrike := p.Strike * p.discount()
	if p.Call {
		return math.Max(fwdSpot-pvStrike, 0), fwdSpot
	}
	return math.Max(pvStrike-fwdSpot, 0), pvStrike
}
