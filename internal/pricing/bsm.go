// Package pricing implements Black-Scholes-Merton valuation with a
// continuous cost of carry b = r - q, and an implied volatility solver.
package pricing

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Params describes one European option. Years is time to expiry on a
// 365-day year; Rate and Dividend are continuously compounded.
type Params struct {
	Spot     float64
	Strike   float64
	Years    float64
	Rate     float64
	Dividend float64
	Vol      float64
	Call     bool
}

func (p Params) carry() float64 {
	return p.Rate - p.Dividend
}

// carryDiscount is e^{(b-r)T}.
func (p Params) carryDiscount() float64 {
	return math.Exp((p.carry() - p.Rate) * p.Years)
}

func (p Params) discount() float64 {
	return math.Exp(-p.Rate * p.Years)
}

func D1D2(p Params) (float64, float64) {
	sqrtT := math.Sqrt(p.Years)
	d1 := (math.Log(p.Spot/p.Strike) + (p.carry()+p.Vol*p.Vol/2)*p.Years) / (p.Vol * sqrtT)
	return d1, d1 - p.Vol*sqrtT
}

func Price(p Params) float64 {
	d1, d2 := D1D2(p)
	n := distuv.UnitNormal
	if p.Call {
		return p.Spot*p.carryDiscount()*n.CDF(d1) - p.Strike*p.discount()*n.CDF(d2)
	}
	return p.Strike*p.discount()*n.CDF(-d2) - p.Spot*p.carryDiscount()*n.CDF(-d1)
}

func Delta(p Params) float64 {
	d1, _ := D1D2(p)
	if p.Call {
		return p.carryDiscount() * distuv.UnitNormal.CDF(d1)
	}
	return p.carryDiscount() * (distuv.UnitNormal.CDF(d1) - 1)
}

func Gamma(p Params) float64 {
	d1, _ := D1D2(p)
	return p.carryDiscount() * distuv.UnitNormal.Prob(d1) / (p.Spot * p.Vol * math.Sqrt(p.Years))
}

// Vega is per unit of volatility (not per vol point).
func Vega(p Params) float64 {
	d1, _ := D1D2(p)
	return p.Spot * p.carryDiscount() * distuv.UnitNormal.Prob(d1) * math.Sqrt(p.Years)
}

func Rho(p Params) float64 {
	_, d2 := D1D2(p)
	k := p.Strike * p.Years * p.discount()
	if p.Call {
		return k * distuv.UnitNormal.CDF(d2)
	}
	return -k * distuv.UnitNormal.CDF(-d2)
}

// Vanna is dDelta/dVol.
func Vanna(p Params) float64 {
	d1, d2 := D1D2(p)
	return -p.carryDiscount() * distuv.UnitNormal.Prob(d1) * d2 / p.Vol
}

// Charm is the change in delta per year of elapsed time.
func Charm(p Params) float64 {
	d1, d2 := D1D2(p)
	n := distuv.UnitNormal
	b := p.carry()
	sqrtT := math.Sqrt(p.Years)
	common := n.Prob(d1) * (b/(p.Vol*sqrtT) - d2/(2*p.Years))
	if p.Call {
		return -p.carryDiscount() * (common + (b-p.Rate)*n.CDF(d1))
	}
	return -p.carryDiscount() * (common - (b-p.Rate)*n.CDF(-d1))
}

// Greeks bundles every sensitivity for one parameter set.
type Greeks struct {
	Price float64
	Delta float64
	Gamma float64
	Vega  float64
	Rho   float64
	Vanna float64
	Charm float64
}

func Evaluate(p Params) Greeks {
	return Greeks{
		Price: Price(p),
		Delta: Delta(p),
		Gamma: Gamma(p),
		Vega:  Vega(p),
		Rho:   Rho(p),
		Vanna: Vanna(p),
		Charm: Charm(p),
	}
}
