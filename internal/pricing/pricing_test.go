package pricing

import (
	"errors"
	"math"
	"testing"
)

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestPriceAndGreeksATM(t *testing.T) {
	p := Params{Spot: 100, Strike: 100, Years: 1, Vol: 0.2, Call: true}
	if got := Price(p); !near(got, 7.965567455405804, 1e-9) {
		t.Fatalf("call price %f", got)
	}
	if got := Delta(p); !near(got, 0.539827837277029, 1e-9) {
		t.Fatalf("call delta %f", got)
	}
	if got := Gamma(p); !near(got, 0.01984762737385059, 1e-9) {
		t.Fatalf("gamma %f", got)
	}
	if got := Vega(p); !near(got, 39.69525474770118, 1e-8) {
		t.Fatalf("vega %f", got)
	}
	put := p
	put.Call = false
	if got := Delta(put); !near(got, -0.460172162722971, 1e-9) {
		t.Fatalf("put delta %f", got)
	}
	if got := Price(put); !near(got, 7.965567455405804, 1e-9) {
		t.Fatalf("put price %f", got)
	}
}

func TestPriceWithRate(t *testing.T) {
	p := Params{Spot: 100, Strike: 100, Years: 1, Rate: 0.05, Vol: 0.2, Call: true}
	if got := Price(p); !near(got, 10.450583572185565, 1e-9) {
		t.Fatalf("call price %f", got)
	}
	if got := Delta(p); !near(got, 0.6368306511756191, 1e-9) {
		t.Fatalf("call delta %f", got)
	}
	put := p
	put.Call = false
	parity := Price(p) - Price(put) - (p.Spot - p.Strike*math.Exp(-p.Rate*p.Years))
	if !near(parity, 0, 1e-9) {
		t.Fatalf("put-call parity off by %g", parity)
	}
}

func TestGreeksMatchFiniteDifferences(t *testing.T) {
	p := Params{Spot: 60000, Strike: 65000, Years: 0.25, Rate: 0.01, Dividend: 0.02, Vol: 0.6, Call: true}
	h := 1e-3
	up, dn := p, p
	up.Spot += h
	dn.Spot -= h
	if fd := (Price(up) - Price(dn)) / (2 * h); !near(fd, Delta(p), 1e-5) {
		t.Fatalf("delta %f vs fd %f", Delta(p), fd)
	}
	vu, vd := p, p
	vu.Vol += 1e-5
	vd.Vol -= 1e-5
	if fd := (Delta(vu) - Delta(vd)) / 2e-5; !near(fd, Vanna(p), 1e-5) {
		t.Fatalf("vanna %f vs fd %f", Vanna(p), fd)
	}
	tu, td := p, p
	tu.Years += 1e-6
	td.Years -= 1e-6
	if fd := -(Delta(tu) - Delta(td)) / 2e-6; !near(fd, Charm(p), 1e-4) {
		t.Fatalf("charm %f vs fd %f", Charm(p), fd)
	}
}

func TestImpliedVolRoundTrip(t *testing.T) {
	for _, vol := range []float64{0.1, 0.3, 0.8, 2.5} {
		for _, call := range []bool{true, false} {
			p := Params{Spot: 60000, Strike: 58000, Years: 0.1, Vol: vol, Call: call}
			target := Price(p)
			got, err := ImpliedVol(target, p)
			if err != nil {
				t.Fatalf("vol %f call %v: %v", vol, call, err)
			}
			p.Vol = got
			if !near(Price(p), target, 1e-7) {
				t.Fatalf("vol %f call %v: recovered %f reprices to %f, want %f", vol, call, got, Price(p), target)
			}
		}
	}
}

func TestImpliedVolRejectsArbitrage(t *testing.T) {
	p := Params{Spot: 100, Strike: 100, Years: 1, Call: true}
	if _, err := ImpliedVol(150, p); !errors.Is(err, ErrNoSolution) {
		t.Fatalf("expected no solution above spot, got %v", err)
	}
	p.Years = 0
	if _, err := ImpliedVol(5, p); !errors.Is(err, ErrNoSolution) {
		t.Fatalf("expected no solution for expired option, got %v", err)
	}
}
