package analysis

import (
	"math"

	"github.com/qkdsim/bb84/bb84"
	"gonum.org/v1/gonum/stat/distuv"
)

// Expectation is the analytic abort probability of a parameter set.
type Expectation struct {
	// BitError is the probability that a sifted position disagrees.
	BitError float64
	// Sifting is P(fewer than 2n positions survive sifting).
	Sifting float64
	// QBER is P(the check sample exceeds the tolerance), given that sifting
	// succeeded.
	QBER float64
	// Abort is the overall abort probability.
	Abort float64
}

// ExpectedAbortRate evaluates the analytic model of a run. Every sifted
// position is independently in error with probability q = a + e - 2ae, where
// a = min(avgErrors/total/2, 1) is the noise flip that affects the shared
// basis and e = 1/4 is Eve's intercept-resend disturbance.
func ExpectedAbortRate(p bb84.Params) (Expectation, error) {
	if err := p.Validate(); err != nil {
		return Expectation{}, err
	}
	total := p.Total()
	a := math.Min(p.AvgErrors/float64(total)/2, 1)
	var e float64
	if p.Eve {
		e = 0.25
	}
	ex := Expectation{BitError: a + e - 2*a*e}

	if !p.BobPerfect {
		sifted := distuv.Binomial{N: float64(total), P: 0.5}
		ex.Sifting = sifted.CDF(float64(2*p.N - 1))
	}

	accept := maxAcceptedMismatches(p.N, p.Tolerance)
	switch {
	case ex.BitError == 0:
		ex.QBER = 0
	case ex.BitError == 1:
		ex.QBER = 1
		if accept >= p.N {
			ex.QBER = 0
		}
	default:
		mismatches := distuv.Binomial{N: float64(p.N), P: ex.BitError}
		ex.QBER = 1 - mismatches.CDF(float64(accept))
	}
	ex.Abort = ex.Sifting + (1-ex.Sifting)*ex.QBER
	return ex, nil
}

// maxAcceptedMismatches is the largest mismatch count m whose QBER m/n does
// not exceed tolerance, computed with the same float comparison a run makes.
func maxAcceptedMismatches(n int, tolerance float64) int {
	m := 0
	for m < n && float64(m+1)/float64(n) <= tolerance {
		m++
	}
	return m
}
