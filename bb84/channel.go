package bb84

import (
	"math"
	"math/rand"

	"github.com/qkdsim/bb84/bb84/bitmap"
)

// A perturbation marks, per position, which disturbances the quantum channel
// applies between Alice's preparation and Bob's measurement.
type perturbation struct {
	// Eve marks positions where an intercept-resend attack in the wrong
	// basis randomized the qubit.
	Eve        bitmap.Dense
	BitFlips   bitmap.Dense
	PhaseFlips bitmap.Dense
}

// perturb draws the channel's disturbances for e from r: first Eve's
// interference, then independent bit-flip and phase-flip noise at rate
// AvgErrors/(2*total) each.
func perturb(e Ensemble, p Params, r *rand.Rand) perturbation {
	total := e.Size()
	pt := perturbation{
		Eve:        bitmap.NewDense(nil, total),
		BitFlips:   bitmap.NewDense(nil, total),
		PhaseFlips: bitmap.NewDense(nil, total),
	}
	if p.Eve {
		// Eve learns nothing detectable where she guessed Alice's basis.
		for _, i := range bitmap.Indices(bitmap.XOr(e.EveBases, e.AliceBases)) {
			if r.Float64() < 0.5 {
				pt.Eve.Set(i, true)
			}
		}
	}
	flipProb := noiseFlipProb(p.AvgErrors, total)
	if flipProb == 0 {
		return pt
	}
	for i := 0; i < total; i++ {
		if r.Float64() < flipProb {
			pt.BitFlips.Set(i, true)
		}
		if r.Float64() < flipProb {
			pt.PhaseFlips.Set(i, true)
		}
	}
	return pt
}

// noiseFlipProb splits the per-qubit error probability avgErrors/total evenly
// between the bit-flip and phase-flip channels.
func noiseFlipProb(avgErrors float64, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Min(avgErrors/float64(total)/2, 1)
}
