package bb84

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/qkdsim/bb84/bb84/bitmap"
	"github.com/qkdsim/bb84/qsim"
)

// Run performs one BB84 run with parameters p, simulating the quantum channel
// on backend and drawing every classical random choice from r.
//
// Protocol aborts are ordinary outcomes and are reported through the Result
// with a nil error. Errors are returned only for invalid parameters (wrapping
// ErrInvalidParams, before anything is drawn from r) and for backend faults
// (wrapping ErrBackend). Given the same seed for r and a deterministic backend,
// Run is deterministic.
func Run(ctx context.Context, p Params, backend qsim.Backend, r *rand.Rand) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if backend == nil {
		return Result{}, fmt.Errorf("%w: no quantum backend", ErrInvalidParams)
	}
	if r == nil {
		return Result{}, errors.New("must provide a randomness source")
	}

	res := Result{Params: p, TotalQubits: p.Total()}

	ens := newEnsemble(res.TotalQubits, p.Eve, p.BobPerfect, r)
	pt := perturb(ens, p, r)
	res.Diagnostics.EveDisturbed = bitmap.CountOnes(pt.Eve)
	res.Diagnostics.BitFlips = bitmap.CountOnes(pt.BitFlips)
	res.Diagnostics.PhaseFlips = bitmap.CountOnes(pt.PhaseFlips)

	outcome, err := measure(ctx, backend, buildCircuit(ens, pt))
	if err != nil {
		return Result{}, fmt.Errorf("%v: %w", StageMeasuring, err)
	}

	sifted := sift(ens)
	res.SiftedLen = len(sifted)
	need := 2 * p.N
	if len(sifted) < need {
		return res.abort(AbortInsufficientSifting,
			fmt.Sprintf("insufficient sifted bits: got %d, need >= %d", len(sifted), need)), nil
	}

	// Keep the first 2n sifted positions, not a random subset.
	res.Retained = sifted[:need:need]
	res.Check, res.KeyPositions = partition(res.Retained, p.N, r)
	res.CheckMismatches = mismatches(ens.Data, outcome, res.Check)
	res.QBER = float64(res.CheckMismatches) / float64(p.N)
	if res.QBER > p.Tolerance {
		return res.abort(AbortExcessiveQBER,
			fmt.Sprintf("QBER exceeds tolerance: %.3f > %v", res.QBER, p.Tolerance)), nil
	}

	res.Key, res.Diagnostics.RealErrorRatio = assembleKey(ens.Data, outcome, res.KeyPositions)
	res.Status = StatusSuccess
	res.Stage = StageAccepted
	return res, nil
}
