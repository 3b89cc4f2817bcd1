package bb84

import (
	"context"
	"fmt"

	"github.com/qkdsim/bb84/bb84/bitmap"
	"github.com/qkdsim/bb84/qsim"
)

// buildCircuit translates a perturbed ensemble into one circuit, qubit i
// carrying position i: Alice's preparation, Eve's interference, bit-flip
// noise, phase-flip noise, Bob's basis rotation and readout, in that order.
func buildCircuit(e Ensemble, pt perturbation) *qsim.Circuit {
	total := e.Size()
	c := qsim.NewCircuit(fmt.Sprintf("BB84-%dq", total), total)
	for i := 0; i < total; i++ {
		if e.Data.Get(i) {
			c.X(i)
		}
		if e.AliceBasis(i) == BasisX {
			c.H(i)
		}
		if pt.Eve.Get(i) {
			// Rotate into Eve's basis, flip her eigenstate, rotate back.
			c.H(i)
			if e.EveBasis(i) == BasisZ {
				c.X(i)
			} else {
				c.Z(i)
			}
			c.H(i)
		}
		if pt.BitFlips.Get(i) {
			c.X(i)
		}
		if pt.PhaseFlips.Get(i) {
			c.Z(i)
		}
		if e.BobBasis(i) == BasisX {
			c.H(i)
		}
		c.Measure(i)
	}
	return c
}

// measure runs c once on b and decodes Bob's outcomes into index order.
func measure(ctx context.Context, b qsim.Backend, c *qsim.Circuit) (bitmap.Dense, error) {
	out, err := b.Run(ctx, c)
	if err != nil {
		return bitmap.Empty(), fmt.Errorf("%w: %s: %w", ErrBackend, b.Name(), err)
	}
	bits, err := decodeOutcome(out, c.Qubits)
	if err != nil {
		return bitmap.Empty(), fmt.Errorf("%w: %s: %v", ErrBackend, b.Name(), err)
	}
	return bits, nil
}

// decodeOutcome converts a backend register string, highest classical bit
// first, into a bitmap whose bit i is the outcome of qubit i.
func decodeOutcome(out string, total int) (bitmap.Dense, error) {
	if len(out) != total {
		return bitmap.Empty(), fmt.Errorf("outcome has %d bits, want %d", len(out), total)
	}
	bits := bitmap.NewDense(nil, total)
	for i := 0; i < total; i++ {
		switch out[total-1-i] {
		case '1':
			bits.Set(i, true)
		case '0':
		default:
			return bitmap.Empty(), fmt.Errorf("outcome contains %q at bit %d", out[total-1-i], i)
		}
	}
	return bits, nil
}
