package qsim

import (
	"context"
	"math"
	"math/rand"
)

// A Statevector simulates each qubit's complex amplitudes directly. Circuits
// contain no entangling gates, so the register is always a product state and
// is stored as one amplitude pair per qubit.
type Statevector struct {
	rand *rand.Rand
}

// NewStatevector returns a Statevector drawing measurement outcomes from r.
func NewStatevector(r *rand.Rand) *Statevector {
	return &Statevector{rand: r}
}

// probEpsilon absorbs rounding left behind by repeated Hadamards.
const probEpsilon = 1e-12

type amplitudes [2]complex128

func (s *Statevector) Name() string { return "statevector" }

// Run implements Backend.
func (s *Statevector) Run(ctx context.Context, c *Circuit) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	state := make([]amplitudes, c.Qubits)
	for i := range state {
		state[i] = amplitudes{1, 0}
	}
	clbits := make([]bool, c.Qubits)
	h := complex(1/math.Sqrt2, 0)
	for i, op := range c.Ops {
		if err := checkCtx(ctx, i); err != nil {
			return "", err
		}
		a := &state[op.Qubit]
		switch op.Gate {
		case GateX:
			a[0], a[1] = a[1], a[0]
		case GateZ:
			a[1] = -a[1]
		case GateH:
			a[0], a[1] = h*(a[0]+a[1]), h*(a[0]-a[1])
		case GateMeasure:
			bit := s.sample(prob1(*a))
			if bit {
				*a = amplitudes{0, 1}
			} else {
				*a = amplitudes{1, 0}
			}
			clbits[op.Qubit] = bit
		}
	}
	return encodeOutcome(clbits), nil
}

func (s *Statevector) sample(p1 float64) bool {
	switch {
	case p1 < probEpsilon:
		return false
	case p1 > 1-probEpsilon:
		return true
	case math.Abs(p1-0.5) < probEpsilon:
		p1 = 0.5
	}
	return s.rand.Float64() < p1
}

func prob1(a amplitudes) float64 {
	return real(a[1])*real(a[1]) + imag(a[1])*imag(a[1])
}
