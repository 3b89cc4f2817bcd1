package qsim

import (
	"context"
	"math/rand"
)

// A Stabilizer simulates product states of single qubits, each of which is
// always an eigenstate of Z or X. This is exact for circuits built from X, Z, H
// and measurement.
type Stabilizer struct {
	rand *rand.Rand
}

// NewStabilizer returns a Stabilizer drawing measurement outcomes from r.
func NewStabilizer(r *rand.Rand) *Stabilizer {
	return &Stabilizer{rand: r}
}

// pauli is the stabilizer of one qubit: +Z for |0>, -Z for |1>, +X for |+>,
// -X for |->.
type pauli struct {
	xAxis bool
	neg   bool
}

func (s *Stabilizer) Name() string { return "stabilizer" }

// Run implements Backend.
func (s *Stabilizer) Run(ctx context.Context, c *Circuit) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	state := make([]pauli, c.Qubits)
	clbits := make([]bool, c.Qubits)
	for i, op := range c.Ops {
		if err := checkCtx(ctx, i); err != nil {
			return "", err
		}
		q := &state[op.Qubit]
		switch op.Gate {
		case GateX:
			if !q.xAxis {
				q.neg = !q.neg
			}
		case GateZ:
			if q.xAxis {
				q.neg = !q.neg
			}
		case GateH:
			q.xAxis = !q.xAxis
		case GateMeasure:
			bit := q.neg
			if q.xAxis {
				bit = s.rand.Float64() < 0.5
			}
			*q = pauli{neg: bit}
			clbits[op.Qubit] = bit
		}
	}
	return encodeOutcome(clbits), nil
}
