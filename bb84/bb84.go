// Package bb84 simulates single runs of the BB84 quantum key distribution
// protocol: Alice prepares a random ensemble of qubits, the channel optionally
// carries an intercept-resend eavesdropper and stochastic noise, Bob measures
// in random bases, and the two sift, estimate the QBER on a random check
// sample, and either abort or keep the remaining bits as a raw key.
//
// Information reconciliation and privacy amplification are not implemented:
// an accepted run yields the raw key.
package bb84

import (
	"errors"
	"fmt"
	"math"
)

var (
	DefaultDelta     = 0.2
	DefaultTolerance = 0.11

	// MaxQubits bounds the ensemble size of a single run.
	MaxQubits = 1 << 24
)

var (
	// ErrInvalidParams is wrapped by errors for parameters that are rejected
	// before a run draws any randomness.
	ErrInvalidParams = errors.New("invalid run parameters")

	// ErrBackend is wrapped by errors for runs whose quantum backend failed to
	// produce a usable outcome. It is an infrastructure fault, not a protocol
	// abort.
	ErrBackend = errors.New("quantum backend failure")
)

// A Basis is one of the two conjugate BB84 bases. In bitmaps a 0 bit is Z and
// a 1 bit is X.
type Basis uint8

const (
	// BasisZ is the rectilinear basis {|0>, |1>}.
	BasisZ Basis = iota
	// BasisX is the diagonal basis {|+>, |->}.
	BasisX
)

func (b Basis) String() string {
	if b == BasisX {
		return "X"
	}
	return "Z"
}

func basisOf(bit bool) Basis {
	if bit {
		return BasisX
	}
	return BasisZ
}

// Params packages together the parameters of a single protocol run.
type Params struct {
	// N is the target raw key length. The run retains 2N sifted bits, N of
	// which are sacrificed to estimate the QBER.
	N int

	// Delta is the security margin: Alice prepares ceil((4+Delta)*N) qubits.
	// Defaults to DefaultDelta in the CLI.
	Delta float64

	// Tolerance is the largest acceptable QBER on the check sample.
	Tolerance float64

	// AvgErrors is the expected total number of bit-flip and phase-flip
	// events injected by channel noise across the whole ensemble.
	AvgErrors float64

	// Eve enables an intercept-resend eavesdropper on every qubit.
	Eve bool

	// BobPerfect makes Bob always choose Alice's basis, so sifting discards
	// nothing.
	BobPerfect bool
}

// Total returns the number of qubits Alice prepares, ceil((4+Delta)*N).
func (p Params) Total() int {
	return int(math.Ceil((4 + p.Delta) * float64(p.N)))
}

// Validate returns an error wrapping ErrInvalidParams if p cannot describe a
// run.
func (p Params) Validate() error {
	switch {
	case p.N <= 0:
		return fmt.Errorf("%w: n must be positive, got %d", ErrInvalidParams, p.N)
	case math.IsNaN(p.Delta) || math.IsInf(p.Delta, 0) || p.Delta < 0:
		return fmt.Errorf("%w: delta must be a non-negative number, got %v", ErrInvalidParams, p.Delta)
	case math.IsNaN(p.Tolerance) || p.Tolerance < 0 || p.Tolerance > 1:
		return fmt.Errorf("%w: tolerance must lie in [0, 1], got %v", ErrInvalidParams, p.Tolerance)
	case math.IsNaN(p.AvgErrors) || math.IsInf(p.AvgErrors, 0) || p.AvgErrors < 0:
		return fmt.Errorf("%w: errors must be a non-negative number, got %v", ErrInvalidParams, p.AvgErrors)
	}
	if (4+p.Delta)*float64(p.N) > float64(MaxQubits) {
		return fmt.Errorf("%w: (4+%v)*%d qubits exceeds the limit of %d", ErrInvalidParams, p.Delta, p.N, MaxQubits)
	}
	return nil
}

// A Stage is a state of the per-run protocol state machine:
//
//	Preparing -> Perturbing -> Measuring -> Sifting -> CheckingQBER -> Accepted
//
// with Aborted reachable from Sifting and CheckingQBER.
type Stage int

const (
	StagePreparing Stage = iota
	StagePerturbing
	StageMeasuring
	StageSifting
	StageCheckingQBER
	StageAccepted
	StageAborted
)

var stageNames = [...]string{"preparing", "perturbing", "measuring", "sifting", "checking QBER", "accepted", "aborted"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}
