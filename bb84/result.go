package bb84

import "github.com/qkdsim/bb84/bb84/bitmap"

// A Status tags the outcome of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusAbort   Status = "abort"
	// StatusError marks records of runs that failed for infrastructure
	// reasons. Run never returns a Result with this status.
	StatusError Status = "error"
)

// An AbortKind says why a run aborted.
type AbortKind int

const (
	AbortNone AbortKind = iota
	// AbortInsufficientSifting means fewer than 2n positions survived basis
	// matching.
	AbortInsufficientSifting
	// AbortExcessiveQBER means the check sample's error rate exceeded the
	// tolerance.
	AbortExcessiveQBER
)

func (k AbortKind) String() string {
	switch k {
	case AbortInsufficientSifting:
		return "insufficient sifting"
	case AbortExcessiveQBER:
		return "excessive QBER"
	}
	return "none"
}

// A Result describes the outcome of one protocol run.
type Result struct {
	Params Params
	Status Status
	// Stage is StageAccepted or StageAborted.
	Stage  Stage
	Abort  AbortKind
	Reason string

	TotalQubits int
	SiftedLen   int

	// QBER and CheckMismatches are set once the check sample was compared,
	// i.e. on success and on AbortExcessiveQBER.
	QBER            float64
	CheckMismatches int

	// Retained holds the ensemble positions of the first 2n sifted bits;
	// Check and KeyPositions partition it. Empty on AbortInsufficientSifting.
	Retained     []int
	Check        []int
	KeyPositions []int

	// Key is the raw shared key, Alice's bits at KeyPositions. Empty unless
	// Status is StatusSuccess.
	Key bitmap.Dense

	// Reconciled is always false: no information reconciliation or privacy
	// amplification has been applied to Key.
	Reconciled bool

	Diagnostics Diagnostics
}

// Diagnostics are simulation-only measurements that a real deployment could
// not observe without revealing the key. They never influence a run's
// outcome.
type Diagnostics struct {
	// RealErrorRatio is the fraction of key positions where Alice's and Bob's
	// raw bits differ. Only set on success.
	RealErrorRatio float64

	// EveDisturbed counts the positions Eve's interception randomized.
	EveDisturbed int
	BitFlips     int
	PhaseFlips   int
}

// Accepted reports whether the run produced a key.
func (r Result) Accepted() bool {
	return r.Status == StatusSuccess
}

func (r Result) abort(kind AbortKind, reason string) Result {
	r.Status = StatusAbort
	r.Stage = StageAborted
	r.Abort = kind
	r.Reason = reason
	r.Key = bitmap.Empty()
	return r
}
