package bb84

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/qkdsim/bb84/bb84/bitmap"
	"github.com/qkdsim/bb84/qsim"
)

func runSeeded(t *testing.T, p Params, seed int64) Result {
	t.Helper()
	backend, err := qsim.New("stabilizer", seed^0x5eed)
	if err != nil {
		t.Fatalf("building backend: %v", err)
	}
	res, err := Run(context.Background(), p, backend, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("Run(%+v) seed %d: %v", p, seed, err)
	}
	return res
}

func TestRunCleanChannelScenario(t *testing.T) {
	p := Params{N: 16, Delta: 0.2, Tolerance: 0.11}
	var successes int
	for seed := int64(1); seed <= 20; seed++ {
		res := runSeeded(t, p, seed)
		if res.TotalQubits != 68 {
			t.Fatalf("TotalQubits == %d, want 68", res.TotalQubits)
		}
		if !res.Accepted() {
			// The only way a noiseless, unobserved run may fail is sifting.
			if res.Abort != AbortInsufficientSifting {
				t.Errorf("seed %d: clean channel aborted with %v: %s", seed, res.Abort, res.Reason)
			}
			continue
		}
		successes++
		if res.QBER != 0 || res.CheckMismatches != 0 {
			t.Errorf("seed %d: QBER %v on a clean channel", seed, res.QBER)
		}
		if res.Key.Size() != 16 {
			t.Errorf("seed %d: key length %d, want 16", seed, res.Key.Size())
		}
		if res.Diagnostics.RealErrorRatio != 0 {
			t.Errorf("seed %d: real error ratio %v on a clean channel", seed, res.Diagnostics.RealErrorRatio)
		}
		if res.Reconciled {
			t.Errorf("seed %d: key claims to be reconciled", seed)
		}
		if res.Stage != StageAccepted || res.Status != StatusSuccess {
			t.Errorf("seed %d: accepted run in stage %v with status %s", seed, res.Stage, res.Status)
		}
	}
	if successes == 0 {
		t.Errorf("no clean run out of 20 succeeded")
	}
}

func TestRunEveScenario(t *testing.T) {
	p := Params{N: 16, Delta: 0.2, Tolerance: 0.11, Eve: true}
	const trials = 200
	var qberAborts, checked int
	var qberSum float64
	for seed := int64(1); seed <= trials; seed++ {
		res := runSeeded(t, p, seed)
		if res.Abort == AbortExcessiveQBER {
			qberAborts++
			if !strings.Contains(res.Reason, "QBER") {
				t.Errorf("seed %d: reason %q does not mention QBER", seed, res.Reason)
			}
		}
		if res.Abort != AbortInsufficientSifting {
			checked++
			qberSum += res.QBER
		}
	}
	if qberAborts <= trials/2 {
		t.Errorf("only %d of %d eavesdropped runs aborted on QBER", qberAborts, trials)
	}
	if mean := qberSum / float64(checked); mean < 0.2 || mean > 0.3 {
		t.Errorf("mean QBER under intercept-resend == %v, want about 0.25", mean)
	}
}

func TestRunCleanFalseAbortRate(t *testing.T) {
	p := Params{N: 32, Delta: 1, Tolerance: 0.11}
	const trials = 1000
	var aborts int
	for seed := int64(0); seed < trials; seed++ {
		res := runSeeded(t, p, seed)
		if res.Abort == AbortExcessiveQBER {
			t.Fatalf("seed %d: QBER abort on a clean channel", seed)
		}
		if !res.Accepted() {
			aborts++
		}
	}
	if aborts*20 >= trials {
		t.Errorf("%d of %d clean runs aborted, want < 5%%", aborts, trials)
	}
}

func TestRunEveDetected(t *testing.T) {
	p := Params{N: 64, Delta: 1, Tolerance: 0.11, Eve: true}
	const trials = 200
	var aborts int
	for seed := int64(0); seed < trials; seed++ {
		if res := runSeeded(t, p, seed); res.Abort == AbortExcessiveQBER {
			aborts++
		}
	}
	if aborts*10 < trials*9 {
		t.Errorf("Eve went unnoticed in %d of %d runs", trials-aborts, trials)
	}
}

func TestRunNoiseRaisesQBER(t *testing.T) {
	// 160 qubits and 32 expected errors: each flip channel fires at 0.1 and
	// exactly one of them is visible in a given basis.
	p := Params{N: 32, Delta: 1, Tolerance: 1, AvgErrors: 32}
	const trials = 300
	var sum float64
	var checked, flips int
	for seed := int64(0); seed < trials; seed++ {
		res := runSeeded(t, p, seed)
		flips += res.Diagnostics.BitFlips + res.Diagnostics.PhaseFlips
		if res.Abort == AbortInsufficientSifting {
			continue
		}
		checked++
		sum += res.QBER
	}
	if mean := sum / float64(checked); mean < 0.08 || mean > 0.12 {
		t.Errorf("mean QBER == %v, want about 0.1", mean)
	}
	if mean := float64(flips) / trials; mean < 30 || mean > 34 {
		t.Errorf("mean injected errors == %v, want about 32", mean)
	}
}

func TestRunSiftingBoundary(t *testing.T) {
	// 400 qubits sift to about 200 on average, exactly the 2n needed.
	p := Params{N: 100, Delta: 0, Tolerance: 0.11}
	var accepted, aborted int
	for seed := int64(0); seed < 100; seed++ {
		res := runSeeded(t, p, seed)
		switch {
		case res.Accepted():
			accepted++
		case res.Abort == AbortInsufficientSifting:
			aborted++
			if res.SiftedLen >= 200 {
				t.Errorf("seed %d: sifting abort with %d sifted bits", seed, res.SiftedLen)
			}
			if res.Retained != nil || res.Check != nil || res.KeyPositions != nil {
				t.Errorf("seed %d: sifting abort built partitions", seed)
			}
			if !strings.Contains(res.Reason, "insufficient sifted bits") {
				t.Errorf("seed %d: reason %q", seed, res.Reason)
			}
		}
	}
	if accepted == 0 || aborted == 0 {
		t.Errorf("accepted %d, aborted %d: want both paths at the boundary", accepted, aborted)
	}
}

func TestRunBobPerfectKeepsEverything(t *testing.T) {
	res := runSeeded(t, Params{N: 16, Delta: 0, Tolerance: 0.11, BobPerfect: true}, 3)
	if res.SiftedLen != res.TotalQubits {
		t.Errorf("sifted %d of %d with BobPerfect", res.SiftedLen, res.TotalQubits)
	}
	if !res.Accepted() {
		t.Errorf("BobPerfect run on a clean channel aborted: %s", res.Reason)
	}
}

func TestRunPartitionInvariants(t *testing.T) {
	for seed := int64(0); seed < 100; seed++ {
		p := Params{N: 24, Delta: 0.5, Tolerance: 0.11, Eve: seed%2 == 0}
		res := runSeeded(t, p, seed)
		if res.Abort == AbortInsufficientSifting {
			continue
		}
		// Replay the ensemble: it is the first thing drawn from the seed.
		ens := newEnsemble(p.Total(), p.Eve, false, rand.New(rand.NewSource(seed)))
		if want := sift(ens)[:2*p.N]; !reflect.DeepEqual(res.Retained, want) {
			t.Fatalf("seed %d: retained %v, want the first 2n sifted positions %v", seed, res.Retained, want)
		}
		if len(res.Check) != p.N || len(res.KeyPositions) != p.N {
			t.Fatalf("seed %d: partition sizes (%d, %d)", seed, len(res.Check), len(res.KeyPositions))
		}
		union := append(append([]int(nil), res.Check...), res.KeyPositions...)
		sort.Ints(union)
		if !reflect.DeepEqual(union, res.Retained) {
			t.Fatalf("seed %d: check and key do not partition the retained set", seed)
		}
		if res.Accepted() {
			if want := bitmap.Gather(ens.Data, res.KeyPositions); !bitmap.Equal(res.Key, want) {
				t.Errorf("seed %d: key %s is not Alice's bits %s", seed, res.Key, want)
			}
		} else if res.Key.Size() != 0 {
			t.Errorf("seed %d: aborted run carries a key", seed)
		}
	}
}

func TestRunIsDeterministic(t *testing.T) {
	p := Params{N: 20, Delta: 0.7, Tolerance: 0.2, AvgErrors: 6, Eve: true}
	for seed := int64(0); seed < 10; seed++ {
		a, b := runSeeded(t, p, seed), runSeeded(t, p, seed)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("seed %d: identical runs diverged:\n%+v\n%+v", seed, a, b)
		}
	}
}

func TestRunDeterministicUnderFixedResponse(t *testing.T) {
	p := Params{N: 4, Delta: 0, Tolerance: 1}
	out := strings.Repeat("01", p.Total()/2)
	run := func() Result {
		res, err := Run(context.Background(), p, &fixedBackend{out: out}, rand.New(rand.NewSource(8)))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return res
	}
	if a, b := run(), run(); !reflect.DeepEqual(a, b) {
		t.Errorf("runs diverged:\n%+v\n%+v", a, b)
	}
}

func TestRunRejectsInvalidParamsBeforeDrawing(t *testing.T) {
	backend := &fixedBackend{}
	r := rand.New(rand.NewSource(77))
	for _, p := range []Params{{N: 0, Tolerance: 0.1}, {N: 8, Tolerance: 2}, {N: 8, AvgErrors: -1}} {
		_, err := Run(context.Background(), p, backend, r)
		if !errors.Is(err, ErrInvalidParams) {
			t.Errorf("Run(%+v) error == %v, want ErrInvalidParams", p, err)
		}
	}
	if backend.calls != 0 {
		t.Errorf("backend called %d times for invalid parameters", backend.calls)
	}
	if got, want := r.Int63(), rand.New(rand.NewSource(77)).Int63(); got != want {
		t.Errorf("invalid runs consumed randomness")
	}
	if _, err := Run(context.Background(), Params{N: 8}, nil, r); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Run without backend error == %v, want ErrInvalidParams", err)
	}
}

func TestRunBackendFailure(t *testing.T) {
	p := Params{N: 8, Delta: 0.2, Tolerance: 0.11}
	for name, b := range map[string]*fixedBackend{
		"error":     {err: errors.New("simulator crashed")},
		"empty":     {out: ""},
		"malformed": {out: strings.Repeat("2", p.Total())},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := Run(context.Background(), p, b, rand.New(rand.NewSource(1)))
			if !errors.Is(err, ErrBackend) {
				t.Fatalf("Run() error == %v, want ErrBackend", err)
			}
			if res.Status != "" {
				t.Errorf("backend failure reported as %q", res.Status)
			}
		})
	}
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	backend, _ := qsim.New("statevector", 1)
	_, err := Run(ctx, Params{N: 8, Tolerance: 0.1}, backend, rand.New(rand.NewSource(1)))
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrBackend) {
		t.Errorf("Run() error == %v, want a backend failure wrapping context.Canceled", err)
	}
}

func TestRunStatevectorMatchesStabilizer(t *testing.T) {
	p := Params{N: 16, Delta: 0.5, Tolerance: 0.11, AvgErrors: 4, Eve: true}
	for seed := int64(0); seed < 5; seed++ {
		sb, _ := qsim.New("stabilizer", seed)
		sv, _ := qsim.New("statevector", seed)
		a, errA := Run(context.Background(), p, sb, rand.New(rand.NewSource(seed)))
		b, errB := Run(context.Background(), p, sv, rand.New(rand.NewSource(seed)))
		if errA != nil || errB != nil {
			t.Fatalf("Run: %v, %v", errA, errB)
		}
		if !reflect.DeepEqual(a, b) {
			t.Errorf("seed %d: backends produced different runs", seed)
		}
	}
}
