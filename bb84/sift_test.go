package bb84

import (
	"math/rand"
	"reflect"
	"sort"
	"testing"
)

func TestSift(t *testing.T) {
	e := Ensemble{
		AliceBases: mustDense(t, "0110 1001 1"),
		BobBases:   mustDense(t, "0100 1101 0"),
	}
	want := []int{0, 1, 3, 4, 6, 7}
	if got := sift(e); !reflect.DeepEqual(got, want) {
		t.Errorf("sift() == %v, want %v", got, want)
	}
}

func TestPartition(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		n := 1 + r.Intn(40)
		retained := make([]int, 2*n)
		pos := 0
		for i := range retained {
			pos += 1 + r.Intn(3)
			retained[i] = pos
		}
		check, key := partition(retained, n, r)
		if len(check) != n || len(key) != n {
			t.Fatalf("partition sizes (%d, %d), want (%d, %d)", len(check), len(key), n, n)
		}
		seen := make(map[int]bool)
		for _, p := range append(append([]int(nil), check...), key...) {
			if seen[p] {
				t.Fatalf("position %d appears twice", p)
			}
			seen[p] = true
		}
		union := append(append([]int(nil), check...), key...)
		sort.Ints(union)
		if !reflect.DeepEqual(union, retained) {
			t.Fatalf("check ∪ key == %v, want %v", union, retained)
		}
		if !sort.IntsAreSorted(key) {
			t.Errorf("key positions not in retained order: %v", key)
		}
	}
}

func TestPartitionIsUniform(t *testing.T) {
	// Each of the 2n positions should land in the check sample about half the
	// time.
	const n, trials = 8, 4000
	retained := make([]int, 2*n)
	for i := range retained {
		retained[i] = i
	}
	counts := make([]int, 2*n)
	r := rand.New(rand.NewSource(2))
	for i := 0; i < trials; i++ {
		check, _ := partition(retained, n, r)
		for _, p := range check {
			counts[p]++
		}
	}
	for p, c := range counts {
		if c < trials/2-200 || c > trials/2+200 {
			t.Errorf("position %d checked %d of %d times", p, c, trials)
		}
	}
}

func TestMismatches(t *testing.T) {
	a := mustDense(t, "1100 1010")
	b := mustDense(t, "1001 1011")
	if got := mismatches(a, b, []int{0, 1, 2, 3}); got != 2 {
		t.Errorf("mismatches() == %d, want 2", got)
	}
	if got := mismatches(a, b, []int{7, 2}); got != 1 {
		t.Errorf("mismatches() == %d, want 1", got)
	}
	if got := mismatches(a, b, nil); got != 0 {
		t.Errorf("mismatches() == %d, want 0", got)
	}
}

func TestAssembleKey(t *testing.T) {
	data := mustDense(t, "1011 0010")
	outcome := mustDense(t, "1111 0000")
	key, ratio := assembleKey(data, outcome, []int{0, 1, 6, 7})
	if key.String() != "1010" {
		t.Errorf("key == %s, want Alice's bits 1010", key)
	}
	if ratio != 0.5 {
		t.Errorf("realErrorRatio == %v, want 0.5", ratio)
	}
}
