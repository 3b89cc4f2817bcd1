package bb84

import (
	"math/rand"

	"github.com/qkdsim/bb84/bb84/bitmap"
)

// sift returns, in increasing order, the positions at which Alice's and Bob's
// bases agree.
func sift(e Ensemble) []int {
	return bitmap.Indices(bitmap.XNor(e.AliceBases, e.BobBases))
}

// partition splits retained into a uniformly random check sample of n
// positions and the key positions left over. Check positions are reported in
// the order they were drawn, key positions in retained order. Only positions
// are consulted, never the bits they hold.
func partition(retained []int, n int, r *rand.Rand) (check, key []int) {
	perm := r.Perm(len(retained))
	inCheck := make([]bool, len(retained))
	check = make([]int, 0, n)
	for _, j := range perm[:n] {
		inCheck[j] = true
		check = append(check, retained[j])
	}
	key = make([]int, 0, len(retained)-n)
	for j, pos := range retained {
		if !inCheck[j] {
			key = append(key, pos)
		}
	}
	return check, key
}

// mismatches counts the positions at which a and b differ.
func mismatches(a, b bitmap.Dense, positions []int) int {
	return bitmap.CountOnes(bitmap.XOr(bitmap.Gather(a, positions), bitmap.Gather(b, positions)))
}
