package bb84

import "github.com/qkdsim/bb84/bb84/bitmap"

// assembleKey extracts Alice's raw key at the key positions. Bob is assumed to
// adopt Alice's bits, standing in for information reconciliation.
//
// realErrorRatio is the fraction of key positions where Bob's measured bit
// actually differs from Alice's. Computing it needs both parties' raw bits, so
// it is a simulation diagnostic and plays no part in the protocol's decision.
func assembleKey(data, outcome bitmap.Dense, key []int) (raw bitmap.Dense, realErrorRatio float64) {
	raw = bitmap.Gather(data, key)
	if len(key) == 0 {
		return raw, 0
	}
	return raw, float64(mismatches(data, outcome, key)) / float64(len(key))
}
