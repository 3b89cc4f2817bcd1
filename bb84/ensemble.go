package bb84

import (
	"math/rand"

	"github.com/qkdsim/bb84/bb84/bitmap"
)

// An Ensemble holds the per-position classical choices of a run: Alice's data
// bits and bases, Bob's measurement bases and, if present, Eve's interception
// bases.
type Ensemble struct {
	Data       bitmap.Dense
	AliceBases bitmap.Dense
	BobBases   bitmap.Dense
	EveBases   bitmap.Dense // empty unless Eve is enabled
}

// newEnsemble draws a fresh ensemble of total positions from r. The streams are
// drawn in a fixed order (data, Alice, Bob, Eve) so a seeded r replays a run
// exactly.
func newEnsemble(total int, eve, bobPerfect bool, r *rand.Rand) Ensemble {
	e := Ensemble{
		Data:       randomBits(r, total),
		AliceBases: randomBits(r, total),
	}
	if bobPerfect {
		e.BobBases = e.AliceBases.Clone()
	} else {
		e.BobBases = randomBits(r, total)
	}
	if eve {
		e.EveBases = randomBits(r, total)
	}
	return e
}

// Size returns the number of positions in e.
func (e Ensemble) Size() int {
	return e.Data.Size()
}

func (e Ensemble) AliceBasis(i int) Basis { return basisOf(e.AliceBases.Get(i)) }
func (e Ensemble) BobBasis(i int) Basis   { return basisOf(e.BobBases.Get(i)) }
func (e Ensemble) EveBasis(i int) Basis   { return basisOf(e.EveBases.Get(i)) }

// randomBits returns n independent fair bits, drawn a byte at a time.
func randomBits(r *rand.Rand, n int) bitmap.Dense {
	buf := make([]byte, bitmap.BytesFor(n))
	r.Read(buf)
	return bitmap.NewDense(buf, n)
}
