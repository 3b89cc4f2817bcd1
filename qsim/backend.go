package qsim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// ErrUnknownBackend is returned by New for selectors it does not recognize.
var ErrUnknownBackend = errors.New("unknown backend")

// A Backend executes a circuit for a single shot.
//
// Backends are not safe for concurrent use.
type Backend interface {
	// Name identifies the backend, e.g. for logs and result records.
	Name() string

	// Run executes c once and returns its classical register as a string of
	// '0's and '1's. Classical bit 0 is the right-most character, i.e. the
	// string reads from the highest bit index down.
	Run(ctx context.Context, c *Circuit) (string, error)
}

var registry = map[string]func(r *rand.Rand) Backend{
	"stabilizer":  func(r *rand.Rand) Backend { return NewStabilizer(r) },
	"statevector": func(r *rand.Rand) Backend { return NewStatevector(r) },
}

// DefaultBackend names the backend used when none is selected.
const DefaultBackend = "stabilizer"

// New returns the backend registered under selector, drawing measurement
// randomness from a source seeded with seed.
func New(selector string, seed int64) (Backend, error) {
	if selector == "" {
		selector = DefaultBackend
	}
	mk, ok := registry[selector]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownBackend, selector, Names())
	}
	return mk(rand.New(rand.NewSource(seed))), nil
}

// Names lists the registered backend selectors.
func Names() []string {
	var names []string
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// encodeOutcome renders a classical register with the highest index first.
func encodeOutcome(clbits []bool) string {
	buf := make([]byte, len(clbits))
	for i, b := range clbits {
		c := byte('0')
		if b {
			c = '1'
		}
		buf[len(clbits)-1-i] = c
	}
	return string(buf)
}

// ctxCheckEvery bounds how many ops run between cancellation checks.
const ctxCheckEvery = 1024

func checkCtx(ctx context.Context, i int) error {
	if i%ctxCheckEvery != 0 {
		return nil
	}
	return ctx.Err()
}
