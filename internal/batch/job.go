package batch

import (
	"encoding/binary"

	"github.com/qkdsim/bb84/bb84"
	"github.com/qkdsim/bb84/qsim"
	"golang.org/x/crypto/sha3"
)

const seedLabel = "bb84/batch/seed/v1"

// A Job is one protocol run of a sweep.
type Job struct {
	// Index is the job's position in the expansion order.
	Index   int
	Params  bb84.Params
	Backend string
	// Repeat counts from 1 within a parameter combination.
	Repeat int
}

// Jobs expands the sweep in n-major order: n, then error level, then repeat.
func (c *Config) Jobs() []Job {
	var ns, errs, reps []interface{}
	for _, n := range c.NValues {
		ns = append(ns, n)
	}
	for _, e := range c.Errors {
		errs = append(errs, e)
	}
	for i := 1; i <= c.Repeats; i++ {
		reps = append(reps, i)
	}
	backend := c.Backend
	if backend == "" {
		backend = qsim.DefaultBackend
	}
	var jobs []Job
	applyCartesian(func(args []interface{}) {
		jobs = append(jobs, Job{
			Index:   len(jobs),
			Params:  c.params(args[0].(int), args[1].(float64)),
			Backend: backend,
			Repeat:  args[2].(int),
		})
	}, [][]interface{}{ns, errs, reps})
	return jobs
}

// applyCartesian calls f once per element of the cartesian product of args,
// leftmost dimension outermost. Every dimension must be non-empty.
func applyCartesian(f func([]interface{}), args [][]interface{}) {
	for i := range args {
		if len(args[i]) == 1 {
			continue
		}
		l := make([][]interface{}, len(args))
		r := make([][]interface{}, len(args))
		copy(l, args)
		copy(r, args)
		l[i] = args[i][:1]
		r[i] = args[i][1:]
		applyCartesian(f, l)
		applyCartesian(f, r)
		return
	}
	x := make([]interface{}, 0, len(args))
	for _, a := range args {
		x = append(x, a[0])
	}
	f(x)
}

// Seeds derives a job's two independent seeds from the master seed: one for
// the protocol's rand and one for the backend's. Jobs never share a stream,
// so results do not depend on scheduling order.
func Seeds(master int64, index int) (protocol, backend int64) {
	h := sha3.NewShake256()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(master))
	binary.LittleEndian.PutUint64(buf[8:], uint64(index))
	h.Write([]byte(seedLabel))
	h.Write(buf[:])
	h.Read(buf[:])
	return int64(binary.LittleEndian.Uint64(buf[:8])), int64(binary.LittleEndian.Uint64(buf[8:]))
}
