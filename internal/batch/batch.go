// Package batch runs parameter sweeps of the BB84 simulation on a bounded
// worker pool and persists one row per run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qkdsim/bb84/bb84"
	"github.com/qkdsim/bb84/internal/wire"
	"github.com/qkdsim/bb84/qsim"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options tune a batch. The zero value is usable.
type Options struct {
	Logger *zap.Logger
	// BatchID tags every row. A random UUID is used when empty.
	BatchID string
	// Progress, if set, is called after every finished run with the number
	// of runs completed so far. Calls are serialized.
	Progress func(done, total int, row Row)
	// Records, if set, receives the full record of every run, in completion
	// order.
	Records *wire.Writer
	// Now stamps rows; time.Now when nil.
	Now func() time.Time
}

// Run executes every job of cfg. Rows come back in job order. Backend
// failures become rows with status "error" and do not stop the batch;
// cancelling ctx stops scheduling and Run returns the rows finished so far
// together with ctx's error.
func Run(ctx context.Context, cfg *Config, opts Options) ([]Row, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.BatchID == "" {
		opts.BatchID = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	jobs := cfg.Jobs()
	workers := cfg.EffectiveWorkers()
	log.Info("starting batch",
		zap.String("batch", opts.BatchID),
		zap.Ints("n_values", cfg.NValues),
		zap.Float64s("errors", cfg.Errors),
		zap.Int("repeats", cfg.Repeats),
		zap.Int("runs", len(jobs)),
		zap.Int("workers", workers),
		zap.Bool("eve", cfg.Eve),
		zap.Bool("bob_perfect", cfg.BobPerfect),
		zap.Int64("seed", cfg.Seed),
	)

	var (
		mu      sync.Mutex
		rows    = make([]Row, 0, len(jobs))
		index   = make([]int, 0, len(jobs))
		recErr  error
		success int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rec, err := runJob(gctx, cfg.Seed, job)
			if err != nil {
				return err
			}
			rec[FieldBatch] = opts.BatchID
			rec[FieldRepeat] = job.Repeat
			rec[FieldTimestamp] = opts.Now().Format(time.RFC3339Nano)
			row := RowFromRecord(rec)
			log.Debug("run finished",
				zap.Int("job", job.Index),
				zap.Int("n", job.Params.N),
				zap.Float64("errors", job.Params.AvgErrors),
				zap.Int("repeat", job.Repeat),
				zap.String("status", string(row.Status)),
				zap.String("reason", row.Reason),
			)

			mu.Lock()
			defer mu.Unlock()
			rows = append(rows, row)
			index = append(index, job.Index)
			if row.Status == bb84.StatusSuccess {
				success++
			}
			if opts.Records != nil && recErr == nil {
				recErr = opts.Records.Write(rec)
			}
			if opts.Progress != nil {
				opts.Progress(len(rows), len(jobs), row)
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	sort.Sort(byIndex{rows, index})
	log.Info("batch finished",
		zap.String("batch", opts.BatchID),
		zap.Int("runs", len(rows)),
		zap.Int("success", success),
		zap.Error(err),
	)
	if err != nil {
		return rows, err
	}
	if recErr != nil {
		return rows, fmt.Errorf("writing run records: %w", recErr)
	}
	return rows, nil
}

// newBackend is replaced in tests.
var newBackend = qsim.New

// runJob executes one run with its derived seeds. A backend failure is
// reported as an error record; only cancellation and invalid parameters are
// returned as errors.
func runJob(ctx context.Context, master int64, job Job) (bb84.Record, error) {
	protoSeed, backendSeed := Seeds(master, job.Index)
	backend, err := newBackend(job.Backend, backendSeed)
	if err != nil {
		return nil, err
	}
	res, err := bb84.Run(ctx, job.Params, backend, rand.New(rand.NewSource(protoSeed)))
	switch {
	case err == nil:
		return res.Record(backend.Name()), nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, bb84.ErrBackend):
		return bb84.ErrorRecord(job.Params, backend.Name(), err), nil
	default:
		return nil, fmt.Errorf("job %d: %w", job.Index, err)
	}
}

type byIndex struct {
	rows  []Row
	index []int
}

func (b byIndex) Len() int           { return len(b.rows) }
func (b byIndex) Less(i, j int) bool { return b.index[i] < b.index[j] }
func (b byIndex) Swap(i, j int) {
	b.rows[i], b.rows[j] = b.rows[j], b.rows[i]
	b.index[i], b.index[j] = b.index[j], b.index[i]
}
