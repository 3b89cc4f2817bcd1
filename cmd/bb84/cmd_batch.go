package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/qkdsim/bb84/bb84"
	"github.com/qkdsim/bb84/internal/analysis"
	"github.com/qkdsim/bb84/internal/batch"
	"github.com/qkdsim/bb84/internal/wire"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

type batchOpts struct {
	config  string
	output  string
	records string
	quiet   bool
	// sweep holds flag values; only flags the user set override the config.
	sweep batch.Config
}

func newBatchCmd(c *cli) *cobra.Command {
	o := &batchOpts{}
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run a parameter sweep and save one CSV row per run",
		Long: `Runs the protocol for every combination of n and error level, repeats times
each, on a pool of workers. Parameters come from --config (YAML) with flags
taking precedence.

Example:
  bb84 batch --n-range 16,32,64 --error-range 0,5,10 --repeats 10 --output results.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load(cmd.Flags())
			if err != nil {
				return err
			}
			return runBatch(cmd, c.logger, o, cfg)
		},
	}
	defaults := batch.DefaultConfig()
	f := cmd.Flags()
	f.StringVar(&o.config, "config", "", "YAML sweep configuration")
	f.StringVar(&o.output, "output", "bb84_results.csv", "Output CSV file")
	f.StringVar(&o.records, "records", "", "Also write the full record of every run to this JSONL file")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "Do not print per-run progress")
	f.IntSliceVar(&o.sweep.NValues, "n-range", defaults.NValues, "Key lengths n to sweep")
	f.Float64SliceVar(&o.sweep.Errors, "error-range", defaults.Errors, "Expected error counts to sweep")
	f.Float64Var(&o.sweep.Delta, "delta", defaults.Delta, "Oversampling parameter")
	f.Float64Var(&o.sweep.Tolerance, "tolerance", defaults.Tolerance, "QBER tolerance")
	f.StringVar(&o.sweep.Backend, "backend", defaults.Backend, "Simulation backend")
	f.IntVar(&o.sweep.Repeats, "repeats", defaults.Repeats, "Repetitions per configuration")
	f.IntVar(&o.sweep.Workers, "workers", 0, "Parallel workers (default: number of CPUs)")
	f.BoolVar(&o.sweep.Eve, "eve", false, "Enable an intercept-resend eavesdropper")
	f.BoolVar(&o.sweep.BobPerfect, "bobperfect", false, "Bob always guesses Alice's bases")
	f.Int64Var(&o.sweep.Seed, "seed", 0, "Master seed (default: from config, else time based)")
	return cmd
}

// load builds the sweep: defaults, then the config file, then every flag the
// user set explicitly.
func (o *batchOpts) load(fs *flag.FlagSet) (*batch.Config, error) {
	cfg := batch.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = batch.LoadConfig(o.config); err != nil {
			return nil, err
		}
	}
	overrides := map[string]func(){
		"n-range":     func() { cfg.NValues = o.sweep.NValues },
		"error-range": func() { cfg.Errors = o.sweep.Errors },
		"delta":       func() { cfg.Delta = o.sweep.Delta },
		"tolerance":   func() { cfg.Tolerance = o.sweep.Tolerance },
		"backend":     func() { cfg.Backend = o.sweep.Backend },
		"repeats":     func() { cfg.Repeats = o.sweep.Repeats },
		"workers":     func() { cfg.Workers = o.sweep.Workers },
		"eve":         func() { cfg.Eve = o.sweep.Eve },
		"bobperfect":  func() { cfg.BobPerfect = o.sweep.BobPerfect },
		"seed":        func() { cfg.Seed = o.sweep.Seed },
	}
	fs.Visit(func(f *flag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})
	if !fs.Changed("seed") && cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runBatch(cmd *cobra.Command, log *zap.Logger, o *batchOpts, cfg *batch.Config) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	jobs := len(cfg.Jobs())
	fmt.Fprintln(out, "Starting batch BB84 simulation:")
	fmt.Fprintf(out, "  n values: %v\n", cfg.NValues)
	fmt.Fprintf(out, "  error values: %v\n", cfg.Errors)
	fmt.Fprintf(out, "  repeats per config: %d\n", cfg.Repeats)
	fmt.Fprintf(out, "  total runs: %d\n", jobs)
	fmt.Fprintf(out, "  parallel workers: %d\n", cfg.EffectiveWorkers())
	fmt.Fprintf(out, "  Bob perfect: %t\n", cfg.BobPerfect)
	fmt.Fprintf(out, "  Eve present: %t\n", cfg.Eve)
	fmt.Fprintf(out, "  seed: %d\n", cfg.Seed)
	fmt.Fprintf(out, "  output: %s\n\n", o.output)

	opts := batch.Options{Logger: log}
	if !o.quiet {
		opts.Progress = func(done, total int, row batch.Row) {
			printProgress(errOut, done, total, row)
		}
	}
	if o.records != "" {
		f, err := os.Create(o.records)
		if err != nil {
			return err
		}
		defer f.Close()
		opts.Records = wire.NewWriter(f)
	}

	rows, runErr := batch.Run(cmd.Context(), cfg, opts)
	if len(rows) > 0 {
		if err := writeResults(o.output, rows); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nResults saved to: %s\n\n", o.output)
	}
	if runErr != nil {
		return runErr
	}
	return analysis.Summarize(rows, analysis.Options{}).Print(out)
}

func printProgress(w io.Writer, done, total int, row batch.Row) {
	mark := "✗"
	if row.Status == bb84.StatusSuccess {
		mark = "✓"
	}
	fmt.Fprintf(w, "[%d/%d] n=%d, errors=%.1f, repeat=%d %s\n", done, total, row.N, row.Errors, row.Repeat, mark)
}

func writeResults(path string, rows []batch.Row) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return batch.WriteCSV(f, rows)
}
