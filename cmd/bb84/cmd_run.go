package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/qkdsim/bb84/bb84"
	"github.com/qkdsim/bb84/internal/batch"
	"github.com/qkdsim/bb84/internal/wire"
	"github.com/qkdsim/bb84/qsim"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runOpts struct {
	params  bb84.Params
	backend string
	seed    int64
	json    bool
	qasm    bool
}

func newRunCmd(c *cli) *cobra.Command {
	o := &runOpts{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the protocol once",
		Long: `Prepares ceil((4+delta)*n) qubits, sends them through the simulated channel,
sifts, estimates the QBER on n check bits and either accepts an n-bit raw key
or aborts. An abort is a normal outcome and exits 0.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("seed") {
				o.seed = time.Now().UnixNano()
			}
			return runOnce(cmd.Context(), c.logger, o, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.params.N, "n", 16, "Target key length n")
	f.Float64Var(&o.params.Delta, "delta", bb84.DefaultDelta, "Oversampling parameter: (4+delta)*n qubits are sent")
	f.Float64Var(&o.params.Tolerance, "tolerance", bb84.DefaultTolerance, "Maximum acceptable QBER on the check bits")
	f.Float64Var(&o.params.AvgErrors, "errors", 0, "Expected number of channel noise events over the whole ensemble")
	f.BoolVar(&o.params.Eve, "eve", false, "Enable an intercept-resend eavesdropper")
	f.BoolVar(&o.params.BobPerfect, "bobperfect", false, "Bob always guesses Alice's bases (no sifting losses)")
	f.StringVar(&o.backend, "backend", qsim.DefaultBackend, "Simulation backend: stabilizer or statevector")
	f.Int64Var(&o.seed, "seed", 0, "Seed for all randomness (default: time based)")
	f.BoolVar(&o.json, "json", false, "Print the run record as one JSON object")
	f.BoolVar(&o.qasm, "qasm", false, "Dump the OpenQASM circuit sent to the backend")
	return cmd
}

// recordingBackend keeps the last circuit it ran.
type recordingBackend struct {
	qsim.Backend
	circuit *qsim.Circuit
}

func (b *recordingBackend) Run(ctx context.Context, c *qsim.Circuit) (string, error) {
	b.circuit = c
	return b.Backend.Run(ctx, c)
}

func runOnce(ctx context.Context, log *zap.Logger, o *runOpts, stdout, stderr io.Writer) error {
	protoSeed, backendSeed := batch.Seeds(o.seed, 0)
	sim, err := qsim.New(o.backend, backendSeed)
	if err != nil {
		return fmt.Errorf("%w: %w", bb84.ErrInvalidParams, err)
	}
	backend := &recordingBackend{Backend: sim}
	log.Debug("starting run",
		zap.Int("n", o.params.N),
		zap.Int("total_qubits", o.params.Total()),
		zap.String("backend", sim.Name()),
		zap.Int64("seed", o.seed),
	)

	res, runErr := bb84.Run(ctx, o.params, backend, rand.New(rand.NewSource(protoSeed)))
	if o.qasm && backend.circuit != nil {
		w := stdout
		if o.json {
			w = stderr
		}
		fmt.Fprint(w, backend.circuit.QASM())
	}
	if runErr != nil {
		if o.json && errors.Is(runErr, bb84.ErrBackend) {
			if err := wire.NewWriter(stdout).Write(bb84.ErrorRecord(o.params, sim.Name(), runErr)); err != nil {
				return err
			}
		}
		return runErr
	}
	log.Debug("run finished",
		zap.Stringer("stage", res.Stage),
		zap.String("status", string(res.Status)),
		zap.Int("sifted_len", res.SiftedLen),
		zap.Float64("qber", res.QBER),
		zap.Int("eve_disturbed", res.Diagnostics.EveDisturbed),
		zap.Int("bit_flips", res.Diagnostics.BitFlips),
		zap.Int("phase_flips", res.Diagnostics.PhaseFlips),
	)

	if o.json {
		return wire.NewWriter(stdout).Write(res.Record(sim.Name()))
	}
	printResult(stdout, res)
	return nil
}

func printResult(w io.Writer, res bb84.Result) {
	if !res.Accepted() {
		fmt.Fprintln(w, "BB84 aborted:", res.Reason)
		return
	}
	fmt.Fprintln(w, "BB84 run successful")
	fmt.Fprintf(w, "Total qubits sent: %d\n", res.TotalQubits)
	fmt.Fprintf(w, "Sifted bits available: %d\n", res.SiftedLen)
	fmt.Fprintf(w, "QBER on checked bits: %.4f\n", res.QBER)
	fmt.Fprintf(w, "Shared raw key (%d bits): %s\n", res.Key.Size(), res.Key)
}
