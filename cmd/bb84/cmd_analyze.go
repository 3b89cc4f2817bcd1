package main

import (
	"fmt"
	"os"

	"github.com/qkdsim/bb84/internal/analysis"
	"github.com/qkdsim/bb84/internal/batch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type analyzeOpts struct {
	report analysis.ReportOptions
	html   string
}

func newAnalyzeCmd(c *cli) *cobra.Command {
	o := &analyzeOpts{}
	cmd := &cobra.Command{
		Use:   "analyze results.csv|results.jsonl",
		Short: "Summarize a batch result file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := analysis.LoadRows(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No data in results file.")
				return nil
			}
			c.logger.Debug("loaded results", zap.String("path", args[0]), zap.Int("rows", len(rows)))
			if err := analysis.Summarize(rows, o.report.Options).Print(out); err != nil {
				return err
			}
			if o.html == "" {
				return nil
			}
			if err := writeReport(o.html, rows, o.report); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nReport saved to: %s\n", o.html)
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&o.report.QBEROnly, "qber-only", false, "Success rate: ignore aborts due to insufficient sifting")
	f.BoolVar(&o.report.AllQBER, "all-qber", false, "QBER statistics: include QBER-aborted runs, not just successful ones")
	f.StringVar(&o.html, "html", "", "Write an HTML report with charts to this file")
	f.BoolVar(&o.report.Smooth, "smooth", false, "Report: draw smoothed curves")
	f.BoolVar(&o.report.Model, "model", false, "Report: overlay the analytic success rate")
	f.BoolVar(&o.report.Eve, "eve", false, "Model: the batch ran with an eavesdropper")
	f.BoolVar(&o.report.BobPerfect, "bobperfect", false, "Model: the batch ran with --bobperfect")
	return cmd
}

func writeReport(path string, rows []batch.Row, o analysis.ReportOptions) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return analysis.Report(f, rows, o)
}
