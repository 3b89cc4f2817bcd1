// Package analysis aggregates batch results and compares them with the
// analytic abort model.
package analysis

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/qkdsim/bb84/bb84"
	"github.com/qkdsim/bb84/internal/batch"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Options select which runs count toward rates and QBER statistics.
type Options struct {
	// QBEROnly drops insufficient-sifting aborts from success rates, so a
	// rate reflects only the QBER check.
	QBEROnly bool
	// AllQBER includes the QBER of QBER-aborted runs in QBER statistics,
	// not just that of successful runs.
	AllQBER bool
}

// QBERStats describes a QBER sample.
type QBERStats struct {
	Count                          int
	Min, Max, Mean, StdDev, Median float64
}

// A Group aggregates the runs sharing one n or one error level.
type Group struct {
	Key     float64
	Runs    int
	Success int
	// SiftingAborts and QBERAborts split the protocol aborts; Errors counts
	// infrastructure failures, which never enter a rate.
	SiftingAborts int
	QBERAborts    int
	Errors        int
	QBER          QBERStats
	qbers         []float64
}

// SuccessRate is the fraction of protocol outcomes that produced a key. With
// qberOnly, insufficient-sifting aborts are left out of the denominator.
func (g Group) SuccessRate(qberOnly bool) float64 {
	den := g.Success + g.QBERAborts
	if !qberOnly {
		den += g.SiftingAborts
	}
	if den == 0 {
		return 0
	}
	return float64(g.Success) / float64(den)
}

// ReasonCount is the number of aborts sharing a reason prefix.
type ReasonCount struct {
	Reason string
	Count  int
}

// A Summary is the aggregate view of a batch.
type Summary struct {
	Options  Options
	Overall  Group
	ByN      []Group
	ByErrors []Group
	Reasons  []ReasonCount
}

// Summarize aggregates rows.
func Summarize(rows []batch.Row, o Options) *Summary {
	s := &Summary{Options: o}
	byN := map[float64]*Group{}
	byErrors := map[float64]*Group{}
	reasons := map[string]int{}
	for _, r := range rows {
		gn := groupFor(byN, float64(r.N))
		ge := groupFor(byErrors, r.Errors)
		for _, g := range []*Group{&s.Overall, gn, ge} {
			g.add(r, o)
		}
		if r.Status == bb84.StatusAbort {
			reasons[reasonKey(r.Reason)]++
		}
	}
	s.Overall.finish()
	s.ByN = sortedGroups(byN)
	s.ByErrors = sortedGroups(byErrors)
	for reason, n := range reasons {
		s.Reasons = append(s.Reasons, ReasonCount{reason, n})
	}
	sort.Slice(s.Reasons, func(i, j int) bool {
		if s.Reasons[i].Count != s.Reasons[j].Count {
			return s.Reasons[i].Count > s.Reasons[j].Count
		}
		return s.Reasons[i].Reason < s.Reasons[j].Reason
	})
	return s
}

func groupFor(m map[float64]*Group, key float64) *Group {
	g, ok := m[key]
	if !ok {
		g = &Group{Key: key}
		m[key] = g
	}
	return g
}

func sortedGroups(m map[float64]*Group) []Group {
	out := make([]Group, 0, len(m))
	for _, g := range m {
		g.finish()
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (g *Group) add(r batch.Row, o Options) {
	g.Runs++
	switch {
	case r.Status == bb84.StatusSuccess:
		g.Success++
	case r.QBERAbort():
		g.QBERAborts++
	case r.Status == bb84.StatusAbort:
		g.SiftingAborts++
	default:
		g.Errors++
	}
	if r.HasQBER && (r.Status == bb84.StatusSuccess || (o.AllQBER && r.QBERAbort())) {
		g.qbers = append(g.qbers, r.QBER)
	}
}

func (g *Group) finish() {
	g.QBER = describe(g.qbers)
}

func describe(x []float64) QBERStats {
	st := QBERStats{Count: len(x)}
	if len(x) == 0 {
		return st
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	st.Min = floats.Min(sorted)
	st.Max = floats.Max(sorted)
	st.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if len(sorted) < 2 {
		st.Mean = sorted[0]
		return st
	}
	st.Mean, st.StdDev = stat.MeanStdDev(sorted, nil)
	return st
}

// reasonKey groups abort reasons by the text before the first colon, so
// that reasons differing only in their numbers count together.
func reasonKey(reason string) string {
	if i := strings.IndexByte(reason, ':'); i >= 0 {
		return reason[:i]
	}
	return reason
}

func percent(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return 100 * float64(num) / float64(den)
}

// Print writes a plain-text report.
func (s *Summary) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	o := s.Overall
	fmt.Fprintf(tw, "BB84 batch results\n")
	fmt.Fprintf(tw, "Total runs:\t%d\n", o.Runs)
	fmt.Fprintf(tw, "Successful:\t%d\t(%.1f%%)\n", o.Success, percent(o.Success, o.Runs))
	fmt.Fprintf(tw, "Aborted:\t%d\t(%.1f%%)\n", o.SiftingAborts+o.QBERAborts, percent(o.SiftingAborts+o.QBERAborts, o.Runs))
	if o.Errors > 0 {
		fmt.Fprintf(tw, "Errors:\t%d\t(%.1f%%)\n", o.Errors, percent(o.Errors, o.Runs))
	}
	fmt.Fprintln(tw)

	rateLabel := "success rate"
	if s.Options.QBEROnly {
		rateLabel = "success rate (QBER only)"
	}
	fmt.Fprintf(tw, "n\truns\tsuccess\t%s\n", rateLabel)
	for _, g := range s.ByN {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%.1f%%\n", int(g.Key), g.Runs, g.Success, 100*g.SuccessRate(s.Options.QBEROnly))
	}
	fmt.Fprintln(tw)

	fmt.Fprintf(tw, "errors\truns\tsuccess\t%s\tmean QBER\n", rateLabel)
	for _, g := range s.ByErrors {
		fmt.Fprintf(tw, "%.1f\t%d\t%d\t%.1f%%\t%.4f\n", g.Key, g.Runs, g.Success, 100*g.SuccessRate(s.Options.QBEROnly), g.QBER.Mean)
	}
	fmt.Fprintln(tw)

	if q := o.QBER; q.Count > 0 {
		fmt.Fprintf(tw, "QBER (%d runs)\tmin %.4f\tmax %.4f\tmean %.4f\tstd %.4f\tmedian %.4f\n",
			q.Count, q.Min, q.Max, q.Mean, q.StdDev, q.Median)
		fmt.Fprintln(tw)
	}

	if len(s.Reasons) > 0 {
		aborts := o.SiftingAborts + o.QBERAborts
		fmt.Fprintln(tw, "Abort reasons:")
		for _, r := range s.Reasons {
			fmt.Fprintf(tw, "  %s\t%d\t(%.1f%%)\n", r.Reason, r.Count, percent(r.Count, aborts))
		}
	}
	return tw.Flush()
}
