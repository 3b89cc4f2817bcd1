package analysis

import (
	"bytes"
	"testing"

	"github.com/qkdsim/bb84/bb84"
	"github.com/qkdsim/bb84/internal/batch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func success(n int, errors, qber float64) batch.Row {
	return batch.Row{N: n, Delta: 0.2, Tolerance: 0.11, Errors: errors, Status: bb84.StatusSuccess, QBER: qber, HasQBER: true, KeyLength: n}
}

func siftingAbort(n int, errors float64) batch.Row {
	return batch.Row{N: n, Delta: 0.2, Tolerance: 0.11, Errors: errors, Status: bb84.StatusAbort,
		Reason: "insufficient sifted bits: got 20, need >= 32"}
}

func qberAbort(n int, errors, qber float64) batch.Row {
	return batch.Row{N: n, Delta: 0.2, Tolerance: 0.11, Errors: errors, Status: bb84.StatusAbort, QBER: qber, HasQBER: true,
		Reason: "QBER exceeds tolerance: 0.250 > 0.11"}
}

func testRows() []batch.Row {
	return []batch.Row{
		success(16, 0, 0),
		success(16, 0, 0.0625),
		siftingAbort(16, 0),
		success(32, 10, 0.125),
		qberAbort(32, 10, 0.25),
		{N: 32, Errors: 10, Status: bb84.StatusError, Reason: "backend failure: offline"},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(testRows(), Options{})

	o := s.Overall
	assert.Equal(t, 6, o.Runs)
	assert.Equal(t, 3, o.Success)
	assert.Equal(t, 1, o.SiftingAborts)
	assert.Equal(t, 1, o.QBERAborts)
	assert.Equal(t, 1, o.Errors)
	assert.InDelta(t, 3.0/5, o.SuccessRate(false), 1e-12)
	assert.InDelta(t, 3.0/4, o.SuccessRate(true), 1e-12)

	assert.Equal(t, 3, o.QBER.Count)
	assert.InDelta(t, 0.0625, o.QBER.Mean, 1e-12)
	assert.InDelta(t, 0.0625, o.QBER.StdDev, 1e-12)
	assert.InDelta(t, 0.0625, o.QBER.Median, 1e-12)
	assert.Equal(t, 0.0, o.QBER.Min)
	assert.Equal(t, 0.125, o.QBER.Max)

	require.Len(t, s.ByN, 2)
	assert.Equal(t, 16.0, s.ByN[0].Key)
	assert.Equal(t, 3, s.ByN[0].Runs)
	assert.InDelta(t, 2.0/3, s.ByN[0].SuccessRate(false), 1e-12)
	assert.InDelta(t, 1.0, s.ByN[0].SuccessRate(true), 1e-12)
	assert.Equal(t, 32.0, s.ByN[1].Key)
	assert.InDelta(t, 0.5, s.ByN[1].SuccessRate(false), 1e-12)

	require.Len(t, s.ByErrors, 2)
	assert.Equal(t, 0.0, s.ByErrors[0].Key)
	assert.InDelta(t, 0.03125, s.ByErrors[0].QBER.Mean, 1e-12)
	assert.Equal(t, 10.0, s.ByErrors[1].Key)
	assert.Equal(t, 1, s.ByErrors[1].QBER.Count)
	assert.Equal(t, 0.125, s.ByErrors[1].QBER.Mean)
	assert.Equal(t, 0.0, s.ByErrors[1].QBER.StdDev)

	assert.Equal(t, []ReasonCount{
		{"QBER exceeds tolerance", 1},
		{"insufficient sifted bits", 1},
	}, s.Reasons)
}

func TestSummarizeAllQBER(t *testing.T) {
	s := Summarize(testRows(), Options{AllQBER: true})
	assert.Equal(t, 4, s.Overall.QBER.Count)
	assert.Equal(t, 0.25, s.Overall.QBER.Max)
	assert.InDelta(t, 0.1875, s.ByErrors[1].QBER.Mean, 1e-12)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, Options{})
	assert.Zero(t, s.Overall.Runs)
	assert.Zero(t, s.Overall.SuccessRate(false))
	assert.Empty(t, s.ByN)

	var buf bytes.Buffer
	require.NoError(t, s.Print(&buf))
	assert.Contains(t, buf.String(), "Total runs:")
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Summarize(testRows(), Options{QBEROnly: true}).Print(&buf))
	out := buf.String()
	for _, want := range []string{
		"Total runs:",
		"Successful:",
		"Errors:",
		"success rate (QBER only)",
		"mean QBER",
		"Abort reasons:",
		"insufficient sifted bits",
		"median 0.0625",
	} {
		assert.Contains(t, out, want)
	}
}

func TestReasonKey(t *testing.T) {
	assert.Equal(t, "QBER exceeds tolerance", reasonKey("QBER exceeds tolerance: 0.3 > 0.11"))
	assert.Equal(t, "no colon", reasonKey("no colon"))
}
