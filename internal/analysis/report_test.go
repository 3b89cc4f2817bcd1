package analysis

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/qkdsim/bb84/bb84"
	"github.com/qkdsim/bb84/internal/batch"
	"github.com/qkdsim/bb84/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Report(&buf, testRows(), ReportOptions{Model: true}))
	html := buf.String()
	for _, want := range []string{
		"<html",
		"echarts",
		"BB84 batch results",
		"QBER vs error level (successful runs)",
		"Success rate vs error level",
		"n=16",
		"n=32",
		"n=16 (model)",
		"tolerance",
	} {
		assert.Contains(t, html, want)
	}
}

func TestReportTitles(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Report(&buf, testRows(), ReportOptions{Options: Options{QBEROnly: true, AllQBER: true}, Smooth: true}))
	html := buf.String()
	assert.Contains(t, html, "QBER vs error level (all runs)")
	assert.Contains(t, html, "(QBER failures only)")
	assert.NotContains(t, html, "(model)")
}

func TestReportEmpty(t *testing.T) {
	assert.Error(t, Report(&bytes.Buffer{}, nil, ReportOptions{}))
}

func TestGrid(t *testing.T) {
	ns, levels, cells := grid(testRows(), Options{})
	assert.Equal(t, []int{16, 32}, ns)
	assert.Equal(t, []float64{0, 10}, levels)
	require.Len(t, cells, 2)
	c := cells[key{32, 10}]
	require.NotNil(t, c)
	assert.Len(t, c.runs, 3)
	assert.Equal(t, 1, c.group.Success)
	assert.Equal(t, 1, c.group.QBERAborts)
	assert.Equal(t, 1, c.group.Errors)
	_, ok := cells[key{16, 10}]
	assert.False(t, ok)
}

func TestLoadRows(t *testing.T) {
	dir := t.TempDir()
	rows := testRows()

	var csvBuf bytes.Buffer
	require.NoError(t, batch.WriteCSV(&csvBuf, rows))
	csvPath := filepath.Join(dir, "results.csv")
	require.NoError(t, os.WriteFile(csvPath, csvBuf.Bytes(), 0o644))

	var jsonBuf bytes.Buffer
	w := wire.NewWriter(&jsonBuf)
	for _, r := range rows {
		rec := bb84.Record{
			bb84.FieldN:      r.N,
			bb84.FieldErrors: r.Errors,
			bb84.FieldStatus: string(r.Status),
			bb84.FieldReason: r.Reason,
		}
		if r.HasQBER {
			rec[bb84.FieldQBER] = r.QBER
		}
		require.NoError(t, w.Write(rec))
	}
	jsonPath := filepath.Join(dir, "results.jsonl")
	require.NoError(t, os.WriteFile(jsonPath, jsonBuf.Bytes(), 0o644))

	for _, path := range []string{csvPath, jsonPath} {
		got, err := LoadRows(path)
		require.NoError(t, err, path)
		require.Len(t, got, len(rows), path)
		want := Summarize(rows, Options{}).Overall
		s := Summarize(got, Options{}).Overall
		assert.Equal(t, want.Success, s.Success, path)
		assert.Equal(t, want.QBERAborts, s.QBERAborts, path)
		assert.Equal(t, want.SiftingAborts, s.SiftingAborts, path)
		assert.Equal(t, want.Errors, s.Errors, path)
		assert.Equal(t, want.QBER.Mean, s.QBER.Mean, path)
	}

	_, err := LoadRows(filepath.Join(dir, "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
