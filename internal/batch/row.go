package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/qkdsim/bb84/bb84"
)

// Record fields the batch driver adds to a run's bb84.Record.
const (
	FieldTimestamp = "timestamp"
	FieldBatch     = "batch"
	FieldRepeat    = "repeat"
)

// Columns is the header of a results CSV.
var Columns = []string{
	FieldTimestamp, FieldBatch, bb84.FieldN, bb84.FieldDelta, bb84.FieldTolerance,
	bb84.FieldErrors, bb84.FieldBackend, FieldRepeat, bb84.FieldStatus,
	bb84.FieldQBER, bb84.FieldTotalQubits, bb84.FieldSiftedLen,
	bb84.FieldKeyLength, bb84.FieldReason,
}

// A Row is one line of a results CSV.
type Row struct {
	Timestamp time.Time
	Batch     string
	N         int
	Delta     float64
	Tolerance float64
	Errors    float64
	Backend   string
	Repeat    int
	Status    bb84.Status
	// QBER is meaningful only when HasQBER is set: on success and on a QBER
	// abort.
	QBER        float64
	HasQBER     bool
	TotalQubits int
	SiftedLen   int
	KeyLength   int
	Reason      string
}

// QBERAbort reports whether the row is an abort caused by the check sample,
// as opposed to insufficient sifting.
func (r Row) QBERAbort() bool {
	return r.Status == bb84.StatusAbort && r.HasQBER
}

// RowFromRecord flattens a run record. Missing fields are left zero.
func RowFromRecord(rec bb84.Record) Row {
	row := Row{
		Batch:   rec.Text(FieldBatch),
		Backend: rec.Text(bb84.FieldBackend),
		Status:  rec.Status(),
		Reason:  rec.Text(bb84.FieldReason),
	}
	row.N, _ = rec.Int(bb84.FieldN)
	row.Delta, _ = rec.Float(bb84.FieldDelta)
	row.Tolerance, _ = rec.Float(bb84.FieldTolerance)
	row.Errors, _ = rec.Float(bb84.FieldErrors)
	row.Repeat, _ = rec.Int(FieldRepeat)
	row.QBER, row.HasQBER = rec.Float(bb84.FieldQBER)
	row.TotalQubits, _ = rec.Int(bb84.FieldTotalQubits)
	row.SiftedLen, _ = rec.Int(bb84.FieldSiftedLen)
	row.KeyLength, _ = rec.Int(bb84.FieldKeyLength)
	if ts, err := time.Parse(time.RFC3339Nano, rec.Text(FieldTimestamp)); err == nil {
		row.Timestamp = ts
	}
	return row
}

func (r Row) fields() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	out := []string{
		r.Timestamp.Format(time.RFC3339Nano), r.Batch, strconv.Itoa(r.N),
		f(r.Delta), f(r.Tolerance), f(r.Errors), r.Backend,
		strconv.Itoa(r.Repeat), string(r.Status), "", "", "", "", r.Reason,
	}
	if r.HasQBER {
		out[9] = f(r.QBER)
	}
	if r.Status != bb84.StatusError {
		out[10] = strconv.Itoa(r.TotalQubits)
		out[11] = strconv.Itoa(r.SiftedLen)
	}
	if r.Status == bb84.StatusSuccess {
		out[12] = strconv.Itoa(r.KeyLength)
	}
	return out
}

// WriteCSV writes a header and one line per row.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.fields()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a results CSV. Columns are located by header name, so files
// with extra, missing or reordered optional columns still load; n, errors and
// status are required.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("results csv: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("results csv: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	for _, req := range []string{bb84.FieldN, bb84.FieldErrors, bb84.FieldStatus} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("results csv: missing column %q", req)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("results csv: %w", err)
		}
		p := lineParser{rec: rec, col: col}
		row := Row{
			Batch:     p.text(FieldBatch),
			N:         p.atoi(bb84.FieldN),
			Delta:     p.parseFloat(bb84.FieldDelta),
			Tolerance: p.parseFloat(bb84.FieldTolerance),
			Errors:    p.parseFloat(bb84.FieldErrors),
			Backend:   p.text(bb84.FieldBackend),
			Repeat:    p.atoi(FieldRepeat),
			Status:    bb84.Status(p.text(bb84.FieldStatus)),
			Reason:    p.text(bb84.FieldReason),
		}
		if p.text(bb84.FieldQBER) != "" {
			row.QBER, row.HasQBER = p.parseFloat(bb84.FieldQBER), true
		}
		row.TotalQubits = p.atoi(bb84.FieldTotalQubits)
		row.SiftedLen = p.atoi(bb84.FieldSiftedLen)
		row.KeyLength = p.atoi(bb84.FieldKeyLength)
		if ts := p.text(FieldTimestamp); ts != "" && p.err == nil {
			row.Timestamp, p.err = parseTimestamp(ts)
		}
		if p.err != nil {
			return nil, fmt.Errorf("results csv: line %d: %w", line, p.err)
		}
		rows = append(rows, row)
	}
}

// parseTimestamp accepts RFC 3339 and the zone-less ISO form older result
// files carry.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05.999999999", s)
}

// lineParser reads typed columns of one CSV line, keeping the first error.
type lineParser struct {
	rec []string
	col map[string]int
	err error
}

func (p *lineParser) text(name string) string {
	i, ok := p.col[name]
	if !ok || i >= len(p.rec) {
		return ""
	}
	return p.rec[i]
}

func (p *lineParser) atoi(name string) int {
	s := p.text(name)
	if s == "" || p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.err = fmt.Errorf("column %s: %w", name, err)
	}
	return v
}

func (p *lineParser) parseFloat(name string) float64 {
	s := p.text(name)
	if s == "" || p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("column %s: %w", name, err)
	}
	return v
}
