package bb84

import (
	"fmt"
	"strconv"
)

// A Record is the flat, serializable form of a run outcome, as consumed by a
// batch driver. Keys are the columns of the batch result schema; keys that do
// not apply to an outcome are absent. Values are strings, bools, ints or
// float64s (ints come back as float64 after a JSON round trip).
type Record map[string]interface{}

const (
	FieldN               = "n"
	FieldDelta           = "delta"
	FieldTolerance       = "tolerance"
	FieldErrors          = "errors"
	FieldEve             = "eve"
	FieldBobPerfect      = "bob_perfect"
	FieldBackend         = "backend"
	FieldStatus          = "status"
	FieldReason          = "reason"
	FieldQBER            = "qber"
	FieldTotalQubits     = "total_qubits"
	FieldSiftedLen       = "sifted_len"
	FieldKeyLength       = "key_length"
	FieldCheckMismatches = "check_mismatches"
	FieldSharedKeyBits   = "shared_key_bits"
	FieldRealErrorRatio  = "real_error_ratio"
	FieldReconciliation  = "reconciliation"
)

// ReconciliationNone is the reconciliation field of every success record.
const ReconciliationNone = "unimplemented"

func paramsRecord(p Params, backend string) Record {
	return Record{
		FieldN:          p.N,
		FieldDelta:      p.Delta,
		FieldTolerance:  p.Tolerance,
		FieldErrors:     p.AvgErrors,
		FieldEve:        p.Eve,
		FieldBobPerfect: p.BobPerfect,
		FieldBackend:    backend,
	}
}

// Record flattens r. backend names the backend the run used.
func (r Result) Record(backend string) Record {
	rec := paramsRecord(r.Params, backend)
	rec[FieldStatus] = string(r.Status)
	rec[FieldTotalQubits] = r.TotalQubits
	rec[FieldSiftedLen] = r.SiftedLen
	if r.Status == StatusAbort {
		rec[FieldReason] = r.Reason
	}
	if r.Status == StatusSuccess || r.Abort == AbortExcessiveQBER {
		rec[FieldQBER] = r.QBER
		rec[FieldCheckMismatches] = r.CheckMismatches
	}
	if r.Status == StatusSuccess {
		rec[FieldKeyLength] = r.Key.Size()
		rec[FieldSharedKeyBits] = r.Key.String()
		rec[FieldRealErrorRatio] = r.Diagnostics.RealErrorRatio
		rec[FieldReconciliation] = ReconciliationNone
	}
	return rec
}

// ErrorRecord builds the record of a run that failed with err, so that
// infrastructure faults are reported distinctly from protocol aborts.
func ErrorRecord(p Params, backend string, err error) Record {
	rec := paramsRecord(p, backend)
	rec[FieldStatus] = string(StatusError)
	rec[FieldReason] = err.Error()
	return rec
}

// Status returns the record's status tag.
func (r Record) Status() Status {
	s, _ := r[FieldStatus].(string)
	return Status(s)
}

// Float returns the numeric field key as a float64.
func (r Record) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Int returns the numeric field key as an int.
func (r Record) Int(key string) (int, bool) {
	switch v := r[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Text returns the field key formatted for a flat text column: numbers in
// their shortest form, absent fields as the empty string.
func (r Record) Text(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
