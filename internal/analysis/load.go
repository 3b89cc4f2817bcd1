package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/qkdsim/bb84/internal/batch"
	"github.com/qkdsim/bb84/internal/wire"
)

// LoadRows reads a results file: a record log when the name ends in .jsonl,
// a results CSV otherwise.
func LoadRows(path string) ([]batch.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !strings.EqualFold(filepath.Ext(path), ".jsonl") {
		rows, err := batch.ReadCSV(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return rows, nil
	}
	recs, err := wire.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rows := make([]batch.Row, len(recs))
	for i, rec := range recs {
		rows[i] = batch.RowFromRecord(rec)
	}
	return rows, nil
}
