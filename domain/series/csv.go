package series

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"episweep/domain/core"
)

// WriteCSV writes a header row of channel names, then one row per day.
// Values are formatted so that ReadCSV restores them exactly.
func (s *ResultSeries) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.order); err != nil {
		return err
	}
	row := make([]string, len(s.order))
	for d := 0; d < s.length; d++ {
		for i, name := range s.order {
			row[i] = strconv.FormatFloat(s.channels[name][d], 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a table with a header row of channel names. Ragged rows and
// non-numeric cells are shape errors.
func ReadCSV(r io.Reader) (*ResultSeries, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, core.NewShapeMismatchError("parse table: %v", err)
	}
	if len(records) == 0 {
		return nil, core.NewShapeMismatchError("parse table: missing header")
	}
	names := records[0]
	cols := make([][]float64, len(names))
	for i := range cols {
		cols[i] = make([]float64, 0, len(records)-1)
	}
	for line, rec := range records[1:] {
		for i, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, core.NewShapeMismatchError("parse table row %d column %s: %v", line+1, names[i], err)
			}
			cols[i] = append(cols[i], v)
		}
	}
	return FromColumns(names, cols)
}

// String summarizes the table shape for logs.
func (s *ResultSeries) String() string {
	return fmt.Sprintf("ResultSeries{%d rows, %d channels}", s.length, len(s.order))
}
