package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"episweep/domain/series"
	"episweep/internal"

	"github.com/xuri/excelize/v2"
)

// CurveReader reads curves written by CurveWriter. CSV exports carry no
// per-seed values, so their curves have empty PerSeed and Seeds.
type CurveReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	logger   *internal.Logger
}

// NewCurveReader picks the format from filePath's extension.
func NewCurveReader(filePath string, logger *internal.Logger) *CurveReader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	return &CurveReader{filePath: filePath, fileType: fileType, logger: logger}
}

// Read returns the curves in file order.
func (r *CurveReader) Read() ([]*series.Curve, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}
	start := time.Now()
	var (
		curves []*series.Curve
		err    error
	)
	switch r.fileType {
	case "csv":
		curves, err = r.readCSV()
	default:
		curves, err = r.readWorkbook()
	}
	if err != nil {
		return nil, err
	}
	r.logger.Debug("[CurveReader] %s read in %.2fms (%d curves)", r.filePath, float64(time.Since(start).Nanoseconds())/1e6, len(curves))
	return curves, nil
}

func (r *CurveReader) readWorkbook() ([]*series.Curve, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	index, err := f.GetRows(IndexSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s sheet: %w", IndexSheet, err)
	}
	if len(index) < 2 {
		return nil, fmt.Errorf("workbook has no curves")
	}

	var curves []*series.Curve
	for _, row := range index[1:] {
		if len(row) < 4 {
			return nil, fmt.Errorf("index row %v is incomplete", row)
		}
		c := &series.Curve{Arm: row[1]}
		if c.AdoptionPct, err = strconv.Atoi(row[2]); err != nil {
			return nil, fmt.Errorf("index adoption_pct %q: %w", row[2], err)
		}
		if c.Population, err = strconv.ParseFloat(row[3], 64); err != nil {
			return nil, fmt.Errorf("index population %q: %w", row[3], err)
		}
		if len(row) > 4 {
			for _, s := range strings.Fields(row[4]) {
				seed, err := strconv.ParseInt(s, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("index seed %q: %w", s, err)
				}
				c.Seeds = append(c.Seeds, seed)
			}
		}

		rows, err := f.GetRows(row[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", row[0], err)
		}
		for i, data := range rows {
			if i == 0 {
				continue
			}
			p, err := parsePoint(data)
			if err != nil {
				return nil, fmt.Errorf("sheet %s row %d: %w", row[0], i+1, err)
			}
			c.Points = append(c.Points, p)
		}
		curves = append(curves, c)
	}
	return curves, nil
}

func parsePoint(row []string) (series.CurvePoint, error) {
	if len(row) < 4 {
		return series.CurvePoint{}, fmt.Errorf("expected at least 4 columns, got %d", len(row))
	}
	values := make([]float64, len(row))
	for i, v := range row {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return series.CurvePoint{}, fmt.Errorf("column %d: %w", i+1, err)
		}
		values[i] = f
	}
	return series.CurvePoint{
		TenTimesR: int(values[0]),
		R:         values[1],
		MeanPct:   values[2],
		MedianPct: values[3],
		PerSeed:   values[4:],
	}, nil
}

func (r *CurveReader) readCSV() ([]*series.Curve, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must have at least a header row and one data row")
	}

	var curves []*series.Curve
	byName := make(map[string]*series.Curve)
	for i, row := range rows[1:] {
		if len(row) != 7 {
			return nil, fmt.Errorf("CSV row %d has %d columns, expected 7", i+2, len(row))
		}
		adoption, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, fmt.Errorf("CSV row %d adoption_pct: %w", i+2, err)
		}
		population, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, fmt.Errorf("CSV row %d population: %w", i+2, err)
		}
		key := row[0] + "\x00" + row[1]
		c, ok := byName[key]
		if !ok {
			c = &series.Curve{Arm: row[0], AdoptionPct: adoption, Population: population}
			byName[key] = c
			curves = append(curves, c)
		}
		p, err := parsePoint(row[3:])
		if err != nil {
			return nil, fmt.Errorf("CSV row %d: %w", i+2, err)
		}
		c.Points = append(c.Points, p)
	}
	return curves, nil
}
