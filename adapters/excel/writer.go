// Package excel exports final-infected curves as an xlsx workbook or a long
// CSV table, and reads either back.
package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"episweep/domain/series"
	"episweep/internal"

	"github.com/xuri/excelize/v2"
)

// IndexSheet lists every curve sheet in a workbook.
const IndexSheet = "curves"

var indexHeader = []interface{}{"sheet", "arm", "adoption_pct", "population", "seeds"}

// CurveWriter writes curves to xlsx or csv depending on the file extension.
type CurveWriter struct {
	filePath string
	fileType string // "xlsx" or "csv"
	logger   *internal.Logger
}

// NewCurveWriter picks the format from filePath's extension.
func NewCurveWriter(filePath string, logger *internal.Logger) *CurveWriter {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	return &CurveWriter{filePath: filePath, fileType: fileType, logger: logger}
}

// Write exports curves, replacing any existing file.
func (w *CurveWriter) Write(curves []*series.Curve) error {
	if len(curves) == 0 {
		return fmt.Errorf("no curves to export")
	}
	var err error
	switch w.fileType {
	case "csv":
		err = w.writeCSV(curves)
	default:
		err = w.writeWorkbook(curves)
	}
	if err != nil {
		return err
	}
	w.logger.Info("[CurveWriter] wrote %d curves to %s", len(curves), w.filePath)
	return nil
}

// writeWorkbook writes an index sheet plus one sheet per curve with a row
// per R: ten_times_r, R, mean, median, then one column per seed.
func (w *CurveWriter) writeWorkbook(curves []*series.Curve) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", IndexSheet); err != nil {
		return fmt.Errorf("failed to name index sheet: %w", err)
	}
	if err := f.SetSheetRow(IndexSheet, "A1", &indexHeader); err != nil {
		return fmt.Errorf("failed to write index header: %w", err)
	}

	for i, c := range curves {
		sheet := sheetName(c.Name())
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
		seeds := make([]string, len(c.Seeds))
		for j, s := range c.Seeds {
			seeds[j] = strconv.FormatInt(s, 10)
		}
		index := []interface{}{sheet, c.Arm, c.AdoptionPct, c.Population, strings.Join(seeds, " ")}
		if err := f.SetSheetRow(IndexSheet, cell(1, i+2), &index); err != nil {
			return fmt.Errorf("failed to write index row: %w", err)
		}

		header := []interface{}{"ten_times_r", "R", "mean_pct", "median_pct"}
		for _, s := range seeds {
			header = append(header, "seed_"+s)
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", sheet, err)
		}
		for j, p := range c.Points {
			row := []interface{}{p.TenTimesR, p.R, p.MeanPct, p.MedianPct}
			for _, v := range p.PerSeed {
				row = append(row, v)
			}
			if err := f.SetSheetRow(sheet, cell(1, j+2), &row); err != nil {
				return fmt.Errorf("failed to write row for %s: %w", sheet, err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(w.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := f.SaveAs(w.filePath); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// writeCSV writes one row per (curve, R) in long format.
func (w *CurveWriter) writeCSV(curves []*series.Curve) error {
	if err := os.MkdirAll(filepath.Dir(w.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(w.filePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write([]string{"arm", "adoption_pct", "population", "ten_times_r", "r", "mean_pct", "median_pct"}); err != nil {
		return err
	}
	for _, c := range curves {
		for _, p := range c.Points {
			if err := cw.Write([]string{
				c.Arm,
				strconv.Itoa(c.AdoptionPct),
				formatFloat(c.Population),
				strconv.Itoa(p.TenTimesR),
				formatFloat(p.R),
				formatFloat(p.MeanPct),
				formatFloat(p.MedianPct),
			}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write CSV file: %w", err)
	}
	return file.Close()
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// sheetName trims to Excel's 31 character limit.
func sheetName(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	return name
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
