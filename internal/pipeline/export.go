package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"hipica/internal"
	"hipica/internal/normalize"
)

// ExportResultsToXLSX writes canonical result rows, one per line. Unavailable
// values are left as empty cells.
func ExportResultsToXLSX(rows []internal.ResultExportRow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	headers := []string{"venue", "date", "race", "row"}
	for _, field := range normalize.Fields() {
		headers = append(headers, field.String())
	}
	headers = append(headers, "sire", "runner_id")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.Venue)
		set(2, row.Date)
		set(3, row.RaceNumber)
		set(4, row.Row)
		for j, field := range normalize.Fields() {
			set(5+j, cellValue(row.Record.Get(field), field.Shape()))
		}
		set(5+normalize.FieldCount, row.Sire)
		set(6+normalize.FieldCount, derefInt(row.RunnerID))
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func cellValue(v normalize.Value, shape normalize.Shape) any {
	if !v.Available() {
		return ""
	}
	switch shape {
	case normalize.ShapeInteger:
		return v.Int()
	case normalize.ShapeDecimal:
		return v.Float()
	default:
		return v.String()
	}
}

func derefInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}
