package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExtractResultsFromInput reads an offline results table. An empty
// inputType is taken from the file extension.
func ExtractResultsFromInput(inputType, path string) (ResultTable, error) {
	if inputType == "" {
		inputType = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch inputType {
	case "html", "htm":
		f, err := os.Open(path)
		if err != nil {
			return ResultTable{}, err
		}
		defer f.Close()
		return ExtractResultTable(f)
	case "xlsx":
		blob, err := os.ReadFile(path)
		if err != nil {
			return ResultTable{}, err
		}
		rows, err := ExtractResultRowsXLSX(blob)
		if err != nil {
			return ResultTable{}, err
		}
		return ResultTable{Rows: rows}, nil
	default:
		return ResultTable{}, fmt.Errorf("unsupported input type: %s", inputType)
	}
}
