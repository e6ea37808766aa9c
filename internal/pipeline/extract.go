package pipeline

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"hipica/internal/util"
)

const resultTableMarker = "Ejemplar (Padrillo)"

var (
	ErrNoResultTable = errors.New("no results table found")

	rePrize      = regexp.MustCompile(`Pr\.\s*([^(\n\r]*)`)
	rePlaceDigit = regexp.MustCompile(`^\d+$`)
	placeStatus  = map[string]bool{"DEB": true, "NTR": true, "S/P": true, "ROD": true, "DNF": true}
)

// ResultTable holds the raw cells of one race results table.
type ResultTable struct {
	Prize string
	Rows  [][]string
}

// ExtractResultTable reads a race results page. The table is the last one
// whose text carries the "Ejemplar (Padrillo)" header; rows with fewer than
// eight cells or without a place in the first cell are dropped.
func ExtractResultTable(r io.Reader) (ResultTable, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return ResultTable{}, err
	}

	var out ResultTable
	header := doc.Find("table.elturf_padding_tablas").First()
	if header.Length() > 0 {
		if m := rePrize.FindStringSubmatch(header.Text()); m != nil {
			out.Prize = util.NormalizeSpaces(m[1])
		}
	}

	var target *goquery.Selection
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		if strings.Contains(util.NormalizeSpaces(table.Text()), resultTableMarker) {
			target = table
		}
	})
	if target == nil {
		return out, ErrNoResultTable
	}

	target.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := []string{}
		row.ChildrenFiltered("td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, util.NormalizeSpaces(cell.Text()))
		})
		if len(cells) < 8 || !IsPlaceCell(cells[0]) {
			return
		}
		out.Rows = append(out.Rows, cells)
	})
	return out, nil
}

// IsPlaceCell accepts finishing places ("1", "1°") and the status codes used
// for runners that did not finish.
func IsPlaceCell(cell string) bool {
	s := strings.TrimSpace(strings.NewReplacer("°", "", "º", "").Replace(cell))
	return rePlaceDigit.MatchString(s) || placeStatus[strings.ToUpper(s)]
}

// ExtractResultRowsXLSX reads raw results rows from the first sheet of a
// workbook, applying the same row filter as the HTML tables.
func ExtractResultRowsXLSX(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}

	out := [][]string{}
	for _, row := range rows {
		cells := make([]string, 0, len(row))
		for _, c := range row {
			cells = append(cells, util.NormalizeSpaces(c))
		}
		// excelize trims trailing empty cells
		for len(cells) > 0 && cells[len(cells)-1] == "" {
			cells = cells[:len(cells)-1]
		}
		if len(cells) < 8 || !IsPlaceCell(cells[0]) {
			continue
		}
		out = append(out, cells)
	}
	return out, nil
}

// ExtractPDFText returns the text of every page, one line per text row.
func ExtractPDFText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil || len(rows) == 0 {
			text, err := p.GetPlainText(nil)
			if err != nil {
				continue
			}
			b.WriteString(text)
			b.WriteString("\n")
			continue
		}
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				words = append(words, word.S)
			}
			b.WriteString(strings.Join(words, " "))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = util.NormalizeSpaces(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
