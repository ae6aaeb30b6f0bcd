package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnreadable is returned when the content is not an xlsx workbook.
var ErrUnreadable = errors.New("workbook could not be read")

// grid is the first sheet of a workbook read into memory.
type grid struct {
	rows   [][]string
	merged []mergedRange
}

// mergedRange is a merged cell area with 0-based inclusive bounds.
type mergedRange struct {
	top, left, bottom, right int
	value                    string
}

func (m mergedRange) contains(r, c int) bool {
	return r >= m.top && r <= m.bottom && c >= m.left && c <= m.right
}

func readGrid(content []byte) (*grid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: no sheets", ErrUnreadable)
	}
	name := sheets[0]

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	cells, err := f.GetMergeCells(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	g := &grid{rows: rows}
	for _, mc := range cells {
		left, top, err := excelize.CellNameToCoordinates(mc.GetStartAxis())
		if err != nil {
			continue
		}
		right, bottom, err := excelize.CellNameToCoordinates(mc.GetEndAxis())
		if err != nil {
			continue
		}
		g.merged = append(g.merged, mergedRange{
			top:    top - 1,
			left:   left - 1,
			bottom: bottom - 1,
			right:  right - 1,
			value:  mc.GetCellValue(),
		})
	}
	return g, nil
}

// raw returns the cell text ignoring merged areas.
func (g *grid) raw(r, c int) string {
	if r < 0 || c < 0 || r >= len(g.rows) || c >= len(g.rows[r]) {
		return ""
	}
	return g.rows[r][c]
}

// value returns the cell text, taking the top-left value of a merged area.
func (g *grid) value(r, c int) string {
	for _, m := range g.merged {
		if m.contains(r, c) {
			return m.value
		}
	}
	return g.raw(r, c)
}

func (g *grid) width(r int) int {
	if r < 0 || r >= len(g.rows) {
		return 0
	}
	return len(g.rows[r])
}

// rowEmpty reports whether row r has no non-blank cell.
func (g *grid) rowEmpty(r int) bool {
	if r < 0 || r >= len(g.rows) {
		return true
	}
	for _, v := range g.rows[r] {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// header is one resolved column heading.
type header struct {
	Name  string
	Group string
	Col   int
}

// headers resolves the column names of the sheet. A column takes its name
// from the header row, or from the group row when the header cell is blank.
func (g *grid) headers(groupRow, headerRow int) []header {
	width := max(g.width(groupRow), g.width(headerRow))
	for _, m := range g.merged {
		if m.top <= headerRow && m.bottom >= groupRow {
			width = max(width, m.right+1)
		}
	}

	var out []header
	for c := 0; c < width; c++ {
		main := strings.TrimSpace(g.value(groupRow, c))
		sub := ""
		if headerRow != groupRow {
			sub = strings.TrimSpace(g.value(headerRow, c))
		}
		name := sub
		if name == "" {
			name = main
		}
		if name == "" {
			continue
		}
		h := header{Name: name, Col: c}
		if main != name {
			h.Group = main
		}
		out = append(out, h)
	}
	return out
}
