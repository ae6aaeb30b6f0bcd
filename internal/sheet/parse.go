package sheet

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/inventory/internal/core"
)

// Parse extracts datasets from the first sheet of a workbook.
//
// Columns are matched to the template by normalized header. Rows below the
// header row are grouped into datasets: a dataset starts at every row whose
// dataset name is non-blank and differs, ignoring case, from the previous
// one. Rows before the first named row are ignored. Each row contributes one
// attribute. Merged cells count as filled with their top-left value.
func (t *Template) Parse(content []byte) ([]core.ImportedDataset, error) {
	g, err := readGrid(content)
	if err != nil {
		return nil, err
	}

	cols := make(map[string]int)
	for _, h := range g.headers(t.GroupRow, t.HeaderRow) {
		key := Normalize(h.Name)
		if _, ok := t.byName[key]; !ok {
			continue
		}
		if _, seen := cols[key]; !seen {
			cols[key] = h.Col
		}
	}

	colOf := func(c Column) int {
		if i, ok := cols[Normalize(c.Name)]; ok {
			return i
		}
		return -1
	}
	nameCol := colOf(t.column(RoleDatasetName))
	if nameCol < 0 {
		return nil, fmt.Errorf("sheet has no %q column", t.column(RoleDatasetName).Name)
	}
	attr := t.column(RoleAttribute)
	attrDesc := t.column(RoleAttributeDescription)
	attrCol, attrDescCol := colOf(attr), colOf(attrDesc)

	var (
		out  []core.ImportedDataset
		cur  *core.ImportedDataset
		last string
	)
	for r := t.HeaderRow + 1; r < len(g.rows); r++ {
		if g.rowEmpty(r) {
			continue
		}

		name := strings.TrimSpace(g.value(r, nameCol))
		if name != "" && !strings.EqualFold(name, last) {
			out = append(out, core.ImportedDataset{Attributes: []core.Record{}})
			cur = &out[len(out)-1]
			last = name
		}
		if cur == nil {
			continue
		}

		for _, c := range t.Columns {
			if c.Role == RoleAttribute || c.Role == RoleAttributeDescription {
				continue
			}
			col := colOf(c)
			if col < 0 {
				continue
			}
			v := CleanNumeric(g.value(r, col))
			// The first non-blank value of a column wins.
			if prev, ok := cur.Fields.Get(c.Name); ok && (v == "" || prev != "") {
				continue
			}
			cur.Fields.Set(c.Name, v)
		}

		a := strings.TrimSpace(cellAt(g, r, attrCol))
		d := strings.TrimSpace(cellAt(g, r, attrDescCol))
		if a == "" && d == "" {
			continue
		}
		cur.Attributes = append(cur.Attributes, core.Record{
			{Key: attr.Name, Value: a},
			{Key: attrDesc.Name, Value: d},
		})
	}
	return out, nil
}

func cellAt(g *grid, r, c int) string {
	if c < 0 {
		return ""
	}
	return g.value(r, c)
}
