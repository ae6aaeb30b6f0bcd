package sheet

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// dropListRows is how many data rows get a drop-down list.
const dropListRows = 1000

// Workbook renders the template as an xlsx file: grouped headings merged
// over their columns, ungrouped headings merged down to the header row,
// drop-down lists on enum and yes/no columns, and a second sheet listing the
// allowed values. rows are written below the header row as-is.
func (t *Template) Workbook(rows ...[]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if t.Sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", t.Sheet); err != nil {
			return nil, fmt.Errorf("name sheet: %w", err)
		}
	}
	sheet := t.Sheet

	if err := t.writeHeaders(f, sheet); err != nil {
		return nil, err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, t.HeaderRow+2+i)
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := t.addDropLists(f, sheet); err != nil {
		return nil, err
	}
	if err := t.writeRulesSheet(f); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *Template) writeHeaders(f *excelize.File, sheet string) error {
	groupRow, headerRow := t.GroupRow+1, t.HeaderRow+1

	for i := 0; i < len(t.Columns); {
		c := t.Columns[i]
		col := i + 1

		if c.Group == "" || groupRow == headerRow {
			if err := setCell(f, sheet, col, groupRow, c.Name); err != nil {
				return err
			}
			if groupRow != headerRow {
				if err := merge(f, sheet, col, groupRow, col, headerRow); err != nil {
					return err
				}
			}
			i++
			continue
		}

		end := i
		for end+1 < len(t.Columns) && t.Columns[end+1].Group == c.Group {
			end++
		}
		if err := setCell(f, sheet, col, groupRow, c.Group); err != nil {
			return err
		}
		if end > i {
			if err := merge(f, sheet, col, groupRow, end+1, groupRow); err != nil {
				return err
			}
		}
		for j := i; j <= end; j++ {
			if err := setCell(f, sheet, j+1, headerRow, t.Columns[j].Name); err != nil {
				return err
			}
		}
		i = end + 1
	}
	return nil
}

func (t *Template) addDropLists(f *excelize.File, sheet string) error {
	for i, c := range t.Columns {
		if c.Rule == "" {
			continue
		}
		r := t.Rules[c.Rule]
		if r.Type != RuleEnum && r.Type != RuleBoolean {
			continue
		}
		values := r.Values
		if len(values) == 0 {
			values = []string{"Yes", "No"}
		}

		from, err := excelize.CoordinatesToCellName(i+1, t.HeaderRow+2)
		if err != nil {
			return err
		}
		to, err := excelize.CoordinatesToCellName(i+1, t.HeaderRow+1+dropListRows)
		if err != nil {
			return err
		}
		dv := excelize.NewDataValidation(true)
		dv.Sqref = from + ":" + to
		if err := dv.SetDropList(values); err != nil {
			return fmt.Errorf("drop list for %q: %w", c.Name, err)
		}
		if err := f.AddDataValidation(sheet, dv); err != nil {
			return fmt.Errorf("drop list for %q: %w", c.Name, err)
		}
	}
	return nil
}

// writeRulesSheet lists each rule's allowed values in its own column.
func (t *Template) writeRulesSheet(f *excelize.File) error {
	if t.RulesSheet == "" {
		return nil
	}
	if _, err := f.NewSheet(t.RulesSheet); err != nil {
		return fmt.Errorf("add rules sheet: %w", err)
	}

	col := 1
	seen := make(map[string]bool)
	for _, c := range t.Columns {
		if c.Rule == "" || seen[c.Rule] {
			continue
		}
		seen[c.Rule] = true
		r := t.Rules[c.Rule]

		if err := setCell(f, t.RulesSheet, col, 1, c.Rule); err != nil {
			return err
		}
		values := r.Values
		if len(values) == 0 && r.Min != nil && r.Max != nil {
			for n := *r.Min; n <= *r.Max; n++ {
				values = append(values, fmt.Sprint(n))
			}
		}
		for i, v := range values {
			if err := setCell(f, t.RulesSheet, col, i+2, v); err != nil {
				return err
			}
		}
		col++
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}

func merge(f *excelize.File, sheet string, c1, r1, c2, r2 int) error {
	from, err := excelize.CoordinatesToCellName(c1, r1)
	if err != nil {
		return err
	}
	to, err := excelize.CoordinatesToCellName(c2, r2)
	if err != nil {
		return err
	}
	return f.MergeCell(sheet, from, to)
}
