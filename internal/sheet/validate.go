package sheet

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/inventory/internal/core"
)

// Messages reported by Validate before the workbook is opened.
const (
	MsgNoFile      = "File does not exist"
	MsgEmptyFile   = "File is empty"
	MsgUnsupported = "Unsupported file format. Only XLSX, XLS files are allowed"
	MsgNoColumns   = "File is empty."
	MsgUnreadable  = "The workbook could not be read. Save it as .xlsx and try again"
)

// Validate checks an uploaded workbook against the template: file basics,
// then column structure, then cell values. Every problem found is reported;
// the response succeeds only when there are none.
func (t *Template) Validate(name string, content []byte) core.ValidateResponse {
	if msg := t.checkFile(name, content); msg != "" {
		return failed(msg)
	}

	g, err := readGrid(content)
	if err != nil {
		return failed(MsgUnreadable)
	}
	headers := g.headers(t.GroupRow, t.HeaderRow)
	if len(headers) == 0 {
		return failed(MsgNoColumns)
	}

	errs := t.compareStructure(headers)
	errs = append(errs, t.checkValues(g, headers)...)

	resp := core.ValidateResponse{
		Success:     len(errs) == 0,
		ColumnCount: len(headers),
		RowCount:    t.dataRows(g),
	}
	if resp.Success {
		resp.DataTypes = "All valid"
		resp.Encoding = "UTF-8"
	} else {
		resp.Errors = errs
	}
	return resp
}

func failed(msg string) core.ValidateResponse {
	return core.ValidateResponse{Errors: []string{msg}}
}

func (t *Template) checkFile(name string, content []byte) string {
	switch {
	case name == "" && content == nil:
		return MsgNoFile
	case len(content) == 0:
		return MsgEmptyFile
	case int64(len(content)) > t.MaxBytes:
		return fmt.Sprintf("File size exceeds %dMB limit", t.MaxBytes>>20)
	case !t.AcceptsExtension(name):
		return MsgUnsupported
	}
	return ""
}

// compareStructure reports count, missing and extra columns. Names are
// compared normalized; missing columns are listed in template order and
// extra columns in sheet order.
func (t *Template) compareStructure(headers []header) []string {
	var errs []string
	if len(headers) != len(t.Columns) {
		errs = append(errs, fmt.Sprintf("Column count mismatch. Expected: %d, Found: %d", len(t.Columns), len(headers)))
	}

	found := make(map[string]bool, len(headers))
	var extra []string
	for _, h := range headers {
		key := Normalize(h.Name)
		if found[key] {
			continue
		}
		found[key] = true
		if _, ok := t.byName[key]; !ok {
			extra = append(extra, key)
		}
	}

	var missing []string
	for _, c := range t.Columns {
		if key := Normalize(c.Name); !found[key] {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		errs = append(errs, "Missing columns: "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		errs = append(errs, "Extra columns found: "+strings.Join(extra, ", "))
	}
	return errs
}

// checkValues applies column rules to every non-blank data cell. Rows are
// reported with their 1-based sheet number.
func (t *Template) checkValues(g *grid, headers []header) []string {
	var errs []string
	for _, h := range headers {
		rule, ok := t.RuleFor(h.Name)
		if !ok {
			continue
		}
		for r := t.HeaderRow + 1; r < len(g.rows); r++ {
			value := strings.TrimSpace(g.raw(r, h.Col))
			if value == "" {
				continue
			}
			if problems := rule.Check(value); len(problems) > 0 {
				errs = append(errs, fmt.Sprintf(`Row %d, Column "%s": %s (Value: "%s")`,
					r+1, h.Name, strings.Join(problems, ", "), value))
			}
		}
	}
	return errs
}

func (t *Template) dataRows(g *grid) int {
	n := 0
	for r := t.HeaderRow + 1; r < len(g.rows); r++ {
		if !g.rowEmpty(r) {
			n++
		}
	}
	return n
}
