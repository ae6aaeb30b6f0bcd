package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AlecAivazis/survey/v2/terminal"

	"github.com/JonMunkholm/inventory/internal/sheet"
	"github.com/JonMunkholm/inventory/internal/store"
	"github.com/JonMunkholm/inventory/internal/upstream"
)

const ns = "_inventory_"

// fakePrompter answers every confirmation with answer and records the
// questions.
type fakePrompter struct {
	answer    bool
	err       error
	questions []string
}

func (p *fakePrompter) Confirm(_ context.Context, message, _ string, _ bool) (bool, error) {
	p.questions = append(p.questions, message)
	return p.answer, p.err
}

func portalServer(t *testing.T) (string, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	srv := httptest.NewServer(upstream.New(upstream.Config{Store: mem, Namespace: ns}).Routes())
	t.Cleanup(srv.Close)
	return srv.URL, mem
}

func execute(t *testing.T, p Prompter, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PORTAL_BASE_URL", "")
	t.Setenv("PORTAL_NAMESPACE", "")

	var out bytes.Buffer
	root := NewRootCmd(WithPrompter(p))
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeWorkbook(t *testing.T, rows ...map[string]string) string {
	t.Helper()
	tmpl := sheet.DefaultTemplate()
	names := tmpl.Names()
	var data [][]string
	for _, values := range rows {
		row := make([]string, len(names))
		for i, n := range names {
			row[i] = values[n]
		}
		data = append(data, row)
	}
	content, err := tmpl.Workbook(data...)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "datasets.xlsx")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

var budget = map[string]string{
	"#":                 "1",
	"Dataset Name":      "Budget",
	"Attribute":         "amount",
	"User Demand":       "3",
	"Already Published": "Yes",
}

func TestTemplateCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.xlsx")
	out, err := execute(t, &fakePrompter{}, "template", "-o", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Template written to "+path) {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}

func TestValidateCmd(t *testing.T) {
	out, err := execute(t, &fakePrompter{}, "validate", writeWorkbook(t, budget))
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Validation passed: 16 columns, 1 rows") {
		t.Errorf("output = %q", out)
	}
}

func TestValidateCmd_Failures(t *testing.T) {
	bad := writeWorkbook(t, map[string]string{"Dataset Name": "Budget", "User Demand": "9"})
	out, err := execute(t, &fakePrompter{}, "validate", bad)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, "Validation failed") || !strings.Contains(out, "User Demand") {
		t.Errorf("output = %q", out)
	}
}

func TestValidateCmd_Remote(t *testing.T) {
	url, _ := portalServer(t)
	out, err := execute(t, &fakePrompter{}, "validate", "--remote", "--portal", url, writeWorkbook(t, budget))
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Validation passed") {
		t.Errorf("output = %q", out)
	}
}

func TestImportCmd_NoPortal(t *testing.T) {
	_, err := execute(t, &fakePrompter{}, "import", writeWorkbook(t, budget))
	if err == nil || !strings.Contains(err.Error(), "no portal configured") {
		t.Fatalf("err = %v", err)
	}
}

func TestImportCmd_Create(t *testing.T) {
	url, mem := portalServer(t)
	out, err := execute(t, &fakePrompter{}, "import", "--portal", url, "--namespace", ns, writeWorkbook(t, budget))
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	for _, want := range []string{
		"Inventory Submission",
		"Validation passed",
		"Successfully loaded 1 dataset(s) from file",
		"Inventory 1 saved (draft)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if st, ok := mem.Status(1); !ok || st != store.StatusDraft {
		t.Errorf("status = %v, %v", st, ok)
	}
}

func TestImportCmd_ActionNone(t *testing.T) {
	url, mem := portalServer(t)
	out, err := execute(t, &fakePrompter{}, "import", "--portal", url, "--namespace", ns, "--action", "none", writeWorkbook(t, budget))
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	if strings.Contains(out, "saved") {
		t.Errorf("form was saved:\n%s", out)
	}
	if _, ok := mem.Status(1); ok {
		t.Error("inventory stored")
	}
}

func TestImportCmd_Merge(t *testing.T) {
	schools := map[string]string{"#": "2", "Dataset Name": "Schools", "User Demand": "2"}

	tests := []struct {
		name      string
		prompter  *fakePrompter
		wantErr   error
		wantOut   string
		wantAsked bool
	}{
		{"confirmed", &fakePrompter{answer: true}, nil, "Merge complete: 1 updated, 1 new", true},
		{"declined", &fakePrompter{answer: false}, ErrAborted, "Merge cancelled", true},
		{"interrupted", &fakePrompter{err: ErrAborted}, ErrAborted, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, _ := portalServer(t)
			if _, err := execute(t, &fakePrompter{}, "import", "--portal", url, "--namespace", ns, writeWorkbook(t, budget)); err != nil {
				t.Fatal(err)
			}

			out, err := execute(t, tt.prompter, "import", "--portal", url, "--namespace", ns,
				"--inventory", "1", writeWorkbook(t, budget, schools))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v\n%s", err, tt.wantErr, out)
			}
			for _, want := range []string{tt.wantOut, "Existing datasets: Budget\n", "Datasets in file:  Budget, Schools\n"} {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			if asked := len(tt.prompter.questions) > 0; asked != tt.wantAsked {
				t.Errorf("asked = %v, want %v", asked, tt.wantAsked)
			}
		})
	}
}

func TestImportCmd_AssumeYes(t *testing.T) {
	url, _ := portalServer(t)
	if _, err := execute(t, &fakePrompter{}, "import", "--portal", url, "--namespace", ns, writeWorkbook(t, budget)); err != nil {
		t.Fatal(err)
	}

	p := &fakePrompter{}
	out, err := execute(t, p, "import", "--portal", url, "--namespace", ns, "--inventory", "1", "--yes", writeWorkbook(t, budget))
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	if len(p.questions) != 0 {
		t.Errorf("prompted with --yes: %v", p.questions)
	}
	if !strings.Contains(out, "Merge complete: 1 updated, 0 new") {
		t.Errorf("output = %s", out)
	}
}

func TestImportCmd_UnknownInventory(t *testing.T) {
	url, _ := portalServer(t)
	_, err := execute(t, &fakePrompter{}, "import", "--portal", url, "--namespace", ns, "--inventory", "99", writeWorkbook(t, budget))
	if err == nil {
		t.Fatal("expected load error")
	}
}

func TestTranslateSurveyErr(t *testing.T) {
	other := fmt.Errorf("tty closed")
	tests := []struct {
		in   error
		want error
	}{
		{terminal.InterruptErr, ErrAborted},
		{other, other},
	}
	for _, tt := range tests {
		if got := translateSurveyErr(tt.in); !errors.Is(got, tt.want) {
			t.Errorf("translateSurveyErr(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
