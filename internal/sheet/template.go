// Package sheet validates and parses inventory workbooks against a template.
//
// A template names every expected column in order. Columns may carry a group
// (the merged header cell above them), a role marking the dataset name and
// attribute columns, and a data rule. The built-in template is embedded from
// template.yaml; deployments can load another with LoadTemplateFile.
package sheet

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/inventory/internal/core"
)

//go:embed template.yaml
var defaultTemplateYAML []byte

// Column roles.
const (
	RoleDatasetName          = "datasetName"
	RoleAttribute            = "attribute"
	RoleAttributeDescription = "attributeDescription"
)

// Template describes the expected workbook layout.
type Template struct {
	Name       string          `yaml:"name"`
	Sheet      string          `yaml:"sheet"`
	RulesSheet string          `yaml:"rulesSheet"`
	GroupRow   int             `yaml:"groupRow"`
	HeaderRow  int             `yaml:"headerRow"`
	MaxBytes   int64           `yaml:"maxBytes"`
	Extensions []string        `yaml:"extensions"`
	Columns    []Column        `yaml:"columns"`
	Rules      map[string]Rule `yaml:"rules"`

	byName map[string]int
}

// Column is one expected column.
type Column struct {
	Name  string `yaml:"name"`
	Group string `yaml:"group,omitempty"`
	Role  string `yaml:"role,omitempty"`
	Rule  string `yaml:"rule,omitempty"`
}

var (
	defaultOnce     sync.Once
	defaultTemplate *Template
)

// DefaultTemplate returns the embedded template.
func DefaultTemplate() *Template {
	defaultOnce.Do(func() {
		t, err := ParseTemplate(defaultTemplateYAML)
		if err != nil {
			panic(err)
		}
		defaultTemplate = t
	})
	return defaultTemplate
}

// LoadTemplateFile reads a template from a YAML file.
func LoadTemplateFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return ParseTemplate(data)
}

// ParseTemplate decodes and checks a YAML template.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if err := t.init(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Template) init() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("template %q has no columns", t.Name)
	}
	if t.HeaderRow < t.GroupRow {
		return fmt.Errorf("template header row %d is above group row %d", t.HeaderRow, t.GroupRow)
	}
	if t.MaxBytes <= 0 {
		t.MaxBytes = core.DefaultMaxFileSize
	}
	if len(t.Extensions) == 0 {
		t.Extensions = core.DefaultExtensions
	}
	if t.Sheet == "" {
		t.Sheet = "Sheet1"
	}

	t.byName = make(map[string]int, len(t.Columns))
	roles := make(map[string]bool)
	for i, c := range t.Columns {
		key := Normalize(c.Name)
		if key == "" {
			return fmt.Errorf("template column %d has no name", i)
		}
		if _, dup := t.byName[key]; dup {
			return fmt.Errorf("template column %q appears twice", c.Name)
		}
		t.byName[key] = i

		switch c.Role {
		case "":
		case RoleDatasetName, RoleAttribute, RoleAttributeDescription:
			if roles[c.Role] {
				return fmt.Errorf("template role %q assigned twice", c.Role)
			}
			roles[c.Role] = true
		default:
			return fmt.Errorf("template column %q has unknown role %q", c.Name, c.Role)
		}

		if c.Rule != "" {
			r, ok := t.Rules[c.Rule]
			if !ok {
				return fmt.Errorf("template column %q uses undefined rule %q", c.Name, c.Rule)
			}
			if err := r.check(); err != nil {
				return fmt.Errorf("rule %q: %w", c.Rule, err)
			}
		}
	}
	for _, role := range []string{RoleDatasetName, RoleAttribute, RoleAttributeDescription} {
		if !roles[role] {
			return fmt.Errorf("template has no %s column", role)
		}
	}
	return nil
}

// Names returns the column names in template order.
func (t *Template) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Lookup returns the template column whose normalized name matches name.
func (t *Template) Lookup(name string) (Column, bool) {
	i, ok := t.byName[Normalize(name)]
	if !ok {
		return Column{}, false
	}
	return t.Columns[i], true
}

// RuleFor returns the data rule of the named column.
func (t *Template) RuleFor(name string) (Rule, bool) {
	c, ok := t.Lookup(name)
	if !ok || c.Rule == "" {
		return Rule{}, false
	}
	r, ok := t.Rules[c.Rule]
	return r, ok
}

func (t *Template) column(role string) Column {
	for _, c := range t.Columns {
		if c.Role == role {
			return c
		}
	}
	return Column{}
}

// FieldMetadata describes how processed datasets map onto the form.
// RegularFields lists every column without a role, in template order.
func (t *Template) FieldMetadata() *core.FieldMetadata {
	meta := &core.FieldMetadata{
		DatasetNameField:          t.column(RoleDatasetName).Name,
		AttributesField:           t.column(RoleAttribute).Name,
		AttributeDescriptionField: t.column(RoleAttributeDescription).Name,
	}
	for _, c := range t.Columns {
		if c.Role == "" {
			meta.RegularFields = append(meta.RegularFields, c.Name)
		}
	}
	return meta
}

// AcceptsExtension reports whether name ends in one of the template's
// extensions.
func (t *Template) AcceptsExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range t.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

var spaces = regexp.MustCompile(`\s+`)

// Normalize lowercases a header, trims it and collapses inner whitespace.
func Normalize(name string) string {
	return spaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), " ")
}
