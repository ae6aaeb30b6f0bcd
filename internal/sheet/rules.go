package sheet

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// RuleType is the kind of check applied to a cell.
type RuleType string

const (
	RuleEnum    RuleType = "enum"
	RuleScale   RuleType = "scale"
	RuleNumeric RuleType = "numeric"
	RuleBoolean RuleType = "boolean"
)

// Rule constrains the values of one column. Blank cells always pass.
type Rule struct {
	Type   RuleType `yaml:"type"`
	Values []string `yaml:"values,omitempty"`
	Min    *int     `yaml:"min,omitempty"`
	Max    *int     `yaml:"max,omitempty"`
}

func (r Rule) check() error {
	switch r.Type {
	case RuleEnum:
		if len(r.Values) == 0 {
			return fmt.Errorf("enum rule has no values")
		}
	case RuleScale, RuleNumeric:
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return fmt.Errorf("min %d is greater than max %d", *r.Min, *r.Max)
		}
	case RuleBoolean:
	default:
		return fmt.Errorf("unknown rule type %q", r.Type)
	}
	return nil
}

// Check returns the problems with value, or nil when it passes.
func (r Rule) Check(value string) []string {
	v := CleanNumeric(value)
	if v == "" {
		return nil
	}

	var errs []string
	switch r.Type {
	case RuleEnum:
		for _, allowed := range r.Values {
			if strings.EqualFold(v, allowed) {
				return nil
			}
		}
		errs = append(errs, "Value must be one of: "+strings.Join(r.Values, ", "))

	case RuleScale, RuleNumeric:
		n, err := strconv.Atoi(v)
		if err != nil {
			return []string{"Value must be a number"}
		}
		if r.Min != nil && n < *r.Min {
			errs = append(errs, fmt.Sprintf("Value must be >= %d", *r.Min))
		}
		if r.Max != nil && n > *r.Max {
			errs = append(errs, fmt.Sprintf("Value must be <= %d", *r.Max))
		}

	case RuleBoolean:
		switch strings.ToLower(v) {
		case "yes", "no":
		default:
			errs = append(errs, "Value must be Yes/No")
		}
	}
	return errs
}

var wholeFloat = regexp.MustCompile(`^\d+\.0$`)

// CleanNumeric trims value and drops the ".0" of whole numbers written as
// floats.
func CleanNumeric(value string) string {
	v := strings.TrimSpace(value)
	if wholeFloat.MatchString(v) {
		return v[:strings.IndexByte(v, '.')]
	}
	return v
}
