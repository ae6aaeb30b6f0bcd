package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FieldRole identifies one descriptive field of a dataset form.
type FieldRole string

const (
	RoleDescription      FieldRole = "datasetDescription"
	RoleClassification   FieldRole = "datasetClassification"
	RoleUserDemand       FieldRole = "userDemand"
	RoleEconomicImpact   FieldRole = "economicImpact"
	RoleBetterServices   FieldRole = "betterServices"
	RoleBetterGovernance FieldRole = "betterGovernance"
	RoleDefinedOwner     FieldRole = "definedOwner"
	RoleExistingMetadata FieldRole = "existingMetadata"
	RoleAlreadyPublished FieldRole = "alreadyPublished"
	RoleOpenFormat       FieldRole = "openFormat"
	RoleReleaseYear      FieldRole = "releaseYear"
	RoleReleaseMonth     FieldRole = "releaseMonth"
)

// FieldRoles lists the descriptive roles in form order. Spreadsheet columns
// after the index column map onto this list by position.
var FieldRoles = []FieldRole{
	RoleDescription,
	RoleClassification,
	RoleUserDemand,
	RoleEconomicImpact,
	RoleBetterServices,
	RoleBetterGovernance,
	RoleDefinedOwner,
	RoleExistingMetadata,
	RoleAlreadyPublished,
	RoleOpenFormat,
	RoleReleaseYear,
	RoleReleaseMonth,
}

// Valid reports whether r is one of the known roles.
func (r FieldRole) Valid() bool {
	for _, known := range FieldRoles {
		if r == known {
			return true
		}
	}
	return false
}

// Dataset is one inventory record block on the form.
type Dataset struct {
	ID         int                  `json:"id"`
	Name       string               `json:"name"`
	Fields     map[FieldRole]string `json:"fields"`
	Attributes []Attribute          `json:"attributes"`
	ServerID   int64                `json:"serverId,omitempty"` // 0 when not loaded from a persisted inventory

	nextAttr int // attribute key generator, owned by this dataset
}

// Attribute is a named column description attached to a dataset.
type Attribute struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ServerID    int64  `json:"serverId,omitempty"`

	// key is drawn from the dataset's attribute generator and never reused.
	key int
}

// Key returns the attribute's stable identity within its dataset.
func (a Attribute) Key() int { return a.key }

// Blank reports whether neither name nor description has been filled in.
func (a Attribute) Blank() bool {
	return isBlank(a.Name) && isBlank(a.Description)
}

func (d *Dataset) clone() Dataset {
	out := *d
	out.Fields = make(map[FieldRole]string, len(d.Fields))
	for k, v := range d.Fields {
		out.Fields[k] = v
	}
	out.Attributes = append([]Attribute(nil), d.Attributes...)
	return out
}

// Text is a string that also decodes from JSON numbers, booleans and null.
// fetchData returns scores as numbers and unset fields as null.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*t = Text(strconv.FormatBool(b))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("text value %s: %w", data, err)
		}
		*t = Text(n.String())
	}
	return nil
}

// String returns the text value.
func (t Text) String() string { return string(t) }
