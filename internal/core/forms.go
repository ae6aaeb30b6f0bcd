package core

// forms.go binds the registry to the portlet's form post.
//
// Field names carry the portlet namespace prefix followed by the field name
// and the dataset id, plus the attribute index for attribute fields:
//
//	<ns>datasetName_3
//	<ns>userDemand_3
//	<ns>actualDatasetId_3
//	<ns>attributeName_3_2
//	<ns>attributeDescription_3_2
//	<ns>actualAttributeId_3_2

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// FormAction is the submit button that posted the form.
type FormAction string

const (
	ActionDraft  FormAction = "draft"
	ActionSubmit FormAction = "submit"
)

// ParseFormAction parses "draft" or "submit". Empty means submit.
func ParseFormAction(s string) (FormAction, error) {
	switch FormAction(strings.ToLower(strings.TrimSpace(s))) {
	case "", ActionSubmit:
		return ActionSubmit, nil
	case ActionDraft:
		return ActionDraft, nil
	default:
		return "", fmt.Errorf("%w: action %q", ErrUnknownField, s)
	}
}

const (
	fieldDatasetName          = "datasetName_"
	fieldActualDatasetID      = "actualDatasetId_"
	fieldAttributeName        = "attributeName_"
	fieldAttributeDescription = "attributeDescription_"
	fieldActualAttributeID    = "actualAttributeId_"

	FieldTotalDatasets = "totalDatasets"
	FieldActionType    = "actionType"
	FieldInventoryID   = "inventoryId"
	FieldUserMode      = "userMode"
)

// DatasetNameField returns the form field name of a dataset's name input.
func DatasetNameField(ns string, ds int) string {
	return ns + fieldDatasetName + strconv.Itoa(ds)
}

// RoleField returns the form field name of a dataset's descriptive field.
func RoleField(ns string, role FieldRole, ds int) string {
	return ns + string(role) + "_" + strconv.Itoa(ds)
}

// ActualDatasetIDField returns the hidden field carrying a dataset's server id.
func ActualDatasetIDField(ns string, ds int) string {
	return ns + fieldActualDatasetID + strconv.Itoa(ds)
}

// AttributeNameField returns the form field name of an attribute name input.
func AttributeNameField(ns string, ds, idx int) string {
	return ns + fieldAttributeName + strconv.Itoa(ds) + "_" + strconv.Itoa(idx)
}

// AttributeDescriptionField returns the form field name of an attribute
// description input.
func AttributeDescriptionField(ns string, ds, idx int) string {
	return ns + fieldAttributeDescription + strconv.Itoa(ds) + "_" + strconv.Itoa(idx)
}

// ActualAttributeIDField returns the hidden field carrying an attribute's
// server id.
func ActualAttributeIDField(ns string, ds, idx int) string {
	return ns + fieldActualAttributeID + strconv.Itoa(ds) + "_" + strconv.Itoa(idx)
}

// FormValues renders every dataset as form fields. Server ids are emitted
// only for records loaded from a persisted inventory.
func (r *Registry) FormValues(ns string) url.Values {
	v := url.Values{}
	for _, ds := range r.datasets {
		v.Set(DatasetNameField(ns, ds.ID), ds.Name)
		for _, role := range FieldRoles {
			v.Set(RoleField(ns, role, ds.ID), ds.Fields[role])
		}
		if ds.ServerID > 0 {
			v.Set(ActualDatasetIDField(ns, ds.ID), strconv.FormatInt(ds.ServerID, 10))
		}
		for _, a := range ds.Attributes {
			v.Set(AttributeNameField(ns, ds.ID, a.Index), a.Name)
			v.Set(AttributeDescriptionField(ns, ds.ID, a.Index), a.Description)
			if a.ServerID > 0 {
				v.Set(ActualAttributeIDField(ns, ds.ID, a.Index), strconv.FormatInt(a.ServerID, 10))
			}
		}
	}
	v.Set(ns+FieldTotalDatasets, strconv.Itoa(len(r.datasets)))
	return v
}

// SubmittedForm is a decoded form post.
type SubmittedForm struct {
	Action        FormAction
	InventoryID   string
	TotalDatasets int
	Datasets      []ServerDataset
}

// ParseForm decodes a form post. The namespace prefix is optional on every
// field. Datasets with a blank name and attributes with a blank name are
// skipped; datasets come back in form id order and attributes in index order.
func ParseForm(values url.Values, ns string) (SubmittedForm, error) {
	get := func(name string) string {
		if ns != "" {
			if v := values.Get(ns + name); v != "" {
				return v
			}
		}
		return values.Get(name)
	}

	action, err := ParseFormAction(get(FieldActionType))
	if err != nil {
		return SubmittedForm{}, err
	}
	out := SubmittedForm{
		Action:      action,
		InventoryID: strings.TrimSpace(get(FieldInventoryID)),
	}
	if n := get(FieldTotalDatasets); n != "" {
		out.TotalDatasets, _ = strconv.Atoi(n)
	}

	dsIDs := make(map[int]bool)
	attrIdx := make(map[int]map[int]bool)
	for key := range values {
		key = strings.TrimPrefix(key, ns)
		switch {
		case strings.HasPrefix(key, fieldDatasetName):
			if id, err := strconv.Atoi(strings.TrimPrefix(key, fieldDatasetName)); err == nil {
				dsIDs[id] = true
			}
		case strings.HasPrefix(key, fieldAttributeName):
			parts := strings.SplitN(strings.TrimPrefix(key, fieldAttributeName), "_", 2)
			if len(parts) != 2 {
				continue
			}
			ds, err1 := strconv.Atoi(parts[0])
			idx, err2 := strconv.Atoi(parts[1])
			if err1 != nil || err2 != nil {
				continue
			}
			if attrIdx[ds] == nil {
				attrIdx[ds] = make(map[int]bool)
			}
			attrIdx[ds][idx] = true
		}
	}

	for _, id := range sortedKeys(dsIDs) {
		suffix := strconv.Itoa(id)
		name := strings.TrimSpace(get(fieldDatasetName + suffix))
		if name == "" {
			continue
		}
		sd := ServerDataset{
			DatasetName: Text(name),
			Fields:      make(map[FieldRole]Text, len(FieldRoles)),
		}
		sd.DatasetID, _ = strconv.ParseInt(get(fieldActualDatasetID+suffix), 10, 64)
		for _, role := range FieldRoles {
			sd.Fields[role] = Text(strings.TrimSpace(get(string(role) + "_" + suffix)))
		}
		for _, idx := range sortedKeys(attrIdx[id]) {
			as := suffix + "_" + strconv.Itoa(idx)
			attrName := strings.TrimSpace(get(fieldAttributeName + as))
			if attrName == "" {
				continue
			}
			attr := ServerAttribute{
				AttributeName:        Text(attrName),
				AttributeDescription: Text(strings.TrimSpace(get(fieldAttributeDescription + as))),
			}
			attr.AttributeID, _ = strconv.ParseInt(get(fieldActualAttributeID+as), 10, 64)
			sd.Attributes = append(sd.Attributes, attr)
		}
		out.Datasets = append(out.Datasets, sd)
	}
	return out, nil
}

func sortedKeys(m map[int]bool) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
