package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// UnmarshalJSON reads the flat fetchData dataset object.
func (d *ServerDataset) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := ServerDataset{Fields: make(map[FieldRole]Text, len(FieldRoles))}

	if v, ok := raw["datasetId"]; ok {
		id, err := decodeID(v)
		if err != nil {
			return fmt.Errorf("datasetId: %w", err)
		}
		out.DatasetID = id
	}
	if v, ok := raw["datasetName"]; ok {
		if err := json.Unmarshal(v, &out.DatasetName); err != nil {
			return fmt.Errorf("datasetName: %w", err)
		}
	}
	for _, role := range FieldRoles {
		v, ok := raw[string(role)]
		if !ok {
			continue
		}
		var t Text
		if err := json.Unmarshal(v, &t); err != nil {
			return fmt.Errorf("%s: %w", role, err)
		}
		out.Fields[role] = t
	}
	if v, ok := raw["attributes"]; ok {
		if err := json.Unmarshal(v, &out.Attributes); err != nil {
			return fmt.Errorf("attributes: %w", err)
		}
	}

	*d = out
	return nil
}

// MarshalJSON writes the flat fetchData dataset object.
func (d ServerDataset) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(FieldRoles)+3)
	m["datasetId"] = d.DatasetID
	m["datasetName"] = d.DatasetName
	for _, role := range FieldRoles {
		m[string(role)] = d.Fields[role]
	}
	attrs := d.Attributes
	if attrs == nil {
		attrs = []ServerAttribute{}
	}
	m["attributes"] = attrs
	return json.Marshal(m)
}

// UnmarshalJSON accepts attribute ids as numbers or strings.
func (a *ServerAttribute) UnmarshalJSON(data []byte) error {
	var raw struct {
		AttributeID          json.RawMessage `json:"attributeId"`
		AttributeName        Text            `json:"attributeName"`
		AttributeDescription Text            `json:"attributeDescription"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := decodeID(raw.AttributeID)
	if err != nil {
		return fmt.Errorf("attributeId: %w", err)
	}
	*a = ServerAttribute{
		AttributeID:          id,
		AttributeName:        raw.AttributeName,
		AttributeDescription: raw.AttributeDescription,
	}
	return nil
}

func decodeID(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	var t Text
	if err := json.Unmarshal(raw, &t); err != nil {
		return 0, err
	}
	s := strings.TrimSpace(t.String())
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// LoadInventory replaces the form with a persisted inventory. Server ids are
// kept so a later submit updates records in place. A dataset without
// attributes keeps one blank row. The first dataset becomes active.
func (r *Registry) LoadInventory(inv Inventory) {
	r.ClearAll()
	first := r.CreateInitialDataset()

	for i, sd := range inv.Datasets {
		id := first
		if i > 0 {
			id, _ = r.AddDataset()
		}
		ds, _, _ := r.lookup(id)

		ds.ServerID = sd.DatasetID
		ds.Name = sd.DatasetName.String()
		for role, v := range sd.Fields {
			if role.Valid() {
				ds.Fields[role] = v.String()
			}
		}

		if len(sd.Attributes) > 0 {
			ds.resetAttributes()
			for _, sa := range sd.Attributes {
				ds.appendAttribute()
				a := &ds.Attributes[len(ds.Attributes)-1]
				a.Name = sa.AttributeName.String()
				a.Description = sa.AttributeDescription.String()
				a.ServerID = sa.AttributeID
			}
		}
		r.emit(Event{Kind: EventDatasetUpdated, DatasetID: id})
	}

	_ = r.SwitchActive(first)
	r.emit(Event{Kind: EventFormReplaced, DatasetID: first})
}

// ServerDatasets renders the form the way a submit persists it: names and
// attribute text are trimmed, and datasets or attributes with a blank name
// are skipped. FormValues is the untrimmed form post.
func (r *Registry) ServerDatasets() []ServerDataset {
	var out []ServerDataset
	for _, ds := range r.datasets {
		if isBlank(ds.Name) {
			continue
		}
		sd := ServerDataset{
			DatasetID:   ds.ServerID,
			DatasetName: Text(strings.TrimSpace(ds.Name)),
			Fields:      make(map[FieldRole]Text, len(FieldRoles)),
		}
		for _, role := range FieldRoles {
			sd.Fields[role] = Text(ds.Fields[role])
		}
		for _, a := range ds.Attributes {
			if isBlank(a.Name) {
				continue
			}
			sd.Attributes = append(sd.Attributes, ServerAttribute{
				AttributeID:          a.ServerID,
				AttributeName:        Text(strings.TrimSpace(a.Name)),
				AttributeDescription: Text(strings.TrimSpace(a.Description)),
			})
		}
		out = append(out, sd)
	}
	return out
}
