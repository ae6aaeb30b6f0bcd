package core

// imported.go holds the shapes produced by spreadsheet processing.
//
// Imported records keep their key order. The attribute fallbacks read "the
// first non-empty value" and "the second value", so decoding into a Go map
// would make population nondeterministic.

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultDatasetNameField is the header used for the dataset name when the
// field metadata does not declare one.
const DefaultDatasetNameField = "Dataset Name"

// Entry is one header/value pair of an imported record.
type Entry struct {
	Key   string
	Value string
}

// Record is an ordered set of header → cell text pairs.
type Record []Entry

// Get returns the value stored under key.
func (r Record) Get(key string) (string, bool) {
	for _, e := range r {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Set replaces the value under key, appending when the key is new.
func (r *Record) Set(key, value string) {
	for i := range *r {
		if (*r)[i].Key == key {
			(*r)[i].Value = value
			return
		}
	}
	*r = append(*r, Entry{Key: key, Value: value})
}

// Values returns the values in key order.
func (r Record) Values() []string {
	out := make([]string, len(r))
	for i, e := range r {
		out[i] = e.Value
	}
	return out
}

// MarshalJSON writes the record as a JSON object in key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping key order. Scalar values are
// converted to text; nested objects and arrays are skipped.
func (r *Record) UnmarshalJSON(data []byte) error {
	out := Record{}
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		if isComposite(raw) {
			return nil
		}
		var t Text
		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		out = append(out, Entry{Key: key, Value: t.String()})
		return nil
	})
	if err != nil {
		return err
	}
	*r = out
	return nil
}

// ImportedDataset is one dataset extracted from an uploaded spreadsheet.
type ImportedDataset struct {
	Fields     Record   // every column except the attribute columns
	Attributes []Record // one record per attribute row
}

// MarshalJSON writes the dataset as a flat object with an "attributes" array,
// the shape processFile responds with.
func (d ImportedDataset) MarshalJSON() ([]byte, error) {
	fields, err := d.Fields.MarshalJSON()
	if err != nil {
		return nil, err
	}
	attrs := d.Attributes
	if attrs == nil {
		attrs = []Record{}
	}
	attrJSON, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(fields[:len(fields)-1])
	if len(d.Fields) > 0 {
		buf.WriteByte(',')
	}
	buf.WriteString(`"attributes":`)
	buf.Write(attrJSON)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *ImportedDataset) UnmarshalJSON(data []byte) error {
	var out ImportedDataset
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		if key == "attributes" {
			if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
				return nil
			}
			if err := json.Unmarshal(raw, &out.Attributes); err != nil {
				return fmt.Errorf("attributes: %w", err)
			}
			return nil
		}
		if isComposite(raw) {
			return nil
		}
		var t Text
		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		out.Fields = append(out.Fields, Entry{Key: key, Value: t.String()})
		return nil
	})
	if err != nil {
		return err
	}
	*d = out
	return nil
}

// Name returns the dataset name using the metadata's name field.
func (d ImportedDataset) Name(meta *FieldMetadata) string {
	field := DefaultDatasetNameField
	if meta != nil && meta.DatasetNameField != "" {
		field = meta.DatasetNameField
	}
	v, _ := d.Fields.Get(field)
	return v
}

// FieldMetadata describes how spreadsheet headers map onto form fields.
type FieldMetadata struct {
	DatasetNameField          string   `json:"datasetNameField"`
	RegularFields             []string `json:"regularFields"`
	AttributesField           string   `json:"attributesField,omitempty"`
	AttributeDescriptionField string   `json:"attributeDescriptionField,omitempty"`
}

// decodeObject walks the members of a JSON object in document order.
// A JSON null is treated as an empty object.
func decodeObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("value for %q: %w", key, err)
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func isComposite(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && (raw[0] == '{' || raw[0] == '[')
}
