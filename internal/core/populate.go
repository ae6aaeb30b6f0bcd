package core

import "fmt"

// PopulateResult reports what one population pass wrote.
type PopulateResult struct {
	DatasetID  int      `json:"datasetId"`
	Name       string   `json:"name"`
	Attributes int      `json:"attributes"`
	Dropped    []string `json:"dropped,omitempty"` // regular fields with no form position
}

// Populate writes an imported dataset into the existing dataset id.
//
// Only non-empty imported values are written, so blank cells never erase
// form input. regularFields[0] is the spreadsheet index column and is
// skipped; regularFields[i] maps to FieldRoles[i-1]. Positions past the last
// role are reported in Dropped.
func (r *Registry) Populate(id int, in ImportedDataset, meta *FieldMetadata) (PopulateResult, error) {
	if meta == nil {
		return PopulateResult{}, ErrNoFieldMetadata
	}
	ds, _, err := r.lookup(id)
	if err != nil {
		return PopulateResult{}, err
	}

	res := PopulateResult{DatasetID: id}

	if name := in.Name(meta); name != "" {
		ds.Name = name
	}

	for i, header := range meta.RegularFields {
		if i == 0 {
			continue
		}
		pos := i - 1
		if pos >= len(FieldRoles) {
			res.Dropped = append(res.Dropped, header)
			continue
		}
		if v, ok := in.Fields.Get(header); ok && v != "" {
			ds.Fields[FieldRoles[pos]] = v
		}
	}

	if len(in.Attributes) > 0 {
		populateAttributes(ds, in.Attributes, meta)
		r.emit(Event{Kind: EventAttributesLabels, DatasetID: id})
	}

	res.Name = ds.Name
	res.Attributes = len(ds.Attributes)
	r.emit(Event{Kind: EventDatasetUpdated, DatasetID: id})
	return res, nil
}

// populateAttributes keeps the first attribute row, drops the rest and adds
// one row per imported attribute.
func populateAttributes(ds *Dataset, attrs []Record, meta *FieldMetadata) {
	if len(ds.Attributes) == 0 {
		ds.appendAttribute()
	}
	ds.Attributes = ds.Attributes[:1]
	ds.Attributes[0].Index = 1

	for i, rec := range attrs {
		if i > 0 {
			ds.appendAttribute()
		}
		a := &ds.Attributes[i]
		if name := attributeName(rec, meta); name != "" {
			a.Name = name
		}
		if desc := attributeDescription(rec, meta); desc != "" {
			a.Description = desc
		}
	}
}

func attributeName(rec Record, meta *FieldMetadata) string {
	if meta.AttributesField != "" {
		v, _ := rec.Get(meta.AttributesField)
		return v
	}
	for _, v := range rec.Values() {
		if !isBlank(v) {
			return v
		}
	}
	return ""
}

func attributeDescription(rec Record, meta *FieldMetadata) string {
	if meta.AttributeDescriptionField != "" {
		v, _ := rec.Get(meta.AttributeDescriptionField)
		return v
	}
	if len(rec) >= 2 {
		return rec[1].Value
	}
	return ""
}

// LoadSummary describes the form after a create-mode import.
type LoadSummary struct {
	Datasets []DatasetSummary `json:"datasets"`
	Dropped  []string         `json:"dropped,omitempty"`
}

// DatasetSummary is one line of an import summary.
type DatasetSummary struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Attributes int    `json:"attributes"`
}

// String renders the summary shown after loading.
func (s LoadSummary) String() string {
	out := fmt.Sprintf("Loaded %d dataset(s):\n", len(s.Datasets))
	for _, d := range s.Datasets {
		out += fmt.Sprintf("\n• %s (%d attributes)", d.Name, d.Attributes)
	}
	return out
}

// Replace discards the form and rebuilds it from imported datasets in input
// order. The first dataset becomes active.
func (r *Registry) Replace(in []ImportedDataset, meta *FieldMetadata) (LoadSummary, error) {
	if meta == nil {
		return LoadSummary{}, ErrNoFieldMetadata
	}
	if len(in) == 0 {
		return LoadSummary{}, ErrEmptyImport
	}

	r.ClearAll()
	first := r.CreateInitialDataset()

	var sum LoadSummary
	for i, ds := range in {
		id := first
		if i > 0 {
			var err error
			if id, err = r.AddDataset(); err != nil {
				return sum, err
			}
		}
		res, err := r.Populate(id, ds, meta)
		if err != nil {
			return sum, err
		}
		if i == 0 {
			sum.Dropped = res.Dropped
		}
		sum.Datasets = append(sum.Datasets, DatasetSummary{
			ID:         id,
			Name:       r.DisplayName(id),
			Attributes: res.Attributes,
		})
	}

	if err := r.SwitchActive(first); err != nil {
		return sum, err
	}
	r.emit(Event{Kind: EventFormReplaced, DatasetID: first})
	return sum, nil
}
