package core

import (
	"fmt"
	"strconv"
)

// AttributePatch carries the attribute fields to change. Nil fields are left
// untouched.
type AttributePatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// AddAttribute appends an attribute row to the dataset and returns its
// display index. The index is one past the highest index in use, so it stays
// unique even before a relabel.
func (r *Registry) AddAttribute(datasetID int) (int, error) {
	ds, _, err := r.lookup(datasetID)
	if err != nil {
		return 0, err
	}
	a := ds.appendAttribute()
	r.emit(Event{Kind: EventAttributeAdded, DatasetID: datasetID, Index: a.Index})
	return a.Index, nil
}

// RemoveAttribute deletes the attribute row with the given display index.
// Removing the last remaining row is a no-op and reports false. Callers
// follow up with RelabelAttributes.
func (r *Registry) RemoveAttribute(datasetID, index int) (bool, error) {
	ds, _, err := r.lookup(datasetID)
	if err != nil {
		return false, err
	}
	pos := ds.attributePos(index)
	if pos < 0 {
		return false, fmt.Errorf("%w: dataset %d index %d", ErrAttributeNotFound, datasetID, index)
	}
	if len(ds.Attributes) <= 1 {
		return false, nil
	}
	ds.Attributes = append(ds.Attributes[:pos], ds.Attributes[pos+1:]...)
	r.emit(Event{Kind: EventAttributeRemoved, DatasetID: datasetID, Index: index})
	return true, nil
}

// RelabelAttributes renumbers the dataset's attribute rows 1..N in their
// current order. Keys are left unchanged.
func (r *Registry) RelabelAttributes(datasetID int) error {
	ds, _, err := r.lookup(datasetID)
	if err != nil {
		return err
	}
	for i := range ds.Attributes {
		ds.Attributes[i].Index = i + 1
	}
	r.emit(Event{Kind: EventAttributesLabels, DatasetID: datasetID})
	return nil
}

// CanRemoveAttribute reports whether the dataset has more than one attribute
// row. The remove control is hidden when it returns false.
func (r *Registry) CanRemoveAttribute(datasetID int) bool {
	ds, _, err := r.lookup(datasetID)
	if err != nil {
		return false
	}
	return len(ds.Attributes) > 1
}

// SetAttribute applies p to the attribute row with the given display index.
func (r *Registry) SetAttribute(datasetID, index int, p AttributePatch) error {
	ds, _, err := r.lookup(datasetID)
	if err != nil {
		return err
	}
	pos := ds.attributePos(index)
	if pos < 0 {
		return fmt.Errorf("%w: dataset %d index %d", ErrAttributeNotFound, datasetID, index)
	}
	if p.Name != nil {
		ds.Attributes[pos].Name = *p.Name
	}
	if p.Description != nil {
		ds.Attributes[pos].Description = *p.Description
	}
	r.emit(Event{Kind: EventAttributeUpdated, DatasetID: datasetID, Index: index})
	return nil
}

// AttributeLabel is the ordinal label shown above an attribute name input.
func AttributeLabel(index int) string {
	return "Attribute " + strconv.Itoa(index)
}

// AttributeDescriptionLabel is the label shown above an attribute
// description input.
func AttributeDescriptionLabel(index int) string {
	return "Attribute " + strconv.Itoa(index) + " Description"
}

func (d *Dataset) appendAttribute() Attribute {
	d.nextAttr++
	a := Attribute{Index: d.maxIndex() + 1, key: d.nextAttr}
	d.Attributes = append(d.Attributes, a)
	return a
}

func (d *Dataset) maxIndex() int {
	maxIdx := 0
	for _, a := range d.Attributes {
		if a.Index > maxIdx {
			maxIdx = a.Index
		}
	}
	return maxIdx
}

func (d *Dataset) attributePos(index int) int {
	for i, a := range d.Attributes {
		if a.Index == index {
			return i
		}
	}
	return -1
}

// resetAttributes removes every attribute row so population can rebuild
// the list. The key generator keeps counting.
func (d *Dataset) resetAttributes() {
	d.Attributes = nil
}
