package core

// registry.go owns the ordered collection of datasets on one form.
//
// Dataset ids come from a registry-owned generator. They are dense in
// creation order and never reused within one generation; only
// CreateInitialDataset starts a new generation at id 1. The registry is not
// safe for concurrent use: a Session serializes every call onto its actor.

import (
	"fmt"
	"strconv"
	"strings"
)

// Registry holds the datasets of one form in display order.
type Registry struct {
	datasets []*Dataset
	active   int // id of the active dataset, 0 when empty
	nextID   int
	ready    bool
	emit     func(Event)
}

// NewRegistry creates an uninitialized registry. emit receives one event per
// mutation and may be nil.
func NewRegistry(emit func(Event)) *Registry {
	if emit == nil {
		emit = func(Event) {}
	}
	return &Registry{emit: emit}
}

// CreateInitialDataset discards all datasets and starts a new generation
// with a single empty dataset (id 1), which becomes active.
func (r *Registry) CreateInitialDataset() int {
	r.datasets = nil
	r.nextID = 1
	r.ready = true

	ds := r.newDataset()
	r.active = ds.ID
	r.emit(Event{Kind: EventFormCleared, DatasetID: ds.ID})
	return ds.ID
}

// AddDataset appends an empty dataset with one attribute row and makes it
// active.
func (r *Registry) AddDataset() (int, error) {
	if !r.ready {
		return 0, ErrNotInitialized
	}
	ds := r.newDataset()
	r.active = ds.ID
	r.emit(Event{Kind: EventDatasetAdded, DatasetID: ds.ID})
	return ds.ID, nil
}

// SwitchActive makes id the active dataset.
func (r *Registry) SwitchActive(id int) error {
	if _, _, err := r.lookup(id); err != nil {
		return err
	}
	if r.active == id {
		return nil
	}
	r.active = id
	r.emit(Event{Kind: EventDatasetSwitched, DatasetID: id})
	return nil
}

// DeleteDataset removes id. Deleting the only remaining dataset is a no-op
// and reports false. When the active dataset is removed, the first
// remaining dataset by display order becomes active.
func (r *Registry) DeleteDataset(id int) (bool, error) {
	_, pos, err := r.lookup(id)
	if err != nil {
		return false, err
	}
	if len(r.datasets) == 1 {
		return false, nil
	}

	r.datasets = append(r.datasets[:pos], r.datasets[pos+1:]...)
	r.emit(Event{Kind: EventDatasetDeleted, DatasetID: id})

	if r.active == id {
		r.active = r.datasets[0].ID
		r.emit(Event{Kind: EventDatasetSwitched, DatasetID: r.active})
	}
	return true, nil
}

// ClearAll removes every dataset. The registry must be re-initialized with
// CreateInitialDataset before new datasets can be added.
func (r *Registry) ClearAll() {
	r.datasets = nil
	r.active = 0
	r.ready = false
	r.emit(Event{Kind: EventFormCleared})
}

// Initialized reports whether CreateInitialDataset has run since the last
// ClearAll.
func (r *Registry) Initialized() bool { return r.ready }

// Active returns the active dataset id, or 0 when the registry is empty.
func (r *Registry) Active() int { return r.active }

// Count returns the number of datasets.
func (r *Registry) Count() int { return len(r.datasets) }

// SetName updates the dataset name.
func (r *Registry) SetName(id int, name string) error {
	ds, _, err := r.lookup(id)
	if err != nil {
		return err
	}
	ds.Name = name
	r.emit(Event{Kind: EventDatasetUpdated, DatasetID: id})
	return nil
}

// SetField updates one descriptive field.
func (r *Registry) SetField(id int, role FieldRole, value string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownField, role)
	}
	ds, _, err := r.lookup(id)
	if err != nil {
		return err
	}
	ds.Fields[role] = value
	r.emit(Event{Kind: EventDatasetUpdated, DatasetID: id})
	return nil
}

// Dataset returns a copy of the dataset with the given id.
func (r *Registry) Dataset(id int) (Dataset, bool) {
	ds, _, err := r.lookup(id)
	if err != nil {
		return Dataset{}, false
	}
	return ds.clone(), true
}

// Datasets returns copies of all datasets in display order.
func (r *Registry) Datasets() []Dataset {
	out := make([]Dataset, len(r.datasets))
	for i, ds := range r.datasets {
		out[i] = ds.clone()
	}
	return out
}

// IDs returns the dataset ids in display order.
func (r *Registry) IDs() []int {
	ids := make([]int, len(r.datasets))
	for i, ds := range r.datasets {
		ids[i] = ds.ID
	}
	return ids
}

// DisplayName returns the trimmed dataset name, or "Dataset N" when blank.
func (r *Registry) DisplayName(id int) string {
	ds, _, err := r.lookup(id)
	if err != nil || isBlank(ds.Name) {
		return "Dataset " + strconv.Itoa(id)
	}
	return strings.TrimSpace(ds.Name)
}

// SidebarLabel is DisplayName truncated for the dataset navigation list.
func (r *Registry) SidebarLabel(id int) string {
	return truncateLabel(r.DisplayName(id), SidebarLabelLimit)
}

// HasData reports whether any dataset has a non-blank name, field or
// attribute value.
func (r *Registry) HasData() bool {
	for _, ds := range r.datasets {
		if !isBlank(ds.Name) {
			return true
		}
		for _, v := range ds.Fields {
			if !isBlank(v) {
				return true
			}
		}
		for _, a := range ds.Attributes {
			if !a.Blank() {
				return true
			}
		}
	}
	return false
}

// names returns the set of normalized non-empty dataset names.
func (r *Registry) names() map[string]bool {
	out := make(map[string]bool, len(r.datasets))
	for _, ds := range r.datasets {
		if n := normalizeName(ds.Name); n != "" {
			out[n] = true
		}
	}
	return out
}

// findByName returns the first dataset in display order whose normalized
// name equals name.
func (r *Registry) findByName(name string) *Dataset {
	n := normalizeName(name)
	if n == "" {
		return nil
	}
	for _, ds := range r.datasets {
		if normalizeName(ds.Name) == n {
			return ds
		}
	}
	return nil
}

func (r *Registry) lookup(id int) (*Dataset, int, error) {
	for i, ds := range r.datasets {
		if ds.ID == id {
			return ds, i, nil
		}
	}
	return nil, -1, fmt.Errorf("%w: %d", ErrDatasetNotFound, id)
}

func (r *Registry) newDataset() *Dataset {
	ds := &Dataset{
		ID:     r.nextID,
		Fields: make(map[FieldRole]string, len(FieldRoles)),
	}
	r.nextID++
	ds.appendAttribute()
	r.datasets = append(r.datasets, ds)
	return ds
}
