package core

// merge.go reconciles imported datasets against the live form in update mode.
//
// Planning is read-only. Applying walks the incoming datasets strictly in
// input order; each step must be acknowledged with Ready before the next one
// runs, so callers that render asynchronously can sequence on completion
// instead of timers.

import (
	"fmt"
	"strings"
)

// Duplicate pairs an incoming dataset with the first existing dataset that
// carries the same normalized name.
type Duplicate struct {
	Name        string `json:"name"`
	Incoming    int    `json:"incoming"` // position in the import
	ExistingID  int    `json:"existingId"`
	ExistingRaw string `json:"existingName"`
}

// MergePlan is the outcome of comparing an import with the form.
type MergePlan struct {
	Incoming      []ImportedDataset `json:"-"`
	Meta          FieldMetadata     `json:"fieldMetadata"`
	Duplicates    []Duplicate       `json:"duplicates"`
	ExistingNames []string          `json:"existingNames"`
	IncomingNames []string          `json:"incomingNames"`
}

// NeedsConfirmation reports whether the user must approve overwriting
// datasets that share a name with the import.
func (p *MergePlan) NeedsConfirmation() bool {
	return len(p.Duplicates) > 0
}

// ConflictingNames returns the distinct duplicate names in import order.
func (p *MergePlan) ConflictingNames() []string {
	seen := make(map[string]bool, len(p.Duplicates))
	var out []string
	for _, d := range p.Duplicates {
		n := normalizeName(d.Name)
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, strings.TrimSpace(d.Name))
	}
	return out
}

// Err returns ErrDuplicateDatasetNames when confirmation is needed.
func (p *MergePlan) Err() error {
	if !p.NeedsConfirmation() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDuplicateDatasetNames, strings.Join(p.ConflictingNames(), ", "))
}

// PlanMerge compares incoming datasets with the registry. Names are compared
// trimmed and case-insensitively; an empty name never matches.
func PlanMerge(r *Registry, incoming []ImportedDataset, meta FieldMetadata) MergePlan {
	plan := MergePlan{
		Incoming: incoming,
		Meta:     meta,
	}

	for _, ds := range r.datasets {
		plan.ExistingNames = append(plan.ExistingNames, r.DisplayName(ds.ID))
	}

	existing := r.names()
	for i, in := range incoming {
		name := in.Name(&meta)
		plan.IncomingNames = append(plan.IncomingNames, strings.TrimSpace(name))

		if !existing[normalizeName(name)] {
			continue
		}
		target := r.findByName(name)
		plan.Duplicates = append(plan.Duplicates, Duplicate{
			Name:        name,
			Incoming:    i,
			ExistingID:  target.ID,
			ExistingRaw: target.Name,
		})
	}
	return plan
}

// MergeSummary reports the outcome of an applied merge.
type MergeSummary struct {
	Total    int              `json:"total"`
	New      int              `json:"new"`
	Updated  int              `json:"updated"`
	Datasets []DatasetSummary `json:"datasets"`
	Dropped  []string         `json:"dropped,omitempty"`
}

// String renders the merge summary shown to the user.
func (s MergeSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total datasets: %d\nNew: %d\nUpdated: %d\n", s.Total, s.New, s.Updated)
	for _, d := range s.Datasets {
		fmt.Fprintf(&b, "\n• %s (%d attributes)", d.Name, d.Attributes)
	}
	return b.String()
}

// Merger applies a confirmed plan one dataset at a time.
type Merger struct {
	reg     *Registry
	plan    MergePlan
	next    int // position of the next incoming dataset
	pending int // dataset id awaiting Ready, 0 when none
	summary MergeSummary
	dropped map[string]bool
}

// NewMerger prepares to apply plan to r.
func NewMerger(r *Registry, plan MergePlan) *Merger {
	return &Merger{reg: r, plan: plan, dropped: make(map[string]bool)}
}

// Done reports whether every incoming dataset has been applied and
// acknowledged.
func (m *Merger) Done() bool {
	return m.pending == 0 && m.next >= len(m.plan.Incoming)
}

// Step applies the next incoming dataset and returns the id it was written
// to. The target is re-resolved against the live form: the first dataset by
// display order with the same name is updated, otherwise a new dataset is
// appended.
func (m *Merger) Step() (int, error) {
	if m.pending != 0 {
		return 0, fmt.Errorf("%w: dataset %d not acknowledged", ErrInvalidTransition, m.pending)
	}
	if m.next >= len(m.plan.Incoming) {
		return 0, fmt.Errorf("%w: merge complete", ErrInvalidTransition)
	}

	in := m.plan.Incoming[m.next]

	var id int
	if target := m.reg.findByName(in.Name(&m.plan.Meta)); target != nil {
		id = target.ID
		m.summary.Updated++
	} else {
		var err error
		if id, err = m.reg.AddDataset(); err != nil {
			return 0, err
		}
		m.summary.New++
	}

	res, err := m.reg.Populate(id, in, &m.plan.Meta)
	if err != nil {
		return 0, err
	}
	for _, f := range res.Dropped {
		if !m.dropped[f] {
			m.dropped[f] = true
			m.summary.Dropped = append(m.summary.Dropped, f)
		}
	}

	m.next++
	m.pending = id
	return id, nil
}

// Ready acknowledges that dataset id has been populated and rendered.
func (m *Merger) Ready(id int) error {
	if m.pending == 0 || m.pending != id {
		return fmt.Errorf("%w: unexpected ready for dataset %d", ErrInvalidTransition, id)
	}
	m.pending = 0
	return nil
}

// Summary returns the merge summary over the whole form. Call after Done.
func (m *Merger) Summary() MergeSummary {
	s := m.summary
	s.Total = m.reg.Count()
	s.Datasets = nil
	for _, id := range m.reg.IDs() {
		ds, _ := m.reg.Dataset(id)
		s.Datasets = append(s.Datasets, DatasetSummary{
			ID:         id,
			Name:       m.reg.DisplayName(id),
			Attributes: len(ds.Attributes),
		})
	}
	return s
}

// ApplyMerge runs plan to completion, acknowledging each step as soon as it
// is written.
func ApplyMerge(r *Registry, plan MergePlan) (MergeSummary, error) {
	m := NewMerger(r, plan)
	for !m.Done() {
		id, err := m.Step()
		if err != nil {
			return m.Summary(), err
		}
		if err := m.Ready(id); err != nil {
			return m.Summary(), err
		}
	}
	return m.Summary(), nil
}
