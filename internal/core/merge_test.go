package core

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var testHeaders = []string{
	"Description", "Classification", "User Demand", "Economic Impact",
	"Better Services", "Better Governance", "Defined Owner", "Existing Metadata",
	"Already Published", "Open Format", "Release Year", "Release Month",
}

func testMeta() FieldMetadata {
	return FieldMetadata{
		DatasetNameField:          "Dataset Name",
		RegularFields:             append([]string{"#"}, testHeaders...),
		AttributesField:           "Attribute",
		AttributeDescriptionField: "Attribute Description",
	}
}

func imported(name string, fields map[string]string, attrs ...[2]string) ImportedDataset {
	ds := ImportedDataset{Fields: Record{{Key: "#", Value: "1"}, {Key: "Dataset Name", Value: name}}}
	for _, h := range testHeaders {
		if v, ok := fields[h]; ok {
			ds.Fields = append(ds.Fields, Entry{Key: h, Value: v})
		}
	}
	for _, a := range attrs {
		ds.Attributes = append(ds.Attributes, Record{
			{Key: "Attribute", Value: a[0]},
			{Key: "Attribute Description", Value: a[1]},
		})
	}
	return ds
}

func registryWith(names ...string) *Registry {
	r := NewRegistry(nil)
	r.CreateInitialDataset()
	for i, n := range names {
		id := 1
		if i > 0 {
			id, _ = r.AddDataset()
		}
		r.SetName(id, n)
	}
	return r
}

func TestPlanMerge_DuplicateDetectionIsSymmetric(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		incoming string
		dup      bool
	}{
		{"exact", "Budget", "Budget", true},
		{"case", "budget", "BUDGET", true},
		{"whitespace", "  Budget ", "Budget", true},
		{"both", " bUdGeT", "BUDGET  ", true},
		{"different", "Budget", "Roads", false},
		{"empty existing", "", "Budget", false},
		{"empty incoming", "Budget", "", false},
		{"both empty", "  ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forward := PlanMerge(registryWith(tt.existing), []ImportedDataset{imported(tt.incoming, nil)}, testMeta())
			backward := PlanMerge(registryWith(tt.incoming), []ImportedDataset{imported(tt.existing, nil)}, testMeta())

			if got := forward.NeedsConfirmation(); got != tt.dup {
				t.Errorf("forward duplicate = %v, want %v", got, tt.dup)
			}
			if forward.NeedsConfirmation() != backward.NeedsConfirmation() {
				t.Error("duplicate detection is not symmetric")
			}
		})
	}
}

func TestPlanMerge_ListsNames(t *testing.T) {
	r := registryWith("Budget", "Roads")
	plan := PlanMerge(r, []ImportedDataset{
		imported("budget", nil),
		imported("Schools", nil),
		imported("BUDGET", nil),
	}, testMeta())

	if diff := cmp.Diff([]string{"budget"}, plan.ConflictingNames()); diff != "" {
		t.Errorf("ConflictingNames (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Budget", "Roads"}, plan.ExistingNames); diff != "" {
		t.Errorf("ExistingNames (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"budget", "Schools", "BUDGET"}, plan.IncomingNames); diff != "" {
		t.Errorf("IncomingNames (-want +got):\n%s", diff)
	}
	if !errors.Is(plan.Err(), ErrDuplicateDatasetNames) {
		t.Errorf("Err = %v, want ErrDuplicateDatasetNames", plan.Err())
	}
	if r.Count() != 2 {
		t.Error("planning mutated the registry")
	}
}

func TestApplyMerge_OneMatchOneNew(t *testing.T) {
	r := registryWith("Budget", "Roads")
	before := r.Count()

	sum, err := ApplyMerge(r, PlanMerge(r, []ImportedDataset{
		imported(" BUDGET ", map[string]string{"Description": "updated"}, [2]string{"amount", "in SAR"}),
		imported("Schools", map[string]string{"Classification": "Open"}),
	}, testMeta()))
	if err != nil {
		t.Fatal(err)
	}

	if r.Count() != before+1 {
		t.Errorf("Count = %d, want %d", r.Count(), before+1)
	}
	if sum.Updated != 1 || sum.New != 1 || sum.Total != before+1 {
		t.Errorf("summary = %+v", sum)
	}

	budget, _ := r.Dataset(1)
	if budget.Fields[RoleDescription] != "updated" {
		t.Errorf("matching dataset not updated in place: %+v", budget.Fields)
	}
	if budget.Name != " BUDGET " {
		t.Errorf("name = %q, want imported name", budget.Name)
	}
	if len(budget.Attributes) != 1 || budget.Attributes[0].Name != "amount" {
		t.Errorf("attributes = %+v", budget.Attributes)
	}

	schools, ok := r.Dataset(3)
	if !ok || schools.Name != "Schools" || schools.Fields[RoleClassification] != "Open" {
		t.Errorf("new dataset = %+v", schools)
	}
}

func TestApplyMerge_FirstMatchWins(t *testing.T) {
	r := registryWith("Budget", "budget")

	if _, err := ApplyMerge(r, PlanMerge(r, []ImportedDataset{
		imported("Budget", map[string]string{"Description": "x"}),
	}, testMeta())); err != nil {
		t.Fatal(err)
	}

	first, _ := r.Dataset(1)
	second, _ := r.Dataset(2)
	if first.Fields[RoleDescription] != "x" || second.Fields[RoleDescription] != "" {
		t.Errorf("first=%q second=%q, want only the first updated",
			first.Fields[RoleDescription], second.Fields[RoleDescription])
	}
}

func TestMerger_StepsInInputOrder(t *testing.T) {
	r := registryWith("B")
	m := NewMerger(r, PlanMerge(r, []ImportedDataset{
		imported("A", nil),
		imported("B", nil),
		imported("C", nil),
	}, testMeta()))

	var order []int
	for !m.Done() {
		id, err := m.Step()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.Step(); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("Step before Ready error = %v, want ErrInvalidTransition", err)
		}
		if err := m.Ready(id + 100); err == nil {
			t.Fatal("Ready with wrong id accepted")
		}
		if err := m.Ready(id); err != nil {
			t.Fatal(err)
		}
		order = append(order, id)
	}

	if diff := cmp.Diff([]int{2, 1, 3}, order); diff != "" {
		t.Errorf("application order (-want +got):\n%s", diff)
	}
}

func TestMergeSummary_ListsAllDatasets(t *testing.T) {
	r := registryWith("Budget")
	sum, err := ApplyMerge(r, PlanMerge(r, []ImportedDataset{
		imported("Roads", nil, [2]string{"a", ""}, [2]string{"b", ""}),
	}, testMeta()))
	if err != nil {
		t.Fatal(err)
	}

	want := []DatasetSummary{
		{ID: 1, Name: "Budget", Attributes: 1},
		{ID: 2, Name: "Roads", Attributes: 2},
	}
	if diff := cmp.Diff(want, sum.Datasets); diff != "" {
		t.Errorf("summary datasets (-want +got):\n%s", diff)
	}
}
