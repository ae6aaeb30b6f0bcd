package core

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func TestRegistry_CreateInitialDataset(t *testing.T) {
	r := NewRegistry(nil)

	if r.Initialized() {
		t.Fatal("new registry should not be initialized")
	}
	if _, err := r.AddDataset(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("AddDataset before init error = %v, want ErrNotInitialized", err)
	}

	id := r.CreateInitialDataset()
	if id != 1 {
		t.Errorf("first id = %d, want 1", id)
	}
	if r.Active() != 1 {
		t.Errorf("Active = %d, want 1", r.Active())
	}
	ds, ok := r.Dataset(1)
	if !ok {
		t.Fatal("dataset 1 missing")
	}
	if len(ds.Attributes) != 1 || ds.Attributes[0].Index != 1 {
		t.Errorf("new dataset attributes = %+v, want one row with index 1", ds.Attributes)
	}
}

func TestRegistry_DeleteFloor(t *testing.T) {
	r := NewRegistry(nil)
	id := r.CreateInitialDataset()

	removed, err := r.DeleteDataset(id)
	if err != nil {
		t.Fatalf("DeleteDataset error = %v", err)
	}
	if removed {
		t.Error("deleting the last dataset should be a no-op")
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
}

func TestRegistry_DeleteActiveActivatesFirst(t *testing.T) {
	r := NewRegistry(nil)
	r.CreateInitialDataset()
	r.AddDataset()
	third, _ := r.AddDataset()

	if r.Active() != third {
		t.Fatalf("Active = %d, want %d", r.Active(), third)
	}
	if _, err := r.DeleteDataset(third); err != nil {
		t.Fatal(err)
	}
	if r.Active() != 1 {
		t.Errorf("Active after deleting active = %d, want 1", r.Active())
	}

	if _, err := r.DeleteDataset(1); err != nil {
		t.Fatal(err)
	}
	if r.Active() != 2 {
		t.Errorf("Active after deleting first = %d, want 2", r.Active())
	}
}

func TestRegistry_DeleteUnknown(t *testing.T) {
	r := NewRegistry(nil)
	r.CreateInitialDataset()

	if _, err := r.DeleteDataset(42); !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("error = %v, want ErrDatasetNotFound", err)
	}
	if err := r.SwitchActive(42); !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("SwitchActive error = %v, want ErrDatasetNotFound", err)
	}
}

func TestRegistry_IDsNeverReused(t *testing.T) {
	r := NewRegistry(nil)
	r.CreateInitialDataset()
	a, _ := r.AddDataset()
	r.DeleteDataset(a)
	b, _ := r.AddDataset()

	if b == a {
		t.Errorf("id %d reused after delete", a)
	}
	if b != 3 {
		t.Errorf("next id = %d, want 3", b)
	}
}

func TestRegistry_RandomSequences(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		r := NewRegistry(nil)
		r.CreateInitialDataset()

		issued := map[int]bool{1: true}
		for step := 0; step < 200; step++ {
			if rng.Intn(2) == 0 {
				id, err := r.AddDataset()
				if err != nil {
					t.Fatalf("seed %d: AddDataset error = %v", seed, err)
				}
				if issued[id] {
					t.Fatalf("seed %d: id %d issued twice", seed, id)
				}
				issued[id] = true
			} else {
				ids := r.IDs()
				r.DeleteDataset(ids[rng.Intn(len(ids))])
			}

			if r.Count() < 1 {
				t.Fatalf("seed %d step %d: registry empty", seed, step)
			}
			seen := make(map[int]bool)
			for _, id := range r.IDs() {
				if seen[id] {
					t.Fatalf("seed %d: duplicate live id %d", seed, id)
				}
				seen[id] = true
			}
			if !seen[r.Active()] {
				t.Fatalf("seed %d: active %d not a live dataset", seed, r.Active())
			}
		}
	}
}

func TestRegistry_ClearAllThenInit(t *testing.T) {
	r := NewRegistry(nil)
	r.CreateInitialDataset()
	r.AddDataset()
	r.AddDataset()

	r.ClearAll()
	if r.Count() != 0 || r.Active() != 0 {
		t.Fatalf("after ClearAll Count=%d Active=%d, want 0 0", r.Count(), r.Active())
	}
	if _, err := r.AddDataset(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("AddDataset after ClearAll error = %v, want ErrNotInitialized", err)
	}

	if id := r.CreateInitialDataset(); id != 1 {
		t.Errorf("new generation starts at %d, want 1", id)
	}
}

func TestRegistry_DisplayName(t *testing.T) {
	r := NewRegistry(nil)
	id := r.CreateInitialDataset()

	tests := []struct {
		name        string
		input       string
		wantDisplay string
		wantSidebar string
	}{
		{"blank falls back to ordinal", "   ", "Dataset 1", "Dataset 1"},
		{"trimmed", "  Budget  ", "Budget", "Budget"},
		{"exactly twenty runes", strings.Repeat("a", 20), strings.Repeat("a", 20), strings.Repeat("a", 20)},
		{"truncated", strings.Repeat("b", 25), strings.Repeat("b", 25), strings.Repeat("b", 20) + "..."},
		{"multibyte truncated by rune", strings.Repeat("ب", 22), strings.Repeat("ب", 22), strings.Repeat("ب", 20) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.SetName(id, tt.input); err != nil {
				t.Fatal(err)
			}
			if got := r.DisplayName(id); got != tt.wantDisplay {
				t.Errorf("DisplayName = %q, want %q", got, tt.wantDisplay)
			}
			if got := r.SidebarLabel(id); got != tt.wantSidebar {
				t.Errorf("SidebarLabel = %q, want %q", got, tt.wantSidebar)
			}
		})
	}
}

func TestRegistry_HasData(t *testing.T) {
	r := NewRegistry(nil)
	id := r.CreateInitialDataset()

	if r.HasData() {
		t.Fatal("empty form reports data")
	}

	r.SetField(id, RoleReleaseYear, " ")
	if r.HasData() {
		t.Error("whitespace field counts as data")
	}

	desc := "column"
	r.SetAttribute(id, 1, AttributePatch{Description: &desc})
	if !r.HasData() {
		t.Error("attribute description not counted as data")
	}
}

func TestRegistry_SetFieldUnknownRole(t *testing.T) {
	r := NewRegistry(nil)
	id := r.CreateInitialDataset()

	if err := r.SetField(id, FieldRole("bogus"), "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("error = %v, want ErrUnknownField", err)
	}
}

func TestRegistry_EmitsEvents(t *testing.T) {
	var kinds []EventKind
	r := NewRegistry(func(ev Event) { kinds = append(kinds, ev.Kind) })

	r.CreateInitialDataset()
	id, _ := r.AddDataset()
	r.SwitchActive(1)
	r.DeleteDataset(id)

	want := []EventKind{EventFormCleared, EventDatasetAdded, EventDatasetSwitched, EventDatasetDeleted}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestRegistry_DatasetIsCopy(t *testing.T) {
	r := NewRegistry(nil)
	id := r.CreateInitialDataset()

	ds, _ := r.Dataset(id)
	ds.Fields[RoleDescription] = "changed"
	ds.Attributes[0].Name = "changed"

	again, _ := r.Dataset(id)
	if again.Fields[RoleDescription] != "" || again.Attributes[0].Name != "" {
		t.Error("mutating a snapshot changed the registry")
	}
}
