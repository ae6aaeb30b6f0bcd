// Package store persists inventories submitted through the form.
//
// An inventory owns an ordered list of datasets, each with an ordered list of
// attributes. Saving replaces the inventory's content: records that carry an
// id owned by the inventory are updated in place, records without one are
// created, and owned records missing from the submission are deleted.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/inventory/internal/core"
)

var ErrNotFound = errors.New("inventory not found")

// Status is the lifecycle state of a saved inventory.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
)

// StatusFor maps a form action to the status it saves.
func StatusFor(action core.FormAction) Status {
	if action == core.ActionDraft {
		return StatusDraft
	}
	return StatusSubmitted
}

// Submission is one save of the form.
type Submission struct {
	InventoryID int64 // 0 creates a new inventory
	Status      Status
	Datasets    []core.ServerDataset
}

// Store reads and writes inventories.
type Store interface {
	// Inventory returns the inventory with its datasets and attributes in
	// saved order. ErrNotFound when no inventory has the id.
	Inventory(ctx context.Context, id int64) (core.Inventory, error)

	// Save writes sub and returns the inventory id. Saving to an unknown
	// inventory id returns ErrNotFound.
	Save(ctx context.Context, sub Submission) (int64, error)

	Close()
}

// inventoryName names the n-th inventory created.
func inventoryName(n int64) string {
	return fmt.Sprintf("Data Inventory %d", n)
}

// fieldsToMap flattens dataset fields for storage. Blank values are omitted.
func fieldsToMap(fields map[core.FieldRole]core.Text) map[string]string {
	out := make(map[string]string, len(fields))
	for role, v := range fields {
		if v != "" {
			out[string(role)] = string(v)
		}
	}
	return out
}

// mapToFields restores stored fields, dropping unknown roles.
func mapToFields(m map[string]string) map[core.FieldRole]core.Text {
	out := make(map[core.FieldRole]core.Text, len(m))
	for k, v := range m {
		if role := core.FieldRole(k); role.Valid() {
			out[role] = core.Text(v)
		}
	}
	return out
}
