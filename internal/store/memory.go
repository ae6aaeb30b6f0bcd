package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/JonMunkholm/inventory/internal/core"
)

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	inventories map[int64]*memInventory
	nextID      int64
	created     int64
}

type memInventory struct {
	id       int64
	name     string
	status   Status
	datasets []memDataset
}

type memDataset struct {
	id         int64
	name       string
	fields     map[string]string
	attributes []core.ServerAttribute
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{inventories: make(map[int64]*memInventory), nextID: 1}
}

func (m *Memory) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

// Inventory implements Store.
func (m *Memory) Inventory(ctx context.Context, id int64) (core.Inventory, error) {
	if err := ctx.Err(); err != nil {
		return core.Inventory{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.inventories[id]
	if !ok {
		return core.Inventory{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	out := core.Inventory{
		InventoryID:   core.Text(fmt.Sprint(inv.id)),
		InventoryName: core.Text(inv.name),
		DatasetCount:  len(inv.datasets),
		Datasets:      make([]core.ServerDataset, 0, len(inv.datasets)),
	}
	for _, ds := range inv.datasets {
		out.Datasets = append(out.Datasets, core.ServerDataset{
			DatasetID:   ds.id,
			DatasetName: core.Text(ds.name),
			Fields:      mapToFields(ds.fields),
			Attributes:  append([]core.ServerAttribute{}, ds.attributes...),
		})
	}
	return out, nil
}

// Save implements Store.
func (m *Memory) Save(ctx context.Context, sub Submission) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var inv *memInventory
	if sub.InventoryID > 0 {
		var ok bool
		if inv, ok = m.inventories[sub.InventoryID]; !ok {
			return 0, fmt.Errorf("%w: %d", ErrNotFound, sub.InventoryID)
		}
	} else {
		m.created++
		inv = &memInventory{id: m.id(), name: inventoryName(m.created)}
		m.inventories[inv.id] = inv
	}
	inv.status = sub.Status

	owned := make(map[int64]memDataset, len(inv.datasets))
	for _, ds := range inv.datasets {
		owned[ds.id] = ds
	}

	datasets := make([]memDataset, 0, len(sub.Datasets))
	for _, in := range sub.Datasets {
		prev, exists := owned[in.DatasetID]
		ds := memDataset{
			id:     in.DatasetID,
			name:   string(in.DatasetName),
			fields: fieldsToMap(in.Fields),
		}
		if exists {
			delete(owned, in.DatasetID)
		} else {
			ds.id = m.id()
		}

		ownedAttrs := make(map[int64]bool, len(prev.attributes))
		for _, a := range prev.attributes {
			ownedAttrs[a.AttributeID] = true
		}
		for _, a := range in.Attributes {
			if ownedAttrs[a.AttributeID] {
				delete(ownedAttrs, a.AttributeID)
			} else {
				a.AttributeID = m.id()
			}
			ds.attributes = append(ds.attributes, a)
		}
		datasets = append(datasets, ds)
	}
	inv.datasets = datasets
	return inv.id, nil
}

// Status returns the saved status of an inventory.
func (m *Memory) Status(id int64) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.inventories[id]
	if !ok {
		return "", false
	}
	return inv.status, true
}

// Close implements Store.
func (m *Memory) Close() {}
