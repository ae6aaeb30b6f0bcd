package core

import (
	"strings"
)

// Mode selects how a form session behaves.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeReview Mode = "review"
	ModeUpdate Mode = "update"
)

// ResolveMode maps the requested mode flag and inventory id onto a mode.
// Review and update need an inventory id; without one, or for an unknown
// flag, the form falls back to create.
func ResolveMode(flag, inventoryID string) Mode {
	m := Mode(strings.ToLower(strings.TrimSpace(flag)))
	switch m {
	case ModeReview, ModeUpdate:
		if strings.TrimSpace(inventoryID) == "" {
			return ModeCreate
		}
		return m
	default:
		return ModeCreate
	}
}

// ReadOnly reports whether mutations are rejected.
func (m Mode) ReadOnly() bool { return m == ModeReview }

// ServerLoaded reports whether the form starts from a persisted inventory.
func (m Mode) ServerLoaded() bool { return m == ModeReview || m == ModeUpdate }

// Merges reports whether imports are reconciled against existing datasets
// instead of replacing the form.
func (m Mode) Merges() bool { return m == ModeUpdate }

// Title is the page heading for the mode.
func (m Mode) Title() string {
	switch m {
	case ModeReview:
		return "Review Inventory Submission"
	case ModeUpdate:
		return "Update Inventory Submission"
	default:
		return "Inventory Submission"
	}
}

// Controls lists which controls are displayed.
type Controls struct {
	AddDataset      bool `json:"addDataset"`
	DeleteDataset   bool `json:"deleteDataset"`
	AddAttribute    bool `json:"addAttribute"`
	RemoveAttribute bool `json:"removeAttribute"`
	Import          bool `json:"import"`
	SaveDraft       bool `json:"saveDraft"`
	Submit          bool `json:"submit"`
	Cancel          bool `json:"cancel"`
}

// Controls returns the controls shown in mode m. Review mode hides every
// mutation control.
func (m Mode) Controls() Controls {
	if m.ReadOnly() {
		return Controls{}
	}
	return Controls{
		AddDataset:      true,
		DeleteDataset:   true,
		AddAttribute:    true,
		RemoveAttribute: true,
		Import:          true,
		SaveDraft:       true,
		Submit:          true,
		Cancel:          true,
	}
}

// Banner is the mode header shown above server-loaded forms.
type Banner struct {
	Heading       string `json:"heading"`
	Description   string `json:"description"`
	InventoryName string `json:"inventoryName"`
	InventoryID   string `json:"inventoryId"`
	DatasetCount  int    `json:"datasetCount"`
	Access        string `json:"access"`
	FormNotice    string `json:"formNotice"`
}

// NewBanner builds the header for a loaded inventory. Create mode has none.
func NewBanner(m Mode, inv Inventory, inventoryID string) *Banner {
	if !m.ServerLoaded() {
		return nil
	}
	name := strings.TrimSpace(inv.InventoryName.String())
	if name == "" {
		name = "N/A"
	}
	b := &Banner{
		InventoryName: name,
		InventoryID:   inventoryID,
		DatasetCount:  inv.DatasetCount,
	}
	if m.ReadOnly() {
		b.Heading = "Review Mode"
		b.Description = "Viewing inventory submission in read-only mode"
		b.Access = "Read-only"
		b.FormNotice = "Read-Only Mode - This form is in review mode"
	} else {
		b.Heading = "Update Mode"
		b.Description = "Edit and update inventory submission"
		b.Access = "Editable"
		b.FormNotice = "Update Mode - You can modify the form data"
	}
	return b
}
