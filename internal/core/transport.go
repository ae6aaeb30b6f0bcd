package core

import (
	"context"
	"net/url"
)

// Upload is a selected spreadsheet held in memory until the import finishes.
type Upload struct {
	Name    string
	Size    int64
	Content []byte
}

// ValidateRequest is the validateFile request.
type ValidateRequest struct {
	File      Upload
	Language  string // primary language subtag, e.g. "en"
	Namespace string
}

// ValidateResponse is the validateFile response body.
type ValidateResponse struct {
	Success     bool     `json:"success"`
	ColumnCount int      `json:"columnCount,omitempty"`
	RowCount    int      `json:"rowCount,omitempty"`
	DataTypes   Text     `json:"dataTypes,omitempty"`
	Encoding    Text     `json:"encoding,omitempty"`
	Errors      []string `json:"errors,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// ProcessRequest is the processFile request.
type ProcessRequest struct {
	File      Upload
	Namespace string
}

// ProcessResponse is the processFile response body.
type ProcessResponse struct {
	Success       bool              `json:"success"`
	Datasets      []ImportedDataset `json:"datasets,omitempty"`
	FieldMetadata *FieldMetadata    `json:"fieldMetadata,omitempty"`
	Error         string            `json:"error,omitempty"`
}

// FetchResponse is the fetchData response body.
type FetchResponse struct {
	Success   bool       `json:"success"`
	Inventory *Inventory `json:"inventory,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Inventory is a persisted inventory as returned by fetchData.
type Inventory struct {
	InventoryID   Text            `json:"inventoryId,omitempty"`
	InventoryName Text            `json:"inventoryName"`
	DatasetCount  int             `json:"datasetCount"`
	Datasets      []ServerDataset `json:"datasets"`
}

// ServerDataset is one persisted dataset. Role values may arrive as strings,
// numbers or null.
type ServerDataset struct {
	DatasetID   int64              `json:"datasetId"`
	DatasetName Text               `json:"datasetName"`
	Fields      map[FieldRole]Text `json:"-"`
	Attributes  []ServerAttribute  `json:"attributes"`
}

// ServerAttribute is one persisted attribute.
type ServerAttribute struct {
	AttributeID          int64 `json:"attributeId"`
	AttributeName        Text  `json:"attributeName"`
	AttributeDescription Text  `json:"attributeDescription"`
}

// SubmitResponse is the submitForm response body.
type SubmitResponse struct {
	Success     bool   `json:"success"`
	InventoryID Text   `json:"inventoryId,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Transport reaches the collaborating portal endpoints. Implementations
// return errors wrapping ErrTransportTimeout, ErrTransport or
// ErrMalformedResponse; a decoded body with success=false is not an error.
type Transport interface {
	Validate(ctx context.Context, req ValidateRequest) (ValidateResponse, error)
	Process(ctx context.Context, req ProcessRequest) (ProcessResponse, error)
	Fetch(ctx context.Context, inventoryID, namespace string) (FetchResponse, error)
	Submit(ctx context.Context, form url.Values) (SubmitResponse, error)
}
