// Package upstream is a reference implementation of the portlet resource
// endpoints the form talks to: validateFile, processFile, fetchData and
// submitForm, plus a template download.
//
// Domain failures are answered with HTTP 200 and {"success":false,"error":...}
// so clients can tell them apart from transport failures.
package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/sheet"
	"github.com/JonMunkholm/inventory/internal/store"
)

// formOverhead is the multipart allowance on top of the file size limit.
const formOverhead = 1 << 20

// Config configures the handlers.
type Config struct {
	Template  *sheet.Template
	Store     store.Store
	Namespace string // default form namespace for submitForm
	Logger    *slog.Logger
}

// Handler serves the upstream endpoints.
type Handler struct {
	template  *sheet.Template
	store     store.Store
	namespace string
	logger    *slog.Logger
}

// New creates a Handler. A nil template uses the embedded one and a nil
// store keeps inventories in memory.
func New(cfg Config) *Handler {
	h := &Handler{
		template:  cfg.Template,
		store:     cfg.Store,
		namespace: cfg.Namespace,
		logger:    cfg.Logger,
	}
	if h.template == nil {
		h.template = sheet.DefaultTemplate()
	}
	if h.store == nil {
		h.store = store.NewMemory()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Routes returns the endpoint router, meant to be mounted under a prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/validateFile", h.handleValidateFile)
	r.Post("/processFile", h.handleProcessFile)
	r.Get("/fetchData", h.handleFetchData)
	r.Post("/submitForm", h.handleSubmitForm)
	r.Get("/template", h.handleTemplate)
	return r
}

type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	attrs := []any{"path", r.URL.Path, "message", msg, "request_id", middleware.GetReqID(r.Context())}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	h.logger.Warn("upstream request rejected", attrs...)
	writeJSON(w, failure{Error: msg})
}

// readUpload reads the "file" part of a multipart request.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.template.MaxBytes+formOverhead)
	if err := r.ParseMultipartForm(h.template.MaxBytes + formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, fmt.Errorf("File size exceeds %dMB limit", h.template.MaxBytes>>20)
		}
		return "", nil, errors.New("No file uploaded")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, errors.New("No file uploaded")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, errors.New("No file uploaded")
	}
	return header.Filename, data, nil
}

func (h *Handler) handleValidateFile(w http.ResponseWriter, r *http.Request) {
	name, data, err := h.readUpload(w, r)
	if err != nil {
		h.fail(w, r, err.Error(), nil)
		return
	}

	resp := h.template.Validate(name, data)
	h.logger.Info("file validated",
		"file", name,
		"bytes", len(data),
		"language", r.FormValue("language"),
		"success", resp.Success,
		"errors", len(resp.Errors),
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeJSON(w, resp)
}

func (h *Handler) handleProcessFile(w http.ResponseWriter, r *http.Request) {
	name, data, err := h.readUpload(w, r)
	if err != nil {
		h.fail(w, r, err.Error(), nil)
		return
	}

	datasets, err := h.template.Parse(data)
	if err != nil {
		h.fail(w, r, "Failed to process uploaded file. Please try again.", err)
		return
	}
	h.logger.Info("file processed",
		"file", name,
		"datasets", len(datasets),
		"request_id", middleware.GetReqID(r.Context()),
	)
	if datasets == nil {
		datasets = []core.ImportedDataset{}
	}
	writeJSON(w, core.ProcessResponse{
		Success:       true,
		Datasets:      datasets,
		FieldMetadata: h.template.FieldMetadata(),
	})
}

func (h *Handler) handleFetchData(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("inventoryId")), 10, 64)
	if err != nil || id <= 0 {
		h.fail(w, r, "Failed to retrieve inventory data", err)
		return
	}

	inv, err := h.store.Inventory(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to retrieve inventory data", err)
		return
	}
	writeJSON(w, core.FetchResponse{Success: true, Inventory: &inv})
}

func (h *Handler) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, "Invalid form submission", err)
		return
	}
	ns := r.PostForm.Get("namespace")
	if ns == "" {
		ns = h.namespace
	}

	form, err := core.ParseForm(r.PostForm, ns)
	if err != nil {
		h.fail(w, r, "Invalid form submission", err)
		return
	}
	if len(form.Datasets) == 0 {
		h.fail(w, r, "No datasets found in request", nil)
		return
	}

	var inventoryID int64
	if form.InventoryID != "" {
		if inventoryID, err = strconv.ParseInt(form.InventoryID, 10, 64); err != nil {
			h.fail(w, r, "Invalid inventory id", err)
			return
		}
	}

	id, err := h.store.Save(r.Context(), store.Submission{
		InventoryID: inventoryID,
		Status:      store.StatusFor(form.Action),
		Datasets:    form.Datasets,
	})
	if err != nil {
		h.fail(w, r, "Failed to save inventory", err)
		return
	}

	h.logger.Info("inventory saved",
		"inventory_id", id,
		"action", form.Action,
		"datasets", len(form.Datasets),
		"request_id", middleware.GetReqID(r.Context()),
	)
	writeJSON(w, core.SubmitResponse{Success: true, InventoryID: core.Text(strconv.FormatInt(id, 10))})
}

func (h *Handler) handleTemplate(w http.ResponseWriter, r *http.Request) {
	data, err := h.template.Workbook()
	if err != nil {
		h.logger.Error("render template", "error", err)
		http.Error(w, "template unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="inventory-template.xlsx"`)
	w.Write(data)
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
