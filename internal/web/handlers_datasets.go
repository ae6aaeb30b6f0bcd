package web

import (
	"net/http"

	"github.com/JonMunkholm/inventory/internal/core"
)

// handleAddDataset appends an empty dataset and makes it active.
func (s *Server) handleAddDataset(w http.ResponseWriter, r *http.Request) {
	id, err := sessionFrom(r).AddDataset()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, r, http.StatusCreated, viewResponse{DatasetID: id})
}

// handleSwitchDataset makes a dataset active.
func (s *Server) handleSwitchDataset(w http.ResponseWriter, r *http.Request) {
	id, err := datasetParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := sessionFrom(r).SwitchDataset(id); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, r, http.StatusOK, viewResponse{DatasetID: id})
}

// handleUpdateDataset sets the dataset name and descriptive fields.
func (s *Server) handleUpdateDataset(w http.ResponseWriter, r *http.Request) {
	id, err := datasetParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var patch core.DatasetPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.respondErrorStatus(w, r, err, http.StatusBadRequest)
		return
	}
	if err := sessionFrom(r).UpdateDataset(id, patch); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, r, http.StatusOK, viewResponse{DatasetID: id})
}

// handleDeleteDataset deletes a dataset. Deleting the last one is a no-op
// reported as removed=false.
func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	id, err := datasetParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	removed, err := sessionFrom(r).DeleteDataset(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, r, http.StatusOK, viewResponse{Removed: &removed})
}

// handleAddAttribute appends an attribute row.
func (s *Server) handleAddAttribute(w http.ResponseWriter, r *http.Request) {
	id, err := datasetParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	idx, err := sessionFrom(r).AddAttribute(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, r, http.StatusCreated, viewResponse{DatasetID: id, Index: idx})
}

// handleUpdateAttribute sets an attribute's name and description.
func (s *Server) handleUpdateAttribute(w http.ResponseWriter, r *http.Request) {
	id, err := datasetParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	idx, err := indexParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var patch core.AttributePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.respondErrorStatus(w, r, err, http.StatusBadRequest)
		return
	}
	if err := sessionFrom(r).UpdateAttribute(id, idx, patch); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, r, http.StatusOK, viewResponse{DatasetID: id, Index: idx})
}

// handleRemoveAttribute removes an attribute row and relabels the rest.
// Removing the only row is a no-op reported as removed=false.
func (s *Server) handleRemoveAttribute(w http.ResponseWriter, r *http.Request) {
	id, err := datasetParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	idx, err := indexParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	removed, err := sessionFrom(r).RemoveAttribute(id, idx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, r, http.StatusOK, viewResponse{DatasetID: id, Removed: &removed})
}
