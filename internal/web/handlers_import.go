package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/logging"
)

// multipartOverhead is allowed on top of the file size limit for the form
// envelope, so an oversized file is detected by its own size.
const multipartOverhead = 1 << 20

// handleOpenImport opens the upload dialog. In create mode a form with data
// needs {"confirm": true}; without it the response is 409 with the
// overwrite warning.
func (s *Server) handleOpenImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErrorStatus(w, r, err, http.StatusBadRequest)
		return
	}
	if err := sessionFrom(r).OpenImport(req.Confirm); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, r, http.StatusOK, viewResponse{})
}

// handleSelectFile accepts the spreadsheet as multipart field "file".
func (s *Server) handleSelectFile(w http.ResponseWriter, r *http.Request) {
	upload, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.WithFields(r.Context(), "file", upload.Name).Info("file received", "bytes", upload.Size)

	if err := sessionFrom(r).SelectFile(upload); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, r, http.StatusOK, viewResponse{})
}

// readUpload reads the "file" part. The size check against the limit
// happens in the session; the reader only stops a body far beyond it.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (core.Upload, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	if maxSize <= 0 {
		maxSize = core.DefaultMaxFileSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.Upload{}, fmt.Errorf("%w: request exceeds %d bytes", core.ErrFileTooLarge, tooLarge.Limit)
		}
		return core.Upload{}, fmt.Errorf("%w: %v", core.ErrNoFile, err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return core.Upload{}, fmt.Errorf("%w: %v", core.ErrNoFile, err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return core.Upload{}, fmt.Errorf("read upload: %w", err)
	}
	return core.Upload{Name: header.Filename, Size: header.Size, Content: content}, nil
}

// handleClearFile removes the selected file.
func (s *Server) handleClearFile(w http.ResponseWriter, r *http.Request) {
	if err := sessionFrom(r).ClearFile(); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, r, http.StatusOK, viewResponse{})
}

// handleValidate starts validation. The result arrives as an import.state
// event; with ?wait=true the response waits for it.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	s.startStep(w, r, sessionFrom(r).StartValidate)
}

// handleProcess starts processing. The result arrives as import.state and
// form or merge events; with ?wait=true the response waits for it.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	s.startStep(w, r, sessionFrom(r).StartProcess)
}

func (s *Server) startStep(w http.ResponseWriter, r *http.Request, start func() error) {
	if err := start(); err != nil {
		s.respondError(w, r, err)
		return
	}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		if err := sessionFrom(r).WaitIdle(r.Context()); err != nil {
			s.respondError(w, r, err)
			return
		}
		s.respondView(w, r, http.StatusOK, viewResponse{})
		return
	}
	s.respondView(w, r, http.StatusAccepted, viewResponse{})
}

// handleConfirmMerge applies the pending merge.
func (s *Server) handleConfirmMerge(w http.ResponseWriter, r *http.Request) {
	sum, err := sessionFrom(r).ConfirmMerge()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, r, http.StatusOK, viewResponse{Merge: &sum})
}

// handleCancelMerge discards the pending merge.
func (s *Server) handleCancelMerge(w http.ResponseWriter, r *http.Request) {
	if err := sessionFrom(r).CancelMerge(); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, r, http.StatusOK, viewResponse{})
}

// handleSubmit posts the form as {"action": "draft"|"submit"}.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErrorStatus(w, r, err, http.StatusBadRequest)
		return
	}
	action, err := core.ParseFormAction(req.Action)
	if err != nil {
		s.respondErrorStatus(w, r, err, http.StatusBadRequest)
		return
	}

	resp, err := sessionFrom(r).Submit(r.Context(), action)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondView(w, r, http.StatusOK, viewResponse{InventoryID: resp.InventoryID.String()})
}
