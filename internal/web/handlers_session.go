package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/logging"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// keepAliveInterval is how often an idle event stream sends a comment.
var keepAliveInterval = 15 * time.Second

// decodeJSON decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: request body: %v", core.ErrUnknownField, err)
	}
	return nil
}

// viewResponse is the body of every session mutation: the fresh view plus
// whatever the operation produced.
type viewResponse struct {
	DatasetID   int                `json:"datasetId,omitempty"`
	Index       int                `json:"index,omitempty"`
	Removed     *bool              `json:"removed,omitempty"`
	Merge       *core.MergeSummary `json:"merge,omitempty"`
	InventoryID string             `json:"inventoryId,omitempty"`
	View        core.View          `json:"view"`
}

// respondView renders the current session view with status.
func (s *Server) respondView(w http.ResponseWriter, r *http.Request, status int, resp viewResponse) {
	sess := sessionFrom(r)
	v, err := sess.View()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.localizeView(&v, locale(r))
	resp.View = v
	writeJSONStatus(w, status, resp)
}

// handleOpenSession opens a form session.
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req core.OpenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondErrorStatus(w, r, err, http.StatusBadRequest)
		return
	}
	if req.Locale == "" {
		req.Locale = r.Header.Get("Accept-Language")
	}

	sess, err := s.service.Open(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(core.ContextWithSessionID(r.Context(), sess.ID())).Info("session opened via api",
		"mode", string(sess.Mode()),
		"inventory_id", req.InventoryID,
	)

	v, err := sess.View()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.localizeView(&v, req.Locale)
	w.Header().Set("Location", "/api/sessions/"+sess.ID())
	writeJSONStatus(w, http.StatusCreated, v)
}

// handleView returns the session view.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	s.respondView(w, r, http.StatusOK, viewResponse{})
}

// handleCloseSession closes the session.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Close(sessionFrom(r).ID()); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFormValues returns the form post the session would submit.
func (s *Server) handleFormValues(w http.ResponseWriter, r *http.Request) {
	action, err := core.ParseFormAction(r.URL.Query().Get("action"))
	if err != nil {
		s.respondErrorStatus(w, r, err, http.StatusBadRequest)
		return
	}
	values, err := sessionFrom(r).FormValues(action)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
	io.WriteString(w, values.Encode())
}

// handleEvents streams session refresh events via Server-Sent Events.
// Each event carries an increasing id; a reconnecting client should fetch
// the view again since missed events are not replayed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, cancel := sess.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := logging.FromContext(r.Context())
	logger.Debug("event stream opened")

	// The first event tells the client the stream is live.
	fmt.Fprintf(w, "event: ready\ndata: {\"sessionId\":%q}\n\n", sess.ID())
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	eventID := 0
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Channel closed - session closed or expired
				fmt.Fprintf(w, "event: closed\ndata: {}\n\n")
				flusher.Flush()
				logger.Debug("event stream closed by session")
				return
			}
			eventID++
			data, _ := json.Marshal(ev)
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", eventID, ev.Kind, data)
			flusher.Flush()

		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			logger.Debug("event stream disconnected", "events", eventID)
			return
		}
	}
}

// datasetParam parses {datasetID}.
func datasetParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "datasetID"))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", core.ErrDatasetNotFound, chi.URLParam(r, "datasetID"))
	}
	return id, nil
}

// indexParam parses {index}.
func indexParam(r *http.Request) (int, error) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", core.ErrAttributeNotFound, chi.URLParam(r, "index"))
	}
	return idx, nil
}
