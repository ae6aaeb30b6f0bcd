package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as localized messages with action suggestions
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is mapped via the message catalog to a user message in the
//     session's language
//  4. Technical error + context is logged with request and session IDs
//  5. The status code is derived from the sentinel the error wraps

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusCodes maps sentinel errors to HTTP status codes. The first match wins.
var statusCodes = []struct {
	err    error
	status int
}{
	{core.ErrSessionNotFound, http.StatusNotFound},
	{core.ErrSessionClosed, http.StatusGone},
	{core.ErrDatasetNotFound, http.StatusNotFound},
	{core.ErrAttributeNotFound, http.StatusNotFound},
	{core.ErrReadOnlyMode, http.StatusForbidden},
	{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
	{core.ErrInvalidFileType, http.StatusUnsupportedMediaType},
	{core.ErrNoFile, http.StatusBadRequest},
	{core.ErrUnknownField, http.StatusBadRequest},
	{core.ErrOverwriteUnconfirmed, http.StatusConflict},
	{core.ErrInvalidTransition, http.StatusConflict},
	{core.ErrNoPendingMerge, http.StatusConflict},
	{core.ErrDuplicateDatasetNames, http.StatusConflict},
	{core.ErrNotInitialized, http.StatusConflict},
	{core.ErrSubmitRejected, http.StatusUnprocessableEntity},
	{core.ErrTooManyRequests, http.StatusServiceUnavailable},
	{core.ErrTransportTimeout, http.StatusGatewayTimeout},
	{core.ErrMalformedResponse, http.StatusBadGateway},
	{core.ErrTransport, http.StatusBadGateway},
}

// statusFor returns the HTTP status for err.
func statusFor(err error) int {
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return sc.status
		}
	}
	return http.StatusInternalServerError
}

// respondError handles error responses with user-friendly messages.
// It logs the technical error server-side and returns the localized message
// as JSON.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondErrorStatus(w, r, err, statusFor(err))
}

// respondErrorStatus is respondError with an explicit status code.
func (s *Server) respondErrorStatus(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := s.catalog.MapError(err, locale(r))

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError || !core.IsUserFacing(err) {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}

	writeJSONStatus(w, statusCode, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// localizeView translates the user-facing messages embedded in a view.
func (s *Server) localizeView(v *core.View, loc string) {
	// Copies, since the view shares these with the session.
	if v.LoadError != nil {
		le := *v.LoadError
		le.UserMessage = s.catalog.Localize(le.UserMessage, loc)
		v.LoadError = &le
	}
	if v.Import.Error != nil {
		ie := *v.Import.Error
		ie.UserMessage = s.catalog.Localize(ie.UserMessage, loc)
		v.Import.Error = &ie
	}
}
