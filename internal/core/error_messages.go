// Package core provides the form state and import logic for inventory onboarding.
//
// # Error Codes Reference
//
// Every failure ends in a user-facing message. Technical errors are mapped to
// a UserMessage carrying a short code that users can quote to support staff.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Invalid file type: Only .xlsx and .xls files are accepted
//	          Action: Save the template as an Excel workbook and try again
//	FILE002 - File too large: File exceeds the 10 MB limit
//	          Action: Remove unused sheets or rows and upload again
//	FILE003 - No file: No file has been selected
//	          Action: Select an Excel template to upload
//
// # Transport Errors (NET001-NET099)
//
//	NET001 - Timeout: The request timed out
//	         Action: Check your connection and try the action again
//	NET002 - Transport: The server could not be reached
//	         Action: Try the action again
//	NET003 - Malformed response: The server response could not be read
//	         Action: Try again or contact support
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Validation rejected: The file did not pass validation
//	         Action: Fix the listed issues and upload the file again
//	IMP002 - Processing rejected: The file could not be processed
//	IMP003 - No field metadata: The server did not describe the template fields
//	IMP004 - Duplicate dataset names: Some datasets will be overwritten
//	IMP005 - Empty import: The file contains no datasets
//	IMP006 - Invalid step: The file must be validated first
//	IMP007 - Overwrite unconfirmed: Existing form data will be overwritten
//	IMP008 - No pending merge: There is no merge waiting for confirmation
//
// # Form Errors (FORM001-FORM099)
//
//	FORM001 - Dataset not found
//	FORM002 - Attribute not found
//	FORM003 - Read-only: The form is in review mode
//	FORM004 - Not initialized: The form has not been initialized
//	FORM005 - Unknown field
//	FORM006 - Submit rejected: The form could not be saved
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Session not found: The form session has expired
//	SES002 - Session closed
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Support staff should check the logs for the
// technical error carrying the same request id.
package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFileType       = errors.New("invalid file type")
	ErrFileTooLarge          = errors.New("file too large")
	ErrNoFile                = errors.New("no file selected")
	ErrTransportTimeout      = errors.New("request timed out")
	ErrTransport             = errors.New("transport error")
	ErrMalformedResponse     = errors.New("malformed response body")
	ErrValidationRejected    = errors.New("validation rejected")
	ErrProcessingRejected    = errors.New("processing rejected")
	ErrNoFieldMetadata       = errors.New("no field metadata")
	ErrDuplicateDatasetNames = errors.New("duplicate dataset names")
	ErrEmptyImport           = errors.New("file contains no datasets")
	ErrInvalidTransition     = errors.New("invalid import step")
	ErrOverwriteUnconfirmed  = errors.New("overwrite not confirmed")
	ErrNoPendingMerge        = errors.New("no pending merge")

	ErrDatasetNotFound   = errors.New("dataset not found")
	ErrAttributeNotFound = errors.New("attribute not found")
	ErrReadOnlyMode      = errors.New("form is read-only")
	ErrNotInitialized    = errors.New("registry not initialized")
	ErrUnknownField      = errors.New("unknown field")
	ErrSubmitRejected    = errors.New("submission rejected")

	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

// errorEntry binds a sentinel to its user message. The first entry whose
// sentinel matches via errors.Is wins, so more specific sentinels come first.
type errorEntry struct {
	target error
	msg    UserMessage
}

var errorCatalog = []errorEntry{
	// =========================================================================
	// File acceptance (FILE001-FILE003)
	// =========================================================================
	{ErrInvalidFileType, UserMessage{
		Message: "Only .xlsx and .xls files are accepted",
		Action:  "Save the template as an Excel workbook and try again",
		Code:    "FILE001",
	}},
	{ErrFileTooLarge, UserMessage{
		Message: "File exceeds the 10 MB limit",
		Action:  "Remove unused sheets or rows and upload again",
		Code:    "FILE002",
	}},
	{ErrNoFile, UserMessage{
		Message: "No file has been selected",
		Action:  "Select an Excel template to upload",
		Code:    "FILE003",
	}},

	// =========================================================================
	// Transport (NET001-NET003)
	// =========================================================================
	{ErrTransportTimeout, UserMessage{
		Message: "The request timed out",
		Action:  "Check your connection and try the action again",
		Code:    "NET001",
	}},
	{ErrMalformedResponse, UserMessage{
		Message: "The server response could not be read",
		Action:  "Try again or contact support",
		Code:    "NET003",
	}},
	{ErrTransport, UserMessage{
		Message: "The server could not be reached",
		Action:  "Try the action again",
		Code:    "NET002",
	}},

	// =========================================================================
	// Import pipeline and merge (IMP001-IMP008)
	// =========================================================================
	{ErrValidationRejected, UserMessage{
		Message: "The file did not pass validation",
		Action:  "Fix the listed issues and upload the file again",
		Code:    "IMP001",
	}},
	{ErrProcessingRejected, UserMessage{
		Message: "The file could not be processed",
		Action:  "Check the file contents and try again",
		Code:    "IMP002",
	}},
	{ErrNoFieldMetadata, UserMessage{
		Message: "The server did not describe the template fields",
		Action:  "Download a fresh template and try again",
		Code:    "IMP003",
	}},
	{ErrDuplicateDatasetNames, UserMessage{
		Message: "Some datasets will be overwritten",
		Action:  "Confirm the merge or cancel it",
		Code:    "IMP004",
	}},
	{ErrEmptyImport, UserMessage{
		Message: "The file contains no datasets",
		Action:  "Fill in at least one dataset row and upload again",
		Code:    "IMP005",
	}},
	{ErrInvalidTransition, UserMessage{
		Message: "This step is not available yet",
		Action:  "Validate the file before processing it",
		Code:    "IMP006",
	}},
	{ErrOverwriteUnconfirmed, UserMessage{
		Message: "Existing form data will be overwritten",
		Action:  "Confirm to continue with the import",
		Code:    "IMP007",
	}},
	{ErrNoPendingMerge, UserMessage{
		Message: "There is no merge waiting for confirmation",
		Action:  "Import the file again",
		Code:    "IMP008",
	}},

	// =========================================================================
	// Form state (FORM001-FORM006)
	// =========================================================================
	{ErrDatasetNotFound, UserMessage{
		Message: "Dataset not found",
		Action:  "Refresh the form and try again",
		Code:    "FORM001",
	}},
	{ErrAttributeNotFound, UserMessage{
		Message: "Attribute not found",
		Action:  "Refresh the form and try again",
		Code:    "FORM002",
	}},
	{ErrReadOnlyMode, UserMessage{
		Message: "The form is in review mode",
		Action:  "Open the inventory in update mode to make changes",
		Code:    "FORM003",
	}},
	{ErrNotInitialized, UserMessage{
		Message: "The form has not been initialized",
		Action:  "Reload the page",
		Code:    "FORM004",
	}},
	{ErrUnknownField, UserMessage{
		Message: "Unknown form field",
		Action:  "Refresh the form and try again",
		Code:    "FORM005",
	}},
	{ErrSubmitRejected, UserMessage{
		Message: "The form could not be saved",
		Action:  "Review the form and submit again",
		Code:    "FORM006",
	}},

	// =========================================================================
	// Sessions (SES001-SES002)
	// =========================================================================
	{ErrSessionNotFound, UserMessage{
		Message: "The form session has expired",
		Action:  "Reload the page to start a new session",
		Code:    "SES001",
	}},
	{ErrSessionClosed, UserMessage{
		Message: "The form session was closed",
		Action:  "Reload the page to start a new session",
		Code:    "SES002",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// UserMessages returns every catalogued message, ERR000 last.
func UserMessages() []UserMessage {
	out := make([]UserMessage, 0, len(errorCatalog)+1)
	for _, e := range errorCatalog {
		out = append(out, e.msg)
	}
	return append(out, defaultMessage)
}

// MapError converts an error to a user-friendly message. Unknown errors map
// to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	for _, e := range errorCatalog {
		if errors.Is(err, e.target) {
			return e.msg
		}
	}
	return defaultMessage
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with the message shown to users.
type UserError struct {
	Technical error
	User      UserMessage
	Detail    string // Optional extra text from the server, already sanitized
}

func (e *UserError) Error() string {
	if e.Detail != "" {
		return e.User.Message + ": " + e.Detail
	}
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil. The
// message of a wrapped StatusCodeError becomes the detail.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	ue := &UserError{
		Technical: err,
		User:      MapError(err),
	}
	var sce *StatusCodeError
	if errors.As(err, &sce) {
		ue.Detail = sce.Message
	}
	return ue
}

// StatusCodeError is a non-2xx upstream reply. It matches ErrTransport.
type StatusCodeError struct {
	Op      string
	Status  int
	Message string // The body's error field, sanitized; may be empty
}

func (e *StatusCodeError) Error() string {
	msg := fmt.Sprintf("%s: %v: unexpected status %d", e.Op, ErrTransport, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *StatusCodeError) Unwrap() error {
	return ErrTransport
}
