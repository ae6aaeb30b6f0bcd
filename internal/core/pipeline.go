package core

// pipeline.go implements the import state machine:
//
//	Idle → FileSelected → Validating → Validated | ValidationFailed
//	Validated → Processing → Processed | ProcessingFailed
//
// Network calls happen outside the pipeline. Begin* hands out a Call tagged
// with the current generation; Finish* ignores any completion whose
// generation is stale, which is how a new file selection orphans in-flight
// requests without cancelling them.

import (
	"errors"
	"fmt"
	"time"
)

// ImportState is one state of the import pipeline.
type ImportState string

const (
	StateIdle             ImportState = "idle"
	StateFileSelected     ImportState = "fileSelected"
	StateValidating       ImportState = "validating"
	StateValidated        ImportState = "validated"
	StateValidationFailed ImportState = "validationFailed"
	StateProcessing       ImportState = "processing"
	StateProcessed        ImportState = "processed"
	StateProcessingFailed ImportState = "processingFailed"
)

// Busy reports whether a request is in flight.
func (s ImportState) Busy() bool {
	return s == StateValidating || s == StateProcessing
}

// Default request timeouts.
const (
	DefaultValidateTimeout = 30 * time.Second
	DefaultProcessTimeout  = 60 * time.Second
	DefaultFetchTimeout    = 30 * time.Second
	DefaultSubmitTimeout   = 30 * time.Second
)

// Call is a request handed out by the pipeline.
type Call struct {
	Generation uint64
	File       Upload
}

// ImportResult is the outcome of a successful processing step.
type ImportResult struct {
	Datasets []ImportedDataset
	Meta     FieldMetadata
}

// Pipeline holds the upload state for one form.
type Pipeline struct {
	state  ImportState
	rules  FileRules
	file   *Upload
	gen    uint64
	report *ValidationReport
	result *ImportResult
	err    *UserError
}

// NewPipeline creates an idle pipeline.
func NewPipeline(rules FileRules) *Pipeline {
	return &Pipeline{state: StateIdle, rules: rules}
}

// State returns the current state.
func (p *Pipeline) State() ImportState { return p.state }

// Generation returns the current selection generation.
func (p *Pipeline) Generation() uint64 { return p.gen }

// Select checks and stores a new file. A rejected file leaves the pipeline
// unchanged. An accepted file resets the pipeline to FileSelected from any
// state.
func (p *Pipeline) Select(f Upload) error {
	if f.Size == 0 && len(f.Content) > 0 {
		f.Size = int64(len(f.Content))
	}
	if err := p.rules.Check(f.Name, f.Size); err != nil {
		return err
	}
	p.gen++
	p.file = &f
	p.state = StateFileSelected
	p.report = nil
	p.result = nil
	p.err = nil
	return nil
}

// Clear removes the selected file and returns to Idle.
func (p *Pipeline) Clear() {
	p.gen++
	p.file = nil
	p.state = StateIdle
	p.report = nil
	p.result = nil
	p.err = nil
}

// BeginValidate moves to Validating. The file may be validated again after
// any completed step.
func (p *Pipeline) BeginValidate() (Call, error) {
	if p.file == nil {
		return Call{}, ErrNoFile
	}
	if p.state.Busy() {
		return Call{}, fmt.Errorf("%w: request in flight", ErrInvalidTransition)
	}
	p.state = StateValidating
	p.report = nil
	p.result = nil
	p.err = nil
	return Call{Generation: p.gen, File: *p.file}, nil
}

// FinishValidate records a validation completion. It reports false when the
// completion is stale and was ignored.
func (p *Pipeline) FinishValidate(gen uint64, resp ValidateResponse, err error) bool {
	if gen != p.gen || p.state != StateValidating {
		return false
	}
	if err != nil {
		p.fail(StateValidationFailed, err, "")
		return true
	}

	report := NewValidationReport(resp)
	p.report = &report
	if !resp.Success {
		p.fail(StateValidationFailed, ErrValidationRejected, resp.Error)
		return true
	}
	p.state = StateValidated
	return true
}

// BeginProcess moves to Processing. It requires a passed validation; a
// failed or completed processing step may be retried.
func (p *Pipeline) BeginProcess() (Call, error) {
	if p.file == nil {
		return Call{}, ErrNoFile
	}
	switch p.state {
	case StateValidated, StateProcessingFailed, StateProcessed:
	default:
		return Call{}, fmt.Errorf("%w: cannot process from %s", ErrInvalidTransition, p.state)
	}
	p.state = StateProcessing
	p.result = nil
	p.err = nil
	return Call{Generation: p.gen, File: *p.file}, nil
}

// FinishProcess records a processing completion. It reports false when the
// completion is stale and was ignored.
func (p *Pipeline) FinishProcess(gen uint64, resp ProcessResponse, err error) bool {
	if gen != p.gen || p.state != StateProcessing {
		return false
	}
	switch {
	case err != nil:
		p.fail(StateProcessingFailed, err, "")
	case !resp.Success:
		p.fail(StateProcessingFailed, ErrProcessingRejected, resp.Error)
	case resp.FieldMetadata == nil:
		p.fail(StateProcessingFailed, ErrNoFieldMetadata, "")
	case len(resp.Datasets) == 0:
		p.fail(StateProcessingFailed, ErrEmptyImport, "")
	default:
		p.result = &ImportResult{Datasets: resp.Datasets, Meta: *resp.FieldMetadata}
		p.state = StateProcessed
	}
	return true
}

// Result returns the processed import, if any.
func (p *Pipeline) Result() (ImportResult, bool) {
	if p.result == nil {
		return ImportResult{}, false
	}
	return *p.result, true
}

// Err returns the last failure, or nil.
func (p *Pipeline) Err() error {
	if p.err == nil {
		return nil
	}
	return p.err
}

func (p *Pipeline) fail(state ImportState, err error, detail string) {
	p.state = state
	ue := NewUserError(err)
	if detail != "" {
		ue.Detail = detail
	}
	p.err = ue
}

// PipelineStatus is a snapshot for rendering the upload dialog.
type PipelineStatus struct {
	State       ImportState       `json:"state"`
	FileName    string            `json:"fileName,omitempty"`
	FileSize    int64             `json:"fileSize,omitempty"`
	CanValidate bool              `json:"canValidate"`
	CanProcess  bool              `json:"canProcess"`
	Report      *ValidationReport `json:"report,omitempty"`
	Error       *StatusError      `json:"error,omitempty"`
}

// StatusError is the user-facing form of a pipeline failure.
type StatusError struct {
	UserMessage
	Detail string `json:"detail,omitempty"`
}

// Status returns a snapshot of the pipeline.
func (p *Pipeline) Status() PipelineStatus {
	st := PipelineStatus{State: p.state}
	if p.file != nil {
		st.FileName = p.file.Name
		st.FileSize = p.file.Size
		st.CanValidate = !p.state.Busy()
		switch p.state {
		case StateValidated, StateProcessingFailed, StateProcessed:
			st.CanProcess = true
		}
	}
	if p.report != nil {
		r := *p.report
		st.Report = &r
	}
	if p.err != nil {
		st.Error = &StatusError{UserMessage: p.err.User, Detail: p.err.Detail}
	}
	return st
}

// IsTimeout reports whether the last failure was a request timeout.
func (p *Pipeline) IsTimeout() bool {
	return p.err != nil && errors.Is(p.err, ErrTransportTimeout)
}
