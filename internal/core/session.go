package core

// session.go runs one open form as an actor.
//
// The registry, pipeline and pending merge belong to a single goroutine.
// Public methods send a closure to it and wait for the result. Upstream
// calls run on their own goroutine and post their completion back, so a
// slow validateFile never blocks edits to the form.

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// Timeouts bounds each upstream call.
type Timeouts struct {
	Validate time.Duration
	Process  time.Duration
	Fetch    time.Duration
	Submit   time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Validate <= 0 {
		t.Validate = DefaultValidateTimeout
	}
	if t.Process <= 0 {
		t.Process = DefaultProcessTimeout
	}
	if t.Fetch <= 0 {
		t.Fetch = DefaultFetchTimeout
	}
	if t.Submit <= 0 {
		t.Submit = DefaultSubmitTimeout
	}
	return t
}

// ImportSummary describes the last import applied to the form.
type ImportSummary struct {
	Merged  bool          `json:"merged"`
	Load    *LoadSummary  `json:"load,omitempty"`
	Merge   *MergeSummary `json:"merge,omitempty"`
	Message string        `json:"message"`
}

// DatasetPatch carries dataset fields to change. Nil fields are untouched.
type DatasetPatch struct {
	Name   *string              `json:"name,omitempty"`
	Fields map[FieldRole]string `json:"fields,omitempty"`
}

// Session is one open inventory form.
type Session struct {
	id          string
	mode        Mode
	inventoryID string
	namespace   string
	locale      string

	transport Transport
	limiter   *RequestLimiter
	timeouts  Timeouts
	log       *slog.Logger
	events    *Broadcaster

	// Owned by the actor goroutine.
	reg        *Registry
	pipe       *Pipeline
	plan       *MergePlan
	banner     *Banner
	loadErr    *StatusError
	importOpen bool
	lastImport *ImportSummary

	cmds      chan func()
	done      chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	inflight  sync.WaitGroup
	lastUsed  atomic.Int64
}

type sessionDeps struct {
	transport Transport
	limiter   *RequestLimiter
	rules     FileRules
	timeouts  Timeouts
	log       *slog.Logger
}

func newSession(id string, req OpenRequest, deps sessionDeps) *Session {
	mode := ResolveMode(req.Mode, req.InventoryID)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:          id,
		mode:        mode,
		inventoryID: req.InventoryID,
		namespace:   req.Namespace,
		locale:      req.Locale,
		transport:   deps.transport,
		limiter:     deps.limiter,
		timeouts:    deps.timeouts.withDefaults(),
		log:         deps.log.With("session_id", id, "mode", string(mode)),
		events:      NewBroadcaster(),
		pipe:        NewPipeline(deps.rules),
		cmds:        make(chan func(), 16),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	if !mode.ServerLoaded() {
		s.inventoryID = ""
	}
	s.reg = NewRegistry(s.events.Publish)
	s.reg.CreateInitialDataset()
	s.touch()

	go s.run()
	return s
}

func (s *Session) run() {
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-s.done:
			return
		}
	}
}

// do runs fn on the actor and waits for it.
func (s *Session) do(fn func() error) error {
	s.touch()
	errc := make(chan error, 1)
	select {
	case s.cmds <- func() { errc <- fn() }:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

// post queues fn on the actor without waiting.
func (s *Session) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Mode returns the session mode.
func (s *Session) Mode() Mode { return s.mode }

// Locale returns the locale the session was opened with.
func (s *Session) Locale() string { return s.locale }

// LastUsed returns when the session last received a command.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Subscribe registers an event listener.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.events.Subscribe()
}

// Close stops the actor and abandons in-flight calls.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.done)
		s.events.Close()
		s.log.Info("session closed")
	})
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// WaitIdle blocks until every in-flight upstream call has completed and its
// result has been applied.
func (s *Session) WaitIdle(ctx context.Context) error {
	ch := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.do(func() error { return nil })
}

func (s *Session) writable() error {
	if s.mode.ReadOnly() {
		return ErrReadOnlyMode
	}
	return nil
}

// =============================================================================
// Loading
// =============================================================================

// load fetches the persisted inventory. It runs on the caller's goroutine;
// only the apply step is posted to the actor. Failures leave an empty form
// with the error attached to the view.
func (s *Session) load(ctx context.Context) error {
	if !s.mode.ServerLoaded() {
		return nil
	}

	resp, err := call(s, ctx, s.timeouts.Fetch, func(ctx context.Context) (FetchResponse, error) {
		return s.transport.Fetch(ctx, s.inventoryID, s.namespace)
	})
	if err == nil && (!resp.Success || resp.Inventory == nil) {
		err = fmt.Errorf("%w: %s", ErrTransport, resp.Error)
		if resp.Error == "" {
			err = fmt.Errorf("%w: failed to load inventory data", ErrTransport)
		}
	}

	return s.do(func() error {
		if err != nil {
			ue := NewUserError(err)
			if resp.Error != "" {
				ue.Detail = resp.Error
			}
			s.loadErr = &StatusError{UserMessage: ue.User, Detail: ue.Detail}
			s.log.Warn("inventory load failed", "inventory_id", s.inventoryID, "error", err)
			return nil
		}
		s.banner = NewBanner(s.mode, *resp.Inventory, s.inventoryID)
		if len(resp.Inventory.Datasets) == 0 {
			s.log.Warn("inventory has no datasets", "inventory_id", s.inventoryID)
			return nil
		}
		s.reg.LoadInventory(*resp.Inventory)
		s.log.Info("inventory loaded",
			"inventory_id", s.inventoryID,
			"datasets", s.reg.Count(),
		)
		return nil
	})
}

// call runs one limited, timed upstream request.
func call[T any](s *Session, ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := s.limiter.Acquire(ctx); err != nil {
		return zero, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// =============================================================================
// Dataset and attribute operations
// =============================================================================

// AddDataset appends a dataset and makes it active.
func (s *Session) AddDataset() (int, error) {
	var id int
	err := s.do(func() error {
		if err := s.writable(); err != nil {
			return err
		}
		var err error
		id, err = s.reg.AddDataset()
		return err
	})
	return id, err
}

// SwitchDataset makes id active. Allowed in every mode.
func (s *Session) SwitchDataset(id int) error {
	return s.do(func() error {
		return s.reg.SwitchActive(id)
	})
}

// DeleteDataset removes id. It reports false when id was the last dataset.
func (s *Session) DeleteDataset(id int) (bool, error) {
	var removed bool
	err := s.do(func() error {
		if err := s.writable(); err != nil {
			return err
		}
		var err error
		removed, err = s.reg.DeleteDataset(id)
		return err
	})
	return removed, err
}

// UpdateDataset applies p to dataset id.
func (s *Session) UpdateDataset(id int, p DatasetPatch) error {
	return s.do(func() error {
		if err := s.writable(); err != nil {
			return err
		}
		if _, ok := s.reg.Dataset(id); !ok {
			return fmt.Errorf("%w: %d", ErrDatasetNotFound, id)
		}
		for role := range p.Fields {
			if !role.Valid() {
				return fmt.Errorf("%w: %q", ErrUnknownField, role)
			}
		}
		if p.Name != nil {
			if err := s.reg.SetName(id, *p.Name); err != nil {
				return err
			}
		}
		for _, role := range FieldRoles {
			if v, ok := p.Fields[role]; ok {
				if err := s.reg.SetField(id, role, v); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// AddAttribute appends an attribute row to dataset id.
func (s *Session) AddAttribute(datasetID int) (int, error) {
	var idx int
	err := s.do(func() error {
		if err := s.writable(); err != nil {
			return err
		}
		var err error
		idx, err = s.reg.AddAttribute(datasetID)
		return err
	})
	return idx, err
}

// UpdateAttribute applies p to one attribute row.
func (s *Session) UpdateAttribute(datasetID, index int, p AttributePatch) error {
	return s.do(func() error {
		if err := s.writable(); err != nil {
			return err
		}
		return s.reg.SetAttribute(datasetID, index, p)
	})
}

// RemoveAttribute removes one attribute row and relabels the rest. It
// reports false when the row was the last one.
func (s *Session) RemoveAttribute(datasetID, index int) (bool, error) {
	var removed bool
	err := s.do(func() error {
		if err := s.writable(); err != nil {
			return err
		}
		var err error
		if removed, err = s.reg.RemoveAttribute(datasetID, index); err != nil || !removed {
			return err
		}
		return s.reg.RelabelAttributes(datasetID)
	})
	return removed, err
}

// =============================================================================
// Import pipeline
// =============================================================================

// OpenImport opens the upload dialog. In create mode a form that already
// holds data needs confirm=true; confirming clears the form to one empty
// dataset.
func (s *Session) OpenImport(confirm bool) error {
	return s.do(func() error {
		if err := s.writable(); err != nil {
			return err
		}
		if s.mode == ModeCreate && s.reg.HasData() {
			if !confirm {
				return ErrOverwriteUnconfirmed
			}
			s.reg.ClearAll()
			s.reg.CreateInitialDataset()
			s.log.Info("form cleared for import")
		}
		s.importOpen = true
		return nil
	})
}

func (s *Session) importAllowed() error {
	if err := s.writable(); err != nil {
		return err
	}
	if s.mode == ModeCreate && !s.importOpen && s.reg.HasData() {
		return ErrOverwriteUnconfirmed
	}
	return nil
}

// SelectFile checks and stores a spreadsheet. Rejected files never reach
// the network and leave the pipeline unchanged.
func (s *Session) SelectFile(f Upload) error {
	return s.do(func() error {
		if err := s.importAllowed(); err != nil {
			return err
		}
		if err := s.pipe.Select(f); err != nil {
			s.log.Info("file rejected", "file", f.Name, "size", f.Size, "error", err)
			return err
		}
		s.importOpen = true
		s.dropPlan("file replaced")
		s.log.Info("file selected", "file", f.Name, "size", f.Size, "generation", s.pipe.Generation())
		s.publishState()
		return nil
	})
}

// ClearFile removes the selected file.
func (s *Session) ClearFile() error {
	return s.do(func() error {
		if err := s.writable(); err != nil {
			return err
		}
		s.pipe.Clear()
		s.dropPlan("file cleared")
		s.publishState()
		return nil
	})
}

// StartValidate sends the selected file to validateFile. The result is
// applied asynchronously.
func (s *Session) StartValidate() error {
	var c Call
	err := s.do(func() error {
		if err := s.writable(); err != nil {
			return err
		}
		var err error
		if c, err = s.pipe.BeginValidate(); err != nil {
			return err
		}
		s.publishState()
		return nil
	})
	if err != nil {
		return err
	}

	req := ValidateRequest{
		File:      c.File,
		Language:  PrimaryLanguage(s.locale),
		Namespace: s.namespace,
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		resp, err := call(s, s.ctx, s.timeouts.Validate, func(ctx context.Context) (ValidateResponse, error) {
			return s.transport.Validate(ctx, req)
		})
		s.post(func() {
			if !s.pipe.FinishValidate(c.Generation, resp, err) {
				s.log.Debug("stale validation ignored", "generation", c.Generation)
				return
			}
			s.logOutcome("validation", err)
			s.publishState()
		})
	}()
	return nil
}

// StartProcess sends the validated file to processFile. On success the
// import is applied: replacing the form in create mode, or reconciled
// against existing datasets in update mode.
func (s *Session) StartProcess() error {
	var c Call
	err := s.do(func() error {
		if err := s.writable(); err != nil {
			return err
		}
		var err error
		if c, err = s.pipe.BeginProcess(); err != nil {
			return err
		}
		s.publishState()
		return nil
	})
	if err != nil {
		return err
	}

	req := ProcessRequest{File: c.File, Namespace: s.namespace}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		resp, err := call(s, s.ctx, s.timeouts.Process, func(ctx context.Context) (ProcessResponse, error) {
			return s.transport.Process(ctx, req)
		})
		s.post(func() {
			if !s.pipe.FinishProcess(c.Generation, resp, err) {
				s.log.Debug("stale processing ignored", "generation", c.Generation)
				return
			}
			s.logOutcome("processing", err)
			s.publishState()
			if res, ok := s.pipe.Result(); ok {
				s.applyImport(res)
			}
		})
	}()
	return nil
}

func (s *Session) logOutcome(step string, err error) {
	st := s.pipe.Status()
	if st.Error != nil {
		s.log.Warn(step+" failed",
			"state", string(st.State),
			"code", st.Error.Code,
			"error", s.pipe.Err(),
		)
		return
	}
	s.log.Info(step+" completed", "state", string(st.State))
}

func (s *Session) publishState() {
	s.events.Publish(Event{Kind: EventImportState, State: s.pipe.State()})
}

// applyImport runs on the actor after a successful processing step.
func (s *Session) applyImport(res ImportResult) {
	s.plan = nil

	if !s.mode.Merges() {
		sum, err := s.reg.Replace(res.Datasets, &res.Meta)
		if err != nil {
			s.log.Error("import replace failed", "error", err)
			return
		}
		s.logDropped(sum.Dropped)
		s.importOpen = false
		s.lastImport = &ImportSummary{
			Load:    &sum,
			Message: fmt.Sprintf("Successfully loaded %d dataset(s) from file", len(sum.Datasets)),
		}
		s.log.Info("import loaded", "datasets", len(sum.Datasets))
		return
	}

	plan := PlanMerge(s.reg, res.Datasets, res.Meta)
	if plan.NeedsConfirmation() {
		s.plan = &plan
		s.log.Info("merge needs confirmation", "duplicates", plan.ConflictingNames())
		s.events.Publish(Event{Kind: EventMergeConfirm, Message: plan.Err().Error()})
		return
	}
	s.applyMerge(plan)
}

func (s *Session) applyMerge(plan MergePlan) (MergeSummary, error) {
	sum, err := ApplyMerge(s.reg, plan)
	if err != nil {
		s.log.Error("merge failed", "error", err, "updated", sum.Updated, "new", sum.New)
		return sum, err
	}

	s.logDropped(sum.Dropped)
	if ids := s.reg.IDs(); len(ids) > 0 {
		_ = s.reg.SwitchActive(ids[0])
	}
	s.plan = nil
	s.lastImport = &ImportSummary{
		Merged:  true,
		Merge:   &sum,
		Message: fmt.Sprintf("Merge complete: %d updated, %d new", sum.Updated, sum.New),
	}
	s.events.Publish(Event{Kind: EventMergeApplied, Message: s.lastImport.Message})
	s.log.Info("merge applied", "updated", sum.Updated, "new", sum.New, "total", sum.Total)
	return sum, nil
}

func (s *Session) logDropped(fields []string) {
	for _, f := range fields {
		s.log.Warn("imported field has no form position, dropped", "field", f)
	}
}

// PendingMerge returns the merge waiting for confirmation, if any.
func (s *Session) PendingMerge() (MergePlan, bool) {
	var (
		plan MergePlan
		ok   bool
	)
	_ = s.do(func() error {
		if s.plan != nil {
			plan, ok = *s.plan, true
		}
		return nil
	})
	return plan, ok
}

// ConfirmMerge applies the pending merge, overwriting datasets with
// matching names.
func (s *Session) ConfirmMerge() (MergeSummary, error) {
	var sum MergeSummary
	err := s.do(func() error {
		if err := s.writable(); err != nil {
			return err
		}
		if s.plan == nil {
			return ErrNoPendingMerge
		}
		var err error
		sum, err = s.applyMerge(*s.plan)
		return err
	})
	return sum, err
}

// CancelMerge discards the pending merge. The form is left untouched.
func (s *Session) CancelMerge() error {
	return s.do(func() error {
		if s.plan == nil {
			return ErrNoPendingMerge
		}
		s.dropPlan("cancelled")
		return nil
	})
}

// dropPlan discards a pending merge whose import no longer applies.
func (s *Session) dropPlan(reason string) {
	if s.plan == nil {
		return
	}
	s.plan = nil
	s.events.Publish(Event{Kind: EventMergeCancelled})
	s.log.Info("merge cancelled", "reason", reason)
}

// =============================================================================
// Submission and rendering
// =============================================================================

// FormValues returns the form post for action.
func (s *Session) FormValues(action FormAction) (url.Values, error) {
	var v url.Values
	err := s.do(func() error {
		v = s.formValues(action)
		return nil
	})
	return v, err
}

func (s *Session) formValues(action FormAction) url.Values {
	v := s.reg.FormValues(s.namespace)
	v.Set(s.namespace+FieldActionType, string(action))
	v.Set(s.namespace+FieldUserMode, string(s.mode))
	if s.inventoryID != "" {
		v.Set(s.namespace+FieldInventoryID, s.inventoryID)
	}
	return v
}

// Submit posts the form as a draft or a submission.
func (s *Session) Submit(ctx context.Context, action FormAction) (SubmitResponse, error) {
	var form url.Values
	err := s.do(func() error {
		if err := s.writable(); err != nil {
			return err
		}
		form = s.formValues(action)
		return nil
	})
	if err != nil {
		return SubmitResponse{}, err
	}

	resp, err := call(s, ctx, s.timeouts.Submit, func(ctx context.Context) (SubmitResponse, error) {
		return s.transport.Submit(ctx, form)
	})
	if err != nil {
		s.log.Warn("submit failed", "action", string(action), "error", err)
		return resp, err
	}
	if !resp.Success {
		s.log.Warn("submit rejected", "action", string(action), "error", resp.Error)
		return resp, fmt.Errorf("%w: %s", ErrSubmitRejected, resp.Error)
	}

	s.events.Publish(Event{Kind: EventSubmitted, Message: string(action)})
	s.log.Info("form submitted", "action", string(action), "inventory_id", resp.InventoryID.String())
	return resp, nil
}

// View is an immutable snapshot of the session for rendering.
type View struct {
	SessionID        string         `json:"sessionId"`
	Mode             Mode           `json:"mode"`
	Title            string         `json:"title"`
	Namespace        string         `json:"namespace"`
	InventoryID      string         `json:"inventoryId,omitempty"`
	Banner           *Banner        `json:"banner,omitempty"`
	LoadError        *StatusError   `json:"loadError,omitempty"`
	Controls         Controls       `json:"controls"`
	ActiveID         int            `json:"activeId"`
	TotalDatasets    int            `json:"totalDatasets"`
	Datasets         []DatasetView  `json:"datasets"`
	Import           PipelineStatus `json:"import"`
	OverwriteWarning bool           `json:"overwriteWarning"`
	PendingMerge     *MergePlan     `json:"pendingMerge,omitempty"`
	LastImport       *ImportSummary `json:"lastImport,omitempty"`
}

// DatasetView is one dataset as rendered.
type DatasetView struct {
	ID                 int                  `json:"id"`
	Label              string               `json:"label"`
	SidebarLabel       string               `json:"sidebarLabel"`
	Active             bool                 `json:"active"`
	Name               string               `json:"name"`
	Fields             map[FieldRole]string `json:"fields"`
	ServerID           int64                `json:"serverId,omitempty"`
	CanRemoveAttribute bool                 `json:"canRemoveAttribute"`
	Attributes         []AttributeView      `json:"attributes"`
}

// AttributeView is one attribute row as rendered.
type AttributeView struct {
	Index            int    `json:"index"`
	Label            string `json:"label"`
	DescriptionLabel string `json:"descriptionLabel"`
	NameField        string `json:"nameField"`
	DescriptionField string `json:"descriptionField"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	ServerID         int64  `json:"serverId,omitempty"`
}

// View returns a snapshot of the session.
func (s *Session) View() (View, error) {
	var v View
	err := s.do(func() error {
		v = s.view()
		return nil
	})
	return v, err
}

func (s *Session) view() View {
	v := View{
		SessionID:     s.id,
		Mode:          s.mode,
		Title:         s.mode.Title(),
		Namespace:     s.namespace,
		InventoryID:   s.inventoryID,
		Banner:        s.banner,
		LoadError:     s.loadErr,
		Controls:      s.mode.Controls(),
		ActiveID:      s.reg.Active(),
		TotalDatasets: s.reg.Count(),
		Import:        s.pipe.Status(),
		LastImport:    s.lastImport,
	}
	v.OverwriteWarning = s.mode == ModeCreate && !s.importOpen && s.reg.HasData()
	if s.plan != nil {
		p := *s.plan
		v.PendingMerge = &p
	}

	for _, ds := range s.reg.Datasets() {
		dv := DatasetView{
			ID:                 ds.ID,
			Label:              s.reg.DisplayName(ds.ID),
			SidebarLabel:       s.reg.SidebarLabel(ds.ID),
			Active:             ds.ID == v.ActiveID,
			Name:               ds.Name,
			Fields:             ds.Fields,
			ServerID:           ds.ServerID,
			CanRemoveAttribute: !s.mode.ReadOnly() && len(ds.Attributes) > 1,
		}
		for _, a := range ds.Attributes {
			dv.Attributes = append(dv.Attributes, AttributeView{
				Index:            a.Index,
				Label:            AttributeLabel(a.Index),
				DescriptionLabel: AttributeDescriptionLabel(a.Index),
				NameField:        AttributeNameField(s.namespace, ds.ID, a.Index),
				DescriptionField: AttributeDescriptionField(s.namespace, ds.ID, a.Index),
				Name:             a.Name,
				Description:      a.Description,
				ServerID:         a.ServerID,
			})
		}
		v.Datasets = append(v.Datasets, dv)
	}
	return v
}
