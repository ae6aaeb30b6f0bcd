package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTransport counts calls and delegates to optional funcs.
type fakeTransport struct {
	validate func(ctx context.Context, req ValidateRequest) (ValidateResponse, error)
	process  func(ctx context.Context, req ProcessRequest) (ProcessResponse, error)
	fetch    func(ctx context.Context, id, ns string) (FetchResponse, error)
	submit   func(ctx context.Context, form url.Values) (SubmitResponse, error)

	calls atomic.Int32

	mu       sync.Mutex
	lastForm url.Values
	lastLang string
}

func (f *fakeTransport) Validate(ctx context.Context, req ValidateRequest) (ValidateResponse, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastLang = req.Language
	f.mu.Unlock()
	if f.validate != nil {
		return f.validate(ctx, req)
	}
	return ValidateResponse{Success: true, ColumnCount: 16, RowCount: 2}, nil
}

func (f *fakeTransport) Process(ctx context.Context, req ProcessRequest) (ProcessResponse, error) {
	f.calls.Add(1)
	if f.process != nil {
		return f.process(ctx, req)
	}
	return processed(), nil
}

func (f *fakeTransport) Fetch(ctx context.Context, id, ns string) (FetchResponse, error) {
	f.calls.Add(1)
	if f.fetch != nil {
		return f.fetch(ctx, id, ns)
	}
	return FetchResponse{Success: true, Inventory: &Inventory{InventoryName: "Finance"}}, nil
}

func (f *fakeTransport) Submit(ctx context.Context, form url.Values) (SubmitResponse, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastForm = form
	f.mu.Unlock()
	if f.submit != nil {
		return f.submit(ctx, form)
	}
	return SubmitResponse{Success: true, InventoryID: "77"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, ft *fakeTransport, cfg ServiceConfig) *Service {
	t.Helper()
	svc := NewService(ft, cfg, discardLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})
	return svc
}

func openSession(t *testing.T, svc *Service, req OpenRequest) *Session {
	t.Helper()
	sess, err := svc.Open(context.Background(), req)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return sess
}

func waitIdle(t *testing.T, sess *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sess.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}

func view(t *testing.T, sess *Session) View {
	t.Helper()
	v, err := sess.View()
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func runImport(t *testing.T, sess *Session, name string) {
	t.Helper()
	if err := sess.SelectFile(xlsx(name)); err != nil {
		t.Fatalf("SelectFile: %v", err)
	}
	if err := sess.StartValidate(); err != nil {
		t.Fatalf("StartValidate: %v", err)
	}
	waitIdle(t, sess)
	if err := sess.StartProcess(); err != nil {
		t.Fatalf("StartProcess: %v", err)
	}
	waitIdle(t, sess)
}

func TestSession_OversizedFileNeverSent(t *testing.T) {
	ft := &fakeTransport{}
	sess := openSession(t, newTestService(t, ft, ServiceConfig{}), OpenRequest{})

	err := sess.SelectFile(Upload{Name: "big.xlsx", Size: 12 << 20})
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("error = %v, want ErrFileTooLarge", err)
	}
	if err := sess.StartValidate(); !errors.Is(err, ErrNoFile) {
		t.Errorf("StartValidate error = %v, want ErrNoFile", err)
	}
	if n := ft.calls.Load(); n != 0 {
		t.Errorf("transport calls = %d, want 0", n)
	}
	if got := MapError(err).Code; got != "FILE002" {
		t.Errorf("code = %s, want FILE002", got)
	}
}

func TestSession_CreateImportReplacesForm(t *testing.T) {
	ft := &fakeTransport{
		process: func(context.Context, ProcessRequest) (ProcessResponse, error) {
			meta := testMeta()
			return ProcessResponse{
				Success: true,
				Datasets: []ImportedDataset{
					imported("Budget", map[string]string{"Release Year": "2024"}, [2]string{"amount", ""}),
					imported("Roads", nil),
				},
				FieldMetadata: &meta,
			}, nil
		},
	}
	sess := openSession(t, newTestService(t, ft, ServiceConfig{}), OpenRequest{Locale: "ar-SA"})

	runImport(t, sess, "inventory.xlsx")

	v := view(t, sess)
	if v.Import.State != StateProcessed {
		t.Fatalf("state = %s, want processed", v.Import.State)
	}
	if len(v.Datasets) != 2 || v.Datasets[0].Name != "Budget" || v.ActiveID != v.Datasets[0].ID {
		t.Fatalf("datasets = %+v", v.Datasets)
	}
	if v.Datasets[0].Fields[RoleReleaseYear] != "2024" {
		t.Errorf("release year = %q", v.Datasets[0].Fields[RoleReleaseYear])
	}
	if v.LastImport == nil || v.LastImport.Message != "Successfully loaded 2 dataset(s) from file" {
		t.Errorf("last import = %+v", v.LastImport)
	}
	if ft.lastLang != "ar" {
		t.Errorf("language = %q, want ar", ft.lastLang)
	}
}

func TestSession_ProcessingTimeout(t *testing.T) {
	ft := &fakeTransport{
		process: func(ctx context.Context, _ ProcessRequest) (ProcessResponse, error) {
			<-ctx.Done()
			return ProcessResponse{}, fmt.Errorf("processFile: %w: %w", ErrTransportTimeout, ctx.Err())
		},
	}
	svc := newTestService(t, ft, ServiceConfig{Timeouts: Timeouts{Process: 20 * time.Millisecond}})
	sess := openSession(t, svc, OpenRequest{})

	runImport(t, sess, "slow.xlsx")

	v := view(t, sess)
	if v.Import.State != StateProcessingFailed {
		t.Fatalf("state = %s, want processingFailed", v.Import.State)
	}
	if v.Import.Error == nil || v.Import.Error.Code != "NET001" {
		t.Errorf("error = %+v, want NET001", v.Import.Error)
	}
	if v.Import.FileName != "slow.xlsx" || !v.Import.CanProcess {
		t.Errorf("file not kept for retry: %+v", v.Import)
	}
	if svc.Limiter().ActiveCount() != 0 {
		t.Errorf("limiter slot leaked: %d active", svc.Limiter().ActiveCount())
	}
}

func TestSession_StaleValidationIgnored(t *testing.T) {
	release := make(chan struct{})
	var first atomic.Bool
	ft := &fakeTransport{
		validate: func(ctx context.Context, req ValidateRequest) (ValidateResponse, error) {
			if first.CompareAndSwap(false, true) {
				<-release
				return ValidateResponse{Error: "stale failure"}, nil
			}
			return ValidateResponse{Success: true}, nil
		},
	}
	sess := openSession(t, newTestService(t, ft, ServiceConfig{}), OpenRequest{})

	sess.SelectFile(xlsx("first.xlsx"))
	if err := sess.StartValidate(); err != nil {
		t.Fatal(err)
	}
	if err := sess.SelectFile(xlsx("second.xlsx")); err != nil {
		t.Fatal(err)
	}
	close(release)
	waitIdle(t, sess)

	v := view(t, sess)
	if v.Import.State != StateFileSelected || v.Import.FileName != "second.xlsx" || v.Import.Error != nil {
		t.Errorf("stale completion changed the pipeline: %+v", v.Import)
	}
}

func updateTransport(existing ...string) *fakeTransport {
	var datasets []ServerDataset
	for i, n := range existing {
		datasets = append(datasets, ServerDataset{DatasetID: int64(100 + i), DatasetName: Text(n)})
	}
	return &fakeTransport{
		fetch: func(_ context.Context, id, _ string) (FetchResponse, error) {
			return FetchResponse{Success: true, Inventory: &Inventory{
				InventoryID:   Text(id),
				InventoryName: "Finance",
				DatasetCount:  len(datasets),
				Datasets:      datasets,
			}}, nil
		},
		process: func(context.Context, ProcessRequest) (ProcessResponse, error) {
			meta := testMeta()
			return ProcessResponse{
				Success: true,
				Datasets: []ImportedDataset{
					imported("budget", map[string]string{"Description": "merged"}),
					imported("Schools", nil),
				},
				FieldMetadata: &meta,
			}, nil
		},
	}
}

func TestSession_UpdateMergeCancel(t *testing.T) {
	sess := openSession(t, newTestService(t, updateTransport("Budget"), ServiceConfig{}),
		OpenRequest{Mode: "update", InventoryID: "77"})

	runImport(t, sess, "update.xlsx")

	plan, ok := sess.PendingMerge()
	if !ok || len(plan.ConflictingNames()) != 1 || plan.ConflictingNames()[0] != "budget" {
		t.Fatalf("pending merge = %+v, %v", plan, ok)
	}
	if err := sess.CancelMerge(); err != nil {
		t.Fatal(err)
	}

	v := view(t, sess)
	if v.TotalDatasets != 1 || v.Datasets[0].Fields[RoleDescription] != "" || v.PendingMerge != nil {
		t.Errorf("cancel changed the form: %+v", v)
	}
	if err := sess.CancelMerge(); !errors.Is(err, ErrNoPendingMerge) {
		t.Errorf("second cancel error = %v, want ErrNoPendingMerge", err)
	}
}

func TestSession_NewFileDropsPendingMerge(t *testing.T) {
	tests := []struct {
		name      string
		supersede func(*Session) error
	}{
		{"select another file", func(s *Session) error { return s.SelectFile(xlsx("other.xlsx")) }},
		{"clear file", func(s *Session) error { return s.ClearFile() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := openSession(t, newTestService(t, updateTransport("Budget"), ServiceConfig{}),
				OpenRequest{Mode: "update", InventoryID: "77"})
			events, unsubscribe := sess.Subscribe()
			defer unsubscribe()

			runImport(t, sess, "update.xlsx")
			if _, ok := sess.PendingMerge(); !ok {
				t.Fatal("expected a pending merge")
			}
			if err := tt.supersede(sess); err != nil {
				t.Fatal(err)
			}

			if _, err := sess.ConfirmMerge(); !errors.Is(err, ErrNoPendingMerge) {
				t.Errorf("ConfirmMerge error = %v, want ErrNoPendingMerge", err)
			}
			v := view(t, sess)
			if v.PendingMerge != nil || v.Datasets[0].Fields[RoleDescription] != "" {
				t.Errorf("superseded import reached the form: %+v", v)
			}

			var sawCancelled bool
			for len(events) > 0 {
				if (<-events).Kind == EventMergeCancelled {
					sawCancelled = true
				}
			}
			if !sawCancelled {
				t.Error("no merge.cancelled event")
			}
		})
	}
}

func TestSession_UpdateMergeConfirm(t *testing.T) {
	sess := openSession(t, newTestService(t, updateTransport("Budget", "Roads"), ServiceConfig{}),
		OpenRequest{Mode: "update", InventoryID: "77"})

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	runImport(t, sess, "update.xlsx")

	sum, err := sess.ConfirmMerge()
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 3 || sum.Updated != 1 || sum.New != 1 {
		t.Errorf("summary = %+v, want total 3, 1 updated, 1 new", sum)
	}

	v := view(t, sess)
	if v.Datasets[0].Fields[RoleDescription] != "merged" || v.Datasets[0].ServerID != 100 {
		t.Errorf("budget = %+v", v.Datasets[0])
	}
	if v.Datasets[2].Name != "Schools" || v.Datasets[2].ServerID != 0 {
		t.Errorf("new dataset = %+v", v.Datasets[2])
	}
	if v.LastImport == nil || !v.LastImport.Merged {
		t.Errorf("last import = %+v", v.LastImport)
	}

	var sawConfirm, sawApplied bool
	for len(events) > 0 {
		switch (<-events).Kind {
		case EventMergeConfirm:
			sawConfirm = true
		case EventMergeApplied:
			sawApplied = true
		}
	}
	if !sawConfirm || !sawApplied {
		t.Errorf("events confirm=%v applied=%v, want both", sawConfirm, sawApplied)
	}
}

func TestSession_UpdateWithoutDuplicatesMergesDirectly(t *testing.T) {
	sess := openSession(t, newTestService(t, updateTransport("Roads"), ServiceConfig{}),
		OpenRequest{Mode: "update", InventoryID: "77"})

	runImport(t, sess, "update.xlsx")

	if _, ok := sess.PendingMerge(); ok {
		t.Fatal("merge without duplicates waited for confirmation")
	}
	if v := view(t, sess); v.TotalDatasets != 3 {
		t.Errorf("TotalDatasets = %d, want 3", v.TotalDatasets)
	}
}

func TestSession_CreateOverwriteGate(t *testing.T) {
	sess := openSession(t, newTestService(t, &fakeTransport{}, ServiceConfig{}), OpenRequest{})

	if err := sess.OpenImport(false); err != nil {
		t.Fatalf("OpenImport on empty form: %v", err)
	}

	sess = openSession(t, newTestService(t, &fakeTransport{}, ServiceConfig{}), OpenRequest{})
	name := "Draft"
	if err := sess.UpdateDataset(1, DatasetPatch{Name: &name}); err != nil {
		t.Fatal(err)
	}
	if !view(t, sess).OverwriteWarning {
		t.Error("OverwriteWarning = false with data on the form")
	}
	if err := sess.SelectFile(xlsx("a.xlsx")); !errors.Is(err, ErrOverwriteUnconfirmed) {
		t.Errorf("SelectFile error = %v, want ErrOverwriteUnconfirmed", err)
	}
	if err := sess.OpenImport(false); !errors.Is(err, ErrOverwriteUnconfirmed) {
		t.Errorf("OpenImport error = %v, want ErrOverwriteUnconfirmed", err)
	}

	if err := sess.OpenImport(true); err != nil {
		t.Fatal(err)
	}
	v := view(t, sess)
	if v.TotalDatasets != 1 || v.Datasets[0].Name != "" {
		t.Errorf("confirmed import did not clear the form: %+v", v.Datasets)
	}
	if err := sess.SelectFile(xlsx("a.xlsx")); err != nil {
		t.Errorf("SelectFile after confirm: %v", err)
	}
}

func TestSession_ReviewIsReadOnly(t *testing.T) {
	ft := updateTransport("Budget", "Roads")
	sess := openSession(t, newTestService(t, ft, ServiceConfig{}),
		OpenRequest{Mode: "review", InventoryID: "77"})

	if _, err := sess.AddDataset(); !errors.Is(err, ErrReadOnlyMode) {
		t.Errorf("AddDataset error = %v", err)
	}
	if _, err := sess.AddAttribute(1); !errors.Is(err, ErrReadOnlyMode) {
		t.Errorf("AddAttribute error = %v", err)
	}
	if err := sess.SelectFile(xlsx("a.xlsx")); !errors.Is(err, ErrReadOnlyMode) {
		t.Errorf("SelectFile error = %v", err)
	}
	if _, err := sess.Submit(context.Background(), ActionSubmit); !errors.Is(err, ErrReadOnlyMode) {
		t.Errorf("Submit error = %v", err)
	}
	if err := sess.SwitchDataset(2); err != nil {
		t.Errorf("SwitchDataset in review: %v", err)
	}

	v := view(t, sess)
	if v.Controls != (Controls{}) {
		t.Errorf("controls = %+v, want none", v.Controls)
	}
	if v.Banner == nil || v.Banner.Heading != "Review Mode" || v.Banner.Access != "Read-only" {
		t.Errorf("banner = %+v", v.Banner)
	}
	if v.Title != "Review Inventory Submission" || v.ActiveID != 2 {
		t.Errorf("title=%q active=%d", v.Title, v.ActiveID)
	}
	for _, ds := range v.Datasets {
		if ds.CanRemoveAttribute {
			t.Errorf("dataset %d offers attribute removal in review", ds.ID)
		}
	}
}

func TestSession_LoadFailureKeepsSessionOpen(t *testing.T) {
	ft := &fakeTransport{
		fetch: func(context.Context, string, string) (FetchResponse, error) {
			return FetchResponse{Error: "Inventory not found"}, nil
		},
	}
	sess := openSession(t, newTestService(t, ft, ServiceConfig{}),
		OpenRequest{Mode: "update", InventoryID: "404"})

	v := view(t, sess)
	if v.LoadError == nil || v.LoadError.Detail != "Inventory not found" || v.LoadError.Code != "NET002" {
		t.Errorf("load error = %+v", v.LoadError)
	}
	if v.TotalDatasets != 1 {
		t.Errorf("TotalDatasets = %d, want the empty initial dataset", v.TotalDatasets)
	}
}

func TestSession_Submit(t *testing.T) {
	ft := updateTransport("Budget")
	sess := openSession(t, newTestService(t, ft, ServiceConfig{Namespace: "_ns_"}),
		OpenRequest{Mode: "update", InventoryID: "77"})

	resp, err := sess.Submit(context.Background(), ActionDraft)
	if err != nil {
		t.Fatal(err)
	}
	if resp.InventoryID != "77" {
		t.Errorf("inventory id = %q", resp.InventoryID)
	}

	form := ft.lastForm
	checks := map[string]string{
		"_ns_actionType":        "draft",
		"_ns_userMode":          "update",
		"_ns_inventoryId":       "77",
		"_ns_datasetName_1":     "Budget",
		"_ns_actualDatasetId_1": "100",
		"_ns_totalDatasets":     "1",
	}
	for k, want := range checks {
		if got := form.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}

	ft.submit = func(context.Context, url.Values) (SubmitResponse, error) {
		return SubmitResponse{Error: "Dataset name is required"}, nil
	}
	if _, err := sess.Submit(context.Background(), ActionSubmit); !errors.Is(err, ErrSubmitRejected) {
		t.Errorf("rejected submit error = %v, want ErrSubmitRejected", err)
	}
}

func TestSession_ClosedRejectsCommands(t *testing.T) {
	svc := newTestService(t, &fakeTransport{}, ServiceConfig{})
	sess := openSession(t, svc, OpenRequest{})

	if err := svc.Close(sess.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.AddDataset(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("AddDataset error = %v, want ErrSessionClosed", err)
	}
	if _, err := svc.Get(sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get error = %v, want ErrSessionNotFound", err)
	}
}
