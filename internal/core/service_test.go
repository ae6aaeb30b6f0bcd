package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestService_OpenGetClose(t *testing.T) {
	svc := newTestService(t, &fakeTransport{}, ServiceConfig{})

	a := openSession(t, svc, OpenRequest{})
	b := openSession(t, svc, OpenRequest{Mode: "review"})

	if a.ID() == b.ID() {
		t.Fatal("session ids collide")
	}
	if b.Mode() != ModeCreate {
		t.Errorf("review without inventory id = %s, want create", b.Mode())
	}
	if svc.Count() != 2 {
		t.Errorf("Count = %d, want 2", svc.Count())
	}

	got, err := svc.Get(a.ID())
	if err != nil || got != a {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if _, err := svc.Get("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get missing error = %v", err)
	}
	if err := svc.Close("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Close missing error = %v", err)
	}
}

func TestService_Sweep(t *testing.T) {
	svc := newTestService(t, &fakeTransport{}, ServiceConfig{SessionTTL: time.Hour})
	idle := openSession(t, svc, OpenRequest{})

	if n := svc.Sweep(time.Now()); n != 0 {
		t.Fatalf("fresh session swept: %d", n)
	}
	if n := svc.Sweep(time.Now().Add(2 * time.Hour)); n != 1 {
		t.Fatalf("Sweep = %d, want 1", n)
	}
	if !idle.Closed() {
		t.Error("swept session still open")
	}
	if svc.Count() != 0 {
		t.Errorf("Count = %d, want 0", svc.Count())
	}
}

func TestService_SweeperStopsOnCancel(t *testing.T) {
	svc := newTestService(t, &fakeTransport{}, ServiceConfig{SessionTTL: time.Millisecond})
	openSession(t, svc, OpenRequest{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartSessionSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for svc.Count() > 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper never closed the idle session")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestService_FetchUsesInventoryID(t *testing.T) {
	var gotID, gotNS string
	ft := updateTransport("Budget")
	inner := ft.fetch
	ft.fetch = func(ctx context.Context, id, ns string) (FetchResponse, error) {
		gotID, gotNS = id, ns
		return inner(ctx, id, ns)
	}
	svc := newTestService(t, ft, ServiceConfig{Namespace: "_default_"})

	sess := openSession(t, svc, OpenRequest{Mode: "update", InventoryID: "42"})
	if gotID != "42" || gotNS != "_default_" {
		t.Errorf("fetch(%q, %q), want 42 and the default namespace", gotID, gotNS)
	}
	if v := view(t, sess); v.InventoryID != "42" || v.Banner == nil {
		t.Errorf("view = %+v", v)
	}
}
