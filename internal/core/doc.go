// Package core provides the form state and import logic for inventory onboarding.
//
// This package holds all domain logic independent of any UI or transport
// layer. It is driven by the web API, the inventoryctl CLI and tests without
// modification.
//
// # Architecture
//
// The package is organized around a few key concepts:
//
//   - Registry: the ordered datasets of one form and their attribute rows.
//   - Pipeline: the upload → validate → process state machine.
//   - Merge: reconciling imported datasets with the live form by name.
//   - Mode: create, review or update behaviour of a form.
//   - Session: one open form, run as an actor over the pieces above.
//   - Service: the set of open sessions plus the shared request limiter.
//
// # Registry
//
// A registry always holds at least one dataset once initialized. Ids come
// from the registry's own generator and are never reused until
// CreateInitialDataset starts a new generation:
//
//	r := core.NewRegistry(nil)
//	first := r.CreateInitialDataset() // 1
//	second, _ := r.AddDataset()       // 2
//	r.DeleteDataset(second)           // true
//	third, _ := r.AddDataset()        // 3, not 2
//
// # Import Pipeline
//
// Files are checked locally (extension, size) before any request is made.
// Every accepted selection bumps a generation counter; completions carrying
// an older generation are ignored:
//
//	call, _ := p.BeginValidate()
//	resp, err := transport.Validate(ctx, core.ValidateRequest{File: call.File})
//	p.FinishValidate(call.Generation, resp, err)
//
// # Merge
//
// In update mode a processed import is compared with the form. When names
// collide the session holds a MergePlan until the user confirms or cancels.
// Confirmed plans are applied one dataset at a time in input order by a
// Merger; each Step must be acknowledged with Ready before the next.
//
// # Error Handling
//
// Operations return sentinel errors wrapped with context. MapError turns
// any of them into a UserMessage with a support code; see error_messages.go.
//
// # Thread Safety
//
// Registry and Pipeline are not safe for concurrent use. Session serializes
// all access on its actor goroutine; Service and Broadcaster are safe for
// concurrent use.
package core
