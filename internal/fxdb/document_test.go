package fxdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/danshapiro/fxd/internal/entangle"
	"github.com/danshapiro/fxd/internal/graph"
	"github.com/danshapiro/fxd/internal/marker"
)

func TestDocumentOpenSaveReopenRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fxdPath := filepath.Join(dir, "project.fxd")

	doc, err := Open(ctx, Options{FxdPath: fxdPath})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	celsiusID := doc.Kernel.Ensure(graph.Path("temperature.celsius"))
	if err := doc.Kernel.Set(celsiusID, graph.Float(100)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := doc.Kernel.SetTypeTag(celsiusID, "temperature"); err != nil {
		t.Fatalf("SetTypeTag: %v", err)
	}
	if _, err := doc.AddLink(entangle.Config{
		Source:    graph.Path("temperature.celsius"),
		Target:    graph.Path("temperature.fahrenheit"),
		Direction: entangle.AtoB,
		MapAtoB: func(v graph.Value) (graph.Value, error) {
			return graph.Float(v.Float*9/5 + 32), nil
		},
		InitialSync: true,
	}); err != nil {
		t.Fatalf("AddLink: %v", err)
	}

	g := doc.Group(graph.Path("views.temps"))
	if err := g.Include(".temperature"); err != nil {
		t.Fatalf("Include: %v", err)
	}
	doc.RegisterView(graph.Path("views.temps"), marker.RenderOptions{Lang: "js"})

	if err := doc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	doc2, err := Open(ctx, Options{FxdPath: fxdPath})
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	defer doc2.Close(ctx)

	fahrenheitID, ok := doc2.Kernel.Resolve(graph.Path("temperature.fahrenheit"))
	if !ok {
		t.Fatalf("expected temperature.fahrenheit to survive reload")
	}
	if got := doc2.Kernel.Get(fahrenheitID); got.Float != 212 {
		t.Fatalf("expected fahrenheit == 212, got %+v", got)
	}

	if len(doc2.PendingGroupDefs) != 1 {
		t.Fatalf("expected 1 pending group definition, got %d", len(doc2.PendingGroupDefs))
	}
	if len(doc2.PendingLinkDefs) != 1 {
		t.Fatalf("expected 1 pending link definition, got %d", len(doc2.PendingLinkDefs))
	}
}

func TestDocumentWalReplaysUncheckpointedMutations(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fxdPath := filepath.Join(dir, "project.fxd")

	doc, err := Open(ctx, Options{FxdPath: fxdPath})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	nameID := doc.Kernel.Ensure(graph.Path("profile.name"))
	if err := doc.Kernel.Set(nameID, graph.String("ada")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Close without an explicit Save call happening after every mutation:
	// Close always saves, but the point of this test is that even mutations
	// made between snapshots are durable via the WAL, independent of Save
	// timing. Simulate that by closing the WAL and the `.fxd` backend
	// directly, without saving a snapshot.
	if err := doc.wal.Close(); err != nil {
		t.Fatalf("close wal: %v", err)
	}
	if err := doc.backend.Close(); err != nil {
		t.Fatalf("close backend: %v", err)
	}

	doc2, err := Open(ctx, Options{FxdPath: fxdPath})
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	defer doc2.Close(ctx)

	id, ok := doc2.Kernel.Resolve(graph.Path("profile.name"))
	if !ok {
		t.Fatalf("expected profile.name to survive via wal replay")
	}
	if got := doc2.Kernel.Get(id); got.Str != "ada" {
		t.Fatalf("expected profile.name == ada, got %+v", got)
	}
}

func TestDocumentRenderRequiresRegisteredView(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	doc, err := Open(ctx, Options{FxdPath: filepath.Join(dir, "project.fxd")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer doc.Close(ctx)

	if _, err := doc.Render(graph.Path("views.missing")); err == nil {
		t.Fatalf("expected error rendering an unregistered view")
	}
}
