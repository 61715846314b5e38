package fxd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/danshapiro/fxd/internal/entangle"
	"github.com/danshapiro/fxd/internal/graph"
	"github.com/danshapiro/fxd/internal/marker"
	"github.com/danshapiro/fxd/internal/reactive"
	"github.com/danshapiro/fxd/internal/selector"
)

func tempFxdPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "graph.fxd")
}

func buildFixtureKernel(t *testing.T) (*graph.Kernel, *selector.Group, *entangle.Link) {
	t.Helper()
	k := graph.New()

	headerID := k.Ensure(graph.Path("snippets.repo.header"))
	_ = k.Set(headerID, graph.String("import { db } from './db.js'"))
	_ = k.SetMeta(headerID, "id", graph.String("header"))
	_ = k.SetMeta(headerID, "order", graph.Int(0))

	findID := k.Ensure(graph.Path("snippets.repo.find"))
	_ = k.Set(findID, graph.String("export async function findUser(id){ return db.users.find(u => u.id===id) }"))
	_ = k.SetMeta(findID, "id", graph.String("find"))
	_ = k.SetMeta(findID, "order", graph.Int(1))

	view := selector.NewGroup(k, graph.Path("views.repoFile"), graph.Path("snippets.repo.header"), graph.Path("snippets.repo.find"))
	view.Reactive(true)

	celsiusID := k.Ensure(graph.Path("temperature.celsius"))
	_ = k.Set(celsiusID, graph.Float(20))
	link, err := entangle.New(k, entangle.Config{
		Source:    graph.Path("temperature.celsius"),
		Target:    graph.Path("temperature.fahrenheit"),
		Direction: entangle.AtoB,
		MapAtoB: func(v graph.Value) (graph.Value, error) {
			return graph.Float(v.Float*9/5 + 32), nil
		},
		InitialSync: true,
	})
	if err != nil {
		t.Fatalf("entangle.New: %v", err)
	}

	return k, view, link
}

func TestSaveLoadRoundTripsGraphAndRenders(t *testing.T) {
	ctx := context.Background()
	path := tempFxdPath(t)

	k, view, link := buildFixtureKernel(t)
	opts := marker.RenderOptions{Lang: "js", HoistImports: true}
	before, err := marker.RenderView(k, view, opts)
	if err != nil {
		t.Fatalf("RenderView before save: %v", err)
	}

	b, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := b.Save(ctx, SaveInput{
		Kernel: k,
		Groups: []*selector.Group{view},
		Views:  map[graph.Path]marker.RenderOptions{view.Path(): opts},
		Links:  []*entangle.Link{link},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	defer b2.Close()

	res, err := b2.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(res.Groups) != 1 {
		t.Fatalf("expected 1 group definition, got %d", len(res.Groups))
	}
	restoredView, err := selector.FromDefinition(res.Kernel, res.Groups[0])
	if err != nil {
		t.Fatalf("FromDefinition: %v", err)
	}
	restoredView.Reconcile()

	after, err := marker.RenderView(res.Kernel, restoredView, opts)
	if err != nil {
		t.Fatalf("RenderView after load: %v", err)
	}
	if before != after {
		t.Fatalf("render mismatch after round trip:\nbefore=%q\nafter=%q", before, after)
	}

	if len(res.Links) != 1 {
		t.Fatalf("expected 1 link definition, got %d", len(res.Links))
	}
	if res.Links[0].Source != graph.Path("temperature.celsius") || res.Links[0].Target != graph.Path("temperature.fahrenheit") {
		t.Fatalf("unexpected link definition: %+v", res.Links[0])
	}

	celsiusID, ok := res.Kernel.Resolve(graph.Path("temperature.celsius"))
	if !ok {
		t.Fatalf("expected temperature.celsius to survive reload")
	}
	if got := res.Kernel.Get(celsiusID); got.Float != 20 {
		t.Fatalf("expected celsius == 20, got %+v", got)
	}

	if _, ok := res.Index.Lookup("header"); !ok {
		t.Fatalf("expected snippet index to contain 'header' after rebuild")
	}
	if _, ok := res.Index.Lookup("find"); !ok {
		t.Fatalf("expected snippet index to contain 'find' after rebuild")
	}
}

func TestSaveLoadReactiveSnippetDefinition(t *testing.T) {
	ctx := context.Background()
	path := tempFxdPath(t)
	k := graph.New()

	num1 := k.Ensure(graph.Path("inputs.num1"))
	_ = k.Set(num1, graph.Int(10))
	num2 := k.Ensure(graph.Path("inputs.num2"))
	_ = k.Set(num2, graph.Int(5))

	snip := reactive.New(k, reactive.Config{
		Node:   graph.Path("reactive_snippets.sum"),
		Source: "num1 + num2",
		Params: []reactive.ParamBinding{
			{Name: "num1", Path: graph.Path("inputs.num1")},
			{Name: "num2", Path: graph.Path("inputs.num2")},
		},
		Output:   graph.Path("outputs.sum"),
		Reactive: true,
		Fn: func(params map[string]graph.Value) (graph.Value, error) {
			return graph.Int(params["num1"].Int + params["num2"].Int), nil
		},
	})
	snip.Execute()

	b, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := b.Save(ctx, SaveInput{Kernel: k, Snippets: []*reactive.Snippet{snip}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b2, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	defer b2.Close()
	res, err := b2.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(res.Snippets) != 1 {
		t.Fatalf("expected 1 snippet definition, got %d", len(res.Snippets))
	}
	def := res.Snippets[0]
	if def.Source != "num1 + num2" || def.Output != graph.Path("outputs.sum") || !def.Reactive {
		t.Fatalf("unexpected snippet definition: %+v", def)
	}
	if len(def.Params) != 2 {
		t.Fatalf("expected 2 param definitions, got %d", len(def.Params))
	}

	sumID, ok := res.Kernel.Resolve(graph.Path("outputs.sum"))
	if !ok {
		t.Fatalf("expected outputs.sum to survive reload")
	}
	if got := res.Kernel.Get(sumID); got.Int != 15 {
		t.Fatalf("expected outputs.sum == 15, got %+v", got)
	}
}

func TestStatsReportsCounts(t *testing.T) {
	ctx := context.Background()
	path := tempFxdPath(t)
	k, view, _ := buildFixtureKernel(t)

	b, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()
	opts := marker.RenderOptions{Lang: "js"}
	if err := b.Save(ctx, SaveInput{
		Kernel: k,
		Groups: []*selector.Group{view},
		Views:  map[graph.Path]marker.RenderOptions{view.Path(): opts},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	stats, err := b.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Nodes == 0 {
		t.Fatalf("expected nonzero node count")
	}
	if stats.Groups != 1 || stats.Views != 1 {
		t.Fatalf("unexpected group/view counts: %+v", stats)
	}
}

func TestValidateIntegrityPassesOnWellFormedFile(t *testing.T) {
	ctx := context.Background()
	path := tempFxdPath(t)
	k, view, link := buildFixtureKernel(t)

	b, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()
	if err := b.Save(ctx, SaveInput{
		Kernel: k,
		Groups: []*selector.Group{view},
		Links:  []*entangle.Link{link},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := b.ValidateIntegrity(ctx); err != nil {
		t.Fatalf("ValidateIntegrity: %v", err)
	}
}

func TestOpenRejectsNewerSchemaVersion(t *testing.T) {
	ctx := context.Background()
	path := tempFxdPath(t)

	b, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := b.db.ExecContext(ctx, `UPDATE metadata SET value = ? WHERE key = 'schema_version'`, "999"); err != nil {
		t.Fatalf("bump schema version: %v", err)
	}
	if err := b.db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := Open(ctx, path); err == nil {
		t.Fatalf("expected SchemaMismatch reopening a file stamped with a newer schema version")
	}
}
