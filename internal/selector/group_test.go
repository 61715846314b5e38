package selector

import (
	"testing"

	"github.com/danshapiro/fxd/internal/graph"
)

func TestGroupSelectorMembershipAndOrdering(t *testing.T) {
	k := graph.New()
	header := k.Ensure("snippets.repo.header")
	find := k.Ensure("snippets.repo.find")
	_ = k.SetTypeTag(header, "snippet")
	_ = k.SetTypeTag(find, "snippet")
	_ = k.SetMeta(header, "order", graph.Int(1))
	_ = k.SetMeta(find, "order", graph.Int(0))

	g := NewGroup(k, "views.repoFile")
	if err := g.Include(".snippet"); err != nil {
		t.Fatal(err)
	}
	g.Reconcile()

	members := g.List()
	if len(members) != 2 {
		t.Fatalf("members = %v, want 2", members)
	}
	if members[0] != find || members[1] != header {
		t.Fatalf("order wrong: got %v, want [find, header]", members)
	}
}

func TestGroupReactiveReconciliationOnStructuralChange(t *testing.T) {
	k := graph.New()
	g := NewGroup(k, "views.repoFile")
	_ = g.Include(".snippet")

	var addedLog [][]graph.NodeID
	g.OnChange(func(added, removed []graph.NodeID) {
		addedLog = append(addedLog, added)
	})
	g.Reactive(true)

	id := k.Ensure("snippets.repo.header")
	_ = k.SetTypeTag(id, "snippet")

	if len(g.List()) != 1 {
		t.Fatalf("expected reactive group to pick up new snippet, got %v", g.List())
	}
	if len(addedLog) == 0 {
		t.Fatalf("expected at least one change callback")
	}
}

func TestGroupPredicateFilter(t *testing.T) {
	k := graph.New()
	a := k.Ensure("items.a")
	b := k.Ensure("items.b")
	_ = k.SetTypeTag(a, "item")
	_ = k.SetTypeTag(b, "item")
	_ = k.Set(a, graph.Int(5))
	_ = k.Set(b, graph.Int(50))

	g := NewGroup(k, "views.bigItems")
	_ = g.Include(".item")
	g.Where(func(k *graph.Kernel, id graph.NodeID) bool {
		return k.Get(id).Kind == graph.KindInt && k.Get(id).Int > 10
	})
	g.Reconcile()

	members := g.List()
	if len(members) != 1 || members[0] != b {
		t.Fatalf("predicate filter failed: %v", members)
	}
}

func TestGroupGlobMembership(t *testing.T) {
	k := graph.New()
	k.Ensure("snippets.repo.header")
	k.Ensure("snippets.repo.find")
	k.Ensure("snippets.other.thing")

	g := NewGroup(k, "views.repoOnly")
	g.IncludeGlob("snippets.repo.*")
	g.Reconcile()

	if len(g.List()) != 2 {
		t.Fatalf("glob membership = %d, want 2", len(g.List()))
	}
}

func TestGroupDisposeStopsReconciliation(t *testing.T) {
	k := graph.New()
	g := NewGroup(k, "views.x")
	_ = g.Include(".item")
	g.Reactive(true)
	g.Dispose()

	id := k.Ensure("items.new")
	_ = k.SetTypeTag(id, "item")

	if len(g.List()) != 0 {
		t.Fatalf("disposed group kept reconciling: %v", g.List())
	}
}
