package reactive

import (
	"fmt"
	"testing"

	"github.com/danshapiro/fxd/internal/graph"
)

func TestSnippetReactiveAddition(t *testing.T) {
	k := graph.New()
	n1 := k.Ensure("inputs.num1")
	n2 := k.Ensure("inputs.num2")
	_ = k.Set(n1, graph.Int(10))
	_ = k.Set(n2, graph.Int(5))

	add := func(params map[string]graph.Value) (graph.Value, error) {
		return graph.Int(params["a"].Int + params["b"].Int), nil
	}

	s := New(k, Config{
		Node:   "snippets.add",
		Fn:     add,
		Source: "add(a,b) = a + b",
		Params: []ParamBinding{
			{Name: "a", Path: "inputs.num1"},
			{Name: "b", Path: "inputs.num2"},
		},
		Output:   "outputs.sum",
		Reactive: true,
	})
	defer s.Dispose()

	s.Execute()
	sumID, ok := k.Resolve("outputs.sum")
	if !ok {
		t.Fatalf("output node not created")
	}
	if got := k.Get(sumID).Int; got != 15 {
		t.Fatalf("outputs.sum = %d, want 15", got)
	}

	if err := k.Set(n1, graph.Int(20)); err != nil {
		t.Fatal(err)
	}
	if got := k.Get(sumID).Int; got != 25 {
		t.Fatalf("after num1=20: outputs.sum = %d, want 25", got)
	}
}

func TestSnippetAbsentParamSkipsExecution(t *testing.T) {
	k := graph.New()
	n1 := k.Ensure("inputs.a")
	_ = k.Set(n1, graph.Int(1))

	add := func(params map[string]graph.Value) (graph.Value, error) {
		return graph.Int(params["a"].Int + params["b"].Int), nil
	}

	s := New(k, Config{
		Node: "snippets.add2",
		Fn:   add,
		Params: []ParamBinding{
			{Name: "a", Path: "inputs.a"},
			{Name: "b", Path: "inputs.missing"},
		},
		Output: "outputs.sum2",
	})
	defer s.Dispose()

	s.Execute()
	if _, ok := k.Resolve("outputs.sum2"); ok {
		t.Fatalf("output created despite absent param")
	}
}

func TestSnippetErrorRecordedOnNode(t *testing.T) {
	k := graph.New()
	n1 := k.Ensure("inputs.x")
	_ = k.Set(n1, graph.Int(0))

	fails := func(params map[string]graph.Value) (graph.Value, error) {
		return graph.None(), fmt.Errorf("boom")
	}

	s := New(k, Config{
		Node:   "snippets.fails",
		Fn:     fails,
		Params: []ParamBinding{{Name: "x", Path: "inputs.x"}},
		Output: "outputs.never",
	})
	defer s.Dispose()

	s.Execute()
	if _, ok := k.Resolve("outputs.never"); ok {
		t.Fatalf("output created despite function error")
	}
	if got := s.LastError(); got != "boom" {
		t.Fatalf("LastError() = %q, want \"boom\"", got)
	}
}

func TestSnippetDisposeStopsReactivity(t *testing.T) {
	k := graph.New()
	n1 := k.Ensure("inputs.a")
	_ = k.Set(n1, graph.Int(1))

	add := func(params map[string]graph.Value) (graph.Value, error) {
		return graph.Int(params["a"].Int * 2), nil
	}

	s := New(k, Config{
		Node:     "snippets.doubler",
		Fn:       add,
		Params:   []ParamBinding{{Name: "a", Path: "inputs.a"}},
		Output:   "outputs.doubled",
		Reactive: true,
	})
	sumID, _ := k.Resolve("outputs.doubled")
	if k.Get(sumID).Int != 2 {
		t.Fatalf("initial execution did not run")
	}

	s.Dispose()
	_ = k.Set(n1, graph.Int(99))
	if k.Get(sumID).Int != 2 {
		t.Fatalf("disposed snippet still reacted")
	}
}

func TestSnippetUsesParsedExpr(t *testing.T) {
	k := graph.New()
	aID := k.Ensure("inputs.p")
	bID := k.Ensure("inputs.q")
	_ = k.Set(aID, graph.Float(3))
	_ = k.Set(bID, graph.Float(4))

	expr, err := ParseExpr("p * p + q * q")
	if err != nil {
		t.Fatal(err)
	}

	s := New(k, Config{
		Node:   "snippets.sumsq",
		Fn:     expr.Eval,
		Source: expr.String(),
		Params: []ParamBinding{
			{Name: "p", Path: "inputs.p"},
			{Name: "q", Path: "inputs.q"},
		},
		Output: "outputs.sumsq",
	})
	defer s.Dispose()
	s.Execute()

	outID, _ := k.Resolve("outputs.sumsq")
	if got := k.Get(outID).Float; got != 25 {
		t.Fatalf("outputs.sumsq = %v, want 25", got)
	}
	if s.ToString() != "p * p + q * q" {
		t.Fatalf("ToString() = %q", s.ToString())
	}
}
