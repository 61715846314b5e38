package reactive

import (
	"testing"

	"github.com/danshapiro/fxd/internal/graph"
)

func evalFloat(t *testing.T, src string, params map[string]graph.Value) float64 {
	t.Helper()
	e, err := ParseExpr(src)
	if err != nil {
		t.Fatalf("ParseExpr(%q): %v", src, err)
	}
	v, err := e.Eval(params)
	if err != nil {
		t.Fatalf("Eval(%q): %v", src, err)
	}
	return v.Float
}

func TestExprArithmeticPrecedence(t *testing.T) {
	cases := []struct {
		src  string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 - 4 / 2", 8},
		{"-5 + 10", 5},
		{"2 * 3 + 4 * 5", 26},
	}
	for _, c := range cases {
		if got := evalFloat(t, c.src, nil); got != c.want {
			t.Errorf("%q = %v, want %v", c.src, got, c.want)
		}
	}
}

func TestExprIdentifierBinding(t *testing.T) {
	params := map[string]graph.Value{
		"a": graph.Float(3),
		"b": graph.Float(4),
	}
	if got := evalFloat(t, "a * a + b * b", params); got != 25 {
		t.Fatalf("a*a+b*b = %v, want 25", got)
	}
}

func TestExprUnboundIdentifierErrors(t *testing.T) {
	e, err := ParseExpr("missing + 1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Eval(nil); err == nil {
		t.Fatalf("expected error for unbound identifier")
	}
}

func TestExprComparisonAndBoolean(t *testing.T) {
	e, err := ParseExpr("a > 0 && b > 0")
	if err != nil {
		t.Fatal(err)
	}
	v, err := e.Eval(map[string]graph.Value{"a": graph.Int(1), "b": graph.Int(1)})
	if err != nil {
		t.Fatal(err)
	}
	if !v.Bool {
		t.Fatalf("expected true")
	}

	v, err = e.Eval(map[string]graph.Value{"a": graph.Int(1), "b": graph.Int(-1)})
	if err != nil {
		t.Fatal(err)
	}
	if v.Bool {
		t.Fatalf("expected false")
	}
}

func TestExprStringConcatenation(t *testing.T) {
	e, err := ParseExpr("'hello ' + name")
	if err != nil {
		t.Fatal(err)
	}
	v, err := e.Eval(map[string]graph.Value{"name": graph.String("world")})
	if err != nil {
		t.Fatal(err)
	}
	if v.Str != "hello world" {
		t.Fatalf("got %q, want \"hello world\"", v.Str)
	}
}

func TestExprDivisionByZero(t *testing.T) {
	e, err := ParseExpr("1 / 0")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Eval(nil); err == nil {
		t.Fatalf("expected division-by-zero error")
	}
}

func TestExprRejectsTrailingInput(t *testing.T) {
	if _, err := ParseExpr("1 + 2) "); err == nil {
		t.Fatalf("expected parse error on unbalanced parens")
	}
}

func TestExprStringRoundTrip(t *testing.T) {
	e, err := ParseExpr("a + b")
	if err != nil {
		t.Fatal(err)
	}
	if e.String() != "a + b" {
		t.Fatalf("String() = %q, want \"a + b\"", e.String())
	}
}
