package topsort

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func indexOf(result []string, s string) int {
	for i, v := range result {
		if v == s {
			return i
		}
	}
	return -1
}

func TestSort_Empty(t *testing.T) {
	result, err := Sort(Graph{}, nil)
	if err != nil {
		t.Errorf("Sort() error = %v, want nil", err)
	}
	if len(result) != 0 {
		t.Errorf("Sort() = %v, want empty", result)
	}
}

func TestSort_LinearChain(t *testing.T) {
	// c depends on b, b depends on a
	g := Graph{
		"a": nil,
		"b": {"a"},
		"c": {"b"},
	}
	result, err := Sort(g, nil)
	if err != nil {
		t.Fatalf("Sort() error = %v, want nil", err)
	}
	if !reflect.DeepEqual(result, []string{"a", "b", "c"}) {
		t.Errorf("Sort() = %v, want [a b c]", result)
	}
}

func TestSort_Diamond(t *testing.T) {
	//     d
	//    / \
	//   b   c
	//    \ /
	//     a
	g := Graph{
		"a": nil,
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	}
	result, err := Sort(g, nil)
	if err != nil {
		t.Fatalf("Sort() error = %v", err)
	}
	if len(result) != 4 {
		t.Fatalf("Sort() = %v, want 4 nodes", result)
	}
	for _, edge := range [][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}} {
		if indexOf(result, edge[0]) >= indexOf(result, edge[1]) {
			t.Errorf("Sort() %s should come before %s: %v", edge[0], edge[1], result)
		}
	}
}

func TestSort_CyclePath(t *testing.T) {
	tests := []struct {
		name string
		g    Graph
		want []string
	}{
		{
			name: "two nodes",
			g:    Graph{"a": {"b"}, "b": {"a"}},
			want: []string{"a", "b", "a"},
		},
		{
			name: "four nodes",
			g:    Graph{"a": {"b"}, "b": {"c"}, "c": {"d"}, "d": {"a"}},
			want: []string{"a", "b", "c", "d", "a"},
		},
		{
			name: "cycle below an entry node",
			g:    Graph{"a": {"b"}, "b": {"c", "e"}, "c": {"d"}, "d": {"b"}, "e": nil},
			want: []string{"b", "c", "d", "b"},
		},
		{
			name: "self reference",
			g:    Graph{"a": {"a"}},
			want: []string{"a", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Sort(tt.g, nil)
			var cycleErr *CycleError
			if !errors.As(err, &cycleErr) {
				t.Fatalf("Sort() error = %v, want *CycleError", err)
			}
			if !reflect.DeepEqual(cycleErr.Path, tt.want) {
				t.Errorf("CycleError.Path = %v, want %v", cycleErr.Path, tt.want)
			}
			if !strings.Contains(err.Error(), "circular") {
				t.Errorf("Sort() error = %v, want to contain 'circular'", err)
			}
		})
	}
}

func TestSort_UndefinedDependency(t *testing.T) {
	g := Graph{"a": {"missing"}}
	_, err := Sort(g, nil)
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("Sort() error = %v, want mention of missing node", err)
	}
}

func TestSort_SelectedNodes(t *testing.T) {
	g := Graph{
		"a": nil,
		"b": {"a"},
		"c": nil,
	}
	result, err := Sort(g, []string{"b"})
	if err != nil {
		t.Fatalf("Sort() error = %v", err)
	}
	if !reflect.DeepEqual(result, []string{"a", "b"}) {
		t.Errorf("Sort() = %v, want [a b]", result)
	}
}

func TestSort_SelfReference(t *testing.T) {
	_, err := Sort(Graph{"a": {"a"}}, nil)
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("Sort() error = %v, want *CycleError", err)
	}
	if !reflect.DeepEqual(cycleErr.Path, []string{"a", "a"}) {
		t.Errorf("Path = %v, want [a a]", cycleErr.Path)
	}
}

func TestReverse(t *testing.T) {
	g := Graph{
		"a": nil,
		"b": {"a"},
		"c": {"a", "b"},
	}
	want := Graph{
		"a": {"b", "c"},
		"b": {"c"},
		"c": nil,
	}
	if got := Reverse(g); !reflect.DeepEqual(got, want) {
		t.Errorf("Reverse() = %v, want %v", got, want)
	}
}

func TestClosure(t *testing.T) {
	g := Graph{
		"a": nil,
		"b": {"a"},
		"c": {"b"},
		"d": nil,
	}
	if got := Closure(g, []string{"c"}); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Closure(c) = %v, want [a b]", got)
	}
	if got := Closure(g, []string{"d"}); len(got) != 0 {
		t.Errorf("Closure(d) = %v, want empty", got)
	}
}
