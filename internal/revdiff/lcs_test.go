package revdiff

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

func TestAlign(t *testing.T) {
	tests := []struct {
		name string
		old  []string
		new  []string
		want []Match
	}{
		{
			name: "single substitution",
			old:  []string{"a", "b", "c"},
			new:  []string{"a", "x", "c"},
			want: []Match{{0, 0}, {2, 2}},
		},
		{
			name: "identical",
			old:  []string{"a", "b"},
			new:  []string{"a", "b"},
			want: []Match{{0, 0}, {1, 1}},
		},
		{
			name: "insert at front",
			old:  []string{"b", "c"},
			new:  []string{"a", "b", "c"},
			want: []Match{{0, 1}, {1, 2}},
		},
		{
			name: "delete in middle",
			old:  []string{"a", "b", "c", "d"},
			new:  []string{"a", "d"},
			want: []Match{{0, 0}, {3, 1}},
		},
		{
			name: "reordered keeps one",
			old:  []string{"x", "y"},
			new:  []string{"y", "x"},
			want: []Match{{1, 0}},
		},
		{
			name: "nothing shared",
			old:  []string{"a"},
			new:  []string{"b"},
			want: []Match{},
		},
		{
			name: "empty old",
			old:  nil,
			new:  []string{"a"},
			want: []Match{},
		},
		{
			name: "interleaved",
			old:  []string{"a", "b", "c", "d", "e"},
			new:  []string{"b", "x", "d", "e", "y"},
			want: []Match{{1, 0}, {3, 2}, {4, 3}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Align(tt.old, tt.new)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Align() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAlignIsIncreasingAndExact(t *testing.T) {
	old := strings.Split("p q r s q p r s t", " ")
	new := strings.Split("q p s r t q s p", " ")
	matches := Align(old, new)
	for i, m := range matches {
		if old[m.OldIndex] != new[m.NewIndex] {
			t.Fatalf("match %v pairs %q with %q", m, old[m.OldIndex], new[m.NewIndex])
		}
		if i > 0 {
			prev := matches[i-1]
			if m.OldIndex <= prev.OldIndex || m.NewIndex <= prev.NewIndex {
				t.Fatalf("matches not strictly increasing: %v then %v", prev, m)
			}
		}
	}
	if want := lcsLength(old, new); len(matches) != want {
		t.Errorf("len(Align()) = %d, want %d", len(matches), want)
	}
}

// lcsLength is an independent recursive reference.
func lcsLength(a, b []string) int {
	memo := map[[2]int]int{}
	var rec func(i, j int) int
	rec = func(i, j int) int {
		if i == len(a) || j == len(b) {
			return 0
		}
		key := [2]int{i, j}
		if v, ok := memo[key]; ok {
			return v
		}
		var v int
		if a[i] == b[j] {
			v = 1 + rec(i+1, j+1)
		} else {
			v = max(rec(i+1, j), rec(i, j+1))
		}
		memo[key] = v
		return v
	}
	return rec(0, 0)
}

func TestUnmatched(t *testing.T) {
	old := []string{"a", "b", "c"}
	new := []string{"a", "x", "c", "y"}
	oldOnly, newOnly := Unmatched(old, new, Align(old, new))

	wantOld := []Line{{Index: 1, Text: "b"}}
	wantNew := []Line{{Index: 1, Text: "x"}, {Index: 3, Text: "y"}}
	if !reflect.DeepEqual(oldOnly, wantOld) {
		t.Errorf("oldOnly = %v, want %v", oldOnly, wantOld)
	}
	if !reflect.DeepEqual(newOnly, wantNew) {
		t.Errorf("newOnly = %v, want %v", newOnly, wantNew)
	}
}

func TestSplitLines(t *testing.T) {
	if got := SplitLines(""); got != nil {
		t.Errorf("SplitLines(\"\") = %v, want nil", got)
	}
	got := SplitLines("a\r\nb\nc")
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("SplitLines() = %v, want %v", got, want)
	}
}

func TestAlignLargeInputStaysBounded(t *testing.T) {
	const n = 4000
	old := make([]string, 0, n+2)
	new := make([]string, 0, n+2)
	old = append(old, "head")
	new = append(new, "head")
	for i := 0; i < n; i++ {
		old = append(old, fmt.Sprintf("old line %d", i))
		new = append(new, fmt.Sprintf("new line %d", i))
	}
	old = append(old, "tail")
	new = append(new, "tail")

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	matches := Align(old, new)
	runtime.ReadMemStats(&after)

	want := []Match{{0, 0}, {n + 1, n + 1}}
	if !reflect.DeepEqual(matches, want) {
		t.Fatalf("Align() = %v, want %v", matches, want)
	}
	if grew := after.TotalAlloc - before.TotalAlloc; grew > 8<<20 {
		t.Errorf("Align allocated %d bytes for a %dx%d region", grew, n, n)
	}
}

func TestAlignCellLimit(t *testing.T) {
	saved := MaxAlignCells
	t.Cleanup(func() { MaxAlignCells = saved })

	old := []string{"p", "q"}
	new := []string{"q", "p"}
	if got := Align(old, new); len(got) != 1 {
		t.Fatalf("Align() = %v, want one match", got)
	}

	MaxAlignCells = 3
	if got := Align(old, new); len(got) != 0 {
		t.Errorf("Align() over the cell limit = %v, want no matches", got)
	}
	// prefix and suffix are still matched
	if got := Align([]string{"a", "p", "q", "z"}, []string{"a", "q", "p", "z"}); !reflect.DeepEqual(got, []Match{{0, 0}, {3, 3}}) {
		t.Errorf("Align() over the cell limit = %v, want prefix and suffix", got)
	}
}
