package revdiff

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestDetectCorrections(t *testing.T) {
	tests := []struct {
		name    string
		oldLine string
		newLine string
		want    []string
	}{
		{
			name:    "misheard name",
			oldLine: "[user] met with Klaus about shiba rollout",
			newLine: "[user] met with Klaus about SHIVA rollout",
			want:    []string{"SHIVA"},
		},
		{
			name:    "pure addition",
			oldLine: "[user] discussed pricing",
			newLine: "[user] discussed pricing with Acme",
		},
		{
			name:    "case change only",
			oldLine: "[ai] review kubernetes",
			newLine: "[user] review Kubernetes",
		},
		{
			name:    "lower-case replacement",
			oldLine: "[ai] ship on monday",
			newLine: "[user] ship on tuesday",
		},
		{
			name:    "stop word and short words skipped",
			oldLine: "[ai] call bob",
			newLine: "[user] The Al call Roberta",
			want:    []string{"Roberta"},
		},
		{
			name:    "markers ignored",
			oldLine: "  [ai] - ping marcus",
			newLine: "  [user] - ping Markus",
			want:    []string{"Markus"},
		},
		{
			name:    "heading marker ignored",
			oldLine: "[ai] ## Weekly sink",
			newLine: "[user] ## Weekly Sync",
			want:    []string{"Sync"},
		},
		{
			name:    "hyphen and apostrophe words",
			oldLine: "[ai] talk to oneil about the t mobile deal",
			newLine: "[user] talk to O'Neil about the T-Mobile deal",
			want:    []string{"O'Neil", "T-Mobile"},
		},
		{
			name:    "repeated word reported once",
			oldLine: "[ai] jera and jera",
			newLine: "[user] Jira and JIRA",
			want:    []string{"Jira"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectCorrections(tt.oldLine, tt.newLine, Options{})
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DetectCorrections() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectCorrectionsPerPairCap(t *testing.T) {
	got := DetectCorrections(
		"[user] notes on x",
		"[user] notes on Alpha Bravo Charlie Delta Echo Foxtrot Golf",
		Options{},
	)
	want := []string{"Alpha", "Bravo", "Charlie", "Delta", "Echo"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DetectCorrections() = %v, want %v", got, want)
	}
}

func TestDetectCorrectionsOptions(t *testing.T) {
	opts := Options{
		MinWordLength: 2,
		MaxPerPair:    1,
		IsCandidate:   func(string) bool { return true },
	}
	got := DetectCorrections("[ai] go to paris", "[user] go to lyon or nice", opts)
	if want := []string{"lyon"}; !reflect.DeepEqual(got, want) {
		t.Errorf("DetectCorrections() = %v, want %v", got, want)
	}
}

func TestDiffScenario(t *testing.T) {
	old := "[user] # Standup\n[ai] met with Klaus about shiba rollout\n[ai] discussed pricing"
	new := "[user] # Standup\n[user] met with Klaus about SHIVA rollout\n[ai] discussed pricing with Acme\n[user] follow up Friday"

	res := Diff(old, new, Options{})
	if want := []Match{{0, 0}}; !reflect.DeepEqual(res.Matches, want) {
		t.Errorf("Matches = %v, want %v", res.Matches, want)
	}
	if len(res.Pairs) != 2 {
		t.Fatalf("Pairs = %+v, want 2", res.Pairs)
	}
	if len(res.Inserted) != 1 || res.Inserted[0].Index != 3 {
		t.Errorf("Inserted = %+v, want line 3", res.Inserted)
	}
	if len(res.Deleted) != 0 {
		t.Errorf("Deleted = %+v, want none", res.Deleted)
	}
	if want := []string{"SHIVA"}; !reflect.DeepEqual(res.Suggestions, want) {
		t.Errorf("Suggestions = %v, want %v", res.Suggestions, want)
	}
}

func TestDiffPlainInsertAndDelete(t *testing.T) {
	res := Diff("a\nb\nc", "a\nx\nc", Options{})
	if want := []Match{{0, 0}, {2, 2}}; !reflect.DeepEqual(res.Matches, want) {
		t.Errorf("Matches = %v, want %v", res.Matches, want)
	}
	if len(res.Pairs) != 0 {
		t.Errorf("Pairs = %+v, want none", res.Pairs)
	}
	if want := []Line{{Index: 1, Text: "x"}}; !reflect.DeepEqual(res.Inserted, want) {
		t.Errorf("Inserted = %v, want %v", res.Inserted, want)
	}
	if want := []Line{{Index: 1, Text: "b"}}; !reflect.DeepEqual(res.Deleted, want) {
		t.Errorf("Deleted = %v, want %v", res.Deleted, want)
	}
}

func TestDiffRevisionCap(t *testing.T) {
	names := []string{"Acme", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf"}
	var oldLines, newLines []string
	for i, name := range names {
		oldLines = append(oldLines, fmt.Sprintf("[ai] meeting %d about item", i))
		newLines = append(newLines, fmt.Sprintf("[user] meeting %d about %s", i, name))
	}
	got := Suggest(strings.Join(oldLines, "\n"), strings.Join(newLines, "\n"), Options{})
	if want := names[:5]; !reflect.DeepEqual(got, want) {
		t.Errorf("Suggest() = %v, want %v", got, want)
	}
}

func TestDiffDeduplicatesAcrossPairs(t *testing.T) {
	old := "[ai] sync with acne team\n[ai] acne invoice overdue"
	new := "[user] sync with Acme team\n[user] ACME invoice overdue"
	got := Suggest(old, new, Options{})
	if want := []string{"Acme"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Suggest() = %v, want %v", got, want)
	}
}

func TestDiffEmptyRevisions(t *testing.T) {
	res := Diff("", "[user] hello", Options{})
	if len(res.Matches) != 0 || len(res.Inserted) != 1 || len(res.Suggestions) != 0 {
		t.Errorf("Diff(\"\", ...) = %+v", res)
	}
	res = Diff("", "", Options{})
	if len(res.Matches)+len(res.Inserted)+len(res.Deleted) != 0 {
		t.Errorf("Diff(\"\", \"\") = %+v, want empty", res)
	}
}

func TestDiffOptimalMatcher(t *testing.T) {
	old := "zeta eta alpha\nalpha beta gamma delta"
	new := "alpha beta gamma zeta\nalpha beta gamma delta epsilon"
	res := Diff(old, new, Options{Matcher: OptimalMatcher{Threshold: DefaultOverlapThreshold}})
	if len(res.Pairs) != 2 || len(res.Inserted) != 0 || len(res.Deleted) != 0 {
		t.Errorf("Diff() with optimal matcher = %+v", res)
	}
}

func TestLineChanges(t *testing.T) {
	tests := []struct{ old, new string }{
		{"met with Klaus about shiba rollout", "met with Klaus about SHIVA rollout"},
		{"", "new line"},
		{"old line", ""},
		{"same", "same"},
		{"discussed pricing", "discussed pricing with Acme"},
	}
	for _, tt := range tests {
		changes := LineChanges(tt.old, tt.new)
		var gotOld, gotNew strings.Builder
		for _, c := range changes {
			switch c.Op {
			case OpEqual:
				gotOld.WriteString(c.Text)
				gotNew.WriteString(c.Text)
			case OpDelete:
				gotOld.WriteString(c.Text)
			case OpInsert:
				gotNew.WriteString(c.Text)
			}
		}
		if gotOld.String() != tt.old || gotNew.String() != tt.new {
			t.Errorf("LineChanges(%q, %q) rebuilds %q / %q", tt.old, tt.new, gotOld.String(), gotNew.String())
		}
	}

	p := Pair{Old: Line{Text: "ship monday"}, New: Line{Text: "ship friday"}}
	hasInsert := false
	for _, c := range p.Changes() {
		if c.Op == OpInsert {
			hasInsert = true
		}
	}
	if !hasInsert {
		t.Errorf("Pair.Changes() = %+v, want an insert", p.Changes())
	}
}
