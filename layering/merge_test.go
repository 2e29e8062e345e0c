package layering

import (
	"reflect"
	"testing"
)

func TestMergeLayersStrongestWins(t *testing.T) {
	user := map[string]any{
		"theme": "dark",
		"limits": map[string]any{
			"daily": 50,
		},
	}
	defaults := map[string]any{
		"theme": "light",
		"lang":  "en",
		"limits": map[string]any{
			"daily":   100,
			"monthly": 500,
		},
	}

	got := MergeLayers(user, defaults)
	want := map[string]any{
		"theme": "dark",
		"lang":  "en",
		"limits": map[string]any{
			"daily":   50,
			"monthly": 500,
		},
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("merged document mismatch:\nwant: %#v\n got: %#v", want, got)
	}

	got["limits"].(map[string]any)["daily"] = 1
	if defaults["limits"].(map[string]any)["daily"] != 100 || user["limits"].(map[string]any)["daily"] != 50 {
		t.Fatalf("expected inputs untouched after mutating merged output")
	}
}

func TestMergeLayersScalarReplacesDocument(t *testing.T) {
	got := MergeLayers(
		map[string]any{"feature": false},
		map[string]any{"feature": map[string]any{"enabled": true}},
	)
	if got["feature"] != false {
		t.Fatalf("expected stronger scalar to replace document, got %#v", got["feature"])
	}
}

func TestMergeLayersZeroInput(t *testing.T) {
	got := MergeLayers()
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty document, got %#v", got)
	}
}

func TestCloneDetachesNestedComposites(t *testing.T) {
	fn := func() int { return 1 }
	original := map[string]any{
		"a":     map[string]any{"b": 1},
		"items": []any{map[string]any{"name": "x"}},
		"fn":    fn,
	}

	clone := Clone(original)
	clone["a"].(map[string]any)["b"] = 2
	clone["items"].([]any)[0].(map[string]any)["name"] = "y"

	if original["a"].(map[string]any)["b"] != 1 {
		t.Fatalf("expected nested map to be copied")
	}
	if original["items"].([]any)[0].(map[string]any)["name"] != "x" {
		t.Fatalf("expected nested slice element to be copied")
	}
	if clone["fn"].(func() int)() != 1 {
		t.Fatalf("expected leaf values to be shared")
	}
	if Clone(nil) != nil {
		t.Fatalf("expected nil clone for nil document")
	}
}
