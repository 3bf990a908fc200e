package agent

import "testing"

func TestLibraryUnionPreservesOrderAndDedupes(t *testing.T) {
	lib := NewLibrary()
	lib.Add("utility", &fakeTool{name: "get_current_time"})
	lib.Add("home", &fakeTool{name: "turn_on"}, &fakeTool{name: "turn_off"})
	lib.Add("extras", &fakeTool{name: "turn_on"}, &fakeTool{name: "search"})

	tools, err := lib.Union("utility", "home", "extras")
	if err != nil {
		t.Fatalf("Union() error = %v", err)
	}

	want := []string{"get_current_time", "turn_on", "turn_off", "search"}
	if len(tools) != len(want) {
		t.Fatalf("Union() returned %d tools, want %d", len(tools), len(want))
	}
	for i, tool := range tools {
		if tool.Name() != want[i] {
			t.Fatalf("tool[%d] = %q, want %q", i, tool.Name(), want[i])
		}
	}
}

func TestLibraryUnionUnknownSet(t *testing.T) {
	lib := NewLibrary()
	if _, err := lib.Union("nope"); err == nil {
		t.Fatal("expected error for unknown toolset")
	}
}
