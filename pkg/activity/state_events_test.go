package activity

import (
	"context"
	"testing"
)

func TestBuildStateUpdatedEventIncludesPatchMetadata(t *testing.T) {
	meta := map[string]any{"custom": "value"}
	input := StateEventInput{
		Identity: Identity{ActorID: " actor ", TenantID: " tenant "},
		StoreID:  " store-1 ",
		Paths:    []string{"user.name", "user.age", "count"},
		Metadata: meta,
		Channel:  "state",
	}

	event := BuildStateUpdatedEvent(input)

	if event.Verb != "state.updated" {
		t.Fatalf("expected verb state.updated got %s", event.Verb)
	}
	if event.ObjectType != "state" || event.ObjectID != "store-1" {
		t.Fatalf("unexpected object fields: %+v", event)
	}
	if event.ActorID != "actor" || event.TenantID != "tenant" {
		t.Fatalf("unexpected identity fields: %+v", event)
	}
	paths, ok := event.Metadata["paths"].([]string)
	if !ok || len(paths) != 3 || paths[0] != "user.name" {
		t.Fatalf("expected paths metadata, got %v", event.Metadata["paths"])
	}
	if event.Metadata["patch_count"] != 3 {
		t.Fatalf("expected patch_count 3, got %v", event.Metadata["patch_count"])
	}
	fields, ok := event.Metadata["fields"].([]string)
	if !ok || len(fields) != 2 || fields[0] != "user" || fields[1] != "count" {
		t.Fatalf("expected distinct root fields, got %v", event.Metadata["fields"])
	}
	paths[0] = "changed"
	if input.Paths[0] != "user.name" {
		t.Fatalf("expected input paths untouched")
	}
	if _, ok := meta["paths"]; ok {
		t.Fatalf("expected input metadata untouched")
	}
}

func TestBuildStateUpdatedEventWithEmptyBatch(t *testing.T) {
	event := BuildStateUpdatedEvent(StateEventInput{StoreID: "s", Paths: []string{}})
	if event.Metadata["patch_count"] != 0 {
		t.Fatalf("expected zero patch_count, got %v", event.Metadata["patch_count"])
	}
	if _, ok := event.Metadata["fields"]; ok {
		t.Fatalf("expected no fields for an empty batch")
	}
}

func TestBuildStateDisposedEventUsesFallbackObjectID(t *testing.T) {
	event := BuildStateDisposedEvent(StateEventInput{})
	if event.Verb != "state.disposed" {
		t.Fatalf("expected verb state.disposed got %s", event.Verb)
	}
	if event.ObjectID != "state" {
		t.Fatalf("expected fallback object ID 'state', got %q", event.ObjectID)
	}
	if event.Metadata != nil {
		t.Fatalf("expected no metadata, got %v", event.Metadata)
	}
}

func TestBuildStateEventsWorkWithHooks(t *testing.T) {
	capture := &CaptureHook{}
	hooks := Hooks{capture}

	event := BuildStateUpdatedEvent(StateEventInput{StoreID: "abc", Paths: []string{"x"}})
	if err := hooks.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	updates := capture.Updates()
	if len(updates) != 1 || updates[0].ObjectID != "abc" {
		t.Fatalf("expected one captured update, got %+v", capture.Snapshot())
	}
	if updates[0].Metadata["patch_count"] != 1 || !updates[0].Touches("x") {
		t.Fatalf("expected update metadata preserved, got %v", updates[0].Metadata)
	}
}
