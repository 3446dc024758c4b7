package domain

import (
	"encoding/json"
	"testing"
)

func TestMergeFlowMetadataPreservesLegacyText(t *testing.T) {
	notes, err := MergeFlowMetadata("fragile - handle with care", map[string]any{"carrier_branch": "north"})
	if err != nil {
		t.Fatalf("merge metadata: %v", err)
	}

	var envelope map[string]any
	if err := json.Unmarshal([]byte(notes), &envelope); err != nil {
		t.Fatalf("notes are not JSON after merge: %v", err)
	}
	if got := OriginalNotes(notes); got != "fragile - handle with care" {
		t.Fatalf("original notes = %q, want legacy text preserved", got)
	}
	if got := FlowMetadata(notes)["carrier_branch"]; got != "north" {
		t.Fatalf("flow metadata carrier_branch = %v, want %q", got, "north")
	}
}

func TestMergeFlowMetadataShallowMerges(t *testing.T) {
	notes, err := MergeFlowMetadata("", map[string]any{"a": "1", "b": "keep"})
	if err != nil {
		t.Fatalf("first merge: %v", err)
	}
	notes, err = MergeFlowMetadata(notes, map[string]any{"a": "2"})
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}

	flow := FlowMetadata(notes)
	if flow["a"] != "2" {
		t.Fatalf("flow a = %v, want overwrite to %q", flow["a"], "2")
	}
	if flow["b"] != "keep" {
		t.Fatalf("flow b = %v, want earlier key retained", flow["b"])
	}
}

func TestMergeFlowMetadataEmptyMetadataIsNoop(t *testing.T) {
	notes, err := MergeFlowMetadata("plain note", nil)
	if err != nil {
		t.Fatalf("merge metadata: %v", err)
	}
	if notes != "plain note" {
		t.Fatalf("notes = %q, want untouched", notes)
	}
}

func TestFlowMetadataOnPlainText(t *testing.T) {
	if got := FlowMetadata("just a note"); len(got) != 0 {
		t.Fatalf("flow metadata = %v, want empty for plain text", got)
	}
	if got := OriginalNotes("just a note"); got != "just a note" {
		t.Fatalf("original notes = %q, want raw text", got)
	}
}

func TestStoreDefaultLocationPicksLowestActiveID(t *testing.T) {
	store := Store{Locations: []StoreLocation{
		{ID: "loc_03", Active: true},
		{ID: "loc_01", Active: false},
		{ID: "loc_02", Active: true},
	}}
	loc := store.DefaultLocation()
	if loc == nil || loc.ID != "loc_02" {
		t.Fatalf("default location = %+v, want loc_02", loc)
	}
}

func TestStaffAccessHelpers(t *testing.T) {
	staff := Staff{
		StoreIDs: []string{"store_a"},
		OrgRoles: map[string]OrgRole{"org_1": OrgRoleAdmin, "org_2": OrgRoleStaff},
	}
	if !staff.AssignedTo("store_a") {
		t.Fatalf("expected assignment to store_a")
	}
	if staff.AssignedTo("store_b") {
		t.Fatalf("unexpected assignment to store_b")
	}
	if !staff.AdministersOrg("org_1") {
		t.Fatalf("expected admin role on org_1")
	}
	if staff.AdministersOrg("org_2") {
		t.Fatalf("staff role must not administer org_2")
	}
}
