package domain

import (
	"encoding/json"
	"strings"
)

const notesFlowKey = "flow"

const notesOriginalKey = "original_notes"

// MergeFlowMetadata folds transition metadata into the order's internal notes.
//
// Notes double as a JSON side-channel: structured flow metadata lives under a
// "flow" object so that free-text notes written by staff survive alongside it.
// When the existing notes are not valid JSON they are preserved verbatim under
// "original_notes" before the flow object is written.
func MergeFlowMetadata(notes string, metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return notes, nil
	}

	envelope := map[string]any{}
	trimmed := strings.TrimSpace(notes)
	if trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
			envelope = map[string]any{notesOriginalKey: notes}
		}
	}

	flow, _ := envelope[notesFlowKey].(map[string]any)
	if flow == nil {
		flow = map[string]any{}
	}
	for key, value := range metadata {
		flow[key] = value
	}
	envelope[notesFlowKey] = flow

	encoded, err := json.Marshal(envelope)
	if err != nil {
		return notes, err
	}
	return string(encoded), nil
}

// FlowMetadata returns the structured flow metadata stored in the notes, or an
// empty map when the notes carry none.
func FlowMetadata(notes string) map[string]any {
	trimmed := strings.TrimSpace(notes)
	if trimmed == "" {
		return map[string]any{}
	}
	envelope := map[string]any{}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return map[string]any{}
	}
	flow, _ := envelope[notesFlowKey].(map[string]any)
	if flow == nil {
		return map[string]any{}
	}
	return flow
}

// OriginalNotes returns the free-text note that predated structured metadata,
// or the raw notes when they were never converted to the JSON envelope.
func OriginalNotes(notes string) string {
	trimmed := strings.TrimSpace(notes)
	if trimmed == "" {
		return ""
	}
	envelope := map[string]any{}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return notes
	}
	original, _ := envelope[notesOriginalKey].(string)
	return original
}
