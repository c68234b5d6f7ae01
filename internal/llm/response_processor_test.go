package llm

import (
	"testing"
)

func TestExtractJSON_Pure(t *testing.T) {
	input := `[{"task": "Send report"}]`
	if got := ExtractJSON(input); got != input {
		t.Errorf("ExtractJSON = %q, want input unchanged", got)
	}
}

func TestExtractJSON_MarkdownFence(t *testing.T) {
	input := "Here are the todos:\n```json\n[{\"task\": \"Send report\"}]\n```\nLet me know if you need more."
	want := `[{"task": "Send report"}]`
	if got := ExtractJSON(input); got != want {
		t.Errorf("ExtractJSON = %q, want %q", got, want)
	}
}

func TestExtractJSON_SurroundingProse(t *testing.T) {
	input := `Sure! The extracted todos are [{"task": "Send report"}] as requested.`
	want := `[{"task": "Send report"}]`
	if got := ExtractJSON(input); got != want {
		t.Errorf("ExtractJSON = %q, want %q", got, want)
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	if got := ExtractJSON("no structured content here"); got != "" {
		t.Errorf("ExtractJSON = %q, want empty", got)
	}
}

func TestProcessResponse_CleanArray(t *testing.T) {
	var target []map[string]interface{}
	result, err := ProcessResponse(`[{"task": "Send report", "confidence": 0.9}]`, &target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Error("expected Success=true")
	}
	if result.RepairStats.WasRepaired {
		t.Error("clean JSON should not be repaired")
	}
	if len(target) != 1 || target[0]["task"] != "Send report" {
		t.Errorf("unexpected parsed content: %v", target)
	}
}

func TestProcessResponse_RepairedFence(t *testing.T) {
	raw := "```json\n[{\"task\": \"Send report\",}]\n```"
	var target []map[string]interface{}
	result, err := ProcessResponse(raw, &target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.RepairStats.WasRepaired {
		t.Error("expected trailing-comma repair")
	}
	if len(target) != 1 {
		t.Errorf("expected 1 item, got %d", len(target))
	}
}

func TestProcessResponse_NoJSON(t *testing.T) {
	var target []map[string]interface{}
	_, err := ProcessResponse("I could not find any todos in the content.", &target)
	if err == nil {
		t.Error("expected error when response has no JSON")
	}
}
