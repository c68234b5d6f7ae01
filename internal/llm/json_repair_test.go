package llm

import (
	"encoding/json"
	"testing"
)

func TestRepairJSON_ValidPassthrough(t *testing.T) {
	input := `{"task": "Send report", "confidence": 0.9}`
	repaired, stats, err := RepairJSON(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.WasRepaired {
		t.Error("valid JSON should not be marked repaired")
	}
	if repaired != input {
		t.Errorf("valid JSON was modified: %s", repaired)
	}
}

func TestRepairJSON_TrailingCommas(t *testing.T) {
	input := `{"task": "Send report", "priority": "high",}`
	repaired, stats, err := RepairJSON(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stats.WasRepaired {
		t.Error("expected WasRepaired=true")
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		t.Fatalf("repaired JSON is still invalid: %v", err)
	}
	if obj["task"] != "Send report" {
		t.Errorf("task field lost during repair: %v", obj)
	}
}

func TestRepairJSON_IncompleteArray(t *testing.T) {
	input := `[{"task": "Send report", "confidence": 0.8`
	repaired, _, err := RepairJSON(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var arr []map[string]interface{}
	if err := json.Unmarshal([]byte(repaired), &arr); err != nil {
		t.Fatalf("repaired JSON is still invalid: %v", err)
	}
	if len(arr) != 1 || arr[0]["task"] != "Send report" {
		t.Errorf("unexpected repaired content: %v", arr)
	}
}

func TestRepairJSON_BareKeys(t *testing.T) {
	input := `{task: "Send report", confidence: 0.8}`
	repaired, _, err := RepairJSON(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		t.Fatalf("repaired JSON is still invalid: %v", err)
	}
	if obj["task"] != "Send report" {
		t.Errorf("bare key not recovered: %v", obj)
	}
}

func TestRepairJSON_SingleQuotes(t *testing.T) {
	input := `[{'task': 'Send report'}]`
	repaired, _, err := RepairJSON(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var arr []map[string]interface{}
	if err := json.Unmarshal([]byte(repaired), &arr); err != nil {
		t.Fatalf("repaired JSON is still invalid: %v", err)
	}
}

func TestRepairJSON_Comments(t *testing.T) {
	input := `{
		"task": "Send report", // extracted from chat
		"confidence": 0.9
	}`
	repaired, stats, err := RepairJSON(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.CommentsLost == 0 {
		t.Error("expected CommentsLost > 0")
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		t.Fatalf("repaired JSON is still invalid: %v", err)
	}
}
