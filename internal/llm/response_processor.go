package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/todoharvest/internal/logging"
)

// ProcessorResult contains the outcome of decoding a raw model response.
type ProcessorResult struct {
	RepairStats  RepairStats `json:"repair_stats"`
	OriginalJSON string      `json:"-"`
	RepairedJSON string      `json:"-"`
	Success      bool        `json:"success"`
	Error        string      `json:"error,omitempty"`
}

// ProcessResponse extracts JSON from a raw model response, repairs it if
// malformed, and unmarshals it into target.
func ProcessResponse(raw string, target interface{}) (ProcessorResult, error) {
	logger := logging.GetCurrentLogger()

	result := ProcessorResult{OriginalJSON: raw}

	jsonStr := ExtractJSON(raw)
	if jsonStr == "" {
		result.Error = "no JSON found in model response"
		logger.Log("No JSON found in model response: %s", truncateForLog(raw, 200))
		return result, fmt.Errorf("no JSON found in response")
	}

	repaired, repairStats, err := RepairJSON(jsonStr)
	result.RepairStats = repairStats
	result.RepairedJSON = repaired

	if repairStats.WasRepaired {
		logger.Log("JSON repair applied: strategies [%s], %d errors fixed, took %v",
			strings.Join(repairStats.RepairStrategies, ", "), repairStats.ErrorsFixed, repairStats.RepairTime)
	}

	if err != nil {
		result.Error = fmt.Sprintf("JSON repair failed: %v", err)
		logger.Log("JSON repair failed: %v", err)
		logger.Log("Original JSON: %s", truncateForLog(jsonStr, 500))
		return result, err
	}

	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		result.Error = fmt.Sprintf("JSON parsing failed after repair: %v", err)
		logger.Log("JSON parsing failed after repair: %v", err)
		return result, err
	}

	result.Success = true
	return result, nil
}

// ExtractJSON pulls JSON content out of a response that may wrap it in
// explanatory text or markdown code fences.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return raw
	}

	// fenced code block
	if strings.Contains(raw, "```") {
		var jsonLines []string
		inBlock := false
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				inBlock = !inBlock
				continue
			}
			if inBlock {
				jsonLines = append(jsonLines, line)
			}
		}
		if len(jsonLines) > 0 {
			return strings.TrimSpace(strings.Join(jsonLines, "\n"))
		}
	}

	// first balanced {...} or [...]
	startIdx := strings.IndexAny(raw, "{[")
	if startIdx == -1 {
		return ""
	}

	openChar := raw[startIdx]
	closeChar := byte('}')
	if openChar == '[' {
		closeChar = ']'
	}

	depth := 0
	for i := startIdx; i < len(raw); i++ {
		switch raw[i] {
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return raw[startIdx : i+1]
			}
		}
	}

	// incomplete structure; the repair pass can still close it
	return raw[startIdx:]
}

func truncateForLog(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
