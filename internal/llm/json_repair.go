package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats tracks what it took to turn a model response into valid JSON.
type RepairStats struct {
	OriginalBytes    int           `json:"original_bytes"`
	RepairedBytes    int           `json:"repaired_bytes"`
	ErrorsFixed      int           `json:"errors_fixed"`
	CommentsLost     int           `json:"comments_lost"`
	RepairTime       time.Duration `json:"repair_time"`
	RepairStrategies []string      `json:"repair_strategies"`
	WasRepaired      bool          `json:"was_repaired"`
}

// RepairJSON attempts to repair malformed JSON using cheap targeted fixes
// first, falling back to the jsonrepair library when those are not enough:
//  1. Remove trailing commas
//  2. Complete unclosed objects/arrays
//  3. Strip JavaScript-style comments
//  4. Quote bare object keys
//  5. Convert single-quoted strings to double-quoted
//  6. jsonrepair library fallback
func RepairJSON(raw string) (string, RepairStats, error) {
	startTime := time.Now()
	stats := RepairStats{OriginalBytes: len(raw)}

	var probe interface{}
	if json.Unmarshal([]byte(raw), &probe) == nil {
		stats.RepairedBytes = len(raw)
		stats.RepairTime = time.Since(startTime)
		return raw, stats, nil
	}

	stats.WasRepaired = true
	repaired := raw

	apply := func(name string, fix func(string) string) {
		before := repaired
		repaired = fix(repaired)
		if repaired != before {
			stats.RepairStrategies = append(stats.RepairStrategies, name)
			stats.ErrorsFixed++
		}
	}

	apply("trailing_commas", removeTrailingCommas)
	apply("completion", completeJSON)

	before := repaired
	var lost int
	repaired, lost = removeComments(repaired)
	if repaired != before {
		stats.RepairStrategies = append(stats.RepairStrategies, "comments_removed")
		stats.CommentsLost = lost
		stats.ErrorsFixed++
	}

	apply("key_quotes", addKeyQuotes)
	apply("single_quotes", fixSingleQuotes)

	if json.Unmarshal([]byte(repaired), &probe) != nil {
		if libRepaired, err := jsonrepair.JSONRepair(repaired); err == nil && libRepaired != repaired {
			repaired = libRepaired
			stats.RepairStrategies = append(stats.RepairStrategies, "jsonrepair_library")
			stats.ErrorsFixed++
		}
	}

	stats.RepairedBytes = len(repaired)
	stats.RepairTime = time.Since(startTime)

	if json.Unmarshal([]byte(repaired), &probe) != nil {
		return repaired, stats, fmt.Errorf("JSON repair failed after %d strategies", len(stats.RepairStrategies))
	}
	return repaired, stats, nil
}

var (
	trailingCommaBrace   = regexp.MustCompile(`,\s*}`)
	trailingCommaBracket = regexp.MustCompile(`,\s*]`)
	bareKey              = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)(\s*:)`)
	singleQuoted         = regexp.MustCompile(`'([^']*)'`)
	blockComment         = regexp.MustCompile(`/\*.*?\*/`)
)

func removeTrailingCommas(s string) string {
	s = trailingCommaBrace.ReplaceAllString(s, "}")
	return trailingCommaBracket.ReplaceAllString(s, "]")
}

// completeJSON closes unclosed objects/arrays in last-opened-first-closed order.
func completeJSON(s string) string {
	s = strings.TrimSpace(s)

	var stack []rune
	inString := false
	escaped := false
	for _, char := range s {
		if escaped {
			escaped = false
			continue
		}
		switch char {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				stack = append(stack, '}')
			}
		case '[':
			if !inString {
				stack = append(stack, ']')
			}
		case '}', ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == char {
				stack = stack[:len(stack)-1]
			}
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}

func removeComments(s string) (string, int) {
	if !strings.Contains(s, "//") && !strings.Contains(s, "/*") {
		return s, 0
	}

	removed := 0
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "//"); idx != -1 && !strings.Contains(line[:idx], `"`) {
			lines[i] = line[:idx]
			removed++
		}
	}
	s = strings.Join(lines, "\n")

	removed += len(blockComment.FindAllString(s, -1))
	s = blockComment.ReplaceAllString(s, "")

	return s, removed
}

func addKeyQuotes(s string) string {
	if !bareKey.MatchString(s) {
		return s
	}
	return bareKey.ReplaceAllString(s, `$1"$2"$3`)
}

func fixSingleQuotes(s string) string {
	if !singleQuoted.MatchString(s) {
		return s
	}
	return singleQuoted.ReplaceAllString(s, `"$1"`)
}
