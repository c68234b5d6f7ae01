// Package content converts heterogeneous per-source items into the uniform
// ContentUnit shape consumed by the rest of the pipeline.
package content

import (
	"sort"
	"strings"
	"time"

	"github.com/todoharvest/pkg/models"
)

// TruncationMarker is appended to text cut at the length bound, so the model
// sees that content was elided rather than it silently ending.
const TruncationMarker = " …[truncated]"

// DefaultMaxChars bounds a single unit's text when no limit is configured.
const DefaultMaxChars = 4000

// RawItem is one collaborator-provided record before normalization. The
// collaborator-specific fetch clients map their payloads into this shape.
type RawItem struct {
	Text         string    `json:"text"`
	SourceID     string    `json:"source_id"`
	Link         string    `json:"link,omitempty"`
	Participants []string  `json:"participants,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
}

// sourceOrder fixes the inter-source ordering so prompts are deterministic.
var sourceOrder = map[models.Source]int{
	models.SourceChat:      0,
	models.SourceEmail:     1,
	models.SourceMeeting:   2,
	models.SourceStoreNote: 3,
}

// Normalize maps raw per-source items to ContentUnits: empty text is dropped,
// long text is truncated with a visible marker, and output order is stable
// (source, then chronological, then source id). Pure function; no I/O.
func Normalize(bySource map[models.Source][]RawItem, maxChars int) []models.ContentUnit {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var units []models.ContentUnit
	for source, items := range bySource {
		for _, item := range items {
			text := strings.TrimSpace(item.Text)
			if text == "" {
				continue
			}
			units = append(units, models.ContentUnit{
				Text:         Truncate(text, maxChars),
				Source:       source,
				SourceID:     item.SourceID,
				Link:         item.Link,
				Participants: append([]string(nil), item.Participants...),
				Timestamp:    item.Timestamp,
			})
		}
	}

	sort.SliceStable(units, func(i, j int) bool {
		a, b := units[i], units[j]
		if a.Source != b.Source {
			return sourceOrder[a.Source] < sourceOrder[b.Source]
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.SourceID < b.SourceID
	})

	return units
}

// Truncate cuts text to maxChars runes, appending the truncation marker when
// anything was cut.
func Truncate(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + TruncationMarker
}
