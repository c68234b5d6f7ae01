package content

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/todoharvest/pkg/models"
)

// FileCollector reads one source's items from a JSON export file: an array
// of RawItem objects. Connectors that talk to real platforms produce these
// exports; the pipeline stays transport-agnostic.
type FileCollector struct {
	source models.Source
	path   string
}

func NewFileCollector(source models.Source, path string) *FileCollector {
	return &FileCollector{source: source, path: path}
}

func (c *FileCollector) Source() models.Source { return c.source }

// Collect returns the items newer than since. Items without a timestamp are
// kept; the age filter is for bounding the window, not for strictness.
func (c *FileCollector) Collect(ctx context.Context, since time.Time) ([]RawItem, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read %s export: %w", c.source, err)
	}

	var items []RawItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s export: %w", c.source, err)
	}

	var out []RawItem
	for _, item := range items {
		if !item.Timestamp.IsZero() && item.Timestamp.Before(since) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}
