package dataset

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spboyer/dea/internal/models"
)

// LoadFile reads a table from disk. Files ending in .json are parsed with
// ParseJSON, everything else as delimited text.
func LoadFile(path string) (*models.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(data)
	}
	return ParseBytes(data)
}

// ParseBytes parses data as JSON when it starts with '{' and as delimited
// text otherwise.
func ParseBytes(data []byte) (*models.Table, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return ParseJSON(trimmed)
	}
	return Parse(bytes.NewReader(data))
}
