package reporting

import (
	"encoding/json"
	"io"

	"github.com/spboyer/dea/internal/models"
)

// WriteJSON writes the outcome as indented JSON.
func WriteJSON(w io.Writer, outcome *models.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(outcome)
}
