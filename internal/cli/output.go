// Package cli formats command output for the docchat CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/docchat/internal/convindex"
	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/pkg/utils"
)

// OutputFormat selects human-readable or JSON output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const previewLen = 200

// ParseOutputFormat accepts "text" or "json" (any case); empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SearchHit is one retrieved chunk with its score, shown only in the local
// text view.
type SearchHit struct {
	Text  string
	DocID string
	Score float64
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, hits []SearchHit, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms\n\n", len(hits), response.QueryTime)
	for i, hit := range hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | Document: %s\n", i+1, hit.Score, hit.DocID)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(hit.Text, previewLen))
	}
	return nil
}

// WriteAnswer writes an ask reply to w in the given format.
func WriteAnswer(w io.Writer, response *models.MessageResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	fmt.Fprintf(w, "%s\n", response.Answer)
	if response.Degraded {
		fmt.Fprintln(w, "(retrieval unavailable; answered without document context)")
	}
	if len(response.ContextChunks) > 0 {
		fmt.Fprintf(w, "\nContext (%d chunks):\n", len(response.ContextChunks))
		for _, c := range response.ContextChunks {
			fmt.Fprintf(w, "  - %s\n", utils.Truncate(c, previewLen))
		}
	}
	return nil
}

// WriteStats writes index statistics to w in the given format.
func WriteStats(w io.Writer, stats convindex.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, stats)
	}
	fmt.Fprintf(w, "Conversation: %s\n", stats.ConversationID)
	fmt.Fprintf(w, "Chunks:       %d\n", stats.Chunks)
	fmt.Fprintf(w, "Dimension:    %d\n", stats.Dimension)
	fmt.Fprintf(w, "Documents:    %d\n", len(stats.Documents))
	for _, d := range stats.Documents {
		fmt.Fprintf(w, "  %s\n", d)
	}
	return nil
}
