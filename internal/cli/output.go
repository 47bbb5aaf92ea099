package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/progress"
)

// response is the JSON envelope of every command.
type response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// output writes data as JSON, or calls text for the human readable form.
func output(w io.Writer, format string, data any, text func(io.Writer)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response{Status: "ok", Data: data})
	}
	text(w)
	return nil
}

func writeSummary(w io.Writer, s progress.Summary) {
	fmt.Fprintf(w, "attempted:     %d\n", s.Attempted)
	fmt.Fprintf(w, "succeeded:     %d\n", s.Succeeded)
	fmt.Fprintf(w, "skipped:       %d\n", s.Skipped)
	fmt.Fprintf(w, "failed:        %d\n", s.Failed)

	cats := make([]string, 0, len(s.Breakdown))
	for c, n := range s.Breakdown {
		if c.IsFailure() && n > 0 {
			cats = append(cats, string(c))
		}
	}
	sort.Strings(cats)
	for _, c := range cats {
		fmt.Fprintf(w, "  %-20s %d\n", c+":", s.Breakdown[progress.Category(c)])
	}

	fmt.Fprintf(w, "success rate:  %.1f%%\n", s.SuccessRate*100)
	fmt.Fprintf(w, "throughput:    %.2f articles/s\n", s.Throughput)
	fmt.Fprintf(w, "elapsed:       %s\n", s.Elapsed.Round(time.Millisecond))
}
