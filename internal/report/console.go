// Package report renders run summaries and candidate previews for the
// consumers outside the engine: the console, CSV files and a Markdown
// summary.  The engine itself writes no files.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/rusq/sweepmychat/internal/sweep"
)

const maxConsoleErrors = 10

var (
	head   = color.New(color.FgCyan)
	good   = color.New(color.FgGreen)
	bad    = color.New(color.FgRed)
	middle = color.New(color.FgYellow)
)

// Console prints the run summary in the classic statistics format.
func Console(w io.Writer, s *sweep.Summary) {
	rule := strings.Repeat("=", 50)
	fmt.Fprintln(w, rule)
	head.Fprintln(w, "DELETION STATISTICS")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Total candidates:     %d\n", s.Total)
	good.Fprintf(w, "Successfully deleted: %d\n", s.Deleted)
	middle.Fprintf(w, "Skipped:              %d\n", s.Skipped)
	bad.Fprintf(w, "Failed:               %d\n", s.Failed)
	if s.Cancelled > 0 {
		middle.Fprintf(w, "Cancelled:            %d\n", s.Cancelled)
	}
	if s.Retries > 0 {
		fmt.Fprintf(w, "Retries:              %d\n", s.Retries)
	}

	if len(s.Chats) > 0 {
		fmt.Fprintln(w, "\nBy chat:")
		for _, cs := range s.Chats {
			title := cs.Title
			if title == "" {
				title = fmt.Sprintf("Chat_%d", cs.ChatID)
			}
			fmt.Fprintf(w, "  - %s: %d candidates, %d deleted, %d skipped, %d failed\n",
				title, cs.Candidates, cs.Deleted, cs.Skipped, cs.Failed)
		}
	}

	if len(s.Errors) > 0 {
		bad.Fprintln(w, "\nErrors encountered:")
		for i, e := range s.Errors {
			if i == maxConsoleErrors {
				fmt.Fprintf(w, "  ... and %d more errors\n", len(s.Errors)-maxConsoleErrors)
				break
			}
			fmt.Fprintf(w, "  - %s (msg %d): %s\n", e.ChatTitle, e.MessageID, e.Err)
		}
	}
}
