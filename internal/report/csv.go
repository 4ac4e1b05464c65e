package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rusq/sweepmychat/internal/sweep"
)

const tsLayout = "20060102_150405"

// WriteCandidates writes the deletion preview in CSV form.
func WriteCandidates(w io.Writer, cands []sweep.Candidate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"chat_id", "chat_name", "message_id", "date", "reason", "text"}); err != nil {
		return err
	}
	for _, c := range cands {
		rec := []string{
			strconv.FormatInt(c.ChatID, 10),
			c.ChatTitle,
			strconv.FormatInt(c.ID, 10),
			c.Date.Format(time.RFC3339),
			c.Reason.String(),
			truncate(c.Text, 80),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteErrors writes the per-message error report in CSV form.
func WriteErrors(w io.Writer, s *sweep.Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"chat_id", "chat_name", "message_id", "error"}); err != nil {
		return err
	}
	for _, e := range s.Errors {
		rec := []string{
			strconv.FormatInt(e.ChatID, 10),
			e.ChatTitle,
			strconv.FormatInt(e.MessageID, 10),
			e.Err,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCandidates writes the preview to a timestamped file in dir, creating
// the directory if needed, and returns the file path.
func SaveCandidates(dir string, cands []sweep.Candidate) (string, error) {
	return save(dir, "candidates", func(w io.Writer) error {
		return WriteCandidates(w, cands)
	})
}

// SaveErrors writes the error report to a timestamped file in dir.  It is a
// no-op returning an empty path when the run had no errors.
func SaveErrors(dir string, s *sweep.Summary) (string, error) {
	if len(s.Errors) == 0 {
		return "", nil
	}
	return save(dir, "deletion_errors", func(w io.Writer) error {
		return WriteErrors(w, s)
	})
}

func save(dir, prefix string, fn func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", prefix, time.Now().Format(tsLayout)))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := fn(f); err != nil {
		return "", err
	}
	return path, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
