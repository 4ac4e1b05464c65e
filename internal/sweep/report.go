package sweep

import "fmt"

// Outcome is the terminal classification of a single candidate.
type Outcome uint8

const (
	Deleted Outcome = iota
	Skipped         // already absent, chat aborted, or dry run
	Failed
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Deleted:
		return "deleted"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

// Result pairs a candidate with its outcome.  Err is set for Failed and,
// where known, explains a Skipped outcome.
type Result struct {
	Candidate
	Outcome Outcome
	Err     error
}

// ChatStats is the per-chat breakdown of a run.
type ChatStats struct {
	ChatID     int64
	Title      string
	Candidates int
	Deleted    int
	Skipped    int
	Failed     int
	Cancelled  int
}

// Report accumulates results.  It makes no decisions and is written to only
// by the deletion loop.
type Report struct {
	order   []int64
	chats   map[int64]*ChatStats
	total   int
	counts  [4]int
	retries int
	errs    []RunError
}

// RunError is one failed deletion, for the error report.
type RunError struct {
	ChatID    int64
	ChatTitle string
	MessageID int64
	Err       string
}

func NewReport() *Report {
	return &Report{chats: make(map[int64]*ChatStats)}
}

// Add records one result.
func (r *Report) Add(res Result) {
	cs, ok := r.chats[res.ChatID]
	if !ok {
		cs = &ChatStats{ChatID: res.ChatID, Title: res.ChatTitle}
		r.chats[res.ChatID] = cs
		r.order = append(r.order, res.ChatID)
	}
	cs.Candidates++
	r.total++
	r.counts[res.Outcome]++
	switch res.Outcome {
	case Deleted:
		cs.Deleted++
	case Skipped:
		cs.Skipped++
	case Failed:
		cs.Failed++
		errmsg := "unknown error"
		if res.Err != nil {
			errmsg = res.Err.Error()
		}
		r.errs = append(r.errs, RunError{
			ChatID:    res.ChatID,
			ChatTitle: res.ChatTitle,
			MessageID: res.ID,
			Err:       errmsg,
		})
	case Cancelled:
		cs.Cancelled++
	}
}

// AddRetry records one rate-limited or transient retry attempt.
func (r *Report) AddRetry() { r.retries++ }

// Summary is the immutable snapshot of a finished (or interrupted) run.
type Summary struct {
	Total     int
	Deleted   int
	Skipped   int
	Failed    int
	Cancelled int
	Retries   int
	Chats     []ChatStats // in discovery order
	Errors    []RunError
}

// Summary produces the final summary.  It is safe to call at any point,
// including after cancellation.
func (r *Report) Summary() *Summary {
	s := &Summary{
		Total:     r.total,
		Deleted:   r.counts[Deleted],
		Skipped:   r.counts[Skipped],
		Failed:    r.counts[Failed],
		Cancelled: r.counts[Cancelled],
		Retries:   r.retries,
		Errors:    append([]RunError(nil), r.errs...),
	}
	for _, id := range r.order {
		s.Chats = append(s.Chats, *r.chats[id])
	}
	return s
}
