package sweep

import (
	"context"
	"errors"
	"runtime/trace"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/looplab/fsm"
	"github.com/rusq/dlog"
)

// Wiper issues one batch delete call against the remote API.  It returns the
// number of messages the API actually removed: ids that were already gone do
// not count towards it.
type Wiper interface {
	DeleteMessages(ctx context.Context, chatID int64, ids []int64) (affected int, err error)
}

const (
	defBatchSize  = 100
	defMaxRetries = 3

	// backoff for transient faults without a server-specified wait.  The cap
	// is a small multiple of the usual 10-12s inter-batch delay telegram
	// imposes under load.
	defBackoffInitial = 2 * time.Second
	defBackoffMax     = 30 * time.Second
)

// per-chat deletion states.
const (
	stPending    = "pending"
	stInProgress = "in_progress"
	stDone       = "done"
	stAborted    = "aborted"

	evStart  = "start"
	evFinish = "finish"
	evAbort  = "abort"
)

var (
	errAlreadyGone = errors.New("already deleted")
	errChatAborted = errors.New("chat aborted")
	errDryRun      = errors.New("dry run")
	errCancelled   = errors.New("run cancelled")
)

// Deleter executes deletions for a candidate set under a global rate budget.
// It is driven by a single loop: no two delete calls are ever in flight at
// once, and the budget and per-chat state machines have no other writers.
type Deleter struct {
	wiper      Wiper
	budget     *Budget
	batchSize  int
	maxRetries int
	dryRun     bool
	onResult   func(Result)

	backoffInitial time.Duration
	backoffMax     time.Duration
}

type DeleterOption func(*Deleter)

// WithBudget sets the global rate budget.  Default is unlimited.
func WithBudget(b *Budget) DeleterOption {
	return func(d *Deleter) {
		if b != nil {
			d.budget = b
		}
	}
}

// WithBatchSize bounds the number of messages per delete call.
func WithBatchSize(n int) DeleterOption {
	return func(d *Deleter) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithMaxRetries bounds retry attempts per batch for retryable faults.
func WithMaxRetries(n int) DeleterOption {
	return func(d *Deleter) {
		if n >= 0 {
			d.maxRetries = n
		}
	}
}

// WithDryRun makes the deleter classify every candidate as skipped without
// issuing any API calls.
func WithDryRun(enabled bool) DeleterOption {
	return func(d *Deleter) {
		d.dryRun = enabled
	}
}

// WithResultFn registers a callback invoked for every candidate outcome, in
// order.
func WithResultFn(fn func(Result)) DeleterOption {
	return func(d *Deleter) {
		d.onResult = fn
	}
}

// WithBackoff overrides the transient-fault backoff bounds.
func WithBackoff(initial, max time.Duration) DeleterOption {
	return func(d *Deleter) {
		if initial > 0 {
			d.backoffInitial = initial
		}
		if max > 0 {
			d.backoffMax = max
		}
	}
}

func NewDeleter(w Wiper, opts ...DeleterOption) *Deleter {
	d := &Deleter{
		wiper:          w,
		budget:         NewBudget(0, 0),
		batchSize:      defBatchSize,
		maxRetries:     defMaxRetries,
		backoffInitial: defBackoffInitial,
		backoffMax:     defBackoffMax,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type chatGroup struct {
	chat  Chat
	cands []Candidate
}

// Run deletes all candidates, grouped by chat in discovery order, and returns
// the run summary.  The summary is always produced, even when the run is
// cancelled or partially failed.
func (d *Deleter) Run(ctx context.Context, cands []Candidate) *Summary {
	ctx, task := trace.NewTask(ctx, "sweep.Delete")
	defer task.End()

	rep := NewReport()
	groups := groupByChat(cands)
	for i, g := range groups {
		if ctx.Err() != nil {
			// flush everything not yet attempted, never leave it pending
			// silently.
			for _, rest := range groups[i:] {
				d.markAll(rep, rest.cands, Cancelled, errCancelled)
			}
			break
		}
		if !d.wipeChat(ctx, g, rep) {
			// wipeChat has flushed its own chat already.
			for _, rest := range groups[i+1:] {
				d.markAll(rep, rest.cands, Cancelled, errCancelled)
			}
			break
		}
	}
	return rep.Summary()
}

// wipeChat processes one chat's batches.  It returns false only on run-level
// cancellation; per-chat faults are absorbed into the report.
func (d *Deleter) wipeChat(ctx context.Context, g chatGroup, rep *Report) bool {
	m := newChatFSM(g.chat)
	if err := m.Event(ctx, evStart); err != nil {
		dlog.Debugf("fsm: %s", err)
	}

	batches := splitBy(d.batchSize, g.cands, func(i int) Candidate { return g.cands[i] })
	for bi, batch := range batches {
		if ctx.Err() != nil {
			for _, rest := range batches[bi:] {
				d.markAll(rep, rest, Cancelled, errCancelled)
			}
			return false
		}
		if m.Current() == stAborted {
			// never attempted, the chat is beyond repair.
			d.markAll(rep, batch, Skipped, errChatAborted)
			continue
		}
		if d.dryRun {
			d.markAll(rep, batch, Skipped, errDryRun)
			continue
		}
		switch d.attempt(ctx, g.chat, batch, rep) {
		case attemptOK, attemptFailed:
			// recorded, carry on with the next batch.
		case attemptAborted:
			if err := m.Event(ctx, evAbort); err != nil {
				dlog.Debugf("fsm: %s", err)
			}
		case attemptCancelled:
			d.markAll(rep, batch, Cancelled, errCancelled)
			for _, rest := range batches[bi+1:] {
				d.markAll(rep, rest, Cancelled, errCancelled)
			}
			return false
		}
	}
	if m.Current() != stAborted {
		if err := m.Event(ctx, evFinish); err != nil {
			dlog.Debugf("fsm: %s", err)
		}
	}
	return true
}

type attemptResult uint8

const (
	attemptOK attemptResult = iota
	attemptFailed
	attemptAborted
	attemptCancelled
)

// attempt issues the delete call for one batch, retrying retryable faults
// with backoff up to the attempt ceiling.  The same batch is retried whole.
func (d *Deleter) attempt(ctx context.Context, chat Chat, batch []Candidate, rep *Report) attemptResult {
	ids := make([]int64, len(batch))
	for i := range batch {
		ids[i] = batch[i].ID
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.backoffInitial
	bo.MaxInterval = d.backoffMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	for attempt := 0; ; attempt++ {
		if err := d.budget.Acquire(ctx); err != nil {
			return attemptCancelled
		}
		affected, err := d.wiper.DeleteMessages(ctx, chat.ID, ids)
		if err == nil {
			d.recordDeleted(rep, batch, affected)
			return attemptOK
		}
		if ctx.Err() != nil {
			return attemptCancelled
		}
		if isAuth(err) {
			dlog.Printf("ABORTED: chat %d (%s): %s", chat.ID, chat, err)
			d.markAll(rep, batch, Failed, err)
			return attemptAborted
		}
		wait, ok := retryable(err)
		if !ok || attempt >= d.maxRetries {
			dlog.Printf("FAILED: chat %d (%s): batch of %d: %s", chat.ID, chat, len(batch), err)
			d.markAll(rep, batch, Failed, err)
			return attemptFailed
		}
		if wait <= 0 {
			if wait = bo.NextBackOff(); wait == backoff.Stop {
				wait = d.backoffMax
			}
		}
		rep.AddRetry()
		dlog.Debugf("retryable fault on chat %d, attempt %d/%d, waiting %s: %s",
			chat.ID, attempt+1, d.maxRetries, wait, err)
		if err := sleepCtx(ctx, wait); err != nil {
			return attemptCancelled
		}
	}
}

// recordDeleted classifies one successfully submitted batch.  The API reports
// only how many ids it removed, not which, so ids that were already absent
// are attributed to the tail of the batch; the counts are exact.
func (d *Deleter) recordDeleted(rep *Report, batch []Candidate, affected int) {
	if affected > len(batch) {
		affected = len(batch)
	}
	if affected < 0 {
		affected = 0
	}
	for i, c := range batch {
		if i < affected {
			d.record(rep, Result{Candidate: c, Outcome: Deleted})
		} else {
			d.record(rep, Result{Candidate: c, Outcome: Skipped, Err: errAlreadyGone})
		}
	}
}

func (d *Deleter) markAll(rep *Report, batch []Candidate, o Outcome, err error) {
	for _, c := range batch {
		d.record(rep, Result{Candidate: c, Outcome: o, Err: err})
	}
}

func (d *Deleter) record(rep *Report, res Result) {
	rep.Add(res)
	if d.onResult != nil {
		d.onResult(res)
	}
}

func newChatFSM(chat Chat) *fsm.FSM {
	return fsm.NewFSM(
		stPending,
		fsm.Events{
			{Name: evStart, Src: []string{stPending}, Dst: stInProgress},
			{Name: evFinish, Src: []string{stInProgress}, Dst: stDone},
			{Name: evAbort, Src: []string{stInProgress}, Dst: stAborted},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				dlog.Debugf("chat %d: %q -> %q", chat.ID, e.Src, e.Dst)
			},
		},
	)
}

func groupByChat(cands []Candidate) []chatGroup {
	var (
		order  []int64
		groups = make(map[int64]*chatGroup)
	)
	for _, c := range cands {
		g, ok := groups[c.ChatID]
		if !ok {
			g = &chatGroup{chat: Chat{ID: c.ChatID, Title: c.ChatTitle}}
			groups[c.ChatID] = g
			order = append(order, c.ChatID)
		}
		g.cands = append(g.cands, c)
	}
	var out []chatGroup
	for _, id := range order {
		out = append(out, *groups[id])
	}
	return out
}

// splitBy splits the input of M items to X chunks of `n` items.  For each
// element of input, fn is called, that should return the value.
func splitBy[T, S any](n int, input []S, fn func(i int) T) [][]T {
	var out [][]T = make([][]T, 0, len(input)/n)
	var chunk []T
	for i := range input {
		if i > 0 && i%n == 0 {
			out = append(out, chunk)
			chunk = make([]T, 0, n)
		}
		chunk = append(chunk, fn(i))
	}
	if len(chunk) > 0 {
		out = append(out, chunk)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
