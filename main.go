package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/joho/godotenv"
	"github.com/rusq/dlog"
	"github.com/rusq/osenv/v2"
	"github.com/rusq/tracer"
	"github.com/schollz/progressbar/v3"

	"github.com/rusq/sweepmychat/internal/export"
	"github.com/rusq/sweepmychat/internal/mtp"
	"github.com/rusq/sweepmychat/internal/mtp/authflow"
	"github.com/rusq/sweepmychat/internal/report"
	"github.com/rusq/sweepmychat/internal/sweep"
	"github.com/rusq/sweepmychat/internal/tui"
)

const cacheDirName = "sweepmychat"

const AppName = "Sweep My Chat for Telegram"

var (
	version   = "dev"
	builtOn   = "just now"
	gitCommit = ""
	gitRef    = ""

	versionSig = fmt.Sprintf("%s %s (built %s)", AppName, version, builtOn)
)

var _ = godotenv.Load() // load environment variables from .env, if present

const (
	defKeepHours = 24
	defBatchSize = 100
	defRetries   = 3
)

type Params struct {
	CacheDirName string

	ApiID   int
	ApiHash string
	Phone   string

	Reset bool
	List  bool

	Batch chatIDs
	All   bool

	ExportFile string
	Live       bool

	KeepHours     int
	Keywords      keywordList
	CaseSensitive bool
	WholeWords    bool

	BatchSize int
	Rate      rateSpec
	Retries   int
	Execute   bool

	CSVDir string
	MDFile string

	Version bool
	Verbose bool
	Trace   string

	cacheDir string
}

func main() {
	p, err := parseCmdLine()
	if err != nil {
		dlog.Fatal(err)
	}
	if p.Version {
		ver(os.Stdout)
		return
	}

	dlog.SetDebug(p.Verbose)

	if err := p.initCacheDir(cacheDirName); err != nil {
		dlog.Fatalf("failed to create cache directory: %s", err)
	}

	if err := run(context.Background(), p); err != nil {
		dlog.Fatal(err)
	}
}

type chatIDs []int64

func (c *chatIDs) Set(val string) error {
	ss := strings.Split(val, ",")
	var ids = make([]int64, 0, len(ss))

	for _, sID := range ss {
		id, err := strconv.ParseInt(strings.TrimSpace(sID), 10, 64)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	*c = ids
	return nil
}

func (c *chatIDs) String() string {
	return fmt.Sprint([]int64(*c))
}

type keywordList []string

func (k *keywordList) Set(val string) error {
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*k = append(*k, s)
		}
	}
	return nil
}

func (k *keywordList) String() string {
	return strings.Join(*k, ",")
}

// rateSpec is a command line representation of the rate budget, i.e. "20/1m"
// for twenty calls per minute.
type rateSpec struct {
	Calls  int
	Window time.Duration
}

func (r *rateSpec) Set(val string) error {
	calls, window, found := strings.Cut(val, "/")
	if !found {
		return fmt.Errorf("invalid rate %q, expected calls/window, i.e. 20/1m", val)
	}
	n, err := strconv.Atoi(calls)
	if err != nil {
		return fmt.Errorf("invalid rate %q: %w", val, err)
	}
	d, err := time.ParseDuration(window)
	if err != nil {
		return fmt.Errorf("invalid rate %q: %w", val, err)
	}
	if n < 0 || d <= 0 {
		return fmt.Errorf("invalid rate %q: calls and window must be positive", val)
	}
	r.Calls, r.Window = n, d
	return nil
}

func (r *rateSpec) String() string {
	if r.Window == 0 {
		return ""
	}
	return fmt.Sprintf("%d/%s", r.Calls, r.Window)
}

func parseCmdLine() (Params, error) {
	var p = Params{
		CacheDirName: cacheDirName,
		Rate:         rateSpec{Calls: 20, Window: time.Minute},
	}
	{
		flag.IntVar(&p.ApiID, "api-id", osenv.Secret("APP_ID", 0), "Telegram API ID")
		flag.StringVar(&p.ApiHash, "api-token", osenv.Secret("APP_HASH", ""), "Telegram API token")
		flag.StringVar(&p.Phone, "phone", osenv.Value("PHONE", ""), "phone `number` in international format for authentication (optional)")
		flag.BoolVar(&p.Reset, "reset", false, "reset authentication")
		flag.BoolVar(&p.List, "list", false, "list chats and their IDs")
		flag.Var(&p.Batch, "wipe", "batch mode, specify comma separated chat IDs on the command line")
		flag.BoolVar(&p.All, "all", false, "batch mode, sweep every chat")

		flag.StringVar(&p.ExportFile, "export", osenv.Value("EXPORT_FILE", ""), "Telegram Desktop result.json export `file` to use as a message source")
		flag.BoolVar(&p.Live, "live", false, "when an export file is given, also scan the live message history to fill the gaps")

		flag.IntVar(&p.KeepHours, "hours", defKeepHours, "keep messages newer than this many `hours`")
		flag.Var(&p.Keywords, "keyword", "only select messages containing one of these comma separated `keywords` (may be repeated)")
		flag.BoolVar(&p.CaseSensitive, "case", false, "keyword matching is case sensitive")
		flag.BoolVar(&p.WholeWords, "whole-words", true, "keywords match whole words only")

		flag.IntVar(&p.BatchSize, "batch", defBatchSize, "delete at most this many messages per API call")
		flag.Var(&p.Rate, "rate", "rate budget as `calls/window`, i.e. 20/1m (0/1m for unlimited)")
		flag.IntVar(&p.Retries, "retries", defRetries, "retry a failed batch at most this many times")
		flag.BoolVar(&p.Execute, "execute", false, "actually delete messages (default is a dry run)")

		flag.StringVar(&p.CSVDir, "csv", "", "write CSV preview and error reports into this `directory`")
		flag.StringVar(&p.MDFile, "md", "", "write the run summary as markdown into this `file`")

		flag.BoolVar(&p.Version, "v", false, "print version and exit")
		flag.BoolVar(&p.Verbose, "verbose", osenv.Value("DEBUG", "") != "", "verbose output")
		flag.StringVar(&p.Trace, "trace", osenv.Value("TRACE_FILE", ""), "trace `filename`")

		flag.Parse()
	}
	if p.KeepHours < 0 {
		return p, errors.New("hours must not be negative")
	}
	if len(p.Batch) > 0 && p.All {
		return p, errors.New("-wipe and -all are mutually exclusive")
	}
	return p, nil
}

func (p *Params) initCacheDir(appName string) error {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return err
	}
	cacheDir = filepath.Join(cacheDir, appName)
	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		return err
	}
	p.cacheDir = cacheDir
	return nil
}

// needLive reports whether the live client is required for this run.  Reading
// is served by the export alone unless -live is given, but deletion always
// goes through the API.
func (p *Params) needLive() bool {
	return p.Execute || p.Live || p.ExportFile == ""
}

func unlink(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func run(ctx context.Context, p Params) error {
	if p.Trace != "" {
		tr := tracer.New(p.Trace)
		if err := tr.Start(); err != nil {
			return err
		}
		defer tr.End()
	}

	header(os.Stdout)
	if !p.Execute {
		color.New(color.FgYellow).Println("DRY RUN:  no messages will be deleted, run with -execute to delete.")
		fmt.Println()
	}

	pred, err := sweep.NewPredicate(
		time.Now().Add(-time.Duration(p.KeepHours)*time.Hour),
		p.Keywords,
		p.CaseSensitive,
		p.WholeWords,
	)
	if err != nil {
		return err
	}

	var (
		expSrc         sweep.Source
		exportUnusable bool
	)
	if p.ExportFile != "" {
		idx, err := export.Open(p.ExportFile)
		switch {
		case err == nil:
			expSrc = idx
		case errors.Is(err, export.ErrFormat):
			exportUnusable = true
			dlog.Printf("export %s is unusable (%s), falling back to the live history", p.ExportFile, err)
		default:
			return fmt.Errorf("export %s: %w", p.ExportFile, err)
		}
	}

	var (
		wiper   sweep.Wiper = offlineWiper{}
		liveSrc sweep.Source
	)
	if p.needLive() || exportUnusable {
		cl, err := connect(ctx, p)
		if err != nil {
			if expSrc != nil && !p.Execute {
				// dry run can proceed on the export alone
				dlog.Printf("telegram unavailable (%s), continuing with the export only", err)
			} else {
				return err
			}
		} else {
			defer func() {
				if err := cl.Stop(); err != nil {
					dlog.Printf("stop error: %s", err)
				}
			}()
			wiper = cl
			liveSrc = cl
		}
	}
	sources := scanSources(expSrc, liveSrc, p.Live)
	if len(sources) == 0 {
		return sweep.ErrNoSources
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sel := sweep.NewSelector(pred, sources...)
	hook := &resultHook{}
	eng := &engine{
		sel:  sel,
		del:  newDeleter(p, wiper, hook),
		hook: hook,
		pred: pred,
		dry:  !p.Execute,
	}

	done, finished := fakeProgress("Getting chats . . .", 0)
	chats, err := sel.Chats(ctx)
	close(done)
	<-finished
	if err != nil {
		return err
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].Title < chats[j].Title
	})
	dlog.Printf("got %d chats", len(chats))

	if p.List {
		return list(os.Stdout, chats)
	} else if len(p.Batch) > 0 || p.All {
		return batch(ctx, p, eng, chats)
	}
	// run UI
	tva := tui.New(ctx, eng)
	return tva.Run(ctx, chats)
}

func connect(ctx context.Context, p Params) (*mtp.Client, error) {
	sessStorage := session.FileStorage{Path: filepath.Join(p.cacheDir, "session.dat")}
	apiCredsFile := filepath.Join(p.cacheDir, "telegram.dat")
	if p.Reset {
		if err := unlink(sessStorage.Path); err != nil {
			return nil, err
		}
		if err := unlink(apiCredsFile); err != nil {
			return nil, err
		}
	}

	opts := telegram.Options{
		SessionStorage: &sessStorage,
	}

	cl, err := mtp.New(p.ApiID, p.ApiHash,
		mtp.WithAuth(authflow.NewTermAuth(p.Phone)),
		mtp.WithApiCredsFile(apiCredsFile),
		mtp.WithMTPOptions(opts),
		mtp.WithPageRetries(p.Retries),
		mtp.WithDebug(p.Verbose),
	)
	if err != nil {
		return nil, err
	}

	dlog.Println("Connecting to telegram . . .")
	if err := cl.Start(ctx); err != nil {
		return nil, err
	}
	return cl, nil
}

// scanSources orders the scan sources: the export first, then the live
// history when there is no usable export, or when -live merges both.  The
// selector's first-occurrence dedup makes the export suppress its live
// duplicates.
func scanSources(exp, live sweep.Source, mergeLive bool) []sweep.Source {
	var sources []sweep.Source
	if exp != nil {
		sources = append(sources, exp)
	}
	if live != nil && (exp == nil || mergeLive) {
		sources = append(sources, live)
	}
	return sources
}

func newDeleter(p Params, w sweep.Wiper, hook *resultHook) *sweep.Deleter {
	return sweep.NewDeleter(w,
		sweep.WithBudget(sweep.NewBudget(p.Rate.Calls, p.Rate.Window)),
		sweep.WithBatchSize(p.BatchSize),
		sweep.WithMaxRetries(p.Retries),
		sweep.WithDryRun(!p.Execute),
		sweep.WithResultFn(hook.call),
	)
}

// resultHook lets batch mode attach its progress bar to the shared deleter
// after construction.  The run has exactly one deleter and one rate budget.
type resultHook struct {
	fn func(sweep.Result)
}

func (h *resultHook) call(res sweep.Result) {
	if h.fn != nil {
		h.fn(res)
	}
}

// offlineWiper backs dry runs that never reach the API.
type offlineWiper struct{}

func (offlineWiper) DeleteMessages(context.Context, int64, []int64) (int, error) {
	return 0, errors.New("not connected to telegram")
}

// engine glues the selector and the deleter together for the terminal UI and
// the batch mode.
type engine struct {
	sel  *sweep.Selector
	del  *sweep.Deleter
	hook *resultHook
	pred *sweep.Predicate
	dry  bool
}

func (e *engine) Scan(ctx context.Context, chat sweep.Chat, progress func(n int)) ([]sweep.Candidate, error) {
	var cands []sweep.Candidate
	err := e.sel.Chat(ctx, chat, func(c sweep.Candidate) error {
		cands = append(cands, c)
		if progress != nil {
			progress(1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cands, nil
}

func (e *engine) Delete(ctx context.Context, cands []sweep.Candidate) *sweep.Summary {
	return e.del.Run(ctx, cands)
}

func (e *engine) FilterDescription() string {
	return e.pred.Describe()
}

func (e *engine) DryRun() bool {
	return e.dry
}

func list(w io.Writer, chats []sweep.Chat) error {
	for _, chat := range chats {
		fmt.Fprintf(w, "%10d\t%s\t%s\n", chat.ID, chat.Type, chat.Title)
	}
	return nil
}

func batch(ctx context.Context, p Params, eng *engine, chats []sweep.Chat) error {
	targets := chats
	if len(p.Batch) > 0 {
		byID := make(map[int64]sweep.Chat, len(chats))
		for _, chat := range chats {
			byID[chat.ID] = chat
		}
		targets = targets[:0:0]
		for _, id := range p.Batch {
			chat, ok := byID[id]
			if !ok {
				return fmt.Errorf("chat %d not found in any source", id)
			}
			targets = append(targets, chat)
		}
	}

	var cands []sweep.Candidate
	for _, chat := range targets {
		done, finished := fakeProgress(fmt.Sprintf("Scanning %q . . .", chat.Title), 0)
		found, err := eng.Scan(ctx, chat, nil)
		close(done)
		<-finished
		if err != nil {
			return err
		}
		dlog.Printf("%s: %d messages match", chat, len(found))
		cands = append(cands, found...)
	}

	if p.CSVDir != "" {
		name, err := report.SaveCandidates(p.CSVDir, cands)
		if err != nil {
			return err
		}
		dlog.Printf("preview saved to %s", name)
	}
	if len(cands) == 0 {
		fmt.Println("Nothing to delete.")
		return nil
	}

	sum := deleteWithProgress(ctx, p, eng, cands)

	report.Console(os.Stdout, sum)
	if p.CSVDir != "" && sum.Failed > 0 {
		name, err := report.SaveErrors(p.CSVDir, sum)
		if err != nil {
			return err
		}
		dlog.Printf("error report saved to %s", name)
	}
	if p.MDFile != "" {
		if err := saveMarkdown(p.MDFile, sum); err != nil {
			return err
		}
	}
	if sum.Failed > 0 {
		return fmt.Errorf("completed with %d failed messages", sum.Failed)
	}
	return nil
}

// fakeProgress starts a fake spinner and returns a channel that must be closed
// once the operation completes. interval is interval between iterations. If not
// set, will default to 50ms.
func fakeProgress(title string, interval time.Duration) (chan<- struct{}, <-chan struct{}) {
	if interval == 0 {
		interval = 50 * time.Millisecond
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		bar := progressbar.NewOptions(
			-1,
			progressbar.OptionSetDescription(title),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionSpinnerType(9),
		)
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-done:
				bar.Finish()
				fmt.Println()
				close(finished)
				return
			case <-t.C:
				bar.Add(1)
			}
		}
	}()
	return done, finished
}

func deleteWithProgress(ctx context.Context, p Params, eng *engine, cands []sweep.Candidate) *sweep.Summary {
	verb := "Deleting"
	if !p.Execute {
		verb = "Simulating"
	}
	bar := progressbar.NewOptions(len(cands),
		progressbar.OptionSetDescription(verb+" . . ."),
		progressbar.OptionSetPredictTime(false),
	)
	eng.hook.fn = func(sweep.Result) { bar.Add(1) }
	defer func() { eng.hook.fn = nil }()

	sum := eng.Delete(ctx, cands)
	bar.Finish()
	fmt.Println()
	return sum
}

func saveMarkdown(path string, sum *sweep.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return report.Markdown(f, sum)
}

func header(w io.Writer) {
	fmt.Fprintf(w,
		"%s\n%s\n", versionSig, strings.Repeat("-", len(versionSig)),
	)
	fmt.Fprintln(w)
}

func ver(w io.Writer) {
	header(w)
	if gitCommit != "" {
		fmt.Fprintf(w, "commit: %s ref: %s\n", gitCommit, gitRef)
	}
}
