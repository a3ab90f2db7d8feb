package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/blackdown/video-downloader/internal/domain"
)

// Runner executes a download plan, reporting progress through the
// callback and returning the retained output tail. Satisfied by
// infrastructure.YTDLPRunner; faked in scheduler tests.
type Runner interface {
	Run(ctx context.Context, p domain.DownloadPlan, onProgress func(domain.ProgressUpdate)) (string, error)
}

// worker drives one job through analyze-then-download. Workers never
// touch Job records: every state change is reported as an Event and
// applied by the scheduler.
type worker struct {
	jobID    string
	url      string
	opts     domain.DownloadOptions
	analyzer Analyzer
	runner   Runner
	events   chan<- domain.Event

	// startCh is closed by the scheduler when the job is promoted from
	// Ready to Downloading
	startCh chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

func newWorker(jobID, url string, opts domain.DownloadOptions, analyzer Analyzer, runner Runner, events chan<- domain.Event) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &worker{
		jobID:    jobID,
		url:      url,
		opts:     opts,
		analyzer: analyzer,
		runner:   runner,
		events:   events,
		startCh:  make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// run is the worker goroutine. All failures are converted into events
// at this boundary; the scheduler never sees a raw panic or error.
func (w *worker) run() {
	defer func() {
		if r := recover(); r != nil {
			w.emit(domain.Event{
				Kind:    domain.EventFailed,
				JobID:   w.jobID,
				Message: fmt.Sprintf("internal error: %v", r),
			})
		}
	}()

	w.emit(domain.Event{Kind: domain.EventAnalyzing, JobID: w.jobID})

	res, err := w.analyzer.Analyze(w.ctx, w.url, w.opts)
	if w.cancelled() {
		w.emit(domain.Event{Kind: domain.EventCancelled, JobID: w.jobID})
		return
	}
	if err != nil {
		w.emit(domain.Event{Kind: domain.EventFailed, JobID: w.jobID, Message: err.Error()})
		return
	}

	if res.Access == domain.AccessPasswordProtected && w.opts.Password == "" {
		w.emit(domain.Event{
			Kind:           domain.EventBlocked,
			JobID:          w.jobID,
			Classification: &res.Classification,
			Access:         res.Access,
			ResolvedURL:    res.ResolvedURL,
			Message:        "video is password-protected: supply a password and requeue",
		})
		return
	}

	w.emit(domain.Event{
		Kind:           domain.EventAnalyzed,
		JobID:          w.jobID,
		Classification: &res.Classification,
		Access:         res.Access,
		ResolvedURL:    res.ResolvedURL,
		Plan:           &res.Plan,
	})

	// Ready: wait for the scheduler to promote this job
	select {
	case <-w.startCh:
	case <-w.ctx.Done():
		w.emit(domain.Event{Kind: domain.EventCancelled, JobID: w.jobID})
		return
	}

	var destination string
	tail, err := w.runner.Run(w.ctx, res.Plan, func(p domain.ProgressUpdate) {
		if p.Destination != "" {
			destination = p.Destination
		}
		w.emit(domain.Event{Kind: domain.EventProgress, JobID: w.jobID, Progress: &p})
	})

	switch {
	case w.cancelled():
		w.emit(domain.Event{Kind: domain.EventCancelled, JobID: w.jobID})
	case err != nil:
		w.emit(domain.Event{
			Kind:    domain.EventFailed,
			JobID:   w.jobID,
			Message: downloadFailureMessage(err),
			Tail:    tail,
		})
	default:
		w.emit(domain.Event{
			Kind:     domain.EventCompleted,
			JobID:    w.jobID,
			FilePath: destination,
		})
	}
}

func (w *worker) cancelled() bool {
	return w.ctx.Err() != nil
}

func (w *worker) emit(ev domain.Event) {
	w.events <- ev
}

// downloadFailureMessage keeps the user-visible cause to one line
func downloadFailureMessage(err error) string {
	var exitErr interface{ ExitCode() int }
	if errors.As(err, &exitErr) {
		return fmt.Sprintf("download failed (exit code %d)", exitErr.ExitCode())
	}
	return err.Error()
}
