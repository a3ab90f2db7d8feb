package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blackdown/video-downloader/internal/domain"
)

// Notifier receives queue lifecycle notifications. Satisfied by
// infrastructure.NotificationService.
type Notifier interface {
	NotifyDownloadQueued(url string)
	NotifyDownloadStarted(url string, source domain.Source)
	NotifyDownloadCompleted(url string, source domain.Source)
	NotifyDownloadFailed(url string, source domain.Source, err error)
	NotifyQueueEmpty()
}

// SchedulerConfig bounds the scheduler's behavior
type SchedulerConfig struct {
	// MaxDownloading caps simultaneously downloading jobs. Analysis
	// workers are not counted and run concurrently.
	MaxDownloading int
	// PollInterval is how often the supervisor drains the event queue
	PollInterval time.Duration
}

// Scheduler owns the job collection and is the only component that
// mutates Job state. Workers report through the event channel; the
// supervisor goroutine drains it on a fixed interval, promotes Ready
// jobs FIFO under the concurrency cap, and mirrors transitions to the
// repository.
type Scheduler struct {
	cfg      SchedulerConfig
	analyzer Analyzer
	runner   Runner
	repo     domain.JobRepository
	notifier Notifier
	logger   *zap.Logger

	mu          sync.RWMutex
	jobs        map[string]*domain.Job
	order       []string
	workers     map[string]*worker
	downloading int
	paused      bool

	events   chan domain.Event
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  bool
}

// NewScheduler creates a scheduler. repo and notifier may be nil.
func NewScheduler(cfg SchedulerConfig, analyzer Analyzer, runner Runner, repo domain.JobRepository, notifier Notifier, logger *zap.Logger) *Scheduler {
	if cfg.MaxDownloading < 1 {
		cfg.MaxDownloading = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	return &Scheduler{
		cfg:      cfg,
		analyzer: analyzer,
		runner:   runner,
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		jobs:     make(map[string]*domain.Job),
		workers:  make(map[string]*worker),
		events:   make(chan domain.Event, 256),
		stopChan: make(chan struct{}),
	}
}

// Start launches the supervisor goroutine
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.supervise(ctx)
	return nil
}

// Stop cancels all workers and stops the supervisor
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for _, w := range s.workers {
		w.cancel()
	}
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning reports whether the supervisor goroutine is active
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Add submits a URL: the job is created Queued and its analysis worker
// starts immediately
func (s *Scheduler) Add(url string, opts domain.DownloadOptions) (*domain.Job, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	job := domain.NewJob(url)

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	s.spawnWorkerLocked(job, opts)
	snap := snapshot(job)
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Create(snap); err != nil {
			s.logger.Warn("failed to persist job", zap.String("id", job.ID), zap.Error(err))
		}
	}

	s.logger.Info("job added", zap.String("id", snap.ID), zap.String("url", url))
	if s.notifier != nil {
		s.notifier.NotifyDownloadQueued(url)
	}
	return snap, nil
}

// AddBatch submits multiple URLs preserving their order
func (s *Scheduler) AddBatch(urls []string, opts domain.DownloadOptions) ([]*domain.Job, error) {
	jobs := make([]*domain.Job, 0, len(urls))
	for _, url := range urls {
		job, err := s.Add(url, opts)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Get returns a snapshot of a job, or nil when unknown
func (s *Scheduler) Get(id string) *domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if job, ok := s.jobs[id]; ok {
		return snapshot(job)
	}
	return nil
}

// List returns snapshots of all jobs in submission order
func (s *Scheduler) List() []*domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Job, 0, len(s.order))
	for _, id := range s.order {
		if job, ok := s.jobs[id]; ok {
			out = append(out, snapshot(job))
		}
	}
	return out
}

// Stats computes live queue statistics
func (s *Scheduler) Stats() domain.JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st domain.JobStats
	for _, job := range s.jobs {
		st.Total++
		switch job.Status {
		case domain.StatusQueued:
			st.Queued++
		case domain.StatusAnalyzing:
			st.Analyzing++
		case domain.StatusReady:
			st.Ready++
		case domain.StatusBlocked:
			st.Blocked++
		case domain.StatusDownloading:
			st.Downloading++
		case domain.StatusCompleted:
			st.Completed++
		case domain.StatusError:
			st.Error++
		case domain.StatusCancelled:
			st.Cancelled++
		}
	}
	return st
}

// Cancel requests cancellation of a job. The transition to Cancelled
// lands when the worker confirms its process stopped; jobs without an
// active worker are cancelled immediately.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job not found: %s", id)
	}
	if job.IsTerminal() {
		s.mu.Unlock()
		return fmt.Errorf("job already in terminal state: %s", job.Status)
	}

	if w, ok := s.workers[id]; ok {
		w.cancel()
		s.mu.Unlock()
		return nil
	}

	job.MarkCancelled()
	snap := snapshot(job)
	s.mu.Unlock()
	s.persist(snap)
	return nil
}

// Requeue resets a blocked, errored or cancelled job back to Queued and
// starts a fresh analysis worker. A non-empty password replaces the one
// used on the previous attempt.
func (s *Scheduler) Requeue(id string, opts domain.DownloadOptions) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job not found: %s", id)
	}
	switch job.Status {
	case domain.StatusBlocked, domain.StatusError, domain.StatusCancelled:
	default:
		s.mu.Unlock()
		return fmt.Errorf("job cannot be requeued from state: %s", job.Status)
	}
	if _, active := s.workers[id]; active {
		s.mu.Unlock()
		return fmt.Errorf("job still has an active worker: %s", id)
	}

	// Scraping may have rewritten the URL; a requeue analyzes the
	// original submission again
	url := job.URL
	if job.OriginalURL != "" {
		url = job.OriginalURL
		job.URL = url
		job.OriginalURL = ""
	}
	job.Requeue()
	s.spawnWorkerLocked(job, opts)
	snap := snapshot(job)
	s.mu.Unlock()

	s.persist(snap)
	s.logger.Info("job requeued", zap.String("id", id))
	return nil
}

// Remove deletes a job from the queue, cancelling its worker first
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job not found: %s", id)
	}
	if w, ok := s.workers[id]; ok {
		w.cancel()
		delete(s.workers, id)
	}
	if job.Status == domain.StatusDownloading {
		s.downloading--
	}
	delete(s.jobs, id)
	s.removeFromOrderLocked(id)
	promoted := s.promoteLocked()
	s.mu.Unlock()
	s.notifyStarted(promoted)

	if s.repo != nil {
		if err := s.repo.Delete(id); err != nil {
			s.logger.Warn("failed to delete job record", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

// ClearCompleted removes all completed, errored and cancelled jobs
func (s *Scheduler) ClearCompleted() int {
	s.mu.Lock()
	var removed []string
	for id, job := range s.jobs {
		if job.IsTerminal() {
			removed = append(removed, id)
			delete(s.jobs, id)
		}
	}
	for _, id := range removed {
		s.removeFromOrderLocked(id)
	}
	s.mu.Unlock()

	if s.repo != nil && len(removed) > 0 {
		if _, err := s.repo.DeleteTerminal(); err != nil {
			s.logger.Warn("failed to clear terminal job records", zap.Error(err))
		}
	}
	return len(removed)
}

// Pause stops new promotions; the in-flight download is not interrupted
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.logger.Info("queue paused")
}

// Resume re-enables promotions and immediately fills free slots
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	promoted := s.promoteLocked()
	s.mu.Unlock()
	s.notifyStarted(promoted)
	s.logger.Info("queue resumed")
}

// IsPaused reports whether promotions are suspended
func (s *Scheduler) IsPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// supervise drains worker events on a fixed interval. This goroutine is
// the sole mutator of Job state once a worker is running.
func (s *Scheduler) supervise(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.drainEvents()
		}
	}
}

// drainEvents applies every pending event, then runs one promotion pass
// over the whole queue. Promoting only after the drain keeps jobs that
// became Ready in the same batch starting in submission order, no matter
// which worker's event landed in the channel first.
func (s *Scheduler) drainEvents() {
	sawTerminal := false
	for {
		select {
		case ev := <-s.events:
			if s.handleEvent(ev) {
				sawTerminal = true
			}
		default:
			s.mu.Lock()
			promoted := s.promoteLocked()
			idle := sawTerminal && !s.hasActiveLocked()
			s.mu.Unlock()

			s.notifyStarted(promoted)
			if idle && s.notifier != nil {
				s.notifier.NotifyQueueEmpty()
			}
			return
		}
	}
}

// hasActiveLocked reports whether any job still needs the scheduler's
// attention. Blocked jobs wait on user action and do not count. Caller
// holds s.mu.
func (s *Scheduler) hasActiveLocked() bool {
	for _, job := range s.jobs {
		switch job.Status {
		case domain.StatusQueued, domain.StatusAnalyzing, domain.StatusReady, domain.StatusDownloading:
			return true
		}
	}
	return false
}

func (s *Scheduler) notifyStarted(promoted []*domain.Job) {
	if s.notifier == nil {
		return
	}
	for _, job := range promoted {
		s.notifier.NotifyDownloadStarted(job.URL, job.Source)
	}
}

// handleEvent applies one worker event and reports whether the job
// reached a terminal state
func (s *Scheduler) handleEvent(ev domain.Event) bool {
	s.mu.Lock()
	job, ok := s.jobs[ev.JobID]
	if !ok {
		// Removed while the worker was still running
		s.mu.Unlock()
		return false
	}

	var toPersist *domain.Job
	var notifyCompleted, notifyFailed bool

	switch ev.Kind {
	case domain.EventAnalyzing:
		job.Status = domain.StatusAnalyzing
		job.UpdatedAt = time.Now()
		toPersist = job

	case domain.EventAnalyzed:
		job.ApplyClassification(*ev.Classification, ev.Access, ev.ResolvedURL)
		job.Status = domain.StatusReady
		toPersist = job

	case domain.EventBlocked:
		if ev.Classification != nil {
			job.ApplyClassification(*ev.Classification, ev.Access, ev.ResolvedURL)
		}
		job.MarkBlocked(ev.Message)
		delete(s.workers, job.ID)
		toPersist = job

	case domain.EventProgress:
		job.Progress = ev.Progress.Percent
		job.Speed = ev.Progress.Speed
		job.ETA = ev.Progress.ETA
		job.Stage = ev.Progress.Stage
		if ev.Progress.Destination != "" {
			job.FilePath = ev.Progress.Destination
		}
		job.UpdatedAt = time.Now()

	case domain.EventCompleted:
		s.releaseSlotLocked(job)
		filePath := ev.FilePath
		if filePath == "" {
			filePath = job.FilePath
		}
		job.MarkCompleted(filePath)
		delete(s.workers, job.ID)
		toPersist = job
		notifyCompleted = true

	case domain.EventFailed:
		s.releaseSlotLocked(job)
		job.MarkError(ev.Message, ev.Tail)
		delete(s.workers, job.ID)
		toPersist = job
		notifyFailed = true

	case domain.EventCancelled:
		s.releaseSlotLocked(job)
		job.MarkCancelled()
		delete(s.workers, job.ID)
		toPersist = job
	}

	if toPersist != nil {
		toPersist = snapshot(toPersist)
	}
	url, source, message := job.URL, job.Source, job.ErrorMessage
	terminal := job.IsTerminal()
	s.mu.Unlock()

	if toPersist != nil {
		s.persist(toPersist)
	}
	if s.notifier != nil {
		if notifyCompleted {
			s.notifier.NotifyDownloadCompleted(url, source)
		}
		if notifyFailed {
			s.notifier.NotifyDownloadFailed(url, source, fmt.Errorf("%s", message))
		}
	}
	return terminal
}

// promoteLocked starts the next Ready jobs in submission order while
// capacity remains, returning snapshots of the jobs it started so the
// caller can notify outside the lock. Caller holds s.mu.
func (s *Scheduler) promoteLocked() []*domain.Job {
	if s.paused {
		return nil
	}
	var started []*domain.Job
	for s.downloading < s.cfg.MaxDownloading {
		promoted := false
		for _, id := range s.order {
			job, ok := s.jobs[id]
			if !ok || job.Status != domain.StatusReady {
				continue
			}
			w, ok := s.workers[id]
			if !ok {
				continue
			}
			job.MarkDownloading()
			s.downloading++
			close(w.startCh)
			s.logger.Info("job promoted to downloading", zap.String("id", id))
			started = append(started, snapshot(job))
			promoted = true
			break
		}
		if !promoted {
			break
		}
	}
	return started
}

// releaseSlotLocked frees the concurrency slot held by a downloading
// job. Caller holds s.mu.
func (s *Scheduler) releaseSlotLocked(job *domain.Job) {
	if job.Status == domain.StatusDownloading && s.downloading > 0 {
		s.downloading--
	}
}

func (s *Scheduler) spawnWorkerLocked(job *domain.Job, opts domain.DownloadOptions) {
	w := newWorker(job.ID, job.URL, opts, s.analyzer, s.runner, s.events)
	s.workers[job.ID] = w
	go w.run()
}

func (s *Scheduler) removeFromOrderLocked(id string) {
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) persist(job *domain.Job) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Update(job); err != nil {
		s.logger.Warn("failed to persist job state",
			zap.String("id", job.ID),
			zap.Error(err))
	}
}

// snapshot copies a job so callers never share the scheduler's records
func snapshot(job *domain.Job) *domain.Job {
	c := *job
	return &c
}
