package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blackdown/video-downloader/internal/domain"
)

// fakeAnalyzer returns canned results keyed by URL
type fakeAnalyzer struct {
	mu     sync.Mutex
	access map[string]domain.AccessPolicy
	errs   map[string]error
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		access: make(map[string]domain.AccessPolicy),
		errs:   make(map[string]error),
	}
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, url string, opts domain.DownloadOptions) (AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return AnalysisResult{}, err
	}
	access := domain.AccessPublic
	if a, ok := f.access[url]; ok {
		access = a
	}
	c := domain.ClassificationResult{Source: domain.SourceVimeo, VideoID: "123456789"}
	return AnalysisResult{
		Classification: c,
		Access:         access,
		ResolvedURL:    url,
		Plan:           domain.DownloadPlan{Source: c.Source, URL: url, Args: []string{"-N", "16"}},
	}, nil
}

// fakeRunner blocks each download on a gate so tests control completion
// order, and records the peak number of concurrent runs
type fakeRunner struct {
	mu        sync.Mutex
	active    int
	maxActive int
	started   []string
	gate      chan struct{}
	err       error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{gate: make(chan struct{})}
}

func (f *fakeRunner) Run(ctx context.Context, p domain.DownloadPlan, onProgress func(domain.ProgressUpdate)) (string, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.started = append(f.started, p.URL)
	gate := f.gate
	err := f.err
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	onProgress(domain.ProgressUpdate{Percent: 50, Speed: "5.0 MiB/s", Stage: "Downloading"})

	select {
	case <-gate:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if err != nil {
		return "yt-dlp output tail", err
	}
	onProgress(domain.ProgressUpdate{Percent: 100, Destination: "/downloads/video.mp4"})
	return "", nil
}

func (f *fakeRunner) releaseOne() { f.gate <- struct{}{} }

func (f *fakeRunner) releaseAll() {
	f.mu.Lock()
	close(f.gate)
	f.mu.Unlock()
}

func (f *fakeRunner) startOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.started))
	copy(out, f.started)
	return out
}

// fakeNotifier records lifecycle notifications in call order
type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeNotifier) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeNotifier) NotifyDownloadQueued(url string)                          { f.record("queued") }
func (f *fakeNotifier) NotifyDownloadStarted(url string, source domain.Source)   { f.record("started") }
func (f *fakeNotifier) NotifyDownloadCompleted(url string, source domain.Source) { f.record("completed") }
func (f *fakeNotifier) NotifyDownloadFailed(url string, source domain.Source, err error) {
	f.record("failed")
}
func (f *fakeNotifier) NotifyQueueEmpty() { f.record("empty") }

func (f *fakeNotifier) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func newTestScheduler(t *testing.T, maxDownloading int, analyzer Analyzer, runner Runner) *Scheduler {
	t.Helper()
	s := NewScheduler(SchedulerConfig{
		MaxDownloading: maxDownloading,
		PollInterval:   5 * time.Millisecond,
	}, analyzer, runner, nil, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() {
		s.Stop()
		cancel()
	})
	return s
}

func waitForStatus(t *testing.T, s *Scheduler, id string, status domain.JobStatus) *domain.Job {
	t.Helper()
	var job *domain.Job
	require.Eventually(t, func() bool {
		job = s.Get(id)
		return job != nil && job.Status == status
	}, 2*time.Second, 5*time.Millisecond, "job never reached %s", status)
	return job
}

func TestScheduler_AddEmptyURL(t *testing.T) {
	s := newTestScheduler(t, 1, newFakeAnalyzer(), newFakeRunner())
	_, err := s.Add("   ", domain.DownloadOptions{})
	assert.Error(t, err)
}

func TestScheduler_CompletesJob(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, 1, newFakeAnalyzer(), runner)

	job, err := s.Add("https://vimeo.com/123456789", domain.DownloadOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, job.Status)

	waitForStatus(t, s, job.ID, domain.StatusDownloading)
	runner.releaseAll()

	done := waitForStatus(t, s, job.ID, domain.StatusCompleted)
	assert.Equal(t, float64(100), done.Progress)
	assert.Equal(t, "/downloads/video.mp4", done.FilePath)
	assert.Equal(t, domain.SourceVimeo, done.Source)
	assert.NotNil(t, done.CompletedAt)
}

func TestScheduler_ConcurrencyCapIsHonored(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, 1, newFakeAnalyzer(), runner)

	urls := []string{
		"https://vimeo.com/111111111",
		"https://vimeo.com/222222222",
		"https://vimeo.com/333333333",
	}
	jobs, err := s.AddBatch(urls, domain.DownloadOptions{})
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	// Only one job may hold the download slot; the rest wait in Ready
	waitForStatus(t, s, jobs[0].ID, domain.StatusDownloading)
	waitForStatus(t, s, jobs[1].ID, domain.StatusReady)
	waitForStatus(t, s, jobs[2].ID, domain.StatusReady)

	runner.releaseOne()
	waitForStatus(t, s, jobs[0].ID, domain.StatusCompleted)
	waitForStatus(t, s, jobs[1].ID, domain.StatusDownloading)

	runner.releaseOne()
	waitForStatus(t, s, jobs[1].ID, domain.StatusCompleted)
	waitForStatus(t, s, jobs[2].ID, domain.StatusDownloading)

	runner.releaseOne()
	waitForStatus(t, s, jobs[2].ID, domain.StatusCompleted)

	runner.mu.Lock()
	maxActive := runner.maxActive
	runner.mu.Unlock()
	assert.Equal(t, 1, maxActive)
	assert.Equal(t, urls, runner.startOrder(), "promotion must follow submission order")
}

func TestScheduler_FirstSubmittedTakesSlot(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, 1, newFakeAnalyzer(), runner)

	first, err := s.Add("https://vimeo.com/111111111", domain.DownloadOptions{})
	require.NoError(t, err)
	second, err := s.Add("https://vimeo.com/222222222", domain.DownloadOptions{})
	require.NoError(t, err)

	// Both analyses land in the same supervisor tick; the slot must
	// still go to the earlier submission, not to whichever worker's
	// event hit the channel first
	waitForStatus(t, s, first.ID, domain.StatusDownloading)
	waitForStatus(t, s, second.ID, domain.StatusReady)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, domain.StatusDownloading, s.Get(first.ID).Status)
	assert.Equal(t, domain.StatusReady, s.Get(second.ID).Status)
	assert.Equal(t, []string{"https://vimeo.com/111111111"}, runner.startOrder())
	runner.releaseAll()
}

func TestScheduler_PasswordProtectedBlocksUntilRequeue(t *testing.T) {
	analyzer := newFakeAnalyzer()
	analyzer.access["https://vimeo.com/123456789"] = domain.AccessPasswordProtected
	runner := newFakeRunner()
	s := newTestScheduler(t, 1, analyzer, runner)

	job, err := s.Add("https://vimeo.com/123456789", domain.DownloadOptions{})
	require.NoError(t, err)

	blocked := waitForStatus(t, s, job.ID, domain.StatusBlocked)
	assert.Contains(t, blocked.BlockReason, "password")
	assert.Empty(t, runner.startOrder(), "blocked job must never start downloading")

	// A password on requeue lets the job straight through
	require.NoError(t, s.Requeue(job.ID, domain.DownloadOptions{Password: "secret"}))
	waitForStatus(t, s, job.ID, domain.StatusDownloading)
	runner.releaseAll()
	waitForStatus(t, s, job.ID, domain.StatusCompleted)
}

func TestScheduler_AnalysisFailureMarksError(t *testing.T) {
	analyzer := newFakeAnalyzer()
	analyzer.errs["https://example.com/page"] = ErrNoVideoFound
	s := newTestScheduler(t, 1, analyzer, newFakeRunner())

	job, err := s.Add("https://example.com/page", domain.DownloadOptions{})
	require.NoError(t, err)

	failed := waitForStatus(t, s, job.ID, domain.StatusError)
	assert.Equal(t, ErrNoVideoFound.Error(), failed.ErrorMessage)
}

func TestScheduler_DownloadFailureKeepsTail(t *testing.T) {
	runner := newFakeRunner()
	runner.err = fmt.Errorf("exit status 1")
	s := newTestScheduler(t, 1, newFakeAnalyzer(), runner)

	job, err := s.Add("https://vimeo.com/123456789", domain.DownloadOptions{})
	require.NoError(t, err)

	waitForStatus(t, s, job.ID, domain.StatusDownloading)
	runner.releaseOne()

	failed := waitForStatus(t, s, job.ID, domain.StatusError)
	assert.Equal(t, "exit status 1", failed.ErrorMessage)
	assert.Equal(t, "yt-dlp output tail", failed.ProcessTail)
}

func TestScheduler_CancelDownloadingFreesSlot(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, 1, newFakeAnalyzer(), runner)

	first, err := s.Add("https://vimeo.com/111111111", domain.DownloadOptions{})
	require.NoError(t, err)
	second, err := s.Add("https://vimeo.com/222222222", domain.DownloadOptions{})
	require.NoError(t, err)

	waitForStatus(t, s, first.ID, domain.StatusDownloading)
	waitForStatus(t, s, second.ID, domain.StatusReady)

	require.NoError(t, s.Cancel(first.ID))
	waitForStatus(t, s, first.ID, domain.StatusCancelled)

	// The freed slot goes to the waiting job
	waitForStatus(t, s, second.ID, domain.StatusDownloading)
	runner.releaseAll()
	waitForStatus(t, s, second.ID, domain.StatusCompleted)
}

func TestScheduler_CancelUnknownAndTerminal(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, 1, newFakeAnalyzer(), runner)

	assert.Error(t, s.Cancel("nonexistent"))

	job, err := s.Add("https://vimeo.com/123456789", domain.DownloadOptions{})
	require.NoError(t, err)
	waitForStatus(t, s, job.ID, domain.StatusDownloading)
	runner.releaseAll()
	waitForStatus(t, s, job.ID, domain.StatusCompleted)

	assert.Error(t, s.Cancel(job.ID))
}

func TestScheduler_RequeueResetsJob(t *testing.T) {
	runner := newFakeRunner()
	runner.err = fmt.Errorf("exit status 1")
	s := newTestScheduler(t, 1, newFakeAnalyzer(), runner)

	job, err := s.Add("https://vimeo.com/123456789", domain.DownloadOptions{})
	require.NoError(t, err)
	waitForStatus(t, s, job.ID, domain.StatusDownloading)
	runner.releaseOne()
	waitForStatus(t, s, job.ID, domain.StatusError)

	require.NoError(t, s.Requeue(job.ID, domain.DownloadOptions{}))
	got := s.Get(job.ID)
	require.NotNil(t, got)
	assert.False(t, got.IsTerminal())
	assert.Empty(t, got.ErrorMessage)

	// The fresh attempt makes it back to the download phase
	waitForStatus(t, s, job.ID, domain.StatusDownloading)
}

func TestScheduler_RequeueRejectsActiveJob(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, 1, newFakeAnalyzer(), runner)

	job, err := s.Add("https://vimeo.com/123456789", domain.DownloadOptions{})
	require.NoError(t, err)
	waitForStatus(t, s, job.ID, domain.StatusDownloading)

	assert.Error(t, s.Requeue(job.ID, domain.DownloadOptions{}))
	runner.releaseAll()
}

func TestScheduler_PauseStopsPromotionsOnly(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, 1, newFakeAnalyzer(), runner)

	s.Pause()
	assert.True(t, s.IsPaused())

	job, err := s.Add("https://vimeo.com/123456789", domain.DownloadOptions{})
	require.NoError(t, err)

	// Analysis still runs while paused; the job parks in Ready
	waitForStatus(t, s, job.ID, domain.StatusReady)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, domain.StatusReady, s.Get(job.ID).Status)

	s.Resume()
	waitForStatus(t, s, job.ID, domain.StatusDownloading)
	runner.releaseAll()
	waitForStatus(t, s, job.ID, domain.StatusCompleted)
}

func TestScheduler_ClearCompleted(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, 2, newFakeAnalyzer(), runner)

	done, err := s.Add("https://vimeo.com/111111111", domain.DownloadOptions{})
	require.NoError(t, err)
	active, err := s.Add("https://vimeo.com/222222222", domain.DownloadOptions{})
	require.NoError(t, err)

	waitForStatus(t, s, done.ID, domain.StatusDownloading)
	waitForStatus(t, s, active.ID, domain.StatusDownloading)
	runner.releaseOne()

	require.Eventually(t, func() bool {
		j := s.Get(done.ID)
		k := s.Get(active.ID)
		return (j.IsTerminal() && !k.IsTerminal()) || (k.IsTerminal() && !j.IsTerminal())
	}, 2*time.Second, 5*time.Millisecond)

	removed := s.ClearCompleted()
	assert.Equal(t, 1, removed)
	assert.Len(t, s.List(), 1)
	runner.releaseAll()
}

func TestScheduler_Stats(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, 1, newFakeAnalyzer(), runner)

	first, err := s.Add("https://vimeo.com/111111111", domain.DownloadOptions{})
	require.NoError(t, err)
	second, err := s.Add("https://vimeo.com/222222222", domain.DownloadOptions{})
	require.NoError(t, err)

	waitForStatus(t, s, first.ID, domain.StatusDownloading)
	waitForStatus(t, s, second.ID, domain.StatusReady)

	stats := s.Stats()
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Downloading)
	assert.Equal(t, int64(1), stats.Ready)
	runner.releaseAll()
}

func TestScheduler_NotifiesQueueLifecycle(t *testing.T) {
	runner := newFakeRunner()
	notifier := &fakeNotifier{}
	s := NewScheduler(SchedulerConfig{
		MaxDownloading: 1,
		PollInterval:   5 * time.Millisecond,
	}, newFakeAnalyzer(), runner, nil, notifier, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	t.Cleanup(func() {
		s.Stop()
		cancel()
	})

	job, err := s.Add("https://vimeo.com/123456789", domain.DownloadOptions{})
	require.NoError(t, err)

	waitForStatus(t, s, job.ID, domain.StatusDownloading)
	runner.releaseAll()
	waitForStatus(t, s, job.ID, domain.StatusCompleted)

	require.Eventually(t, func() bool {
		return len(notifier.snapshot()) >= 4
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"queued", "started", "completed", "empty"}, notifier.snapshot())
}

func TestScheduler_RemoveCancelsWorker(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, 1, newFakeAnalyzer(), runner)

	first, err := s.Add("https://vimeo.com/111111111", domain.DownloadOptions{})
	require.NoError(t, err)
	second, err := s.Add("https://vimeo.com/222222222", domain.DownloadOptions{})
	require.NoError(t, err)

	waitForStatus(t, s, first.ID, domain.StatusDownloading)
	require.NoError(t, s.Remove(first.ID))
	assert.Nil(t, s.Get(first.ID))

	// The removed job's slot is released and the next job starts
	waitForStatus(t, s, second.ID, domain.StatusDownloading)
	runner.releaseAll()
	waitForStatus(t, s, second.ID, domain.StatusCompleted)
}
