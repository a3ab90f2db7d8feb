package infrastructure

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/blackdown/video-downloader/internal/domain"
	"github.com/blackdown/video-downloader/internal/progress"
)

// ErrDownloaderMissing is returned when the external downloader binary
// cannot be launched at all, as opposed to a failed download
var ErrDownloaderMissing = errors.New("yt-dlp not found: install it with 'brew install yt-dlp' or 'pip install yt-dlp'")

// YTDLPRunner supervises external yt-dlp processes: the download itself,
// the generic-extractor probe used by the webpage scraper, and format
// listing.
type YTDLPRunner struct {
	binary    string
	tailLines int
	logger    *zap.Logger
}

// NewYTDLPRunner creates a runner for the given binary. tailLines is how
// much process output is retained for error diagnostics.
func NewYTDLPRunner(binary string, tailLines int, logger *zap.Logger) *YTDLPRunner {
	if binary == "" {
		binary = "yt-dlp"
	}
	if tailLines <= 0 {
		tailLines = 20
	}
	return &YTDLPRunner{binary: binary, tailLines: tailLines, logger: logger}
}

// Run executes a download plan, streaming combined stdout/stderr through
// the progress interpreter. Cancellation is cooperative: the context
// cancel sends SIGTERM immediately and the read loop stops between
// lines. Returns the retained output tail alongside any error.
func (r *YTDLPRunner) Run(ctx context.Context, p domain.DownloadPlan, onProgress func(domain.ProgressUpdate)) (string, error) {
	args := p.CommandArgs()
	cmd := exec.Command(r.binary, args...)

	pr, pw, err := os.Pipe()
	if err != nil {
		return "", fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	r.logger.Info("launching downloader",
		zap.String("binary", r.binary),
		zap.String("url", p.URL),
		zap.String("source", string(p.Source)))
	r.logger.Debug("downloader command",
		zap.String("command", ShellEscapeCommand(r.binary, args...)))

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		if errors.Is(err, exec.ErrNotFound) {
			return "", ErrDownloaderMissing
		}
		return "", fmt.Errorf("failed to start downloader: %w", err)
	}
	pw.Close()

	// Termination is signaled, not rendezvous-confirmed; the read loop
	// below drains until the process actually exits.
	stopSignal := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cmd.Process.Signal(syscall.SIGTERM)
		case <-stopSignal:
		}
	}()

	tail := newTailBuffer(r.tailLines)
	parser := progress.NewParser()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail.add(line)

		// Cancel check between output lines
		if ctx.Err() != nil {
			continue
		}

		if parser.ParseLine(line) && onProgress != nil {
			onProgress(domain.ProgressUpdate{
				Percent:     parser.Percent,
				Downloaded:  parser.Downloaded,
				Total:       parser.Total,
				Speed:       parser.Speed,
				ETA:         parser.ETA,
				Stage:       parser.Status,
				Destination: parser.Destination,
			})
		}
	}
	pr.Close()

	waitErr := cmd.Wait()
	close(stopSignal)

	if ctx.Err() != nil {
		return tail.String(), ctx.Err()
	}
	if waitErr != nil {
		return tail.String(), fmt.Errorf("downloader exited abnormally: %w", waitErr)
	}
	return tail.String(), nil
}

// extractorProbe is the subset of yt-dlp metadata the scraper needs
type extractorProbe struct {
	URL        string `json:"url"`
	WebpageURL string `json:"webpage_url"`
	Extractor  string `json:"extractor"`
}

// Extract runs the downloader's generic content extractor against a
// webpage and reports the resolved media URL and extractor label.
// Implements probe.GenericExtractor.
func (r *YTDLPRunner) Extract(ctx context.Context, url string) (string, string, error) {
	cmd := exec.CommandContext(ctx, r.binary,
		"--dump-json",
		"--no-warnings",
		"--no-playlist",
		"--no-cookies-from-browser",
		url)

	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", "", ErrDownloaderMissing
		}
		return "", "", fmt.Errorf("generic extractor failed: %w", err)
	}

	// Playlist pages emit one JSON document per line; the first entry
	// is enough to classify the page
	firstLine := out
	if idx := strings.IndexByte(string(out), '\n'); idx > 0 {
		firstLine = out[:idx]
	}

	var info extractorProbe
	if err := json.Unmarshal(firstLine, &info); err != nil {
		return "", "", fmt.Errorf("unexpected extractor output: %w", err)
	}

	resolved := info.WebpageURL
	if resolved == "" {
		resolved = info.URL
	}
	if resolved == "" {
		return "", "", errors.New("extractor resolved no media URL")
	}
	return resolved, info.Extractor, nil
}

// ListFormats prints the available formats for a URL to stdout
func (r *YTDLPRunner) ListFormats(ctx context.Context, url string) error {
	cmd := exec.CommandContext(ctx, r.binary, "-F", "--no-cookies-from-browser", url)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return ErrDownloaderMissing
		}
		return fmt.Errorf("failed to list formats: %w", err)
	}
	return nil
}

// tailBuffer keeps the last n lines of process output
type tailBuffer struct {
	lines []string
	max   int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[1:]
	}
}

func (t *tailBuffer) String() string {
	return strings.Join(t.lines, "\n")
}
