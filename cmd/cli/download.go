package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackdown/video-downloader/internal/app"
	"github.com/blackdown/video-downloader/internal/domain"
	"github.com/blackdown/video-downloader/internal/infrastructure"
	"github.com/blackdown/video-downloader/internal/probe"
	"github.com/blackdown/video-downloader/pkg/logger"
)

var downloadCmd = &cobra.Command{
	Use:   "download [url...]",
	Short: "Download videos directly, without the queue server",
	Long: `Analyzes each URL (or each line of a batch file), plans the yt-dlp
invocation and runs it, printing progress to the terminal. Exits
non-zero if any download fails.`,
	RunE: runDownload,
}

func init() {
	f := downloadCmd.Flags()
	f.StringP("batch", "b", "", "File with one URL per line (# starts a comment)")
	f.StringP("password", "p", "", "Password for protected videos")
	f.StringP("output", "o", "", "Output directory (overrides config)")
	f.StringP("name", "n", "", "Output filename without extension (single URL only)")
	f.String("browser", "", "Browser to read cookies from (overrides config)")
	f.String("profile", "", "Browser profile for cookie lookup")
	f.Bool("no-cookies", false, "Disable browser cookie lookup")
	f.Bool("aria2", false, "Use aria2c as the external downloader")
	f.Bool("fast", false, "Use more download connections")
	f.Bool("max-1080", false, "Cap quality at 1080p")
	f.Bool("dry-run", false, "Print the planned command instead of running it")
	f.BoolP("list-formats", "F", false, "List available formats instead of downloading")
	f.BoolP("quiet", "q", false, "Suppress progress output")
}

func runDownload(cmd *cobra.Command, args []string) error {
	batchFile, _ := cmd.Flags().GetString("batch")

	urls := args
	if batchFile != "" {
		fromFile, err := app.ReadBatchFile(batchFile)
		if err != nil {
			return fmt.Errorf("reading batch file: %w", err)
		}
		urls = append(urls, fromFile...)
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs given: pass them as arguments or via --batch")
	}

	config, err := app.LoadConfig("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// One-shot runs log warnings and errors only; progress goes to the
	// terminal directly
	log, err := logger.New(logger.Config{
		Level:      "warn",
		Format:     "console",
		OutputPath: "stderr",
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	opts := optionsFromFlags(cmd, config)
	if len(urls) > 1 && opts.Filename != "" {
		return fmt.Errorf("--name cannot be combined with multiple URLs")
	}

	runner := infrastructure.NewYTDLPRunner(config.Download.YTDLPBinary, config.Download.TailLines, log)
	prober := probe.NewProber(config.Probe.AccessTimeout, nil, log)
	scraper := probe.NewScraper(config.Probe.ExtractorTimeout, runner, nil, log)
	pipeline := app.NewPipeline(prober, scraper, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, stopping...")
		cancel()
	}()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	listFormats, _ := cmd.Flags().GetBool("list-formats")
	quiet, _ := cmd.Flags().GetBool("quiet")

	failed := 0
	for i, url := range urls {
		if len(urls) > 1 {
			fmt.Printf("[%d/%d] %s\n", i+1, len(urls), url)
		}
		if err := downloadOne(ctx, cmd, pipeline, runner, config, url, opts, dryRun, listFormats, quiet); err != nil {
			if errors.Is(err, context.Canceled) {
				return fmt.Errorf("cancelled")
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(urls))
	}
	return nil
}

func optionsFromFlags(cmd *cobra.Command, config *domain.Config) domain.DownloadOptions {
	dl := config.Download

	if v, _ := cmd.Flags().GetString("browser"); v != "" {
		dl.Browser = v
	}
	if v, _ := cmd.Flags().GetString("profile"); v != "" {
		dl.BrowserProfile = v
	}
	if v, _ := cmd.Flags().GetBool("no-cookies"); v {
		dl.SkipCookies = true
	}

	opts := domain.DownloadOptions{
		CookieSpec: dl.CookieSpec(),
		OutputDir:  dl.OutputDir,
		QualityCap: dl.QualityCap1080,
		Fast:       dl.FastMode,
		UseAria2:   dl.UseAria2,
	}

	opts.Password, _ = cmd.Flags().GetString("password")
	opts.Filename, _ = cmd.Flags().GetString("name")
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		opts.OutputDir = v
	}
	if v, _ := cmd.Flags().GetBool("aria2"); v {
		opts.UseAria2 = true
	}
	if v, _ := cmd.Flags().GetBool("fast"); v {
		opts.Fast = true
	}
	if v, _ := cmd.Flags().GetBool("max-1080"); v {
		opts.QualityCap = true
	}
	return opts
}

func downloadOne(ctx context.Context, cmd *cobra.Command, pipeline *app.Pipeline, runner *infrastructure.YTDLPRunner, config *domain.Config, url string, opts domain.DownloadOptions, dryRun, listFormats, quiet bool) error {
	result, err := pipeline.Analyze(ctx, url, opts)
	if err != nil {
		return err
	}

	c := result.Classification
	fmt.Printf("Detected: %s (%s)\n", c.Source, c.Source.ShortLabel())
	if c.StreamOnly {
		fmt.Fprintln(os.Stderr, "Warning: stream URL points at a single variant; audio or higher qualities may be missing")
	}

	switch result.Access {
	case domain.AccessPasswordProtected:
		if opts.Password == "" {
			return fmt.Errorf("video is password-protected: supply one with --password")
		}
	case domain.AccessLoginRequired:
		fmt.Fprintln(os.Stderr, "Warning: video appears to require a login; relying on browser cookies")
	case domain.AccessInvalid:
		return fmt.Errorf("URL does not point at a recognized video")
	}

	if listFormats {
		return runner.ListFormats(ctx, result.Plan.URL)
	}

	if dryRun {
		fmt.Println(infrastructure.ShellEscapeCommand(config.Download.YTDLPBinary, result.Plan.CommandArgs()...))
		return nil
	}

	var destination string
	onProgress := func(u domain.ProgressUpdate) {
		if u.Destination != "" {
			destination = u.Destination
		}
		if quiet {
			return
		}
		renderProgress(u)
	}

	tail, err := runner.Run(ctx, result.Plan, onProgress)
	if !quiet {
		fmt.Println()
	}
	if err != nil {
		if errors.Is(err, infrastructure.ErrDownloaderMissing) {
			return fmt.Errorf("yt-dlp not found: install it or set download.ytdlp_binary")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if tail != "" {
			fmt.Fprintln(os.Stderr, lastLine(tail))
		}
		return fmt.Errorf("download failed: %w", err)
	}

	if destination != "" {
		fmt.Printf("Saved: %s\n", destination)
	} else {
		fmt.Println("Done")
	}
	return nil
}

func renderProgress(u domain.ProgressUpdate) {
	var b strings.Builder
	fmt.Fprintf(&b, "\r%6.1f%%", u.Percent)
	if u.Speed != "" {
		fmt.Fprintf(&b, "  %s", u.Speed)
	}
	if u.ETA != "" {
		fmt.Fprintf(&b, "  ETA %s", u.ETA)
	}
	if u.Stage != "" {
		fmt.Fprintf(&b, "  %s", u.Stage)
	}
	// pad so a shorter line fully overwrites the previous one
	for b.Len() < 60 {
		b.WriteByte(' ')
	}
	fmt.Fprint(os.Stderr, b.String())
}

func lastLine(tail string) string {
	lines := strings.Split(strings.TrimSpace(tail), "\n")
	return lines[len(lines)-1]
}
