// Package plan deterministically builds the external downloader
// invocation from a classification, an access policy and user options.
// Building a plan never fails; missing information degrades gracefully
// and is caught one layer up.
package plan

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/blackdown/video-downloader/internal/domain"
)

// Fragment concurrency for normal and fast mode
const (
	normalConcurrency = "16"
	fastConcurrency   = "32"
)

// tempSubdir receives partial and temporary files so the output
// directory stays clean
const tempSubdir = ".downloading"

// Build constructs the DownloadPlan for a job. originalURL is the URL
// the job currently points at (possibly rewritten by scraping) and is
// what stream-like sources fetch directly.
func Build(c domain.ClassificationResult, access domain.AccessPolicy, originalURL string, opts domain.DownloadOptions) domain.DownloadPlan {
	url := targetURL(c, originalURL)

	args := []string{
		"-N", fragmentConcurrency(opts.Fast),
		"--no-warnings",
		"--progress",
		"--newline",
	}

	// Cookies are attached or explicitly disabled, never omitted:
	// omission lets implicit defaults differ across environments.
	if opts.CookieSpec != "" {
		args = append(args, "--cookies-from-browser", opts.CookieSpec)
	} else {
		args = append(args, "--no-cookies-from-browser")
	}

	if access == domain.AccessPasswordProtected && opts.Password != "" {
		args = append(args, "--video-password", opts.Password)
	}

	// Referer is meaningless for direct streams and actively breaks
	// nothing on YouTube, so both skip it
	referer := ""
	if !c.Source.IsStreamLike() && c.Source != domain.SourceYouTube {
		referer = url
		args = append(args, "--referer", referer)
	}

	if c.Source.IsStreamLike() {
		// Let the tool pick formats from the manifest
		args = append(args, "--merge-output-format", "mp4")
	} else {
		args = append(args,
			"-f", formatSelector(opts.QualityCap),
			"-S", "codec:avc,res,ext",
			"--merge-output-format", "mp4",
			"--postprocessor-args", "ffmpeg:-movflags +faststart",
		)
	}

	if opts.UseAria2 {
		// Alternate backend swaps the transport layer only
		args = append(args,
			"--downloader", "aria2c",
			"--downloader-args", "aria2c:-x 16 -s 16 -k 1M",
		)
	} else {
		args = append(args, "--downloader", "native")
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = "."
	}
	args = append(args, "--paths", "temp:"+filepath.Join(outputDir, tempSubdir))
	args = append(args, "-o", outputTemplate(c, outputDir, opts.Filename))

	return domain.DownloadPlan{
		Source:  c.Source,
		URL:     url,
		Referer: referer,
		Args:    args,
	}
}

// targetURL picks the URL handed to the downloader
func targetURL(c domain.ClassificationResult, originalURL string) string {
	if (c.Source.IsStreamLike() || c.ExternallyResolved) && originalURL != "" {
		return originalURL
	}
	if canonical := c.CanonicalURL(); canonical != "" {
		return canonical
	}
	return originalURL
}

func fragmentConcurrency(fast bool) string {
	if fast {
		return fastConcurrency
	}
	return normalConcurrency
}

// formatSelector returns best-video+best-audio, optionally capped at
// 1080p, falling back to the best combined format
func formatSelector(qualityCap bool) string {
	if qualityCap {
		return "bv*[height<=1080]+ba/b[height<=1080]"
	}
	return "bv*+ba/b"
}

// outputTemplate selects the output filename: an explicit name wins, a
// timestamped name covers stream sources without metadata, everything
// else uses the title+id template
func outputTemplate(c domain.ClassificationResult, outputDir, filename string) string {
	if filename != "" {
		return filepath.Join(outputDir, filename+".%(ext)s")
	}
	if c.Source.IsStreamLike() {
		prefix := string(c.Source)
		if c.Source == domain.SourceDirectStream {
			prefix = "stream"
		}
		stamp := time.Now().Format("20060102_150405")
		return filepath.Join(outputDir, fmt.Sprintf("%s_%s.%%(ext)s", prefix, stamp))
	}
	return filepath.Join(outputDir, "%(title)s [%(id)s].%(ext)s")
}
