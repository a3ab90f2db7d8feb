package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/blackdown/video-downloader/internal/classify"
	"github.com/blackdown/video-downloader/internal/domain"
	"github.com/blackdown/video-downloader/internal/plan"
	"github.com/blackdown/video-downloader/internal/probe"
)

// ErrNoVideoFound means neither classification nor webpage scraping
// produced a usable video URL. Terminal, user-visible, no retry.
var ErrNoVideoFound = errors.New("no recognized video found")

// AnalysisResult is everything the analysis phase learns about a URL
type AnalysisResult struct {
	Classification domain.ClassificationResult
	Access         domain.AccessPolicy
	// ResolvedURL differs from the submitted URL when webpage scraping
	// substituted a discovered embedded URL
	ResolvedURL string
	Plan        domain.DownloadPlan
}

// Analyzer turns a URL into an AnalysisResult. Satisfied by Pipeline;
// faked in scheduler tests.
type Analyzer interface {
	Analyze(ctx context.Context, url string, opts domain.DownloadOptions) (AnalysisResult, error)
}

// Pipeline is the real analysis path: classify, fall back to scraping,
// probe access, build the download plan.
type Pipeline struct {
	prober  *probe.Prober
	scraper *probe.Scraper
	logger  *zap.Logger
}

// NewPipeline creates the analysis pipeline
func NewPipeline(prober *probe.Prober, scraper *probe.Scraper, logger *zap.Logger) *Pipeline {
	return &Pipeline{prober: prober, scraper: scraper, logger: logger}
}

// Analyze classifies a URL, scraping the page for embedded videos when
// no pattern matches, and plans the download invocation
func (p *Pipeline) Analyze(ctx context.Context, url string, opts domain.DownloadOptions) (AnalysisResult, error) {
	c := classify.Classify(url)
	resolved := url

	if !c.IsKnown() {
		p.logger.Info("URL not recognized, scanning webpage for embedded videos",
			zap.String("url", url))

		candidates := p.scraper.Scan(ctx, url)
		if len(candidates) == 0 {
			return AnalysisResult{}, ErrNoVideoFound
		}

		top := candidates[0]
		p.logger.Info("found embedded video",
			zap.String("source", string(top.Source)),
			zap.String("url", top.URL),
			zap.Int("candidates", len(candidates)))

		resolved = top.URL
		c = classify.Classify(top.URL)
		if !c.IsKnown() {
			// The extractor resolved a URL our patterns don't cover;
			// trust its source tag and fetch the URL as-is
			c = domain.ClassificationResult{
				Source:             top.Source,
				VideoID:            "extracted",
				ExternallyResolved: true,
			}
		}
	}

	// Probing is only meaningful for genuinely canonical classifications;
	// an externally resolved URL has no watch page to inspect
	access := domain.AccessPublic
	if !c.ExternallyResolved {
		access = p.prober.Probe(c)
	}

	p.logger.Info("analysis complete",
		zap.String("source", string(c.Source)),
		zap.String("video_id", c.VideoID),
		zap.String("access", string(access)),
		zap.Bool("stream_only", c.StreamOnly))

	return AnalysisResult{
		Classification: c,
		Access:         access,
		ResolvedURL:    resolved,
		Plan:           plan.Build(c, access, resolved, opts),
	}, nil
}
