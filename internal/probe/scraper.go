package probe

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blackdown/video-downloader/internal/domain"
)

// Candidate is an embedded-video URL discovered on a webpage
type Candidate struct {
	URL    string
	Source domain.Source
}

// GenericExtractor resolves a webpage to a media URL using the external
// downloader's own extractor machinery. Implemented by the process
// runner in infrastructure.
type GenericExtractor interface {
	// Extract returns the resolved media URL and the extractor label
	// the tool used, or an error when the page yields nothing
	Extract(ctx context.Context, url string) (mediaURL, extractor string, err error)
}

// signature pairs a platform-specific URL pattern with its source tag.
// Most specific platforms come first; the generic manifest extension is
// the last resort.
type signature struct {
	pattern *regexp.Regexp
	source  domain.Source
}

var pageSignatures = []signature{
	{regexp.MustCompile(`https?://[^\s"'<>\\]+kinescope\.io/[a-f0-9-]+/media\.m3u8[^\s"'<>\\]*`), domain.SourceKinescope},
	{regexp.MustCompile(`https?://[^\s"'<>\\]+gceuproxy\.com/api/playlist/master/[a-f0-9]+/[a-f0-9]+[^\s"'<>\\]*`), domain.SourceGetCourse},
	{regexp.MustCompile(`https?://player\.vimeo\.com/video/\d+[^\s"'<>\\]*`), domain.SourceVimeo},
	{regexp.MustCompile(`https?://[^\s"'<>\\]*vimeocdn\.com/[^\s"'<>\\]+\.m3u8[^\s"'<>\\]*`), domain.SourceDirectStream},
	{regexp.MustCompile(`https?://(?:www\.)?youtube\.com/embed/[\w-]{11}[^\s"'<>\\]*`), domain.SourceYouTube},
	{regexp.MustCompile(`https?://[^\s"'<>\\]+\.m3u8[^\s"'<>\\]*`), domain.SourceDirectStream},
}

// rank orders candidates when several platforms appear on one page
var sourceRank = map[domain.Source]int{
	domain.SourceKinescope:    0,
	domain.SourceGetCourse:    1,
	domain.SourceVimeo:        2,
	domain.SourceYouTube:      3,
	domain.SourceDirectStream: 4,
}

// extractorSources maps external-tool extractor labels (matched by
// substring) back to a source tag
var extractorSources = []struct {
	label  string
	source domain.Source
}{
	{"vimeo", domain.SourceVimeo},
	{"youtube", domain.SourceYouTube},
	{"kinescope", domain.SourceKinescope},
	{"getcourse", domain.SourceGetCourse},
}

// Scraper is the fallback path when classification returns Unknown:
// resolve via the generic extractor first, then regex-scan the raw page.
type Scraper struct {
	client    *http.Client
	extractor GenericExtractor
	timeout   time.Duration
	cookies   []*http.Cookie
	logger    *zap.Logger
}

// NewScraper creates a webpage scraper. The timeout bounds both the page
// fetch and the generic-extractor probe. The extractor may be nil, in
// which case only the page scan runs.
func NewScraper(timeout time.Duration, extractor GenericExtractor, cookies []*http.Cookie, logger *zap.Logger) *Scraper {
	return &Scraper{
		client:    &http.Client{Timeout: timeout},
		extractor: extractor,
		timeout:   timeout,
		cookies:   cookies,
		logger:    logger,
	}
}

// Scan returns ranked embedded-video candidates for a page. An empty
// result means no recognized video was found; network failure is logged
// as a warning, never surfaced as an error.
func (s *Scraper) Scan(ctx context.Context, pageURL string) []Candidate {
	if s.extractor != nil {
		ectx, cancel := context.WithTimeout(ctx, s.timeout)
		mediaURL, label, err := s.extractor.Extract(ectx, pageURL)
		cancel()
		if err == nil && mediaURL != "" {
			return []Candidate{{URL: mediaURL, Source: sourceForExtractor(label)}}
		}
	}

	body, err := s.fetchPage(ctx, pageURL)
	if err != nil {
		s.logger.Warn("webpage scan failed",
			zap.String("url", pageURL),
			zap.Error(err))
		return nil
	}

	return scanBody(body)
}

// scanBody applies the ordered signature list to raw page content,
// deduplicating by exact URL string
func scanBody(body string) []Candidate {
	seen := make(map[string]bool)
	var found []Candidate

	for _, sig := range pageSignatures {
		for _, match := range sig.pattern.FindAllString(body, -1) {
			if seen[match] {
				continue
			}
			seen[match] = true
			found = append(found, Candidate{URL: match, Source: sig.source})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return sourceRank[found[i].Source] < sourceRank[found[j].Source]
	})

	return found
}

func sourceForExtractor(label string) domain.Source {
	lower := strings.ToLower(label)
	for _, e := range extractorSources {
		if strings.Contains(lower, e.label) {
			return e.source
		}
	}
	return domain.SourceWebpage
}

func (s *Scraper) fetchPage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", desktopUserAgent)
	for _, c := range s.cookies {
		req.AddCookie(c)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
