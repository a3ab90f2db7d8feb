package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blackdown/video-downloader/internal/domain"
)

type fakeExtractor struct {
	mediaURL string
	label    string
	err      error
	calls    int
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (string, string, error) {
	f.calls++
	return f.mediaURL, f.label, f.err
}

func TestScan_ExtractorStrategyWinsWhenItResolves(t *testing.T) {
	extractor := &fakeExtractor{
		mediaURL: "https://vimeo.com/987654321",
		label:    "Vimeo",
	}
	s := NewScraper(time.Second, extractor, nil, zap.NewNop())

	got := s.Scan(context.Background(), "https://school.example/lesson/42")
	require.Len(t, got, 1)
	assert.Equal(t, "https://vimeo.com/987654321", got[0].URL)
	assert.Equal(t, domain.SourceVimeo, got[0].Source)
	assert.Equal(t, 1, extractor.calls)
}

func TestScan_ExtractorFailureFallsThroughToPageScan(t *testing.T) {
	page := `<html><iframe src="https://player.vimeo.com/video/123456789?h=abc"></iframe></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer server.Close()

	extractor := &fakeExtractor{err: fmt.Errorf("unsupported url")}
	s := NewScraper(time.Second, extractor, nil, zap.NewNop())

	got := s.Scan(context.Background(), server.URL)
	require.Len(t, got, 1)
	assert.Equal(t, domain.SourceVimeo, got[0].Source)
	assert.Contains(t, got[0].URL, "player.vimeo.com/video/123456789")
}

// hangingExtractor blocks until its context is cancelled
type hangingExtractor struct{}

func (hangingExtractor) Extract(ctx context.Context, url string) (string, string, error) {
	<-ctx.Done()
	return "", "", ctx.Err()
}

func TestScan_ExtractorTimeoutBoundsTheProbe(t *testing.T) {
	s := NewScraper(100*time.Millisecond, hangingExtractor{}, nil, zap.NewNop())

	start := time.Now()
	got := s.Scan(context.Background(), "http://127.0.0.1:1/page")
	elapsed := time.Since(start)

	assert.Empty(t, got)
	// The configured timeout must cut the extractor off, then the page
	// fetch fails fast against the closed port
	assert.Less(t, elapsed, 2*time.Second)
}

func TestScan_NetworkFailureReturnsNothing(t *testing.T) {
	s := NewScraper(200*time.Millisecond, nil, nil, zap.NewNop())
	got := s.Scan(context.Background(), "http://127.0.0.1:1/page")
	assert.Empty(t, got)
}

func TestScanBody_RanksAndDeduplicates(t *testing.T) {
	body := `
		<video src="https://cdn.site.example/hls/stream.m3u8"></video>
		<iframe src="https://www.youtube.com/embed/dQw4w9WgXcQ"></iframe>
		<script>var src = "https://edge.kinescope.io/206448976-3f15/media.m3u8?sig=x";</script>
		<script>var srcAgain = "https://edge.kinescope.io/206448976-3f15/media.m3u8?sig=x";</script>
	`
	got := scanBody(body)
	require.Len(t, got, 3)

	// Specific platforms outrank the generic manifest match
	assert.Equal(t, domain.SourceKinescope, got[0].Source)
	assert.Equal(t, domain.SourceYouTube, got[1].Source)
	assert.Equal(t, domain.SourceDirectStream, got[2].Source)
}

func TestScanBody_VimeoCDNBeatsGenericManifest(t *testing.T) {
	body := `"https://vod-adaptive.akamaized.vimeocdn.com/p/primary/playlist.m3u8?token=t"`
	got := scanBody(body)
	require.Len(t, got, 1)
	assert.Equal(t, domain.SourceDirectStream, got[0].Source)
	assert.Contains(t, got[0].URL, "vimeocdn.com")
}

func TestScanBody_GetCourseProxy(t *testing.T) {
	body := `player.load("https://eu.gceuproxy.com/api/playlist/master/0123456789abcdef/fedcba9876543210?k=1")`
	got := scanBody(body)
	require.Len(t, got, 1)
	assert.Equal(t, domain.SourceGetCourse, got[0].Source)
}

func TestScanBody_EmptyPage(t *testing.T) {
	assert.Empty(t, scanBody("<html><body>plain text, no videos</body></html>"))
}

func TestSourceForExtractor(t *testing.T) {
	tests := []struct {
		label string
		want  domain.Source
	}{
		{"Vimeo", domain.SourceVimeo},
		{"youtube:tab", domain.SourceYouTube},
		{"Kinescope", domain.SourceKinescope},
		{"GetCourse", domain.SourceGetCourse},
		{"Generic", domain.SourceWebpage},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, sourceForExtractor(tt.label))
		})
	}
}
