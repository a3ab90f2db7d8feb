// Package classify turns a URL into a platform classification without
// any network access. Matchers are applied in priority order and the
// first match wins; generic stream patterns must come after the
// platform-specific ones they overlap with.
package classify

import (
	"regexp"
	"strings"

	"github.com/blackdown/video-downloader/internal/domain"
)

var (
	// vimeo.com/{id} or vimeo.com/{id}/{access hash}
	vimeoPattern = regexp.MustCompile(`vimeo\.com/(?:video/)?(\d+)(?:/([a-f0-9]+))?`)
	// player.vimeo.com/video/{id}
	playerPattern = regexp.MustCompile(`player\.vimeo\.com/video/(\d+)`)
	// youtube.com/watch?v=ID, youtu.be/ID, youtube.com/embed/ID, youtube.com/shorts/ID
	youtubePattern = regexp.MustCompile(`(?:youtube\.com/(?:watch\?.*v=|embed/|v/|shorts/)|youtu\.be/)([\w-]{11})`)
	// GetCourse proxy: gceuproxy.com/api/playlist/master/{id1}/{id2}
	getcoursePattern = regexp.MustCompile(`gceuproxy\.com/api/playlist/master/([a-f0-9]+)/([a-f0-9]+)`)
	// kinescope.io/{uuid}/media.m3u8
	kinescopePattern = regexp.MustCompile(`kinescope\.io/([a-f0-9-]+)/media\.m3u8`)
	// Vimeo CDN manifest, no extractable id
	cdnPattern = regexp.MustCompile(`vimeocdn\.com/.+\.m3u8`)
)

// getcourseIDPrefix is how much of the first GetCourse playlist id is
// kept as the job identifier
const getcourseIDPrefix = 8

// directStreamID is the synthetic identifier for raw CDN manifest URLs
const directStreamID = "direct_m3u8"

// Classify applies the ordered pattern matchers to a URL.
// Pure and deterministic; surrounding whitespace is ignored.
func Classify(url string) domain.ClassificationResult {
	url = strings.TrimSpace(url)

	if m := vimeoPattern.FindStringSubmatch(url); m != nil {
		return domain.ClassificationResult{Source: domain.SourceVimeo, VideoID: m[1], Hash: m[2]}
	}

	if m := playerPattern.FindStringSubmatch(url); m != nil {
		return domain.ClassificationResult{Source: domain.SourceVimeo, VideoID: m[1]}
	}

	if m := youtubePattern.FindStringSubmatch(url); m != nil {
		return domain.ClassificationResult{Source: domain.SourceYouTube, VideoID: m[1]}
	}

	if m := getcoursePattern.FindStringSubmatch(url); m != nil {
		id := m[1]
		if len(id) > getcourseIDPrefix {
			id = id[:getcourseIDPrefix]
		}
		return domain.ClassificationResult{Source: domain.SourceGetCourse, VideoID: id}
	}

	if m := kinescopePattern.FindStringSubmatch(url); m != nil {
		return domain.ClassificationResult{
			Source:     domain.SourceKinescope,
			VideoID:    m[1],
			StreamOnly: !isMasterPlaylist(url),
		}
	}

	if cdnPattern.MatchString(url) {
		return domain.ClassificationResult{
			Source:     domain.SourceDirectStream,
			VideoID:    directStreamID,
			StreamOnly: !isMasterPlaylist(url),
		}
	}

	return domain.ClassificationResult{Source: domain.SourceUnknown}
}

// isMasterPlaylist guesses whether a manifest URL references both audio
// and video renditions, as opposed to a video-only component. The result
// feeds a warning only; ambiguous URLs are assumed master.
func isMasterPlaylist(url string) bool {
	// Kinescope video-only streams carry type=video in the query string
	if strings.Contains(url, "type=video") {
		return false
	}
	// Vimeo master playlists live under /primary/ and end in playlist.m3u8
	if strings.Contains(url, "/primary/") && strings.Contains(url, "playlist.m3u8") {
		return true
	}
	// Video-only components outside the primary path
	if strings.Contains(url, "st=video") || strings.Contains(url, "media.m3u8") {
		if !strings.Contains(url, "/primary/") {
			return false
		}
	}
	return true
}
