package domain

import "fmt"

// ClassificationResult is the immutable outcome of classifying a URL.
// Invariant: Source != SourceUnknown implies VideoID is non-empty.
type ClassificationResult struct {
	Source  Source
	VideoID string
	// Hash is the optional access hash granting view access to an
	// otherwise-private Vimeo video
	Hash string
	// StreamOnly marks manifest URLs that appear to carry video without
	// audio. Heuristic, used for a user-facing warning only.
	StreamOnly bool
	// ExternallyResolved marks results whose URL came from the generic
	// extractor rather than a recognized pattern. The resolved URL is
	// fetched as-is and never rebuilt from Source and VideoID.
	ExternallyResolved bool
}

// IsKnown reports whether classification matched a recognized platform
func (c ClassificationResult) IsKnown() bool {
	return c.Source != SourceUnknown && c.VideoID != ""
}

// CanonicalURL reconstructs the primary watch-page URL for the video.
// Only meaningful for Vimeo and YouTube; other sources are fetched via
// their original URL, as are externally resolved results whose VideoID
// is synthetic.
func (c ClassificationResult) CanonicalURL() string {
	if c.ExternallyResolved {
		return ""
	}
	switch c.Source {
	case SourceVimeo:
		if c.Hash != "" {
			return fmt.Sprintf("https://vimeo.com/%s/%s", c.VideoID, c.Hash)
		}
		return fmt.Sprintf("https://vimeo.com/%s", c.VideoID)
	case SourceYouTube:
		return fmt.Sprintf("https://www.youtube.com/watch?v=%s", c.VideoID)
	default:
		return ""
	}
}

// PlayerURL returns the Vimeo player embed URL for the video
func (c ClassificationResult) PlayerURL() string {
	return fmt.Sprintf("https://player.vimeo.com/video/%s", c.VideoID)
}
