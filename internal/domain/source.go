package domain

// Source identifies the platform a video URL belongs to
type Source string

const (
	SourceVimeo        Source = "vimeo"
	SourceYouTube      Source = "youtube"
	SourceKinescope    Source = "kinescope"
	SourceGetCourse    Source = "getcourse"
	SourceDirectStream Source = "direct_stream"
	SourceWebpage      Source = "webpage"
	SourceUnknown      Source = "unknown"
)

// ShortLabel returns the short platform identifier used for queue badges
func (s Source) ShortLabel() string {
	switch s {
	case SourceYouTube:
		return "YT"
	case SourceVimeo:
		return "VM"
	case SourceKinescope:
		return "KS"
	case SourceGetCourse:
		return "GC"
	case SourceDirectStream:
		return "M3U8"
	case SourceWebpage:
		return "WEB"
	default:
		return "??"
	}
}

// IsStreamLike reports whether the source is a direct manifest stream
// (the original URL is fetched as-is and no referer is attached)
func (s Source) IsStreamLike() bool {
	return s == SourceDirectStream || s == SourceKinescope || s == SourceGetCourse
}

// SelfHandlesAuth reports whether the platform's access state is
// self-evident, so the access probe is skipped and Public is assumed
func (s Source) SelfHandlesAuth() bool {
	switch s {
	case SourceYouTube, SourceKinescope, SourceGetCourse, SourceDirectStream:
		return true
	default:
		return false
	}
}

// AccessPolicy represents the viewing restriction detected for a video
type AccessPolicy string

const (
	AccessPublic            AccessPolicy = "public"
	AccessPasswordProtected AccessPolicy = "password_protected"
	AccessLoginRequired     AccessPolicy = "login_required"
	AccessEmbedOnly         AccessPolicy = "embed_only"
	AccessInvalid           AccessPolicy = "invalid"
)
