package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	job := NewJob("https://vimeo.com/123456789")

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "https://vimeo.com/123456789", job.URL)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, SourceUnknown, job.Source)
	assert.False(t, job.IsTerminal())
	assert.False(t, job.IsActive())
}

func TestJob_ApplyClassificationRewritesURLOnce(t *testing.T) {
	job := NewJob("https://school.example/lesson/42")
	c := ClassificationResult{Source: SourceVimeo, VideoID: "123456789", Hash: "abcdef123"}

	job.ApplyClassification(c, AccessPublic, "https://vimeo.com/123456789/abcdef123")

	assert.Equal(t, "https://vimeo.com/123456789/abcdef123", job.URL)
	assert.Equal(t, "https://school.example/lesson/42", job.OriginalURL)
	assert.Equal(t, SourceVimeo, job.Source)
	assert.Equal(t, "123456789", job.VideoID)
	assert.Equal(t, "abcdef123", job.AccessHash)
	assert.Equal(t, AccessPublic, job.Access)
}

func TestJob_ApplyClassificationKeepsUnchangedURL(t *testing.T) {
	job := NewJob("https://vimeo.com/123456789")
	c := ClassificationResult{Source: SourceVimeo, VideoID: "123456789"}

	job.ApplyClassification(c, AccessPublic, "https://vimeo.com/123456789")
	assert.Empty(t, job.OriginalURL)
}

func TestJob_Lifecycle(t *testing.T) {
	job := NewJob("https://vimeo.com/123456789")

	job.MarkDownloading()
	assert.Equal(t, StatusDownloading, job.Status)
	assert.True(t, job.IsActive())
	require.NotNil(t, job.StartedAt)

	job.Progress = 50
	job.Speed = "5.0 MiB/s"
	job.ETA = "00:10"

	job.MarkCompleted("/downloads/video.mp4")
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, float64(100), job.Progress)
	assert.Equal(t, "/downloads/video.mp4", job.FilePath)
	assert.Empty(t, job.Speed)
	assert.Empty(t, job.ETA)
	assert.True(t, job.IsTerminal())
	require.NotNil(t, job.CompletedAt)
}

func TestJob_MarkErrorRetainsTail(t *testing.T) {
	job := NewJob("https://vimeo.com/123456789")
	job.MarkError("download failed (exit code 1)", "line1\nline2\nline3")

	assert.Equal(t, StatusError, job.Status)
	assert.Equal(t, "download failed (exit code 1)", job.ErrorMessage)
	assert.Equal(t, "line1\nline2\nline3", job.ProcessTail)
	assert.True(t, job.IsTerminal())
}

func TestJob_BlockedIsNotTerminal(t *testing.T) {
	job := NewJob("https://vimeo.com/123456789")
	job.MarkBlocked("video is password-protected: supply a password and requeue")

	assert.Equal(t, StatusBlocked, job.Status)
	assert.NotEmpty(t, job.BlockReason)
	assert.False(t, job.IsTerminal(), "blocked jobs await user input, they are not finished")
	assert.False(t, job.IsActive())
}

func TestJob_RequeueClearsRunState(t *testing.T) {
	job := NewJob("https://vimeo.com/123456789")
	job.MarkDownloading()
	job.Progress = 75
	job.Speed = "3.0 MiB/s"
	job.Stage = "Fragment 75/100"
	job.MarkError("exit status 1", "tail")

	job.Requeue()

	assert.Equal(t, StatusQueued, job.Status)
	assert.Zero(t, job.Progress)
	assert.Empty(t, job.Speed)
	assert.Empty(t, job.ETA)
	assert.Empty(t, job.Stage)
	assert.Empty(t, job.ErrorMessage)
	assert.Empty(t, job.BlockReason)
	assert.Empty(t, job.ProcessTail)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
}

func TestSource_Labels(t *testing.T) {
	tests := []struct {
		source Source
		label  string
	}{
		{SourceYouTube, "YT"},
		{SourceVimeo, "VM"},
		{SourceKinescope, "KS"},
		{SourceGetCourse, "GC"},
		{SourceDirectStream, "M3U8"},
		{SourceWebpage, "WEB"},
		{SourceUnknown, "??"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.label, tt.source.ShortLabel())
	}
}

func TestSource_StreamLikeAndAuth(t *testing.T) {
	assert.True(t, SourceDirectStream.IsStreamLike())
	assert.True(t, SourceKinescope.IsStreamLike())
	assert.True(t, SourceGetCourse.IsStreamLike())
	assert.False(t, SourceVimeo.IsStreamLike())
	assert.False(t, SourceYouTube.IsStreamLike())

	assert.True(t, SourceYouTube.SelfHandlesAuth())
	assert.True(t, SourceDirectStream.SelfHandlesAuth())
	assert.False(t, SourceVimeo.SelfHandlesAuth())
}

func TestClassificationResult_CanonicalURL(t *testing.T) {
	withHash := ClassificationResult{Source: SourceVimeo, VideoID: "123456789", Hash: "abcdef123"}
	assert.Equal(t, "https://vimeo.com/123456789/abcdef123", withHash.CanonicalURL())

	plain := ClassificationResult{Source: SourceVimeo, VideoID: "123456789"}
	assert.Equal(t, "https://vimeo.com/123456789", plain.CanonicalURL())

	yt := ClassificationResult{Source: SourceYouTube, VideoID: "dQw4w9WgXcQ"}
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", yt.CanonicalURL())

	stream := ClassificationResult{Source: SourceKinescope, VideoID: "abc"}
	assert.Empty(t, stream.CanonicalURL())
}
