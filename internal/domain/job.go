package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a queued job
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusAnalyzing   JobStatus = "analyzing"
	StatusReady       JobStatus = "ready"
	StatusBlocked     JobStatus = "blocked"
	StatusDownloading JobStatus = "downloading"
	StatusCompleted   JobStatus = "completed"
	StatusError       JobStatus = "error"
	StatusCancelled   JobStatus = "cancelled"
)

// Job represents one URL's lifecycle through the queue. Live Job records
// are owned exclusively by the Scheduler; workers report changes via
// Events rather than mutating them directly.
type Job struct {
	ID  string `json:"id" gorm:"primaryKey"`
	URL string `json:"url" gorm:"not null"`
	// OriginalURL keeps the submitted URL when webpage scraping
	// substitutes a discovered embedded URL
	OriginalURL  string       `json:"original_url,omitempty"`
	Status       JobStatus    `json:"status" gorm:"not null;index"`
	Source       Source       `json:"source,omitempty"`
	VideoID      string       `json:"video_id,omitempty"`
	AccessHash   string       `json:"access_hash,omitempty"`
	Access       AccessPolicy `json:"access,omitempty"`
	StreamOnly   bool         `json:"stream_only"`
	Progress     float64      `json:"progress"`
	Speed        string       `json:"speed,omitempty"`
	ETA          string       `json:"eta,omitempty"`
	Stage        string       `json:"stage,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	BlockReason  string       `json:"block_reason,omitempty"`
	FilePath     string       `json:"file_path,omitempty"`
	ProcessTail  string       `json:"process_tail,omitempty" gorm:"type:text"`
	CreatedAt    time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// NewJob creates a new queued job for a URL
func NewJob(url string) *Job {
	return &Job{
		ID:        uuid.New().String(),
		URL:       url,
		Status:    StatusQueued,
		Source:    SourceUnknown,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// ApplyClassification records the analysis outcome on the job
func (j *Job) ApplyClassification(c ClassificationResult, access AccessPolicy, resolvedURL string) {
	if resolvedURL != "" && resolvedURL != j.URL {
		j.OriginalURL = j.URL
		j.URL = resolvedURL
	}
	j.Source = c.Source
	j.VideoID = c.VideoID
	j.AccessHash = c.Hash
	j.StreamOnly = c.StreamOnly
	j.Access = access
	j.UpdatedAt = time.Now()
}

// MarkDownloading marks the job as actively downloading
func (j *Job) MarkDownloading() {
	j.Status = StatusDownloading
	now := time.Now()
	j.StartedAt = &now
	j.UpdatedAt = now
}

// MarkCompleted marks the job as completed
func (j *Job) MarkCompleted(filePath string) {
	j.Status = StatusCompleted
	j.Progress = 100
	j.FilePath = filePath
	j.Speed = ""
	j.ETA = ""
	now := time.Now()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkError marks the job as failed with a one-line cause and the
// retained tail of the process output for diagnostics
func (j *Job) MarkError(message, processTail string) {
	j.Status = StatusError
	j.ErrorMessage = message
	j.ProcessTail = processTail
	j.UpdatedAt = time.Now()
}

// MarkBlocked parks the job awaiting user input (e.g. a password)
func (j *Job) MarkBlocked(reason string) {
	j.Status = StatusBlocked
	j.BlockReason = reason
	j.UpdatedAt = time.Now()
}

// MarkCancelled marks the job as cancelled by the user
func (j *Job) MarkCancelled() {
	j.Status = StatusCancelled
	j.Speed = ""
	j.ETA = ""
	j.UpdatedAt = time.Now()
}

// Requeue resets a terminal or blocked job back to the queued state
func (j *Job) Requeue() {
	j.Status = StatusQueued
	j.Progress = 0
	j.Speed = ""
	j.ETA = ""
	j.Stage = ""
	j.ErrorMessage = ""
	j.BlockReason = ""
	j.ProcessTail = ""
	j.StartedAt = nil
	j.CompletedAt = nil
	j.UpdatedAt = time.Now()
}

// IsTerminal reports whether the job reached a final state
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusError || j.Status == StatusCancelled
}

// IsActive reports whether a worker is currently driving the job
func (j *Job) IsActive() bool {
	return j.Status == StatusAnalyzing || j.Status == StatusDownloading
}
