package domain

// JobRepository defines the interface for job history persistence.
// The scheduler owns live jobs in memory; the repository mirrors every
// state transition so history and stats survive restarts.
type JobRepository interface {
	// Create creates a new job record
	Create(job *Job) error

	// Update updates an existing job record
	Update(job *Job) error

	// Delete deletes a job record by ID
	Delete(id string) error

	// FindByID finds a job by ID
	FindByID(id string) (*Job, error)

	// FindByStatus finds jobs by status
	FindByStatus(status JobStatus) ([]*Job, error)

	// FindAll finds all jobs, newest first
	FindAll() ([]*Job, error)

	// DeleteTerminal removes completed, errored and cancelled records
	DeleteTerminal() (int64, error)

	// CountByStatus returns the number of jobs by status
	CountByStatus(status JobStatus) (int64, error)

	// GetStats returns job statistics
	GetStats() (*JobStats, error)
}

// JobStats represents queue statistics
type JobStats struct {
	Total       int64 `json:"total"`
	Queued      int64 `json:"queued"`
	Analyzing   int64 `json:"analyzing"`
	Ready       int64 `json:"ready"`
	Blocked     int64 `json:"blocked"`
	Downloading int64 `json:"downloading"`
	Completed   int64 `json:"completed"`
	Error       int64 `json:"error"`
	Cancelled   int64 `json:"cancelled"`
}
