package model

import "time"

// JobStatus is the lifecycle state of one dispatch job.
type JobStatus string

const (
	JobRunning            JobStatus = "running"
	JobPartiallyCompleted JobStatus = "partially_completed"
	JobCompleted          JobStatus = "completed"
	JobFailed             JobStatus = "failed"
	JobCancelled          JobStatus = "cancelled"
)

// Attempt records the outcome of a single send try within a job.
// Repetition counts requested sends (1..count); Try counts retries of
// one repetition (1..maxRetries).
type Attempt struct {
	Repetition int       `json:"repetition"`
	Try        int       `json:"try"`
	OK         bool      `json:"ok"`
	ErrKind    string    `json:"errKind,omitempty"`
	At         time.Time `json:"at"`
}

// DispatchJob is one outbound-send request and its recorded progress.
type DispatchJob struct {
	ID         string     `json:"id"`
	CallerID   string     `json:"callerId"`
	Template   string     `json:"template"`
	Target     string     `json:"target"`
	Identity   string     `json:"identity,omitempty"`
	Count      int        `json:"count"`
	DelayMs    int64      `json:"delayMs"`
	Status     JobStatus  `json:"status"`
	Attempts   []Attempt  `json:"attempts"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}
