// Package structs defines export job domain models.
package structs

import (
	"strings"
	"time"
)

// Format identifies the requested export file format.
type Format string

const (
	FormatExcel Format = "excel"
	FormatPDF   Format = "pdf"
)

// JobStatus is the closed set of local job states. Remote status strings
// are mapped onto it at the coordinator boundary; unrecognized remote
// values never reach a Job.
type JobStatus string

const (
	JobStatusPending  JobStatus = "PENDING"
	JobStatusProgress JobStatus = "PROGRESS"
	JobStatusSuccess  JobStatus = "SUCCESS"
	JobStatusFailure  JobStatus = "FAILURE"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailure
}

// Progress carries remote progress counters while a job is running.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Job represents one export request's lifecycle. The coordinator owns
// every Job exclusively; consumers only ever see snapshots.
type Job struct {
	TaskID      string     `json:"task_id"`
	Format      Format     `json:"format"`
	Status      JobStatus  `json:"status"`
	Progress    *Progress  `json:"progress,omitempty"`
	FilePath    string     `json:"file_path,omitempty"`
	FileName    string     `json:"file_name,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a snapshot copy safe to hand outside the coordinator.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Progress != nil {
		p := *j.Progress
		cp.Progress = &p
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// DefaultFileName returns the generic file name for a format, used when
// the remote file path has no usable last segment.
func DefaultFileName(format Format) string {
	if format == FormatPDF {
		return "export.pdf"
	}
	return "export.xlsx"
}

// FileNameFromPath extracts the last path segment, falling back to the
// format's generic name.
func FileNameFromPath(filePath string, format Format) string {
	trimmed := strings.TrimRight(filePath, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if trimmed == "" {
		return DefaultFileName(format)
	}
	return trimmed
}
