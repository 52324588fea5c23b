package core

import (
	"encoding/json"
	"strings"
)

// JobKind identifies a class of remote work item.
type JobKind string

const (
	KindUpload         JobKind = "upload"
	KindLayoutAnalysis JobKind = "layout_analysis"
	KindOCR            JobKind = "ocr"
	KindExport         JobKind = "export"
)

// Stages returns the per-document processing order.
func Stages() []JobKind {
	return []JobKind{KindLayoutAnalysis, KindOCR, KindExport}
}

// Valid reports whether k is one of the known kinds.
func (k JobKind) Valid() bool {
	switch k {
	case KindUpload, KindLayoutAnalysis, KindOCR, KindExport:
		return true
	}
	return false
}

// JobState is the normalized state of a remote job.
type JobState string

const (
	StatePending  JobState = "pending"
	StateRunning  JobState = "running"
	StateFinished JobState = "finished"
	StateFailed   JobState = "failed"
)

// Terminal reports whether the remote service will not change the state again.
func (s JobState) Terminal() bool {
	return s == StateFinished || s == StateFailed
}

// ParseJobState maps a raw service state onto the closed JobState set.
// Unknown values are rejected so that new remote states fail loudly.
func ParseJobState(raw string) (JobState, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CREATED", "WAITING", "PENDING", "QUEUED":
		return StatePending, nil
	case "RUNNING":
		return StateRunning, nil
	case "FINISHED":
		return StateFinished, nil
	case "FAILED", "CANCELED", "CANCELLED":
		return StateFailed, nil
	}
	return "", &ParseError{What: "job state", Raw: raw}
}

// JobHandle references a submitted remote job. ID is empty when the service
// did not return one; DocumentID is empty for uploads.
type JobHandle struct {
	ID         string  `json:"id,omitempty"`
	Kind       JobKind `json:"kind"`
	DocumentID string  `json:"document_id,omitempty"`
}

// RemoteJob is a snapshot of one remote job as returned by a single poll.
type RemoteJob struct {
	ID         string          `json:"id"`
	Kind       JobKind         `json:"kind,omitempty"`
	RemoteType string          `json:"remote_type"`
	DocumentID string          `json:"document_id,omitempty"`
	State      JobState        `json:"state"`
	Result     string          `json:"result,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// Matches reports whether the job belongs to the given kind and, when known,
// document.
func (j RemoteJob) Matches(kind JobKind, documentID string) bool {
	if j.Kind != kind {
		return false
	}
	return documentID == "" || j.DocumentID == documentID
}

// JobFilter narrows a job listing. With JobID set only that job is queried.
type JobFilter struct {
	Kind       JobKind
	DocumentID string
	JobID      string
}
