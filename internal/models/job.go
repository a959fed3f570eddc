package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobType identifies the kind of asynchronous work a job performs.
type JobType string

const (
	JobTypeMaterialEnhance JobType = "MATERIAL_ENHANCE"
	JobTypeTemplateRender  JobType = "TEMPLATE_RENDER"
)

// Valid returns true if the job type is one of the known types.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeMaterialEnhance, JobTypeTemplateRender:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of a job as seen by its owner.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal returns true once a job can no longer change state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// jobTransitions is the forward-only transition table. A terminal status has
// no successors; pending may fail directly via the reconciliation sweep.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusActive, JobStatusFailed, JobStatusCancelled},
	JobStatusActive:  {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PriorStatuses returns the set of statuses from which next is reachable.
// Used by stores to make status updates conditional in a single statement.
func PriorStatuses(next JobStatus) []JobStatus {
	var prior []JobStatus
	for from, allowed := range jobTransitions {
		for _, to := range allowed {
			if to == next {
				prior = append(prior, from)
			}
		}
	}
	return prior
}

// Job is a unit of asynchronous work submitted by a user. The row is a
// projection for the owning user; the queue task is the system of record
// for execution. UserID is immutable after creation, and the payload is
// opaque to everything except the worker handler for its type.
type Job struct {
	JobID       uuid.UUID       `json:"jobId"`
	UserID      uuid.UUID       `json:"userId"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	QueueTaskID uuid.UUID       `json:"-"`
	Payload     json.RawMessage `json:"payload"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
