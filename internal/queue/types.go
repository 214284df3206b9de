// Package queue implements the job orchestrator's core: a durable,
// single-writer-per-row Postgres queue providing at-least-once execution
// with lease-based ownership.
package queue

import (
	"encoding/json"
	"time"

	"github.com/ferrex-media/ferrex/internal/ids"
)

type Kind string

const (
	KindFolderScan     Kind = "scan"
	KindMediaAnalyze   Kind = "analyze"
	KindMetadataEnrich Kind = "metadata"
	KindIndexUpsert    Kind = "index"
	KindImageFetch     Kind = "image"
)

var AllKinds = []Kind{KindFolderScan, KindMediaAnalyze, KindMetadataEnrich, KindIndexUpsert, KindImageFetch}

type Priority int16

const (
	P0 Priority = 0
	P1 Priority = 1
	P2 Priority = 2
	P3 Priority = 3
)

type State string

const (
	StateReady      State = "ready"
	StateLeased     State = "leased"
	StateDeferred   State = "deferred"
	StateFailed     State = "failed"
	StateDeadLetter State = "dead_letter"
	StateCompleted  State = "completed"
)

// activeStates are the states the dedupe_key uniqueness constraint is
// scoped over.
var activeStates = []State{StateReady, StateDeferred, StateLeased}

// Payload is the opaque, job-kind-specific blob every job record carries. It
// always includes the owning library so the dequeue selector can filter on
// it without decoding the rest.
type Payload struct {
	LibraryID ids.LibraryID   `json:"library_id"`
	Kind      Kind            `json:"kind"`
	Params    json.RawMessage `json:"params,omitempty"`
}

type EnqueueRequest struct {
	Payload   Payload
	Priority  Priority
	DedupeKey string // derived from Payload if empty
}

type Outcome string

const (
	Accepted Outcome = "accepted"
	Merged   Outcome = "merged"
)

type JobHandle struct {
	ID      ids.JobID
	Outcome Outcome
}

type Selector struct {
	LibraryID ids.LibraryID
	Priority  Priority
}

type DequeueRequest struct {
	Kind     Kind
	Selector *Selector
	LeaseTTL time.Duration
	WorkerID string
}

type JobRecord struct {
	ID             ids.JobID
	LibraryID      ids.LibraryID
	Kind           Kind
	Payload        Payload
	Priority       Priority
	State          State
	Attempts       int
	AvailableAt    time.Time
	LeaseOwner     *string
	LeaseID        *ids.LeaseID
	LeaseExpiresAt *time.Time
	DedupeKey      string
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Lease struct {
	LeaseID   ids.LeaseID
	Job       JobRecord
	WorkerID  string
	ExpiresAt time.Time
}

// ReadyCount is one row of ready_counts_grouped: a per-(kind, library,
// priority) tally used to prime in-memory schedulers after cold start.
type ReadyCount struct {
	Kind      Kind
	LibraryID ids.LibraryID
	Priority  Priority
	Ready     int
}

// StateCount is one row of the metrics snapshot: per-(kind, state) counts
// across the whole table, not just Ready.
type StateCount struct {
	Kind  Kind
	State State
	Count int
}
