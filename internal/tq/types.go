// Package tq implements the durable, self-dispatching delayed task queue
// used to drive RotationEngine's ticks and poll-close deadlines (spec.md
// §4.1 step 8, §5 "Cancellation and timeouts", §6 "TQ tasks"). Tasks carry
// a deterministic id so redelivery after a crash or a duplicate enqueue is
// always safe.
package tq

import (
	"encoding/json"
	"strconv"
	"time"
)

// Kind names the HTTP path a task is dispatched to on self-invocation.
type Kind string

const (
	KindTick     Kind = "tick"
	KindVoteClose Kind = "vote-close"
)

// Task is one durable, delayed self-invocation.
type Task struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	RunAt     time.Time       `json:"runAt"`
	CreatedAt time.Time       `json:"createdAt"`
	Attempts  int             `json:"attempts"`
	Status    Status          `json:"status"`
}

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed" // exhausted retries; kept for inspection, never redelivered
)

// TickID is the deterministic id for a tick task, keyed by the playback
// voteId, the song's endAt epoch, and the rotation version that scheduled
// it (spec.md §4.1 step 8).
func TickID(voteID string, endAtEpochMs int64, version int64) string {
	return "playback-" + voteID + "-" + strconv.FormatInt(endAtEpochMs, 10) + "-" + strconv.FormatInt(version, 10)
}

// VoteCloseID is the deterministic id for a poll-close task.
func VoteCloseID(pollVoteID string, pollVersion int64) string {
	return "vote-close-" + pollVoteID + "-" + strconv.FormatInt(pollVersion, 10)
}
