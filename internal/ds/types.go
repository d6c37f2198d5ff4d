// Package ds implements the durable document store: StationRecord, Song, and
// PollState, each mutated only inside a single badger transaction per
// spec.md §3/§5.
package ds

import "time"

// StubbedVoteID is the reserved voteId for the fallback loop song. It is
// never consumed and never transitions status.
const StubbedVoteID = "stubbed"

// SongStatus is the lifecycle state of a Song document.
type SongStatus string

const (
	SongReady  SongStatus = "ready"
	SongQueued SongStatus = "queued"
	SongPlayed SongStatus = "played"
)

// NextSong names the candidate promoted on the next rotation.
type NextSong struct {
	VoteID     string `json:"voteId"`
	DurationMs int64  `json:"durationMs"`
}

// StationRecord is the singleton "main" document describing what is
// currently playing and what plays next.
type StationRecord struct {
	VoteID     string    `json:"voteId"`
	StartAt    time.Time `json:"startAt"`
	EndAt      time.Time `json:"endAt"`
	DurationMs int64     `json:"durationMs"`
	Version    int64     `json:"version"`
	Next       NextSong  `json:"next"`
}

// Song is a generated (or stubbed) track, keyed by voteId.
type Song struct {
	VoteID     string     `json:"voteId"`
	DurationMs int64      `json:"durationMs"`
	Status     SongStatus `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// PollStatus is the lifecycle state of a PollState document.
type PollStatus string

const (
	PollOpen   PollStatus = "OPEN"
	PollClosed PollStatus = "CLOSED"
)

// PollState is the singleton "current" poll document.
type PollState struct {
	VoteID       string           `json:"voteId"`
	Status       PollStatus       `json:"status"`
	StartAt      time.Time        `json:"startAt"`
	EndAt        time.Time        `json:"endAt"`
	DurationMs   int64            `json:"durationMs"`
	Options      []string         `json:"options"`
	Tallies      map[string]int64 `json:"tallies"`
	Version      int64            `json:"version"`
	WinnerOption string           `json:"winnerOption,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	ClosedAt     *time.Time       `json:"closedAt,omitempty"`
}
