// Package kv implements the fast key-value store with server-side
// scripting: TallyMap, VotedSet, and the cached playback Snapshot,
// mutated only via the named atomic scripts of spec.md §6 (KV-OPEN,
// KV-VOTE, KV-HEARTBEAT) or plain SET for the Snapshot.
package kv

import "time"

// SnapshotSong is the playback-facing view of a song in a Snapshot.
type SnapshotSong struct {
	VoteID     string    `json:"voteId"`
	StartAt    time.Time `json:"startAt,omitzero"`
	EndAt      time.Time `json:"endAt,omitzero"`
	DurationMs int64     `json:"durationMs"`
}

// SnapshotPoll is the playback-facing view of the current poll in a
// Snapshot.
type SnapshotPoll struct {
	VoteID  string   `json:"voteId"`
	Options []string `json:"options"`
	Version int64    `json:"version"`
	Status  string   `json:"status"`
	EndAt   time.Time `json:"endAt,omitzero"`
}

// Snapshot is the cached JSON view of "current song + next song + current
// poll" used by vote validation and by StreamHub.
type Snapshot struct {
	CurrentSong SnapshotSong `json:"currentSong"`
	NextSong    SnapshotSong `json:"nextSong"`
	Poll        SnapshotPoll `json:"poll"`
}
