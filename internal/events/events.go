// Package events defines the tagged event variants published on the
// EventBus and emitted over SSE, replacing the "dynamic dict payload"
// pattern the source system used for both (spec.md §9 design note:
// "replace with tagged variants / structs per event kind; serialize at the
// boundary only").
package events

import "time"

// Topic names used on the EventBus (spec.md §6 "EventBus payloads").
const (
	TopicPlayback   = "playback"
	TopicVoteEvents = "vote-events"
	TopicTally      = "tally"
)

// Kind discriminates event payloads once they reach an untyped boundary
// (EventBus message, SSE frame).
type Kind string

const (
	KindChangeover      Kind = "CHANGEOVER"
	KindNextSongChanged Kind = "NEXT-SONG-CHANGED"
	KindPollOpen        Kind = "OPEN"
	KindPollClose       Kind = "CLOSE"
)

// Changeover is published by RotationEngine after committing a tick
// (spec.md §4.1 step 7).
type Changeover struct {
	VoteID     string    `json:"voteId"`
	DurationMs int64     `json:"durationMs"`
	Version    int64     `json:"version"`
	TS         time.Time `json:"ts"`
}

func (Changeover) Kind() Kind { return KindChangeover }

// NextSongChanged is published whenever StationRecord.next changes, either
// during a rotation or via replaceNextIfStubbed.
type NextSongChanged struct {
	VoteID     string    `json:"voteId"`
	DurationMs int64     `json:"durationMs"`
	Version    int64     `json:"version"`
	TS         time.Time `json:"ts"`
}

func (NextSongChanged) Kind() Kind { return KindNextSongChanged }

// PollOpened is published by PollEngine.openPoll.
type PollOpened struct {
	VoteID  string    `json:"voteId"`
	EndAt   time.Time `json:"endAt"`
	Version int64     `json:"version"`
	TS      time.Time `json:"ts"`
}

func (PollOpened) Kind() Kind { return KindPollOpen }

// PollClosed is published by PollEngine.closePoll.
type PollClosed struct {
	VoteID       string    `json:"voteId"`
	WinnerOption string    `json:"winnerOption"`
	Version      int64     `json:"version"`
	TS           time.Time `json:"ts"`
}

func (PollClosed) Kind() Kind { return KindPollClose }
