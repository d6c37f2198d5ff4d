package streamhub

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

type helloPayload struct {
	VoteID       string `json:"voteId"`
	TS           int64  `json:"ts"`
	Version      int64  `json:"version"`
	HeartbeatSec int64  `json:"heartbeatSec"`
}

type tallySnapshotPayload struct {
	VoteID       string           `json:"voteId"`
	TS           int64            `json:"ts"`
	Tallies      map[string]int64 `json:"tallies"`
	Status       string           `json:"status"`
	WinnerOption string           `json:"winnerOption,omitempty"`
}

type tallyDeltaPayload struct {
	VoteID    string           `json:"voteId"`
	TS        int64            `json:"ts"`
	Delta     map[string]int64 `json:"delta"`
	Listeners int              `json:"listeners"`
}

type songChangedPayload struct {
	VoteID  string `json:"voteId"`
	TS      int64  `json:"ts"`
	Version int64  `json:"version"`
}

type voteClosedPayload struct {
	VoteID       string `json:"voteId"`
	WinnerOption string `json:"winnerOption"`
	TS           int64  `json:"ts"`
}

type nextSongChangedPayload struct {
	VoteID     string `json:"voteId"`
	DurationMs int64  `json:"durationMs"`
	Version    int64  `json:"version"`
	TS         int64  `json:"ts"`
}

type heartbeatPayload struct {
	VoteID string `json:"voteId"`
	TS     int64  `json:"ts"`
}

func epochMs(t time.Time) int64 { return t.UnixMilli() }

// writeFrame encodes one SSE record: "event: <name>\ndata: <json>\n\n".
func writeFrame(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
