// Package poll implements PollEngine (spec.md §4.2): opening, voting on,
// and closing the poll that runs alongside each song's playback window.
package poll

// CloseOutcome is the sum type spec.md §9 asks for in place of a
// heterogeneous "noop / closed" dict: Closed carries the winning option,
// Noop carries why nothing happened.
type CloseOutcome struct {
	closed       bool
	winnerOption string
	reason       string
}

// Closed reports a successful close with winnerOption.
func Closed(winnerOption string) CloseOutcome {
	return CloseOutcome{closed: true, winnerOption: winnerOption}
}

// Noop reports a close attempt that changed nothing.
func Noop(reason string) CloseOutcome {
	return CloseOutcome{reason: reason}
}

func (o CloseOutcome) IsClosed() bool       { return o.closed }
func (o CloseOutcome) WinnerOption() string { return o.winnerOption }
func (o CloseOutcome) Reason() string       { return o.reason }

// VoteOutcome enumerates the result of a single vote() call (spec.md §4.2).
type VoteOutcome string

const (
	VoteOK             VoteOutcome = "ok"
	VoteDuplicate      VoteOutcome = "duplicate"
	VoteInvalidOption  VoteOutcome = "invalid_option"
	VoteNotOpen        VoteOutcome = "vote_not_open"
	VoteNotCurrent     VoteOutcome = "vote_not_current"
)
