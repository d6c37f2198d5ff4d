// Package rotation implements RotationEngine (spec.md §4.1): advancing
// playback from the scheduled "next" song, rotating the poll alongside it,
// and scheduling the TQ tasks that drive the next cycle.
package rotation

// TickOutcome is the sum type spec.md §9 asks for in place of a
// heterogeneous "ok/noop" dict returned by tick().
type TickOutcome struct {
	committed bool
	version   int64
	reason    string
}

func Committed(version int64) TickOutcome { return TickOutcome{committed: true, version: version} }
func TickNoop(reason string) TickOutcome  { return TickOutcome{reason: reason} }

func (o TickOutcome) IsCommitted() bool { return o.committed }
func (o TickOutcome) Version() int64    { return o.version }
func (o TickOutcome) Reason() string    { return o.reason }

// ReplaceOutcome is the sum type for replaceNextIfStubbed's three results.
type ReplaceOutcome struct {
	kind string // "updated", "already_set", "noop"
}

func ReplaceUpdated() ReplaceOutcome     { return ReplaceOutcome{kind: "updated"} }
func ReplaceAlreadySet() ReplaceOutcome  { return ReplaceOutcome{kind: "already_set"} }
func ReplaceNoop() ReplaceOutcome        { return ReplaceOutcome{kind: "noop"} }
func (o ReplaceOutcome) Kind() string    { return o.kind }
