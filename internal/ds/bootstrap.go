package ds

import (
	"context"
	"time"
)

// Bootstrap writes the initial StationRecord and stubbed Song if (and only
// if) no StationRecord exists yet, per spec.md §6 "Bootstrap". It is safe to
// call on every process start: once seeded, it is a no-op.
func (s *Store) Bootstrap(ctx context.Context, stubbedDurationMs int64) error {
	return s.Update(ctx, func(t *Txn) error {
		if _, ok, err := t.GetStationRecord(); err != nil {
			return err
		} else if ok {
			return nil
		}

		now := time.Now().UTC()
		if err := t.PutSong(&Song{
			VoteID:     StubbedVoteID,
			DurationMs: stubbedDurationMs,
			Status:     SongReady,
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		return t.PutStationRecord(&StationRecord{
			VoteID:     StubbedVoteID,
			StartAt:    now,
			EndAt:      now,
			DurationMs: stubbedDurationMs,
			Version:    0,
			Next: NextSong{
				VoteID:     StubbedVoteID,
				DurationMs: stubbedDurationMs,
			},
		})
	})
}
