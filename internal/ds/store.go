package ds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/pulsefm/pulsefm/internal/xerrors"
)

const (
	keyStation    = "station:main"
	keyPollState  = "poll:current"
	prefixSongByID = "song:byid:"
	prefixSongReady = "song:ready:"
)

func songKey(voteID string) []byte { return []byte(prefixSongByID + voteID) }

// readyIndexKey encodes createdAt so that ascending key order visits the
// newest song first: invertedTs = MaxInt64 - createdAt.UnixNano() means a
// larger createdAt produces a smaller invertedTs, and badger's default
// forward iteration is lexicographic ascending.
func readyIndexKey(createdAt time.Time, voteID string) []byte {
	inverted := math.MaxInt64 - createdAt.UnixNano()
	return []byte(fmt.Sprintf("%s%020d:%s", prefixSongReady, inverted, voteID))
}

// Store is the durable document store, backed by an embedded badger
// database. All mutation goes through Update, which wraps exactly one
// badger transaction — the sole mechanism by which StationRecord, Song, and
// PollState may be changed (spec.md §5, "Shared-resource policy").
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) a badger database at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, xerrors.Unavailable("ds_open_failed", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Txn scopes document reads/writes to one badger transaction.
type Txn struct {
	txn *badger.Txn
}

// Update runs fn inside a single read-write transaction. If fn returns an
// error the transaction is discarded; partial writes inside one Update call
// are impossible because badger commits atomically (spec.md §7).
func (s *Store) Update(ctx context.Context, fn func(t *Txn) error) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return fn(&Txn{txn: txn})
	})
	if err != nil {
		if xe, ok := xerrors.As(err); ok {
			return xe
		}
		return xerrors.Unavailable("ds_transaction_failed", err)
	}
	return nil
}

// View runs fn inside a single read-only transaction.
func (s *Store) View(ctx context.Context, fn func(t *Txn) error) error {
	err := s.db.View(func(txn *badger.Txn) error {
		return fn(&Txn{txn: txn})
	})
	if err != nil {
		if xe, ok := xerrors.As(err); ok {
			return xe
		}
		return xerrors.Unavailable("ds_transaction_failed", err)
	}
	return nil
}

func getJSON(txn *badger.Txn, key []byte, out any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Unavailable("ds_get_failed", err)
	}
	var found bool
	err = item.Value(func(val []byte) error {
		found = true
		return json.Unmarshal(val, out)
	})
	if err != nil {
		return false, xerrors.Corrupt("ds_decode_failed", err)
	}
	return found, nil
}

func setJSON(txn *badger.Txn, key []byte, val any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return xerrors.Corrupt("ds_encode_failed", err)
	}
	if err := txn.Set(key, data); err != nil {
		return xerrors.Unavailable("ds_set_failed", err)
	}
	return nil
}

// GetStationRecord reads the singleton StationRecord document. ok is false
// if bootstrap has not yet run.
func (t *Txn) GetStationRecord() (rec *StationRecord, ok bool, err error) {
	rec = &StationRecord{}
	found, err := getJSON(t.txn, []byte(keyStation), rec)
	if err != nil || !found {
		return nil, false, err
	}
	return rec, true, nil
}

// PutStationRecord writes the singleton StationRecord document.
func (t *Txn) PutStationRecord(rec *StationRecord) error {
	return setJSON(t.txn, []byte(keyStation), rec)
}

// GetSong reads a Song by voteId.
func (t *Txn) GetSong(voteID string) (song *Song, ok bool, err error) {
	song = &Song{}
	found, err := getJSON(t.txn, songKey(voteID), song)
	if err != nil || !found {
		return nil, false, err
	}
	return song, true, nil
}

// PutSong writes a Song and maintains the ready-scan index: a song is
// indexed only while status == ready, because ScanReadyDesc never needs to
// visit queued/played songs. StubbedVoteID is never indexed: it is the
// fallback loop song, reached only via the explicit GetSong(StubbedVoteID)
// path in a candidate scan miss, and must never be consumed as a normal
// ready candidate (spec.md §3).
func (t *Txn) PutSong(song *Song) error {
	if err := setJSON(t.txn, songKey(song.VoteID), song); err != nil {
		return err
	}
	idxKey := readyIndexKey(song.CreatedAt, song.VoteID)
	if song.Status == SongReady && song.VoteID != StubbedVoteID {
		if err := t.txn.Set(idxKey, []byte(song.VoteID)); err != nil {
			return xerrors.Unavailable("ds_set_failed", err)
		}
		return nil
	}
	if err := t.txn.Delete(idxKey); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return xerrors.Unavailable("ds_delete_failed", err)
	}
	return nil
}

// ScanReadyDesc returns up to limit ready songs ordered by createdAt
// descending, skipping excludeVoteID (the currently-playing song, so a
// single ready song never repeats immediately — spec.md §4.1).
func (t *Txn) ScanReadyDesc(excludeVoteID string, limit int) ([]*Song, error) {
	it := t.txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var out []*Song
	prefix := []byte(prefixSongReady)
	for it.Seek(prefix); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
		item := it.Item()
		var voteID string
		if err := item.Value(func(val []byte) error {
			voteID = string(val)
			return nil
		}); err != nil {
			return nil, xerrors.Unavailable("ds_get_failed", err)
		}
		if voteID == excludeVoteID {
			continue
		}
		song, ok, err := t.GetSong(voteID)
		if err != nil {
			return nil, err
		}
		if !ok || song.Status != SongReady {
			continue // index briefly stale within this txn view; skip rather than fail
		}
		out = append(out, song)
	}
	return out, nil
}

// GetPollState reads the singleton "current" PollState document.
func (t *Txn) GetPollState() (state *PollState, ok bool, err error) {
	state = &PollState{}
	found, err := getJSON(t.txn, []byte(keyPollState), state)
	if err != nil || !found {
		return nil, false, err
	}
	return state, true, nil
}

// PutPollState writes the singleton "current" PollState document.
func (t *Txn) PutPollState(state *PollState) error {
	return setJSON(t.txn, []byte(keyPollState), state)
}
