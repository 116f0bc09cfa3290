package lease

import (
	"encoding/binary"
	"fmt"

	pebblestore "github.com/fleetwire/fleetwire/internal/storage/pebble"
)

// Cursor marks the last-consumed position of one stream partition for a
// consumer group. Offset is an opaque resume token owned by the stream;
// Sequence is the monotonic checkpoint ordinal.
type Cursor struct {
	Namespace string
	Group     string
	Stream    string
	Partition uint32
	Offset    string
	Sequence  uint64
}

// Zero reports whether the cursor carries no persisted position.
func (c Cursor) Zero() bool { return c.Sequence == 0 && c.Offset == "" }

// Store persists cursors in Pebble. Partition ownership is arbitrated
// externally, so last-writer-wins on a key is acceptable; within one owner the
// store enforces that a persisted sequence never regresses.
type Store struct {
	db *pebblestore.DB
}

// NewStore returns a Store backed by db.
func NewStore(db *pebblestore.DB) *Store { return &Store{db: db} }

// Value encoding: seq (8B BE) | offset bytes.

func encodeCursor(c Cursor) []byte {
	out := make([]byte, 8, 8+len(c.Offset))
	binary.BigEndian.PutUint64(out[:8], c.Sequence)
	return append(out, c.Offset...)
}

// Load returns the stored cursor for the identity, or a zero-position cursor
// when none has been saved yet.
func (s *Store) Load(namespace, group, stream string, partition uint32) (Cursor, error) {
	c := Cursor{Namespace: namespace, Group: group, Stream: stream, Partition: partition}
	val, err := s.db.Get(Key(namespace, group, stream, partition))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return c, nil
		}
		return c, fmt.Errorf("lease load: %w", err)
	}
	if len(val) < 8 {
		return c, nil
	}
	c.Sequence = binary.BigEndian.Uint64(val[:8])
	c.Offset = string(val[8:])
	return c, nil
}

// Save persists the cursor. A stored sequence greater than or equal to the
// incoming one wins: stale saves are ignored, so the checkpoint never
// regresses even across restarts or duplicate final checkpoints.
func (s *Store) Save(c Cursor) error {
	key := Key(c.Namespace, c.Group, c.Stream, c.Partition)
	if prev, err := s.db.Get(key); err == nil && len(prev) >= 8 {
		if c.Sequence <= binary.BigEndian.Uint64(prev[:8]) {
			return nil
		}
	}
	if err := s.db.Set(key, encodeCursor(c)); err != nil {
		return fmt.Errorf("lease save: %w", err)
	}
	return nil
}
