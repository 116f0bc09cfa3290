package cmdqueue

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/fleetwire/fleetwire/internal/command"
	"github.com/fleetwire/fleetwire/internal/sink"
	pebblestore "github.com/fleetwire/fleetwire/internal/storage/pebble"
)

// Queue is the durable FIFO of outbound commands. Enqueue couples the queue
// append with the sink's command-row insert so a reported failure leaves no
// trace in either store; Head/Commit split dequeue into a non-destructive
// read and an atomic removal so the dispatch loop can record the send outcome
// in the same removal batch.
type Queue struct {
	db        *pebblestore.DB
	sink      sink.Sink
	namespace string
	name      string

	mu      sync.Mutex
	lastSeq uint64
}

// Open restores the queue's lastSeq from metadata if present.
func Open(db *pebblestore.DB, s sink.Sink, namespace, name string) (*Queue, error) {
	q := &Queue{db: db, sink: s, namespace: namespace, name: name}
	if meta, err := db.Get(MetaKey(namespace, name)); err == nil && len(meta) >= 8 {
		q.lastSeq = binary.BigEndian.Uint64(meta[:8])
	}
	return q, nil
}

// Enqueue appends cmd to the queue tail and inserts the command row into the
// sink as one all-or-nothing unit. The sink insert happens before the queue
// batch commits: a sink failure aborts the enqueue with nothing visible, and
// a commit failure after the insert compensates by deleting the sink row.
func (q *Queue) Enqueue(ctx context.Context, cmd command.Command) error {
	val, err := EncodeEntry(cmd)
	if err != nil {
		return fmt.Errorf("cmdqueue encode: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	b := q.db.NewBatch()
	defer b.Close()

	seq := q.lastSeq + 1
	if err := b.Set(EntryKey(q.namespace, q.name, seq), val, nil); err != nil {
		return err
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], seq)
	if err := b.Set(MetaKey(q.namespace, q.name), meta[:], nil); err != nil {
		return err
	}

	if err := q.sink.InsertCommand(ctx, cmd); err != nil {
		return fmt.Errorf("cmdqueue sink insert: %w", err)
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		// the command must not be observable anywhere after a failed enqueue
		_ = q.sink.DeleteCommand(ctx, cmd.ID)
		return fmt.Errorf("cmdqueue commit: %w", err)
	}
	q.lastSeq = seq
	return nil
}

// Head returns the queue head without removing it. ok is false when the
// queue is empty. The returned seq is the handle for Commit.
func (q *Queue) Head() (command.Command, uint64, bool, error) {
	prefix := EntryPrefix(q.namespace, q.name)
	hi := append(append([]byte{}, prefix...), 0xFF)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: hi})
	if err != nil {
		return command.Command{}, 0, false, err
	}
	defer iter.Close()

	for ok := iter.First(); ok; ok = iter.Next() {
		k := iter.Key()
		seq := binary.BigEndian.Uint64(k[len(k)-8:])
		cmd, okDec := DecodeEntry(iter.Value())
		if !okDec {
			// corrupt entry: skip it here, Commit(seq) removes it for good
			return command.Command{}, seq, false, fmt.Errorf("cmdqueue: corrupt entry at seq %d", seq)
		}
		return cmd, seq, true, nil
	}
	return command.Command{}, 0, false, nil
}

// Commit removes the entry at seq in one atomic batch. The entry leaves the
// queue exactly once per successful commit, regardless of the send outcome
// the caller recorded elsewhere.
func (q *Queue) Commit(ctx context.Context, seq uint64) error {
	b := q.db.NewBatch()
	defer b.Close()
	if err := b.Delete(EntryKey(q.namespace, q.name, seq), nil); err != nil {
		return err
	}
	return q.db.CommitBatch(ctx, b)
}

// Len counts the entries currently queued. Intended for tests and metrics.
func (q *Queue) Len() (int, error) {
	prefix := EntryPrefix(q.namespace, q.name)
	hi := append(append([]byte{}, prefix...), 0xFF)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	return n, nil
}
