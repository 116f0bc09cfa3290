package stream

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/fleetwire/fleetwire/internal/storage/pebble"
	"github.com/fleetwire/fleetwire/internal/telemetry"
)

// Partition provides append and ordered-read operations for one partition of
// a telemetry stream.
type Partition struct {
	db        *pebblestore.DB
	namespace string
	stream    string
	part      uint32

	mu       sync.Mutex
	lastSeq  uint64
	notifyCh chan struct{}
}

// OpenPartition initializes a Partition and restores lastSeq from metadata.
func OpenPartition(db *pebblestore.DB, namespace, stream string, partition uint32) (*Partition, error) {
	p := &Partition{db: db, namespace: namespace, stream: stream, part: partition, notifyCh: make(chan struct{})}
	meta, err := db.Get(KeyPartitionMeta(namespace, stream, partition))
	if err == nil && len(meta) >= 8 {
		p.lastSeq = binary.BigEndian.Uint64(meta[:8])
	}
	return p, nil
}

// Index returns the partition ordinal.
func (p *Partition) Index() uint32 { return p.part }

// Append stores the events as one atomic batch and returns assigned sequence
// numbers. Sequences are contiguous and strictly increasing per partition.
func (p *Partition) Append(ctx context.Context, events []telemetry.Event) ([]uint64, error) {
	if len(events) == 0 {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.db.NewBatch()
	defer b.Close()

	seqs := make([]uint64, len(events))
	for i, ev := range events {
		if ev.EnqueuedMs == 0 {
			ev.EnqueuedMs = time.Now().UnixMilli()
		}
		val, err := telemetry.Encode(ev)
		if err != nil {
			return nil, err
		}
		p.lastSeq++
		if err := b.Set(KeyEntry(p.namespace, p.stream, p.part, p.lastSeq), val, nil); err != nil {
			return nil, err
		}
		seqs[i] = p.lastSeq
	}

	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], p.lastSeq)
	if err := b.Set(KeyPartitionMeta(p.namespace, p.stream, p.part), meta[:], nil); err != nil {
		return nil, err
	}

	if err := p.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	close(p.notifyCh)
	p.notifyCh = make(chan struct{})
	return seqs, nil
}

// Item is one stored event with its partition sequence.
type Item struct {
	Seq   uint64
	Event telemetry.Event
}

// ReadFrom returns up to limit events with seq >= startSeq in sequence order.
// Entries that fail frame validation are skipped; their sequence is still
// consumed so the caller's cursor can advance past them.
func (p *Partition) ReadFrom(startSeq uint64, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 256
	}
	low := KeyEntry(p.namespace, p.stream, p.part, startSeq)
	hi := KeyEntry(p.namespace, p.stream, p.part, ^uint64(0))
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	items := make([]Item, 0, limit)
	for ok := iter.First(); ok && len(items) < limit; ok = iter.Next() {
		k := iter.Key()
		seq := binary.BigEndian.Uint64(k[len(k)-8:])
		ev, okDec := telemetry.Decode(iter.Value())
		if !okDec {
			continue
		}
		items = append(items, Item{Seq: seq, Event: ev})
	}
	return items, nil
}

// LastSeq returns the highest assigned sequence.
func (p *Partition) LastSeq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeq
}

// WaitForAppend blocks until a new append occurs or timeout elapses. Returns
// true when woken by an append.
func (p *Partition) WaitForAppend(timeout time.Duration) bool {
	p.mu.Lock()
	ch := p.notifyCh
	p.mu.Unlock()
	if timeout <= 0 {
		<-ch
		return true
	}
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}
