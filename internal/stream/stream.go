package stream

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	pebblestore "github.com/fleetwire/fleetwire/internal/storage/pebble"
	"github.com/fleetwire/fleetwire/internal/telemetry"
)

// Source is the inbound event source contract the consumers depend on:
// enumerate partitions and pull ordered batches at a position. The embedded
// Stream implements it; a broker-backed source could replace it without
// touching the consumer.
type Source interface {
	Partitions() int
	Partition(i uint32) (*Partition, error)
}

// Stream is a partitioned, durable telemetry stream. Events are routed to a
// partition by device id so per-device arrival order is preserved.
type Stream struct {
	db         *pebblestore.DB
	namespace  string
	name       string
	partitions uint32
	parts      []*Partition
}

// Open creates or opens a stream with the given partition count. A previously
// persisted partition count wins over the argument: repartitioning an
// existing stream would break device-to-partition affinity.
func Open(db *pebblestore.DB, namespace, name string, partitions int) (*Stream, error) {
	if partitions <= 0 {
		partitions = 4
	}
	metaKey := KeyStreamMeta(namespace, name)
	if meta, err := db.Get(metaKey); err == nil && len(meta) >= 4 {
		partitions = int(binary.BigEndian.Uint32(meta[:4]))
	} else {
		var meta [4]byte
		binary.BigEndian.PutUint32(meta[:], uint32(partitions))
		if err := db.Set(metaKey, meta[:]); err != nil {
			return nil, fmt.Errorf("stream meta: %w", err)
		}
	}

	s := &Stream{db: db, namespace: namespace, name: name, partitions: uint32(partitions)}
	s.parts = make([]*Partition, partitions)
	for i := 0; i < partitions; i++ {
		p, err := OpenPartition(db, namespace, name, uint32(i))
		if err != nil {
			return nil, err
		}
		s.parts[i] = p
	}
	return s, nil
}

// Partitions returns the partition count.
func (s *Stream) Partitions() int { return int(s.partitions) }

// Partition returns the partition with ordinal i.
func (s *Stream) Partition(i uint32) (*Partition, error) {
	if i >= s.partitions {
		return nil, fmt.Errorf("stream %s: partition %d out of range (have %d)", s.name, i, s.partitions)
	}
	return s.parts[i], nil
}

// PartitionFor returns the partition ordinal owning the given device id.
func (s *Stream) PartitionFor(deviceID string) uint32 {
	return crc32.ChecksumIEEE([]byte(deviceID)) % s.partitions
}

// Ingest appends the event to the partition owning its device id and returns
// (partition, seq).
func (s *Stream) Ingest(ctx context.Context, ev telemetry.Event) (uint32, uint64, error) {
	part := s.PartitionFor(ev.DeviceID)
	seqs, err := s.parts[part].Append(ctx, []telemetry.Event{ev})
	if err != nil {
		return 0, 0, err
	}
	return part, seqs[0], nil
}
