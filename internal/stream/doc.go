// Package stream implements fleetwire's embedded partitioned telemetry
// stream.
//
// Events are persisted per (namespace, stream, partition) in Pebble with
// lexicographically ordered keys:
//   - stream/{ns}/{name}/m                        (stream metadata: partitions)
//   - stream/{ns}/{name}/{part_be4}/m             (partition metadata: lastSeq)
//   - stream/{ns}/{name}/{part_be4}/e/{seq_be8}   (entries)
//
// Records carry a JSON metadata header and the opaque body, CRC-protected
// (see internal/telemetry). Routing is by device id hash, so all events for
// one device land on one partition and keep arrival order.
//
// Within a partition:
//
//	p, _ := stream.OpenPartition(db, ns, name, part)
//	seqs, _ := p.Append(ctx, events)
//	items, _ := p.ReadFrom(cursorSeq+1, 256)
//	woke := p.WaitForAppend(200 * time.Millisecond)
//
// The Source interface is what partition consumers program against; the
// embedded Stream is its in-process implementation.
package stream
