// Package cmdqueue implements the durable outbound command queue.
//
// The queue is a single logical FIFO persisted in Pebble:
//
//	cmdq/{ns}/{name}/m           - metadata (lastSeq)
//	cmdq/{ns}/{name}/e/{seq_be8} - entries, FIFO by sequence
//
// Enqueue is transactional across the queue and the relational sink: the
// command row insert runs before the queue batch commits, and a commit
// failure compensates the sink row away, so a failed enqueue is never
// observable (the caller sees status "Error" and nothing was queued).
//
// Dequeue is split into Head (non-destructive peek) and Commit (atomic
// removal). The dispatch loop peeks, attempts the endpoint send, records the
// outcome, then commits the removal. A crash between Head and Commit leaves
// the entry queued, which yields at-least-once delivery.
package cmdqueue
