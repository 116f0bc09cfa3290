// Package id provides 128-bit, lexicographically sortable identifiers.
//
// The encoding is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes
// sequence], so byte-wise comparison preserves chronological order and IDs
// generated within the same millisecond stay strictly increasing.
//
// The Generator is safe for concurrent use and guards against clock
// regression (pins to the last seen millisecond) and sequence overflow
// (waits for the next millisecond).
package id
