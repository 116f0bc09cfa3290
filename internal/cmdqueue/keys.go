package cmdqueue

import "encoding/binary"

// Keyspace: all keys are prefixed with cmdq/{ns}/{name}/:
//
//	m          - queue metadata (lastSeq)
//	e/{seq_be8} - queue entries, FIFO by big-endian sequence
var (
	sep        = byte('/')
	qPrefix    = []byte("cmdq/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
)

func base(namespace, name string) []byte {
	k := make([]byte, 0, len(qPrefix)+len(namespace)+len(name)+1)
	k = append(k, qPrefix...)
	k = append(k, namespace...)
	k = append(k, sep)
	k = append(k, name...)
	return k
}

// MetaKey builds the queue metadata key.
func MetaKey(namespace, name string) []byte {
	return append(base(namespace, name), metaSuffix...)
}

// EntryKey builds an entry key with a big-endian sequence for FIFO ordering.
func EntryKey(namespace, name string, seq uint64) []byte {
	k := append(base(namespace, name), entrySeg...)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return append(k, b[:]...)
}

// EntryPrefix returns the scan prefix covering all entries.
func EntryPrefix(namespace, name string) []byte {
	return append(base(namespace, name), entrySeg...)
}
