package stream

import "encoding/binary"

// Keyspace (byte-wise, lexicographically sortable):
//   - stream/{ns}/{name}/m                   (stream metadata: partitions)
//   - stream/{ns}/{name}/{part_be4}/m        (partition metadata: lastSeq)
//   - stream/{ns}/{name}/{part_be4}/e/{seq_be8} (entries)

var (
	sep          = byte('/')
	streamPrefix = []byte("stream/")
	metaSuffix   = []byte("/m")
	entrySeg     = []byte("/e/")
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func keyBase(namespace, name string) []byte {
	k := make([]byte, 0, len(streamPrefix)+len(namespace)+len(name)+2)
	k = append(k, streamPrefix...)
	k = append(k, namespace...)
	k = append(k, sep)
	k = append(k, name...)
	return k
}

// KeyStreamMeta builds the stream-level metadata key.
func KeyStreamMeta(namespace, name string) []byte {
	return append(keyBase(namespace, name), metaSuffix...)
}

// KeyPartitionMeta builds the partition metadata key.
func KeyPartitionMeta(namespace, name string, partition uint32) []byte {
	k := append(keyBase(namespace, name), sep)
	k = appendBE4(k, partition)
	return append(k, metaSuffix...)
}

// KeyEntry builds the entry key with a big-endian sequence for ordering.
func KeyEntry(namespace, name string, partition uint32, seq uint64) []byte {
	k := append(keyBase(namespace, name), sep)
	k = appendBE4(k, partition)
	k = append(k, entrySeg...)
	return appendBE8(k, seq)
}
