package lease

import "encoding/binary"

// Keyspace: lease/{ns}/{group}/{stream}/{part_be4}
//
// The name is deterministic over {namespace, consumer group, stream,
// partition} so a restarted consumer always finds its own cursor. The
// big-endian partition keeps keys lexicographically sortable for scans.

var (
	sep         = byte('/')
	leasePrefix = []byte("lease/")
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

// Key builds the durable cursor key for a consumer group and partition.
func Key(namespace, group, stream string, partition uint32) []byte {
	k := make([]byte, 0, len(leasePrefix)+len(namespace)+len(group)+len(stream)+8)
	k = append(k, leasePrefix...)
	k = append(k, namespace...)
	k = append(k, sep)
	k = append(k, group...)
	k = append(k, sep)
	k = append(k, stream...)
	k = append(k, sep)
	k = appendBE4(k, partition)
	return k
}
