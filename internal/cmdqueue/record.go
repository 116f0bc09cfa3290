package cmdqueue

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"

	"github.com/fleetwire/fleetwire/internal/command"
)

// Entry encoding: command JSON | crc32c. The checksum guards against torn
// writes surfacing as silently corrupt commands after a crash.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeEntry frames a command for storage.
func EncodeEntry(cmd command.Command) ([]byte, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+4)
	out = append(out, body...)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc32.Checksum(body, castagnoli))
	return append(out, crcb[:]...), nil
}

// DecodeEntry parses a framed command, verifying the checksum.
func DecodeEntry(b []byte) (command.Command, bool) {
	if len(b) < 4 {
		return command.Command{}, false
	}
	body := b[:len(b)-4]
	if crc32.Checksum(body, castagnoli) != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return command.Command{}, false
	}
	var cmd command.Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		return command.Command{}, false
	}
	return cmd, true
}
