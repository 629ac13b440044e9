package engine

import (
	"encoding/binary"
	"fmt"
)

// MagicQGram and MagicWord are the persistence-header magic bytes.
const (
	MagicQGram byte = 0x49
	MagicWord  byte = 0x4a
)

// headerKey is the reserved primary-bucket key holding the opaque
// header region. Record IDs are encoded as big-endian uint64 and must
// be > 0, so the all-zero 8-byte key can never collide with a real
// record.
var headerKey = make([]byte, 8)

// header mirrors a fixed byte layout exactly (offsets kept in comments
// for traceability), persisted as a single value under headerKey in
// the primary bucket rather than at a literal file offset 0, since
// bbolt has no raw byte-offset header region.
type header struct {
	magic          byte  // offset 0
	shardCount     uint8 // offset 1
	tuningOpts     uint8 // offset 2
	expectedTokens int64 // offset 3..10
	shardUnitSize  int64 // offset 11..18
}

func encodeHeader(h header) []byte {
	buf := make([]byte, 19)
	buf[0] = h.magic
	buf[1] = h.shardCount
	buf[2] = h.tuningOpts
	binary.LittleEndian.PutUint64(buf[3:11], uint64(h.expectedTokens))
	binary.LittleEndian.PutUint64(buf[11:19], uint64(h.shardUnitSize))
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < 19 {
		return header{}, fmt.Errorf("engine: truncated header (%d bytes)", len(buf))
	}
	return header{
		magic:          buf[0],
		shardCount:     buf[1],
		tuningOpts:     buf[2],
		expectedTokens: int64(binary.LittleEndian.Uint64(buf[3:11])),
		shardUnitSize:  int64(binary.LittleEndian.Uint64(buf[11:19])),
	}, nil
}

func idKey(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func keyToID(k []byte) uint64 {
	return binary.BigEndian.Uint64(k)
}
