package boltstore

import (
	"encoding/binary"
)

// Bucket layout:
//
//	maps/<map name>/meta   schema version, current room, save count
//	maps/<map name>/rooms  room id -> gob room record
//	maps/<map name>/edges  8-byte insertion index -> gob edge record
var (
	bucketMaps  = []byte("maps")
	bucketMeta  = []byte("meta")
	bucketRooms = []byte("rooms")
	bucketEdges = []byte("edges")
)

// Meta key constants.
var (
	keySchema  = []byte("schema")
	keyCurrent = []byte("current")
	keySaves   = []byte("saves")
)

// intToKey converts an int to an 8-byte big-endian key so edges iterate in
// insertion order.
func intToKey(n int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

// keyToInt converts an 8-byte big-endian key back to an int.
func keyToInt(b []byte) int {
	if len(b) != 8 {
		return 0
	}
	return int(binary.BigEndian.Uint64(b))
}
