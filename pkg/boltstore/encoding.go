package boltstore

import (
	"bytes"
	"encoding/gob"

	"github.com/crystal-mush/mudmapper/pkg/worldmap"
)

func init() {
	gob.Register(worldmap.Room{})
	gob.Register(worldmap.Edge{})
}

// encodeRoom serializes a Room to bytes using gob.
func encodeRoom(r *worldmap.Room) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeRoom deserializes bytes back into a Room.
func decodeRoom(data []byte) (worldmap.Room, error) {
	var r worldmap.Room
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r)
	return r, err
}

// encodeEdge serializes an Edge to bytes using gob.
func encodeEdge(e *worldmap.Edge) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeEdge deserializes bytes back into an Edge.
func decodeEdge(data []byte) (worldmap.Edge, error) {
	var e worldmap.Edge
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e)
	return e, err
}
