package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/uhyunpark/flashdex/pkg/sequencer"
)

// Stored blocks are a version byte followed by the gob encoding.
const blockCodecV1 byte = 1

func encodeBlock(b sequencer.Block) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(blockCodecV1)
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBlock(val []byte) (sequencer.Block, error) {
	var b sequencer.Block
	if len(val) == 0 {
		return b, fmt.Errorf("empty block record")
	}
	if val[0] != blockCodecV1 {
		return b, fmt.Errorf("unknown block codec version %d", val[0])
	}
	err := gob.NewDecoder(bytes.NewReader(val[1:])).Decode(&b)
	return b, err
}
