package extension

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Messages use the browser native-messaging framing: a 4-byte little-endian
// length followed by that many bytes of UTF-8 JSON.
const maxFrameSize = 64 << 20

func writeFrame(w io.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if len(payload) > maxFrameSize {
		return fmt.Errorf("message of %d bytes exceeds frame limit", len(payload))
	}

	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)

	_, err = w.Write(buf)
	return err
}

func readFrame(r io.Reader, v interface{}) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}

	size := binary.LittleEndian.Uint32(header[:])
	if size > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}
