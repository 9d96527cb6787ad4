package bridge

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// MaxFrameSize bounds a single frame body.
const MaxFrameSize = 64 << 20

const headerSize = 4

// WriteFrame marshals v to JSON and writes it behind a 4-byte big-endian
// length prefix.
func WriteFrame(w io.Writer, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return adapter.NewProtocolError("failed to encode frame", err)
	}
	return writeRaw(w, body)
}

func writeRaw(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return adapter.NewProtocolError(fmt.Sprintf("frame of %d bytes exceeds limit of %d", len(body), MaxFrameSize), nil)
	}

	// Header and body go out in a single write.
	buf := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[headerSize:], body)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame and unmarshals its JSON body into v. A clean EOF
// before the header is returned as io.EOF.
func ReadFrame(r io.Reader, v interface{}) error {
	body, err := readRaw(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return adapter.NewProtocolError("invalid JSON body", err)
	}
	return nil
}

func readRaw(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, adapter.NewProtocolError("short frame header", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, adapter.NewProtocolError(fmt.Sprintf("frame of %d bytes exceeds limit of %d", size, MaxFrameSize), nil)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, adapter.NewProtocolError("short frame body", err)
	}
	return body, nil
}
