// Package wire implements the request/reply frame codec shared by
// client and server (spec §4.1): each message is a single JSON object
// preceded by a 4-byte big-endian length prefix.
/*
 * Grounded on transport/pdu.go's length-prefixed reassembly scheme
 * from the teacher repo, simplified from PDU-over-stream framing (no
 * chunking: one frame is one complete message, which is all the
 * client/server request-reply protocol needs) and on
 * original_source/src/client/client_base.cc's doWrite/doRead pair.
 */
package wire

import (
	"encoding/binary"
	"io"

	"github.com/lichnak/vineyard/cmn/cos"
)

// maxFrameSize guards against a corrupt or hostile length prefix
// turning a short read into an enormous allocation.
const maxFrameSize = 64 << 20

const hdrSize = 4

// WriteFrame writes one length-prefixed JSON frame.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [hdrSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return cos.Wrap(cos.ErrIOError, "write frame header: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		return cos.Wrap(cos.ErrIOError, "write frame body: %v", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON frame, reassembling from
// the stream as needed.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [hdrSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, cos.Wrap(cos.ErrIOError, "read frame header: %v", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, cos.Wrap(cos.ErrMalformed, "frame too large: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, cos.Wrap(cos.ErrIOError, "read frame body: %v", err)
	}
	return buf, nil
}
