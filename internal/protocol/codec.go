package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	headerSize = 4

	// DefaultMaxFrameSize bounds a single message.
	DefaultMaxFrameSize = 16 * 1024 * 1024
)

var (
	// ErrProtocol marks a malformed or unexpected message. The connection that produced it is dropped.
	ErrProtocol = errors.New("protocol error")
	// ErrFrameTooLarge is returned for frames above the configured limit.
	ErrFrameTooLarge = fmt.Errorf("%w: frame too large", ErrProtocol)
)

// WriteFrame writes payload prefixed with its length.
func WriteFrame(w io.Writer, payload []byte, maxFrameSize int) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty frame", ErrProtocol)
	}
	if maxFrameSize > 0 && len(payload) > maxFrameSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), maxFrameSize)
	}

	var hdr [headerSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame. It returns io.EOF when the peer
// closed the stream between frames and io.ErrUnexpectedEOF inside a frame.
func ReadFrame(r io.Reader, maxFrameSize int) ([]byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrProtocol)
	}
	if maxFrameSize > 0 && uint64(n) > uint64(maxFrameSize) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxFrameSize)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// Codec reads and writes framed messages on one stream. It is not safe for
// concurrent use; each side owns its codec.
type Codec struct {
	r            *bufio.Reader
	w            *bufio.Writer
	maxFrameSize int
}

// NewCodec creates a codec over rw. A non-positive maxFrameSize uses DefaultMaxFrameSize.
func NewCodec(rw io.ReadWriter, maxFrameSize int) *Codec {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Codec{
		r:            bufio.NewReader(rw),
		w:            bufio.NewWriter(rw),
		maxFrameSize: maxFrameSize,
	}
}

// WriteRequest encodes and flushes one request.
func (c *Codec) WriteRequest(req Request) error {
	data, err := EncodeRequest(req)
	if err != nil {
		return err
	}
	return c.writeFrame(data)
}

// ReadRequest reads and decodes one request.
func (c *Codec) ReadRequest() (Request, error) {
	data, err := ReadFrame(c.r, c.maxFrameSize)
	if err != nil {
		return nil, err
	}
	return DecodeRequest(data)
}

// WriteResponse encodes and flushes one response.
func (c *Codec) WriteResponse(resp Response) error {
	data, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	return c.writeFrame(data)
}

// ReadResponse reads and decodes one response.
func (c *Codec) ReadResponse() (Response, error) {
	data, err := ReadFrame(c.r, c.maxFrameSize)
	if err != nil {
		return nil, err
	}
	return DecodeResponse(data)
}

func (c *Codec) writeFrame(data []byte) error {
	if err := WriteFrame(c.w, data, c.maxFrameSize); err != nil {
		return err
	}
	return c.w.Flush()
}
