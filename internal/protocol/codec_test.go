package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"yqhp/kambo-hive/pkg/types"
)

// TestFramingProperty checks that any sequence of frames written back to back
// is read back unchanged and with the same boundaries.
func TestFramingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		frames := rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 1, 512), 1, 20).Draw(t, "frames")

		var buf bytes.Buffer
		for _, f := range frames {
			if err := WriteFrame(&buf, f, 1024); err != nil {
				t.Fatalf("write: %v", err)
			}
		}

		for i, want := range frames {
			got, err := ReadFrame(&buf, 1024)
			if err != nil {
				t.Fatalf("read frame %d: %v", i, err)
			}
			if !bytes.Equal(want, got) {
				t.Fatalf("frame %d mismatch", i)
			}
		}

		if _, err := ReadFrame(&buf, 1024); err != io.EOF {
			t.Fatalf("expected io.EOF after last frame, got %v", err)
		}
	})
}

// TestTruncatedFrameProperty checks that cutting a frame anywhere never yields a frame.
func TestTruncatedFrameProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 1, 256).Draw(t, "payload")

		var buf bytes.Buffer
		if err := WriteFrame(&buf, payload, 0); err != nil {
			t.Fatalf("write: %v", err)
		}
		full := buf.Bytes()
		cut := rapid.IntRange(1, len(full)-1).Draw(t, "cut")

		_, err := ReadFrame(bytes.NewReader(full[:cut]), 0)
		if err == nil {
			t.Fatalf("truncated frame of %d/%d bytes decoded", cut, len(full))
		}
	})
}

func TestReadFrameTooLarge(t *testing.T) {
	var hdr [headerSize]byte
	binary.BigEndian.PutUint32(hdr[:], 2048)

	_, err := ReadFrame(bytes.NewReader(hdr[:]), 1024)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, 10), 5)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, buf.Len())
}

func TestEmptyFrame(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(make([]byte, headerSize)), 0)
	assert.ErrorIs(t, err, ErrProtocol)

	err = WriteFrame(&bytes.Buffer{}, nil, 0)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestCodecOverPipe(t *testing.T) {
	hostSide, workerSide := net.Pipe()
	defer hostSide.Close()
	defer workerSide.Close()

	host := NewCodec(hostSide, 0)
	worker := NewCodec(workerSide, 0)

	task := types.NewTask("g1.txt", 1, "{}")
	done := make(chan error, 1)
	go func() {
		req, err := host.ReadRequest()
		if err != nil {
			done <- err
			return
		}
		rt, ok := req.(*RequestTask)
		if !ok || rt.WorkerID != "w-1" {
			done <- io.ErrUnexpectedEOF
			return
		}
		done <- host.WriteResponse(&AssignTask{Task: task})
	}()

	require.NoError(t, worker.WriteRequest(&RequestTask{WorkerID: "w-1"}))
	resp, err := worker.ReadResponse()
	require.NoError(t, err)
	require.NoError(t, <-done)

	assign, ok := resp.(*AssignTask)
	require.True(t, ok)
	assert.Equal(t, task, assign.Task)
}
