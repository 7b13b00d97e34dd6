package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// chunkReader yields at most n bytes per Read to simulate TCP
// delivering arbitrary chunk sizes.
type chunkReader struct {
	r io.Reader
	n int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}

func TestReadWriteRoundTrip(t *testing.T) {
	body := []byte("one complete envelope body")
	var buf bytes.Buffer
	if err := Write(&buf, body, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if buf.Len() != PrefixLen+len(body) {
		t.Fatalf("frame length mismatch: got=%d want=%d", buf.Len(), PrefixLen+len(body))
	}
	out, err := Read(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(out, body) {
		t.Fatalf("body mismatch: %q", out)
	}
}

func TestReadAcrossPartialReads(t *testing.T) {
	body := bytes.Repeat([]byte{0xAB}, 1024)
	var buf bytes.Buffer
	if err := Write(&buf, body, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	out, err := Read(&chunkReader{r: &buf, n: 3}, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(out, body) {
		t.Fatalf("body mismatch across partial reads")
	}
}

func TestReadTruncatedPrefix(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{0, 0}), DefaultLimits())
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestReadTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, []byte("full body here"), DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-4]
	_, err := Read(bytes.NewReader(truncated), DefaultLimits())
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestReadOversizedFrameRejected(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, bytes.Repeat([]byte{1}, 64), DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	_, err := Read(&buf, Limits{MaxFrameBytes: 16})
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestWriteEmptyFrameRejected(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil, DefaultLimits()); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
}
