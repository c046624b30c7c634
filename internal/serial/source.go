package serial

import (
	"context"
	"io"
)

// Source is an asynchronous chunked text source. Read blocks until a chunk
// arrives and returns io.EOF when the stream ends.
type Source interface {
	Read(ctx context.Context) (string, error)
	Close() error
}

// ReaderSource adapts an io.Reader (a TTY, a pipe, a test buffer) to Source.
type ReaderSource struct {
	r   io.Reader
	buf []byte
}

func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r, buf: make([]byte, 512)}
}

func (s *ReaderSource) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n, err := s.r.Read(s.buf)
	if n > 0 {
		return string(s.buf[:n]), nil
	}
	if err != nil {
		return "", err
	}
	return "", nil
}

func (s *ReaderSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
