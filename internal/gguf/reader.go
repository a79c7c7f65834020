package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// maxString bounds a single metadata string. Chat templates are a few KiB;
// anything near this is a corrupt length prefix.
const maxString = 16 << 20

type reader struct {
	r *bufio.Reader
}

func newReader(rd io.Reader) *reader {
	return &reader{r: bufio.NewReaderSize(rd, 64<<10)}
}

func (r *reader) readN(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid read length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, unexpected(err)
	}
	return buf, nil
}

func (r *reader) skip(n uint64) error {
	if _, err := io.CopyN(io.Discard, r.r, int64(n)); err != nil {
		return unexpected(err)
	}
	return nil
}

func (r *reader) readU32() (uint32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) readU64() (uint64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) readString() (string, error) {
	n, err := r.readU64()
	if err != nil {
		return "", err
	}
	if n > maxString {
		return "", fmt.Errorf("string length too large: %d", n)
	}
	if n == 0 {
		return "", nil
	}
	b, err := r.readN(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) skipString() error {
	n, err := r.readU64()
	if err != nil {
		return err
	}
	if n > maxString {
		return fmt.Errorf("string length too large: %d", n)
	}
	return r.skip(n)
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
