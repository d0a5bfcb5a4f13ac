package media

import (
	"bufio"
	"errors"
	"io"
)

var ErrFrameTooLarge = errors.New("frame exceeds size limit")

const maxFrameSize = 8 << 20

// JPEGReader splits a concatenated MJPEG stream into individual frames.
type JPEGReader struct {
	r *bufio.Reader
}

// NewJPEGReader wraps r.
func NewJPEGReader(r io.Reader) *JPEGReader {
	return &JPEGReader{r: bufio.NewReaderSize(r, 64<<10)}
}

// Next returns the next complete frame, from the SOI marker through EOI.
func (j *JPEGReader) Next() ([]byte, error) {
	if err := j.seekStart(); err != nil {
		return nil, err
	}

	frame := []byte{0xFF, 0xD8}
	prev := byte(0)
	for {
		b, err := j.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		frame = append(frame, b)
		if prev == 0xFF && b == 0xD9 {
			return frame, nil
		}
		if len(frame) > maxFrameSize {
			return nil, ErrFrameTooLarge
		}
		prev = b
	}
}

func (j *JPEGReader) seekStart() error {
	prev := byte(0)
	for {
		b, err := j.r.ReadByte()
		if err != nil {
			return err
		}
		if prev == 0xFF && b == 0xD8 {
			return nil
		}
		prev = b
	}
}
