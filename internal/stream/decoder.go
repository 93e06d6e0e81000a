// ABOUTME: Incremental UTF-8 decoder for the chat response body
// ABOUTME: Wraps the body in an x/text transform so split runes are reassembled

package stream

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultChunkSize is the largest chunk Next returns.
const DefaultChunkSize = 4096

// Decoder reads decoded text chunks from a byte stream.
// It is not safe for concurrent use.
type Decoder struct {
	r   io.Reader
	buf []byte
}

// NewDecoder wraps r. Invalid byte sequences decode to U+FFFD.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   transform.NewReader(r, unicode.UTF8.NewDecoder()),
		buf: make([]byte, DefaultChunkSize),
	}
}

// Next blocks until decoded text is available and returns it.
// At the end of the stream it returns "", io.EOF.
func (d *Decoder) Next() (string, error) {
	for {
		n, err := d.r.Read(d.buf)
		if n > 0 {
			// A pending error surfaces on the following call.
			return string(d.buf[:n]), nil
		}
		if err != nil {
			return "", err
		}
	}
}
