// ABOUTME: Tests for the chat stream decoder and intel packet extraction
// ABOUTME: Covers split multi-byte runes, end of stream and packet stripping

package stream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns one predefined chunk per Read call.
type chunkReader struct {
	chunks [][]byte
	err    error
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks = c.chunks[1:]
	return n, nil
}

func readAll(t *testing.T, d *Decoder) (string, error) {
	t.Helper()
	var sb strings.Builder
	for {
		chunk, err := d.Next()
		sb.WriteString(chunk)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sb.String(), nil
			}
			return sb.String(), err
		}
	}
}

func TestDecoder_Chunks(t *testing.T) {
	d := NewDecoder(&chunkReader{chunks: [][]byte{[]byte("Hel"), []byte("lo, "), []byte("world")}})

	got, err := readAll(t, d)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", got)
}

func TestDecoder_SplitRune(t *testing.T) {
	euro := []byte("€") // three bytes
	d := NewDecoder(&chunkReader{chunks: [][]byte{
		append([]byte("cost: "), euro[0]),
		euro[1:2],
		append(euro[2:], []byte("5")...),
	}})

	var chunks []string
	for {
		chunk, err := d.Next()
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
	}

	assert.Equal(t, "cost: €5", strings.Join(chunks, ""))
	for _, c := range chunks {
		assert.NotContains(t, c, "�", "no chunk should carry a replacement char")
	}
}

func TestDecoder_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	d := NewDecoder(&chunkReader{chunks: [][]byte{[]byte("partial")}, err: boom})

	got, err := readAll(t, d)
	assert.Equal(t, "partial", got)
	assert.ErrorIs(t, err, boom)
}

func TestExtractIntel(t *testing.T) {
	text := "Here is the record.\n\n[INTEL_PACKET: Voting Record | Voted yes on H.R. 1 | passed |END_PACKET]"

	clean, packets := ExtractIntel(text)
	assert.Equal(t, "Here is the record.", clean)
	require.Len(t, packets, 1)
	assert.Equal(t, "Voting Record", packets[0].Title)
	assert.Equal(t, "Voted yes on H.R. 1 | passed", packets[0].Content)
}

func TestExtractIntel_Multiple(t *testing.T) {
	text := "A[INTEL_PACKET: One | first |END_PACKET] B [INTEL_PACKET: Two | second\nline |END_PACKET]"

	clean, packets := ExtractIntel(text)
	assert.Equal(t, "A B", clean)
	require.Len(t, packets, 2)
	assert.Equal(t, "One", packets[0].Title)
	assert.Equal(t, "second\nline", packets[1].Content)
}

func TestExtractIntel_NoPackets(t *testing.T) {
	text := "plain answer  "
	clean, packets := ExtractIntel(text)
	assert.Equal(t, text, clean)
	assert.Nil(t, packets)
}

func TestExtractIntel_IncompleteLeftAlone(t *testing.T) {
	text := "answer [INTEL_PACKET: Title | still streaming"
	clean, packets := ExtractIntel(text)
	assert.Equal(t, text, clean)
	assert.Empty(t, packets)
}
