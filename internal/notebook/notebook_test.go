// ABOUTME: Tests for the research notebook
// ABOUTME: Covers first-write-wins titles, ordering, reset and change notifications

package notebook

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapture_FirstWriteWins(t *testing.T) {
	nb := New(nil)

	assert.True(t, nb.Capture(Note{Title: "A", Content: "first"}))
	assert.False(t, nb.Capture(Note{Title: "A", Content: "second"}))

	notes := nb.Notes()
	require.Len(t, notes, 1)
	assert.Equal(t, "first", notes[0].Content)
}

func TestCapture_CaseSensitive(t *testing.T) {
	nb := New(nil)

	nb.Capture(Note{Title: "Votes"})
	nb.Capture(Note{Title: "votes"})
	assert.Equal(t, 2, nb.Len())
}

func TestCapture_ArrivalOrder(t *testing.T) {
	nb := New(nil)
	for _, title := range []string{"C", "A", "B"} {
		nb.Capture(Note{Title: title})
	}

	var titles []string
	for _, n := range nb.Notes() {
		titles = append(titles, n.Title)
	}
	assert.Equal(t, []string{"C", "A", "B"}, titles)
}

func TestNotes_ReturnsCopy(t *testing.T) {
	nb := New(nil)
	nb.Capture(Note{Title: "A", Content: "x"})

	notes := nb.Notes()
	notes[0].Content = "mutated"
	assert.Equal(t, "x", nb.Notes()[0].Content)
}

func TestReset(t *testing.T) {
	var calls [][]Note
	nb := New(func(n []Note) { calls = append(calls, n) })

	nb.Capture(Note{Title: "A"})
	nb.Capture(Note{Title: "A"})
	nb.Reset()

	assert.Equal(t, 0, nb.Len())
	require.Len(t, calls, 2, "duplicates do not notify")
	assert.Len(t, calls[0], 1)
	assert.Empty(t, calls[1])

	assert.True(t, nb.Capture(Note{Title: "A"}), "titles are reusable after reset")
}

func TestCapture_Concurrent(t *testing.T) {
	nb := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nb.Capture(Note{Title: "same"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, nb.Len())
}
