// ABOUTME: Research notebook holding intel captured from assistant replies
// ABOUTME: Titles are unique per notebook; the first capture of a title wins

package notebook

import "sync"

// Note is one captured piece of research.
type Note struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Notebook collects notes for one dashboard visit. It is safe for
// concurrent use.
type Notebook struct {
	mu       sync.Mutex
	notes    []Note
	onChange func([]Note)
}

// New creates an empty notebook. onChange, if set, receives a copy of the
// notes after every change.
func New(onChange func([]Note)) *Notebook {
	return &Notebook{onChange: onChange}
}

// Capture appends note unless a note with the same title (compared
// exactly) is already present. It reports whether the note was added.
func (n *Notebook) Capture(note Note) bool {
	n.mu.Lock()
	for _, existing := range n.notes {
		if existing.Title == note.Title {
			n.mu.Unlock()
			return false
		}
	}
	n.notes = append(n.notes, note)
	snapshot := n.copyLocked()
	cb := n.onChange
	n.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
	return true
}

// Notes returns the notes in capture order.
func (n *Notebook) Notes() []Note {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.copyLocked()
}

// Len returns the number of notes.
func (n *Notebook) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

// Reset discards every note.
func (n *Notebook) Reset() {
	n.mu.Lock()
	n.notes = nil
	cb := n.onChange
	n.mu.Unlock()

	if cb != nil {
		cb([]Note{})
	}
}

func (n *Notebook) copyLocked() []Note {
	out := make([]Note, len(n.notes))
	copy(out, n.notes)
	return out
}
