// ABOUTME: Conversation registry client listing a user's conversations and tracked bills
// ABOUTME: Tracks loading state, the highlighted selection and optimistic entries for new chats

package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/cosint-web/internal/api"
)

// provisionalTitleRunes is how much of the first message titles a new entry.
const provisionalTitleRunes = 30

// Status of the list.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
)

// Lister is the part of the API client the registry needs.
type Lister interface {
	ListConversations(ctx context.Context, tokens api.TokenSource) ([]api.Conversation, error)
	ListTrackedBills(ctx context.Context, tokens api.TokenSource) ([]api.TrackedBill, error)
}

// Selection is what the user picked in the list.
type Selection struct {
	ConversationID string
	BioguideID     string
}

// Snapshot is a copy of the registry state.
type Snapshot struct {
	Status        Status
	Conversations []api.Conversation // provisional entries first, then server order
	TrackedBills  []api.TrackedBill
	Selected      string
}

// Loading reports whether a fetch is outstanding.
func (s Snapshot) Loading() bool {
	return s.Status == StatusLoading
}

// Empty reports a settled list with nothing in it. A failed fetch is
// indistinguishable from zero results.
func (s Snapshot) Empty() bool {
	return s.Status == StatusReady && len(s.Conversations) == 0 && len(s.TrackedBills) == 0
}

// ItemKind distinguishes the two kinds of registry entries.
type ItemKind string

const (
	KindConversation ItemKind = "conversation"
	KindTrackedBill  ItemKind = "tracked_bill"
)

// Item is one row of the merged list.
type Item struct {
	Kind       ItemKind
	ID         string
	Title      string
	Subtitle   string
	BioguideID string
	Selected   bool
	Bill       *api.TrackedBill // tracked bills only
}

// Items merges conversations then tracked bills, each in server order.
func (s Snapshot) Items() []Item {
	items := make([]Item, 0, len(s.Conversations)+len(s.TrackedBills))
	for _, c := range s.Conversations {
		items = append(items, Item{
			Kind:       KindConversation,
			ID:         c.ID,
			Title:      c.Title,
			Subtitle:   c.CreatedAt,
			BioguideID: c.BioguideID,
			Selected:   c.ID != "" && c.ID == s.Selected,
		})
	}
	for i := range s.TrackedBills {
		b := &s.TrackedBills[i]
		items = append(items, Item{
			Kind:     KindTrackedBill,
			ID:       b.ID,
			Title:    b.Title,
			Subtitle: b.Label(),
			Bill:     b,
		})
	}
	return items
}

// Options configures a Registry.
type Options struct {
	// IncludeTrackedBills also fetches GET /tracked-bills.
	IncludeTrackedBills bool
	// OnSelect receives user selections. The registry itself does not
	// change on select; the owner decides what to highlight.
	OnSelect func(Selection)
	// OnChange receives a snapshot after every change.
	OnChange func(Snapshot)
	Logger   *slog.Logger
	// Now is used for provisional entry timestamps.
	Now func() time.Time
}

// Registry is the list of a user's conversations. It is safe for
// concurrent use.
type Registry struct {
	lister Lister
	opts   Options
	logger *slog.Logger

	mu            sync.Mutex
	status        Status
	conversations []api.Conversation
	bills         []api.TrackedBill
	provisional   []api.Conversation
	selected      string
	seq           uint64
}

// New creates a registry in the loading state; the first List settles it.
func New(lister Lister, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		lister: lister,
		opts:   opts,
		logger: logger.With("component", "registry"),
		status: StatusLoading,
	}
}

// Snapshot returns a copy of the current state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() Snapshot {
	convs := make([]api.Conversation, 0, len(r.provisional)+len(r.conversations))
	convs = append(convs, r.provisional...)
	convs = append(convs, r.conversations...)
	bills := make([]api.TrackedBill, len(r.bills))
	copy(bills, r.bills)
	return Snapshot{Status: r.status, Conversations: convs, TrackedBills: bills, Selected: r.selected}
}

func (r *Registry) notify() {
	if r.opts.OnChange != nil {
		r.opts.OnChange(r.Snapshot())
	}
}

// List fetches the list and replaces it. On failure the list is left
// empty and the error is logged. Only the most recent call's result is
// applied.
func (r *Registry) List(ctx context.Context, tokens api.TokenSource) {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.status = StatusLoading
	r.mu.Unlock()
	r.notify()

	convs, err := r.lister.ListConversations(ctx, tokens)
	if err != nil {
		r.logger.Error("failed to fetch conversations", "error", err)
		convs = nil
	}

	var bills []api.TrackedBill
	if r.opts.IncludeTrackedBills {
		bills, err = r.lister.ListTrackedBills(ctx, tokens)
		if err != nil {
			r.logger.Error("failed to fetch tracked bills", "error", err)
			bills = nil
		}
	}

	r.mu.Lock()
	if seq != r.seq {
		r.mu.Unlock()
		return
	}
	r.conversations = convs
	r.bills = bills
	r.provisional = pruneProvisional(r.provisional, convs)
	r.status = StatusReady
	r.mu.Unlock()
	r.notify()
}

// pruneProvisional drops provisional entries the server now lists.
func pruneProvisional(provisional, listed []api.Conversation) []api.Conversation {
	if len(provisional) == 0 {
		return nil
	}
	known := make(map[string]bool, len(listed))
	for _, c := range listed {
		known[c.ID] = true
	}
	var kept []api.Conversation
	for _, p := range provisional {
		if !known[p.ID] {
			kept = append(kept, p)
		}
	}
	return kept
}

// Watch re-fetches on every signal until ctx is done or signals closes.
func (r *Registry) Watch(ctx context.Context, signals <-chan Signal, tokens api.TokenSource) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			r.logger.Debug("refreshing registry", "reason", sig.Reason)
			r.List(ctx, tokens)
		}
	}
}

// Select reports the user's choice to the owner.
func (r *Registry) Select(conversationID, bioguideID string) {
	if r.opts.OnSelect != nil {
		r.opts.OnSelect(Selection{ConversationID: conversationID, BioguideID: bioguideID})
	}
}

// SetSelected sets which conversation is highlighted.
func (r *Registry) SetSelected(conversationID string) {
	r.mu.Lock()
	if r.selected == conversationID {
		r.mu.Unlock()
		return
	}
	r.selected = conversationID
	r.mu.Unlock()
	r.notify()
}

// AddProvisional lists a conversation the backend just created before the
// server's list includes it. It is placed first and stays until a refresh
// lists the id.
func (r *Registry) AddProvisional(conversationID, firstMessage string) {
	r.mu.Lock()
	for _, c := range r.provisional {
		if c.ID == conversationID {
			r.mu.Unlock()
			return
		}
	}
	for _, c := range r.conversations {
		if c.ID == conversationID {
			r.mu.Unlock()
			return
		}
	}
	entry := api.Conversation{
		ID:        conversationID,
		Title:     ProvisionalTitle(firstMessage),
		CreatedAt: r.opts.Now().UTC().Format(time.RFC3339),
	}
	r.provisional = append([]api.Conversation{entry}, r.provisional...)
	r.mu.Unlock()
	r.notify()
}

// ProvisionalTitle is the title the backend gives a new conversation: the
// first 30 characters of its first message followed by "...".
func ProvisionalTitle(message string) string {
	runes := []rune(message)
	if len(runes) > provisionalTitleRunes {
		runes = runes[:provisionalTitleRunes]
	}
	return string(runes) + "..."
}
