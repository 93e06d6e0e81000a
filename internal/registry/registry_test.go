// ABOUTME: Tests for the conversation registry client
// ABOUTME: Covers listing, failure handling, selection, provisional entries and watch-driven refreshes

package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/2389/cosint-web/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	mu        sync.Mutex
	convs     []api.Conversation
	bills     []api.TrackedBill
	err       error
	billsErr  error
	calls     int
	lastToken string
}

func (f *fakeLister) ListConversations(ctx context.Context, tokens api.TokenSource) ([]api.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if tokens != nil {
		f.lastToken, _ = tokens.Token(ctx)
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]api.Conversation(nil), f.convs...), nil
}

func (f *fakeLister) ListTrackedBills(context.Context, api.TokenSource) ([]api.TrackedBill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.billsErr != nil {
		return nil, f.billsErr
	}
	return append([]api.TrackedBill(nil), f.bills...), nil
}

func (f *fakeLister) set(convs ...api.Conversation) {
	f.mu.Lock()
	f.convs = convs
	f.mu.Unlock()
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func ids(convs []api.Conversation) []string {
	out := make([]string, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ID)
	}
	return out
}

func TestNew_StartsLoading(t *testing.T) {
	r := New(&fakeLister{}, Options{})
	snap := r.Snapshot()
	assert.True(t, snap.Loading())
	assert.False(t, snap.Empty(), "loading is not empty")
}

func TestList_ServerOrder(t *testing.T) {
	lister := &fakeLister{convs: []api.Conversation{{ID: "b", Title: "B"}, {ID: "a", Title: "A"}}}
	r := New(lister, Options{})

	r.List(context.Background(), api.StaticToken("tok"))

	snap := r.Snapshot()
	assert.False(t, snap.Loading())
	assert.Equal(t, []string{"b", "a"}, ids(snap.Conversations))
	assert.Equal(t, "tok", lister.lastToken)
}

func TestList_FailureLeavesEmpty(t *testing.T) {
	lister := &fakeLister{convs: []api.Conversation{{ID: "a"}}}
	r := New(lister, Options{})
	r.List(context.Background(), nil)
	require.Len(t, r.Snapshot().Conversations, 1)

	lister.err = errors.New("backend down")
	r.List(context.Background(), nil)

	snap := r.Snapshot()
	assert.True(t, snap.Empty())
	assert.False(t, snap.Loading())
}

func TestList_LoadingNotifications(t *testing.T) {
	var states []bool
	r := New(&fakeLister{}, Options{OnChange: func(s Snapshot) { states = append(states, s.Loading()) }})

	r.List(context.Background(), nil)
	assert.Equal(t, []bool{true, false}, states)
}

func TestList_TrackedBills(t *testing.T) {
	lister := &fakeLister{
		convs: []api.Conversation{{ID: "c1", Title: "Chat"}},
		bills: []api.TrackedBill{{ID: "t1", Title: "Act", BillType: "s", BillNumber: "5", Congress: 118}},
	}
	r := New(lister, Options{IncludeTrackedBills: true})
	r.List(context.Background(), nil)
	r.SetSelected("c1")

	items := r.Snapshot().Items()
	require.Len(t, items, 2)
	assert.Equal(t, KindConversation, items[0].Kind)
	assert.True(t, items[0].Selected)
	assert.Equal(t, KindTrackedBill, items[1].Kind)
	assert.Equal(t, "S 5 (118th)", items[1].Subtitle)

	lister.billsErr = errors.New("no table")
	r.List(context.Background(), nil)
	snap := r.Snapshot()
	assert.Len(t, snap.Conversations, 1, "bill failure does not hide conversations")
	assert.Empty(t, snap.TrackedBills)
}

func TestSelect_IsNotification(t *testing.T) {
	var got []Selection
	r := New(&fakeLister{}, Options{OnSelect: func(s Selection) { got = append(got, s) }})

	r.Select("c1", "P000197")

	assert.Equal(t, []Selection{{ConversationID: "c1", BioguideID: "P000197"}}, got)
	assert.Equal(t, "", r.Snapshot().Selected, "select does not change local state")
}

func TestProvisional_SurvivesStaleRefresh(t *testing.T) {
	lister := &fakeLister{convs: []api.Conversation{{ID: "old", Title: "Old"}}}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := New(lister, Options{Now: func() time.Time { return now }})
	r.List(context.Background(), nil)

	r.AddProvisional("new", "What did the infrastructure bill fund in 2021?")
	r.AddProvisional("new", "duplicate")

	snap := r.Snapshot()
	assert.Equal(t, []string{"new", "old"}, ids(snap.Conversations))
	assert.Equal(t, "What did the infrastructure bi...", snap.Conversations[0].Title)
	assert.Equal(t, "2024-05-01T12:00:00Z", snap.Conversations[0].CreatedAt)

	// The backend has not committed the new conversation yet.
	r.List(context.Background(), nil)
	assert.Equal(t, []string{"new", "old"}, ids(r.Snapshot().Conversations))

	lister.set(api.Conversation{ID: "new", Title: "Infrastructure"}, api.Conversation{ID: "old", Title: "Old"})
	r.List(context.Background(), nil)

	snap = r.Snapshot()
	assert.Equal(t, []string{"new", "old"}, ids(snap.Conversations))
	assert.Equal(t, "Infrastructure", snap.Conversations[0].Title, "server data replaces the provisional entry")
}

func TestProvisional_AlreadyListed(t *testing.T) {
	lister := &fakeLister{convs: []api.Conversation{{ID: "c1", Title: "Listed"}}}
	r := New(lister, Options{})
	r.List(context.Background(), nil)

	r.AddProvisional("c1", "hello")
	assert.Equal(t, []string{"c1"}, ids(r.Snapshot().Conversations))
}

func TestProvisionalTitle(t *testing.T) {
	assert.Equal(t, "short...", ProvisionalTitle("short"))
	assert.Equal(t, "éééééééééééééééééééééééééééééé...", ProvisionalTitle("éééééééééééééééééééééééééééééééééééé"))
}

func TestWatch_RefreshesOnSignal(t *testing.T) {
	lister := &fakeLister{}
	r := New(lister, Options{})
	hub := NewHub(nil)
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals, _ := hub.Subscribe(ctx, "session-1")
	done := make(chan struct{})
	go func() {
		r.Watch(ctx, signals, nil)
		close(done)
	}()

	hub.Publish("session-1", Signal{Reason: ReasonSelection, ConversationID: "c1"})
	require.Eventually(t, func() bool { return lister.callCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish("session-2", Signal{Reason: ReasonManual})
	hub.Publish("session-1", Signal{Reason: ReasonIdentity})
	require.Eventually(t, func() bool { return lister.callCount() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}
