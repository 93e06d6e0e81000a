// ABOUTME: Per-browser state: the home chat, the conversation registry and member dashboards
// ABOUTME: Workspaces live in memory, keyed by browser session, and are reaped when idle

package web

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/2389/cosint-web/internal/auth"
	"github.com/2389/cosint-web/internal/chat"
	"github.com/2389/cosint-web/internal/notebook"
	"github.com/2389/cosint-web/internal/registry"
)

const (
	// workspaceIdleTimeout reaps workspaces no request has touched for this long
	workspaceIdleTimeout = 30 * time.Minute

	// maxMemberViews caps open dashboards per browser; the oldest is dropped
	maxMemberViews = 8

	homeScope         = "home"
	memberScopePrefix = "member."
)

var errUnknownScope = errors.New("unknown chat scope")

// feed wakes stream handlers when something they render changed. Wakeups
// coalesce: a slow reader sees the latest state, not every intermediate one.
type feed struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newFeed() *feed {
	return &feed{subs: make(map[chan struct{}]struct{})}
}

// subscribe returns a wakeup channel and a function that cancels it.
func (f *feed) subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch, func() {
		f.mu.Lock()
		delete(f.subs, ch)
		f.mu.Unlock()
	}
}

// signal wakes every subscriber without blocking.
func (f *feed) signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// chatView is one chat session as shown on one page.
type chatView struct {
	scope      string
	bioguideID string
	session    *chat.Session
	notebook   *notebook.Notebook // dashboards only
	transcript *feed
	notes      *feed
	createdAt  time.Time
}

// workspace is everything one browser session has open.
type workspace struct {
	user     *auth.User
	ctx      context.Context
	cancel   context.CancelFunc
	registry *registry.Registry
	listed   *feed
	home     *chatView

	mu       sync.Mutex
	members  map[string]*chatView
	lastUsed time.Time
}

// touch records activity.
func (ws *workspace) touch(now time.Time) {
	ws.mu.Lock()
	ws.lastUsed = now
	ws.mu.Unlock()
}

func (ws *workspace) idleSince(now time.Time) time.Duration {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return now.Sub(ws.lastUsed)
}

// view resolves a chat scope: "home" or "member.<bioguide id>".
func (ws *workspace) view(scope string) (*chatView, error) {
	if scope == homeScope {
		return ws.home, nil
	}
	id, ok := strings.CutPrefix(scope, memberScopePrefix)
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: %q", errUnknownScope, scope)
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	v, ok := ws.members[id]
	if !ok {
		return nil, fmt.Errorf("%w: no open dashboard for %s", errUnknownScope, id)
	}
	return v, nil
}

// memberView returns the dashboard view for bioguideID.
func (ws *workspace) memberView(bioguideID string) (*chatView, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	v, ok := ws.members[bioguideID]
	return v, ok
}

// putMemberView installs v, replacing any earlier dashboard for the same
// member and dropping the oldest one when too many are open.
func (ws *workspace) putMemberView(v *chatView) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if old, ok := ws.members[v.bioguideID]; ok {
		old.retire()
	}
	ws.members[v.bioguideID] = v
	for len(ws.members) > maxMemberViews {
		var oldest *chatView
		for _, m := range ws.members {
			if oldest == nil || m.createdAt.Before(oldest.createdAt) {
				oldest = m
			}
		}
		delete(ws.members, oldest.bioguideID)
		oldest.retire()
	}
}

// retire ends a dashboard visit; its notes do not outlive it.
func (v *chatView) retire() {
	if v.notebook != nil {
		v.notebook.Reset()
	}
}

// workspaces owns every live workspace
type workspaces struct {
	mu     sync.Mutex
	byID   map[string]*workspace // keyed by browser session id
	build  func(*auth.User) *workspace
	cancel context.CancelFunc
	now    func() time.Time
}

func newWorkspaces(build func(*auth.User) *workspace) *workspaces {
	ctx, cancel := context.WithCancel(context.Background())
	w := &workspaces{
		byID:   make(map[string]*workspace),
		build:  build,
		cancel: cancel,
		now:    time.Now,
	}
	go w.cleanupLoop(ctx)
	return w
}

// get returns the user's workspace, creating it on first use.
func (w *workspaces) get(user *auth.User) *workspace {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ws, ok := w.byID[user.SessionID]; ok {
		ws.touch(w.now())
		return ws
	}
	ws := w.build(user)
	ws.touch(w.now())
	w.byID[user.SessionID] = ws
	return ws
}

// remove closes and forgets a workspace.
func (w *workspaces) remove(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ws, ok := w.byID[sessionID]; ok {
		ws.cancel()
		delete(w.byID, sessionID)
	}
}

// cleanupLoop periodically removes stale workspaces
func (w *workspaces) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanupStale()
		}
	}
}

// cleanupStale removes workspaces idle for longer than workspaceIdleTimeout
func (w *workspaces) cleanupStale() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for id, ws := range w.byID {
		if ws.idleSince(now) > workspaceIdleTimeout {
			ws.cancel()
			delete(w.byID, id)
		}
	}
}

// Len reports how many workspaces are live.
func (w *workspaces) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.byID)
}

// Close closes all workspaces and stops the cleanup goroutine
func (w *workspaces) Close() {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for id, ws := range w.byID {
		ws.cancel()
		delete(w.byID, id)
	}
}
