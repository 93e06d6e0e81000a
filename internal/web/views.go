// ABOUTME: Builds workspaces and chat views and wires their callbacks together
// ABOUTME: Conversation ids flow from chat sessions into the registry through the refresh hub

package web

import (
	"context"
	"errors"
	"time"

	"github.com/2389/cosint-web/internal/api"
	"github.com/2389/cosint-web/internal/auth"
	"github.com/2389/cosint-web/internal/chat"
	"github.com/2389/cosint-web/internal/notebook"
	"github.com/2389/cosint-web/internal/registry"
)

// newWorkspace builds the state for a newly seen browser session and starts
// its registry.
func (a *App) newWorkspace(user *auth.User) *workspace {
	ctx, cancel := context.WithCancel(context.Background())
	tokens := a.sessions.Tokens(user.SessionID)

	ws := &workspace{
		user:    user,
		ctx:     ctx,
		cancel:  cancel,
		listed:  newFeed(),
		members: make(map[string]*chatView),
	}
	ws.registry = registry.New(a.backend, registry.Options{
		IncludeTrackedBills: a.config.TrackedBills,
		OnSelect:            func(sel registry.Selection) { a.selectConversation(ws, sel) },
		OnChange:            func(registry.Snapshot) { ws.listed.signal() },
		Logger:              a.logger,
	})
	ws.home = a.newChatView(ws, homeScope, "", chat.Options{})

	signals, _ := a.hub.Subscribe(ctx, user.UserID)
	go ws.registry.Watch(ctx, signals, tokens)
	go ws.registry.List(ctx, tokens)

	a.logger.Debug("workspace created", "user_id", user.UserID)
	return ws
}

// newChatView creates a chat session for scope. Dashboards (non-empty
// bioguideID) also get a notebook fed by the session's intel packets.
func (a *App) newChatView(ws *workspace, scope, bioguideID string, opts chat.Options) *chatView {
	v := &chatView{
		scope:      scope,
		bioguideID: bioguideID,
		transcript: newFeed(),
		notes:      newFeed(),
		createdAt:  time.Now(),
	}
	if bioguideID != "" {
		v.notebook = notebook.New(func([]notebook.Note) { v.notes.signal() })
		opts.OnIntelligence = func(n notebook.Note) { v.notebook.Capture(n) }
	}

	opts.Tokens = a.sessions.Tokens(ws.user.SessionID)
	opts.StreamTimeout = a.config.StreamTimeout
	opts.Logger = a.logger
	opts.OnChange = func(chat.Snapshot) { v.transcript.signal() }
	opts.OnIDAssigned = func(id, firstMessage string) {
		ws.registry.AddProvisional(id, firstMessage)
		if scope == homeScope {
			ws.registry.SetSelected(id)
		}
		a.hub.Publish(ws.user.UserID, registry.Signal{Reason: registry.ReasonConversationCreated, ConversationID: id})
	}

	v.session = chat.NewSession(a.backend, opts)
	return v
}

// newMemberView opens a fresh dashboard chat for a member.
func (a *App) newMemberView(ws *workspace, details *api.MemberDetails) *chatView {
	v := a.newChatView(ws, memberScopePrefix+details.BioguideID, details.BioguideID, chat.Options{
		BioguideID:     details.BioguideID,
		InitialContext: chat.MemberContext(details.DirectOrderName, details.BioguideID),
	})
	ws.putMemberView(v)
	return v
}

// selectConversation is the registry's select callback: highlight the
// conversation, load it into the home chat and refresh the list.
func (a *App) selectConversation(ws *workspace, sel registry.Selection) {
	err := ws.home.session.SwitchConversation(ws.ctx, sel.ConversationID)
	if errors.Is(err, chat.ErrInFlight) {
		a.logger.Debug("ignoring selection while a reply is streaming", "conversation_id", sel.ConversationID)
		return
	}
	ws.registry.SetSelected(sel.ConversationID)
	a.hub.Publish(ws.user.UserID, registry.Signal{Reason: registry.ReasonSelection, ConversationID: sel.ConversationID})
}
