// ABOUTME: Chat handlers bridging form posts to chat sessions and sessions to SSE
// ABOUTME: POST /send starts a submission; GET /stream pushes rendered panels as they change

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/2389/cosint-web/internal/auth"
	"github.com/2389/cosint-web/internal/chat"
	"github.com/2389/cosint-web/internal/dedupe"
)

// heartbeatInterval keeps idle event streams open through proxies
const heartbeatInterval = 30 * time.Second

// chatStatus is the JSON reply to chat form posts from the page script.
type chatStatus struct {
	Status         string `json:"status"` // "accepted", "duplicate", "busy", "ok"
	ConversationID string `json:"conversation_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// pageFor is where a plain form post lands after a chat action.
func pageFor(v *chatView) string {
	if v.bioguideID != "" {
		return "/member/" + v.bioguideID + "?resume=1"
	}
	return "/"
}

// chatAction answers a chat form post: JSON for the page script, a redirect
// back to the page otherwise.
func (a *App) chatAction(w http.ResponseWriter, r *http.Request, v *chatView, status int, body chatStatus) {
	if wantsJSON(r) {
		writeJSON(w, status, body)
		return
	}
	http.Redirect(w, r, pageFor(v), http.StatusSeeOther)
}

// resolveView finds the chat view named by the {scope} path value.
func (a *App) resolveView(w http.ResponseWriter, r *http.Request) (*workspace, *chatView, bool) {
	ws := a.workspaces.get(auth.MustFromContext(r.Context()))
	v, err := ws.view(r.PathValue("scope"))
	if err != nil {
		http.Error(w, "Unknown chat", http.StatusNotFound)
		return nil, nil, false
	}
	return ws, v, true
}

// handleChatSend submits a message. The reply streams in the background
// and reaches the browser through the stream endpoint.
func (a *App) handleChatSend(w http.ResponseWriter, r *http.Request) {
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	ws, v, ok := a.resolveView(w, r)
	if !ok {
		return
	}

	message := r.FormValue("message")
	if strings.TrimSpace(message) == "" {
		http.Error(w, "Message required", http.StatusBadRequest)
		return
	}

	var claimKey string
	if formKey := r.FormValue("idempotency_key"); formKey != "" {
		claimKey = dedupe.Key(ws.user.SessionID+"|"+v.scope, formKey)
		if !a.dedupe.Claim(claimKey) {
			a.logger.Debug("duplicate chat submission", "scope", v.scope)
			a.chatAction(w, r, v, http.StatusOK, chatStatus{Status: "duplicate"})
			return
		}
	}

	if v.session.Snapshot().InFlight() {
		if claimKey != "" {
			a.dedupe.Release(claimKey)
		}
		a.chatAction(w, r, v, http.StatusConflict, chatStatus{Status: "busy"})
		return
	}

	// The submission outlives this request; it stops with the workspace.
	go func() {
		err := v.session.Submit(ws.ctx, message)
		switch {
		case errors.Is(err, chat.ErrInFlight):
			a.logger.Debug("chat submission raced another", "scope", v.scope)
		case err != nil:
			a.logger.Warn("chat reply failed", "scope", v.scope, "error", err)
		}
	}()

	a.logger.Debug("chat message submitted", "scope", v.scope, "user_id", ws.user.UserID)
	a.chatAction(w, r, v, http.StatusAccepted, chatStatus{Status: "accepted", ConversationID: v.session.ConversationID()})
}

// handleChatSelect loads a conversation picked in the sidebar
func (a *App) handleChatSelect(w http.ResponseWriter, r *http.Request) {
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	ws, v, ok := a.resolveView(w, r)
	if !ok {
		return
	}
	id := r.FormValue("id")
	if id == "" {
		http.Error(w, "Conversation ID required", http.StatusBadRequest)
		return
	}

	if v.session.Snapshot().InFlight() {
		a.chatAction(w, r, v, http.StatusConflict, chatStatus{Status: "busy"})
		return
	}

	if v == ws.home {
		ws.registry.Select(id, r.FormValue("bioguide_id"))
	} else if err := v.session.SwitchConversation(ws.ctx, id); err != nil && !errors.Is(err, chat.ErrInFlight) {
		a.logger.Warn("failed to load conversation", "scope", v.scope, "error", err)
	}

	a.chatAction(w, r, v, http.StatusOK, chatStatus{Status: "ok", ConversationID: v.session.ConversationID()})
}

// handleChatNew clears the chat for a fresh conversation
func (a *App) handleChatNew(w http.ResponseWriter, r *http.Request) {
	if !a.validateCSRF(r) {
		http.Error(w, "Invalid request", http.StatusForbidden)
		return
	}

	ws, v, ok := a.resolveView(w, r)
	if !ok {
		return
	}

	if v == ws.home {
		if v.session.Snapshot().InFlight() {
			a.chatAction(w, r, v, http.StatusConflict, chatStatus{Status: "busy"})
			return
		}
		ws.registry.Select("", "")
	} else if err := v.session.SwitchConversation(ws.ctx, ""); errors.Is(err, chat.ErrInFlight) {
		a.chatAction(w, r, v, http.StatusConflict, chatStatus{Status: "busy"})
		return
	}

	a.chatAction(w, r, v, http.StatusOK, chatStatus{Status: "ok"})
}

// handleChatStream pushes the chat's transcript, and the sidebar or the
// notebook where the page has one, as server-sent events
func (a *App) handleChatStream(w http.ResponseWriter, r *http.Request) {
	ws, v, ok := a.resolveView(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	transcriptCh, stopTranscript := v.transcript.subscribe()
	defer stopTranscript()

	// Only the home page shows the sidebar; only dashboards have a notebook.
	var registryCh, notesCh <-chan struct{}
	if v == ws.home {
		ch, stop := ws.listed.subscribe()
		defer stop()
		registryCh = ch
	}
	if v.notebook != nil {
		ch, stop := v.notes.subscribe()
		defer stop()
		notesCh = ch
	}

	csrf := getCSRFToken(r)
	send := func(event, name string, data any) bool {
		html, err := a.renderPartial(name, data)
		if err != nil {
			a.logger.Error("failed to render stream event", "event", event, "error", err)
			return true
		}
		if err := writeEvent(w, event, html); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	sendTranscript := func() bool {
		return send("transcript", "transcript", newTranscriptData(v.session.Snapshot()))
	}
	sendRegistry := func() bool {
		return send("registry", "registry", newRegistryData(ws.registry.Snapshot(), csrf))
	}
	sendNotes := func() bool {
		return send("notebook", "notebook", newNotebookData(v))
	}

	// Initial state; the page may be older than the session.
	if !sendTranscript() {
		return
	}
	if registryCh != nil && !sendRegistry() {
		return
	}
	if notesCh != nil && !sendNotes() {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		ok := true
		select {
		case <-r.Context().Done():
			return
		case <-ws.ctx.Done():
			return
		case <-heartbeat.C:
			ws.touch(time.Now())
			_, err := fmt.Fprint(w, ": heartbeat\n\n")
			ok = err == nil
			flusher.Flush()
		case <-transcriptCh:
			ok = sendTranscript()
		case <-registryCh:
			ok = sendRegistry()
		case <-notesCh:
			ok = sendNotes()
		}
		if !ok {
			return
		}
	}
}

// writeEvent writes one SSE event. Multi-line data is split into data
// lines, which the browser joins back with newlines.
func writeEvent(w http.ResponseWriter, event, data string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", event)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", strings.TrimSuffix(line, "\r"))
	}
	b.WriteString("\n")
	_, err := fmt.Fprint(w, b.String())
	return err
}
