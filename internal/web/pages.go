// ABOUTME: Page handlers: home terminal, member and bill dashboards, and live partials
// ABOUTME: Dashboards fetch their bundle per visit; a fetch failure renders the error view

package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/2389/cosint-web/internal/api"
	"github.com/2389/cosint-web/internal/auth"
)

const (
	homePlaceholder   = "Ask about a representative or enter an address..."
	memberPlaceholder = "Ask about this legislator..."
)

// handleHome renders the terminal: the conversation sidebar and the home chat
func (a *App) handleHome(w http.ResponseWriter, r *http.Request) {
	user := auth.MustFromContext(r.Context())
	ws := a.workspaces.get(user)
	csrf := getCSRFToken(r)

	a.renderPage(w, http.StatusOK, "home", homeData{
		pageData: pageData{Title: "Terminal", User: user, CSRFToken: csrf},
		Registry: newRegistryData(ws.registry.Snapshot(), csrf),
		Chat:     newChatData(ws.home, homePlaceholder, csrf),
	})
}

// handleMember renders a legislator dashboard. Each visit opens a fresh
// dashboard chat and notebook unless ?resume=1 asks for the open one.
func (a *App) handleMember(w http.ResponseWriter, r *http.Request) {
	user := auth.MustFromContext(r.Context())
	bioguideID := r.PathValue("id")
	if bioguideID == "" {
		http.Error(w, "Member ID required", http.StatusBadRequest)
		return
	}

	ws := a.workspaces.get(user)
	bundle, err := a.backend.GetMember(r.Context(), a.sessions.Tokens(user.SessionID), bioguideID)
	if err != nil {
		a.logger.Error("failed to fetch member", "bioguide_id", bioguideID, "error", err)
		a.renderError(w, r, fetchFailureStatus(err), "System Error", "Failed to fetch representative details")
		return
	}

	view, ok := ws.memberView(bioguideID)
	if !ok || r.URL.Query().Get("resume") != "1" {
		view = a.newMemberView(ws, bundle.Details)
	}

	csrf := getCSRFToken(r)
	a.renderPage(w, http.StatusOK, "member", memberData{
		pageData: pageData{Title: bundle.Details.DirectOrderName, User: user, CSRFToken: csrf},
		Bundle:   bundle,
		Chat:     newChatData(view, memberPlaceholder, csrf),
		Notebook: newNotebookData(view),
	})
}

// handleBill renders a bill dashboard
func (a *App) handleBill(w http.ResponseWriter, r *http.Request) {
	user := auth.MustFromContext(r.Context())
	congress, err := strconv.Atoi(r.PathValue("congress"))
	if err != nil || congress <= 0 {
		a.renderError(w, r, http.StatusBadRequest, "System Error", "Invalid congress number")
		return
	}
	billType, number := r.PathValue("type"), r.PathValue("number")

	bundle, err := a.backend.GetBill(r.Context(), a.sessions.Tokens(user.SessionID), congress, billType, number)
	if err != nil {
		a.logger.Error("failed to fetch bill", "congress", congress, "type", billType, "number", number, "error", err)
		a.renderError(w, r, fetchFailureStatus(err), "System Error", "Failed to fetch bill details")
		return
	}

	a.renderPage(w, http.StatusOK, "bill", billData{
		pageData: pageData{Title: bundle.Details.Title, User: user, CSRFToken: getCSRFToken(r)},
		Congress: congress,
		Type:     billType,
		Number:   number,
		Bundle:   bundle,
	})
}

// fetchFailureStatus maps a backend error to the status of the error view.
func fetchFailureStatus(err error) int {
	var se *api.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

// handleRegistryPartial renders the sidebar list
func (a *App) handleRegistryPartial(w http.ResponseWriter, r *http.Request) {
	ws := a.workspaces.get(auth.MustFromContext(r.Context()))
	a.writePartial(w, "registry", newRegistryData(ws.registry.Snapshot(), getCSRFToken(r)))
}

// handleNotebookPartial renders a dashboard's notebook
func (a *App) handleNotebookPartial(w http.ResponseWriter, r *http.Request) {
	ws := a.workspaces.get(auth.MustFromContext(r.Context()))
	view, ok := ws.memberView(r.PathValue("id"))
	if !ok {
		http.Error(w, "No open dashboard", http.StatusNotFound)
		return
	}
	a.writePartial(w, "notebook", newNotebookData(view))
}
