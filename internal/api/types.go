// ABOUTME: Wire types exchanged with the COSINT backend
// ABOUTME: Includes shape validation used by the client at the response boundary

package api

import (
	"fmt"
	"strings"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Message is one chat transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is a registry entry as listed by the backend.
type Conversation struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	CreatedAt  string `json:"created_at"`
	BioguideID string `json:"bioguide_id,omitempty"`
	Position   *int   `json:"position,omitempty"`
}

// TrackedBill is a bill the user asked the assistant to follow.
type TrackedBill struct {
	ID         string `json:"id"`
	BillID     string `json:"bill_id"`
	BillType   string `json:"bill_type"`
	BillNumber string `json:"bill_number"`
	Congress   int    `json:"congress"`
	Title      string `json:"title"`
	CreatedAt  string `json:"created_at"`
	Position   *int   `json:"position,omitempty"`
}

// Label renders the bill the way Congress.gov cites it, e.g. "HR 1234 (118th)".
func (b TrackedBill) Label() string {
	return fmt.Sprintf("%s %s (%s)", strings.ToUpper(b.BillType), b.BillNumber, ordinal(b.Congress))
}

// ChatRequest is the body of POST /chat/stream.
type ChatRequest struct {
	Message        string  `json:"message"`
	ConversationID *string `json:"conversation_id"`
	InitialContext string  `json:"initial_context,omitempty"`
	BioguideID     string  `json:"bioguide_id,omitempty"`
}

// Party is one entry of a member's party history.
type Party struct {
	PartyName         string `json:"partyName"`
	PartyAbbreviation string `json:"partyAbbreviation"`
}

// Term is one term of service.
type Term struct {
	Chamber   string `json:"chamber"`
	Congress  int    `json:"congress"`
	District  *int   `json:"district,omitempty"`
	StartYear int    `json:"startYear"`
	EndYear   *int   `json:"endYear,omitempty"`
}

// MemberDetails is the profile part of a member bundle.
type MemberDetails struct {
	BioguideID      string  `json:"bioguideId"`
	DirectOrderName string  `json:"directOrderName"`
	FirstName       string  `json:"firstName"`
	LastName        string  `json:"lastName"`
	State           string  `json:"state"`
	PartyHistory    []Party `json:"partyHistory"`
	Terms           []Term  `json:"terms"`
	Depiction       *struct {
		ImageURL string `json:"imageUrl"`
	} `json:"depiction,omitempty"`
	OfficialWebsiteURL string `json:"officialWebsiteUrl,omitempty"`
	AddressInformation *struct {
		OfficeAddress string `json:"officeAddress,omitempty"`
		PhoneNumber   string `json:"phoneNumber,omitempty"`
	} `json:"addressInformation,omitempty"`
}

// Party returns the most recent party name, or "" when unknown.
func (d MemberDetails) Party() string {
	if len(d.PartyHistory) == 0 {
		return ""
	}
	return d.PartyHistory[len(d.PartyHistory)-1].PartyName
}

// CurrentTerm returns the latest term, or nil when none are listed.
func (d MemberDetails) CurrentTerm() *Term {
	if len(d.Terms) == 0 {
		return nil
	}
	return &d.Terms[len(d.Terms)-1]
}

// LatestAction is the most recent action on a bill.
type LatestAction struct {
	ActionDate string `json:"actionDate,omitempty"`
	Text       string `json:"text"`
}

// BillSummary is a sponsored bill listed on a member's dashboard.
type BillSummary struct {
	Type           string        `json:"type"`
	Number         string        `json:"number"`
	Title          string        `json:"title"`
	IntroducedDate string        `json:"introducedDate"`
	Congress       int           `json:"congress,omitempty"`
	LatestAction   *LatestAction `json:"latestAction,omitempty"`
}

// MemberVote is one recorded vote.
type MemberVote struct {
	Legislation      string `json:"legislation"`
	LegislationURL   string `json:"legislationUrl,omitempty"`
	LegislationTitle string `json:"legislationTitle"`
	Congress         int    `json:"congress"`
	Type             string `json:"type"`
	Number           string `json:"number"`
	Question         string `json:"question"`
	Vote             string `json:"vote"`
	Result           string `json:"result"`
	Date             string `json:"date"`
}

// MemberBundle is the response of GET /member/{bioguideId}.
type MemberBundle struct {
	Details *MemberDetails `json:"details"`
	Bills   []BillSummary  `json:"bills"`
	Votes   []MemberVote   `json:"votes"`
}

// Validate reports the first shape violation in the bundle.
func (b *MemberBundle) Validate() error {
	switch {
	case b.Details == nil:
		return fmt.Errorf("%w: member bundle missing details", ErrMalformedResponse)
	case b.Details.BioguideID == "":
		return fmt.Errorf("%w: member details missing bioguideId", ErrMalformedResponse)
	case b.Details.DirectOrderName == "":
		return fmt.Errorf("%w: member details missing directOrderName", ErrMalformedResponse)
	case b.Bills == nil:
		return fmt.Errorf("%w: member bundle missing bills", ErrMalformedResponse)
	case b.Votes == nil:
		return fmt.Errorf("%w: member bundle missing votes", ErrMalformedResponse)
	}
	return nil
}

// Sponsor is a bill sponsor or cosponsor.
type Sponsor struct {
	BioguideID string `json:"bioguideId"`
	FullName   string `json:"fullName"`
	Party      string `json:"party,omitempty"`
	State      string `json:"state,omitempty"`
}

// BillDetails is the descriptive part of a bill bundle.
type BillDetails struct {
	Title          string        `json:"title"`
	IntroducedDate string        `json:"introducedDate"`
	Sponsors       []Sponsor     `json:"sponsors"`
	LatestAction   *LatestAction `json:"latestAction,omitempty"`
	Summary        string        `json:"summary,omitempty"`
}

// BillAction is one entry of a bill's action history.
type BillAction struct {
	ActionDate string `json:"actionDate"`
	Text       string `json:"text"`
}

// BillBundle is the response of GET /bill/{congress}/{type}/{number}.
type BillBundle struct {
	Details    *BillDetails `json:"details"`
	Actions    []BillAction `json:"actions"`
	Cosponsors []Sponsor    `json:"cosponsors"`
	AISummary  string       `json:"ai_summary,omitempty"`
}

// Validate reports the first shape violation in the bundle.
func (b *BillBundle) Validate() error {
	switch {
	case b.Details == nil:
		return fmt.Errorf("%w: bill bundle missing details", ErrMalformedResponse)
	case b.Details.Title == "":
		return fmt.Errorf("%w: bill details missing title", ErrMalformedResponse)
	case b.Actions == nil:
		return fmt.Errorf("%w: bill bundle missing actions", ErrMalformedResponse)
	}
	return nil
}

func validateConversations(convs []Conversation) error {
	for i, c := range convs {
		if c.ID == "" {
			return fmt.Errorf("%w: conversation %d missing id", ErrMalformedResponse, i)
		}
	}
	return nil
}

func validateMessages(msgs []Message) error {
	for i, m := range msgs {
		if m.Role != RoleHuman && m.Role != RoleAssistant {
			return fmt.Errorf("%w: message %d has unknown role %q", ErrMalformedResponse, i, m.Role)
		}
	}
	return nil
}

func validateTrackedBills(bills []TrackedBill) error {
	for i, b := range bills {
		if b.ID == "" {
			return fmt.Errorf("%w: tracked bill %d missing id", ErrMalformedResponse, i)
		}
	}
	return nil
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
