// ABOUTME: Streaming chat session with transcript, in-flight state machine and id adoption
// ABOUTME: Converts backend failures into an inline apology and extracts intel packets

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/cosint-web/internal/api"
	"github.com/2389/cosint-web/internal/notebook"
	"github.com/2389/cosint-web/internal/stream"
)

// ApologyMessage replaces an assistant reply that could not be obtained.
const ApologyMessage = "Sorry, I encountered an error. Please check if the backend is running."

var (
	// ErrInFlight is returned when a submission is already running.
	ErrInFlight = errors.New("a message is already being answered")
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")
)

// State is the submission state of a session.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateStreaming
	// StateLoading means a switched-to conversation's history is loading.
	StateLoading
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateStreaming:
		return "streaming"
	case StateLoading:
		return "loading"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Backend is the part of the API client a session needs.
type Backend interface {
	GetMessages(ctx context.Context, tokens api.TokenSource, conversationID string) ([]api.Message, error)
	OpenChatStream(ctx context.Context, tokens api.TokenSource, req api.ChatRequest) (*api.ChatStream, error)
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	ConversationID string
	Messages       []api.Message
	State          State
}

// InFlight reports whether a submission or a history load is running.
func (s Snapshot) InFlight() bool {
	return s.State != StateIdle
}

// MemberContext is the page context a legislator-scoped session sends with
// each message.
func MemberContext(name, bioguideID string) string {
	return fmt.Sprintf("The user is currently viewing the profile of %s (Bioguide ID: %s). Use this Bioguide ID directly for tools if needed.", name, bioguideID)
}

// Options configures a Session.
type Options struct {
	// ConversationID resumes an existing conversation; "" starts fresh.
	ConversationID string
	// BioguideID and InitialContext scope the session to a legislator.
	BioguideID     string
	InitialContext string
	// Tokens supplies the bearer credential per request; nil is anonymous.
	Tokens api.TokenSource
	// StreamTimeout bounds one submission end to end; 0 means unbounded.
	StreamTimeout time.Duration

	// OnIDAssigned fires when the backend assigns a conversation id.
	// The first message of the conversation is passed along for titling.
	OnIDAssigned func(id, firstMessage string)
	// OnIntelligence receives each intel packet of a completed reply.
	OnIntelligence func(notebook.Note)
	// OnChange receives a snapshot after every mutation.
	OnChange func(Snapshot)

	Logger *slog.Logger
}

// Session is one chat transcript bound to at most one conversation.
// It is safe for concurrent use.
type Session struct {
	backend Backend
	opts    Options
	logger  *slog.Logger

	mu             sync.Mutex
	conversationID string
	messages       []api.Message
	input          string
	state          State
	generation     uint64 // bumped by every switch
}

// NewSession creates an idle session.
func NewSession(backend Backend, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		backend:        backend,
		opts:           opts,
		logger:         logger.With("component", "chat"),
		conversationID: opts.ConversationID,
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	msgs := make([]api.Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{ConversationID: s.conversationID, Messages: msgs, State: s.state}
}

// ConversationID returns the id of the conversation, or "".
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Input returns the draft in the input buffer.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// SetInput replaces the draft in the input buffer.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

// notify sends the current snapshot to OnChange. Must not hold mu.
func (s *Session) notify() {
	if s.opts.OnChange == nil {
		return
	}
	s.opts.OnChange(s.Snapshot())
}

// SubmitInput submits the draft in the input buffer.
func (s *Session) SubmitInput(ctx context.Context) error {
	return s.Submit(ctx, s.Input())
}

// Submit sends message and streams the reply into the transcript. It
// blocks until the reply is complete or has failed.
//
// Blank input returns ErrEmptyMessage. A running submission or history load
// returns ErrInFlight. Neither touches the transcript. A transport failure is
// recorded as the apology message and also returned so callers can log it.
func (s *Session) Submit(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrInFlight
	}
	s.messages = append(s.messages, api.Message{Role: api.RoleHuman, Content: message})
	s.input = ""
	s.state = StateSubmitting
	req := api.ChatRequest{
		Message:        message,
		InitialContext: s.opts.InitialContext,
		BioguideID:     s.opts.BioguideID,
	}
	if s.conversationID != "" {
		id := s.conversationID
		req.ConversationID = &id
	}
	s.mu.Unlock()
	s.notify()

	if s.opts.StreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.StreamTimeout)
		defer cancel()
	}

	err := s.stream(ctx, req)
	if err != nil {
		s.logger.Error("chat submission failed", "conversation_id", s.ConversationID(), "error", err)
		s.mu.Lock()
		s.recordFailureLocked()
		s.mu.Unlock()
	} else {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
	}
	s.notify()
	return err
}

// stream runs one request and applies the reply to the transcript.
func (s *Session) stream(ctx context.Context, req api.ChatRequest) error {
	cs, err := s.backend.OpenChatStream(ctx, s.opts.Tokens, req)
	if err != nil {
		return err
	}
	defer cs.Close()

	s.adoptConversationID(cs.ConversationID, req.Message)

	s.mu.Lock()
	s.messages = append(s.messages, api.Message{Role: api.RoleAssistant, Content: ""})
	s.state = StateStreaming
	s.mu.Unlock()
	s.notify()

	var acc strings.Builder
	for {
		chunk, err := cs.Next()
		if chunk != "" {
			acc.WriteString(chunk)
			s.replaceLast(acc.String())
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading reply: %w", err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}

	text, packets := stream.ExtractIntel(acc.String())
	if len(packets) > 0 {
		s.replaceLast(text)
		if s.opts.OnIntelligence != nil {
			for _, p := range packets {
				s.opts.OnIntelligence(notebook.Note{Title: p.Title, Content: p.Content})
			}
		}
	}
	return nil
}

// adoptConversationID takes the id from the response header. An id already
// held is never replaced.
func (s *Session) adoptConversationID(id, firstMessage string) {
	if id == "" {
		return
	}

	s.mu.Lock()
	current := s.conversationID
	if current == "" {
		s.conversationID = id
	}
	s.mu.Unlock()

	switch {
	case current == "":
		s.logger.Info("conversation created", "conversation_id", id)
		if s.opts.OnIDAssigned != nil {
			s.opts.OnIDAssigned(id, firstMessage)
		}
	case current != id:
		s.logger.Warn("backend reported a different conversation id, keeping the current one",
			"conversation_id", current, "reported", id)
	}
}

func (s *Session) replaceLast(content string) {
	s.mu.Lock()
	if n := len(s.messages); n > 0 && s.messages[n-1].Role == api.RoleAssistant {
		s.messages[n-1] = api.Message{Role: api.RoleAssistant, Content: content}
	}
	s.mu.Unlock()
	s.notify()
}

// recordFailureLocked leaves exactly one assistant entry holding the apology
// after the human message of the failed attempt.
func (s *Session) recordFailureLocked() {
	apology := api.Message{Role: api.RoleAssistant, Content: ApologyMessage}
	if s.state == StateStreaming {
		if n := len(s.messages); n > 0 && s.messages[n-1].Role == api.RoleAssistant {
			s.messages[n-1] = apology
			s.state = StateIdle
			return
		}
	}
	s.messages = append(s.messages, apology)
	s.state = StateIdle
}

// SwitchConversation clears the transcript and, for a non-empty id, loads
// that conversation's history. Submissions are refused until the load
// settles. A failed load is logged and leaves the transcript empty.
//
// It returns ErrInFlight, changing nothing, while a submission is running.
// A switch during a load supersedes it.
func (s *Session) SwitchConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateLoading {
		s.mu.Unlock()
		return ErrInFlight
	}
	s.conversationID = id
	s.messages = nil
	s.generation++
	gen := s.generation
	s.state = StateIdle
	if id != "" {
		s.state = StateLoading
	}
	s.mu.Unlock()
	s.notify()

	if id == "" {
		return nil
	}

	msgs, err := s.backend.GetMessages(ctx, s.opts.Tokens, id)

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		s.logger.Debug("discarding stale history", "conversation_id", id)
		return nil
	}
	s.state = StateIdle
	if err == nil {
		s.messages = append([]api.Message(nil), msgs...)
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		s.logger.Error("failed to load conversation", "conversation_id", id, "error", err)
		return fmt.Errorf("loading conversation %s: %w", id, err)
	}
	return nil
}
