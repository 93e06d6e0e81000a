// ABOUTME: Terminal client for the COSINT backend: chat, conversation list and member notebooks
// ABOUTME: Streams replies as they arrive, with bearer auth from COSINT_TOKEN

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/cosint-web/internal/api"
	"github.com/2389/cosint-web/internal/chat"
	"github.com/2389/cosint-web/internal/notebook"
	"github.com/2389/cosint-web/internal/registry"
)

// getToken returns the access token from COSINT_TOKEN env var or ~/.config/cosint/token file
func getToken() string {
	if token := os.Getenv("COSINT_TOKEN"); token != "" {
		return token
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	data, err := os.ReadFile(filepath.Join(configDir, "cosint", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func defaultAPIURL() string {
	if u := os.Getenv("COSINT_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8000"
}

func main() {
	apiURL := flag.String("api", defaultAPIURL(), "COSINT backend URL")
	conversationID := flag.String("conversation", "", "Conversation ID to resume")
	timeout := flag.Duration("timeout", 2*time.Minute, "Maximum time for one reply")
	debug := flag.Bool("debug", false, "Log backend calls to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	client, err := api.New(api.Options{
		BaseURL: *apiURL,
		Timeout: 30 * time.Second,
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	token := getToken()
	fmt.Printf("cosint-tui connected to %s\n", client.BaseURL())
	if token != "" {
		fmt.Println("Auth: access token configured (COSINT_TOKEN)")
	} else {
		fmt.Println("Auth: none (set COSINT_TOKEN to see your conversations)")
	}
	fmt.Println("Ask about a representative or enter an address. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var tokens api.TokenSource
	if token != "" {
		tokens = api.StaticToken(token)
	}

	t := newTerminal(client, tokens, os.Stdout, *timeout, logger)
	if *conversationID != "" {
		if err := t.session.SwitchConversation(ctx, *conversationID); err != nil {
			fmt.Printf("[error] loading conversation: %v\n", err)
		} else {
			t.printTranscript()
		}
	}

	if err := t.run(ctx, os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// backend is the part of the API client the terminal uses.
type backend interface {
	chat.Backend
	registry.Lister
	GetMember(ctx context.Context, tokens api.TokenSource, bioguideID string) (*api.MemberBundle, error)
	GetBill(ctx context.Context, tokens api.TokenSource, congress int, billType, number string) (*api.BillBundle, error)
}

var (
	dim    = color.New(color.FgHiBlack)
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

// terminal holds the interactive state: one chat session, scoped to a
// member while /member is active, plus the conversation list.
type terminal struct {
	backend  backend
	tokens   api.TokenSource
	out      io.Writer
	timeout  time.Duration
	logger   *slog.Logger
	registry *registry.Registry

	session  *chat.Session
	notebook *notebook.Notebook // member scope only
	member   *api.MemberDetails

	mu      sync.Mutex
	live    bool   // a reply is being echoed
	printed string // assistant text already echoed
}

func newTerminal(b backend, tokens api.TokenSource, out io.Writer, timeout time.Duration, logger *slog.Logger) *terminal {
	t := &terminal{
		backend: b,
		tokens:  tokens,
		out:     out,
		timeout: timeout,
		logger:  logger,
	}
	t.registry = registry.New(b, registry.Options{IncludeTrackedBills: true, Logger: logger})
	t.session = t.newSession(chat.Options{})
	return t
}

func (t *terminal) newSession(opts chat.Options) *chat.Session {
	opts.Tokens = t.tokens
	opts.StreamTimeout = t.timeout
	opts.Logger = t.logger
	opts.OnChange = t.echo
	opts.OnIDAssigned = func(id, firstMessage string) {
		t.registry.AddProvisional(id, firstMessage)
	}
	return chat.NewSession(t.backend, opts)
}

// echo prints the new tail of the streaming reply.
func (t *terminal) echo(snap chat.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.live || len(snap.Messages) == 0 {
		return
	}
	last := snap.Messages[len(snap.Messages)-1]
	if last.Role != api.RoleAssistant {
		return
	}
	if strings.HasPrefix(last.Content, t.printed) {
		fmt.Fprint(t.out, stripMarkdown(last.Content[len(t.printed):]))
		t.printed = last.Content
	}
}

func (t *terminal) prompt() string {
	if t.member != nil {
		return fmt.Sprintf("[%s]> ", t.member.BioguideID)
	}
	return "> "
}

func (t *terminal) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(t.out, t.prompt())

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else if err := scanner.Err(); err != nil {
				errCh <- err
			} else {
				errCh <- io.EOF
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if err := t.handle(ctx, input); err != nil {
			red.Fprintf(t.out, "[error] %v\n", err)
		}
		fmt.Fprintln(t.out)
	}
}

// handle runs one line of input: a slash command or a chat message.
func (t *terminal) handle(ctx context.Context, input string) error {
	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/help":
		t.printHelp()
		return nil
	case "/list":
		return t.list(ctx)
	case "/use":
		return t.use(ctx, args)
	case "/new":
		if err := t.session.SwitchConversation(ctx, ""); err != nil {
			return err
		}
		t.registry.SetSelected("")
		fmt.Fprintln(t.out, "Started a new conversation")
		return nil
	case "/member":
		return t.openMember(ctx, args)
	case "/home":
		t.session = t.newSession(chat.Options{})
		t.notebook = nil
		t.member = nil
		fmt.Fprintln(t.out, "Back to the terminal chat")
		return nil
	case "/notes":
		t.printNotes()
		return nil
	case "/bill":
		return t.bill(ctx, args)
	}

	if strings.HasPrefix(cmd, "/") {
		return fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return t.send(ctx, input)
}

func (t *terminal) printHelp() {
	fmt.Fprintln(t.out, "Commands:")
	fmt.Fprintln(t.out, "  /list                       List past briefings and tracked bills")
	fmt.Fprintln(t.out, "  /use <n|id>                 Resume a conversation from /list")
	fmt.Fprintln(t.out, "  /new                        Start a new conversation")
	fmt.Fprintln(t.out, "  /member <bioguide id>       Open a legislator briefing with a notebook")
	fmt.Fprintln(t.out, "  /notes                      Show the notebook (member briefings)")
	fmt.Fprintln(t.out, "  /home                       Leave the member briefing")
	fmt.Fprintln(t.out, "  /bill <congress> <type> <n> Show a bill, e.g. /bill 118 hr 1234")
	fmt.Fprintln(t.out, "  /help                       Show this help")
	fmt.Fprintln(t.out, "  /quit                       Exit")
}

// send submits a message and echoes the reply as it streams.
func (t *terminal) send(ctx context.Context, message string) error {
	t.mu.Lock()
	t.live, t.printed = true, ""
	t.mu.Unlock()

	err := t.session.Submit(ctx, message)

	t.mu.Lock()
	t.live = false
	t.mu.Unlock()
	fmt.Fprintln(t.out)

	if err != nil {
		return err
	}
	if t.notebook != nil {
		if n := t.notebook.Len(); n > 0 {
			dim.Fprintf(t.out, "[notebook: %d notes, /notes to view]\n", n)
		}
	}
	return nil
}

func (t *terminal) list(ctx context.Context) error {
	t.registry.List(ctx, t.tokens)
	items := t.registry.Snapshot().Items()
	if len(items) == 0 {
		fmt.Fprintln(t.out, "No past briefings")
		return nil
	}

	fmt.Fprintln(t.out, "Past briefings:")
	for i, item := range items {
		marker := "  "
		if item.Selected {
			marker = green.Sprint("* ")
		}
		switch item.Kind {
		case registry.KindTrackedBill:
			fmt.Fprintf(t.out, "%s%2d. %s %s\n", marker, i+1, yellow.Sprint("[bill] "+item.Subtitle), item.Title)
		default:
			fmt.Fprintf(t.out, "%s%2d. %s %s\n", marker, i+1, item.Title, dim.Sprint(item.Subtitle))
		}
	}
	return nil
}

// use resumes a conversation by list position or id.
func (t *terminal) use(ctx context.Context, arg string) error {
	if arg == "" {
		return errors.New("usage: /use <n|id>")
	}

	id := arg
	if n, err := strconv.Atoi(arg); err == nil {
		items := t.registry.Snapshot().Items()
		if n < 1 || n > len(items) {
			return fmt.Errorf("no entry %d (run /list first)", n)
		}
		item := items[n-1]
		if item.Kind == registry.KindTrackedBill {
			return t.printBill(ctx, item.Bill.Congress, item.Bill.BillType, item.Bill.BillNumber)
		}
		id = item.ID
	}

	if err := t.session.SwitchConversation(ctx, id); err != nil {
		return err
	}
	t.registry.SetSelected(id)
	t.printTranscript()
	return nil
}

func (t *terminal) printTranscript() {
	snap := t.session.Snapshot()
	if len(snap.Messages) == 0 {
		fmt.Fprintln(t.out, "Awaiting Inquiry")
		return
	}
	for _, m := range snap.Messages {
		if m.Role == api.RoleHuman {
			cyan.Fprint(t.out, "you: ")
		} else {
			green.Fprint(t.out, "cosint: ")
		}
		fmt.Fprintln(t.out, stripMarkdown(m.Content))
	}
}

// openMember shows a legislator and scopes the chat to them.
func (t *terminal) openMember(ctx context.Context, bioguideID string) error {
	if bioguideID == "" {
		return errors.New("usage: /member <bioguide id>")
	}

	bundle, err := t.backend.GetMember(ctx, t.tokens, bioguideID)
	if err != nil {
		return fmt.Errorf("fetching representative details: %w", err)
	}
	d := bundle.Details

	party := d.Party()
	if party == "" {
		party = "Unknown Party"
	}
	cyan.Fprintln(t.out, d.DirectOrderName)
	fmt.Fprintf(t.out, "%s, %s\n", party, d.State)
	if term := d.CurrentTerm(); term != nil {
		fmt.Fprintf(t.out, "%s since %d\n", term.Chamber, term.StartYear)
	}

	fmt.Fprintf(t.out, "\nSponsored legislation (%d):\n", len(bundle.Bills))
	for i, b := range bundle.Bills {
		if i == 5 {
			dim.Fprintf(t.out, "  ... %d more\n", len(bundle.Bills)-i)
			break
		}
		fmt.Fprintf(t.out, "  %s %s  %s\n", strings.ToUpper(b.Type), b.Number, truncate(b.Title, 60))
	}
	if len(bundle.Bills) == 0 {
		dim.Fprintln(t.out, "  No active registries found.")
	}

	fmt.Fprintf(t.out, "\nOfficial Roll Call (%d):\n", len(bundle.Votes))
	for i, v := range bundle.Votes {
		if i == 5 {
			dim.Fprintf(t.out, "  ... %d more\n", len(bundle.Votes)-i)
			break
		}
		fmt.Fprintf(t.out, "  %s  %-8s %s\n", v.Date, v.Vote, truncate(v.LegislationTitle, 50))
	}
	if len(bundle.Votes) == 0 {
		dim.Fprintln(t.out, "  No ledger entries detected.")
	}

	nb := notebook.New(nil)
	t.notebook = nb
	t.member = d
	t.session = t.newSession(chat.Options{
		BioguideID:     d.BioguideID,
		InitialContext: chat.MemberContext(d.DirectOrderName, d.BioguideID),
		OnIntelligence: func(n notebook.Note) { nb.Capture(n) },
	})

	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, "Ask about this legislator. /notes shows the notebook, /home leaves.")
	return nil
}

func (t *terminal) printNotes() {
	if t.notebook == nil {
		fmt.Fprintln(t.out, "No notebook (open one with /member <bioguide id>)")
		return
	}
	notes := t.notebook.Notes()
	if len(notes) == 0 {
		fmt.Fprintln(t.out, "Awaiting Chat Intelligence to Populate Notebook")
		return
	}
	for _, n := range notes {
		yellow.Fprintln(t.out, strings.ToUpper(n.Title))
		fmt.Fprintln(t.out, stripMarkdown(n.Content))
		fmt.Fprintln(t.out)
	}
}

func (t *terminal) bill(ctx context.Context, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 3 {
		return errors.New("usage: /bill <congress> <type> <number>")
	}
	congress, err := strconv.Atoi(fields[0])
	if err != nil || congress <= 0 {
		return fmt.Errorf("invalid congress %q", fields[0])
	}
	return t.printBill(ctx, congress, fields[1], fields[2])
}

func (t *terminal) printBill(ctx context.Context, congress int, billType, number string) error {
	bundle, err := t.backend.GetBill(ctx, t.tokens, congress, billType, number)
	if err != nil {
		return fmt.Errorf("fetching bill details: %w", err)
	}
	d := bundle.Details

	cyan.Fprintf(t.out, "%s %s (%d)\n", strings.ToUpper(billType), number, congress)
	fmt.Fprintln(t.out, d.Title)
	if d.IntroducedDate != "" {
		dim.Fprintf(t.out, "Introduced %s\n", d.IntroducedDate)
	}
	for _, s := range d.Sponsors {
		fmt.Fprintf(t.out, "Sponsor: %s\n", s.FullName)
	}
	if d.LatestAction != nil {
		fmt.Fprintf(t.out, "Status Update: %s %s\n", d.LatestAction.ActionDate, d.LatestAction.Text)
	}
	if bundle.AISummary != "" {
		fmt.Fprintln(t.out)
		fmt.Fprintln(t.out, stripMarkdown(bundle.AISummary))
	}
	return nil
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// stripMarkdown removes common markdown formatting from text.
func stripMarkdown(s string) string {
	// Remove bold/italic markers (order matters: ** before *)
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	// Don't remove single * as it's often used for lists
	return s
}
