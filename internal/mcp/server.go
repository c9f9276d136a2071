package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kokistudios/decksmith/internal/mtg"
	"github.com/kokistudios/decksmith/internal/session"
	"github.com/kokistudios/decksmith/internal/suggest"
)

// Sessions is the read side of the session checkpoint store.
type Sessions interface {
	List(ctx context.Context) ([]*session.Session, error)
	Load(ctx context.Context, id string) (*session.Session, error)
}

// Server exposes decksmith sessions and the card database to MCP clients.
// Every tool is read-only; sessions are driven from the CLI.
type Server struct {
	sessions Sessions
	cards    suggest.Resolver
	server   *mcp.Server
}

// NewServer creates a new decksmith MCP server.
func NewServer(sessions Sessions, cards suggest.Resolver, version string) *Server {
	s := &Server{sessions: sessions, cards: cards}

	impl := &mcp.Implementation{
		Name:    "decksmith",
		Version: version,
	}

	s.server = mcp.NewServer(impl, nil)
	s.registerTools()

	return s
}

// Run starts the MCP server on stdio.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "decksmith_sessions",
		Description: "List decksmith deck-revision sessions, most recently updated first. " +
			"Returns id, status, current step, deck and commander, remaining step budget and any pending question. " +
			"START HERE to find a session id.",
	}, s.handleSessions)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "decksmith_session_show",
		Description: "Get one session in detail: the collected deck-building preferences, the accepted card " +
			"suggestions, the pending question and the most recent conversation messages.",
	}, s.handleSessionShow)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "decksmith_session_decklist",
		Description: "Get the original or the revised decklist of a session in plain '1 Sol Ring' format. " +
			"The revised deck only exists once suggestions were accepted.",
	}, s.handleSessionDecklist)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "decksmith_card_lookup",
		Description: "Look up cards by exact name in the local card cache (Scryfall on a miss). " +
			"Returns mana cost, type line, oracle text, color identity, Commander legality and price.",
	}, s.handleCardLookup)
}

// SessionsArgs defines the input for decksmith_sessions.
type SessionsArgs struct {
	Status string `json:"status,omitempty" jsonschema:"Filter by status: running, suspended, completed, exhausted, failed, abandoned (optional)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of sessions to return (default 20)"`
}

// SessionsResult is the output of decksmith_sessions.
type SessionsResult struct {
	Sessions []SessionSummary `json:"sessions"`
	Message  string           `json:"message,omitempty"`
}

// SessionSummary is a compact view of one session.
type SessionSummary struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"`
	Status        string `json:"status"`
	Step          string `json:"step"`
	Deck          string `json:"deck,omitempty"`
	Commander     string `json:"commander,omitempty"`
	Budget        int    `json:"budget"`
	UpdatedAt     string `json:"updated_at"`
	PendingPrompt string `json:"pending_prompt,omitempty"`
}

func summarize(sess *session.Session) SessionSummary {
	out := SessionSummary{
		ID:        sess.ID,
		Provider:  sess.Provider,
		Status:    string(sess.Status),
		Step:      sess.State.Step().Label(),
		Budget:    sess.State.Budget(),
		UpdatedAt: sess.UpdatedAt.Format("2006-01-02 15:04"),
	}
	if d := sess.State.OriginalDeck(); d != nil {
		out.Deck = d.Name
		out.Commander = d.CommanderName()
	}
	if sess.Pending != nil {
		out.PendingPrompt = truncate(sess.Pending.Prompt, 200)
	}
	return out
}

func (s *Server) handleSessions(ctx context.Context, req *mcp.CallToolRequest, args SessionsArgs) (*mcp.CallToolResult, any, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}

	out := SessionsResult{Sessions: []SessionSummary{}}
	for _, sess := range sessions {
		if args.Status != "" && string(sess.Status) != args.Status {
			continue
		}
		out.Sessions = append(out.Sessions, summarize(sess))
		if len(out.Sessions) >= limit {
			break
		}
	}

	if len(out.Sessions) == 0 {
		out.Message = "No sessions found matching the criteria."
	}
	return nil, out, nil
}

// SessionShowArgs defines the input for decksmith_session_show.
type SessionShowArgs struct {
	SessionID string `json:"session_id" jsonschema:"The session ID"`
	Messages  int    `json:"messages,omitempty" jsonschema:"How many recent messages to include (default 10, 0 for the default)"`
}

// SessionShowResult is the output of decksmith_session_show.
type SessionShowResult struct {
	Session     SessionSummary                `json:"session"`
	Parameters  map[string]string             `json:"parameters"`
	Suggestions []mtg.ValidatedCardSuggestion `json:"suggestions"`
	Messages    []MessageView                 `json:"messages"`
	Options     []string                      `json:"options,omitempty"`
}

// MessageView is one conversation entry.
type MessageView struct {
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

func (s *Server) handleSessionShow(ctx context.Context, req *mcp.CallToolRequest, args SessionShowArgs) (*mcp.CallToolResult, any, error) {
	sess, err := s.load(ctx, args.SessionID)
	if err != nil {
		return nil, nil, err
	}

	n := args.Messages
	if n <= 0 {
		n = 10
	}

	out := SessionShowResult{
		Session:     summarize(sess),
		Parameters:  map[string]string{},
		Suggestions: sess.State.Suggestions(),
		Messages:    []MessageView{},
	}
	if out.Suggestions == nil {
		out.Suggestions = []mtg.ValidatedCardSuggestion{}
	}
	for _, p := range sess.State.Parameters() {
		out.Parameters[p.Key] = p.Value
	}
	for _, m := range sess.State.Tail(n) {
		if m.Role == session.RoleTool || m.Content == "" {
			continue
		}
		out.Messages = append(out.Messages, MessageView{Role: string(m.Role), Name: m.Name, Content: m.Content})
	}
	if sess.Pending != nil {
		for _, o := range sess.Pending.Options {
			out.Options = append(out.Options, o.Label)
		}
	}
	return nil, out, nil
}

// DecklistArgs defines the input for decksmith_session_decklist.
type DecklistArgs struct {
	SessionID string `json:"session_id" jsonschema:"The session ID"`
	Which     string `json:"which,omitempty" jsonschema:"'original' (default) or 'revised'"`
}

// DecklistResult is the output of decksmith_session_decklist.
type DecklistResult struct {
	Deck      string `json:"deck"`
	Commander string `json:"commander"`
	Cards     int    `json:"cards"`
	Decklist  string `json:"decklist"`
}

func (s *Server) handleSessionDecklist(ctx context.Context, req *mcp.CallToolRequest, args DecklistArgs) (*mcp.CallToolResult, any, error) {
	sess, err := s.load(ctx, args.SessionID)
	if err != nil {
		return nil, nil, err
	}

	var deck *mtg.Deck
	switch strings.ToLower(args.Which) {
	case "", "original":
		deck = sess.State.OriginalDeck()
		if deck == nil {
			return nil, nil, fmt.Errorf("session %s has not loaded a deck yet", sess.ID)
		}
	case "revised", "altered":
		deck = sess.State.AlteredDeck()
		if deck == nil {
			return nil, nil, fmt.Errorf("session %s has no accepted suggestions yet", sess.ID)
		}
	default:
		return nil, nil, fmt.Errorf("which must be 'original' or 'revised', got %q", args.Which)
	}

	return nil, DecklistResult{
		Deck:      deck.Name,
		Commander: deck.CommanderName(),
		Cards:     deck.TotalCards(),
		Decklist:  deck.Decklist(),
	}, nil
}

// CardLookupArgs defines the input for decksmith_card_lookup.
type CardLookupArgs struct {
	Names []string `json:"names" jsonschema:"Exact card names to look up (e.g. Sol Ring)"`
}

// CardLookupResult is the output of decksmith_card_lookup.
type CardLookupResult struct {
	Cards    []mtg.Card `json:"cards"`
	NotFound []string   `json:"not_found,omitempty"`
}

func (s *Server) handleCardLookup(ctx context.Context, req *mcp.CallToolRequest, args CardLookupArgs) (*mcp.CallToolResult, any, error) {
	var names []string
	for _, n := range args.Names {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil, nil, errors.New("names is required")
	}

	cards, missing, err := s.cards.ResolveCardsByName(ctx, names)
	if err != nil {
		return nil, nil, fmt.Errorf("card lookup failed: %w", err)
	}
	if cards == nil {
		cards = []mtg.Card{}
	}
	return nil, CardLookupResult{Cards: cards, NotFound: missing}, nil
}

func (s *Server) load(ctx context.Context, id string) (*session.Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("session_id is required")
	}
	sess, err := s.sessions.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
