package workflow

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/kokistudios/decksmith/internal/mtg"
	"github.com/kokistudios/decksmith/internal/reasoning"
	"github.com/kokistudios/decksmith/internal/session"
	"github.com/kokistudios/decksmith/internal/tools"
)

//go:embed templates/*.md
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.md"))

type systemData struct {
	MaxPairs   int
	DeckSize   int
	SaveTool   string
	PromptTool string
}

type contextData struct {
	DeckName        string
	Commander       string
	CardCount       int
	Parameters      []session.Parameter
	DeckJSON        string
	SuggestionsJSON string
	SaveTool        string
}

// SystemPrompt renders the reasoning model's standing instructions.
func SystemPrompt() (string, error) {
	return render("system.md", systemData{
		MaxPairs:   10,
		DeckSize:   100,
		SaveTool:   string(tools.SaveCardSuggestions),
		PromptTool: string(tools.PromptUser),
	})
}

// contextMessage describes the deck, the preferences and the recorded
// suggestions. It is rebuilt for every delegation and never stored.
func contextMessage(st *session.State, deck *mtg.Deck) (session.Message, error) {
	deckJSON, err := json.MarshalIndent(deck, "", "  ")
	if err != nil {
		return session.Message{}, fmt.Errorf("failed to encode deck: %w", err)
	}
	data := contextData{
		DeckName:   deck.Name,
		Commander:  deck.CommanderName(),
		CardCount:  deck.TotalCards(),
		Parameters: st.Parameters(),
		DeckJSON:   string(deckJSON),
		SaveTool:   string(tools.SaveCardSuggestions),
	}
	if sugg := st.Suggestions(); len(sugg) > 0 {
		b, err := json.MarshalIndent(sugg, "", "  ")
		if err != nil {
			return session.Message{}, fmt.Errorf("failed to encode suggestions: %w", err)
		}
		data.SuggestionsJSON = string(b)
	}
	text, err := render("context.md", data)
	if err != nil {
		return session.Message{}, err
	}
	return session.HumanMessage(text), nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

// buildRequest assembles the bounded context for one delegation.
func buildRequest(st *session.State, window int) (reasoning.Request, error) {
	deck := st.OriginalDeck()
	system, err := SystemPrompt()
	if err != nil {
		return reasoning.Request{}, err
	}
	ctxMsg, err := contextMessage(st, deck)
	if err != nil {
		return reasoning.Request{}, err
	}
	msgs := append([]session.Message{ctxMsg}, sanitizeTail(st.Tail(window))...)
	return reasoning.Request{System: system, Messages: msgs, Tools: tools.Specs()}, nil
}

// sanitizeTail drops tool results whose call fell outside the window.
func sanitizeTail(tail []session.Message) []session.Message {
	calls := map[string]bool{}
	out := make([]session.Message, 0, len(tail))
	for _, m := range tail {
		for _, tc := range m.ToolCalls {
			calls[tc.ID] = true
		}
		if m.Role == session.RoleTool && !calls[m.ToolCallID] {
			continue
		}
		out = append(out, m)
	}
	return out
}
