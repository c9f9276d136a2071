package session

import (
	"errors"
	"fmt"

	"github.com/kokistudios/decksmith/internal/mtg"
	"github.com/kokistudios/decksmith/internal/suggest"
)

// DefaultStepBudget bounds how many steps a session may complete.
const DefaultStepBudget = 25

type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured tool invocation emitted by the reasoning model.
type ToolCall struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	Arguments string `yaml:"arguments" json:"arguments"`
}

// Message is one entry of the conversation history.
type Message struct {
	Role       Role       `yaml:"role"`
	Name       string     `yaml:"name,omitempty"`
	Content    string     `yaml:"content"`
	ToolCallID string     `yaml:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `yaml:"tool_calls,omitempty"`
}

func HumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

func AssistantMessage(name, content string) Message {
	return Message{Role: RoleAssistant, Name: name, Content: content}
}

func ToolResult(callID, name, content string) Message {
	return Message{Role: RoleTool, Name: name, Content: content, ToolCallID: callID}
}

// Parameter is one collected deck-building preference.
type Parameter struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

var (
	ErrBudgetExhausted   = errors.New("step budget exhausted")
	ErrOriginalDeckSet   = errors.New("original deck is already set")
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
)

// State is the record threaded through every workflow step. Fields are only
// reachable through accessors that copy and the mutators below.
type State struct {
	messages    []Message
	step        Step
	params      []Parameter
	deckID      string
	original    *mtg.Deck
	altered     *mtg.Deck
	suggestions []mtg.ValidatedCardSuggestion
	budget      int
}

type StateOption func(*State)

// WithDeckID pre-supplies the deck to load, skipping the selection menu.
func WithDeckID(id string) StateOption {
	return func(s *State) { s.deckID = id }
}

// WithBudget overrides DefaultStepBudget. Negative values are clamped to 0.
func WithBudget(n int) StateOption {
	return func(s *State) {
		if n < 0 {
			n = 0
		}
		s.budget = n
	}
}

// NewState starts a conversation with its first entry.
func NewState(initial Message, opts ...StateOption) *State {
	s := &State{
		messages: []Message{initial},
		budget:   DefaultStepBudget,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *State) Messages() []Message {
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m
		out[i].ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return out
}

// Tail returns the last n messages, or all of them when n <= 0.
func (s *State) Tail(n int) []Message {
	all := s.Messages()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

func (s *State) Step() Step     { return s.step }
func (s *State) DeckID() string { return s.deckID }
func (s *State) Budget() int    { return s.budget }

func (s *State) Parameters() []Parameter {
	return append([]Parameter(nil), s.params...)
}

// Parameter returns the value stored under key.
func (s *State) Parameter(key string) (string, bool) {
	for _, p := range s.params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// OriginalDeck returns a copy of the loaded deck, or nil.
func (s *State) OriginalDeck() *mtg.Deck {
	if s.original == nil {
		return nil
	}
	d := s.original.Clone()
	return &d
}

// AlteredDeck returns a copy of the current altered deck, or nil.
func (s *State) AlteredDeck() *mtg.Deck {
	if s.altered == nil {
		return nil
	}
	d := s.altered.Clone()
	return &d
}

func (s *State) Suggestions() []mtg.ValidatedCardSuggestion {
	out := make([]mtg.ValidatedCardSuggestion, len(s.suggestions))
	for i, sg := range s.suggestions {
		out[i] = sg
		out[i].Card = sg.Card.Clone()
	}
	return out
}

func (s *State) AppendMessage(m Message) {
	m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	s.messages = append(s.messages, m)
}

func (s *State) SetStep(step Step) {
	s.step = step
}

// SetParameter stores value under key, keeping the key's first insertion position.
func (s *State) SetParameter(key, value string) {
	for i, p := range s.params {
		if p.Key == key {
			s.params[i].Value = value
			return
		}
	}
	s.params = append(s.params, Parameter{Key: key, Value: value})
}

// SetOriginalDeck stores the deck the session revises. It can only be set once.
func (s *State) SetOriginalDeck(d mtg.Deck) error {
	if s.original != nil {
		return ErrOriginalDeckSet
	}
	if err := d.Validate(); err != nil {
		return err
	}
	c := d.Clone()
	s.original = &c
	return nil
}

// SetAlteredDeck replaces the altered deck with the validator's output.
func (s *State) SetAlteredDeck(a suggest.Accepted) {
	d := a.Deck()
	s.altered = &d
}

// SetSuggestions replaces the suggestion list wholesale.
func (s *State) SetSuggestions(a suggest.Accepted) {
	s.suggestions = a.Suggestions()
}

// DecrementBudget spends one step. It fails once the budget is zero.
func (s *State) DecrementBudget() error {
	if s.budget <= 0 {
		return ErrBudgetExhausted
	}
	s.budget--
	return nil
}

// Clone returns a deep copy that handlers may transform freely.
func (s *State) Clone() *State {
	out := &State{
		messages:    s.Messages(),
		step:        s.step,
		params:      s.Parameters(),
		deckID:      s.deckID,
		original:    s.OriginalDeck(),
		altered:     s.AlteredDeck(),
		suggestions: s.Suggestions(),
		budget:      s.budget,
	}
	if s.suggestions == nil {
		out.suggestions = nil
	}
	return out
}

// StateRecord is the serialized form of State.
type StateRecord struct {
	Messages    []Message                     `yaml:"messages"`
	Step        Step                          `yaml:"step,omitempty"`
	Parameters  []Parameter                   `yaml:"parameters,omitempty"`
	DeckID      string                        `yaml:"deck_id,omitempty"`
	Original    *mtg.Deck                     `yaml:"original_deck,omitempty"`
	Altered     *mtg.Deck                     `yaml:"altered_deck,omitempty"`
	Suggestions []mtg.ValidatedCardSuggestion `yaml:"suggestions,omitempty"`
	Budget      int                           `yaml:"budget"`
}

func (s *State) Record() StateRecord {
	return StateRecord{
		Messages:    s.Messages(),
		Step:        s.step,
		Parameters:  s.Parameters(),
		DeckID:      s.deckID,
		Original:    s.OriginalDeck(),
		Altered:     s.AlteredDeck(),
		Suggestions: s.Suggestions(),
		Budget:      s.budget,
	}
}

// RestoreState rebuilds a State from its record, checking invariants.
func RestoreState(r StateRecord) (*State, error) {
	if len(r.Messages) == 0 {
		return nil, fmt.Errorf("%w: conversation history is empty", ErrInvalidCheckpoint)
	}
	if r.Budget < 0 {
		return nil, fmt.Errorf("%w: negative step budget %d", ErrInvalidCheckpoint, r.Budget)
	}
	if !r.Step.Valid() {
		return nil, fmt.Errorf("%w: unknown step %q", ErrInvalidCheckpoint, r.Step)
	}
	if r.Altered != nil && r.Original == nil {
		return nil, fmt.Errorf("%w: altered deck without original deck", ErrInvalidCheckpoint)
	}
	if r.Original != nil {
		if err := r.Original.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
		}
	}
	for _, m := range r.Messages {
		switch m.Role {
		case RoleHuman, RoleAssistant, RoleTool:
		default:
			return nil, fmt.Errorf("%w: unknown message role %q", ErrInvalidCheckpoint, m.Role)
		}
	}

	s := &State{
		messages:    r.Messages,
		step:        r.Step,
		params:      r.Parameters,
		deckID:      r.DeckID,
		original:    r.Original,
		altered:     r.Altered,
		suggestions: r.Suggestions,
		budget:      r.Budget,
	}
	return s.Clone(), nil
}
