package session

// Step identifies a workflow step. The zero value means the workflow has
// not started.
type Step string

const (
	StepNone            Step = ""
	StepLoadDeck        Step = "load_deck"
	StepAskParameters   Step = "ask_parameters"
	StepSuggestUpgrades Step = "suggest_upgrades"
	StepSaveDeck        Step = "save_deck"
	StepEnd             Step = "end"
)

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	switch s {
	case StepNone, StepLoadDeck, StepAskParameters, StepSuggestUpgrades, StepSaveDeck, StepEnd:
		return true
	}
	return false
}

// Label returns a human-readable step name.
func (s Step) Label() string {
	switch s {
	case StepNone:
		return "Not started"
	case StepLoadDeck:
		return "Load deck"
	case StepAskParameters:
		return "Preferences"
	case StepSuggestUpgrades:
		return "Suggest upgrades"
	case StepSaveDeck:
		return "Save deck"
	case StepEnd:
		return "Done"
	}
	return string(s)
}

// SuspendKind says what a pending answer will be used for.
type SuspendKind string

const (
	SuspendDecision SuspendKind = "decision" // router save/quit/refine prompt
	SuspendMenu     SuspendKind = "menu"     // deck selection
	SuspendQuestion SuspendKind = "question" // preference question
	SuspendTool     SuspendKind = "tool"     // prompt_user tool call
)

// Option is one entry of a numbered menu.
type Option struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

// Suspension is an outstanding question to the human. Token identifies it so
// that exactly one answer is accepted per suspension.
type Suspension struct {
	Token      string      `yaml:"token"`
	Kind       SuspendKind `yaml:"kind"`
	Step       Step        `yaml:"step"`
	Prompt     string      `yaml:"prompt"`
	Question   int         `yaml:"question,omitempty"`
	Options    []Option    `yaml:"options,omitempty"`
	ToolCallID string      `yaml:"tool_call_id,omitempty"`
}
