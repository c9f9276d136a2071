package workflow

import (
	"strings"

	"github.com/kokistudios/decksmith/internal/session"
)

const (
	firstDecisionPrompt = "How would you like to proceed?" +
		"\n\t- 's' or 'save' will save the deck to your provider" +
		"\n\t- 'q' or 'quit' will exit the deck builder without saving changes" +
		"\n\t- Any other responses will be used to refine the deck further"
	refineDecisionPrompt = "Would you like to refine further? (q - quit / s - save)"
	savedDecisionPrompt  = "Would you like to refine further? (q - quit)"
)

// Route returns the step that follows current. answer only matters at the
// decision points after suggest_upgrades and save_deck; anything that is not
// a save or quit keyword refines the deck further.
func Route(current session.Step, answer string) session.Step {
	a := strings.ToLower(strings.TrimSpace(answer))

	switch current {
	case session.StepNone:
		return session.StepLoadDeck
	case session.StepLoadDeck:
		return session.StepAskParameters
	case session.StepAskParameters:
		return session.StepSuggestUpgrades
	case session.StepSuggestUpgrades:
		switch a {
		case "q", "quit":
			return session.StepEnd
		case "s", "save":
			return session.StepSaveDeck
		default:
			return session.StepSuggestUpgrades
		}
	case session.StepSaveDeck:
		switch a {
		case "q", "quit":
			return session.StepEnd
		default:
			return session.StepSuggestUpgrades
		}
	default:
		return session.StepEnd
	}
}

// DecisionPrompt returns the question asked before routing away from
// current, and false for steps that route without asking. rounds is the
// number of completed suggestion rounds.
func DecisionPrompt(current session.Step, rounds int) (string, bool) {
	switch current {
	case session.StepSuggestUpgrades:
		if rounds <= 1 {
			return firstDecisionPrompt, true
		}
		return refineDecisionPrompt, true
	case session.StepSaveDeck:
		return savedDecisionPrompt, true
	default:
		return "", false
	}
}

// suggestionRounds counts the replies the suggest step has recorded.
func suggestionRounds(st *session.State) int {
	n := 0
	for _, m := range st.Messages() {
		if m.Role == session.RoleAssistant && m.Name == string(session.StepSuggestUpgrades) {
			n++
		}
	}
	return n
}
