package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kokistudios/decksmith/internal/session"
	"github.com/kokistudios/decksmith/internal/ui"
	"github.com/kokistudios/decksmith/internal/workflow"
)

// notifyAfter is how long a step must take before a desktop notification
// is sent when it finishes.
const notifyAfter = 30 * time.Second

func reviseCmd() *cobra.Command {
	var deckID string
	var budget int
	cmd := &cobra.Command{
		Use:   "revise",
		Short: "Start a deck revision session",
		Long: "Load a deck from your provider, answer a few questions about budget, collection and goals, " +
			"then iterate on suggested cuts and adds until you save or quit. Press esc at any question to stop; " +
			"the session is checkpointed and can be resumed later.",
		Example: "  decksmith revise\n  decksmith revise --deck-id 1234567\n  decksmith revise --budget 40",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			eng, err := a.engine()
			if err != nil {
				return err
			}

			ui.LogoWithTagline("Commander deck revision")
			spin := ui.NewSpinner("Loading deck...")
			res, err := eng.Start(cmd.Context(), workflow.StartOptions{DeckID: deckID, Budget: budget})
			spin.Stop()
			if err != nil {
				return reportRunError(res, err)
			}
			ui.SessionHeader(res.SessionID, "deck revision")
			return drive(cmd.Context(), eng, res)
		},
	}
	cmd.Flags().StringVar(&deckID, "deck-id", "", "Provider deck id to load, skipping the selection menu")
	cmd.Flags().IntVar(&budget, "budget", 0, "Maximum number of workflow steps (default from config)")
	return cmd
}

// drive answers suspensions interactively until the session ends or the
// user stops.
func drive(ctx context.Context, eng *workflow.Engine, res workflow.RunResult) error {
	for {
		printMessages(res)

		switch res.Outcome {
		case workflow.OutcomeCompleted:
			ui.SessionComplete(res.SessionID)
			return nil
		case workflow.OutcomeExhausted:
			ui.Warning(fmt.Sprintf("Session %s ran out of steps", res.SessionID))
			return nil
		case workflow.OutcomeAbandoned:
			ui.Info(fmt.Sprintf("Session %s abandoned", res.SessionID))
			return nil
		}

		answer, err := ask(res)
		if errors.Is(err, ui.ErrCancelled) {
			ui.Info(fmt.Sprintf("Paused. Resume with 'decksmith session resume %s'", res.SessionID))
			return nil
		}
		if err != nil {
			return err
		}

		start := time.Now()
		spin := ui.NewSpinner(spinnerText(res, answer))
		next, err := eng.Resume(ctx, res.SessionID, res.Token, answer)
		spin.Stop()
		if err != nil {
			return reportRunError(next, err)
		}
		if time.Since(start) > notifyAfter && next.Outcome == workflow.OutcomeSuspended {
			ui.Notify("decksmith", "Your deck suggestions are ready")
		}
		res = next
	}
}

func ask(res workflow.RunResult) (string, error) {
	if res.Kind == session.SuspendMenu && ui.IsInteractive() && len(res.Options) > 0 {
		labels := make([]string, len(res.Options))
		for i, o := range res.Options {
			labels[i] = o.Label
		}
		title := res.Prompt
		if i := strings.IndexByte(title, '\n'); i > 0 {
			title = title[:i]
		}
		n, err := ui.Select(title, labels)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(n), nil
	}
	return ui.Prompt(res.Prompt)
}

func spinnerText(res workflow.RunResult, answer string) string {
	switch {
	case res.Kind == session.SuspendMenu:
		return "Loading deck..."
	case res.Kind == session.SuspendDecision && isSave(answer):
		return "Saving deck..."
	case res.Kind == session.SuspendQuestion:
		return "Working..."
	default:
		return "Thinking about upgrades..."
	}
}

func isSave(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	return a == "s" || a == "save"
}

// printMessages shows what the session said since the last answer. The
// pending prompt is left for the question itself.
func printMessages(res workflow.RunResult) {
	for _, m := range res.Messages {
		if m.Role != session.RoleAssistant || m.Content == "" {
			continue
		}
		if res.Outcome == workflow.OutcomeSuspended && m.Content == res.Prompt {
			continue
		}
		switch session.Step(m.Name) {
		case session.StepSuggestUpgrades:
			ui.StepHeader(session.StepSuggestUpgrades.Label(), -1)
			ui.Assistant(m.Content)
		case session.StepLoadDeck, session.StepSaveDeck:
			ui.Assistant(m.Content)
		default:
			ui.Info(m.Content)
		}
	}
}

func reportRunError(res workflow.RunResult, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		ui.Info("Interrupted. The last completed step is checkpointed.")
		return nil
	case errors.Is(err, workflow.ErrPrecondition) && res.SessionID != "":
		ui.Detail("Session:", fmt.Sprintf("%s (failed)", res.SessionID))
	case res.SessionID == "":
		ui.Info("The last checkpoint is unchanged; retry with 'decksmith session resume <id>'.")
	}
	return err
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage deck revision sessions",
		Long:  "List, inspect, resume, answer, and abandon checkpointed deck revision sessions.",
	}
	cmd.AddCommand(sessionListCmd())
	cmd.AddCommand(sessionStatusCmd())
	cmd.AddCommand(sessionResumeCmd())
	cmd.AddCommand(sessionAnswerCmd())
	cmd.AddCommand(sessionAbandonCmd())
	return cmd
}

func sessionListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			files := session.NewFileStore(s)

			var sessions []*session.Session
			if all {
				sessions, err = files.List(cmd.Context())
			} else {
				sessions, err = files.Active(cmd.Context())
			}
			if err != nil {
				return err
			}

			if len(sessions) == 0 {
				ui.EmptyState("No sessions found.")
				return nil
			}

			var rows [][]string
			for _, sess := range sessions {
				deck := "-"
				if d := sess.State.OriginalDeck(); d != nil {
					deck = d.Name
					if len(deck) > 28 {
						deck = deck[:28] + ".."
					}
				}
				rows = append(rows, []string{
					sess.ID, deck, string(sess.Status), sess.State.Step().Label(),
					strconv.Itoa(sess.State.Budget()), sess.UpdatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			ui.Table([]string{"ID", "DECK", "STATUS", "STEP", "BUDGET", "UPDATED"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Show all sessions including finished ones")
	return cmd
}

func sessionStatusCmd() *cobra.Command {
	var decklist bool
	cmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show session status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			sess, err := session.NewFileStore(s).Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSessionDetail(sess, decklist)
			return nil
		},
	}
	cmd.Flags().BoolVar(&decklist, "decklist", false, "Print the revised (or original) decklist")
	return cmd
}

func printSessionDetail(sess *session.Session, decklist bool) {
	ui.SectionHeader("Session " + sess.ID)
	ui.KeyValue("Status:  ", string(sess.Status))
	ui.KeyValue("Step:    ", sess.State.Step().Label())
	ui.KeyValue("Provider:", sess.Provider)
	ui.KeyValue("Budget:  ", strconv.Itoa(sess.State.Budget()))
	ui.KeyValue("Updated: ", sess.UpdatedAt.Local().Format("2006-01-02 15:04"))

	if d := sess.State.OriginalDeck(); d != nil {
		ui.KeyValue("Deck:    ", d.Summary())
	}
	if params := sess.State.Parameters(); len(params) > 0 {
		ui.SectionHeader("Preferences")
		for _, p := range params {
			ui.Detail(p.Key+":", p.Value)
		}
	}
	if sugg := sess.State.Suggestions(); len(sugg) > 0 {
		ui.SectionHeader("Accepted suggestions")
		for _, sg := range sugg {
			sign := "+"
			if sg.Quantity < 0 {
				sign = ""
			}
			ui.Detail(fmt.Sprintf("%s%d", sign, sg.Quantity), fmt.Sprintf("%s %s", sg.Card.Name, ui.Dim(sg.Reason)))
		}
	}
	if sess.Pending != nil {
		ui.SectionHeader("Waiting on")
		ui.Question(sess.Pending.Prompt)
		ui.Detail("Answer with:", fmt.Sprintf("decksmith session answer %s \"...\"", sess.ID))
	}

	if decklist {
		deck := sess.State.AlteredDeck()
		label := "Revised decklist"
		if deck == nil {
			deck = sess.State.OriginalDeck()
			label = "Decklist"
		}
		if deck != nil {
			ui.SectionHeader(label)
			fmt.Print(deck.Decklist())
		}
	}
}

func sessionResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a suspended or interrupted session interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			eng, err := a.engine()
			if err != nil {
				return err
			}

			spin := ui.NewSpinner("Resuming...")
			res, err := eng.Continue(cmd.Context(), args[0])
			spin.Stop()
			if err != nil {
				return reportRunError(res, err)
			}
			ui.SessionHeader(res.SessionID, "resumed")
			return drive(cmd.Context(), eng, res)
		},
	}
}

func sessionAnswerCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "answer <session-id> <answer>",
		Short: "Answer a session's pending question without entering interactive mode",
		Long: "Answer the pending question of a suspended session and run it to the next question. " +
			"Pass --token to make sure the answer goes to the question you saw.",
		Example: "  decksmith session answer selvala-ramp-1a2b3c \"no budget\"\n  decksmith session answer selvala-ramp-1a2b3c s",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			eng, err := a.engine()
			if err != nil {
				return err
			}

			if token == "" {
				sess, err := a.sessions.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if sess.Pending == nil {
					return fmt.Errorf("session %s has no pending question", args[0])
				}
				token = sess.Pending.Token
			}

			res, err := eng.Resume(cmd.Context(), args[0], token, args[1])
			if err != nil {
				return reportRunError(res, err)
			}
			printMessages(res)
			switch res.Outcome {
			case workflow.OutcomeSuspended:
				ui.Question(res.Prompt)
				ui.Detail("Token:", res.Token)
			case workflow.OutcomeCompleted:
				ui.SessionComplete(res.SessionID)
			case workflow.OutcomeExhausted:
				ui.Warning(fmt.Sprintf("Session %s ran out of steps", res.SessionID))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Resume token of the question being answered")
	return cmd
}

func sessionAbandonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abandon <session-id>",
		Short: "Abandon a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			ok, err := ui.Confirm(fmt.Sprintf("Abandon session %s? It cannot be resumed afterwards.", args[0]))
			if err != nil {
				return err
			}
			if !ok {
				ui.Info("Cancelled")
				return nil
			}
			eng := workflow.NewEngine(session.NewFileStore(s), nil, workflow.WithLogger(ui.Logger))
			if _, err := eng.Abandon(cmd.Context(), args[0]); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Session %s abandoned", args[0]))
			return nil
		},
	}
}
