package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	decksmithmcp "github.com/kokistudios/decksmith/internal/mcp"
	"github.com/kokistudios/decksmith/internal/provider"
	"github.com/kokistudios/decksmith/internal/session"
	"github.com/kokistudios/decksmith/internal/store"
	"github.com/kokistudios/decksmith/internal/ui"
	"github.com/kokistudios/decksmith/internal/workflow"
)

// Set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func buildVersion() string {
	if commit == "none" {
		return version
	}
	return fmt.Sprintf("%s (%s, %s)", version, commit, date)
}

func main() {
	var noColor, verbose bool

	rootCmd := &cobra.Command{
		Use:   "decksmith",
		Short: "decksmith: Commander deck revision assistant",
		Long:  "A local CLI that loads a Commander deck from your deck provider, asks about your goals, and works with a reasoning model to suggest validated cuts and adds.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.Init(noColor)
			ui.SetVerbose(verbose)
		},
		SilenceUsage: true,
	}

	rootCmd.Version = buildVersion()
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "session", Title: "Session Commands:"},
		&cobra.Group{ID: "cards", Title: "Card Commands:"},
		&cobra.Group{ID: "config", Title: "Configuration:"},
	)

	initC := initCmd()
	initC.GroupID = "core"
	reviseC := reviseCmd()
	reviseC.GroupID = "core"
	decksC := decksCmd()
	decksC.GroupID = "core"
	doctorC := doctorCmd()
	doctorC.GroupID = "core"

	sessionC := sessionCmd()
	sessionC.GroupID = "session"

	cardsC := cardsCmd()
	cardsC.GroupID = "cards"

	configC := configCmd()
	configC.GroupID = "config"

	rootCmd.AddCommand(initC, reviseC, decksC, doctorC, sessionC, cardsC, configC)
	rootCmd.AddCommand(cleanCmd())
	rootCmd.AddCommand(completionCmd())
	rootCmd.AddCommand(mcpServeCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	var force bool
	var providerName, username, decksDir string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize DECKSMITH_HOME directory structure",
		Long: "Create the DECKSMITH_HOME directory (~/.decksmith by default) with sessions/, decks/, and config.yaml. " +
			"Run this once before using any other decksmith command.",
		Example: "  decksmith init\n  decksmith init --provider archidekt --username jdoe\n  decksmith init --force",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := store.Home()
			cfg := store.DefaultConfig()
			if providerName != "" {
				cfg.Provider.Name = providerName
			}
			if username != "" {
				cfg.Provider.Username = username
			}
			if decksDir != "" {
				cfg.Provider.DecksDir = decksDir
			}
			if err := store.Init(home, force, cfg); err != nil {
				return err
			}
			ui.Success("decksmith initialized")
			ui.Detail("Home:", home)
			ui.Detail("Provider:", cfg.Provider.Name)

			p, err := provider.New(cfg.Provider, home)
			if err != nil {
				ui.Warning(err.Error())
				return nil
			}
			if c, ok := p.(provider.Checker); ok {
				if err := c.TestConnection(cmd.Context()); err != nil {
					ui.Warning(fmt.Sprintf("Could not reach %s: %v", p.Name(), err))
				} else {
					ui.Success(fmt.Sprintf("Connected to %s", p.Name()))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Reinitialize even if DECKSMITH_HOME already exists")
	cmd.Flags().StringVar(&providerName, "provider", "", "Deck provider: local or archidekt")
	cmd.Flags().StringVar(&username, "username", "", "Provider account name (archidekt)")
	cmd.Flags().StringVar(&decksDir, "decks-dir", "", "Directory of deck YAML files (local provider)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and edit decksmith configuration",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configSetCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(s.Config)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a decksmith configuration value by dotted key, e.g. provider.name, model.name, session.step_budget.",
		Example: `  decksmith config set provider.name archidekt
  decksmith config set model.name gpt-4.1-mini
  decksmith config set session.step_budget 40`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			if err := s.SetConfigValue(args[0], args[1]); err != nil {
				return err
			}
			ui.Success(fmt.Sprintf("Set %s = %s", args[0], args[1]))
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check health of the decksmith home, provider, and sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := store.Home()
			ctx := cmd.Context()

			if fix {
				ui.CommandBanner("DOCTOR", "repair mode")
				fixed := store.FixIssues(home)
				for _, f := range fixed {
					ui.Success(fmt.Sprintf("[FIXED] %s", f))
				}
				if len(fixed) == 0 {
					ui.EmptyState("Nothing to fix.")
				}
			} else {
				ui.CommandBanner("DOCTOR", "health check")
			}

			issues := store.CheckHealth(home)
			issues = append(issues, store.CheckSessionIntegrity(home)...)

			a, err := openApp()
			if err != nil {
				issues = append(issues, store.Issue{Severity: "error", Message: err.Error()})
			} else {
				defer a.Close()
				issues = append(issues, checkCollaborators(ctx, a)...)
			}

			if len(issues) == 0 {
				ui.Success("Everything looks good")
				return nil
			}

			hasError := false
			for _, issue := range issues {
				if issue.Severity == "error" {
					ui.Error(fmt.Sprintf("[ERR]  %s", issue.Message))
					hasError = true
				} else {
					ui.Warning(fmt.Sprintf("[WARN] %s", issue.Message))
				}
			}

			if hasError {
				os.Exit(2)
			}
			os.Exit(1)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "Repair missing directories and remove unreadable session checkpoints")
	return cmd
}

func checkCollaborators(ctx context.Context, a *app) []store.Issue {
	var issues []store.Issue
	cfg := a.store.Config

	p, err := a.provider()
	if err != nil {
		issues = append(issues, store.Issue{Severity: "error", Message: fmt.Sprintf("provider: %v", err)})
	} else if c, ok := p.(provider.Checker); ok {
		if err := c.TestConnection(ctx); err != nil {
			issues = append(issues, store.Issue{Severity: "warning", Message: fmt.Sprintf("provider %s: %v", p.Name(), err)})
		}
	}

	if os.Getenv(cfg.Model.APIKeyEnv) == "" {
		issues = append(issues, store.Issue{Severity: "warning", Message: fmt.Sprintf("model: %s is not set", cfg.Model.APIKeyEnv)})
	}

	if n, err := a.cache.Count(ctx); err != nil {
		issues = append(issues, store.Issue{Severity: "error", Message: fmt.Sprintf("card cache: %v", err)})
	} else if n == 0 {
		issues = append(issues, store.Issue{Severity: "warning", Message: "card cache is empty (run 'decksmith cards refresh' to import Scryfall bulk data)"})
	}

	interrupted, err := workflow.FindInterrupted(ctx, a.sessions)
	if err == nil {
		for _, it := range interrupted {
			issues = append(issues, store.Issue{
				Severity: "warning",
				Message:  fmt.Sprintf("session %s: interrupted after %s (run 'decksmith session resume %s')", it.SessionID, it.Step.Label(), it.SessionID),
			})
		}
	}
	return issues
}

func cleanCmd() *cobra.Command {
	var dryRun bool
	var all bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove abandoned and failed session data",
		Long:  "Removes session directories for abandoned and failed sessions. Use --all to also remove completed and exhausted sessions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStore()
			if err != nil {
				return err
			}
			files := session.NewFileStore(s)
			sessions, err := files.List(cmd.Context())
			if err != nil {
				return err
			}
			var toClean []*session.Session
			for _, sess := range sessions {
				switch sess.Status {
				case session.StatusAbandoned, session.StatusFailed:
					toClean = append(toClean, sess)
				case session.StatusCompleted, session.StatusExhausted:
					if all {
						toClean = append(toClean, sess)
					}
				}
			}
			if len(toClean) == 0 {
				ui.EmptyState("Nothing to clean.")
				return nil
			}
			for _, sess := range toClean {
				if dryRun {
					ui.Detail("Would remove:", fmt.Sprintf("%s %s", sess.ID, ui.Dim("("+string(sess.Status)+")")))
					continue
				}
				if err := files.Delete(sess.ID); err != nil {
					ui.Warning(fmt.Sprintf("Failed to remove %s: %v", sess.ID, err))
				} else {
					ui.Success(fmt.Sprintf("Removed %s %s", sess.ID, ui.Dim("("+string(sess.Status)+")")))
				}
			}
			if dryRun {
				ui.Info(fmt.Sprintf("%d session(s) would be removed. Run without --dry-run to proceed.", len(toClean)))
			} else {
				ui.Success(fmt.Sprintf("Cleaned %d session(s)", len(toClean)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview what would be removed")
	cmd.Flags().BoolVar(&all, "all", false, "Also remove completed and exhausted sessions")
	return cmd
}

func completionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish]",
		Short:     "Generate shell completion scripts",
		Long:      "Generate shell completion scripts for bash, zsh, or fish. Output the script to stdout for sourcing in your shell profile.",
		Example:   "  decksmith completion bash > ~/.bashrc.d/decksmith\n  decksmith completion zsh > ~/.zfunc/_decksmith\n  decksmith completion fish > ~/.config/fish/completions/decksmith.fish",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			default:
				return fmt.Errorf("unsupported shell: %s (use bash, zsh, or fish)", args[0])
			}
		},
	}
}

func mcpServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "mcp-serve",
		Short:  "Run decksmith as an MCP server",
		Long:   "Start decksmith as a Model Context Protocol (MCP) server over stdio, giving MCP clients read-only access to sessions, decklists, and the card cache.",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			server := decksmithmcp.NewServer(a.sessions, a.cards, version)
			err = server.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
