package ui

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

// Logger is the package-level structured logger.
var Logger *log.Logger

// Styles, set by Init.
var (
	headerStyle    lipgloss.Style
	successStyle   lipgloss.Style
	warningStyle   lipgloss.Style
	errorStyle     lipgloss.Style
	dimStyle       lipgloss.Style
	boldStyle      lipgloss.Style
	promptStyle    lipgloss.Style
	stepNameStyle  lipgloss.Style
	assistantStyle lipgloss.Style
)

// Init sets up color detection, lipgloss styles, and the structured logger.
// Call this once at CLI startup.
func Init(noColorFlag bool) {
	noColor := noColorFlag || os.Getenv("NO_COLOR") != ""

	SanitizeTerminal()

	// Pre-set dark background to prevent termenv OSC query that leaks ^[[I focus events
	lipgloss.SetHasDarkBackground(true)

	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	warningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle = lipgloss.NewStyle().Faint(true)
	boldStyle = lipgloss.NewStyle().Bold(true)
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	stepNameStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	Logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
	})
	if noColor {
		Logger.SetStyles(log.DefaultStyles())
	}
}

// SetVerbose lowers the log level to debug.
func SetVerbose(v bool) {
	if Logger == nil {
		return
	}
	if v {
		Logger.SetLevel(log.DebugLevel)
	} else {
		Logger.SetLevel(log.InfoLevel)
	}
}

// SanitizeTerminal resets the terminal to a sane state.
// A previous process can leave the terminal in raw mode, where \n no
// longer returns the cursor to column 0.
func SanitizeTerminal() {
	if !IsInteractive() {
		return
	}
	cmd := exec.Command("stty", "sane")
	cmd.Stdin = os.Stdin
	_ = cmd.Run()

	fmt.Fprint(os.Stderr, "\033[0m\r")
}

func Bold(s string) string   { return boldStyle.Render(s) }
func Dim(s string) string    { return dimStyle.Render(s) }
func Red(s string) string    { return errorStyle.Render(s) }
func Green(s string) string  { return successStyle.Render(s) }
func Yellow(s string) string { return warningStyle.Render(s) }

// Logo renders the decksmith card logo to stderr.
func Logo() {
	cardBorder := lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	cardCorner := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cardSuit := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))

	top := cardBorder.Render("╭─────────╮")
	line1 := cardBorder.Render("│") + cardCorner.Render("D") + "       " + cardCorner.Render("S") + cardBorder.Render("│")
	line2 := cardBorder.Render("│") + "    " + cardSuit.Render("⚒") + "    " + cardBorder.Render("│")
	line3 := cardBorder.Render("│") + cardCorner.Render("1") + "     " + cardCorner.Render("00") + cardBorder.Render("│")
	bottom := cardBorder.Render("╰─────────╯")

	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, top)
	fmt.Fprintln(os.Stderr, line1)
	fmt.Fprintln(os.Stderr, line2)
	fmt.Fprintln(os.Stderr, line3)
	fmt.Fprintln(os.Stderr, bottom)
}

// LogoWithTagline renders the logo with a tagline underneath.
func LogoWithTagline(tagline string) {
	Logo()
	if tagline != "" {
		fmt.Fprintln(os.Stderr, dimStyle.Render("  "+tagline))
	}
	fmt.Fprintln(os.Stderr)
}

// Status prints a styled status message.
func Status(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", stepNameStyle.Render("▸"), msg)
}

// StepHeader announces the workflow step a session has reached. A negative
// budget is not shown.
func StepHeader(label string, budget int) {
	fmt.Fprint(os.Stderr, "\r")
	line := stepNameStyle.Render(fmt.Sprintf("─── %s ───", strings.ToUpper(label)))
	if budget >= 0 {
		line += " " + dimStyle.Render(fmt.Sprintf("(%d steps left)", budget))
	}
	fmt.Fprintf(os.Stderr, "\n%s\n\n", line)
}

// SessionHeader prints a styled session start banner.
func SessionHeader(id, description string) {
	fmt.Fprint(os.Stderr, "\r")

	box := lipgloss.NewStyle().
		Bold(true).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(lipgloss.Color("12")).
		PaddingLeft(1).
		PaddingRight(1).
		Render(fmt.Sprintf("SESSION: %s\n%s", id, dimStyle.Render(description)))
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, box)
	fmt.Fprintln(os.Stderr)
}

// SessionComplete prints a styled session completion message.
func SessionComplete(id string) {
	fmt.Fprintf(os.Stderr, "\n%s\n",
		successStyle.Render(fmt.Sprintf("✓ Session %s completed", id)))
}

// Assistant prints a message from the deck builder. Markdown is rendered
// when stdout is a terminal.
func Assistant(msg string) {
	if IsInteractive() {
		RenderMarkdown(msg)
		return
	}
	fmt.Fprintln(os.Stdout, msg)
}

// Question prints a question the session is waiting on.
func Question(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", assistantStyle.Render("?"), promptStyle.Render(msg))
}

// Warning prints a styled warning message.
func Warning(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", warningStyle.Render("⚠"), msg)
}

// Error prints a styled error message.
func Error(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("✗"), msg)
}

// Info prints a styled informational message.
func Info(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", stepNameStyle.Render("▸"), msg)
}

// Table prints a formatted table with headers and rows.
func Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, boldStyle.Render(strings.Join(headers, "\t")))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// Success prints a green check with a message.
func Success(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", successStyle.Render("✓"), msg)
}

// Detail prints an indented key-value detail line.
func Detail(key, value string) {
	label := dimStyle.Render(fmt.Sprintf("  %s", key))
	fmt.Fprintf(os.Stderr, "%s %s\n", label, value)
}

// KeyValue prints a bold key with a value, for structured output blocks.
func KeyValue(key, value string) {
	fmt.Fprintf(os.Stderr, "  %s  %s\n", boldStyle.Render(key), value)
}

// SectionHeader prints a styled section divider with a label.
func SectionHeader(label string) {
	line := headerStyle.Render(fmt.Sprintf("── %s ──", label))
	fmt.Fprintf(os.Stderr, "\n%s\n\n", line)
}

// EmptyState prints a styled message for empty results.
func EmptyState(msg string) {
	fmt.Fprintf(os.Stderr, "  %s\n", dimStyle.Render(msg))
}

// CommandBanner renders a small branded banner for a command.
func CommandBanner(command string, subtitle string) {
	fmt.Fprint(os.Stderr, "\r")

	brand := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Render("D E C K S M I T H")

	cmdLine := stepNameStyle.Render(fmt.Sprintf("─── %s ───", strings.ToUpper(command)))

	content := fmt.Sprintf("%s\n%s", brand, cmdLine)
	if subtitle != "" {
		content += "\n" + dimStyle.Render(subtitle)
	}

	box := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		PaddingLeft(1).
		PaddingRight(1).
		Render(content)

	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, box)
	fmt.Fprintln(os.Stderr)
}

// Spinner displays an animated spinner with a message on stderr.
// Call Stop() to clear it. Stop() is safe to call multiple times.
type Spinner struct {
	msg      string
	stop     chan struct{}
	done     sync.WaitGroup
	stopOnce sync.Once
}

// NewSpinner starts a spinner with the given message.
func NewSpinner(msg string) *Spinner {
	s := &Spinner{
		msg:  msg,
		stop: make(chan struct{}),
	}
	s.done.Add(1)
	go s.run()
	return s
}

func (s *Spinner) run() {
	defer s.done.Done()
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	i := 0
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	// first frame right away so a short wait still shows something
	frame := stepNameStyle.Render(frames[0])
	fmt.Fprintf(os.Stderr, "\r%s %s", frame, dimStyle.Render(s.msg))
	i++

	for {
		select {
		case <-s.stop:
			fmt.Fprintf(os.Stderr, "\r\033[K")
			return
		case <-ticker.C:
			frame := stepNameStyle.Render(frames[i%len(frames)])
			fmt.Fprintf(os.Stderr, "\r%s %s", frame, dimStyle.Render(s.msg))
			i++
		}
	}
}

// Stop halts the spinner and clears its line.
// Safe to call multiple times.
func (s *Spinner) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.done.Wait()
}
