package session

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kokistudios/decksmith/internal/store"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusExhausted Status = "exhausted"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

var ErrSessionNotFound = errors.New("session not found")

var validTransitions = map[Status][]Status{
	StatusRunning:   {StatusSuspended, StatusCompleted, StatusExhausted, StatusFailed, StatusAbandoned},
	StatusSuspended: {StatusRunning, StatusAbandoned},
}

var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusExhausted: true,
	StatusFailed:    true,
	StatusAbandoned: true,
}

// Terminal reports whether no further steps may run.
func (s Status) Terminal() bool {
	return terminalStatuses[s]
}

// Session is a deck-revision conversation and its checkpointed state.
type Session struct {
	ID          string
	Provider    string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SuspendedAt *time.Time
	CompletedAt *time.Time
	Pending     *Suspension
	State       *State
}

// New creates a running session around st. Nothing is written until the
// session is saved.
func New(description, provider string, st *State) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        GenerateID(description),
		Provider:  provider,
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
		State:     st,
	}
}

// Transition moves the session to a new status, recording timestamps.
func (s *Session) Transition(to Status) error {
	if s.Status == to {
		return nil
	}
	if terminalStatuses[s.Status] {
		return fmt.Errorf("session %s is %s and cannot transition", s.ID, s.Status)
	}
	valid := false
	for _, a := range validTransitions[s.Status] {
		if a == to {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid transition: %s → %s", s.Status, to)
	}

	now := time.Now().UTC()
	s.Status = to
	s.UpdatedAt = now
	switch {
	case to == StatusSuspended:
		s.SuspendedAt = &now
	case terminalStatuses[to]:
		s.CompletedAt = &now
		s.Pending = nil
	}
	return nil
}

func GenerateID(description string) string {
	date := time.Now().Format("20060102")
	slug := slugify(description)
	suffix := randomHex(8)
	return fmt.Sprintf("%s-%s-%s", date, slug, suffix)
}

var (
	slugStrip = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpace = regexp.MustCompile(`[\s]+`)
)

func slugify(s string) string {
	s = strings.ToLower(s)
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpace.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 48 {
		s = s[:48]
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		s = "deck"
	}
	return s
}

func randomHex(n int) string {
	b := make([]byte, (n+1)/2)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)[:n]
}

// checkpoint is the on-disk form of a Session.
type checkpoint struct {
	ID          string      `yaml:"id"`
	Provider    string      `yaml:"provider"`
	Status      Status      `yaml:"status"`
	CreatedAt   time.Time   `yaml:"created_at"`
	UpdatedAt   time.Time   `yaml:"updated_at"`
	SuspendedAt *time.Time  `yaml:"suspended_at,omitempty"`
	CompletedAt *time.Time  `yaml:"completed_at,omitempty"`
	Pending     *Suspension `yaml:"pending,omitempty"`
	State       StateRecord `yaml:"state"`
}

// FileStore keeps one checkpoint per session under DECKSMITH_HOME/sessions.
type FileStore struct {
	store *store.Store
}

func NewFileStore(s *store.Store) *FileStore {
	return &FileStore{store: s}
}

// Save writes the session checkpoint and its markdown summary.
func (f *FileStore) Save(ctx context.Context, sess *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sess.State == nil {
		return fmt.Errorf("%w: session %s has no state", ErrInvalidCheckpoint, sess.ID)
	}
	sessDir := f.store.Path("sessions", sess.ID)
	if err := os.MkdirAll(sessDir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	sess.UpdatedAt = time.Now().UTC()
	cp := checkpoint{
		ID:          sess.ID,
		Provider:    sess.Provider,
		Status:      sess.Status,
		CreatedAt:   sess.CreatedAt,
		UpdatedAt:   sess.UpdatedAt,
		SuspendedAt: sess.SuspendedAt,
		CompletedAt: sess.CompletedAt,
		Pending:     sess.Pending,
		State:       sess.State.Record(),
	}
	data, err := yaml.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	p := filepath.Join(sessDir, "session.yaml")
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return writeSummaryMd(filepath.Join(sessDir, sess.ID+".md"), sess)
}

// Load reads a checkpoint. Fields unknown to the current schema are rejected.
func (f *FileStore) Load(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := f.store.Path("sessions", id, "session.yaml")
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("cannot read session %s: %w", id, err)
	}
	return Decode(data)
}

// Decode parses a checkpoint document strictly.
func Decode(data []byte) (*Session, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cp checkpoint
	if err := dec.Decode(&cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}
	if cp.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidCheckpoint)
	}
	st, err := RestoreState(cp.State)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:          cp.ID,
		Provider:    cp.Provider,
		Status:      cp.Status,
		CreatedAt:   cp.CreatedAt,
		UpdatedAt:   cp.UpdatedAt,
		SuspendedAt: cp.SuspendedAt,
		CompletedAt: cp.CompletedAt,
		Pending:     cp.Pending,
		State:       st,
	}, nil
}

// List returns every readable session, most recently updated first.
func (f *FileStore) List(ctx context.Context) ([]*Session, error) {
	entries, err := os.ReadDir(f.store.Path("sessions"))
	if err != nil {
		return nil, fmt.Errorf("cannot read sessions directory: %w", err)
	}

	var sessions []*Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sess, err := f.Load(ctx, e.Name())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Active returns sessions that have not reached a terminal status.
func (f *FileStore) Active(ctx context.Context) ([]*Session, error) {
	all, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	var active []*Session
	for _, sess := range all {
		if !sess.Status.Terminal() {
			active = append(active, sess)
		}
	}
	return active, nil
}

// Delete removes a session directory.
func (f *FileStore) Delete(id string) error {
	dir := f.store.Path("sessions", id)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return os.RemoveAll(dir)
}

func writeSummaryMd(p string, sess *Session) error {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	fm, err := yaml.Marshal(map[string]string{
		"id":     sess.ID,
		"status": string(sess.Status),
		"step":   string(sess.State.Step()),
	})
	if err != nil {
		return nil // non-fatal, session.yaml is the source of truth
	}
	buf.Write(fm)
	buf.WriteString("---\n\n")

	title := "Deck revision"
	if d := sess.State.OriginalDeck(); d != nil {
		title = d.Name
	}
	buf.WriteString(fmt.Sprintf("# %s\n\n", title))
	buf.WriteString(fmt.Sprintf("#%s\n\n", strings.ToUpper(string(sess.Status))))

	if d := sess.State.OriginalDeck(); d != nil {
		buf.WriteString("## Deck\n\n")
		buf.WriteString(fmt.Sprintf("- **Commander:** %s\n", d.CommanderName()))
		buf.WriteString(fmt.Sprintf("- **Cards:** %d\n", d.TotalCards()))
		buf.WriteString(fmt.Sprintf("- **Provider:** %s\n\n", d.Provider))
	}

	if params := sess.State.Parameters(); len(params) > 0 {
		buf.WriteString("## Preferences\n\n")
		for _, p := range params {
			buf.WriteString(fmt.Sprintf("- **%s:** %s\n", p.Key, p.Value))
		}
		buf.WriteString("\n")
	}

	if sugg := sess.State.Suggestions(); len(sugg) > 0 {
		buf.WriteString("## Suggestions\n\n")
		buf.WriteString("| Change | Card | Reason |\n|---|---|---|\n")
		for _, s := range sugg {
			buf.WriteString(fmt.Sprintf("| %+d | %s | %s |\n", s.Quantity, s.Card.Name, s.Reason))
		}
		buf.WriteString("\n")
	}

	buf.WriteString("## Timeline\n\n")
	buf.WriteString(fmt.Sprintf("- **Created:** %s\n", sess.CreatedAt.Format("2006-01-02 15:04")))
	buf.WriteString(fmt.Sprintf("- **Updated:** %s\n", sess.UpdatedAt.Format("2006-01-02 15:04")))
	if sess.SuspendedAt != nil {
		buf.WriteString(fmt.Sprintf("- **Suspended:** %s\n", sess.SuspendedAt.Format("2006-01-02 15:04")))
	}
	if sess.CompletedAt != nil {
		buf.WriteString(fmt.Sprintf("- **Finished:** %s\n", sess.CompletedAt.Format("2006-01-02 15:04")))
	}

	return os.WriteFile(p, buf.Bytes(), 0644)
}
