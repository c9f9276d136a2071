package workflow

import (
	"context"

	"github.com/kokistudios/decksmith/internal/session"
)

// Lister lists checkpointed sessions.
type Lister interface {
	List(ctx context.Context) ([]*session.Session, error)
}

// Interrupted is a session that stopped between steps, usually because a
// collaborator failed or the process died. Continue picks it up.
type Interrupted struct {
	SessionID string
	Step      session.Step
	Budget    int
}

// FindInterrupted returns running sessions with no pending question.
func FindInterrupted(ctx context.Context, l Lister) ([]Interrupted, error) {
	sessions, err := l.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []Interrupted
	for _, sess := range sessions {
		if sess.Status != session.StatusRunning || sess.Pending != nil {
			continue
		}
		out = append(out, Interrupted{
			SessionID: sess.ID,
			Step:      sess.State.Step(),
			Budget:    sess.State.Budget(),
		})
	}
	return out, nil
}
