package reasoning

import (
	"context"
	"errors"
	"testing"

	"github.com/kokistudios/decksmith/internal/session"
)

// scriptedModel returns canned replies in order and records every request.
type scriptedModel struct {
	replies  []session.Message
	requests []Request
}

func (m *scriptedModel) Complete(_ context.Context, req Request) (session.Message, error) {
	m.requests = append(m.requests, req)
	if len(m.replies) == 0 {
		return session.Message{}, errors.New("script exhausted")
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

type fakeExecutor struct {
	calls   []session.Message
	suspend bool
}

func (e *fakeExecutor) Dispatch(_ context.Context, call session.Message) (Dispatch, error) {
	e.calls = append(e.calls, call)
	if e.suspend {
		return Dispatch{Suspend: &session.Suspension{Kind: session.SuspendTool, Prompt: "which colors?"}}, nil
	}
	var results []session.Message
	for _, tc := range call.ToolCalls {
		results = append(results, session.ToolResult(tc.ID, tc.Name, "ok"))
	}
	return Dispatch{Results: results}, nil
}

func toolCall(id, name string) session.Message {
	return session.Message{Role: session.RoleAssistant, ToolCalls: []session.ToolCall{{ID: id, Name: name, Arguments: "{}"}}}
}

func TestAgentReturnsPlainReply(t *testing.T) {
	m := &scriptedModel{replies: []session.Message{session.AssistantMessage("", "Cut X, add Y.")}}
	exec := &fakeExecutor{}

	out, err := NewAgent(m, 3).Run(context.Background(), Request{System: "sys"}, exec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Reply == nil || out.Reply.Content != "Cut X, add Y." {
		t.Fatalf("Reply = %+v", out.Reply)
	}
	if len(exec.calls) != 0 {
		t.Error("executor should not be called for a plain reply")
	}
	if m.requests[0].System != "sys" {
		t.Errorf("system prompt not forwarded: %q", m.requests[0].System)
	}
}

func TestAgentLoopsThroughTools(t *testing.T) {
	m := &scriptedModel{replies: []session.Message{
		toolCall("call_1", "save_card_suggestions"),
		session.AssistantMessage("", "Saved."),
	}}
	exec := &fakeExecutor{}

	out, err := NewAgent(m, 3).Run(context.Background(), Request{Messages: []session.Message{session.HumanMessage("go")}}, exec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Reply == nil || out.Reply.Content != "Saved." {
		t.Fatalf("Reply = %+v", out.Reply)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("executor called %d times, want 1", len(exec.calls))
	}

	second := m.requests[1].Messages
	if len(second) != 3 {
		t.Fatalf("second request has %d messages, want 3", len(second))
	}
	if second[2].Role != session.RoleTool || second[2].ToolCallID != "call_1" {
		t.Errorf("tool result not forwarded: %+v", second[2])
	}
}

func TestAgentSuspends(t *testing.T) {
	m := &scriptedModel{replies: []session.Message{toolCall("call_1", "prompt_user")}}
	out, err := NewAgent(m, 3).Run(context.Background(), Request{}, &fakeExecutor{suspend: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Suspend == nil || out.Reply != nil {
		t.Fatalf("expected suspension, got %+v", out)
	}
}

func TestAgentRoundLimit(t *testing.T) {
	m := &scriptedModel{replies: []session.Message{
		toolCall("a", "save_card_suggestions"),
		toolCall("b", "save_card_suggestions"),
	}}
	_, err := NewAgent(m, 2).Run(context.Background(), Request{}, &fakeExecutor{})
	if !errors.Is(err, ErrToolRounds) {
		t.Errorf("Run() = %v, want ErrToolRounds", err)
	}
}

func TestAgentModelError(t *testing.T) {
	_, err := NewAgent(&scriptedModel{}, 2).Run(context.Background(), Request{}, &fakeExecutor{})
	if err == nil {
		t.Error("expected model error to propagate")
	}
}
