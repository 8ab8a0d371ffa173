package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/pairline/internal/apperr"
	"github.com/ShayCichocki/pairline/pkg/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limited", &anthropic.Error{StatusCode: 429}, true},
		{"server error", fmt.Errorf("call: %w", &anthropic.Error{StatusCode: 529}), true},
		{"unauthorized", &anthropic.Error{StatusCode: 401}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			if !errors.Is(err, apperr.ErrGeneration) {
				t.Fatal("expected a generation error")
			}
			if got := apperr.IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestBuildMessages(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleInfo, Content: "Added main.go to the chat"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
		{Role: models.RoleAssistant, Content: ""},
	}

	msgs := buildMessages(history, "next")
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}

	wantRoles := []anthropic.MessageParamRole{
		anthropic.MessageParamRoleUser,
		anthropic.MessageParamRoleAssistant,
		anthropic.MessageParamRoleUser,
	}
	for i, want := range wantRoles {
		if msgs[i].Role != want {
			t.Errorf("message %d role = %q, want %q", i, msgs[i].Role, want)
		}
	}
}

func TestParams_Overrides(t *testing.T) {
	c := &Client{model: "m", maxTokens: 100, temperature: 0.7}

	p := c.params(Request{Prompt: "x"})
	if p.MaxTokens != 100 {
		t.Errorf("MaxTokens = %d, want client default", p.MaxTokens)
	}
	if p.Temperature.Value != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", p.Temperature.Value)
	}
	if len(p.System) != 0 {
		t.Error("System should be empty without instructions")
	}

	temp := 0.2
	p = c.params(Request{Prompt: "x", System: "sys", MaxTokens: 50, Temperature: &temp})
	if p.MaxTokens != 50 || p.Temperature.Value != 0.2 {
		t.Errorf("overrides not applied: max=%d temp=%v", p.MaxTokens, p.Temperature.Value)
	}
	if len(p.System) != 1 || p.System[0].Text != "sys" {
		t.Errorf("unexpected system blocks %+v", p.System)
	}
}
