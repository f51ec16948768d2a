// Package extract pulls the caller-facing payload out of a completed agent task.
package extract

import (
	"errors"
	"fmt"

	"github.com/scriptstudio/backend/internal/agent"
)

var ErrMalformedResponse = errors.New("malformed agent response")

// Result is the text the agent produced plus the credits it reports spending.
type Result struct {
	Text        string
	CreditUsage int64
}

// Extract returns the first non-empty output_text of the last assistant
// message. It does not modify st and returns the same Result for the same input.
func Extract(st *agent.TaskStatus) (Result, error) {
	if st == nil {
		return Result{}, fmt.Errorf("%w: nil status", ErrMalformedResponse)
	}
	if st.Status != agent.StatusCompleted {
		return Result{}, fmt.Errorf("%w: task %s is %s", ErrMalformedResponse, st.ID, st.Status)
	}

	var last *agent.Message
	for i := len(st.Output) - 1; i >= 0; i-- {
		if st.Output[i].Role == agent.RoleAssistant {
			last = &st.Output[i]
			break
		}
	}
	if last == nil {
		return Result{}, fmt.Errorf("%w: task %s has no assistant message", ErrMalformedResponse, st.ID)
	}

	for _, c := range last.Content {
		if c.Type == agent.ContentOutputText && c.Text != "" {
			usage := st.CreditUsage
			if usage < 0 {
				usage = 0
			}
			return Result{Text: c.Text, CreditUsage: usage}, nil
		}
	}
	return Result{}, fmt.Errorf("%w: task %s assistant message has no text", ErrMalformedResponse, st.ID)
}
