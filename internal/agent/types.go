package agent

import "time"

// Status is the lifecycle state the agent service reports for a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Content item types inside an output message.
const (
	ContentOutputText = "output_text"
	ContentOutputFile = "output_file"
)

const RoleAssistant = "assistant"

// Attachment is a file or URL the agent should read.
type Attachment struct {
	URL string `json:"url"`
}

// SubmitRequest is the body of POST /tasks.
type SubmitRequest struct {
	Prompt       string       `json:"prompt"`
	AgentProfile string       `json:"agentProfile"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	// TaskID continues an earlier task as a multi-turn conversation.
	TaskID string `json:"taskId,omitempty"`
	Locale string `json:"locale,omitempty"`
}

// Submission is the agent service's acknowledgement of a new task.
type Submission struct {
	TaskID       string    `json:"task_id"`
	TaskTitle    string    `json:"task_title"`
	TaskURL      string    `json:"task_url"`
	ShareURL     string    `json:"share_url"`
	Prompt       string    `json:"-"`
	AgentProfile string    `json:"-"`
	SubmittedAt  time.Time `json:"-"`
}

type ContentItem struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	FileURL string `json:"fileUrl,omitempty"`
}

type Message struct {
	Role    string        `json:"role"`
	Content []ContentItem `json:"content"`
}

// TaskStatus is one observation of a task. Output is only populated once
// Status is completed; Error only when failed.
type TaskStatus struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Output      []Message `json:"output,omitempty"`
	CreditUsage int64     `json:"credit_usage,omitempty"`
}
