package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scriptstudio/backend/internal/agent"
)

func TestClient_Submit_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tasks", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("API_KEY"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req agent.SubmitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "manus-1.6-max", req.AgentProfile)
		assert.Equal(t, "pt-BR", req.Locale)
		require.Len(t, req.Attachments, 1)
		assert.Equal(t, "https://video.example/1", req.Attachments[0].URL)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"task_id":    "t-1",
			"task_title": "Analysis",
			"task_url":   "https://agent.example/t-1",
			"share_url":  "https://agent.example/share/t-1",
		})
	}))
	defer server.Close()

	c := agent.NewClient(server.URL, "secret")
	sub, err := c.Submit(context.Background(), agent.SubmitRequest{
		Prompt:       "analyze",
		AgentProfile: "manus-1.6-max",
		Attachments:  []agent.Attachment{{URL: "https://video.example/1"}},
		Locale:       "pt-BR",
	})
	require.NoError(t, err)
	assert.Equal(t, "t-1", sub.TaskID)
	assert.Equal(t, "https://agent.example/t-1", sub.TaskURL)
	assert.Equal(t, "analyze", sub.Prompt)
	assert.False(t, sub.SubmittedAt.IsZero())
}

func TestClient_Submit_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	c := agent.NewClient(server.URL, "wrong")
	_, err := c.Submit(context.Background(), agent.SubmitRequest{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrAgentRejected)

	var rejected *agent.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusUnauthorized, rejected.StatusCode)
	assert.Equal(t, "bad api key", rejected.Body)
}

func TestClient_Submit_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	c := agent.NewClient(addr, "k")
	_, err := c.Submit(context.Background(), agent.SubmitRequest{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrAgentUnreachable)
}

func TestClient_FetchStatus_Completed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/tasks/t-9", r.URL.Path)
		w.Write([]byte(`{
			"id": "t-9",
			"status": "completed",
			"credit_usage": 42,
			"output": [
				{"role": "user", "content": [{"type": "output_text", "text": "prompt"}]},
				{"role": "assistant", "content": [
					{"type": "output_file", "fileUrl": "https://files.example/a.pdf"},
					{"type": "output_text", "text": "done"}
				]}
			]
		}`))
	}))
	defer server.Close()

	st, err := agent.NewClient(server.URL, "k").FetchStatus(context.Background(), "t-9")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, st.Status)
	assert.EqualValues(t, 42, st.CreditUsage)
	require.Len(t, st.Output, 2)
	assert.Equal(t, "https://files.example/a.pdf", st.Output[1].Content[0].FileURL)
}

func TestClient_FetchStatus_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := agent.NewClient(server.URL, "k").FetchStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, agent.ErrTaskNotFound)
}

func TestClient_FetchStatus_FillsMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"running"}`))
	}))
	defer server.Close()

	st, err := agent.NewClient(server.URL, "k").FetchStatus(context.Background(), "t-2")
	require.NoError(t, err)
	assert.Equal(t, "t-2", st.ID)
	assert.Equal(t, agent.StatusRunning, st.Status)
}

func TestClient_FetchStatus_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"running"}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := agent.NewClient(server.URL, "k").FetchStatus(ctx, "t-3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
