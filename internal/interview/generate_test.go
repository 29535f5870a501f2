package interview

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bare json", `[{"id":"q1"}]`, `[{"id":"q1"}]`},
		{"json fence", "```json\n[{\"id\":\"q1\"}]\n```", `[{"id":"q1"}]`},
		{"plain fence", "```\n[{\"id\":\"q1\"}]\n```", `[{"id":"q1"}]`},
		{"surrounding whitespace", "  ```json\n[]\n```  ", "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.content))
		})
	}
}

func TestDecodeQuestions(t *testing.T) {
	content := "```json\n" + `[
		{"question": "What is a channel?", "type": "technical", "difficulty": "beginner", "relevance_score": 0.9, "answer": "A typed conduit."},
		{"id": "q2", "question": "Describe a conflict.", "type": "behavioral", "difficulty": "intermediate", "relevance_score": 0.7}
	]` + "\n```"

	questions, err := decodeQuestions(content, false)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "q_1", questions[0].ID, "missing IDs get positional fallbacks")
	assert.Equal(t, "q2", questions[1].ID)
	assert.Empty(t, questions[0].Answer, "answers are dropped unless requested")

	withAnswers, err := decodeQuestions(content, true)
	require.NoError(t, err)
	assert.Equal(t, "A typed conduit.", withAnswers[0].Answer)

	_, err = decodeQuestions("not json at all", false)
	assert.Error(t, err)
}

func TestBuildContext(t *testing.T) {
	_, err := buildContext("", "  ")
	assert.ErrorIs(t, err, ErrNoContext)

	block, err := buildContext("my resume", "")
	require.NoError(t, err)
	assert.Equal(t, "Resume/CV:\nmy resume", block)

	block, err = buildContext("my resume", "the job")
	require.NoError(t, err)
	assert.Contains(t, block, "Resume/CV:\nmy resume")
	assert.Contains(t, block, "Job Description:\nthe job")
}

func TestQuestionPrompt(t *testing.T) {
	prompt := questionPrompt(5, false, "ctx")
	assert.Contains(t, prompt, "Generate 5 relevant interview questions")
	assert.NotContains(t, prompt, "sample answers")

	prompt = questionPrompt(5, true, "ctx")
	assert.Contains(t, prompt, "Include sample answers for each question")
	assert.Contains(t, prompt, `"answer": "Sample answer here"`)
}

// chatStub fakes an OpenAI-compatible endpoint.
func chatStub(t *testing.T, status int, response any, sawRequest *chatRequest) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if sawRequest != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(sawRequest))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}))
}

func chatContent(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
}

func TestClientGenerateQuestions(t *testing.T) {
	var seen chatRequest
	srv := chatStub(t, http.StatusOK, chatContent("```json\n[{\"id\":\"q1\",\"question\":\"Why Go?\",\"type\":\"technical\",\"difficulty\":\"beginner\",\"relevance_score\":0.8}]\n```"), &seen)
	defer srv.Close()

	client, err := NewClient("test-key", "test-model", srv.URL+"/v1")
	require.NoError(t, err)

	questions, err := client.GenerateQuestions(context.Background(), QuestionRequest{
		ResumeText:    "resume",
		QuestionCount: 3,
	})
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "Why Go?", questions[0].Question)

	assert.Equal(t, "test-model", seen.Model)
	require.Len(t, seen.Messages, 2)
	assert.Contains(t, seen.Messages[1].Content, "Generate 3 relevant interview questions")
	assert.Contains(t, seen.Messages[1].Content, "Resume/CV:\nresume")
}

func TestClientGenerateQuestionsRequiresContext(t *testing.T) {
	client, err := NewClient("test-key", "", "")
	require.NoError(t, err)

	_, err = client.GenerateQuestions(context.Background(), QuestionRequest{})
	assert.ErrorIs(t, err, ErrNoContext)
}

func TestClientGenerateAnswer(t *testing.T) {
	srv := chatStub(t, http.StatusOK, chatContent("  A solid answer.  "), nil)
	defer srv.Close()

	client, err := NewClient("test-key", "", srv.URL+"/v1")
	require.NoError(t, err)

	answer, err := client.GenerateAnswer(context.Background(), "Why Go?", "", "the job")
	require.NoError(t, err)
	assert.Equal(t, "A solid answer.", answer)
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	srv := chatStub(t, http.StatusTooManyRequests, map[string]any{
		"error": map[string]any{"message": "rate limited"},
	}, nil)
	defer srv.Close()

	client, err := NewClient("test-key", "", srv.URL+"/v1")
	require.NoError(t, err)

	_, err = client.GenerateAnswer(context.Background(), "Why Go?", "resume", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestClientEmptyChoice(t *testing.T) {
	srv := chatStub(t, http.StatusOK, map[string]any{"choices": []any{}}, nil)
	defer srv.Close()

	client, err := NewClient("test-key", "", srv.URL+"/v1")
	require.NoError(t, err)

	_, err = client.GenerateAnswer(context.Background(), "Why Go?", "resume", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing content")
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("  ", "", "")
	assert.Error(t, err)

	client, err := NewClient("key", "", "")
	require.NoError(t, err)
	assert.Equal(t, defaultModel, client.model)
	assert.Equal(t, defaultBaseURL, client.baseURL)
}
