package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"interview-prep-api/internal/session"
)

const (
	defaultQuestionCount = 10
	maxQuestionCount     = 25
)

// ErrNoContext is returned when neither a resume nor a job description is
// available to ground the generation.
var ErrNoContext = errors.New("either resume text or job description must be provided")

// QuestionRequest describes one question generation call.
type QuestionRequest struct {
	ResumeText     string
	JobDescription string
	QuestionCount  int
	IncludeAnswers bool
}

// GenerateQuestions asks the model for a JSON array of interview questions
// grounded on the resume and/or job description.
func (c *Client) GenerateQuestions(ctx context.Context, req QuestionRequest) ([]session.Question, error) {
	if req.QuestionCount <= 0 {
		req.QuestionCount = defaultQuestionCount
	}
	if req.QuestionCount > maxQuestionCount {
		req.QuestionCount = maxQuestionCount
	}

	contextBlock, err := buildContext(req.ResumeText, req.JobDescription)
	if err != nil {
		return nil, err
	}

	content, err := c.chat(ctx, []chatMessage{
		{Role: "system", Content: "You are an expert interview coach."},
		{Role: "user", Content: questionPrompt(req.QuestionCount, req.IncludeAnswers, contextBlock)},
	}, 3000)
	if err != nil {
		return nil, err
	}

	questions, err := decodeQuestions(content, req.IncludeAnswers)
	if err != nil {
		return nil, err
	}

	return questions, nil
}

// GenerateAnswer asks the model for one sample answer, STAR-structured where
// the question calls for it.
func (c *Client) GenerateAnswer(ctx context.Context, question, resumeText, jobDescription string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", errors.New("question is required")
	}

	content, err := c.chat(ctx, []chatMessage{
		{Role: "system", Content: answerPrompt(question, resumeText, jobDescription)},
	}, 500)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(content), nil
}

func buildContext(resumeText, jobDescription string) (string, error) {
	var parts []string
	if strings.TrimSpace(resumeText) != "" {
		parts = append(parts, "Resume/CV:\n"+resumeText)
	}
	if strings.TrimSpace(jobDescription) != "" {
		parts = append(parts, "Job Description:\n"+jobDescription)
	}
	if len(parts) == 0 {
		return "", ErrNoContext
	}

	return strings.Join(parts, "\n\n"), nil
}

func questionPrompt(count int, includeAnswers bool, contextBlock string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are an expert interview coach. Generate %d relevant interview questions based on the provided context.

Instructions:
- Generate a mix of technical, behavioral, and experience-based questions
- Assign appropriate difficulty levels (beginner, intermediate, advanced)
- Rate relevance from 0.0 to 1.0 based on how well the question matches the context
- Each question should be unique and valuable for interview preparation
`, count)
	if includeAnswers {
		b.WriteString("- Include sample answers for each question\n")
	}

	b.WriteString(`
Return the response as a JSON array with this exact structure:
[
  {
    "id": "unique_question_id",
    "question": "Question text here?",
    "type": "technical" | "behavioral" | "experience",
    "difficulty": "beginner" | "intermediate" | "advanced",
    "relevance_score": 0.85`)
	if includeAnswers {
		b.WriteString(`,
    "answer": "Sample answer here"`)
	}
	b.WriteString(`
  }
]

Context:
`)
	b.WriteString(contextBlock)

	return b.String()
}

func answerPrompt(question, resumeText, jobDescription string) string {
	contextBlock, err := buildContext(resumeText, jobDescription)
	contextSection := ""
	if err == nil {
		contextSection = "Context to consider:\n" + contextBlock
	}

	return fmt.Sprintf(`You are an expert interview coach. Generate a professional, well-structured answer to the interview question.

Instructions:
- Provide a comprehensive but concise answer
- Use the STAR method (Situation, Task, Action, Result) for behavioral questions when appropriate
- Make the answer relevant to the provided context when available
- Keep the answer professional and interview-appropriate
- Aim for 100-200 words

Question: %s

%s

Provide only the answer, no additional formatting or labels.`, question, contextSection)
}

// decodeQuestions parses the model's JSON array, tolerating a markdown code
// fence around it. Missing IDs get positional fallbacks.
func decodeQuestions(content string, includeAnswers bool) ([]session.Question, error) {
	content = stripFences(content)

	var questions []session.Question
	if err := json.Unmarshal([]byte(content), &questions); err != nil {
		return nil, fmt.Errorf("parse generated questions: %w", err)
	}

	for i := range questions {
		if questions[i].ID == "" {
			questions[i].ID = fmt.Sprintf("q_%d", i+1)
		}
		if !includeAnswers {
			questions[i].Answer = ""
		}
	}

	return questions, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")

	return strings.TrimSpace(content)
}
