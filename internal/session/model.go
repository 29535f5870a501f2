package session

import "time"

// Question types and difficulties as stored in session question lists.
const (
	TypeTechnical  = "technical"
	TypeBehavioral = "behavioral"
	TypeExperience = "experience"

	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Question is one generated interview question inside a session.
type Question struct {
	ID             string    `json:"id"`
	Question       string    `json:"question"`
	Type           string    `json:"type"`
	Difficulty     string    `json:"difficulty"`
	RelevanceScore float64   `json:"relevance_score"`
	Answer         string    `json:"answer,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session is one interview preparation workspace. Questions and answers are
// stored as jsonb documents; answers are keyed by question ID.
type Session struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	CompanyName    string            `json:"company_name"`
	JobTitle       string            `json:"job_title"`
	ResumeFilename string            `json:"resume_filename,omitempty"`
	ResumeText     string            `json:"resume_text,omitempty"`
	JobDescription string            `json:"job_description,omitempty"`
	Questions      []Question        `json:"questions"`
	Answers        map[string]string `json:"answers"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	IsActive       bool              `json:"is_active"`
}

// CreateInput is the client payload for a new session.
type CreateInput struct {
	CompanyName    string `json:"company_name"`
	JobTitle       string `json:"job_title"`
	ResumeFilename string `json:"resume_filename"`
	ResumeText     string `json:"resume_text"`
	JobDescription string `json:"job_description"`
}

// UpdateInput carries a partial update; nil fields are left untouched.
type UpdateInput struct {
	CompanyName    *string `json:"company_name"`
	JobTitle       *string `json:"job_title"`
	ResumeFilename *string `json:"resume_filename"`
	ResumeText     *string `json:"resume_text"`
	JobDescription *string `json:"job_description"`
}

// Stats summarizes answer progress for one session.
type Stats struct {
	TotalQuestions       int       `json:"total_questions"`
	AnsweredQuestions    int       `json:"answered_questions"`
	CompletionPercentage float64   `json:"completion_percentage"`
	LastUpdated          time.Time `json:"last_updated"`
}

// Stats counts questions with a non-empty answer keyed by question ID.
func (s *Session) Stats() Stats {
	answered := 0
	for _, q := range s.Questions {
		if s.Answers[q.ID] != "" {
			answered++
		}
	}

	completion := 0.0
	if len(s.Questions) > 0 {
		completion = float64(answered) / float64(len(s.Questions)) * 100
	}

	return Stats{
		TotalQuestions:       len(s.Questions),
		AnsweredQuestions:    answered,
		CompletionPercentage: completion,
		LastUpdated:          s.UpdatedAt,
	}
}
