package document

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"interview-prep-api/internal/session"
)

// ExportRequest describes one questions-and-answers PDF export.
type ExportRequest struct {
	Questions      []session.Question `json:"questions"`
	Answers        map[string]string  `json:"answers"`
	ResumeFilename string             `json:"resume_filename"`
	JobTitle       string             `json:"job_title"`
}

// WritePDF renders the preparation guide: a title page header, the numbered
// questions with their metadata and answers, and a summary section once the
// list is long enough to warrant one.
func WritePDF(w io.Writer, req ExportRequest, now time.Time) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 24)
	pdf.CellFormat(0, 14, "Interview Preparation Guide", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 10)
	if req.JobTitle != "" {
		pdf.CellFormat(0, 6, "Position: "+req.JobTitle, "", 1, "L", false, 0, "")
	}
	if req.ResumeFilename != "" {
		pdf.CellFormat(0, 6, "Resume: "+req.ResumeFilename, "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 6, "Generated: "+now.Format("January 2, 2006 at 3:04 PM"), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Total Questions: %d", len(req.Questions)), "", 1, "L", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Questions & Answers", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	for i, q := range req.Questions {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.MultiCell(0, 6, fmt.Sprintf("Q%d. %s", i+1, q.Question), "", "L", false)

		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, fmt.Sprintf("Type: %s | Difficulty: %s | Relevance: %.1f/1.0",
			titleWord(q.Type), titleWord(q.Difficulty), q.RelevanceScore), "", "L", false)

		answer := req.Answers[q.ID]
		if answer == "" {
			answer = q.Answer
		}

		pdf.SetFont("Helvetica", "", 11)
		if answer != "" {
			pdf.SetX(pdf.GetX() + 8)
			pdf.MultiCell(0, 5, "Answer: "+answer, "", "L", false)
		} else {
			pdf.SetX(pdf.GetX() + 8)
			pdf.MultiCell(0, 5, "No answer provided", "", "L", false)
		}
		pdf.Ln(5)

		if (i+1)%4 == 0 && i+1 < len(req.Questions) {
			pdf.AddPage()
		}
	}

	if len(req.Questions) > 5 {
		writeSummary(pdf, req.Questions)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}

	return nil
}

func writeSummary(pdf *fpdf.Fpdf, questions []session.Question) {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Preparation Summary", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	typeCounts := map[string]int{}
	difficultyCounts := map[string]int{}
	for _, q := range questions {
		typeCounts[q.Type]++
		difficultyCounts[q.Difficulty]++
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Question Types:", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, qtype := range []string{session.TypeTechnical, session.TypeBehavioral, session.TypeExperience} {
		if count := typeCounts[qtype]; count > 0 {
			pdf.CellFormat(0, 6, fmt.Sprintf("- %s: %d questions", titleWord(qtype), count), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Difficulty Distribution:", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, diff := range []string{session.DifficultyBeginner, session.DifficultyIntermediate, session.DifficultyAdvanced} {
		if count := difficultyCounts[diff]; count > 0 {
			pdf.CellFormat(0, 6, fmt.Sprintf("- %s: %d questions", titleWord(diff), count), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Preparation Tips", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	tips := []string{
		"Practice your answers out loud, not just in your head",
		"Use the STAR method (Situation, Task, Action, Result) for behavioral questions",
		"Research the company and role thoroughly before the interview",
		"Prepare thoughtful questions to ask the interviewer",
		"Review technical concepts relevant to the position",
		"Practice with mock interviews to build confidence",
	}
	for _, tip := range tips {
		pdf.MultiCell(0, 6, "- "+tip, "", "L", false)
	}
}

func titleWord(word string) string {
	if word == "" {
		return ""
	}
	return strings.ToUpper(word[:1]) + word[1:]
}
